// Package store persists the connector's durable state: which working
// directory each conversation is bound to, and a per-conversation ledger
// of received messages and execution outcomes. Backed by SQLite via
// modernc.org/sqlite (pure Go, no cgo), with schema creation on open.
package store
