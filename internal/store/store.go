// ABOUTME: Persistence interfaces for workdir associations and the conversation ledger.
// ABOUTME: Narrow per-concern interfaces; SQLiteStore implements all of them.

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Association binds a conversation to the working directory its sessions
// run in. Set by the in-chat project command, consulted on session create.
type Association struct {
	ConversationID string
	Platform       string
	ChannelID      string
	ThreadID       string
	WorkingDir     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Associations persists conversation → working directory bindings.
type Associations interface {
	// Associate records or replaces the binding for a conversation.
	Associate(ctx context.Context, a Association) error

	// Lookup returns the binding for a conversation, or ErrNotFound.
	Lookup(ctx context.Context, conversationID string) (Association, error)

	// Remove deletes the binding. Removing a missing binding is not an error.
	Remove(ctx context.Context, conversationID string) error

	// List returns all bindings, newest first.
	List(ctx context.Context) ([]Association, error)
}

// Ledger event kinds.
const (
	EventMessageReceived   = "message_received"
	EventExecutionStarted  = "execution_started"
	EventExecutionFinished = "execution_finished"
	EventExecutionFailed   = "execution_failed"
)

// LedgerEntry is one recorded conversation event.
type LedgerEntry struct {
	ID             int64
	ConversationID string
	Kind           string
	Detail         string
	CreatedAt      time.Time
}

// Ledger records what happened per conversation, for the status command
// and for operator forensics.
type Ledger interface {
	// Record appends an event. Detail is free text and may be empty.
	Record(ctx context.Context, conversationID, kind, detail string) error

	// Recent returns the newest entries for a conversation, newest first.
	Recent(ctx context.Context, conversationID string, limit int) ([]LedgerEntry, error)
}

// Store is the full persistence surface the connector needs.
type Store interface {
	Associations
	Ledger
	Close() error
}
