// Package engine connects sessions to the execution engine over HTTP.
//
// A Bundle manifest (TOML) is loaded once at startup and validated; it
// names the engine endpoint, credential, model, and tool policy. Template
// turns the bundle into sessions, one per conversation, identified to the
// engine by conversation ID so engine-side context survives across prompts.
//
// Execute streams Server-Sent Events: thinking and text chunks, tool
// lifecycle, approval requests, and file attachments. Events are published
// on the session hook bus in stream order; approvals and connector-side
// tools are serviced inline and their outcomes posted back before the
// stream continues.
package engine
