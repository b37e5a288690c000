// ABOUTME: Error taxonomy for session lifecycle failures.
// ABOUTME: Template failures are fatal at startup; per-conversation failures are retryable.

package session

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned when the manager is used before Initialize.
// This is a programming error in the wiring, not a runtime condition.
var ErrNotInitialized = errors.New("session manager not initialized")

// TemplateError wraps a failure to prepare the shared template. Without the
// template no conversation can be served, so callers treat it as fatal.
type TemplateError struct {
	Err error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("preparing session template: %v", e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// CreateError wraps a failure to instantiate one conversation's session.
// It affects only that conversation; the next message for the same
// conversation retries creation from scratch.
type CreateError struct {
	ConversationID string
	Err            error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("creating session %s: %v", e.ConversationID, e.Err)
}

func (e *CreateError) Unwrap() error { return e.Err }
