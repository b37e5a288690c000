// ABOUTME: Adapter and approval-prompt contracts every chat platform implements.
// ABOUTME: The dispatcher and progress sinks only ever see these interfaces.

package platform

import (
	"context"

	"github.com/2389/coven-connect/internal/message"
)

// Handler receives one unified message per inbound platform event.
type Handler func(ctx context.Context, msg *message.Unified)

// Adapter is the platform-specific translation layer between native chat
// events/APIs and the unified message/ops model.
type Adapter interface {
	// Name returns the platform tag ("slack", "teams", "matrix").
	Name() message.Platform

	// Startup establishes the platform connection and authenticates.
	Startup(ctx context.Context) error

	// Shutdown releases platform resources. Safe after a failed Startup.
	Shutdown(ctx context.Context) error

	// Listen blocks, converting platform events to unified messages and
	// invoking handler for each, until ctx is cancelled or the underlying
	// connection fails fatally.
	Listen(ctx context.Context, handler Handler) error

	// SendMessage posts text to a channel (threaded if threadID is
	// non-empty) and returns the platform message ID.
	SendMessage(ctx context.Context, channel, text, threadID string) (string, error)

	// UpdateMessage edits an existing message in place.
	UpdateMessage(ctx context.Context, channel, messageID, text string) error

	// DeleteMessage removes a message.
	DeleteMessage(ctx context.Context, channel, messageID string) error

	// AddReaction attaches an emoji reaction. Platforms without reaction
	// support log and ignore.
	AddReaction(ctx context.Context, channel, messageID, emoji string) error

	// RemoveReaction detaches a previously added reaction, best-effort.
	RemoveReaction(ctx context.Context, channel, messageID, emoji string) error

	// CreateApprovalPrompt posts an interactive allow/deny element and
	// returns a prompt that resolves when the user decides.
	CreateApprovalPrompt(ctx context.Context, channel, description, threadID string) (ApprovalPrompt, error)

	// ConversationID derives the stable conversation key for a channel and
	// optional thread, per the message package derivation rule.
	ConversationID(channel, threadID string) string
}

// ApprovalPrompt is a pending allow/deny decision.
type ApprovalPrompt interface {
	// Wait blocks until the user decides, the prompt times out (deny), or
	// ctx is cancelled.
	Wait(ctx context.Context) (bool, error)

	// ID returns the platform-specific prompt identifier.
	ID() string
}

// Messenger is the message-primitive subset of Adapter used by progress
// rendering. Defined separately so sinks can be tested against a fake
// without implementing the full adapter surface.
type Messenger interface {
	SendMessage(ctx context.Context, channel, text, threadID string) (string, error)
	UpdateMessage(ctx context.Context, channel, messageID, text string) error
	DeleteMessage(ctx context.Context, channel, messageID string) error
}
