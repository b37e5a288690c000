// ABOUTME: Progress sinks render in-flight execution steps as outbound chat messages.
// ABOUTME: Three mutually exclusive rendering policies, selected once at startup.

package progress

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/coven-connect/internal/platform"
)

// Mode selects how progress events are rendered.
type Mode string

const (
	// ModeSingle edits one status message in place and deletes it when the
	// execution completes. Minimal thread clutter, no history.
	ModeSingle Mode = "single"

	// ModeMulti posts one persistent message per tool invocation and edits
	// it to a completion marker. Full tool transparency.
	ModeMulti Mode = "multi"

	// ModeBlocks is ModeMulti plus separate lightly-styled messages for
	// thinking and intermediate text. Maximum transparency.
	ModeBlocks Mode = "blocks"
)

// ParseMode validates a mode string from configuration.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSingle, ModeMulti, ModeBlocks:
		return Mode(s), nil
	case "":
		return ModeSingle, nil
	default:
		return "", fmt.Errorf("unknown display mode %q (want single, multi, or blocks)", s)
	}
}

// Sink receives one execution's progress events and renders them through a
// platform Messenger. Implementations perform adapter I/O synchronously per
// event, so messages appear in hook-emission order.
//
// Every method is best-effort: a failed platform call is logged and
// swallowed, never surfaced to the execution being observed.
//
// Lifecycle: Start before Execute, event callbacks during, Close on every
// exit path (including failures).
type Sink interface {
	Start(ctx context.Context)
	OnThinking(ctx context.Context, text string)
	OnToolStart(ctx context.Context, id, name string, args map[string]any)
	OnToolEnd(ctx context.Context, id, name string, args map[string]any, ok bool, errorSummary string)
	OnTextChunk(ctx context.Context, text string)
	Close(ctx context.Context)
}

// New builds the sink for the configured mode, bound to one conversation's
// channel and reply thread.
func New(mode Mode, m platform.Messenger, channel, threadID string, logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "progress", "mode", string(mode))

	base := base{m: m, channel: channel, threadID: threadID, logger: logger}
	switch mode {
	case ModeMulti:
		return &multiSink{base: base}
	case ModeBlocks:
		return &blocksSink{multiSink: multiSink{base: base}}
	default:
		return &singleSink{base: base}
	}
}

const workingIndicator = "⏳ ..."

// base holds what every sink needs: the messenger, the destination, and the
// initial working-indicator message ID.
type base struct {
	m        platform.Messenger
	channel  string
	threadID string
	logger   *slog.Logger

	statusID string // platform ID of the working-indicator message
}

func (b *base) postIndicator(ctx context.Context) {
	id, err := b.m.SendMessage(ctx, b.channel, workingIndicator, b.threadID)
	if err != nil {
		b.logger.Debug("could not post working indicator", "error", err)
		return
	}
	b.statusID = id
}

func (b *base) post(ctx context.Context, text string) string {
	id, err := b.m.SendMessage(ctx, b.channel, text, b.threadID)
	if err != nil {
		b.logger.Debug("could not post progress message", "error", err)
		return ""
	}
	return id
}

func (b *base) update(ctx context.Context, messageID, text string) {
	if messageID == "" {
		return
	}
	if err := b.m.UpdateMessage(ctx, b.channel, messageID, text); err != nil {
		b.logger.Debug("could not update progress message", "error", err)
	}
}
