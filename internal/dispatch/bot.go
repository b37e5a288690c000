// ABOUTME: The message pipeline: dedupe, commands, session lookup, execution, reply.
// ABOUTME: Serializes executions per conversation and always releases what it acquires.

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/coven-connect/internal/dedupe"
	"github.com/2389/coven-connect/internal/format"
	"github.com/2389/coven-connect/internal/message"
	"github.com/2389/coven-connect/internal/platform"
	"github.com/2389/coven-connect/internal/progress"
	"github.com/2389/coven-connect/internal/session"
	"github.com/2389/coven-connect/internal/store"
	"github.com/2389/coven-connect/internal/workdir"
)

const loadingReaction = "hourglass_flowing_sand"

// Bot routes inbound platform messages into per-conversation sessions and
// sends the results back. One Bot serves all adapters.
type Bot struct {
	manager  *session.Manager
	workdirs *workdir.Manager
	ledger   store.Ledger
	cache    *dedupe.Cache

	mode   progress.Mode
	maxLen int
	logger *slog.Logger
}

// New wires the pipeline. ledger may be nil to disable event recording.
func New(manager *session.Manager, workdirs *workdir.Manager, ledger store.Ledger,
	cache *dedupe.Cache, mode progress.Mode, maxLen int, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		manager:  manager,
		workdirs: workdirs,
		ledger:   ledger,
		cache:    cache,
		mode:     mode,
		maxLen:   maxLen,
		logger:   logger.With("component", "dispatch"),
	}
}

// HandlerFor returns the adapter's inbound message handler. Each message
// is processed on its own goroutine so one conversation's long execution
// never blocks another's.
func (b *Bot) HandlerFor(adapter platform.Adapter) platform.Handler {
	return func(ctx context.Context, msg *message.Unified) {
		go b.handle(ctx, adapter, msg)
	}
}

func (b *Bot) handle(ctx context.Context, adapter platform.Adapter, msg *message.Unified) {
	if b.cache != nil && b.cache.CheckAndMark(dedupe.Key(msg)) {
		b.logger.Debug("dropping duplicate event",
			"platform", msg.Platform, "channel", msg.ChannelID, "message", msg.MessageID)
		return
	}

	conversationID := msg.ConversationID()
	logger := b.logger.With("conversation", conversationID)
	b.record(ctx, conversationID, store.EventMessageReceived, "")

	text := strings.TrimSpace(msg.Text)
	if handled := b.maybeHandleCommand(ctx, adapter, msg, conversationID, text); handled {
		return
	}

	b.execute(ctx, adapter, msg, conversationID, text, logger)
}

// execute runs one prompt through the conversation's session. The
// conversation lock is held for the whole execution, so later messages in
// the same conversation queue behind it.
func (b *Bot) execute(ctx context.Context, adapter platform.Adapter, msg *message.Unified,
	conversationID, prompt string, logger *slog.Logger) {

	thread := replyThread(msg)
	bindings := session.Bindings{
		Approval:   &chatApprover{adapter: adapter, channel: msg.ChannelID, threadID: thread},
		Display:    &chatDisplay{adapter: adapter, channel: msg.ChannelID, threadID: thread},
		Tool:       &reactionTool{adapter: adapter, channel: msg.ChannelID, messageID: msg.MessageID},
		WorkingDir: b.workdirs.Resolve(ctx, conversationID),
	}

	sess, lock, err := b.manager.GetOrCreate(ctx, conversationID, bindings)
	if err != nil {
		logger.Error("could not obtain session", "error", err)
		b.record(ctx, conversationID, store.EventExecutionFailed, err.Error())
		b.reply(ctx, adapter, msg, sessionErrorText(err))
		return
	}

	// Acknowledge receipt while the message waits for the lock.
	if err := adapter.AddReaction(ctx, msg.ChannelID, msg.MessageID, loadingReaction); err != nil {
		logger.Debug("could not add loading reaction", "error", err)
	}
	defer func() {
		if err := adapter.RemoveReaction(ctx, msg.ChannelID, msg.MessageID, loadingReaction); err != nil {
			logger.Debug("could not remove loading reaction", "error", err)
		}
	}()

	lock.Lock()
	defer lock.Unlock()

	sink := progress.New(b.mode, adapter, msg.ChannelID, thread, b.logger)
	sink.Start(ctx)
	unsubscribe := bridgeHooks(sess.Hooks(), sink)

	b.record(ctx, conversationID, store.EventExecutionStarted, "")
	started := time.Now()
	result, execErr := sess.Execute(ctx, prompt)

	// Hooks come off before the sink closes so a straggling event cannot
	// touch a finished sink.
	unsubscribe()
	sink.Close(ctx)

	if execErr != nil {
		logger.Error("execution failed", "error", execErr, "elapsed", time.Since(started))
		b.record(ctx, conversationID, store.EventExecutionFailed, execErr.Error())
		b.reply(ctx, adapter, msg, "⚠️ Something went wrong: "+truncateError(execErr))
		return
	}

	logger.Info("execution finished", "elapsed", time.Since(started))
	b.record(ctx, conversationID, store.EventExecutionFinished, time.Since(started).Round(time.Second).String())

	response := format.Clean(result)
	if response == "" {
		response = "_(no response)_"
	}
	if b.maxLen > 0 {
		response = format.Truncate(response, b.maxLen)
	}
	b.reply(ctx, adapter, msg, response)
}

// bridgeHooks subscribes a progress sink to a session's events and
// returns a func that cancels every subscription.
func bridgeHooks(hooks session.Hooks, sink progress.Sink) func() {
	subs := []session.Subscription{
		hooks.Subscribe(session.EventThinking, 0, func(ctx context.Context, ev session.Event) {
			sink.OnThinking(ctx, ev.Text)
		}),
		hooks.Subscribe(session.EventToolStart, 0, func(ctx context.Context, ev session.Event) {
			if ev.ToolStart != nil {
				sink.OnToolStart(ctx, ev.ToolStart.ID, ev.ToolStart.Name, ev.ToolStart.Args)
			}
		}),
		hooks.Subscribe(session.EventToolEnd, 0, func(ctx context.Context, ev session.Event) {
			if ev.ToolEnd != nil {
				sink.OnToolEnd(ctx, ev.ToolEnd.ID, ev.ToolEnd.Name, ev.ToolEnd.Args, ev.ToolEnd.OK, ev.ToolEnd.ErrorSummary)
			}
		}),
		hooks.Subscribe(session.EventTextChunk, 0, func(ctx context.Context, ev session.Event) {
			sink.OnTextChunk(ctx, ev.Text)
		}),
	}
	return func() {
		for _, sub := range subs {
			sub.Cancel()
		}
	}
}

// reply sends text into the message's conversation. Send failures are
// terminal for this message; they are logged, not retried.
func (b *Bot) reply(ctx context.Context, adapter platform.Adapter, msg *message.Unified, text string) {
	if _, err := adapter.SendMessage(ctx, msg.ChannelID, text, replyThread(msg)); err != nil {
		b.logger.Error("could not send reply",
			"platform", msg.Platform, "channel", msg.ChannelID, "error", err)
	}
}

// replyThread picks where outbound messages for msg land. Inside a
// thread that thread is kept; a top-level message gets its replies
// threaded under the triggering message itself, so the exchange stays
// grouped and follow-ups in that thread form their own conversation.
func replyThread(msg *message.Unified) string {
	if msg.ThreadID != "" {
		return msg.ThreadID
	}
	return msg.MessageID
}

func (b *Bot) record(ctx context.Context, conversationID, kind, detail string) {
	if b.ledger == nil {
		return
	}
	if err := b.ledger.Record(ctx, conversationID, kind, detail); err != nil {
		b.logger.Warn("could not record ledger event", "kind", kind, "error", err)
	}
}

// sessionErrorText maps session-layer failures to user-facing messages.
func sessionErrorText(err error) string {
	var createErr *session.CreateError
	switch {
	case errors.Is(err, session.ErrNotInitialized):
		return "⚠️ I'm still starting up. Try again in a moment."
	case errors.As(err, &createErr):
		return "⚠️ Couldn't start a session for this conversation: " + truncateError(createErr.Err)
	default:
		return "⚠️ Something went wrong: " + truncateError(err)
	}
}

func truncateError(err error) string {
	s := err.Error()
	const max = 200
	if len(s) > max {
		s = s[:max] + "..."
	}
	return fmt.Sprintf("`%s`", s)
}
