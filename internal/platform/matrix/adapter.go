// ABOUTME: Matrix adapter on mautrix: sync loop intake, formatted sends, edits, redactions.
// ABOUTME: Approvals are reply prompts resolved by yes/no answers in the room.

package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-connect/internal/format"
	"github.com/2389/coven-connect/internal/message"
	"github.com/2389/coven-connect/internal/platform"
)

// Config holds what the adapter needs from the application config.
type Config struct {
	Homeserver   string
	UserID       string
	AccessToken  string
	AllowedUsers []string
	AllowedRooms []string
}

// Adapter connects to a Matrix homeserver via the client-server sync API.
type Adapter struct {
	cfg    Config
	client *mautrix.Client
	logger *slog.Logger

	mu        sync.Mutex
	approvals map[string]chan bool              // room ID → pending decision
	reactions map[string]id.EventID             // room/message/emoji → reaction event
	startTime time.Time
}

// New builds the adapter and its underlying client.
func New(cfg Config, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	return &Adapter{
		cfg:       cfg,
		client:    client,
		logger:    logger.With("component", "matrix"),
		approvals: make(map[string]chan bool),
		reactions: make(map[string]id.EventID),
	}, nil
}

func (a *Adapter) Name() message.Platform { return message.PlatformMatrix }

// Startup verifies the access token.
func (a *Adapter) Startup(ctx context.Context) error {
	resp, err := a.client.Whoami(ctx)
	if err != nil {
		return fmt.Errorf("matrix auth: %w", err)
	}
	a.startTime = time.Now()
	a.logger.Info("matrix authenticated", "user", resp.UserID.String())
	return nil
}

func (a *Adapter) Shutdown(ctx context.Context) error {
	a.client.StopSync()
	return nil
}

// Listen runs the sync loop until ctx is cancelled.
func (a *Adapter) Listen(ctx context.Context, handler platform.Handler) error {
	syncer, ok := a.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", a.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, func(ctx context.Context, evt *event.Event) {
		a.handleEvent(ctx, evt, handler)
	})

	a.logger.Info("connecting to matrix homeserver", "homeserver", a.cfg.Homeserver)
	if err := a.client.SyncWithContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("matrix sync failed: %w", err)
	}
	return ctx.Err()
}

// handleEvent converts one timeline message. Messages that answer a
// pending approval prompt in the room are consumed as decisions.
func (a *Adapter) handleEvent(ctx context.Context, evt *event.Event, handler platform.Handler) {
	msg := a.toUnified(evt)
	if msg == nil {
		return
	}

	if a.resolvePendingApproval(msg.ChannelID, msg.Text) {
		return
	}
	handler(ctx, msg)
}

// toUnified converts a sync event. Returns nil for the bot's own
// messages, non-text messages, disallowed rooms/users, and events from
// before the adapter started (sync replays history).
func (a *Adapter) toUnified(evt *event.Event) *message.Unified {
	if evt.Sender == id.UserID(a.cfg.UserID) {
		return nil
	}
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return nil
	}
	if !allowed(a.cfg.AllowedRooms, evt.RoomID.String()) || !allowed(a.cfg.AllowedUsers, evt.Sender.String()) {
		return nil
	}
	ts := time.UnixMilli(evt.Timestamp)
	if !a.startTime.IsZero() && ts.Before(a.startTime) {
		return nil
	}

	threadID := ""
	if rel := content.RelatesTo; rel != nil && rel.Type == event.RelThread {
		threadID = rel.EventID.String()
	}

	return &message.Unified{
		Platform:  message.PlatformMatrix,
		ChannelID: evt.RoomID.String(),
		UserID:    evt.Sender.String(),
		Text:      strings.TrimSpace(content.Body),
		MessageID: evt.ID.String(),
		ThreadID:  threadID,
		Timestamp: ts,
		RawEvent:  evt,
	}
}

// SendMessage posts formatted text, threaded when threadID is set.
func (a *Adapter) SendMessage(ctx context.Context, channel, text, threadID string) (string, error) {
	content := &event.MessageEventContent{
		MsgType:       event.MsgText,
		Body:          text,
		Format:        event.FormatHTML,
		FormattedBody: format.HTML(text),
	}
	if threadID != "" {
		content.RelatesTo = &event.RelatesTo{
			Type:    event.RelThread,
			EventID: id.EventID(threadID),
		}
	}

	resp, err := a.client.SendMessageEvent(ctx, id.RoomID(channel), event.EventMessage, content)
	if err != nil {
		return "", fmt.Errorf("sending matrix message: %w", err)
	}
	return resp.EventID.String(), nil
}

// UpdateMessage edits a message in place with an m.replace relation.
func (a *Adapter) UpdateMessage(ctx context.Context, channel, messageID, text string) error {
	content := &event.MessageEventContent{
		MsgType:       event.MsgText,
		Body:          text,
		Format:        event.FormatHTML,
		FormattedBody: format.HTML(text),
	}
	content.SetEdit(id.EventID(messageID))

	if _, err := a.client.SendMessageEvent(ctx, id.RoomID(channel), event.EventMessage, content); err != nil {
		return fmt.Errorf("editing matrix message: %w", err)
	}
	return nil
}

// DeleteMessage redacts a message.
func (a *Adapter) DeleteMessage(ctx context.Context, channel, messageID string) error {
	if _, err := a.client.RedactEvent(ctx, id.RoomID(channel), id.EventID(messageID)); err != nil {
		return fmt.Errorf("redacting matrix message: %w", err)
	}
	return nil
}

// AddReaction annotates a message and remembers the reaction event so it
// can be redacted later.
func (a *Adapter) AddReaction(ctx context.Context, channel, messageID, emoji string) error {
	resp, err := a.client.SendReaction(ctx, id.RoomID(channel), id.EventID(messageID), emoji)
	if err != nil {
		return fmt.Errorf("sending matrix reaction: %w", err)
	}
	a.mu.Lock()
	a.reactions[reactionKey(channel, messageID, emoji)] = resp.EventID
	a.mu.Unlock()
	return nil
}

// RemoveReaction redacts a previously added reaction.
func (a *Adapter) RemoveReaction(ctx context.Context, channel, messageID, emoji string) error {
	a.mu.Lock()
	eventID, ok := a.reactions[reactionKey(channel, messageID, emoji)]
	delete(a.reactions, reactionKey(channel, messageID, emoji))
	a.mu.Unlock()
	if !ok {
		return nil
	}
	if _, err := a.client.RedactEvent(ctx, id.RoomID(channel), eventID); err != nil {
		return fmt.Errorf("redacting matrix reaction: %w", err)
	}
	return nil
}

func (a *Adapter) ConversationID(channel, threadID string) string {
	return message.ConversationID(message.PlatformMatrix, channel, threadID)
}

func reactionKey(channel, messageID, emoji string) string {
	return channel + "/" + messageID + "/" + emoji
}

func allowed(list []string, value string) bool {
	if len(list) == 0 {
		return true
	}
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
