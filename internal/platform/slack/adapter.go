// ABOUTME: Slack adapter over Socket Mode: websocket event intake, Web API sends.
// ABOUTME: Reconnects on socket loss; acknowledges every envelope before handling it.

package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/coven-connect/internal/format"
	"github.com/2389/coven-connect/internal/message"
	"github.com/2389/coven-connect/internal/platform"
)

// reconnectDelay spaces Socket Mode redials after a dropped connection.
const reconnectDelay = 2 * time.Second

// Adapter connects to Slack via Socket Mode for inbound events and the
// Web API for everything outbound.
type Adapter struct {
	api             *webClient
	allowedChannels []string
	logger          *slog.Logger

	botUserID string

	mu            sync.Mutex
	activeThreads map[string]bool        // channel/threadTS the bot participates in
	approvals     map[string]chan bool   // approval ID → decision
}

// Config holds what the adapter needs from the application config.
type Config struct {
	AppToken        string
	BotToken        string
	AllowedChannels []string
}

// New builds the adapter. Startup must be called before Listen.
func New(cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		api:             newWebClient(cfg.BotToken, cfg.AppToken),
		allowedChannels: cfg.AllowedChannels,
		logger:          logger.With("component", "slack"),
		activeThreads:   make(map[string]bool),
		approvals:       make(map[string]chan bool),
	}
}

func (a *Adapter) Name() message.Platform { return message.PlatformSlack }

// Startup authenticates and learns the bot's own user ID, needed for
// mention detection and self-message filtering.
func (a *Adapter) Startup(ctx context.Context) error {
	userID, err := a.api.authTest(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	a.botUserID = userID
	a.logger.Info("slack authenticated", "bot_user", userID)
	return nil
}

func (a *Adapter) Shutdown(ctx context.Context) error {
	return nil
}

// Listen runs the Socket Mode loop until ctx is cancelled. Each dropped
// connection gets a fresh websocket URL; Slack invalidates them on use.
func (a *Adapter) Listen(ctx context.Context, handler platform.Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := a.runSocket(ctx, handler)
		if err != nil && ctx.Err() == nil {
			a.logger.Warn("socket mode connection lost, reconnecting", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (a *Adapter) runSocket(ctx context.Context, handler platform.Handler) error {
	wsURL, err := a.api.connectionsOpen(ctx)
	if err != nil {
		return fmt.Errorf("opening socket mode connection: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dialing socket mode: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when ctx ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	a.logger.Debug("socket mode connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading socket frame: %w", err)
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			a.logger.Warn("malformed socket envelope", "error", err)
			continue
		}

		// Slack redelivers unacked envelopes; ack first, dedupe downstream.
		if env.EnvelopeID != "" {
			ack, _ := json.Marshal(map[string]string{"envelope_id": env.EnvelopeID})
			if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
				a.logger.Warn("could not ack envelope", "error", err)
			}
		}

		switch env.Type {
		case "events_api":
			a.handleEventsAPI(ctx, env.Payload, handler)
		case "interactive":
			a.handleInteractive(env.Payload)
		case "disconnect":
			return errors.New("server requested disconnect")
		case "hello":
			// Connection established.
		}
	}
}

func (a *Adapter) handleEventsAPI(ctx context.Context, payload json.RawMessage, handler platform.Handler) {
	var body eventsPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		a.logger.Warn("malformed events payload", "error", err)
		return
	}
	if body.Event.Type != "message" && body.Event.Type != "app_mention" {
		return
	}
	// app_mention duplicates the message event when both are subscribed;
	// the dispatcher's dedupe keys on ts, so both deliveries collapse.
	msg := a.toUnified(&body.Event)
	if msg == nil {
		return
	}
	handler(ctx, msg)
}

func (a *Adapter) handleInteractive(payload json.RawMessage) {
	var body interactivePayload
	if err := json.Unmarshal(payload, &body); err != nil {
		a.logger.Warn("malformed interactive payload", "error", err)
		return
	}
	if body.Type != "block_actions" {
		return
	}
	for _, action := range body.Actions {
		approvalID, decision, ok := parseApprovalAction(action.ActionID)
		if !ok {
			continue
		}
		a.resolveApproval(approvalID, decision)
	}
}

// SendMessage posts markdown text, converted to mrkdwn, and returns the
// message ts. The bot becomes active in whichever thread it posts to.
func (a *Adapter) SendMessage(ctx context.Context, channel, text, threadID string) (string, error) {
	ts, err := a.api.postMessage(ctx, channel, format.Mrkdwn(text), threadID, nil)
	if err != nil {
		return "", err
	}
	if threadID != "" {
		a.markThreadActive(channel, threadID)
	} else {
		// A top-level post starts a thread rooted at the new message.
		a.markThreadActive(channel, ts)
	}
	return ts, nil
}

func (a *Adapter) UpdateMessage(ctx context.Context, channel, messageID, text string) error {
	return a.api.updateMessage(ctx, channel, messageID, format.Mrkdwn(text))
}

func (a *Adapter) DeleteMessage(ctx context.Context, channel, messageID string) error {
	return a.api.deleteMessage(ctx, channel, messageID)
}

func (a *Adapter) AddReaction(ctx context.Context, channel, messageID, emoji string) error {
	return a.api.addReaction(ctx, channel, messageID, emoji)
}

func (a *Adapter) RemoveReaction(ctx context.Context, channel, messageID, emoji string) error {
	return a.api.removeReaction(ctx, channel, messageID, emoji)
}

func (a *Adapter) ConversationID(channel, threadID string) string {
	return message.ConversationID(message.PlatformSlack, channel, threadID)
}
