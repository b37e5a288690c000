// ABOUTME: Teams adapter: Bot Framework webhook intake and REST replies.
// ABOUTME: Validates inbound JWTs, tracks serviceUrl per conversation, ignores reactions.

package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/coven-connect/internal/message"
	"github.com/2389/coven-connect/internal/platform"
)

// Config holds what the adapter needs from the application config.
type Config struct {
	ListenAddr string
	AppID      string
	AppSecret  string
	TenantID   string

	// BotName is the display name Teams prefixes to mention text.
	BotName string
}

// Adapter serves the Bot Framework messaging webhook and replies through
// each conversation's serviceUrl.
type Adapter struct {
	cfg    Config
	logger *slog.Logger

	tokens  *tokenSource
	keyFunc jwt.Keyfunc
	http    *http.Client
	server  *http.Server

	mu          sync.Mutex
	serviceURLs map[string]string    // conversation ID → serviceUrl
	approvals   map[string]chan bool // approval ID → decision
}

// New builds the adapter. keyFunc verifies inbound webhook tokens;
// production passes a JWKS-backed func for the Bot Framework signing
// keys, tests inject their own.
func New(cfg Config, keyFunc jwt.Keyfunc, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cfg:         cfg,
		logger:      logger.With("component", "teams"),
		tokens:      newTokenSource(cfg.AppID, cfg.AppSecret, cfg.TenantID),
		keyFunc:     keyFunc,
		http:        &http.Client{Timeout: 30 * time.Second},
		serviceURLs: make(map[string]string),
		approvals:   make(map[string]chan bool),
	}
}

func (a *Adapter) Name() message.Platform { return message.PlatformTeams }

func (a *Adapter) botID() string { return "28:" + a.cfg.AppID }

func (a *Adapter) Startup(ctx context.Context) error {
	return nil
}

func (a *Adapter) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Listen serves the messaging webhook until ctx is cancelled.
func (a *Adapter) Listen(ctx context.Context, handler platform.Handler) error {
	a.server = &http.Server{Addr: a.cfg.ListenAddr, Handler: a.webhookMux(ctx, handler)}

	errc := make(chan error, 1)
	go func() { errc <- a.server.ListenAndServe() }()
	a.logger.Info("teams webhook listening", "addr", a.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("teams webhook server: %w", err)
	}
}

// webhookMux routes the Bot Framework webhook. Message handling runs on
// ctx, the adapter's lifetime context, not the request context: net/http
// cancels the request context as soon as the 200 is written, and the
// execution a webhook triggers must outlive the response.
func (a *Adapter) webhookMux(ctx context.Context, handler platform.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/messages", func(w http.ResponseWriter, r *http.Request) {
		a.handleWebhook(ctx, w, r, handler)
	})
	return mux
}

func (a *Adapter) handleWebhook(ctx context.Context, w http.ResponseWriter, r *http.Request, handler platform.Handler) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := a.validateRequest(r); err != nil {
		a.logger.Warn("rejected webhook request", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var act activity
	if err := json.Unmarshal(body, &act); err != nil {
		a.logger.Warn("malformed activity", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if act.ServiceURL != "" && act.Conversation.ID != "" {
		a.mu.Lock()
		a.serviceURLs[act.Conversation.ID] = act.ServiceURL
		a.mu.Unlock()
	}

	// Card submissions come back as message activities with a value.
	if act.Type == "message" && act.Value != nil {
		a.handleCardSubmit(act.Value)
		w.WriteHeader(http.StatusOK)
		return
	}

	if msg := a.toUnified(&act); msg != nil {
		handler(ctx, msg)
	}
	w.WriteHeader(http.StatusOK)
}

// SendMessage posts a message activity. threadID, when set, is the
// activity being replied to.
func (a *Adapter) SendMessage(ctx context.Context, channel, text, threadID string) (string, error) {
	act := activity{
		Type:      "message",
		Text:      text,
		ReplyToID: threadID,
	}
	return a.postActivity(ctx, channel, threadID, act)
}

func (a *Adapter) postActivity(ctx context.Context, channel, replyTo string, act activity) (string, error) {
	path := fmt.Sprintf("v3/conversations/%s/activities", url.PathEscape(channel))
	if replyTo != "" {
		path += "/" + url.PathEscape(replyTo)
	}

	var resp sendResponse
	if err := a.serviceCall(ctx, http.MethodPost, channel, path, act, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (a *Adapter) UpdateMessage(ctx context.Context, channel, messageID, text string) error {
	path := fmt.Sprintf("v3/conversations/%s/activities/%s",
		url.PathEscape(channel), url.PathEscape(messageID))
	act := activity{Type: "message", ID: messageID, Text: text}
	return a.serviceCall(ctx, http.MethodPut, channel, path, act, nil)
}

func (a *Adapter) DeleteMessage(ctx context.Context, channel, messageID string) error {
	path := fmt.Sprintf("v3/conversations/%s/activities/%s",
		url.PathEscape(channel), url.PathEscape(messageID))
	return a.serviceCall(ctx, http.MethodDelete, channel, path, nil, nil)
}

// AddReaction is a no-op: the Bot Framework offers no reaction API.
func (a *Adapter) AddReaction(ctx context.Context, channel, messageID, emoji string) error {
	a.logger.Debug("reactions unsupported on teams", "emoji", emoji)
	return nil
}

func (a *Adapter) RemoveReaction(ctx context.Context, channel, messageID, emoji string) error {
	return nil
}

func (a *Adapter) ConversationID(channel, threadID string) string {
	return message.ConversationID(message.PlatformTeams, channel, threadID)
}

// serviceCall issues one authenticated request against the conversation's
// serviceUrl.
func (a *Adapter) serviceCall(ctx context.Context, method, channel, path string, payload, out any) error {
	a.mu.Lock()
	base := a.serviceURLs[channel]
	a.mu.Unlock()
	if base == "" {
		return fmt.Errorf("no service URL known for conversation %s", channel)
	}

	token, err := a.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("acquiring service token: %w", err)
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling activity: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method,
		fmt.Sprintf("%s/%s", trimSlash(base), path), body)
	if err != nil {
		return fmt.Errorf("creating service request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling conversation service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("conversation service returned status %d: %s", resp.StatusCode, data)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decoding service response: %w", err)
		}
	}
	return nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
