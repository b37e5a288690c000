// ABOUTME: Session template and session implementation backed by the execution engine.
// ABOUTME: Streams engine events onto the session hook bus and services approvals and tools.

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/coven-connect/internal/session"
)

// Template creates engine-backed sessions from a loaded bundle. One
// Template serves the whole process; it is what the session manager's
// loader produces during initialization.
type Template struct {
	bundle *Bundle
	client *client
	logger *slog.Logger
}

// NewTemplate wraps a validated bundle.
func NewTemplate(b *Bundle, logger *slog.Logger) *Template {
	if logger == nil {
		logger = slog.Default()
	}
	return &Template{
		bundle: b,
		client: newClient(b.Engine.URL, b.APIKey(), b.Engine.Timeout.Duration),
		logger: logger.With("component", "engine"),
	}
}

// Loader returns a session.TemplateLoader that resolves and loads the
// bundle manifest. Load failures are returned, not cached, so a later
// initialization attempt can succeed after the manifest is fixed.
func Loader(explicitPath string, logger *slog.Logger) session.TemplateLoader {
	return func(ctx context.Context) (session.Template, error) {
		path, err := ResolveBundlePath(explicitPath)
		if err != nil {
			return nil, err
		}
		b, err := LoadBundle(path)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			logger.Info("loaded bundle", "name", b.Name, "path", path, "engine", b.Engine.URL)
		}
		return NewTemplate(b, logger), nil
	}
}

// Ping checks that the engine endpoint answers.
func (t *Template) Ping(ctx context.Context) error {
	return t.client.Ping(ctx)
}

// NewSession builds an isolated session for one conversation.
func (t *Template) NewSession(ctx context.Context, conversationID string, b session.Bindings) (session.Session, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation ID is empty")
	}
	return &engineSession{
		id:       conversationID,
		template: t,
		bindings: b,
		hooks:    session.NewBus(),
		logger:   t.logger.With("conversation", conversationID),
	}, nil
}

// engineSession holds one conversation's context. Engine-side state is
// keyed by the session ID; the connector keeps only the hook bus and the
// platform bindings.
type engineSession struct {
	id       string
	template *Template
	bindings session.Bindings
	hooks    *session.Bus
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (s *engineSession) ID() string { return s.id }

func (s *engineSession) Hooks() session.Hooks { return s.hooks }

// Execute runs one prompt to completion. The caller serializes Execute
// calls per conversation; this method assumes it is not invoked
// concurrently on the same session.
func (s *engineSession) Execute(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", fmt.Errorf("session %s is closed", s.id)
	}
	s.mu.Unlock()

	bundle := s.template.bundle
	req := executeRequest{
		SessionID:    s.id,
		Prompt:       prompt,
		System:       bundle.Prompt.System,
		Model:        bundle.Engine.Model,
		WorkingDir:   s.bindings.WorkingDir,
		AllowedTools: bundle.Tools.Allowed,
	}

	// Open tool invocations, so tool_result events can be reported with
	// the tool's name and arguments.
	pending := make(map[string]toolUseData)

	result, err := s.template.client.Execute(ctx, req, func(ev streamEvent) {
		s.handleEvent(ctx, ev, pending)
	})
	if err != nil {
		return "", fmt.Errorf("executing prompt: %w", err)
	}
	return result, nil
}

// handleEvent translates one engine event into hook publications and, for
// approvals and connector-side tools, drives the round trip back to the
// engine. Events are handled synchronously in stream order.
func (s *engineSession) handleEvent(ctx context.Context, ev streamEvent, pending map[string]toolUseData) {
	switch ev.Type {
	case streamThinking:
		var data textEventData
		if err := json.Unmarshal([]byte(ev.Data), &data); err != nil {
			s.logger.Warn("malformed thinking event", "error", err)
			return
		}
		s.hooks.Publish(ctx, session.Event{Kind: session.EventThinking, Text: data.Text})

	case streamText:
		var data textEventData
		if err := json.Unmarshal([]byte(ev.Data), &data); err != nil {
			s.logger.Warn("malformed text event", "error", err)
			return
		}
		s.hooks.Publish(ctx, session.Event{Kind: session.EventTextChunk, Text: data.Text})

	case streamToolUse:
		var data toolUseData
		if err := json.Unmarshal([]byte(ev.Data), &data); err != nil {
			s.logger.Warn("malformed tool_use event", "error", err)
			return
		}
		pending[data.ID] = data
		s.hooks.Publish(ctx, session.Event{
			Kind: session.EventToolStart,
			ToolStart: &session.ToolStart{
				ID:   data.ID,
				Name: data.Name,
				Args: data.Args,
			},
		})
		if s.bindings.Tool != nil && data.Name == s.bindings.Tool.Name() {
			s.runConnectorTool(ctx, data)
		}

	case streamToolResult:
		var data toolResultData
		if err := json.Unmarshal([]byte(ev.Data), &data); err != nil {
			s.logger.Warn("malformed tool_result event", "error", err)
			return
		}
		use := pending[data.ID]
		delete(pending, data.ID)
		s.hooks.Publish(ctx, session.Event{
			Kind: session.EventToolEnd,
			ToolEnd: &session.ToolEnd{
				ID:           data.ID,
				Name:         use.Name,
				Args:         use.Args,
				OK:           !data.IsError,
				ErrorSummary: data.Error,
			},
		})

	case streamApproval:
		var data approvalRequestData
		if err := json.Unmarshal([]byte(ev.Data), &data); err != nil {
			s.logger.Warn("malformed approval event", "error", err)
			return
		}
		s.resolveApproval(ctx, data)

	case streamFile:
		var data fileEventData
		if err := json.Unmarshal([]byte(ev.Data), &data); err != nil {
			s.logger.Warn("malformed file event", "error", err)
			return
		}
		if s.bindings.Display != nil {
			content := data.Content
			if data.Name != "" {
				content = fmt.Sprintf("📄 **%s**\n```\n%s\n```", data.Name, data.Content)
			}
			if err := s.bindings.Display.Display(ctx, content); err != nil {
				s.logger.Warn("could not display file", "name", data.Name, "error", err)
			}
		}
	}
}

// resolveApproval asks the platform and posts the decision back. Any
// failure on either leg denies: the engine must never proceed on an
// ambiguous answer.
func (s *engineSession) resolveApproval(ctx context.Context, data approvalRequestData) {
	approved := false
	if s.bindings.Approval != nil {
		decision, err := s.bindings.Approval.RequestApproval(ctx, data.Description)
		if err != nil {
			s.logger.Warn("approval prompt failed, denying", "approval", data.ID, "error", err)
		} else {
			approved = decision
		}
	}
	if err := s.template.client.PostDecision(ctx, data.ID, approved); err != nil {
		s.logger.Error("could not post approval decision", "approval", data.ID, "error", err)
	}
}

// runConnectorTool executes a platform-provided tool locally and returns
// its output to the engine.
func (s *engineSession) runConnectorTool(ctx context.Context, use toolUseData) {
	output, err := s.bindings.Tool.Invoke(ctx, use.Args)
	failed := err != nil
	if failed {
		output = err.Error()
	}
	if postErr := s.template.client.PostToolResult(ctx, use.ID, output, failed); postErr != nil {
		s.logger.Error("could not post tool result", "tool", use.Name, "error", postErr)
	}
}

// Close marks the session unusable. Engine-side state expires on its own;
// there is nothing to tear down remotely.
func (s *engineSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
