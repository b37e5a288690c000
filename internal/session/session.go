// ABOUTME: Core session capability interfaces: execution, hook subscription, bindings.
// ABOUTME: The execution engine is opaque here; the manager only needs these contracts.

package session

import "context"

// EventKind identifies a class of progress events on a session's hook bus.
type EventKind string

const (
	EventToolStart EventKind = "tool:pre"
	EventToolEnd   EventKind = "tool:post"
	EventThinking  EventKind = "thinking"
	EventTextChunk EventKind = "text"
)

// ToolStart describes a tool invocation beginning.
type ToolStart struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolEnd describes a tool invocation finishing.
type ToolEnd struct {
	ID           string
	Name         string
	Args         map[string]any
	OK           bool
	ErrorSummary string // set when OK is false
}

// Event is one observable step of an in-flight execution. Exactly one of the
// payload fields matching Kind is set.
type Event struct {
	Kind      EventKind
	ToolStart *ToolStart
	ToolEnd   *ToolEnd
	Text      string // for EventThinking and EventTextChunk
}

// Handler receives published events. Handlers run synchronously on the
// publishing goroutine; slow handlers delay the execution they observe.
type Handler func(ctx context.Context, ev Event)

// Subscription is a live hook registration. Cancel is idempotent and must be
// called on every exit path once the subscription is no longer wanted; a
// leaked subscription double-fires on the next execution in the same session.
type Subscription interface {
	Cancel()
}

// Hooks is the typed event-subscription surface of a session.
type Hooks interface {
	Subscribe(kind EventKind, priority int, fn Handler) Subscription
}

// Session is one conversation's live execution context.
type Session interface {
	// ID returns the conversation key this session was created for.
	ID() string

	// Execute runs one prompt to completion and returns the final response
	// text. Hook events fire on the session's bus while it runs.
	Execute(ctx context.Context, prompt string) (string, error)

	// Hooks exposes the session's event bus for progress observation.
	Hooks() Hooks

	Close() error
}

// ApprovalPrompter asks a human to allow or deny an action. Implementations
// are platform-specific (Block Kit buttons, Adaptive Cards, reply prompts).
type ApprovalPrompter interface {
	RequestApproval(ctx context.Context, description string) (bool, error)
}

// DisplaySink receives structured output the engine wants shown to the user
// outside the final response. Optional.
type DisplaySink interface {
	Display(ctx context.Context, content string) error
}

// PlatformTool is a platform-specific tool mounted into the session so the
// engine can act on the originating platform (e.g. post a mid-run reply).
// Optional.
type PlatformTool interface {
	Name() string
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// Bindings are the capabilities bound into a session at creation time.
// They are bound once; a cached session keeps its original bindings.
type Bindings struct {
	Approval   ApprovalPrompter
	Display    DisplaySink
	Tool       PlatformTool
	WorkingDir string
}

// Template is the shared, one-time-prepared configuration from which
// sessions are instantiated. Immutable after construction.
type Template interface {
	NewSession(ctx context.Context, conversationID string, b Bindings) (Session, error)
}

// TemplateLoader prepares the template. Called exactly once by the manager.
type TemplateLoader func(ctx context.Context) (Template, error)
