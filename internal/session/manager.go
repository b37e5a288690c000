// ABOUTME: Manager owns the conversation→session and conversation→lock registries.
// ABOUTME: Guarantees one template prep, one session per conversation, one execution at a time.

package session

import (
	"context"
	"log/slog"
	"sync"
)

// Manager caches one Session and one execution lock per conversation key.
//
// Two locks with different jobs:
//   - mu guards the registries themselves so concurrent first-messages for
//     one conversation cannot create two sessions.
//   - the per-conversation *sync.Mutex returned from GetOrCreate serializes
//     executions within that conversation. Callers acquire it around
//     Execute and must release it on every exit path.
//
// Sessions and locks are never evicted; they live until CloseAll. Lock
// acquisition is Go's sync.Mutex discipline: not strictly FIFO, but
// starvation-free, so a burst of messages in one conversation all complete.
type Manager struct {
	loader TemplateLoader
	logger *slog.Logger

	mu          sync.Mutex
	template    Template
	initialized bool
	sessions    map[string]Session
	locks       map[string]*sync.Mutex
}

// NewManager creates a manager. Initialize must be called before GetOrCreate.
func NewManager(loader TemplateLoader, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		loader:   loader,
		logger:   logger.With("component", "session"),
		sessions: make(map[string]Session),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Initialize prepares the shared template exactly once. Calling it again
// after success is a no-op; after failure it retries, so a process-level
// supervisor may attempt recovery.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	m.logger.Info("preparing session template")
	tmpl, err := m.loader(ctx)
	if err != nil {
		return &TemplateError{Err: err}
	}

	m.template = tmpl
	m.initialized = true
	m.logger.Info("session template prepared")
	return nil
}

// GetOrCreate returns the cached session and lock for conversationID,
// creating both on first sight. The whole lookup-or-create sequence is
// atomic with respect to other callers: a concurrent first-message for the
// same conversation gets the session created here, never a second one.
//
// Bindings are only consulted on creation; a cached session keeps the
// capabilities it was created with.
func (m *Manager) GetOrCreate(ctx context.Context, conversationID string, b Bindings) (Session, *sync.Mutex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, nil, ErrNotInitialized
	}

	if sess, ok := m.sessions[conversationID]; ok {
		return sess, m.locks[conversationID], nil
	}

	m.logger.Info("creating session",
		"conversation_id", conversationID,
		"working_dir", b.WorkingDir)

	sess, err := m.template.NewSession(ctx, conversationID, b)
	if err != nil {
		// Nothing is cached on failure: the next message for this
		// conversation retries creation from scratch.
		return nil, nil, &CreateError{ConversationID: conversationID, Err: err}
	}

	lock := &sync.Mutex{}
	m.sessions[conversationID] = sess
	m.locks[conversationID] = lock

	return sess, lock, nil
}

// Len returns the number of cached sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll closes every cached session best-effort and clears the
// registries. Intended for graceful shutdown only.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("closing all sessions", "count", len(m.sessions))
	for id, sess := range m.sessions {
		if err := sess.Close(); err != nil {
			m.logger.Warn("error closing session", "conversation_id", id, "error", err)
		}
	}

	m.sessions = make(map[string]Session)
	m.locks = make(map[string]*sync.Mutex)
	m.initialized = false
	m.template = nil
}
