// ABOUTME: Tests for the session manager registries and concurrency contract.
// ABOUTME: Covers init gating, session reuse, atomic create, close-all, and create failure retry.

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession counts executions and records concurrent entry.
type fakeSession struct {
	id       string
	bus      *Bus
	closed   atomic.Bool
	closeErr error

	executing atomic.Int32
	maxActive atomic.Int32
	execCount atomic.Int32
}

func (f *fakeSession) ID() string   { return f.id }
func (f *fakeSession) Hooks() Hooks { return f.bus }

func (f *fakeSession) Execute(ctx context.Context, prompt string) (string, error) {
	cur := f.executing.Add(1)
	defer f.executing.Add(-1)
	for {
		prev := f.maxActive.Load()
		if cur <= prev || f.maxActive.CompareAndSwap(prev, cur) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	f.execCount.Add(1)
	return "echo: " + prompt, nil
}

func (f *fakeSession) Close() error {
	f.closed.Store(true)
	return f.closeErr
}

// fakeTemplate counts session creations.
type fakeTemplate struct {
	created atomic.Int32
	fail    atomic.Bool
}

func (f *fakeTemplate) NewSession(ctx context.Context, conversationID string, b Bindings) (Session, error) {
	if f.fail.Load() {
		return nil, errors.New("provider unreachable")
	}
	f.created.Add(1)
	return &fakeSession{id: conversationID, bus: NewBus()}, nil
}

func newTestManager(t *testing.T) (*Manager, *fakeTemplate) {
	t.Helper()
	tmpl := &fakeTemplate{}
	m := NewManager(func(ctx context.Context) (Template, error) { return tmpl, nil }, nil)
	return m, tmpl
}

func TestManager_GetOrCreateBeforeInitialize(t *testing.T) {
	m, _ := newTestManager(t)

	_, _, err := m.GetOrCreate(context.Background(), "slack-C1", Bindings{})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestManager_InitializeFailureIsRetryable(t *testing.T) {
	calls := 0
	m := NewManager(func(ctx context.Context) (Template, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("bundle manifest missing")
		}
		return &fakeTemplate{}, nil
	}, nil)

	err := m.Initialize(context.Background())
	var tmplErr *TemplateError
	require.ErrorAs(t, err, &tmplErr)

	// Second attempt succeeds; further calls are no-ops.
	require.NoError(t, m.Initialize(context.Background()))
	require.NoError(t, m.Initialize(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestManager_SessionReuse(t *testing.T) {
	m, tmpl := newTestManager(t)
	require.NoError(t, m.Initialize(context.Background()))

	s1, l1, err := m.GetOrCreate(context.Background(), "slack-C1", Bindings{})
	require.NoError(t, err)
	s2, l2, err := m.GetOrCreate(context.Background(), "slack-C1", Bindings{})
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Same(t, l1, l2)
	assert.Equal(t, int32(1), tmpl.created.Load())
}

func TestManager_DistinctConversationsGetDistinctSessions(t *testing.T) {
	m, tmpl := newTestManager(t)
	require.NoError(t, m.Initialize(context.Background()))

	s1, _, err := m.GetOrCreate(context.Background(), "slack-C1", Bindings{})
	require.NoError(t, err)
	s2, _, err := m.GetOrCreate(context.Background(), "slack-C1-T1", Bindings{})
	require.NoError(t, err)

	assert.NotSame(t, s1, s2)
	assert.Equal(t, int32(2), tmpl.created.Load())
	assert.Equal(t, 2, m.Len())
}

func TestManager_ConcurrentFirstMessagesCreateOneSession(t *testing.T) {
	m, tmpl := newTestManager(t)
	require.NoError(t, m.Initialize(context.Background()))

	const n = 32
	var wg sync.WaitGroup
	sessions := make([]Session, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, _, err := m.GetOrCreate(context.Background(), "teams-convo", Bindings{})
			assert.NoError(t, err)
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), tmpl.created.Load())
	for i := 1; i < n; i++ {
		assert.Same(t, sessions[0], sessions[i])
	}
}

func TestManager_AtMostOneExecutionPerConversation(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Initialize(context.Background()))

	const n = 16
	var wg sync.WaitGroup
	var completed atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, lock, err := m.GetOrCreate(context.Background(), "slack-C9", Bindings{})
			require.NoError(t, err)

			lock.Lock()
			defer lock.Unlock()
			_, err = sess.Execute(context.Background(), fmt.Sprintf("msg %d", i))
			assert.NoError(t, err)
			completed.Add(1)
		}(i)
	}
	wg.Wait()

	sess, _, err := m.GetOrCreate(context.Background(), "slack-C9", Bindings{})
	require.NoError(t, err)
	fs := sess.(*fakeSession)

	// All messages completed, and never more than one at a time.
	assert.Equal(t, int32(n), completed.Load())
	assert.Equal(t, int32(n), fs.execCount.Load())
	assert.Equal(t, int32(1), fs.maxActive.Load())
}

func TestManager_CreateFailureDoesNotPoisonConversation(t *testing.T) {
	m, tmpl := newTestManager(t)
	require.NoError(t, m.Initialize(context.Background()))

	tmpl.fail.Store(true)
	_, _, err := m.GetOrCreate(context.Background(), "matrix-room", Bindings{})
	var createErr *CreateError
	require.ErrorAs(t, err, &createErr)
	assert.Equal(t, "matrix-room", createErr.ConversationID)
	assert.Equal(t, 0, m.Len())

	// Next message for the same conversation retries from scratch.
	tmpl.fail.Store(false)
	sess, _, err := m.GetOrCreate(context.Background(), "matrix-room", Bindings{})
	require.NoError(t, err)
	assert.Equal(t, "matrix-room", sess.ID())
}

func TestManager_CreateFailureDoesNotAffectOtherConversations(t *testing.T) {
	m, tmpl := newTestManager(t)
	require.NoError(t, m.Initialize(context.Background()))

	_, _, err := m.GetOrCreate(context.Background(), "slack-ok", Bindings{})
	require.NoError(t, err)

	tmpl.fail.Store(true)
	_, _, err = m.GetOrCreate(context.Background(), "slack-bad", Bindings{})
	require.Error(t, err)

	// The healthy conversation is untouched.
	s, _, err := m.GetOrCreate(context.Background(), "slack-ok", Bindings{})
	require.NoError(t, err)
	assert.Equal(t, "slack-ok", s.ID())
}

func TestManager_CloseAll(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Initialize(context.Background()))

	s1, _, err := m.GetOrCreate(context.Background(), "slack-C1", Bindings{})
	require.NoError(t, err)
	s2, _, err := m.GetOrCreate(context.Background(), "slack-C2", Bindings{})
	require.NoError(t, err)

	// One close failing must not stop the others.
	s1.(*fakeSession).closeErr = errors.New("flush failed")

	m.CloseAll()

	assert.True(t, s1.(*fakeSession).closed.Load())
	assert.True(t, s2.(*fakeSession).closed.Load())
	assert.Equal(t, 0, m.Len())

	// Manager requires re-initialization after shutdown.
	_, _, err = m.GetOrCreate(context.Background(), "slack-C1", Bindings{})
	assert.ErrorIs(t, err, ErrNotInitialized)
}
