// ABOUTME: In-memory typed hook bus with priority-ordered synchronous delivery.
// ABOUTME: Engine sessions publish here; progress sinks subscribe per execution.

package session

import (
	"context"
	"slices"
	"sync"
)

// Bus is a concrete Hooks implementation. Publish delivers to subscribers of
// the event's kind in ascending priority order (ties in subscription order),
// synchronously on the caller's goroutine.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventKind][]*busSub
}

type busSub struct {
	id       uint64
	kind     EventKind
	priority int
	fn       Handler

	bus  *Bus
	once sync.Once
}

// NewBus creates an empty hook bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventKind][]*busSub)}
}

// Subscribe registers fn for events of the given kind.
func (b *Bus) Subscribe(kind EventKind, priority int, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &busSub{
		id:       b.nextID,
		kind:     kind,
		priority: priority,
		fn:       fn,
		bus:      b,
	}

	list := append(b.subs[kind], s)
	slices.SortStableFunc(list, func(a, c *busSub) int { return a.priority - c.priority })
	b.subs[kind] = list
	return s
}

// Publish delivers ev to all current subscribers of ev.Kind.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	list := slices.Clone(b.subs[ev.Kind])
	b.mu.RUnlock()

	for _, s := range list {
		s.fn(ctx, ev)
	}
}

// Count returns the number of live subscriptions for a kind. Used by tests
// to verify that executions do not leak registrations.
func (b *Bus) Count(kind EventKind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

// Cancel removes the subscription. Safe to call multiple times.
func (s *busSub) Cancel() {
	s.once.Do(func() {
		b := s.bus
		b.mu.Lock()
		defer b.mu.Unlock()

		list := b.subs[s.kind]
		for i, cur := range list {
			if cur.id == s.id {
				b.subs[s.kind] = slices.Delete(list, i, i+1)
				break
			}
		}
	})
}
