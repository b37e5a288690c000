// ABOUTME: Tests for the dedupe cache used to prevent duplicate event processing.
// ABOUTME: Validates TTL expiration, size limits, eviction, lazy sweeping, and atomicity.

package dedupe

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/2389/coven-connect/internal/message"
)

// advanceClock gives a cache a controllable clock and returns the advance func.
func advanceClock(c *Cache) func(d time.Duration) {
	now := time.Now()
	c.now = func() time.Time { return now }
	return func(d time.Duration) { now = now.Add(d) }
}

func TestCheckAndMark_NewKey(t *testing.T) {
	cache := New(5*time.Minute, 100)

	assert.False(t, cache.CheckAndMark("new-key"), "first sighting is not a duplicate")
	assert.True(t, cache.CheckAndMark("new-key"), "second sighting is")
}

func TestCheckAndMark_Expiry(t *testing.T) {
	cache := New(5*time.Minute, 100)
	advance := advanceClock(cache)

	assert.False(t, cache.CheckAndMark("k"))
	advance(4 * time.Minute)
	assert.True(t, cache.CheckAndMark("k"), "still within TTL")

	// The duplicate mark refreshed the timestamp.
	advance(4 * time.Minute)
	assert.True(t, cache.CheckAndMark("k"))

	advance(6 * time.Minute)
	assert.False(t, cache.CheckAndMark("k"), "expired keys are new again")
}

func TestCheckAndMark_EvictsOldestAtCapacity(t *testing.T) {
	cache := New(5*time.Minute, 3)

	cache.CheckAndMark("first")
	cache.CheckAndMark("second")
	cache.CheckAndMark("third")
	cache.CheckAndMark("fourth")

	assert.False(t, cache.CheckAndMark("first"), "oldest was evicted")
	assert.True(t, cache.CheckAndMark("second"))
	assert.True(t, cache.CheckAndMark("third"))
	assert.True(t, cache.CheckAndMark("fourth"))
	assert.Equal(t, 3, cache.Len())
}

func TestCheckAndMark_DuplicateRefreshesEvictionOrder(t *testing.T) {
	cache := New(5*time.Minute, 3)

	cache.CheckAndMark("a")
	cache.CheckAndMark("b")
	cache.CheckAndMark("c")
	cache.CheckAndMark("a") // duplicate, moves to back

	cache.CheckAndMark("d") // evicts b, the now-oldest

	assert.True(t, cache.CheckAndMark("a"))
	assert.False(t, cache.CheckAndMark("b"))
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	cache := New(time.Minute, 100)
	advance := advanceClock(cache)

	cache.CheckAndMark("a")
	cache.CheckAndMark("b")
	cache.CheckAndMark("c")
	assert.Equal(t, 3, cache.Len())

	advance(2 * time.Minute)
	cache.CheckAndMark("fresh")

	assert.Equal(t, 1, cache.Len(), "insert sweeps out expired entries")
}

func TestCheckAndMark_Atomic(t *testing.T) {
	cache := New(5*time.Minute, 100)

	const goroutines = 100
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			if !cache.CheckAndMark("contested-key") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins, "exactly one caller may win the race")
}

func TestKey(t *testing.T) {
	a := &message.Unified{Platform: message.PlatformSlack, ChannelID: "C1", MessageID: "1000.1"}
	b := &message.Unified{Platform: message.PlatformSlack, ChannelID: "C1", MessageID: "1000.1"}
	c := &message.Unified{Platform: message.PlatformTeams, ChannelID: "C1", MessageID: "1000.1"}

	assert.Equal(t, Key(a), Key(b), "same event, same key")
	assert.NotEqual(t, Key(a), Key(c), "platform is part of the identity")
}
