// Package session provides lifecycle and concurrency control for
// per-conversation AI execution state.
//
// # Model
//
// Every logical conversation (a channel, or a thread within a channel) maps
// to one Session created from a shared, one-time-prepared Template. The
// Manager owns both registries:
//
//   - conversation key → Session (created lazily on first message)
//   - conversation key → *sync.Mutex (the execution lock)
//
// The invariant the Manager exists to hold: at most one execution runs per
// conversation at any instant, and two concurrent first-messages for one
// conversation never create two sessions.
//
// # Hooks
//
// Sessions expose a typed event bus (Hooks). Observers subscribe per
// execution and must cancel on every exit path:
//
//	sub := sess.Hooks().Subscribe(session.EventToolStart, 50, onStart)
//	defer sub.Cancel()
//	result, err := sess.Execute(ctx, prompt)
//
// A leaked subscription double-fires on the next message in the same
// session, which is why Cancel is idempotent and deferred.
//
// # Capabilities
//
// Platform-specific capabilities (approval prompts, display sinks, platform
// tools) are bound into a session once, at creation, via Bindings. Cached
// sessions keep their original bindings.
package session
