// Package dispatch connects platform adapters to sessions. For each
// inbound message it drops duplicates, intercepts bang-commands, resolves
// the conversation's working directory, obtains the conversation's
// session and lock from the session manager, renders progress while the
// execution runs, and sends the final response back where the message
// came from.
//
// Two ordering guarantees hold: messages in different conversations run
// concurrently, and messages in the same conversation run one at a time
// in lock-acquisition order. Everything acquired on the way in (lock,
// hook subscriptions, progress sink, loading reaction) is released on
// every exit path.
package dispatch
