// Package platform defines the adapter contract between chat platforms and
// the connector core.
//
// Each supported platform (slack, teams, matrix subpackages) implements
// Adapter: event listening with conversion to unified messages, the five
// message primitives (send, update, delete, react, approval prompt), and
// conversation-key derivation. Everything above the adapter — dispatch,
// session management, progress rendering — is platform-agnostic and depends
// only on these interfaces.
package platform
