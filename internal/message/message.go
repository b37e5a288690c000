// ABOUTME: Platform-agnostic inbound message representation and conversation identity.
// ABOUTME: ConversationID is the stable key that routes messages to sessions.

package message

import (
	"strings"
	"time"
)

// Platform identifies the chat platform a message came from.
type Platform string

const (
	PlatformSlack  Platform = "slack"
	PlatformTeams  Platform = "teams"
	PlatformMatrix Platform = "matrix"
)

// Unified is the platform-agnostic representation of one inbound event.
// Adapters construct exactly one per platform event; it is never mutated
// after construction.
type Unified struct {
	Platform  Platform
	ChannelID string
	UserID    string
	Text      string
	MessageID string
	ThreadID  string // empty for top-level messages
	Timestamp time.Time

	// RawEvent carries the original platform payload for adapter-internal
	// use only. Nothing outside the owning adapter may inspect it.
	RawEvent any
}

// Threaded reports whether the message occurred inside a reply thread.
func (m *Unified) Threaded() bool {
	return m.ThreadID != ""
}

// ConversationID returns the stable session key for this message.
func (m *Unified) ConversationID() string {
	return ConversationID(m.Platform, m.ChannelID, m.ThreadID)
}

// ConversationID derives the stable conversation key for a (platform,
// channel, thread) tuple: "{platform}-{channel}" for top-level conversations,
// "{platform}-{channel}-{thread}" inside a thread.
//
// Platform-issued IDs may themselves contain "-", so each segment is escaped
// before joining: distinct tuples can never produce the same key.
func ConversationID(platform Platform, channelID, threadID string) string {
	if threadID == "" {
		return string(platform) + "-" + escapeSegment(channelID)
	}
	return string(platform) + "-" + escapeSegment(channelID) + "-" + escapeSegment(threadID)
}

// escapeSegment makes a platform ID safe to embed between "-" separators.
// "%" is the escape character, so it is escaped first.
func escapeSegment(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	return strings.ReplaceAll(s, "-", "%2D")
}
