// ABOUTME: Bot Framework activity schema and conversion to unified messages.

package teams

import (
	"regexp"
	"strings"
	"time"

	"github.com/2389/coven-connect/internal/message"
)

// activity is the subset of the Bot Framework activity schema we use.
type activity struct {
	Type         string         `json:"type"`
	ID           string         `json:"id,omitempty"`
	Timestamp    time.Time      `json:"timestamp,omitempty"`
	ServiceURL   string         `json:"serviceUrl,omitempty"`
	Text         string         `json:"text,omitempty"`
	ReplyToID    string         `json:"replyToId,omitempty"`
	From         account        `json:"from,omitempty"`
	Recipient    account        `json:"recipient,omitempty"`
	Conversation conversationID `json:"conversation,omitempty"`
	Attachments  []attachment   `json:"attachments,omitempty"`
	Value        map[string]any `json:"value,omitempty"`
}

type account struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type conversationID struct {
	ID string `json:"id,omitempty"`
}

type attachment struct {
	ContentType string `json:"contentType"`
	Content     any    `json:"content"`
}

// sendResponse is the body the service returns for a created activity.
type sendResponse struct {
	ID string `json:"id"`
}

// htmlTagRe strips the <at>…</at> mention markup Teams injects.
var htmlTagRe = regexp.MustCompile(`</?at>`)

// toUnified converts an inbound message activity. Returns nil for
// non-message activities and the bot's own echoes.
func (a *Adapter) toUnified(act *activity) *message.Unified {
	if act.Type != "message" || act.From.ID == "" {
		return nil
	}
	if act.From.ID == a.botID() {
		return nil
	}

	text := htmlTagRe.ReplaceAllString(act.Text, "")
	// The bot's display name remains after tag stripping.
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), a.cfg.BotName))

	return &message.Unified{
		Platform:  message.PlatformTeams,
		ChannelID: act.Conversation.ID,
		UserID:    act.From.ID,
		Text:      text,
		MessageID: act.ID,
		ThreadID:  act.ReplyToID,
		Timestamp: act.Timestamp,
		RawEvent:  act,
	}
}
