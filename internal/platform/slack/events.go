// ABOUTME: Socket Mode envelope and Events API payload parsing.
// ABOUTME: Converts Slack message events into unified messages with mention gating.

package slack

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/2389/coven-connect/internal/message"
)

// envelope is the Socket Mode framing around every payload.
type envelope struct {
	Type       string          `json:"type"`
	EnvelopeID string          `json:"envelope_id"`
	Payload    json.RawMessage `json:"payload"`
}

// eventsPayload is the Events API callback body.
type eventsPayload struct {
	Event messageEvent `json:"event"`
}

// messageEvent is the subset of Slack message/app_mention events we read.
type messageEvent struct {
	Type        string `json:"type"`
	SubType     string `json:"subtype"`
	User        string `json:"user"`
	BotID       string `json:"bot_id"`
	Text        string `json:"text"`
	Channel     string `json:"channel"`
	ChannelType string `json:"channel_type"`
	TS          string `json:"ts"`
	ThreadTS    string `json:"thread_ts"`
}

// interactivePayload carries block_actions callbacks (approval buttons).
type interactivePayload struct {
	Type    string `json:"type"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
}

var mentionRe = regexp.MustCompile(`<@([A-Z0-9]+)>`)

// mentions reports whether text mentions the given user.
func mentions(text, userID string) bool {
	for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
		if m[1] == userID {
			return true
		}
	}
	return false
}

// stripMention removes mentions of the given user from text.
func stripMention(text, userID string) string {
	cleaned := strings.ReplaceAll(text, "<@"+userID+">", "")
	return strings.TrimSpace(cleaned)
}

// slackTime converts a Slack ts ("1700000000.000123") to time.Time.
func slackTime(ts string) time.Time {
	secs, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0)
}

// toUnified converts a message event. Returns nil for events the bot
// should ignore: its own messages, edits/deletes, and channel messages
// that neither mention the bot nor belong to a thread it is active in.
func (a *Adapter) toUnified(ev *messageEvent) *message.Unified {
	if ev.BotID != "" || ev.User == "" || ev.User == a.botUserID {
		return nil
	}
	if ev.SubType != "" {
		return nil
	}
	if len(a.allowedChannels) > 0 && !a.channelAllowed(ev.Channel) {
		return nil
	}

	mentioned := mentions(ev.Text, a.botUserID)
	direct := ev.ChannelType == "im"
	inActiveThread := ev.ThreadTS != "" && a.threadActive(ev.Channel, ev.ThreadTS)

	if !mentioned && !direct && !inActiveThread {
		return nil
	}
	if mentioned && ev.ThreadTS != "" {
		// A mention adopts the thread: replies there no longer need one.
		a.markThreadActive(ev.Channel, ev.ThreadTS)
	}

	return &message.Unified{
		Platform:  message.PlatformSlack,
		ChannelID: ev.Channel,
		UserID:    ev.User,
		Text:      stripMention(ev.Text, a.botUserID),
		MessageID: ev.TS,
		ThreadID:  ev.ThreadTS,
		Timestamp: slackTime(ev.TS),
		RawEvent:  ev,
	}
}

func (a *Adapter) channelAllowed(channel string) bool {
	for _, c := range a.allowedChannels {
		if c == channel {
			return true
		}
	}
	return false
}

func (a *Adapter) threadActive(channel, threadTS string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeThreads[channel+"/"+threadTS]
}

func (a *Adapter) markThreadActive(channel, threadTS string) {
	if threadTS == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.activeThreads[channel+"/"+threadTS] = true
}
