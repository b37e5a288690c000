// ABOUTME: Tests for Matrix event conversion, filtering, and reply-based approvals.

package matrix

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-connect/internal/message"
)

func testAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := New(Config{
		Homeserver:  "https://matrix.example.com",
		UserID:      "@bot:example.com",
		AccessToken: "syt-test",
	}, nil)
	require.NoError(t, err)
	return a
}

func textEvent(sender, room, body, eventID string, ts time.Time) *event.Event {
	evt := &event.Event{
		Sender:    id.UserID(sender),
		RoomID:    id.RoomID(room),
		ID:        id.EventID(eventID),
		Timestamp: ts.UnixMilli(),
	}
	evt.Content.Parsed = &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    body,
	}
	return evt
}

func TestToUnified_TextMessage(t *testing.T) {
	a := testAdapter(t)

	msg := a.toUnified(textEvent("@user:example.com", "!room:example.com", "hello bot", "$ev1", time.Now()))
	require.NotNil(t, msg)
	assert.Equal(t, message.PlatformMatrix, msg.Platform)
	assert.Equal(t, "!room:example.com", msg.ChannelID)
	assert.Equal(t, "hello bot", msg.Text)
	assert.Equal(t, "$ev1", msg.MessageID)
	assert.Equal(t, "matrix-!room:example.com", msg.ConversationID())
}

func TestToUnified_ThreadRelation(t *testing.T) {
	a := testAdapter(t)

	evt := textEvent("@user:example.com", "!room:example.com", "in thread", "$ev2", time.Now())
	evt.Content.Parsed.(*event.MessageEventContent).RelatesTo = &event.RelatesTo{
		Type:    event.RelThread,
		EventID: "$root",
	}

	msg := a.toUnified(evt)
	require.NotNil(t, msg)
	assert.Equal(t, "$root", msg.ThreadID)
	assert.Equal(t, "matrix-!room:example.com-$root", msg.ConversationID())
}

func TestToUnified_Filters(t *testing.T) {
	a := testAdapter(t)
	now := time.Now()

	// Own messages.
	assert.Nil(t, a.toUnified(textEvent("@bot:example.com", "!room:example.com", "self", "$e1", now)))

	// Non-text content.
	evt := textEvent("@user:example.com", "!room:example.com", "img", "$e2", now)
	evt.Content.Parsed.(*event.MessageEventContent).MsgType = event.MsgImage
	assert.Nil(t, a.toUnified(evt))

	// Replayed history from before startup.
	a.startTime = now
	assert.Nil(t, a.toUnified(textEvent("@user:example.com", "!room:example.com", "old", "$e3", now.Add(-time.Hour))))
}

func TestToUnified_AllowLists(t *testing.T) {
	a, err := New(Config{
		Homeserver:   "https://matrix.example.com",
		UserID:       "@bot:example.com",
		AccessToken:  "syt-test",
		AllowedRooms: []string{"!ok:example.com"},
		AllowedUsers: []string{"@friend:example.com"},
	}, nil)
	require.NoError(t, err)
	now := time.Now()

	require.NotNil(t, a.toUnified(textEvent("@friend:example.com", "!ok:example.com", "hi", "$e1", now)))
	assert.Nil(t, a.toUnified(textEvent("@friend:example.com", "!other:example.com", "hi", "$e2", now)))
	assert.Nil(t, a.toUnified(textEvent("@stranger:example.com", "!ok:example.com", "hi", "$e3", now)))
}

func TestParseDecision(t *testing.T) {
	for _, yes := range []string{"yes", "Yes", " y ", "approve", "APPROVED"} {
		decision, ok := parseDecision(yes)
		assert.True(t, ok, yes)
		assert.True(t, decision, yes)
	}
	for _, no := range []string{"no", "N", "deny", "denied"} {
		decision, ok := parseDecision(no)
		assert.True(t, ok, no)
		assert.False(t, decision, no)
	}
	_, ok := parseDecision("maybe later")
	assert.False(t, ok)
}

func TestResolvePendingApproval(t *testing.T) {
	a := testAdapter(t)

	ch := make(chan bool, 1)
	a.mu.Lock()
	a.approvals["!room:example.com"] = ch
	a.mu.Unlock()

	// Unrelated text is not consumed.
	assert.False(t, a.resolvePendingApproval("!room:example.com", "what's the plan?"))

	// A decision is consumed and delivered.
	assert.True(t, a.resolvePendingApproval("!room:example.com", "yes"))
	assert.True(t, <-ch)

	// No prompt pending anymore.
	assert.False(t, a.resolvePendingApproval("!room:example.com", "yes"))

	// Rooms without prompts never consume decisions.
	assert.False(t, a.resolvePendingApproval("!other:example.com", "no"))
}

func TestApprovalPrompt_ContextCancel(t *testing.T) {
	ch := make(chan bool, 1)
	prompt := &approvalPrompt{id: "$prompt", decision: ch}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	decision, err := prompt.Wait(ctx)
	assert.Error(t, err)
	assert.False(t, decision)
}

func TestConversationID(t *testing.T) {
	a := testAdapter(t)
	assert.Equal(t, "matrix-!r:x.com", a.ConversationID("!r:x.com", ""))
	assert.Equal(t, "matrix-!r:x.com-$root", a.ConversationID("!r:x.com", "$root"))
}

func TestAbandonedApprovalDoesNotSwallowReplies(t *testing.T) {
	a := testAdapter(t)

	prompt := a.registerApproval("!room:example.com", "$p1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := prompt.Wait(ctx)
	require.Error(t, err)

	assert.False(t, a.resolvePendingApproval("!room:example.com", "yes"),
		"a yes after the prompt is gone must be dispatched as an ordinary message")
}

func TestAbandonedApprovalCleanupSparesNewerPrompt(t *testing.T) {
	a := testAdapter(t)

	old := a.registerApproval("!room:example.com", "$p1")
	fresh := a.registerApproval("!room:example.com", "$p2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	old.Wait(ctx)

	require.True(t, a.resolvePendingApproval("!room:example.com", "yes"),
		"the newer prompt must still receive decisions")

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	decision, err := fresh.Wait(waitCtx)
	require.NoError(t, err)
	assert.True(t, decision)
}
