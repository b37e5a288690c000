// ABOUTME: Reply-based approval prompts: the room answers yes or no.

package matrix

import (
	"context"
	"strings"
	"time"

	"github.com/2389/coven-connect/internal/platform"
)

const approvalTimeout = 5 * time.Minute

type approvalPrompt struct {
	id       string
	decision <-chan bool
	cleanup  func()
}

func (p *approvalPrompt) ID() string { return p.id }

// Wait deregisters the prompt on every exit. Prompts are keyed by room,
// so a stale entry would make the next ordinary "yes" in the room vanish
// into a prompt nobody is waiting on.
func (p *approvalPrompt) Wait(ctx context.Context) (bool, error) {
	if p.cleanup != nil {
		defer p.cleanup()
	}
	select {
	case decision := <-p.decision:
		return decision, nil
	case <-time.After(approvalTimeout):
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// CreateApprovalPrompt posts the question and waits for a yes/no reply in
// the room. Matrix has no interactive message elements, so plain replies
// are the decision channel; one prompt per room at a time.
func (a *Adapter) CreateApprovalPrompt(ctx context.Context, channel, description, threadID string) (platform.ApprovalPrompt, error) {
	promptID, err := a.SendMessage(ctx, channel,
		"🔐 **Approval needed**\n"+description+"\n\nReply `yes` to approve or `no` to deny.", threadID)
	if err != nil {
		return nil, err
	}

	return a.registerApproval(channel, promptID), nil
}

// registerApproval parks a decision channel for the room. The cleanup
// only deletes its own channel, so a newer prompt in the same room is
// left alone.
func (a *Adapter) registerApproval(roomID, promptID string) *approvalPrompt {
	ch := make(chan bool, 1)
	a.mu.Lock()
	a.approvals[roomID] = ch
	a.mu.Unlock()

	return &approvalPrompt{
		id:       promptID,
		decision: ch,
		cleanup: func() {
			a.mu.Lock()
			if cur, ok := a.approvals[roomID]; ok && cur == ch {
				delete(a.approvals, roomID)
			}
			a.mu.Unlock()
		},
	}
}

// resolvePendingApproval consumes a message as an approval decision when
// the room has a prompt outstanding and the text is a recognizable
// answer. Returns true when the message was consumed.
func (a *Adapter) resolvePendingApproval(roomID, text string) bool {
	decision, recognized := parseDecision(text)
	if !recognized {
		return false
	}

	a.mu.Lock()
	ch, pending := a.approvals[roomID]
	if pending {
		delete(a.approvals, roomID)
	}
	a.mu.Unlock()
	if !pending {
		return false
	}

	ch <- decision
	return true
}

func parseDecision(text string) (decision, recognized bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "y", "approve", "approved":
		return true, true
	case "no", "n", "deny", "denied":
		return false, true
	default:
		return false, false
	}
}
