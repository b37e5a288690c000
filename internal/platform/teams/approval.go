// ABOUTME: Adaptive Card approval prompts resolved through card submit activities.

package teams

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-connect/internal/platform"
)

const approvalTimeout = 5 * time.Minute

type approvalPrompt struct {
	id       string
	decision <-chan bool
	cleanup  func()
}

func (p *approvalPrompt) ID() string { return p.id }

// Wait deregisters the prompt on every exit so abandoned prompts do not
// accumulate in the adapter's map.
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

// CreateApprovalPrompt posts an Adaptive Card with Approve/Deny submit
// actions. The submitted value carries the prompt ID back.
func (a *Adapter) CreateApprovalPrompt(ctx context.Context, channel, description, threadID string) (platform.ApprovalPrompt, error) {
	id := uuid.NewString()

	card := map[string]any{
		"type":    "AdaptiveCard",
		"version": "1.4",
		"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
		"body": []map[string]any{
			{"type": "TextBlock", "text": "🔐 Approval needed", "weight": "Bolder"},
			{"type": "TextBlock", "text": description, "wrap": true},
		},
		"actions": []map[string]any{
			{"type": "Action.Submit", "title": "Approve", "data": map[string]any{"approvalId": id, "decision": "approve"}},
			{"type": "Action.Submit", "title": "Deny", "data": map[string]any{"approvalId": id, "decision": "deny"}},
		},
	}

	act := activity{
		Type:      "message",
		ReplyToID: threadID,
		Attachments: []attachment{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content:     card,
		}},
	}
	if _, err := a.postActivity(ctx, channel, threadID, act); err != nil {
		return nil, err
	}

	return a.registerApproval(id), nil
}

// registerApproval parks a decision channel under the prompt ID. The
// cleanup only deletes its own channel.
func (a *Adapter) registerApproval(id string) *approvalPrompt {
	ch := make(chan bool, 1)
	a.mu.Lock()
	a.approvals[id] = ch
	a.mu.Unlock()

	return &approvalPrompt{
		id:       id,
		decision: ch,
		cleanup: func() {
			a.mu.Lock()
			if cur, ok := a.approvals[id]; ok && cur == ch {
				delete(a.approvals, id)
			}
			a.mu.Unlock()
		},
	}
}

// handleCardSubmit resolves the waiting prompt for a card submission.
func (a *Adapter) handleCardSubmit(value map[string]any) {
	id, _ := value["approvalId"].(string)
	decision, _ := value["decision"].(string)
	if id == "" {
		return
	}

	a.mu.Lock()
	ch, ok := a.approvals[id]
	delete(a.approvals, id)
	a.mu.Unlock()
	if !ok {
		a.logger.Debug("submission for unknown approval", "approval", id)
		return
	}
	ch <- decision == "approve"
}
