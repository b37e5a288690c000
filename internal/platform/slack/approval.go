// ABOUTME: Block Kit approval prompts: allow/deny buttons resolved via block_actions.
// ABOUTME: Undecided prompts deny after a timeout so executions cannot hang forever.

package slack

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-connect/internal/platform"
)

// approvalTimeout is how long a prompt waits before denying.
const approvalTimeout = 5 * time.Minute

// approvalPrompt is one pending allow/deny decision.
type approvalPrompt struct {
	id       string
	decision <-chan bool
	cleanup  func()
}

func (p *approvalPrompt) ID() string { return p.id }

// Wait blocks until a button is clicked, the timeout elapses (deny), or
// ctx is cancelled. The prompt deregisters itself on every exit, so an
// abandoned prompt does not stay in the adapter's map.
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

// CreateApprovalPrompt posts a section with Approve/Deny buttons. The
// buttons' action IDs carry the prompt ID so block_actions callbacks can
// find the waiting channel.
func (a *Adapter) CreateApprovalPrompt(ctx context.Context, channel, description, threadID string) (platform.ApprovalPrompt, error) {
	id := uuid.NewString()

	blocks := []block{
		{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": "🔐 *Approval needed*\n" + description},
		},
		{
			"type": "actions",
			"elements": []map[string]any{
				{
					"type":      "button",
					"style":     "primary",
					"text":      map[string]any{"type": "plain_text", "text": "Approve"},
					"action_id": "approve:" + id,
					"value":     "approve",
				},
				{
					"type":      "button",
					"style":     "danger",
					"text":      map[string]any{"type": "plain_text", "text": "Deny"},
					"action_id": "deny:" + id,
					"value":     "deny",
				},
			},
		},
	}

	if _, err := a.api.postMessage(ctx, channel, "Approval needed: "+description, threadID, blocks); err != nil {
		return nil, err
	}

	return a.registerApproval(id), nil
}

// registerApproval parks a decision channel under the prompt ID. The
// cleanup only deletes its own channel, so a newer prompt that reused
// the slot is left alone.
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

// resolveApproval delivers a decision to the waiting prompt, once.
func (a *Adapter) resolveApproval(id string, decision bool) {
	a.mu.Lock()
	ch, ok := a.approvals[id]
	delete(a.approvals, id)
	a.mu.Unlock()
	if !ok {
		a.logger.Debug("decision for unknown approval", "approval", id)
		return
	}
	ch <- decision
}

// parseApprovalAction splits "approve:<id>" / "deny:<id>" action IDs.
func parseApprovalAction(actionID string) (id string, decision bool, ok bool) {
	verb, id, found := strings.Cut(actionID, ":")
	if !found || id == "" {
		return "", false, false
	}
	switch verb {
	case "approve":
		return id, true, true
	case "deny":
		return id, false, true
	default:
		return "", false, false
	}
}
