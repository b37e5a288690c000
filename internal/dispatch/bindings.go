// ABOUTME: Session bindings backed by a platform adapter: approvals, display, reactions.

package dispatch

import (
	"context"
	"fmt"

	"github.com/2389/coven-connect/internal/platform"
)

// chatApprover asks the conversation for permission via the adapter's
// native prompt (Block Kit buttons, Adaptive Card, reply prompt).
type chatApprover struct {
	adapter  platform.Adapter
	channel  string
	threadID string
}

func (a *chatApprover) RequestApproval(ctx context.Context, description string) (bool, error) {
	prompt, err := a.adapter.CreateApprovalPrompt(ctx, a.channel, description, a.threadID)
	if err != nil {
		return false, fmt.Errorf("creating approval prompt: %w", err)
	}
	return prompt.Wait(ctx)
}

// chatDisplay posts engine-produced content into the conversation.
type chatDisplay struct {
	adapter  platform.Adapter
	channel  string
	threadID string
}

func (d *chatDisplay) Display(ctx context.Context, content string) error {
	_, err := d.adapter.SendMessage(ctx, d.channel, content, d.threadID)
	return err
}

// reactionTool lets the engine react to the message it is answering.
type reactionTool struct {
	adapter   platform.Adapter
	channel   string
	messageID string
}

func (t *reactionTool) Name() string { return "add_reaction" }

func (t *reactionTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	emoji, _ := args["emoji"].(string)
	if emoji == "" {
		return "", fmt.Errorf("add_reaction requires an emoji argument")
	}
	if err := t.adapter.AddReaction(ctx, t.channel, t.messageID, emoji); err != nil {
		return "", fmt.Errorf("adding reaction: %w", err)
	}
	return "reacted with :" + emoji + ":", nil
}
