// ABOUTME: In-chat commands: !project binds a working directory, !status reports state.

package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/coven-connect/internal/message"
	"github.com/2389/coven-connect/internal/platform"
	"github.com/2389/coven-connect/internal/store"
)

// maybeHandleCommand intercepts bang-commands before they reach a
// session. Returns true when the message was consumed.
func (b *Bot) maybeHandleCommand(ctx context.Context, adapter platform.Adapter,
	msg *message.Unified, conversationID, text string) bool {

	cmd, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "!project":
		b.handleProject(ctx, adapter, msg, conversationID, rest)
		return true
	case "!status":
		b.handleStatus(ctx, adapter, msg, conversationID)
		return true
	case "!help":
		b.reply(ctx, adapter, msg, helpText)
		return true
	}
	return false
}

const helpText = "Commands:\n" +
	"• `!project <path>` — run this conversation's sessions in <path>\n" +
	"• `!project` — show the current working directory\n" +
	"• `!project clear` — drop the binding\n" +
	"• `!status` — session and activity summary"

func (b *Bot) handleProject(ctx context.Context, adapter platform.Adapter,
	msg *message.Unified, conversationID, arg string) {

	switch arg {
	case "":
		dir := b.workdirs.Resolve(ctx, conversationID)
		b.reply(ctx, adapter, msg, "Working directory: `"+dir+"`")

	case "clear":
		if err := b.workdirs.Unbind(ctx, conversationID); err != nil {
			b.reply(ctx, adapter, msg, "⚠️ Couldn't clear the binding: "+truncateError(err))
			return
		}
		b.reply(ctx, adapter, msg, "Cleared. Back to the default working directory.")

	default:
		abs, err := b.workdirs.Bind(ctx, store.Association{
			ConversationID: conversationID,
			Platform:       string(msg.Platform),
			ChannelID:      msg.ChannelID,
			ThreadID:       msg.ThreadID,
			WorkingDir:     arg,
		})
		if err != nil {
			b.reply(ctx, adapter, msg, "⚠️ "+err.Error())
			return
		}
		b.reply(ctx, adapter, msg, "This conversation now works in `"+abs+"`")
	}
}

func (b *Bot) handleStatus(ctx context.Context, adapter platform.Adapter,
	msg *message.Unified, conversationID string) {

	var sb strings.Builder
	fmt.Fprintf(&sb, "Active sessions: %d\n", b.manager.Len())
	fmt.Fprintf(&sb, "Working directory: `%s`\n", b.workdirs.Resolve(ctx, conversationID))

	if b.ledger != nil {
		entries, err := b.ledger.Recent(ctx, conversationID, 5)
		if err != nil {
			b.logger.Warn("could not read ledger", "error", err)
		} else if len(entries) > 0 {
			sb.WriteString("Recent activity:\n")
			for _, e := range entries {
				fmt.Fprintf(&sb, "• %s %s", e.CreatedAt.Format("15:04:05"), e.Kind)
				if e.Detail != "" {
					fmt.Fprintf(&sb, " (%s)", e.Detail)
				}
				sb.WriteString("\n")
			}
		}
	}

	b.reply(ctx, adapter, msg, strings.TrimRight(sb.String(), "\n"))
}
