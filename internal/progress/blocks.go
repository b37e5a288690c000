// ABOUTME: Blocks mode: multi-mode tool messages plus thinking and intermediate text.
// ABOUTME: Thinking previews are lightly styled and truncated; all messages persist.

package progress

import (
	"context"
	"strings"
)

// blocksSink extends multiSink with separate messages for reasoning and for
// text the model emits between tool calls. Text chunks are buffered and
// flushed as one message when the next tool starts (or at Close), matching
// how intermediate text actually arrives: in fragments before a tool call.
type blocksSink struct {
	multiSink

	textBuf strings.Builder
}

func (s *blocksSink) OnThinking(ctx context.Context, text string) {
	preview := truncate(oneLine(text), maxThinkingLen)
	if preview == "" {
		preview = "thinking…"
	}
	s.post(ctx, "_💭 "+preview+"_")
}

func (s *blocksSink) OnToolStart(ctx context.Context, id, name string, args map[string]any) {
	s.flushText(ctx)
	s.multiSink.OnToolStart(ctx, id, name, args)
}

func (s *blocksSink) OnTextChunk(ctx context.Context, text string) {
	s.textBuf.WriteString(text)
}

func (s *blocksSink) Close(ctx context.Context) {
	// Remaining buffered text is the start of the final answer, which the
	// dispatcher sends in full; dropping it here avoids duplication.
	s.textBuf.Reset()
	s.multiSink.Close(ctx)
}

func (s *blocksSink) flushText(ctx context.Context) {
	text := strings.TrimSpace(s.textBuf.String())
	s.textBuf.Reset()
	if text == "" {
		return
	}
	s.post(ctx, text)
}
