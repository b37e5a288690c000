// ABOUTME: Multi-message mode: one persistent message per tool, edited to its outcome.
// ABOUTME: Nothing is ever deleted; the thread keeps the full tool history.

package progress

import (
	"context"
	"fmt"
)

// multiSink posts "🔧 `tool`(args)" when a tool starts and edits it to
// "✅ …" or "❌ … — error" when it ends. Tool results are never rendered in
// full: only the outcome and, on failure, a truncated error string.
type multiSink struct {
	base

	// tool invocation ID → platform message ID
	toolMessages map[string]string
}

func (s *multiSink) Start(ctx context.Context) {
	s.toolMessages = make(map[string]string)
	s.postIndicator(ctx)
}

func (s *multiSink) OnThinking(ctx context.Context, text string) {
	// Thinking is not rendered in multi mode; blocksSink overrides this.
}

func (s *multiSink) OnToolStart(ctx context.Context, id, name string, args map[string]any) {
	msgID := s.post(ctx, toolLine("🔧", name, args))
	if msgID != "" {
		s.toolMessages[id] = msgID
	}
}

func (s *multiSink) OnToolEnd(ctx context.Context, id, name string, args map[string]any, ok bool, errorSummary string) {
	msgID, found := s.toolMessages[id]
	if !found {
		return
	}

	var text string
	if ok {
		text = toolLine("✅", name, args)
	} else {
		text = fmt.Sprintf("%s — _%s_", toolLine("❌", name, args), truncate(oneLine(errorSummary), maxErrorLen))
	}
	s.update(ctx, msgID, text)
	delete(s.toolMessages, id)
}

func (s *multiSink) OnTextChunk(ctx context.Context, text string) {
	// Intermediate text is not rendered in multi mode; blocksSink overrides.
}

func (s *multiSink) Close(ctx context.Context) {
	// Tool messages persist. The working indicator is retired in place
	// rather than deleted, so the thread keeps a completion marker.
	s.update(ctx, s.statusID, "✓ done")
	s.statusID = ""
}
