// ABOUTME: Single-message mode: one status line edited in place, deleted on completion.
// ABOUTME: The final answer is a separate message sent by the dispatcher afterwards.

package progress

import (
	"context"
	"strings"
)

// singleSink renders an accumulating status line into one message:
//
//	🤔 thinking… → ✓ tool_a → 🔄 tool_b…
//
// On Close the status message is deleted; history is intentionally lost in
// this mode.
type singleSink struct {
	base

	thinking bool
	steps    []singleStep
}

type singleStep struct {
	name string
	done bool
	ok   bool
}

func (s *singleSink) Start(ctx context.Context) {
	s.postIndicator(ctx)
}

func (s *singleSink) OnThinking(ctx context.Context, text string) {
	if s.thinking {
		return
	}
	s.thinking = true
	s.render(ctx)
}

func (s *singleSink) OnToolStart(ctx context.Context, id, name string, args map[string]any) {
	s.steps = append(s.steps, singleStep{name: name})
	s.render(ctx)
}

func (s *singleSink) OnToolEnd(ctx context.Context, id, name string, args map[string]any, ok bool, errorSummary string) {
	// Steps serialize within one execution, so the open step is the last one.
	for i := len(s.steps) - 1; i >= 0; i-- {
		if !s.steps[i].done {
			s.steps[i].done = true
			s.steps[i].ok = ok
			break
		}
	}
	s.render(ctx)
}

func (s *singleSink) OnTextChunk(ctx context.Context, text string) {
	// Intermediate text is not rendered in single mode.
}

func (s *singleSink) Close(ctx context.Context) {
	if s.statusID == "" {
		return
	}
	if err := s.m.DeleteMessage(ctx, s.channel, s.statusID); err != nil {
		s.logger.Debug("could not delete status message", "error", err)
	}
	s.statusID = ""
}

func (s *singleSink) render(ctx context.Context) {
	var segs []string
	if s.thinking {
		segs = append(segs, "🤔 thinking…")
	}
	for _, step := range s.steps {
		switch {
		case !step.done:
			segs = append(segs, "🔄 "+step.name+"…")
		case step.ok:
			segs = append(segs, "✓ "+step.name)
		default:
			segs = append(segs, "✗ "+step.name)
		}
	}

	text := workingIndicator
	if len(segs) > 0 {
		text = strings.Join(segs, " → ")
	}
	s.update(ctx, s.statusID, text)
}
