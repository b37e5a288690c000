// ABOUTME: Tests for the three progress rendering modes against a recording messenger.
// ABOUTME: Verifies call counts, edit-vs-post choices, delete policy, and failure tolerance.

package progress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingMessenger captures every platform call in order.
type recordingMessenger struct {
	nextID  int
	calls   []call
	failAll bool
}

type call struct {
	op        string // "send", "update", "delete"
	messageID string
	text      string
}

func (r *recordingMessenger) SendMessage(ctx context.Context, channel, text, threadID string) (string, error) {
	if r.failAll {
		return "", errors.New("transport down")
	}
	r.nextID++
	id := fmt.Sprintf("m%d", r.nextID)
	r.calls = append(r.calls, call{op: "send", messageID: id, text: text})
	return id, nil
}

func (r *recordingMessenger) UpdateMessage(ctx context.Context, channel, messageID, text string) error {
	if r.failAll {
		return errors.New("transport down")
	}
	r.calls = append(r.calls, call{op: "update", messageID: messageID, text: text})
	return nil
}

func (r *recordingMessenger) DeleteMessage(ctx context.Context, channel, messageID string) error {
	if r.failAll {
		return errors.New("transport down")
	}
	r.calls = append(r.calls, call{op: "delete", messageID: messageID})
	return nil
}

func (r *recordingMessenger) count(op string) int {
	n := 0
	for _, c := range r.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

// callsFor returns calls touching one message ID.
func (r *recordingMessenger) callsFor(messageID string) []call {
	var out []call
	for _, c := range r.calls {
		if c.messageID == messageID {
			out = append(out, c)
		}
	}
	return out
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"single", "multi", "blocks"} {
		mode, err := ParseMode(valid)
		require.NoError(t, err)
		assert.Equal(t, Mode(valid), mode)
	}

	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeSingle, mode)

	_, err = ParseMode("fancy")
	assert.Error(t, err)
}

func TestSingleMode_OneToolSequence(t *testing.T) {
	rec := &recordingMessenger{}
	sink := New(ModeSingle, rec, "C1", "T1", nil)
	ctx := context.Background()

	sink.Start(ctx)
	sink.OnThinking(ctx, "planning")
	sink.OnToolStart(ctx, "t1", "read_file", map[string]any{"path": "a.go"})
	sink.OnToolEnd(ctx, "t1", "read_file", map[string]any{"path": "a.go"}, true, "")
	sink.Close(ctx)

	// One post (the indicator), edits only, exactly one delete at cleanup.
	assert.Equal(t, 1, rec.count("send"))
	assert.Equal(t, 1, rec.count("delete"))
	for _, c := range rec.calls {
		assert.Equal(t, "m1", c.messageID, "single mode only ever touches the status message")
	}

	// Status line accumulates rather than replacing.
	updates := []string{}
	for _, c := range rec.calls {
		if c.op == "update" {
			updates = append(updates, c.text)
		}
	}
	require.Len(t, updates, 3)
	assert.Equal(t, "🤔 thinking…", updates[0])
	assert.Equal(t, "🤔 thinking… → 🔄 read_file…", updates[1])
	assert.Equal(t, "🤔 thinking… → ✓ read_file", updates[2])
}

func TestSingleMode_FailedToolMarker(t *testing.T) {
	rec := &recordingMessenger{}
	sink := New(ModeSingle, rec, "C1", "", nil)
	ctx := context.Background()

	sink.Start(ctx)
	sink.OnToolStart(ctx, "t1", "bash", nil)
	sink.OnToolEnd(ctx, "t1", "bash", nil, false, "exit status 1")
	sink.Close(ctx)

	last := rec.calls[len(rec.calls)-2] // final update before the delete
	assert.Equal(t, "update", last.op)
	assert.Equal(t, "✗ bash", last.text)
}

func TestMultiMode_ToolGetsPostThenEdit(t *testing.T) {
	rec := &recordingMessenger{}
	sink := New(ModeMulti, rec, "C1", "T1", nil)
	ctx := context.Background()

	sink.Start(ctx)
	sink.OnToolStart(ctx, "t1", "write_file", map[string]any{"path": "b.go", "content": "package b"})
	sink.OnToolEnd(ctx, "t1", "write_file", map[string]any{"path": "b.go", "content": "package b"}, true, "")
	sink.Close(ctx)

	// Exactly 2 calls for the tool message (post then edit), 0 deletes anywhere.
	assert.Equal(t, 0, rec.count("delete"))
	toolCalls := rec.callsFor("m2")
	require.Len(t, toolCalls, 2)
	assert.Equal(t, "send", toolCalls[0].op)
	assert.True(t, strings.HasPrefix(toolCalls[0].text, "🔧 `write_file`("))
	assert.Equal(t, "update", toolCalls[1].op)
	assert.True(t, strings.HasPrefix(toolCalls[1].text, "✅ `write_file`("))
}

func TestMultiMode_FailureShowsTruncatedError(t *testing.T) {
	rec := &recordingMessenger{}
	sink := New(ModeMulti, rec, "C1", "", nil)
	ctx := context.Background()

	longErr := strings.Repeat("boom ", 100)
	sink.Start(ctx)
	sink.OnToolStart(ctx, "t1", "bash", map[string]any{"command": "make"})
	sink.OnToolEnd(ctx, "t1", "bash", map[string]any{"command": "make"}, false, longErr)

	final := rec.calls[len(rec.calls)-1]
	assert.Equal(t, "update", final.op)
	assert.Contains(t, final.text, "❌ `bash`")
	// 100-char budget plus ellipsis and styling, never the full error.
	assert.Less(t, len(final.text), len(longErr))
}

func TestMultiMode_InterleavedTools(t *testing.T) {
	rec := &recordingMessenger{}
	sink := New(ModeMulti, rec, "C1", "", nil)
	ctx := context.Background()

	sink.Start(ctx)
	sink.OnToolStart(ctx, "a", "read_file", nil)
	sink.OnToolStart(ctx, "b", "grep", nil)
	sink.OnToolEnd(ctx, "b", "grep", nil, true, "")
	sink.OnToolEnd(ctx, "a", "read_file", nil, true, "")

	// Each tool's completion edits its own message, keyed by invocation ID.
	aCalls := rec.callsFor("m2")
	bCalls := rec.callsFor("m3")
	require.Len(t, aCalls, 2)
	require.Len(t, bCalls, 2)
	assert.Contains(t, aCalls[1].text, "read_file")
	assert.Contains(t, bCalls[1].text, "grep")
}

func TestBlocksMode_ThinkingAndIntermediateText(t *testing.T) {
	rec := &recordingMessenger{}
	sink := New(ModeBlocks, rec, "C1", "T1", nil)
	ctx := context.Background()

	sink.Start(ctx)
	sink.OnThinking(ctx, strings.Repeat("deep thought ", 30))
	sink.OnTextChunk(ctx, "Let me check ")
	sink.OnTextChunk(ctx, "the file first.")
	sink.OnToolStart(ctx, "t1", "read_file", nil)
	sink.OnToolEnd(ctx, "t1", "read_file", nil, true, "")
	sink.Close(ctx)

	assert.Equal(t, 0, rec.count("delete"))

	var thinking, intermediate *call
	for i := range rec.calls {
		c := &rec.calls[i]
		if c.op == "send" && strings.HasPrefix(c.text, "_💭") {
			thinking = c
		}
		if c.op == "send" && c.text == "Let me check the file first." {
			intermediate = c
		}
	}
	require.NotNil(t, thinking, "thinking preview posted as its own message")
	assert.LessOrEqual(t, len([]rune(thinking.text)), maxThinkingLen+10)
	require.NotNil(t, intermediate, "buffered text flushed before the tool message")
}

func TestBlocksMode_TrailingTextNotDuplicated(t *testing.T) {
	rec := &recordingMessenger{}
	sink := New(ModeBlocks, rec, "C1", "", nil)
	ctx := context.Background()

	sink.Start(ctx)
	sink.OnTextChunk(ctx, "This is the final answer.")
	sink.Close(ctx)

	// The dispatcher sends the final answer; the sink must not also post it.
	for _, c := range rec.calls {
		assert.NotContains(t, c.text, "final answer")
	}
}

func TestSinks_SurviveTransportFailures(t *testing.T) {
	for _, mode := range []Mode{ModeSingle, ModeMulti, ModeBlocks} {
		t.Run(string(mode), func(t *testing.T) {
			rec := &recordingMessenger{failAll: true}
			sink := New(mode, rec, "C1", "", nil)
			ctx := context.Background()

			// No call may panic or surface an error.
			sink.Start(ctx)
			sink.OnThinking(ctx, "hmm")
			sink.OnToolStart(ctx, "t1", "bash", nil)
			sink.OnToolEnd(ctx, "t1", "bash", nil, false, "fail")
			sink.OnTextChunk(ctx, "text")
			sink.Close(ctx)
		})
	}
}
