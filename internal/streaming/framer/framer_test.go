package framer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccrelay/ccrelay/internal/canonical"
)

func collect(fn func(emit func(canonical.Event))) []canonical.Event {
	var events []canonical.Event
	fn(func(e canonical.Event) { events = append(events, e) })
	return events
}

func TestFramer_TextOnlyStream(t *testing.T) {
	events := collect(func(emit func(canonical.Event)) {
		f := New("msg_1", "gpt-5.1-codex", emit)
		f.TextDelta("hello ")
		f.TextDelta("world")
		f.Finish()
	})
	require.GreaterOrEqual(t, len(events), 5)
	assert.Equal(t, "message_start", events[0].Kind())
	assert.Equal(t, "content_block_start", events[1].Kind())
	assert.Equal(t, "content_block_delta", events[2].Kind())
	assert.Equal(t, "content_block_delta", events[3].Kind())
	last := events[len(events)-1]
	assert.Equal(t, "message_stop", last.Kind())
}

func TestFramer_ToolUseClosesOpenTextBlock(t *testing.T) {
	events := collect(func(emit func(canonical.Event)) {
		f := New("msg_1", "gpt-5.1-codex", emit)
		f.TextDelta("thinking...")
		f.ToolUseStart("item_1", "call_1", "Bash")
		f.ToolUseDelta("item_1", `{"cmd":`)
		f.ToolUseDelta("item_1", `"ls"}`)
		f.Finish()
	})
	var kinds []string
	for _, e := range events {
		kinds = append(kinds, e.Kind())
	}
	assert.Contains(t, kinds, "content_block_stop")
	// the text block must close before the tool_use block opens
	textStopIdx, toolStartIdx := -1, -1
	for i, k := range kinds {
		if k == "content_block_stop" && textStopIdx == -1 {
			textStopIdx = i
		}
		if k == "content_block_start" && i > 1 && toolStartIdx == -1 {
			toolStartIdx = i
		}
	}
	assert.True(t, textStopIdx < len(kinds)-1)
	assert.Less(t, textStopIdx, toolStartIdx)
}

func TestFramer_StopReasonToolUse(t *testing.T) {
	var finalDelta canonical.Event
	events := collect(func(emit func(canonical.Event)) {
		f := New("msg_1", "gpt-5.1-codex", emit)
		f.ToolUseStart("item_1", "call_1", "Bash")
		f.ToolUseDelta("item_1", `{}`)
		f.Finish()
	})
	for _, e := range events {
		if e.Kind() == "message_delta" {
			finalDelta = e
		}
	}
	require.NotNil(t, finalDelta.Kind())
	assert.Equal(t, "message_delta", finalDelta.Kind())
	var buf bytes.Buffer
	require.NoError(t, finalDelta.Encode(&buf))
	assert.Contains(t, buf.String(), `"stop_reason":"tool_use"`)
}

func TestFramer_EmptyStreamSynthesizesMinimalContract(t *testing.T) {
	events := collect(func(emit func(canonical.Event)) {
		f := New("msg_1", "gpt-5.1-codex", emit)
		f.Finish()
	})
	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, "message_start", events[0].Kind())
	assert.Equal(t, "content_block_start", events[1].Kind())
	assert.Equal(t, "content_block_stop", events[2].Kind())
}

func TestFramer_ToolUseDeltaFallsBackToMostRecentBlock(t *testing.T) {
	events := collect(func(emit func(canonical.Event)) {
		f := New("msg_1", "gpt-5.1-codex", emit)
		f.ToolUseStart("item_1", "call_1", "Bash")
		f.ToolUseDelta("", `{"cmd":"ls"}`) // backend omitted item id on the delta
		f.Finish()
	})
	var deltaSeen bool
	for _, e := range events {
		if e.Kind() == "content_block_delta" {
			deltaSeen = true
		}
	}
	assert.True(t, deltaSeen)
}

func TestFramer_MultipleToolBlocksAllClosedAtFinish(t *testing.T) {
	events := collect(func(emit func(canonical.Event)) {
		f := New("msg_1", "gpt-5.1-codex", emit)
		f.ToolUseStart("item_1", "call_1", "Bash")
		f.ToolUseStart("item_2", "call_2", "Read")
		f.Finish()
	})
	stopCount := 0
	for _, e := range events {
		if e.Kind() == "content_block_stop" {
			stopCount++
		}
	}
	assert.Equal(t, 2, stopCount)
}
