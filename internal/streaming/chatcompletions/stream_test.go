package chatcompletions

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccrelay/ccrelay/internal/canonical"
)

func collect(t *testing.T, body string) []canonical.Event {
	t.Helper()
	var events []canonical.Event
	err := Consume(strings.NewReader(body), "msg_1", "gh/gpt-4o", func(e canonical.Event) {
		events = append(events, e)
	})
	require.NoError(t, err)
	return events
}

func TestConsume_TextDeltas(t *testing.T) {
	body := `data: {"choices":[{"delta":{"content":"hel"}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"content":"lo"}}]}` + "\n\n" +
		`data: [DONE]` + "\n\n"
	events := collect(t, body)
	deltaCount := 0
	for _, e := range events {
		if e.Kind() == "content_block_delta" {
			deltaCount++
		}
	}
	assert.Equal(t, 2, deltaCount)
}

func TestConsume_ToolCallFragmentsAccumulateByIndex(t *testing.T) {
	body := `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"Bash","arguments":""}}]}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"cmd\":"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"ls\"}"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}` + "\n\n" +
		`data: [DONE]` + "\n\n"
	events := collect(t, body)
	starts, deltas := 0, 0
	for _, e := range events {
		if e.Kind() == "content_block_start" {
			starts++
		}
		if e.Kind() == "content_block_delta" {
			deltas++
		}
	}
	assert.Equal(t, 1, starts)
	assert.Equal(t, 2, deltas)
}

func TestConsume_UsageCaptured(t *testing.T) {
	body := `data: {"choices":[{"delta":{"content":"hi"}}],"usage":{"prompt_tokens":5,"completion_tokens":2}}` + "\n\n" +
		`data: [DONE]` + "\n\n"
	events := collect(t, body)
	var found bool
	var finalDelta canonical.Event
	for _, e := range events {
		if e.Kind() == "message_delta" {
			found = true
			finalDelta = e
		}
	}
	assert.True(t, found)
	var buf bytes.Buffer
	require.NoError(t, finalDelta.Encode(&buf))
	assert.Contains(t, buf.String(), `"input_tokens":5,"output_tokens":2`)
}
