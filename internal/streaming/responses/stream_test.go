package responses

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccrelay/ccrelay/internal/canonical"
)

func collect(t *testing.T, body string) []canonical.Event {
	t.Helper()
	var events []canonical.Event
	err := Consume(strings.NewReader(body), "msg_1", "gpt-5.1-codex", func(e canonical.Event) {
		events = append(events, e)
	})
	require.NoError(t, err)
	return events
}

func TestConsume_TextDeltaStream(t *testing.T) {
	body := "data: {\"type\":\"response.output_text.delta\",\"delta\":\"hi\"}\n\n" +
		"data: {\"type\":\"response.completed\",\"response\":{\"usage\":{\"input_tokens\":3,\"output_tokens\":1}}}\n\n" +
		"data: [DONE]\n\n"
	events := collect(t, body)
	var sawDelta, sawStop bool
	for _, e := range events {
		if e.Kind() == "content_block_delta" {
			sawDelta = true
		}
		if e.Kind() == "message_stop" {
			sawStop = true
		}
	}
	assert.True(t, sawDelta)
	assert.True(t, sawStop)
}

func TestConsume_FunctionCallLifecycle(t *testing.T) {
	body := "data: {\"type\":\"response.output_item.added\",\"item\":{\"id\":\"item_1\",\"call_id\":\"call_1\",\"type\":\"function_call\",\"name\":\"Bash\"}}\n\n" +
		"data: {\"type\":\"response.function_call_arguments.delta\",\"item_id\":\"item_1\",\"delta\":\"{\\\"cmd\\\":\\\"ls\\\"}\"}\n\n" +
		"data: {\"type\":\"response.function_call_arguments.done\",\"item_id\":\"item_1\"}\n\n" +
		"data: [DONE]\n\n"
	events := collect(t, body)
	var toolStarted, deltaEmitted bool
	for _, e := range events {
		if e.Kind() == "content_block_start" {
			toolStarted = true
		}
		if e.Kind() == "content_block_delta" {
			deltaEmitted = true
		}
	}
	assert.True(t, toolStarted)
	assert.True(t, deltaEmitted)
}

func TestConsume_WebSearchLifecycleSuppressed(t *testing.T) {
	body := "data: {\"type\":\"response.output_item.added\",\"item\":{\"id\":\"ws_1\",\"type\":\"web_search_call\"}}\n\n" +
		"data: {\"type\":\"response.function_call_arguments.delta\",\"item_id\":\"ws_1\",\"delta\":\"ignored\"}\n\n" +
		"data: [DONE]\n\n"
	events := collect(t, body)
	for _, e := range events {
		assert.NotEqual(t, "content_block_delta", e.Kind())
	}
}

func TestConsume_MalformedLinesIgnored(t *testing.T) {
	body := "data: not json\n\ndata: {\"type\":\"response.output_text.delta\",\"delta\":\"ok\"}\n\ndata: [DONE]\n\n"
	events := collect(t, body)
	var sawDelta bool
	for _, e := range events {
		if e.Kind() == "content_block_delta" {
			sawDelta = true
		}
	}
	assert.True(t, sawDelta)
}
