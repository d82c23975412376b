package cloudcode

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
	err := Consume(strings.NewReader(body), "msg_1", "gemini-2.5-pro", func(e canonical.Event) {
		events = append(events, e)
	})
	require.NoError(t, err)
	return events
}

func TestConsume_TextParts(t *testing.T) {
	body := `data: {"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}` + "\n\n" +
		`data: [DONE]` + "\n\n"
	events := collect(t, body)
	var sawDelta bool
	for _, e := range events {
		if e.Kind() == "content_block_delta" {
			sawDelta = true
		}
	}
	assert.True(t, sawDelta)
}

func TestConsume_FunctionCallPartOpensAndPopulatesInOneStep(t *testing.T) {
	body := `data: {"candidates":[{"content":{"parts":[{"functionCall":{"name":"Bash","args":{"cmd":"ls"}}}]}}]}` + "\n\n" +
		`data: [DONE]` + "\n\n"
	events := collect(t, body)
	var start, delta bool
	for _, e := range events {
		if e.Kind() == "content_block_start" {
			start = true
		}
		if e.Kind() == "content_block_delta" {
			delta = true
		}
	}
	assert.True(t, start)
	assert.True(t, delta)
}

func TestConsume_UsageMetadataCaptured(t *testing.T) {
	body := `data: {"candidates":[{"content":{"parts":[{"text":"hi"}]}}],"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":2}}` + "\n\n" +
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
	assert.Contains(t, buf.String(), `"input_tokens":4,"output_tokens":2`)
}
