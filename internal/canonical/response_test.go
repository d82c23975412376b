package canonical

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_Encode_WireShape(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewMessageStart("msg_1", "claude-sonnet").Encode(&buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "event: message_start\ndata: "))
	assert.True(t, strings.HasSuffix(out, "\n\n"))

	dataLine := strings.TrimPrefix(strings.Split(out, "\n")[1], "data: ")
	var payload messageStartPayload
	require.NoError(t, json.Unmarshal([]byte(dataLine), &payload))
	assert.Equal(t, "msg_1", payload.Message.ID)
	assert.Equal(t, "claude-sonnet", payload.Message.Model)
	assert.Equal(t, "assistant", payload.Message.Role)
}

func TestNewTextDelta_CarriesIndexAndText(t *testing.T) {
	ev := NewTextDelta(2, "hello")
	var buf bytes.Buffer
	require.NoError(t, ev.Encode(&buf))
	assert.Contains(t, buf.String(), `"index":2`)
	assert.Contains(t, buf.String(), `"text_delta"`)
	assert.Contains(t, buf.String(), `"hello"`)
}

func TestNewInputJSONDelta_CarriesPartialFragment(t *testing.T) {
	ev := NewInputJSONDelta(0, `{"q":`)
	var buf bytes.Buffer
	require.NoError(t, ev.Encode(&buf))
	assert.Contains(t, buf.String(), `"input_json_delta"`)
}

func TestNewMessageDelta_StopReasonLaw(t *testing.T) {
	toolUse := NewMessageDelta(StopToolUse, Usage{OutputTokens: 5})
	var buf bytes.Buffer
	require.NoError(t, toolUse.Encode(&buf))
	assert.Contains(t, buf.String(), `"stop_reason":"tool_use"`)
	assert.Contains(t, buf.String(), `"output_tokens":5`)
}

func TestNewErrorEvent(t *testing.T) {
	ev := NewErrorEvent("overloaded_error", "backend exhausted")
	assert.Equal(t, "error", ev.Kind())
	var buf bytes.Buffer
	require.NoError(t, ev.Encode(&buf))
	assert.Contains(t, buf.String(), "backend exhausted")
}
