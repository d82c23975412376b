package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccrelay/ccrelay/internal/canonical"
)

func TestAggregator_TextOnly(t *testing.T) {
	a := newAggregator()
	a.Emit(canonical.NewMessageStart("msg_1", "gpt-5.1-codex"))
	a.Emit(canonical.NewContentBlockStart(0, canonical.ContentBlock{Type: canonical.BlockText}))
	a.Emit(canonical.NewTextDelta(0, "hello "))
	a.Emit(canonical.NewTextDelta(0, "world"))
	a.Emit(canonical.NewContentBlockStop(0))
	a.Emit(canonical.NewMessageDelta(canonical.StopEndTurn, canonical.Usage{InputTokens: 3, OutputTokens: 2}))
	a.Emit(canonical.NewMessageStop())

	resp := a.Result()
	assert.Equal(t, "msg_1", resp.ID)
	assert.Equal(t, "gpt-5.1-codex", resp.Model)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "hello world", resp.Content[0].Text)
	assert.Equal(t, canonical.StopEndTurn, resp.StopReason)
	assert.Equal(t, 3, resp.Usage.InputTokens)
}

func TestAggregator_ToolUseAccumulatesInput(t *testing.T) {
	a := newAggregator()
	a.Emit(canonical.NewMessageStart("msg_1", "gpt-5.1-codex"))
	a.Emit(canonical.NewContentBlockStart(0, canonical.ContentBlock{Type: canonical.BlockToolUse, ID: "c1", Name: "Bash"}))
	a.Emit(canonical.NewInputJSONDelta(0, `{"cmd":`))
	a.Emit(canonical.NewInputJSONDelta(0, `"ls"}`))
	a.Emit(canonical.NewContentBlockStop(0))
	a.Emit(canonical.NewMessageDelta(canonical.StopToolUse, canonical.Usage{}))
	a.Emit(canonical.NewMessageStop())

	resp := a.Result()
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "c1", resp.Content[0].ID)
	assert.JSONEq(t, `{"cmd":"ls"}`, string(resp.Content[0].Input))
	assert.Equal(t, canonical.StopToolUse, resp.StopReason)
}
