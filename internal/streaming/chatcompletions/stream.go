// Package chatcompletions drives the shared block-framing state machine
// from OpenAI-Chat-Completions-style SSE chunks, modeled on the teacher's
// parseSSEStream accumulation logic (by-index tool-call fragments).
package chatcompletions

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/ccrelay/ccrelay/internal/canonical"
	"github.com/ccrelay/ccrelay/internal/streaming/framer"
	"github.com/ccrelay/ccrelay/internal/streaming/sse"
)

type wireChunk struct {
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage"`
}

type wireChoice struct {
	Delta        wireDelta `json:"delta"`
	FinishReason *string   `json:"finish_reason"`
}

type wireDelta struct {
	Content   string         `json:"content,omitempty"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	Index    int          `json:"index"`
	ID       string       `json:"id,omitempty"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Consume pulls chat-completions chunks off r and drives the shared framer.
// Tool-call fragments arrive indexed, not id-keyed, so the item id passed
// to the framer is the stringified index — stable within one stream.
func Consume(r io.Reader, id, model string, emit func(canonical.Event)) error {
	f := framer.New(id, model, emit)
	started := map[string]bool{}
	next := sse.Lines(r, 0)

	for {
		payload, ok, err := next()
		if err != nil {
			f.Finish()
			return err
		}
		if !ok {
			break
		}

		var chunk wireChunk
		if json.Unmarshal([]byte(payload), &chunk) != nil {
			continue
		}
		if chunk.Usage != nil {
			f.Usage(chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			f.TextDelta(delta.Content)
		}
		for _, tc := range delta.ToolCalls {
			itemID := strconv.Itoa(tc.Index)
			if !started[itemID] {
				started[itemID] = true
				f.ToolUseStart(itemID, tc.ID, tc.Function.Name)
			}
			if tc.Function.Arguments != "" {
				f.ToolUseDelta(itemID, tc.Function.Arguments)
			}
		}
	}

	f.Finish()
	return nil
}
