// Package cloudcode drives the shared block-framing state machine from the
// Cloud-Code (Gemini-shaped) streamGenerateContent SSE wire, modeled on the
// teacher's gemini provider response parsing.
package cloudcode

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ccrelay/ccrelay/internal/canonical"
	"github.com/ccrelay/ccrelay/internal/streaming/framer"
	"github.com/ccrelay/ccrelay/internal/streaming/sse"
)

type wireChunk struct {
	Candidates    []wireCandidate `json:"candidates"`
	UsageMetadata *wireUsage      `json:"usageMetadata"`
}

type wireCandidate struct {
	Content wireContent `json:"content"`
}

type wireContent struct {
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text         string            `json:"text,omitempty"`
	FunctionCall *wireFunctionCall `json:"functionCall,omitempty"`
}

type wireFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type wireUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

// Consume pulls Gemini-shaped chunks off r and drives the shared framer.
// Unlike the Responses wire, a function call arrives whole in a single
// part — there is no separate "added" vs "arguments delta" lifecycle — so
// each functionCall part opens and fully populates its tool_use block in
// one step. Gemini never assigns a call id, so one is synthesized from the
// part's position in the stream.
func Consume(r io.Reader, id, model string, emit func(canonical.Event)) error {
	f := framer.New(id, model, emit)
	next := sse.Lines(r, 0)
	callIndex := 0

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
		if chunk.UsageMetadata != nil {
			f.Usage(chunk.UsageMetadata.PromptTokenCount, chunk.UsageMetadata.CandidatesTokenCount)
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		for _, part := range chunk.Candidates[0].Content.Parts {
			if part.Text != "" {
				f.TextDelta(part.Text)
			}
			if part.FunctionCall != nil {
				itemID := fmt.Sprintf("fc-%d", callIndex)
				callIndex++
				f.ToolUseStart(itemID, itemID, part.FunctionCall.Name)
				if len(part.FunctionCall.Args) > 0 {
					f.ToolUseDelta(itemID, string(part.FunctionCall.Args))
				}
				f.ToolUseDone(itemID)
			}
		}
	}

	f.Finish()
	return nil
}
