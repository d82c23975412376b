// Package responses drives the shared block-framing state machine from the
// OpenAI-Responses-style SSE wire events (§4.6), including suppression of
// web_search lifecycle events (they never produce canonical output).
package responses

import (
	"encoding/json"
	"io"

	"github.com/ccrelay/ccrelay/internal/canonical"
	"github.com/ccrelay/ccrelay/internal/streaming/framer"
	"github.com/ccrelay/ccrelay/internal/streaming/sse"
)

type wireEvent struct {
	Type     string    `json:"type"`
	Delta    string    `json:"delta,omitempty"`
	ItemID   string    `json:"item_id,omitempty"`
	Item     *wireItem `json:"item,omitempty"`
	Response *wireResp `json:"response,omitempty"`
}

type wireItem struct {
	ID     string `json:"id"`
	CallID string `json:"call_id"`
	Type   string `json:"type"`
	Name   string `json:"name"`
}

type wireResp struct {
	Usage *wireUsage `json:"usage"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Consume pulls events off r and emits the corresponding canonical events
// through emit, returning once the stream ends or the reader errors.
func Consume(r io.Reader, id, model string, emit func(canonical.Event)) error {
	f := framer.New(id, model, emit)
	webSearchItems := map[string]bool{}
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

		var e wireEvent
		if json.Unmarshal([]byte(payload), &e) != nil {
			continue
		}

		switch e.Type {
		case "response.output_text.delta":
			f.TextDelta(e.Delta)
		case "response.output_item.added":
			if e.Item == nil {
				continue
			}
			if e.Item.Type == "web_search_call" {
				webSearchItems[e.Item.ID] = true
				continue
			}
			if e.Item.Type == "function_call" {
				f.ToolUseStart(e.Item.ID, e.Item.CallID, e.Item.Name)
			}
		case "response.function_call_arguments.delta":
			if webSearchItems[e.ItemID] {
				continue
			}
			f.ToolUseDelta(e.ItemID, e.Delta)
		case "response.function_call_arguments.done":
			f.ToolUseDone(e.ItemID)
		case "response.completed":
			if e.Response != nil && e.Response.Usage != nil {
				f.Usage(e.Response.Usage.InputTokens, e.Response.Usage.OutputTokens)
			}
		default:
			// web_search_call.* lifecycle and anything else is ignored.
		}
	}

	f.Finish()
	return nil
}
