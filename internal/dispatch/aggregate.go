package dispatch

import (
	"bytes"
	"encoding/json"

	"github.com/ccrelay/ccrelay/internal/canonical"
)

// aggregator replays the canonical SSE event sequence into a single
// canonical.Response, for callers that asked for a non-streaming reply
// against a backend that is always streamed internally (spec §4.7.3).
// It decodes each event's own wire encoding rather than keeping a second,
// parallel representation in sync with the streaming adapters.
type aggregator struct {
	response canonical.Response
	blocks   map[int]*canonical.ContentBlock
	order    []int
}

func newAggregator() *aggregator {
	return &aggregator{blocks: map[int]*canonical.ContentBlock{}}
}

func eventData(e canonical.Event) []byte {
	var buf bytes.Buffer
	if err := e.Encode(&buf); err != nil {
		return nil
	}
	// wire form is "event: <kind>\ndata: <json>\n\n"
	lines := bytes.SplitN(buf.Bytes(), []byte("\n"), 2)
	if len(lines) < 2 {
		return nil
	}
	rest := bytes.TrimPrefix(lines[1], []byte("data: "))
	return bytes.TrimSpace(rest)
}

func (a *aggregator) Emit(e canonical.Event) {
	data := eventData(e)
	if data == nil {
		return
	}
	switch e.Kind() {
	case "message_start":
		var payload struct {
			Message struct {
				ID    string `json:"id"`
				Type  string `json:"type"`
				Role  string `json:"role"`
				Model string `json:"model"`
			} `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil {
			a.response.ID = payload.Message.ID
			a.response.Type = payload.Message.Type
			a.response.Role = payload.Message.Role
			a.response.Model = payload.Message.Model
		}
	case "content_block_start":
		var payload struct {
			Index        int                   `json:"index"`
			ContentBlock canonical.ContentBlock `json:"content_block"`
		}
		if json.Unmarshal(data, &payload) == nil {
			block := payload.ContentBlock
			a.blocks[payload.Index] = &block
			a.order = append(a.order, payload.Index)
		}
	case "content_block_delta":
		var payload struct {
			Index int            `json:"index"`
			Delta canonical.Delta `json:"delta"`
		}
		if json.Unmarshal(data, &payload) != nil {
			return
		}
		block := a.blocks[payload.Index]
		if block == nil {
			return
		}
		switch payload.Delta.Type {
		case canonical.DeltaText:
			block.Text += payload.Delta.Text
		case canonical.DeltaInputJSON:
			block.Input = append(block.Input, []byte(payload.Delta.PartialJSON)...)
		case canonical.DeltaThinking:
			block.Thinking += payload.Delta.Thinking
		}
	case "message_delta":
		var payload struct {
			Delta struct {
				StopReason canonical.StopReason `json:"stop_reason"`
			} `json:"delta"`
			Usage canonical.Usage `json:"usage"`
		}
		if json.Unmarshal(data, &payload) == nil {
			a.response.StopReason = payload.Delta.StopReason
			a.response.Usage = payload.Usage
		}
	}
}

func (a *aggregator) Result() *canonical.Response {
	for _, idx := range a.order {
		a.response.Content = append(a.response.Content, *a.blocks[idx])
	}
	return &a.response
}
