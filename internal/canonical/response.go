package canonical

import (
	"encoding/json"
	"fmt"
	"io"
)

// StopReason is the terminal classification of a completed turn. Exactly
// one of its two live values is ever emitted.
type StopReason string

const (
	StopEndTurn     StopReason = "end_turn"
	StopToolUse     StopReason = "tool_use"
	StopMaxTokens   StopReason = "max_tokens"
	StopStopSeq     StopReason = "stop_sequence"
)

// Usage mirrors the upstream token accounting shape. It carries no
// cache-related fields — no backend this proxy talks to reports them.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the non-streaming shape of a completed turn.
type Response struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"` // "message"
	Role       string         `json:"role"` // "assistant"
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason StopReason     `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Event is the internal representation of one item in the canonical SSE
// stream. Exactly one event type is ever produced per transition; the
// wire shape per type differs (§3 "Event stream"), so the payload is
// assembled at Encode time rather than carried as one generic struct.
type Event struct {
	kind string
	data any
}

func (e Event) Kind() string { return e.kind }

// Encode writes the event in Anthropic SSE wire form:
//
//	event: <kind>
//	data: <json>
//	<blank line>
func (e Event) Encode(w io.Writer) error {
	b, err := json.Marshal(e.data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.kind, b)
	return err
}

type messageStartPayload struct {
	Type    string         `json:"type"`
	Message responseHeader `json:"message"`
}

type responseHeader struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Role    string         `json:"role"`
	Model   string         `json:"model"`
	Content []ContentBlock `json:"content"`
	Usage   Usage          `json:"usage"`
}

func NewMessageStart(id, model string) Event {
	return Event{kind: "message_start", data: messageStartPayload{
		Type: "message_start",
		Message: responseHeader{
			ID: id, Type: "message", Role: "assistant", Model: model,
			Content: []ContentBlock{}, Usage: Usage{},
		},
	}}
}

type contentBlockStartPayload struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

func NewContentBlockStart(index int, block ContentBlock) Event {
	return Event{kind: "content_block_start", data: contentBlockStartPayload{
		Type: "content_block_start", Index: index, ContentBlock: block,
	}}
}

// Delta is the incremental payload of a content_block_delta event. Exactly
// one of Text/PartialJSON/Thinking is populated, matching Type.
type Delta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
}

const (
	DeltaText        = "text_delta"
	DeltaInputJSON   = "input_json_delta"
	DeltaThinking    = "thinking_delta"
)

type contentBlockDeltaPayload struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta Delta  `json:"delta"`
}

func NewTextDelta(index int, text string) Event {
	return Event{kind: "content_block_delta", data: contentBlockDeltaPayload{
		Type: "content_block_delta", Index: index,
		Delta: Delta{Type: DeltaText, Text: text},
	}}
}

func NewInputJSONDelta(index int, partialJSON string) Event {
	return Event{kind: "content_block_delta", data: contentBlockDeltaPayload{
		Type: "content_block_delta", Index: index,
		Delta: Delta{Type: DeltaInputJSON, PartialJSON: partialJSON},
	}}
}

func NewThinkingDelta(index int, thinking string) Event {
	return Event{kind: "content_block_delta", data: contentBlockDeltaPayload{
		Type: "content_block_delta", Index: index,
		Delta: Delta{Type: DeltaThinking, Thinking: thinking},
	}}
}

type contentBlockStopPayload struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

func NewContentBlockStop(index int) Event {
	return Event{kind: "content_block_stop", data: contentBlockStopPayload{
		Type: "content_block_stop", Index: index,
	}}
}

type messageDeltaPayload struct {
	Type  string            `json:"type"`
	Delta messageDeltaInner `json:"delta"`
	Usage Usage             `json:"usage"`
}

type messageDeltaInner struct {
	StopReason StopReason `json:"stop_reason"`
}

func NewMessageDelta(stopReason StopReason, usage Usage) Event {
	return Event{kind: "message_delta", data: messageDeltaPayload{
		Type: "message_delta", Delta: messageDeltaInner{StopReason: stopReason}, Usage: usage,
	}}
}

type messageStopPayload struct {
	Type string `json:"type"`
}

func NewMessageStop() Event {
	return Event{kind: "message_stop", data: messageStopPayload{Type: "message_stop"}}
}

type pingPayload struct {
	Type string `json:"type"`
}

func NewPing() Event {
	return Event{kind: "ping", data: pingPayload{Type: "ping"}}
}

// ErrorBody is the JSON body returned on non-2xx responses and, for a
// stream that fails mid-flight, the payload of a final SSE "error" event.
type ErrorBody struct {
	Type  string    `json:"type"`
	Error ErrorInfo `json:"error"`
}

type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorEvent(errType, message string) Event {
	return Event{kind: "error", data: ErrorBody{
		Type: "error", Error: ErrorInfo{Type: errType, Message: message},
	}}
}
