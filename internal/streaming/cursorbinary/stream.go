// Package cursorbinary drives the shared block-framing state machine from
// the length-prefixed binary backend's response body (§4.6): the whole
// body is decompressed frame-by-frame first, then each payload decoded
// into an intermediate {text?, toolCall?, error?} shape.
package cursorbinary

import (
	"encoding/json"
	"io"

	"github.com/ccrelay/ccrelay/internal/adapters/cursorbinary"
	"github.com/ccrelay/ccrelay/internal/apperr"
	"github.com/ccrelay/ccrelay/internal/canonical"
	"github.com/ccrelay/ccrelay/internal/streaming/framer"
)

type wirePayload struct {
	Text     string          `json:"text,omitempty"`
	ToolCall *wireToolCall   `json:"toolCall,omitempty"`
	Error    *wireErrorField `json:"error,omitempty"`
}

type wireToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type wireErrorField struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

// Consume reads the full framed body, decodes every frame, and drives the
// shared framer from each payload. An embedded error payload short-circuits
// the stream with an AppError carrying the backend's status code, so the
// dispatch orchestrator can route it to markInvalid/markRateLimited exactly
// as it would a non-2xx HTTP response.
func Consume(r io.Reader, id, model string, emit func(canonical.Event)) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return apperr.Wrap(apperr.Transport, "read binary response body", err)
	}
	frames, err := cursorbinary.DecodeFrames(body)
	if err != nil {
		return err
	}

	f := framer.New(id, model, emit)
	started := map[string]bool{}

	for _, frame := range frames {
		var p wirePayload
		if json.Unmarshal(frame.Payload, &p) != nil {
			continue
		}
		if p.Error != nil {
			return errorFromPayload(*p.Error)
		}
		if p.Text != "" {
			f.TextDelta(p.Text)
		}
		if p.ToolCall != nil {
			if !started[p.ToolCall.ID] {
				started[p.ToolCall.ID] = true
				f.ToolUseStart(p.ToolCall.ID, p.ToolCall.ID, p.ToolCall.Name)
			}
			if len(p.ToolCall.Args) > 0 {
				f.ToolUseDelta(p.ToolCall.ID, string(p.ToolCall.Args))
			}
		}
	}

	f.Finish()
	return nil
}

func errorFromPayload(e wireErrorField) error {
	switch e.StatusCode {
	case 401, 403:
		return apperr.New(apperr.Unauthorized, e.Message)
	case 429:
		return apperr.New(apperr.RateLimited, e.Message)
	default:
		return apperr.NewUpstream(e.StatusCode, e.Message)
	}
}
