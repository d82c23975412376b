// Package cursorbinary adapts canonical requests to the length-prefixed,
// optionally gzipped binary wire used by the cu/|cursor/ backend (§4.5.c),
// and computes the header set that RPC expects per call.
package cursorbinary

import (
	"encoding/json"
	"strings"

	"github.com/ccrelay/ccrelay/internal/canonical"
)

// Message is the backend's flattened turn shape: one text blob per turn,
// plus any tool calls/results folded in as separate typed fields, since the
// wire has no block-array concept.
type Message struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	ToolInput  json.RawMessage `json:"toolInput,omitempty"`
	ToolOutput string          `json:"toolOutput,omitempty"`
}

type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Payload is the canonical intermediate {model, messages, tools,
// reasoningEffort} that the frame encoder serializes per call.
type Payload struct {
	Model           string    `json:"model"`
	Messages        []Message `json:"messages"`
	Tools           []Tool    `json:"tools,omitempty"`
	ReasoningEffort string    `json:"reasoningEffort,omitempty"`
}

// Build maps a canonical request to the binary backend's intermediate
// payload. Reasoning effort rides in a vendor-specific field on the
// canonical request's model string suffix is not modeled; callers supply it
// directly when known, defaulting to empty (backend default).
func Build(req canonical.Request, reasoningEffort string) Payload {
	out := Payload{Model: stripModelPrefix(req.Model), ReasoningEffort: reasoningEffort}
	if req.System != nil {
		if sys := req.System.Flatten(); sys != "" {
			out.Messages = append(out.Messages, Message{Role: "system", Content: sys})
		}
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, buildMessages(m)...)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, Tool{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
	}
	return out
}

// stripModelPrefix removes the cu/|cursor/ routing tag dispatch used to
// select this backend — the wire call only ever sees the bare upstream
// model name, mirroring the teacher's openai_builtin.go prefix strip.
func stripModelPrefix(model string) string {
	if idx := strings.Index(model, "/"); idx >= 0 {
		return model[idx+1:]
	}
	return model
}

func buildMessages(m canonical.Message) []Message {
	blocks := canonical.StripCacheControl(m.Content.Blocks())
	var text string
	var out []Message
	for _, b := range blocks {
		switch b.Type {
		case canonical.BlockText:
			if text != "" {
				text += "\n"
			}
			text += b.Text
		case canonical.BlockToolUse:
			out = append(out, Message{Role: m.Role, ToolCallID: b.ID, ToolName: b.Name, ToolInput: b.Input})
		case canonical.BlockToolResult:
			out = append(out, Message{Role: m.Role, ToolCallID: b.ToolUseID, ToolOutput: b.ToolResultText()})
		case canonical.BlockThinking:
			// no wire counterpart
		}
	}
	if text != "" {
		out = append([]Message{{Role: m.Role, Content: text}}, out...)
	}
	if len(out) == 0 {
		return []Message{{Role: m.Role}}
	}
	return out
}
