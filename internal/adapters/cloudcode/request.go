// Package cloudcode adapts canonical requests to the Cloud-Code backend's
// Gemini-shaped wire format (claude-*, gemini-* models), modeled on the
// teacher's internal/infrastructure/llm/gemini provider.
package cloudcode

import (
	"encoding/json"

	"github.com/ccrelay/ccrelay/internal/canonical"
)

type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

type FunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type FunctionResponse struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

type Content struct {
	Role  string `json:"role"` // "user" | "model"
	Parts []Part `json:"parts"`
}

type FunctionDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type ToolSet struct {
	FunctionDeclarations []FunctionDecl `json:"functionDeclarations,omitempty"`
}

type SystemInstruction struct {
	Parts []Part `json:"parts"`
}

type Request struct {
	Model             string             `json:"model"`
	Contents          []Content          `json:"contents"`
	SystemInstruction *SystemInstruction `json:"systemInstruction,omitempty"`
	Tools             []ToolSet          `json:"tools,omitempty"`
	Stream            bool               `json:"-"`
}

// toolNameByCallID resolves which tool a tool_result refers to, since the
// wire functionResponse part needs the name, not just the call id.
func toolNameByCallID(messages []canonical.Message, callID string) string {
	for _, m := range messages {
		for _, b := range m.Content.Blocks() {
			if b.Type == canonical.BlockToolUse && b.ID == callID {
				return b.Name
			}
		}
	}
	return ""
}

// Build applies the common pre-processing then maps to Gemini-shaped
// contents/parts, folding tool_result into a user-turn functionResponse
// part, per the teacher's gemini provider.
func Build(req canonical.Request) Request {
	out := Request{Model: req.Model, Stream: req.Stream}
	if req.System != nil {
		if sys := req.System.Flatten(); sys != "" {
			out.SystemInstruction = &SystemInstruction{Parts: []Part{{Text: sys}}}
		}
	}
	for _, t := range req.Tools {
		if len(out.Tools) == 0 {
			out.Tools = []ToolSet{{}}
		}
		out.Tools[0].FunctionDeclarations = append(out.Tools[0].FunctionDeclarations, FunctionDecl{
			Name: t.Name, Description: t.Description, Parameters: t.InputSchema,
		})
	}

	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		var parts []Part
		for _, b := range canonical.StripCacheControl(m.Content.Blocks()) {
			switch b.Type {
			case canonical.BlockText:
				parts = append(parts, Part{Text: b.Text})
			case canonical.BlockToolUse:
				parts = append(parts, Part{FunctionCall: &FunctionCall{Name: b.Name, Args: b.Input}})
			case canonical.BlockToolResult:
				name := toolNameByCallID(req.Messages, b.ToolUseID)
				response := b.Content
				if len(response) == 0 {
					response = json.RawMessage(`{}`)
				}
				parts = append(parts, Part{FunctionResponse: &FunctionResponse{Name: name, Response: response}})
				role = "user" // tool results always ride in a user turn
			case canonical.BlockThinking:
				// dropped
			}
		}
		if len(parts) == 0 {
			continue
		}
		out.Contents = append(out.Contents, Content{Role: role, Parts: parts})
	}
	return out
}
