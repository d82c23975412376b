// Package chatcompletions adapts canonical requests to the
// OpenAI-Chat-Completions-style wire shape used by the gh/|github/ backend
// (§4.5.b) — modeled on the teacher's internal/infrastructure/llm/openai
// buildAPIRequest.
package chatcompletions

import (
	"encoding/json"
	"strings"

	"github.com/ccrelay/ccrelay/internal/canonical"
)

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

type Tool struct {
	Type     string       `json:"type"` // "function"
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type Request struct {
	Model       string          `json:"model"`
	Messages    []Message       `json:"messages"`
	Tools       []Tool          `json:"tools,omitempty"`
	ToolChoice  json.RawMessage `json:"tool_choice,omitempty"`
	Stream      bool            `json:"stream"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

// Build performs the common pre-processing (cache-control strip, system
// extraction) then the standard Chat-Completions mapping: system/user/
// assistant/tool messages, tool_use -> tool_calls[], tool_result -> a role
// "tool" message carrying tool_call_id.
func Build(req canonical.Request) Request {
	out := Request{
		Model:       stripModelPrefix(req.Model),
		Stream:      req.Stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.System != nil {
		if sys := req.System.Flatten(); sys != "" {
			out.Messages = append(out.Messages, Message{Role: "system", Content: sys})
		}
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, buildMessages(m)...)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, Tool{
			Type: "function",
			Function: ToolFunction{
				Name: t.Name, Description: t.Description, Parameters: t.InputSchema,
			},
		})
	}
	out.ToolChoice = translateToolChoice(req.ToolChoice)
	return out
}

func buildMessages(m canonical.Message) []Message {
	blocks := canonical.StripCacheControl(m.Content.Blocks())
	var text string
	var toolCalls []ToolCall
	var toolResults []Message

	for _, b := range blocks {
		switch b.Type {
		case canonical.BlockText:
			if text != "" {
				text += "\n"
			}
			text += b.Text
		case canonical.BlockToolUse:
			toolCalls = append(toolCalls, ToolCall{
				ID: b.ID, Type: "function",
				Function: FunctionCall{Name: b.Name, Arguments: string(b.Input)},
			})
		case canonical.BlockToolResult:
			toolResults = append(toolResults, Message{
				Role: "tool", ToolCallID: b.ToolUseID, Content: b.ToolResultText(),
			})
		case canonical.BlockThinking:
			// no wire counterpart
		}
	}

	if len(toolResults) > 0 {
		return toolResults
	}

	role := m.Role
	msg := Message{Role: role, Content: text}
	if len(toolCalls) > 0 {
		msg.Role = "assistant"
		msg.ToolCalls = toolCalls
		msg.Content = text
	}
	return []Message{msg}
}

// stripModelPrefix removes the gh/|github/ routing tag dispatch used to
// select this backend — the wire call only ever sees the bare upstream
// model name, mirroring the teacher's openai_builtin.go prefix strip.
func stripModelPrefix(model string) string {
	if idx := strings.Index(model, "/"); idx >= 0 {
		return model[idx+1:]
	}
	return model
}

func translateToolChoice(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	choice := canonical.ParseToolChoice(raw)
	switch choice.Mode {
	case "tool":
		b, _ := json.Marshal(map[string]any{
			"type":     "function",
			"function": map[string]string{"name": choice.Name},
		})
		return b
	case "any":
		b, _ := json.Marshal("required")
		return b
	default:
		return raw
	}
}
