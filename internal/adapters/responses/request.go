package responses

import (
	"encoding/json"

	"github.com/ccrelay/ccrelay/internal/canonical"
)

const systemPreamble = "You are an autonomous coding agent operating without further user input between tool calls.\n\n"

// droppedTools have no wire counterpart on this backend and are removed
// from both the tools[] declaration and the conversation.
var droppedTools = map[string]bool{
	canonical.ToolTask:          true,
	canonical.ToolDispatchAgent: true,
	canonical.ToolComputer:      true,
	canonical.ToolBrowser:       true,
}

// InputItem is one element of the wire "input" array. Only the fields for
// Type are populated.
type InputItem struct {
	Type string `json:"type"`

	// message
	Role    string        `json:"role,omitempty"`
	Content []MessagePart `json:"content,omitempty"`

	// function_call
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// function_call_output
	Output string `json:"output,omitempty"`
}

type MessagePart struct {
	Type string `json:"type"` // "input_text" | "output_text"
	Text string `json:"text"`
}

type ToolSpec struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type Request struct {
	Model        string          `json:"model"`
	Input        []InputItem     `json:"input"`
	Instructions string          `json:"instructions,omitempty"`
	Tools        []ToolSpec      `json:"tools,omitempty"`
	ToolChoice   json.RawMessage `json:"tool_choice,omitempty"`
	Stream       bool            `json:"stream"`
	MaxTokens    int             `json:"max_output_tokens,omitempty"`
	Temperature  *float64        `json:"temperature,omitempty"`
}

// Build translates a canonical request to the Responses wire shape,
// applying the common pre-processing (cache-control strip, system
// extraction) plus this backend's block mapping and WebSearch rewiring.
func Build(req canonical.Request) Request {
	hasWebSearch := toolDeclared(req.Tools, canonical.ToolWebSearch)

	out := Request{
		Model:     stripModelPrefix(req.Model),
		Stream:    true, // mandatory for this backend, per §6
		MaxTokens: req.MaxTokens,
	}
	if req.System != nil {
		out.Instructions = systemPreamble + req.System.Flatten()
	} else {
		out.Instructions = systemPreamble
	}

	out.Tools = buildTools(req.Tools, hasWebSearch)
	out.ToolChoice = translateToolChoice(req.ToolChoice)
	out.Input = buildInput(req.Messages, hasWebSearch)
	return out
}

func toolDeclared(tools []canonical.ToolDecl, name string) bool {
	for _, t := range tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

func buildTools(tools []canonical.ToolDecl, hasWebSearch bool) []ToolSpec {
	var out []ToolSpec
	if hasWebSearch {
		out = append(out, ToolSpec{Type: "web_search"})
	}
	for _, t := range tools {
		if t.Name == canonical.ToolWebSearch || droppedTools[t.Name] {
			continue
		}
		out = append(out, ToolSpec{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  SanitizeSchema(t.InputSchema),
		})
	}
	return out
}

func translateToolChoice(raw json.RawMessage) json.RawMessage {
	choice := canonical.ParseToolChoice(raw)
	switch choice.Mode {
	case "any":
		b, _ := json.Marshal("required")
		return b
	case "tool":
		b, _ := json.Marshal(map[string]string{"type": "function", "name": choice.Name})
		return b
	case "none":
		b, _ := json.Marshal("none")
		return b
	default:
		b, _ := json.Marshal("auto")
		return b
	}
}

func buildInput(messages []canonical.Message, hasWebSearch bool) []InputItem {
	var out []InputItem
	for _, m := range messages {
		for _, b := range canonical.StripCacheControl(m.Content.Blocks()) {
			switch b.Type {
			case canonical.BlockText:
				if m.Role == "assistant" {
					out = append(out, InputItem{Type: "message", Role: "assistant",
						Content: []MessagePart{{Type: "output_text", Text: b.Text}}})
				} else {
					out = append(out, InputItem{Type: "message", Role: "user",
						Content: []MessagePart{{Type: "input_text", Text: b.Text}}})
				}
			case canonical.BlockToolUse:
				if hasWebSearch && b.Name == canonical.ToolWebSearch {
					continue
				}
				if droppedTools[b.Name] {
					continue
				}
				out = append(out, InputItem{
					Type: "function_call", CallID: b.ID, Name: b.Name,
					Arguments: string(b.Input),
				})
			case canonical.BlockToolResult:
				if hasWebSearch && resultIsWebSearch(messages, b.ToolUseID) {
					continue
				}
				out = append(out, InputItem{
					Type: "function_call_output", CallID: b.ToolUseID,
					Output: b.ToolResultText(),
				})
			case canonical.BlockThinking:
				// dropped — no wire counterpart
			}
		}
	}
	return out
}

// resultIsWebSearch finds whether toolUseID refers to a WebSearch call
// anywhere earlier in the conversation, so its matching tool_result can be
// removed along with it (§4.5.a, S6).
func resultIsWebSearch(messages []canonical.Message, toolUseID string) bool {
	for _, m := range messages {
		for _, b := range m.Content.Blocks() {
			if b.Type == canonical.BlockToolUse && b.ID == toolUseID && b.Name == canonical.ToolWebSearch {
				return true
			}
		}
	}
	return false
}

// stripModelPrefix returns the model id unchanged: this family is routed by
// the gpt-5*/*codex* name itself rather than by a vendor prefix, so there is
// nothing to remove before the id goes on the wire.
func stripModelPrefix(model string) string {
	return model
}
