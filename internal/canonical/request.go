// Package canonical defines the wire shapes of the externally-facing
// Messages API: the request/response/event contract every backend adapter
// translates to and from.
package canonical

import "encoding/json"

// BlockType tags a content block in the discriminated union below.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockThinking   BlockType = "thinking"
)

// CacheControl marks a block for prompt caching upstream. The core never
// forwards this to a backend — it is stripped during adapter pre-processing.
type CacheControl struct {
	Type string `json:"type"`
}

// ContentBlock is the tagged union of everything that can appear inside a
// message's content array. Only the fields relevant to Type are populated;
// callers must switch on Type rather than infer shape from zero values.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"` // string or []ContentBlock
	IsError   bool            `json:"is_error,omitempty"`

	// thinking — opaque, never interpreted, only round-tripped
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// StripCacheControl returns blocks with cache_control removed, per the
// common adapter pre-processing step every backend applies.
func StripCacheControl(blocks []ContentBlock) []ContentBlock {
	out := make([]ContentBlock, len(blocks))
	for i, b := range blocks {
		b.CacheControl = nil
		out[i] = b
	}
	return out
}

// ToolResultText flattens a tool_result block's content to a single string,
// joining any nested text blocks. Used by backends whose wire format wants
// a plain string rather than a block array.
func (b ContentBlock) ToolResultText() string {
	if len(b.Content) == 0 {
		return ""
	}
	var asStr string
	if json.Unmarshal(b.Content, &asStr) == nil {
		return asStr
	}
	var blocks []ContentBlock
	if json.Unmarshal(b.Content, &blocks) == nil {
		var sb []byte
		for _, nb := range blocks {
			if nb.Type == BlockText {
				if len(sb) > 0 {
					sb = append(sb, '\n')
				}
				sb = append(sb, nb.Text...)
			}
		}
		return string(sb)
	}
	return ""
}

// MessageContent is either a plain string or an ordered block sequence.
// Matches the "Message.content is either a string or an ordered sequence
// of blocks" invariant from the data model.
type MessageContent struct {
	text     string
	blocks   []ContentBlock
	wasBlock bool
}

func TextContent(s string) MessageContent { return MessageContent{text: s} }

func BlockContent(blocks []ContentBlock) MessageContent {
	return MessageContent{blocks: blocks, wasBlock: true}
}

// Blocks normalizes content to a block sequence regardless of wire shape.
func (c MessageContent) Blocks() []ContentBlock {
	if c.wasBlock {
		return c.blocks
	}
	if c.text == "" {
		return nil
	}
	return []ContentBlock{{Type: BlockText, Text: c.text}}
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = MessageContent{text: s}
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	*c = MessageContent{blocks: blocks, wasBlock: true}
	return nil
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.wasBlock {
		return json.Marshal(c.blocks)
	}
	return json.Marshal(c.text)
}

// Message is one turn of the conversation.
type Message struct {
	Role    string         `json:"role"` // "user" | "assistant"
	Content MessageContent `json:"content"`
}

// SystemPrompt is either a plain string or a sequence of text blocks; both
// forms collapse to a single concatenated string for backend adapters that
// accept only a string (§4.5 "Extract system prompt").
type SystemPrompt struct {
	text   string
	blocks []TextBlock
}

type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = SystemPrompt{text: str}
		return nil
	}
	var blocks []TextBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	*s = SystemPrompt{blocks: blocks}
	return nil
}

func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	if s.blocks != nil {
		return json.Marshal(s.blocks)
	}
	return json.Marshal(s.text)
}

// Flatten concatenates the system prompt to a single string.
func (s *SystemPrompt) Flatten() string {
	if s == nil {
		return ""
	}
	if s.blocks == nil {
		return s.text
	}
	out := ""
	for i, b := range s.blocks {
		if i > 0 {
			out += "\n"
		}
		out += b.Text
	}
	return out
}

// ToolDecl is a tool/function declaration offered to the model.
type ToolDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Built-in tool names with backend-native execution or no wire counterpart.
const (
	ToolWebSearch     = "WebSearch"
	ToolTask          = "Task"
	ToolDispatchAgent = "dispatch_agent"
	ToolComputer      = "computer"
	ToolBrowser       = "browser"
)

// Request is the accepted shape of POST /v1/messages.
type Request struct {
	Model         string          `json:"model"`
	Messages      []Message       `json:"messages"`
	System        *SystemPrompt   `json:"system,omitempty"`
	Tools         []ToolDecl      `json:"tools,omitempty"`
	ToolChoice    json.RawMessage `json:"tool_choice,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	MaxTokens     int             `json:"max_tokens,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
}

// ToolChoiceKind classifies the tool_choice field for adapters that need to
// translate it (§4.5.a).
type ToolChoiceKind struct {
	Mode string // "auto" | "none" | "any" | "tool"
	Name string // populated when Mode == "tool"
}

func ParseToolChoice(raw json.RawMessage) ToolChoiceKind {
	if len(raw) == 0 {
		return ToolChoiceKind{Mode: "auto"}
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return ToolChoiceKind{Mode: s}
	}
	var obj struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Type == "tool" {
		return ToolChoiceKind{Mode: "tool", Name: obj.Name}
	}
	return ToolChoiceKind{Mode: "auto"}
}
