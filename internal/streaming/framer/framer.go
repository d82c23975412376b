// Package framer implements the shared canonical-event block-framing state
// machine every backend streaming adapter drives (§4.6): allocating block
// indices, opening/closing text and tool_use blocks, and finalizing the
// stream with the correct stop_reason.
package framer

import (
	"github.com/ccrelay/ccrelay/internal/canonical"
)

type toolBlock struct {
	callID string
	index  int
	closed bool
}

// Framer tracks per-request block-framing state and emits canonical events
// via the sink supplied to New. It is not safe for concurrent use — one
// Framer per in-flight request.
type Framer struct {
	id    string
	model string
	emit  func(canonical.Event)

	started   bool
	textIndex *int
	nextIndex int

	toolBlocks  map[string]*toolBlock // keyed by backend item id
	mostRecent  string
	hasToolUse  bool
	inputTokens int
	outTokens   int
}

func New(id, model string, emit func(canonical.Event)) *Framer {
	return &Framer{id: id, model: model, emit: emit, toolBlocks: map[string]*toolBlock{}}
}

func (f *Framer) ensureStarted() {
	if f.started {
		return
	}
	f.started = true
	f.emit(canonical.NewMessageStart(f.id, f.model))
}

func (f *Framer) ensureTextBlock() {
	if f.textIndex != nil {
		return
	}
	idx := f.allocIndex()
	f.textIndex = &idx
	f.emit(canonical.NewContentBlockStart(idx, canonical.ContentBlock{Type: canonical.BlockText}))
}

func (f *Framer) allocIndex() int {
	idx := f.nextIndex
	f.nextIndex++
	return idx
}

func (f *Framer) closeTextBlock() {
	if f.textIndex == nil {
		return
	}
	f.emit(canonical.NewContentBlockStop(*f.textIndex))
	f.textIndex = nil
}

// TextDelta appends a chunk of assistant text, opening message/text blocks
// as needed.
func (f *Framer) TextDelta(text string) {
	if text == "" {
		return
	}
	f.ensureStarted()
	f.ensureTextBlock()
	f.emit(canonical.NewTextDelta(*f.textIndex, text))
}

// ToolUseStart opens a new tool_use block for a newly-announced function
// call, closing any open text block first (text never resumes after a tool
// call starts, matching the wire contract).
func (f *Framer) ToolUseStart(itemID, callID, name string) {
	f.ensureStarted()
	f.closeTextBlock()
	idx := f.allocIndex()
	f.toolBlocks[itemID] = &toolBlock{callID: callID, index: idx}
	f.mostRecent = itemID
	f.hasToolUse = true
	f.emit(canonical.NewContentBlockStart(idx, canonical.ContentBlock{
		Type: canonical.BlockToolUse, ID: callID, Name: name,
	}))
}

// ToolUseDelta appends partial JSON for a tool call's arguments, looking up
// the target block by item id with a fallback to the most recently opened
// tool block when the backend omits the id on deltas.
func (f *Framer) ToolUseDelta(itemID, partialJSON string) {
	block := f.toolBlocks[itemID]
	if block == nil {
		block = f.toolBlocks[f.mostRecent]
	}
	if block == nil || block.closed {
		return
	}
	f.emit(canonical.NewInputJSONDelta(block.index, partialJSON))
}

// ToolUseDone is a no-op finalization marker — the real close happens in
// Finish, which closes every tool block still open; opening a later block
// does not close it.
func (f *Framer) ToolUseDone(itemID string) {}

func (f *Framer) Usage(inputTokens, outputTokens int) {
	if inputTokens > 0 {
		f.inputTokens = inputTokens
	}
	if outputTokens > 0 {
		f.outTokens = outputTokens
	}
}

// Finish closes every still-open block and emits the terminal message_delta
// + message_stop pair. If the stream never started (empty response), it
// first synthesizes a minimal message_start + empty text block pair so the
// contract (every stream has at least one content block) still holds.
func (f *Framer) Finish() {
	if !f.started {
		f.ensureStarted()
		f.ensureTextBlock()
	}
	f.closeTextBlock()
	for id, b := range f.toolBlocks {
		if !b.closed {
			f.emit(canonical.NewContentBlockStop(b.index))
			b.closed = true
			f.toolBlocks[id] = b
		}
	}
	stopReason := canonical.StopEndTurn
	if f.hasToolUse {
		stopReason = canonical.StopToolUse
	}
	f.emit(canonical.NewMessageDelta(stopReason, canonical.Usage{
		InputTokens: f.inputTokens, OutputTokens: f.outTokens,
	}))
	f.emit(canonical.NewMessageStop())
}

// HasToolUse reports whether any tool_use block was opened, for callers
// that need the stop reason before Finish (e.g. non-streaming aggregation).
func (f *Framer) HasToolUse() bool { return f.hasToolUse }
