package translator

import (
	"strings"

	"github.com/hsingjui/openai-to-claude/internal/apierror"
	"github.com/hsingjui/openai-to-claude/internal/protocol/claude"
	"github.com/hsingjui/openai-to-claude/internal/protocol/openai"
)

// StreamTranslator re-derives the block-lifecycle event stream from
// index-addressed backend chunks. It is a single-use state machine: feed
// every chunk through Push in arrival order, then call Done exactly once
// when the backend signals a clean end, or Fail on any error. At most
// one content block is open at any moment; target indices are assigned
// contiguously from zero in first-content order.
//
// Not safe for concurrent use; a stream has one reader.
type StreamTranslator struct {
	requestedModel string
	messageID      string

	started bool
	done    bool

	nextIndex int
	open      *openBlock
	toolIndex map[int]int  // source tool-call index -> target block index
	toolArgs  map[int]bool // target block index -> saw at least one fragment
	closed    map[int]bool // target block index -> closed

	scanner   thinkScanner
	fieldMode bool // reasoning arrives via reasoning_content, not tags

	sawFinish  bool
	stopReason string
	native     string
	usage      claude.Usage
}

type openBlock struct {
	index int
	typ   string
}

// NewStreamTranslator creates a translator for one streaming response.
// The requested model id is echoed in message_start.
func NewStreamTranslator(requestedModel string) *StreamTranslator {
	return &StreamTranslator{
		requestedModel: requestedModel,
		toolIndex:      make(map[int]int),
		toolArgs:       make(map[int]bool),
		closed:         make(map[int]bool),
	}
}

// Push consumes one backend chunk and returns the lifecycle events it
// produces, possibly none. A chunk that violates the backend contract
// (a tool-call fragment with no preceding name, or addressed to a block
// that already closed) returns an error; the caller should then Fail
// the stream.
func (st *StreamTranslator) Push(chunk *openai.ChatChunk) ([]claude.StreamEvent, error) {
	if st.done {
		return nil, nil
	}

	var events []claude.StreamEvent
	if !st.started {
		st.started = true
		st.messageID = messageID(chunk.ID)
		events = append(events, st.messageStart(), claude.NewPing())
	}

	if chunk.Usage != nil {
		st.mergeUsage(chunk.Usage)
	}
	if len(chunk.Choices) == 0 {
		// Usage-only trailer frame.
		return events, nil
	}
	choice := chunk.Choices[0]

	if choice.Delta.ReasoningContent != "" {
		st.fieldMode = true
		events = append(events, st.emitThinking(choice.Delta.ReasoningContent)...)
	}

	if choice.Delta.Content != "" {
		thinking, text := st.scanContent(choice.Delta.Content)
		if thinking != "" {
			events = append(events, st.emitThinking(thinking)...)
		}
		if text != "" {
			events = append(events, st.emitText(text)...)
		}
	}

	for _, call := range choice.Delta.ToolCalls {
		toolEvents, err := st.emitToolCall(call)
		if err != nil {
			return events, err
		}
		events = append(events, toolEvents...)
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		st.sawFinish = true
		st.stopReason, st.native = MapStopReason(*choice.FinishReason)
	}

	return events, nil
}

// Done finalizes a stream whose backend source ended cleanly. It closes
// any still-open block, then emits message_delta with the recorded stop
// reason and cumulative usage, then message_stop. A source that ended
// without ever reporting a finish_reason aborted mid-stream; that is a
// contract violation, and no terminal events are fabricated for it.
func (st *StreamTranslator) Done() ([]claude.StreamEvent, error) {
	if st.done {
		return nil, nil
	}
	st.done = true

	if !st.sawFinish {
		return nil, apierror.Contract("backend stream ended without a finish_reason")
	}

	var events []claude.StreamEvent
	if !st.fieldMode {
		// Text withheld as a potential partial tag can no longer complete
		// one; it is literal content.
		thinking, text := st.scanner.flush()
		if thinking != "" {
			events = append(events, st.emitThinking(thinking)...)
		}
		if text != "" {
			events = append(events, st.emitText(text)...)
		}
	}
	events = append(events, st.closeOpen()...)

	stop := st.stopReason
	events = append(events, claude.StreamEvent{
		Event: claude.EventMessageDelta,
		Data: claude.MessageDeltaPayload{
			Type:  claude.EventMessageDelta,
			Delta: claude.MessageDelta{StopReason: &stop},
			Usage: st.usage,
		},
	})
	events = append(events, claude.StreamEvent{
		Event: claude.EventMessageStop,
		Data:  claude.MessageStopPayload{Type: claude.EventMessageStop},
	})
	return events, nil
}

// Fail terminates the stream after an error. Open blocks are closed so
// strict clients do not hang on an unbalanced lifecycle, then a single
// error event carries the mapped failure.
func (st *StreamTranslator) Fail(err error) []claude.StreamEvent {
	if st.done {
		return nil
	}
	st.done = true

	apiErr := apierror.AsError(err)
	events := st.closeOpen()
	return append(events, claude.NewError(apiErr.Type, apiErr.Message))
}

// Abort terminates the stream after abrupt transport loss. Whatever was
// already flushed to the client stands as-is: no synthetic block closes,
// no terminal events, only the single error signal.
func (st *StreamTranslator) Abort(err error) []claude.StreamEvent {
	if st.done {
		return nil
	}
	st.done = true

	apiErr := apierror.AsError(err)
	return []claude.StreamEvent{claude.NewError(apiErr.Type, apiErr.Message)}
}

// Started reports whether message_start has been emitted. Before that
// point a failure can still be reported as a plain HTTP error instead of
// an in-stream error event.
func (st *StreamTranslator) Started() bool {
	return st.started
}

func (st *StreamTranslator) messageStart() claude.StreamEvent {
	return claude.StreamEvent{
		Event: claude.EventMessageStart,
		Data: claude.MessageStartPayload{
			Type: claude.EventMessageStart,
			Message: claude.MessagesResponse{
				ID:      st.messageID,
				Type:    "message",
				Role:    claude.RoleAssistant,
				Model:   st.requestedModel,
				Content: []claude.OutContentBlock{},
			},
		},
	}
}

func (st *StreamTranslator) emitThinking(text string) []claude.StreamEvent {
	events := st.ensureBlock(claude.BlockThinking, claude.OutContentBlock{
		Type: claude.BlockThinking,
	})
	return append(events, claude.NewBlockDelta(st.open.index, claude.Delta{
		Type:     claude.DeltaThinking,
		Thinking: text,
	}))
}

func (st *StreamTranslator) emitText(text string) []claude.StreamEvent {
	events := st.ensureBlock(claude.BlockText, claude.OutContentBlock{
		Type: claude.BlockText,
	})
	return append(events, claude.NewBlockDelta(st.open.index, claude.Delta{
		Type: claude.DeltaText,
		Text: text,
	}))
}

// emitToolCall handles one tool-call fragment. The first fragment of a
// source index must carry the function name; argument fragments are
// forwarded verbatim so their concatenation equals the backend payload.
func (st *StreamTranslator) emitToolCall(call openai.ToolCall) ([]claude.StreamEvent, error) {
	srcIdx := 0
	if call.Index != nil {
		srcIdx = *call.Index
	}

	target, known := st.toolIndex[srcIdx]
	var events []claude.StreamEvent

	if !known {
		if call.Function.Name == "" {
			return nil, apierror.Contract(
				"tool-call fragment at source index %d arrived before its function name", srcIdx)
		}
		events = st.ensureBlock(claude.BlockToolUse, claude.OutContentBlock{
			Type:  claude.BlockToolUse,
			ID:    toolCallID(call.ID),
			Name:  call.Function.Name,
			Input: map[string]any{},
		})
		target = st.open.index
		st.toolIndex[srcIdx] = target
	} else if st.closed[target] {
		return nil, apierror.Contract(
			"tool-call fragment for source index %d addresses a closed block", srcIdx)
	}

	if call.Function.Arguments != "" {
		st.toolArgs[target] = true
		events = append(events, claude.NewBlockDelta(target, claude.Delta{
			Type:        claude.DeltaInputJSON,
			PartialJSON: call.Function.Arguments,
		}))
	}
	return events, nil
}

// ensureBlock makes a block of the wanted type the open block, closing
// the current one first when the type changes. Tool blocks are never
// reused across calls; each new source tool index opens a fresh block.
func (st *StreamTranslator) ensureBlock(typ string, block claude.OutContentBlock) []claude.StreamEvent {
	if st.open != nil && st.open.typ == typ && typ != claude.BlockToolUse {
		return nil
	}
	events := st.closeOpen()
	idx := st.nextIndex
	st.nextIndex++
	st.open = &openBlock{index: idx, typ: typ}
	return append(events, claude.NewBlockStart(idx, block))
}

// closeOpen closes the currently open block, emitting the deltas its
// type requires before the stop: a signature for thinking blocks, and an
// empty-object fragment for tool blocks that never received arguments so
// the accumulated input is always valid JSON.
func (st *StreamTranslator) closeOpen() []claude.StreamEvent {
	if st.open == nil {
		return nil
	}
	var events []claude.StreamEvent
	switch st.open.typ {
	case claude.BlockThinking:
		events = append(events, claude.NewBlockDelta(st.open.index, claude.Delta{
			Type:      claude.DeltaSignature,
			Signature: "",
		}))
	case claude.BlockToolUse:
		if !st.toolArgs[st.open.index] {
			events = append(events, claude.NewBlockDelta(st.open.index, claude.Delta{
				Type:        claude.DeltaInputJSON,
				PartialJSON: "{}",
			}))
		}
	}
	events = append(events, claude.NewBlockStop(st.open.index))
	st.closed[st.open.index] = true
	st.open = nil
	return events
}

func (st *StreamTranslator) mergeUsage(u *openai.Usage) {
	// Usage trailers are cumulative; never let a stale frame shrink them.
	if u.PromptTokens > st.usage.InputTokens {
		st.usage.InputTokens = u.PromptTokens
	}
	if u.CompletionTokens > st.usage.OutputTokens {
		st.usage.OutputTokens = u.CompletionTokens
	}
}

func (st *StreamTranslator) scanContent(content string) (string, string) {
	if st.fieldMode {
		return "", content
	}
	return st.scanner.feed(content)
}

// thinkScanner splits a content stream whose reasoning arrives inline as
// a leading <think>...</think> section. Tags may split across chunk
// boundaries, so a potential partial tag is carried until the next feed
// resolves it.
type thinkScanner struct {
	state int // 0 before any text, 1 inside <think>, 2 plain text
	carry string
}

const (
	scanStart = iota
	scanThinking
	scanText
)

func (s *thinkScanner) feed(chunk string) (thinking, text string) {
	s.carry += chunk

	for s.carry != "" {
		switch s.state {
		case scanStart:
			trimmed := strings.TrimLeft(s.carry, " \t\r\n")
			if trimmed == "" {
				return thinking, text
			}
			if strings.HasPrefix(trimmed, thinkOpenTag) {
				s.carry = trimmed[len(thinkOpenTag):]
				s.state = scanThinking
				continue
			}
			if strings.HasPrefix(thinkOpenTag, trimmed) {
				// Could still become an opening tag; wait for more.
				s.carry = trimmed
				return thinking, text
			}
			s.state = scanText

		case scanThinking:
			if end := strings.Index(s.carry, thinkCloseTag); end >= 0 {
				thinking += s.carry[:end]
				s.carry = s.carry[end+len(thinkCloseTag):]
				s.state = scanText
				continue
			}
			hold := partialTagSuffix(s.carry, thinkCloseTag)
			thinking += s.carry[:len(s.carry)-hold]
			s.carry = s.carry[len(s.carry)-hold:]
			return thinking, text

		case scanText:
			text += s.carry
			s.carry = ""
		}
	}
	return thinking, text
}

// flush surrenders any buffered partial-tag text at stream end.
func (s *thinkScanner) flush() (thinking, text string) {
	held := s.carry
	s.carry = ""
	if held == "" {
		return "", ""
	}
	if s.state == scanThinking {
		return held, ""
	}
	return "", held
}

// partialTagSuffix returns the length of the longest suffix of s that is
// a proper prefix of tag.
func partialTagSuffix(s, tag string) int {
	max := len(tag) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}
