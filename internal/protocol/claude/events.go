package claude

import (
	"github.com/hsingjui/openai-to-claude/internal/json"
)

// Streaming lifecycle event names.
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventPing              = "ping"
	EventError             = "error"
)

// Delta type tags inside content_block_delta payloads.
const (
	DeltaText      = "text_delta"
	DeltaInputJSON = "input_json_delta"
	DeltaThinking  = "thinking_delta"
	DeltaSignature = "signature_delta"
)

// StreamEvent pairs an SSE event name with its JSON payload.
type StreamEvent struct {
	Event string
	Data  any
}

// SSE renders the event in server-sent-events wire form.
func (e StreamEvent) SSE() ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 7+len(e.Event)+7+len(payload)+2)
	buf = append(buf, "event: "...)
	buf = append(buf, e.Event...)
	buf = append(buf, "\ndata: "...)
	buf = append(buf, payload...)
	buf = append(buf, "\n\n"...)
	return buf, nil
}

// MessageStartPayload carries the skeleton assistant message.
type MessageStartPayload struct {
	Type    string           `json:"type"`
	Message MessagesResponse `json:"message"`
}

// BlockStartPayload announces a new content block at a target index.
type BlockStartPayload struct {
	Type         string          `json:"type"`
	Index        int             `json:"index"`
	ContentBlock OutContentBlock `json:"content_block"`
}

// BlockDeltaPayload carries incremental content for an open block.
type BlockDeltaPayload struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta Delta  `json:"delta"`
}

// Delta is the tagged variant inside content_block_delta.
type Delta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

// BlockStopPayload closes the block at a target index.
type BlockStopPayload struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// MessageDeltaPayload carries the terminal stop reason and final usage.
type MessageDeltaPayload struct {
	Type  string       `json:"type"`
	Delta MessageDelta `json:"delta"`
	Usage Usage        `json:"usage"`
}

// MessageDelta holds message-level terminal fields.
type MessageDelta struct {
	StopReason   *string `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

// MessageStopPayload terminates the stream.
type MessageStopPayload struct {
	Type string `json:"type"`
}

// PingPayload is a keep-alive event.
type PingPayload struct {
	Type string `json:"type"`
}

// NewBlockStart builds a content_block_start event.
func NewBlockStart(index int, block OutContentBlock) StreamEvent {
	return StreamEvent{Event: EventContentBlockStart, Data: BlockStartPayload{
		Type: EventContentBlockStart, Index: index, ContentBlock: block,
	}}
}

// NewBlockDelta builds a content_block_delta event.
func NewBlockDelta(index int, delta Delta) StreamEvent {
	return StreamEvent{Event: EventContentBlockDelta, Data: BlockDeltaPayload{
		Type: EventContentBlockDelta, Index: index, Delta: delta,
	}}
}

// NewBlockStop builds a content_block_stop event.
func NewBlockStop(index int) StreamEvent {
	return StreamEvent{Event: EventContentBlockStop, Data: BlockStopPayload{
		Type: EventContentBlockStop, Index: index,
	}}
}

// NewPing builds a ping event.
func NewPing() StreamEvent {
	return StreamEvent{Event: EventPing, Data: PingPayload{Type: EventPing}}
}

// NewError builds a terminal error event.
func NewError(errType, message string) StreamEvent {
	return StreamEvent{Event: EventError, Data: ErrorResponse{
		Type:  "error",
		Error: ErrorBody{Type: errType, Message: message},
	}}
}
