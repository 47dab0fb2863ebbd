package translator

import (
	"io"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/hsingjui/openai-to-claude/internal/apierror"
	"github.com/hsingjui/openai-to-claude/internal/json"
	"github.com/hsingjui/openai-to-claude/internal/protocol/claude"
	"github.com/hsingjui/openai-to-claude/internal/protocol/openai"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func contentChunk(text string) *openai.ChatChunk {
	return &openai.ChatChunk{
		ID:      "chatcmpl-s1",
		Choices: []openai.ChunkChoice{{Delta: openai.Delta{Content: text}}},
	}
}

func finishChunk(reason string) *openai.ChatChunk {
	return &openai.ChatChunk{
		ID:      "chatcmpl-s1",
		Choices: []openai.ChunkChoice{{FinishReason: strPtr(reason)}},
	}
}

func usageChunk(prompt, completion int) *openai.ChatChunk {
	return &openai.ChatChunk{
		ID:    "chatcmpl-s1",
		Usage: &openai.Usage{PromptTokens: prompt, CompletionTokens: completion},
	}
}

func mustPush(t *testing.T, st *StreamTranslator, chunk *openai.ChatChunk) []claude.StreamEvent {
	t.Helper()
	events, err := st.Push(chunk)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	return events
}

func mustDone(t *testing.T, st *StreamTranslator) []claude.StreamEvent {
	t.Helper()
	events, err := st.Done()
	if err != nil {
		t.Fatalf("Done failed: %v", err)
	}
	return events
}

func eventNames(events []claude.StreamEvent) []string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Event
	}
	return names
}

func payload(t *testing.T, ev claude.StreamEvent) string {
	t.Helper()
	data, err := json.Marshal(ev.Data)
	if err != nil {
		t.Fatalf("marshal event payload: %v", err)
	}
	return string(data)
}

// checkLifecycle verifies the structural invariants of a finished event
// sequence: starts and stops pair up per index, indices are contiguous
// from zero, and at most one block is open at any moment.
func checkLifecycle(t *testing.T, events []claude.StreamEvent) {
	t.Helper()
	openIdx := -1
	next := 0
	starts, stops := 0, 0
	for _, ev := range events {
		body := payload(t, ev)
		switch ev.Event {
		case claude.EventContentBlockStart:
			starts++
			idx := int(gjson.Get(body, "index").Int())
			if openIdx != -1 {
				t.Fatalf("block %d started while block %d still open", idx, openIdx)
			}
			if idx != next {
				t.Fatalf("block started at index %d, want contiguous %d", idx, next)
			}
			openIdx = idx
			next++
		case claude.EventContentBlockDelta:
			idx := int(gjson.Get(body, "index").Int())
			if idx != openIdx {
				t.Fatalf("delta addressed index %d, open block is %d", idx, openIdx)
			}
		case claude.EventContentBlockStop:
			stops++
			idx := int(gjson.Get(body, "index").Int())
			if idx != openIdx {
				t.Fatalf("stop addressed index %d, open block is %d", idx, openIdx)
			}
			openIdx = -1
		}
	}
	if starts != stops {
		t.Fatalf("%d starts vs %d stops", starts, stops)
	}
	if openIdx != -1 {
		t.Fatalf("block %d never closed", openIdx)
	}
}

func TestStreamTextOnly(t *testing.T) {
	st := NewStreamTranslator("claude-sonnet-4")

	var events []claude.StreamEvent
	events = append(events, mustPush(t, st, contentChunk("Hel"))...)
	events = append(events, mustPush(t, st, contentChunk("lo."))...)
	events = append(events, mustPush(t, st, finishChunk("stop"))...)
	events = append(events, mustPush(t, st, usageChunk(10, 3))...)
	events = append(events, mustDone(t, st)...)

	names := eventNames(events)
	if names[0] != claude.EventMessageStart || names[1] != claude.EventPing {
		t.Fatalf("stream must open with message_start, ping; got %v", names[:2])
	}
	if names[len(names)-1] != claude.EventMessageStop {
		t.Fatalf("stream must end with message_stop; got %v", names)
	}
	checkLifecycle(t, events)

	var text strings.Builder
	for _, ev := range events {
		if ev.Event == claude.EventContentBlockDelta {
			text.WriteString(gjson.Get(payload(t, ev), "delta.text").String())
		}
	}
	if text.String() != "Hello." {
		t.Errorf("reassembled text = %q", text.String())
	}

	start := payload(t, events[0])
	if got := gjson.Get(start, "message.model").String(); got != "claude-sonnet-4" {
		t.Errorf("message_start model = %q", got)
	}
	if got := gjson.Get(start, "message.id").String(); got != "msg_chatcmpl-s1" {
		t.Errorf("message_start id = %q", got)
	}

	var final string
	for _, ev := range events {
		if ev.Event == claude.EventMessageDelta {
			final = payload(t, ev)
		}
	}
	if got := gjson.Get(final, "delta.stop_reason").String(); got != "end_turn" {
		t.Errorf("stop_reason = %q", got)
	}
	if got := gjson.Get(final, "usage.output_tokens").Int(); got != 3 {
		t.Errorf("output_tokens = %d", got)
	}
}

func TestStreamToolCalls(t *testing.T) {
	st := NewStreamTranslator("claude-sonnet-4")

	var events []claude.StreamEvent
	events = append(events, mustPush(t, st, contentChunk("Let me check."))...)
	events = append(events, mustPush(t, st, &openai.ChatChunk{
		ID: "chatcmpl-s1",
		Choices: []openai.ChunkChoice{{Delta: openai.Delta{ToolCalls: []openai.ToolCall{{
			Index:    intPtr(0),
			ID:       "call_a",
			Function: openai.FunctionCall{Name: "get_weather", Arguments: `{"ci`},
		}}}}},
	})...)
	events = append(events, mustPush(t, st, &openai.ChatChunk{
		ID: "chatcmpl-s1",
		Choices: []openai.ChunkChoice{{Delta: openai.Delta{ToolCalls: []openai.ToolCall{{
			Index:    intPtr(0),
			Function: openai.FunctionCall{Arguments: `ty":"Hanoi"}`},
		}}}}},
	})...)
	events = append(events, mustPush(t, st, &openai.ChatChunk{
		ID: "chatcmpl-s1",
		Choices: []openai.ChunkChoice{{Delta: openai.Delta{ToolCalls: []openai.ToolCall{{
			Index:    intPtr(1),
			ID:       "call_b",
			Function: openai.FunctionCall{Name: "get_time"},
		}}}}},
	})...)
	events = append(events, mustPush(t, st, finishChunk("tool_calls"))...)
	events = append(events, mustDone(t, st)...)

	checkLifecycle(t, events)

	// Concatenated fragments per tool block must parse as JSON.
	args := map[int]*strings.Builder{}
	for _, ev := range events {
		body := payload(t, ev)
		switch ev.Event {
		case claude.EventContentBlockStart:
			if gjson.Get(body, "content_block.type").String() == "tool_use" {
				args[int(gjson.Get(body, "index").Int())] = &strings.Builder{}
			}
		case claude.EventContentBlockDelta:
			if gjson.Get(body, "delta.type").String() == "input_json_delta" {
				idx := int(gjson.Get(body, "index").Int())
				if buf, ok := args[idx]; ok {
					buf.WriteString(gjson.Get(body, "delta.partial_json").String())
				}
			}
		}
	}
	if len(args) != 2 {
		t.Fatalf("tool block count = %d, want 2", len(args))
	}
	if got := args[1].String(); gjson.Get(got, "city").String() != "Hanoi" {
		t.Errorf("tool 0 arguments = %q", got)
	}
	// The second tool never received arguments; its input must still be
	// a complete JSON object.
	if got := args[2].String(); got != "{}" {
		t.Errorf("argless tool arguments = %q, want {}", got)
	}

	var final string
	for _, ev := range events {
		if ev.Event == claude.EventMessageDelta {
			final = payload(t, ev)
		}
	}
	if got := gjson.Get(final, "delta.stop_reason").String(); got != "tool_use" {
		t.Errorf("stop_reason = %q", got)
	}
}

func TestStreamAbortWithoutFinish(t *testing.T) {
	st := NewStreamTranslator("claude-sonnet-4")
	mustPush(t, st, contentChunk("partial out"))

	events, err := st.Done()
	if err == nil {
		t.Fatal("expected abort error when the source ends without finish_reason")
	}
	if apierror.AsError(err).Kind != apierror.KindUpstreamContract {
		t.Errorf("error kind = %v, want upstream contract", apierror.AsError(err).Kind)
	}
	if len(events) != 0 {
		t.Errorf("abort must not fabricate terminal events, got %v", eventNames(events))
	}
}

func TestStreamAbortLeavesBlocksOpen(t *testing.T) {
	st := NewStreamTranslator("claude-sonnet-4")
	mustPush(t, st, contentChunk("half a sen"))

	events := st.Abort(apierror.Transport(io.ErrUnexpectedEOF))

	if len(events) != 1 || events[0].Event != claude.EventError {
		t.Fatalf("abort must emit only the error event, got %v", eventNames(events))
	}
	body := payload(t, events[0])
	if got := gjson.Get(body, "error.type").String(); got != "api_error" {
		t.Errorf("error type = %q", got)
	}

	// The machine is terminal and nothing was fabricated for the open
	// block.
	if more, _ := st.Push(contentChunk("late")); len(more) != 0 {
		t.Error("Push after Abort produced events")
	}
	if more, err := st.Done(); err != nil || len(more) != 0 {
		t.Errorf("Done after Abort produced events=%v err=%v", eventNames(more), err)
	}
}

func TestStreamFailClosesOpenBlocks(t *testing.T) {
	st := NewStreamTranslator("claude-sonnet-4")
	mustPush(t, st, contentChunk("half a sen"))

	events := st.Fail(apierror.FromUpstreamStatus(429, []byte(`{"error":{"message":"slow down"}}`)))

	names := eventNames(events)
	if names[0] != claude.EventContentBlockStop {
		t.Fatalf("open block must close before the error event, got %v", names)
	}
	last := events[len(events)-1]
	if last.Event != claude.EventError {
		t.Fatalf("terminal event = %q, want error", last.Event)
	}
	body := payload(t, last)
	if got := gjson.Get(body, "error.type").String(); got != "rate_limit_error" {
		t.Errorf("error type = %q", got)
	}
	if got := gjson.Get(body, "error.message").String(); got != "slow down" {
		t.Errorf("error message = %q", got)
	}

	// The machine is terminal: nothing more comes out.
	if more, _ := st.Push(contentChunk("late")); len(more) != 0 {
		t.Error("Push after Fail produced events")
	}
}

func TestStreamReasoningField(t *testing.T) {
	st := NewStreamTranslator("claude-sonnet-4")

	var events []claude.StreamEvent
	events = append(events, mustPush(t, st, &openai.ChatChunk{
		ID:      "chatcmpl-s1",
		Choices: []openai.ChunkChoice{{Delta: openai.Delta{ReasoningContent: "weigh the"}}},
	})...)
	events = append(events, mustPush(t, st, &openai.ChatChunk{
		ID:      "chatcmpl-s1",
		Choices: []openai.ChunkChoice{{Delta: openai.Delta{ReasoningContent: " options"}}},
	})...)
	events = append(events, mustPush(t, st, contentChunk("Option B."))...)
	events = append(events, mustPush(t, st, finishChunk("stop"))...)
	events = append(events, mustDone(t, st)...)

	checkLifecycle(t, events)

	var sawSignature bool
	var thinkingClosed bool
	for _, ev := range events {
		body := payload(t, ev)
		switch ev.Event {
		case claude.EventContentBlockStart:
			typ := gjson.Get(body, "content_block.type").String()
			idx := gjson.Get(body, "index").Int()
			if idx == 0 && typ != "thinking" {
				t.Errorf("block 0 type = %q, want thinking", typ)
			}
			if idx == 1 && typ != "text" {
				t.Errorf("block 1 type = %q, want text", typ)
			}
		case claude.EventContentBlockDelta:
			if gjson.Get(body, "delta.type").String() == "signature_delta" {
				if thinkingClosed {
					t.Error("signature_delta after thinking block closed")
				}
				sawSignature = true
			}
		case claude.EventContentBlockStop:
			if gjson.Get(body, "index").Int() == 0 {
				thinkingClosed = true
			}
		}
	}
	if !sawSignature {
		t.Error("thinking block closed without a signature_delta")
	}
}

func TestStreamThinkTagsAcrossChunks(t *testing.T) {
	st := NewStreamTranslator("claude-sonnet-4")

	var events []claude.StreamEvent
	events = append(events, mustPush(t, st, contentChunk("<thi"))...)
	events = append(events, mustPush(t, st, contentChunk("nk>deep tho"))...)
	events = append(events, mustPush(t, st, contentChunk("ughts</th"))...)
	events = append(events, mustPush(t, st, contentChunk("ink>visible answer"))...)
	events = append(events, mustPush(t, st, finishChunk("stop"))...)
	events = append(events, mustDone(t, st)...)

	checkLifecycle(t, events)

	var thinking, text strings.Builder
	for _, ev := range events {
		if ev.Event != claude.EventContentBlockDelta {
			continue
		}
		body := payload(t, ev)
		switch gjson.Get(body, "delta.type").String() {
		case "thinking_delta":
			thinking.WriteString(gjson.Get(body, "delta.thinking").String())
		case "text_delta":
			text.WriteString(gjson.Get(body, "delta.text").String())
		}
	}
	if thinking.String() != "deep thoughts" {
		t.Errorf("thinking = %q", thinking.String())
	}
	if text.String() != "visible answer" {
		t.Errorf("text = %q", text.String())
	}
}

func TestStreamFlushesHeldPartialTagAtEnd(t *testing.T) {
	// "<thi" is withheld as a possible opening tag; when the stream ends
	// it is literal text and must not be dropped.
	st := NewStreamTranslator("claude-sonnet-4")

	var events []claude.StreamEvent
	events = append(events, mustPush(t, st, contentChunk("<thi"))...)
	events = append(events, mustPush(t, st, finishChunk("stop"))...)
	events = append(events, mustDone(t, st)...)

	checkLifecycle(t, events)

	var text strings.Builder
	for _, ev := range events {
		if ev.Event == claude.EventContentBlockDelta {
			text.WriteString(gjson.Get(payload(t, ev), "delta.text").String())
		}
	}
	if text.String() != "<thi" {
		t.Errorf("text = %q, want held prefix flushed", text.String())
	}

	// Inside a thinking section an unterminated close tag is reasoning
	// content.
	st = NewStreamTranslator("claude-sonnet-4")
	events = events[:0]
	events = append(events, mustPush(t, st, contentChunk("<think>deep"))...)
	events = append(events, mustPush(t, st, contentChunk("</th"))...)
	events = append(events, mustPush(t, st, finishChunk("stop"))...)
	events = append(events, mustDone(t, st)...)

	checkLifecycle(t, events)

	var thinking strings.Builder
	for _, ev := range events {
		body := payload(t, ev)
		if ev.Event == claude.EventContentBlockDelta &&
			gjson.Get(body, "delta.type").String() == "thinking_delta" {
			thinking.WriteString(gjson.Get(body, "delta.thinking").String())
		}
	}
	if thinking.String() != "deep</th" {
		t.Errorf("thinking = %q, want held close-tag prefix flushed", thinking.String())
	}
}

func TestStreamToolFragmentWithoutName(t *testing.T) {
	st := NewStreamTranslator("claude-sonnet-4")

	_, err := st.Push(&openai.ChatChunk{
		ID: "chatcmpl-s1",
		Choices: []openai.ChunkChoice{{Delta: openai.Delta{ToolCalls: []openai.ToolCall{{
			Index:    intPtr(0),
			Function: openai.FunctionCall{Arguments: `{"x":1}`},
		}}}}},
	})
	if err == nil {
		t.Fatal("expected contract error for nameless first fragment")
	}
	if apierror.AsError(err).Kind != apierror.KindUpstreamContract {
		t.Errorf("error kind = %v", apierror.AsError(err).Kind)
	}
}

func TestStreamIgnoresAfterDone(t *testing.T) {
	st := NewStreamTranslator("claude-sonnet-4")
	mustPush(t, st, contentChunk("done soon"))
	mustPush(t, st, finishChunk("stop"))
	mustDone(t, st)

	if events := mustPush(t, st, contentChunk("stray")); len(events) != 0 {
		t.Errorf("Push after Done produced %v", eventNames(events))
	}
	if events, err := st.Done(); err != nil || len(events) != 0 {
		t.Errorf("second Done produced events=%v err=%v", eventNames(events), err)
	}
}

func TestStreamUsageMonotonic(t *testing.T) {
	st := NewStreamTranslator("claude-sonnet-4")
	mustPush(t, st, contentChunk("x"))
	mustPush(t, st, usageChunk(10, 5))
	mustPush(t, st, usageChunk(10, 2)) // stale frame must not shrink counts
	mustPush(t, st, finishChunk("stop"))
	events := mustDone(t, st)

	var final string
	for _, ev := range events {
		if ev.Event == claude.EventMessageDelta {
			final = payload(t, ev)
		}
	}
	if got := gjson.Get(final, "usage.output_tokens").Int(); got != 5 {
		t.Errorf("output_tokens = %d, want 5", got)
	}
}
