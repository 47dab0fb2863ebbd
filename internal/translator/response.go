package translator

import (
	"strings"

	"github.com/google/uuid"

	"github.com/hsingjui/openai-to-claude/internal/apierror"
	"github.com/hsingjui/openai-to-claude/internal/json"
	"github.com/hsingjui/openai-to-claude/internal/protocol/claude"
	"github.com/hsingjui/openai-to-claude/internal/protocol/openai"
)

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

// BuildMessagesResponse converts a complete backend response into the
// client-facing Messages shape. Block order is fixed: thinking first,
// then text, then tool_use. The client-requested model id is echoed back
// so callers never see routing internals.
func BuildMessagesResponse(resp *openai.ChatResponse, requestedModel string) (*claude.MessagesResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, apierror.Contract("backend response carries no choices")
	}
	choice := resp.Choices[0]
	if choice.Message == nil {
		return nil, apierror.Contract("backend choice carries no message")
	}

	var blocks []claude.OutContentBlock

	thinking, text := splitThinking(choice.Message.ReasoningContent, choice.Message.Content)
	if thinking != "" {
		blocks = append(blocks, claude.OutContentBlock{
			Type:     claude.BlockThinking,
			Thinking: thinking,
		})
	}
	if text != "" {
		blocks = append(blocks, claude.OutContentBlock{
			Type: claude.BlockText,
			Text: text,
		})
	}

	for _, call := range choice.Message.ToolCalls {
		block, err := convertToolCall(call)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	stopReason, native := MapStopReason(choice.FinishReason)

	out := &claude.MessagesResponse{
		ID:                 messageID(resp.ID),
		Type:               "message",
		Role:               claude.RoleAssistant,
		Model:              requestedModel,
		Content:            blocks,
		StopReason:         &stopReason,
		NativeFinishReason: native,
	}
	if resp.Usage != nil {
		out.Usage = claude.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return out, nil
}

// splitThinking separates reasoning from visible text. Backends surface
// reasoning either as a dedicated reasoning_content field or inline as a
// leading <think>...</think> section of the text.
func splitThinking(reasoning, text string) (string, string) {
	if reasoning != "" {
		return reasoning, text
	}
	trimmed := strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(trimmed, thinkOpenTag) {
		return "", text
	}
	rest := trimmed[len(thinkOpenTag):]
	end := strings.Index(rest, thinkCloseTag)
	if end < 0 {
		// Unterminated tag: the whole body is reasoning.
		return strings.TrimSpace(rest), ""
	}
	thinking := strings.TrimSpace(rest[:end])
	visible := strings.TrimLeft(rest[end+len(thinkCloseTag):], " \t\r\n")
	return thinking, visible
}

// convertToolCall maps one completed tool call. Arguments must be valid
// JSON at this point; a backend that emits garbage violates its contract
// and the failure is surfaced as such rather than forwarded.
func convertToolCall(call openai.ToolCall) (claude.OutContentBlock, error) {
	if call.Function.Name == "" {
		return claude.OutContentBlock{}, apierror.Contract("tool call is missing its function name")
	}
	args := call.Function.Arguments
	if args == "" {
		args = "{}"
	}
	var input map[string]any
	if err := json.UnmarshalString(args, &input); err != nil {
		return claude.OutContentBlock{}, apierror.Contract(
			"tool call %q carries malformed arguments", call.Function.Name)
	}
	return claude.OutContentBlock{
		Type:  claude.BlockToolUse,
		ID:    toolCallID(call.ID),
		Name:  call.Function.Name,
		Input: input,
	}, nil
}

// MapStopReason translates a backend finish_reason into the client stop
// reason. Unknown values map to end_turn with the raw value preserved
// for diagnostics; the second return is non-empty only in that case.
func MapStopReason(finishReason string) (string, string) {
	switch finishReason {
	case openai.FinishStop, "":
		return claude.StopEndTurn, ""
	case openai.FinishLength:
		return claude.StopMaxTokens, ""
	case openai.FinishToolCalls:
		return claude.StopToolUse, ""
	case openai.FinishContentFilter:
		return claude.StopRefusal, ""
	default:
		return claude.StopEndTurn, finishReason
	}
}

func messageID(upstream string) string {
	if upstream != "" {
		if strings.HasPrefix(upstream, "msg_") {
			return upstream
		}
		return "msg_" + upstream
	}
	return "msg_" + uuid.NewString()
}

func toolCallID(upstream string) string {
	if upstream != "" {
		return upstream
	}
	return "toolu_" + uuid.NewString()
}
