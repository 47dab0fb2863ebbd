// Package translator implements the bidirectional conversion between
// the client-facing Messages protocol and the backend Chat Completions
// protocol, including the streaming lifecycle re-derivation.
package translator

import (
	"fmt"
	"strings"

	"github.com/hsingjui/openai-to-claude/internal/apierror"
	"github.com/hsingjui/openai-to-claude/internal/config"
	"github.com/hsingjui/openai-to-claude/internal/protocol/claude"
	"github.com/hsingjui/openai-to-claude/internal/protocol/openai"
	"github.com/hsingjui/openai-to-claude/internal/router"
	"github.com/hsingjui/openai-to-claude/internal/tokenizer"
)

// BuildChatRequest converts an inbound Messages request into a backend
// Chat Completions request. The routing decision happens before message
// assembly; parameter overrides are applied last so configuration always
// has final say. Validation failures reject the request before any
// backend call.
func BuildChatRequest(req *claude.MessagesRequest, cfg *config.Config) (*openai.ChatRequest, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	features := router.Features{
		Model:             req.Model,
		HasTools:          len(req.Tools) > 0,
		ThinkingRequested: req.Thinking.Enabled(),
		ContextTokens:     tokenizer.CountRequest(req.Messages, req.System, req.Tools),
		MessageCount:      len(req.Messages),
	}
	model := router.Resolve(features, cfg)

	messages, err := buildMessages(req, model, cfg)
	if err != nil {
		return nil, err
	}
	messages = filterIncompleteToolCalls(messages)

	tools, err := buildTools(req.Tools)
	if err != nil {
		return nil, err
	}
	toolChoice, err := buildToolChoice(req.ToolChoice, cfg)
	if err != nil {
		return nil, err
	}

	out := &openai.ChatRequest{
		Model:      model,
		Messages:   messages,
		Stop:       req.StopSequences,
		Stream:     req.Stream,
		Tools:      tools,
		ToolChoice: toolChoice,
	}
	if req.Stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	maxTokens := req.MaxTokens
	out.MaxTokens = &maxTokens
	out.Temperature = req.Temperature
	out.TopP = req.TopP
	out.TopK = req.TopK
	applyOverrides(out, cfg.Overrides)

	return out, nil
}

func validateRequest(req *claude.MessagesRequest) error {
	if strings.TrimSpace(req.Model) == "" {
		return apierror.Validation("model is required")
	}
	if len(req.Messages) == 0 {
		return apierror.Validation("messages must not be empty")
	}
	if req.MaxTokens <= 0 {
		return apierror.Validation("max_tokens must be a positive integer")
	}
	for i := range req.Messages {
		role := req.Messages[i].Role
		if role != claude.RoleUser && role != claude.RoleAssistant {
			return apierror.Validation("message role must be %q or %q, got %q",
				claude.RoleUser, claude.RoleAssistant, role)
		}
	}
	return nil
}

// applyOverrides replaces client-supplied sampling parameters with the
// configured values. Applied after all client values are mapped, and
// idempotent: applying the same override set twice yields the same
// resolved parameters.
func applyOverrides(out *openai.ChatRequest, ov config.ParameterOverrides) {
	if ov.MaxTokens != nil {
		out.MaxTokens = ov.MaxTokens
	}
	if ov.Temperature != nil {
		out.Temperature = ov.Temperature
	}
	if ov.TopP != nil {
		out.TopP = ov.TopP
	}
	if ov.TopK != nil {
		out.TopK = ov.TopK
	}
}

func buildMessages(req *claude.MessagesRequest, model string, cfg *config.Config) ([]openai.ChatMessage, error) {
	var out []openai.ChatMessage

	system, err := claude.ParseSystemText(req.System)
	if err != nil {
		return nil, apierror.Validation("invalid system field")
	}
	if system != "" {
		out = append(out, openai.ChatMessage{Role: openai.RoleSystem, Content: system})
	}

	for i := range req.Messages {
		converted, err := convertMessage(&req.Messages[i], model, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, converted...)
	}
	return out, nil
}

// convertMessage maps one inbound message onto one or more backend
// messages: tool_result blocks become separate tool-role messages keyed
// by tool_call_id so the backend can correlate them with the matching
// prior call.
func convertMessage(msg *claude.Message, model string, cfg *config.Config) ([]openai.ChatMessage, error) {
	blocks, err := msg.ParseContent()
	if err != nil {
		return nil, apierror.Validation("%v", err)
	}
	if len(blocks) == 0 {
		return nil, apierror.Validation("message content must not be empty")
	}

	var parts []openai.ContentPart
	var toolCalls []openai.ToolCall
	var toolResults []openai.ChatMessage

	for _, block := range blocks {
		switch block.Type {
		case claude.BlockText:
			parts = append(parts, openai.ContentPart{Type: "text", Text: block.Text})
		case claude.BlockImage:
			part, err := convertImage(block.Source, model, cfg)
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		case claude.BlockToolUse:
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, openai.ToolCall{
				ID:       block.ID,
				Type:     "function",
				Function: openai.FunctionCall{Name: block.Name, Arguments: args},
			})
		case claude.BlockToolResult:
			toolResults = append(toolResults, openai.ChatMessage{
				Role:       openai.RoleTool,
				Content:    claude.ParseToolResultText(block.Content),
				ToolCallID: block.ToolUseID,
			})
		case claude.BlockThinking:
			// Reasoning history has no backend representation; it is
			// dropped rather than replayed as visible text.
		default:
			return nil, apierror.Validation("unsupported content block type %q", block.Type)
		}
	}

	var out []openai.ChatMessage
	if len(parts) > 0 || len(toolCalls) > 0 {
		main := openai.ChatMessage{Role: msg.Role, ToolCalls: toolCalls}
		main.Content = flattenParts(parts)
		out = append(out, main)
	}
	out = append(out, toolResults...)
	if len(out) == 0 {
		return nil, apierror.Validation("message carries no convertible content")
	}
	return out, nil
}

// flattenParts collapses a single text part to a plain string; mixed or
// multimodal content stays an array of parts.
func flattenParts(parts []openai.ContentPart) any {
	if len(parts) == 0 {
		return nil
	}
	if len(parts) == 1 && parts[0].Type == "text" {
		return parts[0].Text
	}
	return parts
}

func convertImage(src *claude.ImageSource, model string, cfg *config.Config) (openai.ContentPart, error) {
	if !cfg.Routing.IsMultimodal(model) {
		return openai.ContentPart{}, apierror.Validation(
			"model %q does not support image input", model)
	}
	if src == nil {
		return openai.ContentPart{}, apierror.Validation("image block is missing its source")
	}
	var url string
	switch src.Type {
	case "base64":
		url = fmt.Sprintf("data:%s;base64,%s", src.MediaType, src.Data)
	case "url":
		url = src.URL
	default:
		return openai.ContentPart{}, apierror.Validation("unsupported image source type %q", src.Type)
	}
	return openai.ContentPart{Type: "image_url", ImageURL: &openai.ImageURL{URL: url}}, nil
}

func buildTools(tools []claude.Tool) ([]openai.Tool, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		if strings.TrimSpace(t.Name) == "" {
			return nil, apierror.Validation("tool definitions require a name")
		}
		out = append(out, openai.Tool{
			Type: "function",
			Function: openai.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out, nil
}

// buildToolChoice maps the inbound tool_choice onto the backend
// representation. "any" requires forced tool use on the backend; when
// the profile does not advertise it the request fails closed instead of
// silently degrading to auto.
func buildToolChoice(tc *claude.ToolChoice, cfg *config.Config) (any, error) {
	if tc == nil {
		return nil, nil
	}
	switch tc.Type {
	case "auto":
		return "auto", nil
	case "none":
		return "none", nil
	case "any":
		if !cfg.Routing.SupportsForcedToolUse() {
			return nil, apierror.Validation(
				"tool_choice \"any\" requires forced tool use, which the configured backend does not support")
		}
		return "required", nil
	case "tool":
		if tc.Name == "" {
			return nil, apierror.Validation("tool_choice of type \"tool\" requires a name")
		}
		return openai.ForcedToolChoice{
			Type:     "function",
			Function: openai.ForcedFunction{Name: tc.Name},
		}, nil
	default:
		return nil, apierror.Validation("unsupported tool_choice type %q", tc.Type)
	}
}

// filterIncompleteToolCalls drops assistant tool_calls whose results
// never arrive, and orphan tool messages with no matching call. Backends
// reject histories where the pairing is broken.
func filterIncompleteToolCalls(messages []openai.ChatMessage) []openai.ChatMessage {
	if len(messages) == 0 {
		return messages
	}

	filtered := make([]openai.ChatMessage, 0, len(messages))
	i := 0
	for i < len(messages) {
		msg := messages[i]

		if msg.Role == openai.RoleAssistant && len(msg.ToolCalls) > 0 {
			wanted := make(map[string]bool, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				if call.ID != "" {
					wanted[call.ID] = false
				}
			}
			j := i + 1
			for j < len(messages) && messages[j].Role == openai.RoleTool {
				if _, ok := wanted[messages[j].ToolCallID]; ok {
					wanted[messages[j].ToolCallID] = true
				}
				j++
			}
			complete := true
			for _, found := range wanted {
				if !found {
					complete = false
					break
				}
			}
			if complete {
				filtered = append(filtered, messages[i:j]...)
			}
			i = j
			continue
		}

		if msg.Role == openai.RoleTool {
			if hasMatchingCall(filtered, msg.ToolCallID) {
				filtered = append(filtered, msg)
			}
			i++
			continue
		}

		filtered = append(filtered, msg)
		i++
	}
	return filtered
}

func hasMatchingCall(messages []openai.ChatMessage, toolCallID string) bool {
	for k := len(messages) - 1; k >= 0; k-- {
		msg := messages[k]
		if msg.Role == openai.RoleTool {
			continue
		}
		if msg.Role == openai.RoleAssistant {
			for _, call := range msg.ToolCalls {
				if call.ID == toolCallID {
					return true
				}
			}
		}
		return false
	}
	return false
}
