// Package claude defines the wire types of the client-facing Messages
// protocol: requests, content blocks, responses, streaming lifecycle
// events and the error envelope.
package claude

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Roles accepted in the messages list.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content block type tags.
const (
	BlockText       = "text"
	BlockImage      = "image"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
	BlockThinking   = "thinking"
)

// Stop reasons reported to the client.
const (
	StopEndTurn      = "end_turn"
	StopMaxTokens    = "max_tokens"
	StopToolUse      = "tool_use"
	StopStopSequence = "stop_sequence"
	StopRefusal      = "refusal"
)

// MessagesRequest is the incoming request body for POST /v1/messages.
type MessagesRequest struct {
	Model         string          `json:"model"`
	Messages      []Message       `json:"messages"`
	System        json.RawMessage `json:"system,omitempty"`
	Tools         []Tool          `json:"tools,omitempty"`
	ToolChoice    *ToolChoice     `json:"tool_choice,omitempty"`
	Thinking      *Thinking       `json:"thinking,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	MaxTokens     int             `json:"max_tokens"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	TopK          *int            `json:"top_k,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
}

// CountTokensRequest is the incoming body for POST /v1/messages/count_tokens.
type CountTokensRequest struct {
	Model    string          `json:"model"`
	Messages []Message       `json:"messages"`
	System   json.RawMessage `json:"system,omitempty"`
	Tools    []Tool          `json:"tools,omitempty"`
}

// CountTokensResponse is the response body for token counting.
type CountTokensResponse struct {
	InputTokens int `json:"input_tokens"`
}

// Message represents a single user/assistant turn. Content may arrive as
// a plain string or as an ordered array of content blocks.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Tool is a Messages API tool definition. InputSchema is carried as an
// opaque JSON Schema object so required/optional distinctions round-trip
// without loss.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// ToolChoice selects how the model may use tools.
// Type is one of "auto", "any", "tool", "none".
type ToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// Thinking enables extended reasoning output.
type Thinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// Enabled reports whether the client asked for reasoning output.
func (t *Thinking) Enabled() bool {
	return t != nil && t.Type == "enabled"
}

// ContentBlock is the tagged variant over all block shapes that may
// appear inside a message. Exactly the fields of the tagged type are
// populated; translation boundaries switch on Type exhaustively.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// ImageSource carries an image payload, base64-encoded or by URL.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// MessagesResponse is the non-streaming response for POST /v1/messages.
type MessagesResponse struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	Role         string            `json:"role"`
	Model        string            `json:"model"`
	Content      []OutContentBlock `json:"content"`
	StopReason   *string           `json:"stop_reason"`
	StopSequence *string           `json:"stop_sequence"`
	Usage        Usage             `json:"usage"`

	// NativeFinishReason preserves a backend finish_reason that had no
	// direct mapping. Diagnostic only.
	NativeFinishReason string `json:"native_finish_reason,omitempty"`
}

// OutContentBlock is a content block in an assistant response.
type OutContentBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     any    `json:"input,omitempty"`
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// Usage holds Messages API token accounting.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ErrorResponse is the canonical error envelope.
type ErrorResponse struct {
	Type  string    `json:"type"`
	Error ErrorBody `json:"error"`
}

// ErrorBody is the nested error payload.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ParseContent parses message content that may be a string or an array
// of blocks. Block order is preserved.
func (m *Message) ParseContent() ([]ContentBlock, error) {
	if len(m.Content) == 0 {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return []ContentBlock{{Type: BlockText, Text: s}}, nil
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		return nil, fmt.Errorf("invalid message content for role %q", m.Role)
	}
	return blocks, nil
}

// ParseSystemText parses the "system" field, which may be a string or an
// array of text blocks.
func ParseSystemText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", fmt.Errorf("invalid system field")
	}

	var parts []string
	for _, b := range blocks {
		if b.Type == "" || b.Type == BlockText {
			if txt := strings.TrimSpace(b.Text); txt != "" {
				parts = append(parts, txt)
			}
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// ParseToolResultText flattens tool_result.content into plain text.
func ParseToolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var out strings.Builder
		for _, b := range blocks {
			if b.Type == "" || b.Type == BlockText {
				out.WriteString(b.Text)
			}
		}
		return out.String()
	}
	return strings.TrimSpace(string(raw))
}
