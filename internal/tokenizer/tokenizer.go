// Package tokenizer estimates request token counts for model routing.
// Counts are approximations over the cl100k_base encoding; they feed the
// long-context routing rule and the count_tokens endpoint, never billing.
package tokenizer

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/hsingjui/openai-to-claude/internal/json"
	"github.com/hsingjui/openai-to-claude/internal/protocol/claude"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// CountText returns the token count of a single string. Falls back to a
// chars/4 estimate if the encoder is unavailable.
func CountText(text string) int {
	if text == "" {
		return 0
	}
	enc, err := getCodec()
	if err != nil {
		return fallbackEstimate(text)
	}
	n, err := enc.Count(text)
	if err != nil {
		return fallbackEstimate(text)
	}
	return n
}

func fallbackEstimate(text string) int {
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// CountRequest estimates the token footprint of a full inbound request:
// system prompt, every message content block, and tool schemas.
func CountRequest(messages []claude.Message, system []byte, tools []claude.Tool) int {
	total := 0

	if text, err := claude.ParseSystemText(system); err == nil {
		total += CountText(text)
	}

	for i := range messages {
		blocks, err := messages[i].ParseContent()
		if err != nil {
			continue
		}
		for _, block := range blocks {
			switch block.Type {
			case claude.BlockText:
				total += CountText(block.Text)
			case claude.BlockToolUse:
				total += CountText(block.Name)
				total += CountText(string(block.Input))
			case claude.BlockToolResult:
				total += CountText(claude.ParseToolResultText(block.Content))
			case claude.BlockThinking:
				total += CountText(block.Thinking)
			case claude.BlockImage:
				// Rough fixed cost; images are not tokenized here.
				total += 1000
			}
		}
	}

	for _, tool := range tools {
		total += CountText(tool.Name)
		total += CountText(tool.Description)
		if len(tool.InputSchema) > 0 {
			if raw, err := json.Marshal(tool.InputSchema); err == nil {
				total += CountText(string(raw))
			}
		}
	}

	return total
}
