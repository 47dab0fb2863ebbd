// Package router selects the concrete backend model for a request from
// its features and the configured model profile.
package router

import (
	"strings"

	"github.com/hsingjui/openai-to-claude/internal/config"
)

// Features are the request properties the routing rules inspect.
type Features struct {
	// Model is the client-requested model id.
	Model string

	// HasTools is true when the request defines at least one tool.
	HasTools bool

	// ThinkingRequested is true when extended reasoning was enabled.
	ThinkingRequested bool

	// ContextTokens is the estimated token footprint of the request.
	ContextTokens int

	// MessageCount is the number of conversation turns.
	MessageCount int
}

// Resolve picks the backend model id. Rules are evaluated in fixed
// precedence order and exactly one fires:
//
//	thinking > tools > long context > small heuristic > default
//
// The function is pure: identical inputs always yield the same id.
func Resolve(f Features, cfg *config.Config) string {
	switch {
	case f.ThinkingRequested:
		return cfg.Models.Think
	case f.HasTools:
		return cfg.Models.Tool
	case f.ContextTokens > cfg.Routing.LongContextLimit():
		return cfg.Models.LongContext
	case isLightweight(f, cfg):
		return cfg.Models.Small
	default:
		return cfg.Models.Default
	}
}

// isLightweight implements the small-model heuristic: the client asked
// for a haiku-class model by name, or the request is a short single turn
// and the heuristic threshold is configured.
func isLightweight(f Features, cfg *config.Config) bool {
	if strings.Contains(strings.ToLower(f.Model), "haiku") {
		return true
	}
	limit := cfg.Routing.SmallSingleTurnTokens
	return limit > 0 && f.MessageCount == 1 && f.ContextTokens < limit
}
