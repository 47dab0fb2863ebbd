// Package config loads and validates the gateway configuration and
// maintains the process-wide immutable snapshot that request handlers
// read from.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hsingjui/openai-to-claude/internal/apierror"
)

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig  `yaml:"server"`
	OpenAI    OpenAIConfig  `yaml:"openai"`
	APIKeys   []string      `yaml:"api-keys,omitempty"`
	Models    ModelProfile  `yaml:"models"`
	Routing   RoutingConfig `yaml:"routing"`
	Overrides ParameterOverrides `yaml:"parameter-overrides"`
	Logging   LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the inbound listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// OpenAIConfig holds backend connection settings.
type OpenAIConfig struct {
	BaseURL        string `yaml:"base-url"`
	APIKey         string `yaml:"api-key"`
	TimeoutSeconds int    `yaml:"timeout-seconds,omitempty"`
	MaxRetries     int    `yaml:"max-retries,omitempty"`
}

// Timeout returns the request timeout with its default applied.
func (o OpenAIConfig) Timeout() time.Duration {
	if o.TimeoutSeconds <= 0 {
		return 600 * time.Second
	}
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// ModelProfile maps logical routing roles to concrete backend model ids.
type ModelProfile struct {
	Default     string `yaml:"default"`
	Small       string `yaml:"small"`
	Tool        string `yaml:"tool"`
	Think       string `yaml:"think"`
	LongContext string `yaml:"long-context"`
}

// RoutingConfig tunes the model routing rules.
type RoutingConfig struct {
	// LongContextThreshold is the estimated token count above which the
	// long-context model is selected.
	LongContextThreshold int `yaml:"long-context-threshold,omitempty"`

	// SmallSingleTurnTokens enables the lightweight-task heuristic:
	// single-turn requests estimated below this count route to the
	// small model. Zero disables the heuristic.
	SmallSingleTurnTokens int `yaml:"small-single-turn-tokens,omitempty"`

	// ForcedToolUse declares whether the backend honors
	// tool_choice=required. When false, tool_choice=any fails closed.
	ForcedToolUse *bool `yaml:"forced-tool-use,omitempty"`

	// MultimodalModels lists backend model ids that accept image input.
	MultimodalModels []string `yaml:"multimodal-models,omitempty"`
}

// SupportsForcedToolUse reports whether tool_choice=required may be sent.
func (r RoutingConfig) SupportsForcedToolUse() bool {
	if r.ForcedToolUse == nil {
		return true
	}
	return *r.ForcedToolUse
}

// LongContextLimit returns the long-context threshold with its default.
func (r RoutingConfig) LongContextLimit() int {
	if r.LongContextThreshold <= 0 {
		return 100_000
	}
	return r.LongContextThreshold
}

// IsMultimodal reports whether the backend model accepts image input.
func (r RoutingConfig) IsMultimodal(model string) bool {
	for _, m := range r.MultimodalModels {
		if strings.EqualFold(strings.TrimSpace(m), model) {
			return true
		}
	}
	return false
}

// ParameterOverrides are configuration-supplied sampling parameters that
// unconditionally replace client-supplied values when present.
type ParameterOverrides struct {
	MaxTokens   *int     `yaml:"max-tokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	TopP        *float64 `yaml:"top-p,omitempty"`
	TopK        *int     `yaml:"top-k,omitempty"`
}

// LoggingConfig controls log level and optional file output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
	File  string `yaml:"file,omitempty"`
}

// NewDefaultConfig returns a config with listener defaults filled in.
// It is not valid until backend and model settings are provided.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8082},
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := NewDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments inject credentials
// without writing them into the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" && cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = v
	}
}

// Validate checks the configuration for completeness. Routing profile
// entries are required up front so a missing role fails at startup, not
// on the first request that needs it.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.OpenAI.BaseURL) == "" {
		return apierror.Configuration("openai.base-url is required")
	}
	if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
		return apierror.Configuration("openai.api-key is required")
	}
	cfg.OpenAI.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.OpenAI.BaseURL), "/")

	roles := map[string]string{
		"models.default":      cfg.Models.Default,
		"models.small":        cfg.Models.Small,
		"models.tool":         cfg.Models.Tool,
		"models.think":        cfg.Models.Think,
		"models.long-context": cfg.Models.LongContext,
	}
	for field, value := range roles {
		if strings.TrimSpace(value) == "" {
			return apierror.Configuration("%s is required in the model profile", field)
		}
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return apierror.Configuration("server.port %d is out of range", cfg.Server.Port)
	}
	return nil
}
