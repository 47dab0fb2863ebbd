package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
server:
  host: 127.0.0.1
  port: 9090
openai:
  base-url: https://backend.example.com/v1/
  api-key: sk-test
models:
  default: gpt-4o
  small: gpt-4o-mini
  tool: gpt-4o-tools
  think: o3
  long-context: gpt-4o-long
routing:
  long-context-threshold: 120000
  multimodal-models:
    - gpt-4o
parameter-overrides:
  temperature: 0.3
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.OpenAI.BaseURL != "https://backend.example.com/v1" {
		t.Errorf("base url not trimmed: %q", cfg.OpenAI.BaseURL)
	}
	if cfg.Models.Think != "o3" {
		t.Errorf("think model = %q", cfg.Models.Think)
	}
	if cfg.Routing.LongContextLimit() != 120000 {
		t.Errorf("long context limit = %d", cfg.Routing.LongContextLimit())
	}
	if !cfg.Routing.IsMultimodal("gpt-4o") || cfg.Routing.IsMultimodal("o3") {
		t.Error("multimodal list not honored")
	}
	if cfg.Overrides.Temperature == nil || *cfg.Overrides.Temperature != 0.3 {
		t.Error("temperature override not parsed")
	}
}

func TestLoadRejectsIncompleteProfile(t *testing.T) {
	incomplete := `
openai:
  base-url: https://backend.example.com
  api-key: sk-test
models:
  default: gpt-4o
`
	if _, err := Load(writeConfig(t, incomplete)); err == nil {
		t.Fatal("expected error for missing profile roles")
	}
}

func TestLoadRejectsMissingBackend(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")
	noBackend := `
models:
  default: a
  small: b
  tool: c
  think: d
  long-context: e
`
	if _, err := Load(writeConfig(t, noBackend)); err == nil {
		t.Fatal("expected error for missing backend settings")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	noKey := `
openai:
  base-url: https://backend.example.com
models:
  default: a
  small: b
  tool: c
  think: d
  long-context: e
`
	cfg, err := Load(writeConfig(t, noKey))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-from-env" {
		t.Errorf("api key = %q, want env value", cfg.OpenAI.APIKey)
	}
}

func TestDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Server.Port != 8082 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.OpenAI.Timeout().Seconds() != 600 {
		t.Errorf("default timeout = %v", cfg.OpenAI.Timeout())
	}
	if !cfg.Routing.SupportsForcedToolUse() {
		t.Error("forced tool use must default to supported")
	}
	if cfg.Routing.LongContextLimit() != 100_000 {
		t.Errorf("default long context limit = %d", cfg.Routing.LongContextLimit())
	}
}

func TestSnapshotSwap(t *testing.T) {
	a := NewDefaultConfig()
	b := NewDefaultConfig()
	b.Server.Port = 9999

	Set(a)
	captured := Current()
	Set(b)

	if captured.Server.Port != 8082 {
		t.Error("captured snapshot mutated by later Set")
	}
	if Current().Server.Port != 9999 {
		t.Error("Current does not reflect the latest Set")
	}
}
