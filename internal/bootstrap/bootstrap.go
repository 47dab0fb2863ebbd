// Package bootstrap initializes the gateway before serving: environment
// loading, configuration, and the hot-reload watcher.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/hsingjui/openai-to-claude/internal/config"
	log "github.com/hsingjui/openai-to-claude/internal/logging"
)

// Result holds what bootstrapping produced.
type Result struct {
	Config         *config.Config
	ConfigFilePath string
}

// Bootstrap loads .env, reads and validates the configuration, and
// installs it as the active snapshot.
func Bootstrap(configPath string) (*Result, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	if loadErr := godotenv.Load(filepath.Join(wd, ".env")); loadErr != nil {
		if !errors.Is(loadErr, os.ErrNotExist) {
			log.WithError(loadErr).Warnf("failed to load .env file")
		}
	}

	if configPath == "" {
		configPath = filepath.Join(wd, "config.yaml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	config.Set(cfg)

	log.Infof("config loaded: backend=%s default=%s", cfg.OpenAI.BaseURL, cfg.Models.Default)
	return &Result{Config: cfg, ConfigFilePath: configPath}, nil
}

// StartWatcher runs the config hot-reload watcher until ctx is
// cancelled.
func StartWatcher(ctx context.Context, configPath string) {
	watcher := config.NewWatcher(configPath)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			log.WithError(err).Warnf("config watcher stopped")
		}
	}()
}
