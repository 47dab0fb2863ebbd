package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hsingjui/openai-to-claude/internal/api"
	"github.com/hsingjui/openai-to-claude/internal/bootstrap"
	"github.com/hsingjui/openai-to-claude/internal/logging"
	log "github.com/hsingjui/openai-to-claude/internal/logging"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Long: `Start the gateway server.

Loads the configuration, starts the config watcher, and serves the
Messages API until interrupted.`,
	Run: func(c *cobra.Command, args []string) {
		runServe()
	},
}

func runServe() {
	logging.SetupBaseLogger()

	result, err := bootstrap.Bootstrap(cfgFile)
	if err != nil {
		log.Fatalf("failed to bootstrap: %v", err)
	}
	cfg := result.Config

	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	logging.SetLevel(cfg.Logging.Level)
	if cfg.Logging.File != "" {
		if err := logging.ConfigureLogOutput(cfg.Logging.File); err != nil {
			log.Fatalf("failed to configure log output: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootstrap.StartWatcher(ctx, result.ConfigFilePath)

	if err := api.NewServer().Run(ctx, cfg); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "override the configured server port")
	rootCmd.AddCommand(serveCmd)
}
