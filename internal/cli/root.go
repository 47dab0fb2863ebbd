// Package cli defines the command-line interface of the gateway.
package cli

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "openai-to-claude",
	Short: "Messages-protocol gateway for chat-completions backends",
	Long: `openai-to-claude is an API gateway that accepts Anthropic
Messages requests and serves them from an OpenAI-compatible backend,
translating requests, responses and streaming events in both
directions.`,
	Run: func(c *cobra.Command, args []string) {
		runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ./config.yaml)")
}
