package main

import (
	"os"

	"github.com/hsingjui/openai-to-claude/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
