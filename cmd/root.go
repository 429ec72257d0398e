// Package cmd provides the lingora CLI commands.
//
// Commands:
//   - serve: HTTP API server (chat, title, health probes)
//   - ask: answer a single question from the terminal
//   - version: build and configuration information
//
// All long-running commands handle SIGINT/SIGTERM via context cancellation.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lingora/lingora/internal/log"
)

var rootCmd = &cobra.Command{
	Use:           "lingora",
	Short:         "Lingora - conversational English learning assistant",
	Long:          "Lingora answers English grammar and vocabulary questions,\ngrounding explanations in curated reference material.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. DEBUG=1 enables debug level;
// LOG_JSON=1 switches to JSON output for log aggregation.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{
		Level: level,
		JSON:  os.Getenv("LOG_JSON") != "",
	})
}
