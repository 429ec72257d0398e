package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lingora/lingora/internal/app"
	"github.com/lingora/lingora/internal/chat"
	"github.com/lingora/lingora/internal/config"
)

var (
	askDomain    string
	askSessionID string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single question from the terminal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd.Context(), args)
	},
}

func init() {
	askCmd.Flags().StringVar(&askDomain, "domain", "", `force the learning domain: "grammar" or "vocab"`)
	askCmd.Flags().StringVar(&askSessionID, "session", "", "session ID for follow-up questions (default: a fresh session)")
	rootCmd.AddCommand(askCmd)
}

// runAsk answers one question and prints the result. The configured mode
// applies: agent (tool loop) or single-shot retrieval.
func runAsk(parent context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, newLogger())
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = a.Close() }()

	sessionID := askSessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	result, err := a.Agent.Answer(ctx, chat.Request{
		Question:       strings.Join(args, " "),
		DomainOverride: askDomain,
		SessionID:      sessionID,
	})
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	fmt.Println(result.Answer)
	return nil
}
