package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lingora/lingora/internal/app"
	"github.com/lingora/lingora/internal/config"
	"github.com/lingora/lingora/internal/knowledge"
)

var indexCollection string

var indexCmd = &cobra.Command{
	Use:   "index [file...]",
	Short: "Add reference passages to a curated collection",
	Long: `Index reads plain-text files and stores each blank-line-separated block
as one passage in the chosen collection. Duplicate passages are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd.Context(), args)
	},
}

func init() {
	indexCmd.Flags().StringVar(&indexCollection, "collection", "grammar", `target collection: "grammar" or "vocab"`)
	rootCmd.AddCommand(indexCmd)
}

func runIndex(parent context.Context, paths []string) error {
	domain := knowledge.ParseDomain(indexCollection)
	if domain == knowledge.DomainUnspecified {
		return fmt.Errorf("unknown collection %q (expected grammar or vocab)", indexCollection)
	}
	collection := knowledge.Route(domain)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = a.Close() }()

	var added int
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		for _, block := range strings.Split(string(data), "\n\n") {
			block = strings.TrimSpace(block)
			if block == "" {
				continue
			}
			if err := a.Knowledge.Add(ctx, collection, path, block); err != nil {
				return fmt.Errorf("indexing passage from %s: %w", path, err)
			}
			added++
		}
		logger.Info("indexed file", "path", path, "collection", collection)
	}

	total, err := a.Knowledge.Count(ctx, collection)
	if err != nil {
		return fmt.Errorf("counting passages: %w", err)
	}
	fmt.Printf("Indexed %d passages into %s (%d total)\n", added, collection, total)
	return nil
}
