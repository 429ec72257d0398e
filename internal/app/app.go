// Package app wires the orchestrator together: configuration, database,
// Genkit, retrieval sources, tools, the chat agent, and the HTTP server.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lingora/lingora/internal/api"
	"github.com/lingora/lingora/internal/chat"
	"github.com/lingora/lingora/internal/config"
	"github.com/lingora/lingora/internal/knowledge"
	"github.com/lingora/lingora/internal/session"
	"github.com/lingora/lingora/internal/tools"
)

// App is the assembled application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Pool     *pgxpool.Pool

	Knowledge *knowledge.Store
	Sessions  *session.Store
	Tools     *tools.Registry
	Agent     *chat.Agent
	Server    *api.Server

	otelCleanup func()
}

// Close releases all resources in reverse initialization order.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
