// Package app assembles the application from its components.
//
// Setup builds everything once, in dependency order: tracing, the
// database pool (with migrations), Genkit and the embedding provider,
// the vector store, the repositories, and the domain services on top.
// Components receive their collaborators through constructors; nothing
// reaches for ambient state.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groundsql/groundsql/internal/config"
	"github.com/groundsql/groundsql/internal/finetuning"
	"github.com/groundsql/groundsql/internal/generation"
	"github.com/groundsql/groundsql/internal/knowledge"
	"github.com/groundsql/groundsql/internal/reconcile"
	"github.com/groundsql/groundsql/internal/repository"
	"github.com/groundsql/groundsql/internal/vector"
)

// App is the application container.
type App struct {
	Config   *config.Config
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	GoldenSQLs     *repository.GoldenSQLs
	Instructions   *repository.Instructions
	Prompts        *repository.Prompts
	SQLGenerations *repository.SQLGenerations
	NLGenerations  *repository.NLGenerations
	FineTuningJobs *repository.FineTuningJobs

	Vector     *vector.Store
	Assembler  *knowledge.Assembler
	Engine     *generation.Engine
	FineTuning *finetuning.Manager
	Reconciler *reconcile.Reconciler

	logger      *slog.Logger
	dbCleanup   func()
	otelCleanup func()
}

// Close releases resources in reverse construction order: the pool first,
// then the trace flush, so shutdown spans still make it out.
func (a *App) Close() error {
	if a.logger != nil {
		a.logger.Info("shutting down")
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
