package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groundsql/groundsql/db"
	"github.com/groundsql/groundsql/internal/config"
	"github.com/groundsql/groundsql/internal/finetuning"
	"github.com/groundsql/groundsql/internal/generation"
	"github.com/groundsql/groundsql/internal/knowledge"
	"github.com/groundsql/groundsql/internal/observability"
	"github.com/groundsql/groundsql/internal/reconcile"
	"github.com/groundsql/groundsql/internal/repository"
	"github.com/groundsql/groundsql/internal/vector"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder, err := provideEmbedder(g, cfg)
	if err != nil {
		return nil, err
	}
	a.Embedder = embedder

	store, err := provideVectorStore(pool, embedder, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Vector = store

	if err := provideRepositories(a, pool, logger); err != nil {
		return nil, err
	}

	assembler, err := knowledge.NewAssembler(a.GoldenSQLs, a.Instructions, store, knowledge.Config{
		GoldenCollection:  cfg.GoldenCollection,
		ContextCollection: cfg.ContextFilesCollection,
		ChunkSize:         cfg.ChunkSize,
		ChunkOverlap:      cfg.ChunkOverlap,
		TopK:              cfg.RetrievalTopK,
	}, logger.With("component", "knowledge"))
	if err != nil {
		return nil, fmt.Errorf("creating assembler: %w", err)
	}
	a.Assembler = assembler

	engine, err := generation.NewEngine(a.Prompts, a.SQLGenerations, a.NLGenerations, assembler,
		logger.With("component", "generation"))
	if err != nil {
		return nil, fmt.Errorf("creating generation engine: %w", err)
	}
	a.Engine = engine

	manager, err := finetuning.NewManager(a.FineTuningJobs, a.GoldenSQLs,
		logger.With("component", "finetuning"))
	if err != nil {
		return nil, fmt.Errorf("creating finetuning manager: %w", err)
	}
	a.FineTuning = manager

	reconciler, err := reconcile.NewReconciler(a.GoldenSQLs, store, cfg.GoldenCollection,
		cfg.ReconcileInterval, logger.With("component", "reconcile"))
	if err != nil {
		return nil, fmt.Errorf("creating reconciler: %w", err)
	}
	a.Reconciler = reconciler

	return a, nil
}

// provideOtelShutdown sets up Datadog tracing before Genkit initialization
// so the TracerProvider is ready when spans start flowing.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	shutdown, err := observability.Setup(ctx, observability.Config{
		AgentHost:   cfg.Datadog.AgentHost,
		Environment: cfg.Datadog.Environment,
		ServiceName: cfg.Datadog.ServiceName,
	})
	if err != nil {
		logger.Warn("tracing setup failed, continuing untraced", "error", err)
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// provideGenkit initializes Genkit with the configured embedding provider.
// Only embedders are registered; this application never calls a model.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit embedder registration (no auto-discovery).
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit with ollama provider",
			"embedder", cfg.EmbedderModel, "host", cfg.OllamaHost)
		return g, nil

	default: // googleai
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with googleai provider")
		}
		logger.Info("initialized genkit with googleai provider",
			"embedder", cfg.EmbedderModel)
		return g, nil
	}
}

// provideEmbedder looks up the embedder registered by the provider plugin
// and applies the configured request budget.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) (ai.Embedder, error) {
	var embedder ai.Embedder
	switch cfg.Provider {
	case config.ProviderOllama:
		// Ollama embedders are keyed by server address.
		embedder = ollama.Embedder(g, cfg.OllamaHost)
	default:
		embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	return limitEmbedder(embedder, cfg.EmbedRateLimit)
}

// limitEmbedder wraps embedder with a process-wide rate budget. rps <= 0
// means unlimited.
func limitEmbedder(embedder ai.Embedder, rps float64) (ai.Embedder, error) {
	if rps <= 0 {
		return embedder, nil
	}
	// One second of budget as burst.
	return vector.NewRateLimitedEmbedder(embedder, rps, int(rps))
}

// provideVectorStore creates the pgvector-backed index. Ollama embedders
// reject Gemini embed options, so those are cleared for that provider.
func provideVectorStore(pool *pgxpool.Pool, embedder ai.Embedder, cfg *config.Config, logger *slog.Logger) (*vector.Store, error) {
	var opts []vector.Option
	if cfg.Provider == config.ProviderOllama {
		opts = append(opts, vector.WithEmbedOptions(nil))
	}
	store, err := vector.NewStore(pool, embedder, logger.With("component", "vector"), opts...)
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}
	return store, nil
}

// provideRepositories creates the record stores sharing one pool.
func provideRepositories(a *App, pool *pgxpool.Pool, logger *slog.Logger) error {
	repoLogger := logger.With("component", "repository")

	golden, err := repository.NewGoldenSQLs(pool, repoLogger)
	if err != nil {
		return fmt.Errorf("creating golden sql store: %w", err)
	}
	a.GoldenSQLs = golden

	instructions, err := repository.NewInstructions(pool, repoLogger)
	if err != nil {
		return fmt.Errorf("creating instruction store: %w", err)
	}
	a.Instructions = instructions

	prompts, err := repository.NewPrompts(pool, repoLogger)
	if err != nil {
		return fmt.Errorf("creating prompt store: %w", err)
	}
	a.Prompts = prompts

	sqlGens, err := repository.NewSQLGenerations(pool, repoLogger)
	if err != nil {
		return fmt.Errorf("creating sql generation store: %w", err)
	}
	a.SQLGenerations = sqlGens

	nlGens, err := repository.NewNLGenerations(pool, repoLogger)
	if err != nil {
		return fmt.Errorf("creating nl generation store: %w", err)
	}
	a.NLGenerations = nlGens

	jobs, err := repository.NewFineTuningJobs(pool, repoLogger)
	if err != nil {
		return fmt.Errorf("creating finetuning job store: %w", err)
	}
	a.FineTuningJobs = jobs

	return nil
}
