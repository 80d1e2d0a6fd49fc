package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groundsql/groundsql/internal/entity"
)

const sqlGenerationCols = `id, prompt_id, sql, status, confidence_score, tokens_used,
	completed_at, error, metadata, created_at`

// SQLGenerationResult is the terminal outcome applied by Complete.
type SQLGenerationResult struct {
	SQL             string
	Status          entity.SQLGenerationStatus
	ConfidenceScore float64
	TokensUsed      int
	Error           string
}

// SQLGenerations stores generation attempts. Rows are created in status
// NONE and completed exactly once.
type SQLGenerations struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSQLGenerations creates a SQL generation store.
func NewSQLGenerations(pool *pgxpool.Pool, logger *slog.Logger) (*SQLGenerations, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLGenerations{pool: pool, logger: logger}, nil
}

// Insert creates a generation row for the prompt in status NONE.
func (r *SQLGenerations) Insert(ctx context.Context, promptID string, metadata map[string]any) (*entity.SQLGeneration, error) {
	rec := &entity.SQLGeneration{
		ID:       entity.NewObjectID(),
		PromptID: promptID,
		Status:   entity.SQLGenerationNone,
		Metadata: metadata,
	}

	metadataJSON, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO sql_generations (id, prompt_id, metadata)
		 VALUES ($1, $2, $3)
		 RETURNING created_at`,
		rec.ID, rec.PromptID, metadataJSON,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting sql generation: %w", err)
	}

	r.logger.Debug("created sql generation", "id", rec.ID, "prompt_id", promptID)
	return rec, nil
}

// FindByID returns one generation. Returns ErrNotFound if absent.
func (r *SQLGenerations) FindByID(ctx context.Context, id string) (*entity.SQLGeneration, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sqlGenerationCols+` FROM sql_generations WHERE id = $1`, id)
	return scanSQLGeneration(row)
}

// FindByPrompt lists generations of one prompt ordered by creation time.
func (r *SQLGenerations) FindByPrompt(ctx context.Context, promptID string) ([]*entity.SQLGeneration, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sqlGenerationCols+` FROM sql_generations
		 WHERE prompt_id = $1 ORDER BY created_at, id`, promptID)
	if err != nil {
		return nil, fmt.Errorf("listing sql generations: %w", err)
	}
	defer rows.Close()

	var records []*entity.SQLGeneration
	for rows.Next() {
		g, err := scanSQLGeneration(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sql generations: %w", err)
	}
	return records, nil
}

// Complete applies the terminal result exactly once. The status = 'NONE'
// guard makes concurrent completions race safely: the loser observes zero
// rows and gets entity.ErrInvalidTransition.
func (r *SQLGenerations) Complete(ctx context.Context, id string, result SQLGenerationResult) (*entity.SQLGeneration, error) {
	if !result.Status.Terminal() {
		return nil, fmt.Errorf("%w: completion status must be terminal, got %s",
			entity.ErrInvalidTransition, result.Status)
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE sql_generations
		 SET sql = $2, status = $3, confidence_score = $4, tokens_used = $5,
		     error = $6, completed_at = now()
		 WHERE id = $1 AND status = 'NONE'
		 RETURNING `+sqlGenerationCols,
		id, result.SQL, result.Status, result.ConfidenceScore, result.TokensUsed, result.Error)

	rec, err := scanSQLGeneration(row)
	if err == nil {
		r.logger.Debug("completed sql generation", "id", id, "status", rec.Status)
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// Zero rows: distinguish a missing row from an already-completed one.
	existing, findErr := r.FindByID(ctx, id)
	if findErr != nil {
		return nil, findErr
	}
	return nil, fmt.Errorf("%w: generation %s already %s",
		entity.ErrInvalidTransition, id, existing.Status)
}

func scanSQLGeneration(row pgx.Row) (*entity.SQLGeneration, error) {
	var g entity.SQLGeneration
	var metadataJSON []byte
	err := row.Scan(&g.ID, &g.PromptID, &g.SQL, &g.Status, &g.ConfidenceScore,
		&g.TokensUsed, &g.CompletedAt, &g.Error, &metadataJSON, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning sql generation: %w", err)
	}
	if err := unmarshalMetadata(metadataJSON, &g.Metadata); err != nil {
		return nil, err
	}
	return &g, nil
}

const nlGenerationCols = `id, sql_generation_id, nl_answer, metadata, created_at`

// NLGenerations stores natural-language renderings of completed SQL
// generations.
type NLGenerations struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewNLGenerations creates an NL generation store.
func NewNLGenerations(pool *pgxpool.Pool, logger *slog.Logger) (*NLGenerations, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NLGenerations{pool: pool, logger: logger}, nil
}

// Insert persists a natural-language answer for a SQL generation.
func (r *NLGenerations) Insert(ctx context.Context, sqlGenerationID, nlAnswer string, metadata map[string]any) (*entity.NLGeneration, error) {
	rec := &entity.NLGeneration{
		ID:              entity.NewObjectID(),
		SQLGenerationID: sqlGenerationID,
		NLAnswer:        nlAnswer,
		Metadata:        metadata,
	}

	metadataJSON, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO nl_generations (id, sql_generation_id, nl_answer, metadata)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		rec.ID, rec.SQLGenerationID, rec.NLAnswer, metadataJSON,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting nl generation: %w", err)
	}

	r.logger.Debug("stored nl generation", "id", rec.ID, "sql_generation_id", sqlGenerationID)
	return rec, nil
}

// FindByID returns one NL generation. Returns ErrNotFound if absent.
func (r *NLGenerations) FindByID(ctx context.Context, id string) (*entity.NLGeneration, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+nlGenerationCols+` FROM nl_generations WHERE id = $1`, id)
	return scanNLGeneration(row)
}

// FindBySQLGeneration lists NL generations of one SQL generation.
func (r *NLGenerations) FindBySQLGeneration(ctx context.Context, sqlGenerationID string) ([]*entity.NLGeneration, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+nlGenerationCols+` FROM nl_generations
		 WHERE sql_generation_id = $1 ORDER BY created_at, id`, sqlGenerationID)
	if err != nil {
		return nil, fmt.Errorf("listing nl generations: %w", err)
	}
	defer rows.Close()

	var records []*entity.NLGeneration
	for rows.Next() {
		g, err := scanNLGeneration(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nl generations: %w", err)
	}
	return records, nil
}

func scanNLGeneration(row pgx.Row) (*entity.NLGeneration, error) {
	var g entity.NLGeneration
	var metadataJSON []byte
	err := row.Scan(&g.ID, &g.SQLGenerationID, &g.NLAnswer, &metadataJSON, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning nl generation: %w", err)
	}
	if err := unmarshalMetadata(metadataJSON, &g.Metadata); err != nil {
		return nil, err
	}
	return &g, nil
}
