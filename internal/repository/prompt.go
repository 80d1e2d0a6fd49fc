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

const promptCols = `id, text, db_connection_id, metadata, created_at`

// Prompts stores the questions context is assembled for. Prompts are
// immutable once created.
type Prompts struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPrompts creates a prompt store.
func NewPrompts(pool *pgxpool.Pool, logger *slog.Logger) (*Prompts, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prompts{pool: pool, logger: logger}, nil
}

// Insert persists a new prompt, assigning a fresh object id, and returns
// the stored record.
func (r *Prompts) Insert(ctx context.Context, req entity.PromptRequest) (*entity.Prompt, error) {
	rec := &entity.Prompt{
		ID:             entity.NewObjectID(),
		Text:           req.Text,
		DBConnectionID: req.DBConnectionID,
		Metadata:       req.Metadata,
	}

	metadataJSON, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO prompts (id, text, db_connection_id, metadata)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		rec.ID, rec.Text, rec.DBConnectionID, metadataJSON,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting prompt: %w", err)
	}

	r.logger.Debug("stored prompt", "id", rec.ID, "db_connection_id", rec.DBConnectionID)
	return rec, nil
}

// FindByID returns one prompt. Returns ErrNotFound if absent.
func (r *Prompts) FindByID(ctx context.Context, id string) (*entity.Prompt, error) {
	var p entity.Prompt
	var metadataJSON []byte
	err := r.pool.QueryRow(ctx,
		`SELECT `+promptCols+` FROM prompts WHERE id = $1`, id,
	).Scan(&p.ID, &p.Text, &p.DBConnectionID, &metadataJSON, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning prompt: %w", err)
	}
	if err := unmarshalMetadata(metadataJSON, &p.Metadata); err != nil {
		return nil, err
	}
	return &p, nil
}
