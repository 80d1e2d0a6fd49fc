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

const instructionCols = `id, instruction, db_connection_id, metadata, created_at`

const insertInstructionSQL = `INSERT INTO instructions (id, instruction, db_connection_id, metadata)
	VALUES ($1, $2, $3, $4)
	RETURNING created_at`

// Instructions stores free-text guidance scoped to a connection.
//
// Instructions is safe for concurrent use by multiple goroutines.
type Instructions struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewInstructions creates an instruction store.
func NewInstructions(pool *pgxpool.Pool, logger *slog.Logger) (*Instructions, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Instructions{pool: pool, logger: logger}, nil
}

// Insert persists a new instruction, assigning a fresh object id, and
// returns the stored record.
func (r *Instructions) Insert(ctx context.Context, req entity.InstructionRequest) (*entity.Instruction, error) {
	rec := &entity.Instruction{
		ID:             entity.NewObjectID(),
		Instruction:    req.Instruction,
		DBConnectionID: req.DBConnectionID,
		Metadata:       req.Metadata,
	}

	metadataJSON, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx, insertInstructionSQL,
		rec.ID, rec.Instruction, rec.DBConnectionID, metadataJSON,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting instruction: %w", err)
	}

	r.logger.Debug("stored instruction", "id", rec.ID, "db_connection_id", rec.DBConnectionID)
	return rec, nil
}

// FindByID returns one instruction. Returns ErrNotFound if absent.
func (r *Instructions) FindByID(ctx context.Context, id string) (*entity.Instruction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+instructionCols+` FROM instructions WHERE id = $1`, id)
	return scanInstruction(row)
}

// All returns every instruction across all connections. Context assembly
// filters by connection afterwards, so an instruction added mid-flight is
// either fully visible or not at all.
func (r *Instructions) All(ctx context.Context) ([]*entity.Instruction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+instructionCols+` FROM instructions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing all instructions: %w", err)
	}
	defer rows.Close()

	return scanInstructions(rows)
}

// FindByConnection lists instructions of one connection ordered by creation
// time. Pages are 1-based; limit <= 0 returns the full listing.
func (r *Instructions) FindByConnection(ctx context.Context, dbConnectionID string, page, limit int) ([]*entity.Instruction, error) {
	sql := `SELECT ` + instructionCols + ` FROM instructions WHERE db_connection_id = $1 ORDER BY created_at, id`
	args := []any{dbConnectionID}
	sql, args = pageClause(sql, args, page, limit)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing instructions: %w", err)
	}
	defer rows.Close()

	return scanInstructions(rows)
}

// Update replaces the text and metadata of an existing instruction. The
// connection scope cannot change. Returns ErrNotFound if absent.
func (r *Instructions) Update(ctx context.Context, id string, req entity.UpdateInstructionRequest) (*entity.Instruction, error) {
	metadataJSON, err := marshalMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE instructions SET instruction = $2, metadata = $3
		 WHERE id = $1
		 RETURNING `+instructionCols,
		id, req.Instruction, metadataJSON)
	return scanInstruction(row)
}

// DeleteByID removes one instruction and reports how many rows matched.
func (r *Instructions) DeleteByID(ctx context.Context, id string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM instructions WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("deleting instruction: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanInstruction(row pgx.Row) (*entity.Instruction, error) {
	var in entity.Instruction
	var metadataJSON []byte
	err := row.Scan(&in.ID, &in.Instruction, &in.DBConnectionID, &metadataJSON, &in.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning instruction: %w", err)
	}
	if err := unmarshalMetadata(metadataJSON, &in.Metadata); err != nil {
		return nil, err
	}
	return &in, nil
}

func scanInstructions(rows pgx.Rows) ([]*entity.Instruction, error) {
	var records []*entity.Instruction
	for rows.Next() {
		in, err := scanInstruction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating instructions: %w", err)
	}
	return records, nil
}
