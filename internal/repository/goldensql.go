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

// goldenSQLCols is the standard SELECT column list for scanning golden
// records.
const goldenSQLCols = `id, prompt_text, sql, db_connection_id, metadata, created_at`

const insertGoldenSQL = `INSERT INTO golden_sqls (id, prompt_text, sql, db_connection_id, metadata)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING created_at`

// GoldenSQLs stores curated question/SQL pairs.
//
// GoldenSQLs is safe for concurrent use by multiple goroutines.
type GoldenSQLs struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewGoldenSQLs creates a golden SQL store.
func NewGoldenSQLs(pool *pgxpool.Pool, logger *slog.Logger) (*GoldenSQLs, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoldenSQLs{pool: pool, logger: logger}, nil
}

// Insert persists a validated submission, assigning a fresh object id, and
// returns the stored record.
func (r *GoldenSQLs) Insert(ctx context.Context, req entity.GoldenSQLRequest) (*entity.GoldenSQL, error) {
	rec := &entity.GoldenSQL{
		ID:             entity.NewObjectID(),
		PromptText:     req.PromptText,
		SQL:            req.SQL,
		DBConnectionID: req.DBConnectionID,
		Metadata:       req.Metadata,
	}

	metadataJSON, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx, insertGoldenSQL,
		rec.ID, rec.PromptText, rec.SQL, rec.DBConnectionID, metadataJSON,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting golden sql: %w", err)
	}

	r.logger.Debug("stored golden sql", "id", rec.ID, "db_connection_id", rec.DBConnectionID)
	return rec, nil
}

// FindByID returns one golden record. Returns ErrNotFound if absent.
func (r *GoldenSQLs) FindByID(ctx context.Context, id string) (*entity.GoldenSQL, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+goldenSQLCols+` FROM golden_sqls WHERE id = $1`, id)
	return scanGoldenSQL(row)
}

// FindByConnection lists golden records of one connection ordered by
// creation time. Pages are 1-based; limit <= 0 returns the full listing.
func (r *GoldenSQLs) FindByConnection(ctx context.Context, dbConnectionID string, page, limit int) ([]*entity.GoldenSQL, error) {
	sql := `SELECT ` + goldenSQLCols + ` FROM golden_sqls WHERE db_connection_id = $1 ORDER BY created_at, id`
	args := []any{dbConnectionID}
	sql, args = pageClause(sql, args, page, limit)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing golden sqls: %w", err)
	}
	defer rows.Close()

	return scanGoldenSQLs(rows)
}

// All returns every golden record across all connections. The reconciler
// diffs this listing against the vector index.
func (r *GoldenSQLs) All(ctx context.Context) ([]*entity.GoldenSQL, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+goldenSQLCols+` FROM golden_sqls ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing all golden sqls: %w", err)
	}
	defer rows.Close()

	return scanGoldenSQLs(rows)
}

// DeleteByID removes one golden record and reports how many rows matched.
// Zero is not an error; the caller decides whether to warn.
func (r *GoldenSQLs) DeleteByID(ctx context.Context, id string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM golden_sqls WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("deleting golden sql: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanGoldenSQL(row pgx.Row) (*entity.GoldenSQL, error) {
	var g entity.GoldenSQL
	var metadataJSON []byte
	err := row.Scan(&g.ID, &g.PromptText, &g.SQL, &g.DBConnectionID, &metadataJSON, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning golden sql: %w", err)
	}
	if err := unmarshalMetadata(metadataJSON, &g.Metadata); err != nil {
		return nil, err
	}
	return &g, nil
}

func scanGoldenSQLs(rows pgx.Rows) ([]*entity.GoldenSQL, error) {
	var records []*entity.GoldenSQL
	for rows.Next() {
		g, err := scanGoldenSQL(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating golden sqls: %w", err)
	}
	return records, nil
}
