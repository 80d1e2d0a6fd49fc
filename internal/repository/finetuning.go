package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groundsql/groundsql/internal/entity"
)

const fineTuningCols = `id, alias, db_connection_id, status, model_provider, model_name,
	model_parameters, finetuning_file_id, finetuning_job_id, model_id,
	golden_sqls, error, metadata, created_at`

// JobArtifacts carries external runner identifiers recorded as a job
// progresses. Empty fields leave the stored value untouched.
type JobArtifacts struct {
	FileID  string
	JobID   string
	ModelID string
}

// FineTuningJobs stores fine-tuning job records and enforces the status
// state machine on every update.
type FineTuningJobs struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewFineTuningJobs creates a fine-tuning job store.
func NewFineTuningJobs(pool *pgxpool.Pool, logger *slog.Logger) (*FineTuningJobs, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FineTuningJobs{pool: pool, logger: logger}, nil
}

// Insert persists a new job. The ID is assigned here and the status
// defaults to queued when unset.
func (r *FineTuningJobs) Insert(ctx context.Context, job entity.FineTuningJob) (*entity.FineTuningJob, error) {
	job.ID = entity.NewObjectID()
	if job.Status == "" {
		job.Status = entity.FineTuningQueued
	}
	if !job.Status.Known() {
		return nil, fmt.Errorf("%w: unknown status %q", entity.ErrInvalidTransition, job.Status)
	}

	paramsJSON, err := json.Marshal(modelParamsOrEmpty(job.BaseLLM.ModelParameters))
	if err != nil {
		return nil, fmt.Errorf("marshaling model parameters: %w", err)
	}
	metadataJSON, err := marshalMetadata(job.Metadata)
	if err != nil {
		return nil, err
	}
	if job.GoldenSQLs == nil {
		job.GoldenSQLs = []string{}
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO finetuning_jobs (id, alias, db_connection_id, status,
		     model_provider, model_name, model_parameters, golden_sqls, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		job.ID, job.Alias, job.DBConnectionID, job.Status,
		job.BaseLLM.ModelProvider, job.BaseLLM.ModelName, paramsJSON,
		job.GoldenSQLs, metadataJSON,
	).Scan(&job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting finetuning job: %w", err)
	}

	r.logger.Debug("created finetuning job",
		"id", job.ID,
		"db_connection_id", job.DBConnectionID,
		"golden_sqls", len(job.GoldenSQLs))
	return &job, nil
}

// FindByID returns one job. Returns ErrNotFound if absent.
func (r *FineTuningJobs) FindByID(ctx context.Context, id string) (*entity.FineTuningJob, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+fineTuningCols+` FROM finetuning_jobs WHERE id = $1`, id)
	return scanFineTuningJob(row)
}

// FindByConnection lists jobs of one connection, newest first. A
// nonpositive limit returns the full listing.
func (r *FineTuningJobs) FindByConnection(ctx context.Context, dbConnectionID string, page, limit int) ([]*entity.FineTuningJob, error) {
	query := `SELECT ` + fineTuningCols + ` FROM finetuning_jobs
		 WHERE db_connection_id = $1 ORDER BY created_at DESC, id`
	query, args := pageClause(query, []any{dbConnectionID}, page, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing finetuning jobs: %w", err)
	}
	defer rows.Close()
	return scanFineTuningJobs(rows)
}

// UpdateStatus moves a job to a new status under the state machine rules.
// The row is locked for the check so concurrent updates serialize.
func (r *FineTuningJobs) UpdateStatus(ctx context.Context, id string, to entity.FineTuningStatus, jobErr string) (*entity.FineTuningJob, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.logger.Warn("rolling back status update", "error", err)
		}
	}()

	var current entity.FineTuningStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM finetuning_jobs WHERE id = $1 FOR UPDATE`, id,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("locking finetuning job: %w", err)
	}

	next, err := current.Transition(to)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}

	row := tx.QueryRow(ctx,
		`UPDATE finetuning_jobs SET status = $2, error = $3
		 WHERE id = $1
		 RETURNING `+fineTuningCols,
		id, next, jobErr)
	job, err := scanFineTuningJob(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing status update: %w", err)
	}

	r.logger.Debug("updated finetuning status", "id", id, "from", current, "to", next)
	return job, nil
}

// SetArtifacts records runner identifiers. Empty fields keep the stored
// value so callers can report artifacts incrementally.
func (r *FineTuningJobs) SetArtifacts(ctx context.Context, id string, artifacts JobArtifacts) (*entity.FineTuningJob, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE finetuning_jobs
		 SET finetuning_file_id = COALESCE(NULLIF($2, ''), finetuning_file_id),
		     finetuning_job_id  = COALESCE(NULLIF($3, ''), finetuning_job_id),
		     model_id           = COALESCE(NULLIF($4, ''), model_id)
		 WHERE id = $1
		 RETURNING `+fineTuningCols,
		id, artifacts.FileID, artifacts.JobID, artifacts.ModelID)
	return scanFineTuningJob(row)
}

func modelParamsOrEmpty(params map[string]string) map[string]string {
	if params == nil {
		return map[string]string{}
	}
	return params
}

func scanFineTuningJob(row pgx.Row) (*entity.FineTuningJob, error) {
	var job entity.FineTuningJob
	var paramsJSON, metadataJSON []byte
	err := row.Scan(&job.ID, &job.Alias, &job.DBConnectionID, &job.Status,
		&job.BaseLLM.ModelProvider, &job.BaseLLM.ModelName, &paramsJSON,
		&job.FineTuningFileID, &job.FineTuningJobID, &job.ModelID,
		&job.GoldenSQLs, &job.Error, &metadataJSON, &job.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning finetuning job: %w", err)
	}
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &job.BaseLLM.ModelParameters); err != nil {
			return nil, fmt.Errorf("unmarshaling model parameters: %w", err)
		}
	}
	if len(job.BaseLLM.ModelParameters) == 0 {
		job.BaseLLM.ModelParameters = nil
	}
	if err := unmarshalMetadata(metadataJSON, &job.Metadata); err != nil {
		return nil, err
	}
	return &job, nil
}

func scanFineTuningJobs(rows pgx.Rows) ([]*entity.FineTuningJob, error) {
	var records []*entity.FineTuningJob
	for rows.Next() {
		job, err := scanFineTuningJob(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating finetuning jobs: %w", err)
	}
	return records, nil
}
