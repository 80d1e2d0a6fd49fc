// Package finetuning manages fine-tuning jobs over curated golden SQL and
// renders their training data. Job execution belongs to an external
// runner; this package owns the job records, the status state machine
// boundary, and the training-file format.
package finetuning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/groundsql/groundsql/internal/entity"
	"github.com/groundsql/groundsql/internal/repository"
)

// ErrNoGoldenSQLs is returned when a job would train on an empty set.
var ErrNoGoldenSQLs = errors.New("no golden sqls for connection")

const systemPromptFormat = `You are an assistant that is an expert in generating SQL queries.
Having access to the database content, generate a correct SQL query for the given question.
# Tables referenced:
%s`

// GoldenStore resolves the golden examples a job trains on.
type GoldenStore interface {
	FindByID(ctx context.Context, id string) (*entity.GoldenSQL, error)
	FindByConnection(ctx context.Context, dbConnectionID string, page, limit int) ([]*entity.GoldenSQL, error)
}

// JobStore persists fine-tuning jobs and enforces status transitions.
type JobStore interface {
	Insert(ctx context.Context, job entity.FineTuningJob) (*entity.FineTuningJob, error)
	FindByID(ctx context.Context, id string) (*entity.FineTuningJob, error)
	FindByConnection(ctx context.Context, dbConnectionID string, page, limit int) ([]*entity.FineTuningJob, error)
	UpdateStatus(ctx context.Context, id string, to entity.FineTuningStatus, jobErr string) (*entity.FineTuningJob, error)
	SetArtifacts(ctx context.Context, id string, artifacts repository.JobArtifacts) (*entity.FineTuningJob, error)
}

// Manager owns the fine-tuning job lifecycle.
type Manager struct {
	jobs   JobStore
	golden GoldenStore
	logger *slog.Logger
}

// NewManager creates a fine-tuning manager.
func NewManager(jobs JobStore, golden GoldenStore, logger *slog.Logger) (*Manager, error) {
	if jobs == nil {
		return nil, fmt.Errorf("job store is required")
	}
	if golden == nil {
		return nil, fmt.Errorf("golden store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{jobs: jobs, golden: golden, logger: logger}, nil
}

// Create validates the request, resolves the golden SQL set, and enqueues
// the job. An empty GoldenSQLs list means "train on every golden example
// of the connection"; a job can never be created over an empty set.
func (m *Manager) Create(ctx context.Context, req entity.FineTuningRequest) (*entity.FineTuningJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ids := req.GoldenSQLs
	if len(ids) > 0 {
		for _, id := range ids {
			if _, err := m.golden.FindByID(ctx, id); err != nil {
				return nil, fmt.Errorf("resolving golden sql %s: %w", id, err)
			}
		}
	} else {
		records, err := m.golden.FindByConnection(ctx, req.DBConnectionID, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("listing golden sqls: %w", err)
		}
		for _, rec := range records {
			ids = append(ids, rec.ID)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoGoldenSQLs, req.DBConnectionID)
	}

	job, err := m.jobs.Insert(ctx, entity.FineTuningJob{
		Alias:          req.Alias,
		DBConnectionID: req.DBConnectionID,
		Status:         entity.FineTuningQueued,
		BaseLLM:        req.BaseLLM,
		GoldenSQLs:     ids,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("queued finetuning job", "id", job.ID, "golden_sqls", len(ids))
	return job, nil
}

// Get returns one job.
func (m *Manager) Get(ctx context.Context, id string) (*entity.FineTuningJob, error) {
	return m.jobs.FindByID(ctx, id)
}

// List returns the jobs of one connection, newest first.
func (m *Manager) List(ctx context.Context, dbConnectionID string, page, limit int) ([]*entity.FineTuningJob, error) {
	if err := entity.ValidateObjectID(dbConnectionID); err != nil {
		return nil, fmt.Errorf("db_connection_id: %w", err)
	}
	return m.jobs.FindByConnection(ctx, dbConnectionID, page, limit)
}

// Cancel moves a job to cancelled. Terminal jobs cannot be cancelled; the
// store reports entity.ErrInvalidTransition.
func (m *Manager) Cancel(ctx context.Context, id string) (*entity.FineTuningJob, error) {
	job, err := m.jobs.UpdateStatus(ctx, id, entity.FineTuningCancelled, "")
	if err != nil {
		return nil, err
	}
	m.logger.Debug("cancelled finetuning job", "id", id)
	return job, nil
}

// UpdateStatus applies a runner-reported transition under the state
// machine rules.
func (m *Manager) UpdateStatus(ctx context.Context, id string, to entity.FineTuningStatus, jobErr string) (*entity.FineTuningJob, error) {
	return m.jobs.UpdateStatus(ctx, id, to, jobErr)
}

// RecordArtifacts stores runner identifiers (training file, remote job,
// resulting model) as they become known.
func (m *Manager) RecordArtifacts(ctx context.Context, id string, artifacts repository.JobArtifacts) (*entity.FineTuningJob, error) {
	return m.jobs.SetArtifacts(ctx, id, artifacts)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type trainingRecord struct {
	Messages []chatMessage `json:"messages"`
}

// BuildTrainingFile renders the job's golden examples as JSONL chat
// records (system/user/assistant) and reports how many were written.
// Golden examples deleted since job creation are skipped with a warning;
// a job whose examples have all vanished is an error.
func (m *Manager) BuildTrainingFile(ctx context.Context, w io.Writer, jobID string) (int, error) {
	job, err := m.jobs.FindByID(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("loading finetuning job %s: %w", jobID, err)
	}

	enc := json.NewEncoder(w)
	written := 0
	for _, id := range job.GoldenSQLs {
		rec, err := m.golden.FindByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			m.logger.Warn("golden sql missing from training set", "job_id", jobID, "id", id)
			continue
		}
		if err != nil {
			return written, fmt.Errorf("resolving golden sql %s: %w", id, err)
		}

		tables, err := entity.ValidateGoldenSQL(rec.SQL)
		if err != nil {
			m.logger.Warn("skipping unparseable golden sql", "job_id", jobID, "id", id)
			continue
		}

		record := trainingRecord{Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPromptFormat, strings.Join(tables, ", "))},
			{Role: "user", Content: "Question: " + rec.PromptText},
			{Role: "assistant", Content: rec.SQL},
		}}
		if err := enc.Encode(record); err != nil {
			return written, fmt.Errorf("writing training record: %w", err)
		}
		written++
	}

	if written == 0 {
		return 0, fmt.Errorf("%w: job %s", ErrNoGoldenSQLs, jobID)
	}
	m.logger.Debug("built training file", "job_id", jobID, "records", written)
	return written, nil
}

// TrainingFileName returns a fresh unique name for an exported training
// file.
func TrainingFileName() string {
	return uuid.NewString() + ".jsonl"
}
