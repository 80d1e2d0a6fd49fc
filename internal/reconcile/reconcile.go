// Package reconcile repairs divergence between the golden SQL record
// store and its vector index projection. The record store is the system
// of record: rows missing from the index are re-embedded, index entries
// without a backing row are deleted.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/groundsql/groundsql/internal/entity"
	"github.com/groundsql/groundsql/internal/knowledge"
	"github.com/groundsql/groundsql/internal/vector"
)

// DefaultInterval is how often the background loop sweeps.
const DefaultInterval = time.Hour

// GoldenStore lists every golden example in the system of record.
type GoldenStore interface {
	All(ctx context.Context) ([]*entity.GoldenSQL, error)
}

// Index is the vector-store surface a sweep reads and repairs.
// *vector.Store satisfies it.
type Index interface {
	IDs(ctx context.Context, collection string) ([]string, error)
	AddRecords(ctx context.Context, collection string, records []vector.Record) error
	DeleteRecord(ctx context.Context, collection, id string) error
}

// Report summarizes one sweep.
type Report struct {
	RunID     uuid.UUID     `json:"run_id"`
	Reindexed int           `json:"reindexed"`
	Removed   int           `json:"removed"`
	Duration  time.Duration `json:"duration"`
}

// Reconciler periodically realigns the golden collection with the record
// store.
type Reconciler struct {
	golden     GoldenStore
	index      Index
	collection string
	interval   time.Duration
	logger     *slog.Logger
}

// NewReconciler creates a reconciler for one golden collection. An
// interval of zero or less falls back to DefaultInterval.
func NewReconciler(golden GoldenStore, index Index, collection string, interval time.Duration, logger *slog.Logger) (*Reconciler, error) {
	if golden == nil {
		return nil, fmt.Errorf("golden store is required")
	}
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		golden:     golden,
		index:      index,
		collection: collection,
		interval:   interval,
		logger:     logger,
	}, nil
}

// Run blocks until ctx is canceled, executing RunOnce on each tick.
// Callers must track the goroutine with a WaitGroup.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Warn("reconcile sweep failed", "error", err)
			}
		}
	}
}

// RunOnce executes a single sweep. Repairs are idempotent: re-indexing is
// an upsert and deleting an already-gone entry is tolerated, so
// overlapping sweeps converge on the same state.
func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.New()}
	start := time.Now()

	// The index snapshot is taken first so a record created mid-sweep can
	// never look like an orphaned index entry.
	ids, err := r.index.IDs(ctx, r.collection)
	if err != nil {
		return report, fmt.Errorf("listing index entries: %w", err)
	}
	records, err := r.golden.All(ctx)
	if err != nil {
		return report, fmt.Errorf("listing golden sqls: %w", err)
	}

	indexed := make(map[string]bool, len(ids))
	for _, id := range ids {
		indexed[id] = true
	}
	stored := make(map[string]bool, len(records))

	var missing []vector.Record
	for _, rec := range records {
		stored[rec.ID] = true
		if !indexed[rec.ID] {
			missing = append(missing, knowledge.GoldenRecord(rec))
		}
	}
	if len(missing) > 0 {
		if err := r.index.AddRecords(ctx, r.collection, missing); err != nil {
			return report, fmt.Errorf("reindexing golden sqls: %w", err)
		}
		report.Reindexed = len(missing)
	}

	for _, id := range ids {
		if stored[id] {
			continue
		}
		err := r.index.DeleteRecord(ctx, r.collection, id)
		if errors.Is(err, vector.ErrNotFound) {
			continue
		}
		if err != nil {
			return report, fmt.Errorf("removing orphaned index entry %s: %w", id, err)
		}
		report.Removed++
	}

	report.Duration = time.Since(start)
	if report.Reindexed > 0 || report.Removed > 0 {
		r.logger.Info("repaired dual-store divergence",
			"run_id", report.RunID, "reindexed", report.Reindexed,
			"removed", report.Removed, "duration", report.Duration)
	} else {
		r.logger.Debug("golden stores aligned", "run_id", report.RunID)
	}
	return report, nil
}
