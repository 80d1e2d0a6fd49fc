package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/groundsql/groundsql/internal/entity"
	"github.com/groundsql/groundsql/internal/repository"
	"github.com/groundsql/groundsql/internal/vector"
)

// Metadata keys stored with indexed records.
const (
	metaFileName     = "file_name"
	metaConnectionID = "db_connection_id"
	metaText         = "text"
	metaSQL          = "sql"
)

// GoldenRecord is the index projection of a golden example: the prompt
// text is what gets embedded, the SQL rides in metadata. Every writer of
// the golden collection must produce this shape.
func GoldenRecord(rec *entity.GoldenSQL) vector.Record {
	return vector.Record{
		ID:             rec.ID,
		DBConnectionID: rec.DBConnectionID,
		Content:        rec.PromptText,
		Metadata:       map[string]string{metaSQL: rec.SQL},
	}
}

// GoldenStore is the record-store surface golden examples are curated
// through. FindByID reports absence with repository.ErrNotFound.
type GoldenStore interface {
	Insert(ctx context.Context, req entity.GoldenSQLRequest) (*entity.GoldenSQL, error)
	FindByID(ctx context.Context, id string) (*entity.GoldenSQL, error)
	DeleteByID(ctx context.Context, id string) (int64, error)
}

// InstructionStore lists instructions for exact connection filtering.
type InstructionStore interface {
	All(ctx context.Context) ([]*entity.Instruction, error)
}

// Index is the similarity-index surface the assembler writes to and
// queries. *vector.Store satisfies it.
type Index interface {
	AddRecords(ctx context.Context, collection string, records []vector.Record) error
	Query(ctx context.Context, collection, dbConnectionID, query string, opts ...vector.QueryOption) ([]vector.Match, error)
	DeleteRecord(ctx context.Context, collection, id string) error
	DeleteByMetadata(ctx context.Context, collection string, filter map[string]string) (int64, error)
}

// Config carries the collection names and retrieval geometry.
type Config struct {
	GoldenCollection  string
	ContextCollection string
	ChunkSize         int
	ChunkOverlap      int
	TopK              int
}

// Sample is one golden example resolved for a question, carrying its
// similarity score.
type Sample struct {
	ID         string  `json:"id"`
	PromptText string  `json:"prompt_text"`
	SQL        string  `json:"sql"`
	Score      float64 `json:"score"`
}

// Assembler orchestrates the record store and the vector index for context
// retrieval and knowledge curation. It owns the dual-write discipline
// between the two; it owns no storage itself.
type Assembler struct {
	golden       GoldenStore
	instructions InstructionStore
	index        Index
	cfg          Config
	logger       *slog.Logger
}

// NewAssembler creates a context assembler over its two collaborators.
func NewAssembler(golden GoldenStore, instructions InstructionStore, index Index, cfg Config, logger *slog.Logger) (*Assembler, error) {
	if golden == nil {
		return nil, fmt.Errorf("golden store is required")
	}
	if instructions == nil {
		return nil, fmt.Errorf("instruction store is required")
	}
	if index == nil {
		return nil, fmt.Errorf("vector index is required")
	}
	if cfg.GoldenCollection == "" || cfg.ContextCollection == "" {
		return nil, fmt.Errorf("collection names are required")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		golden:       golden,
		instructions: instructions,
		index:        index,
		cfg:          cfg,
		logger:       logger,
	}, nil
}

// RetrieveContextForQuestion returns the k most similar golden examples
// and every instruction on the prompt's connection. Both results are nil
// when nothing is relevant, never empty. k <= 0 uses the configured top-k.
//
// Matches whose backing record no longer exists are skipped; the index may
// briefly lead the record store and is repaired by the reconcile sweep,
// not here.
func (a *Assembler) RetrieveContextForQuestion(ctx context.Context, prompt *entity.Prompt, k int) ([]Sample, []*entity.Instruction, error) {
	if prompt == nil {
		return nil, nil, fmt.Errorf("prompt is required")
	}

	matches, err := a.index.Query(ctx, a.cfg.GoldenCollection, prompt.DBConnectionID, prompt.Text,
		vector.WithTopK(a.topK(k)))
	if err != nil {
		return nil, nil, fmt.Errorf("querying golden examples: %w", err)
	}

	var samples []Sample
	for _, m := range matches {
		rec, err := a.golden.FindByID(ctx, m.ID)
		if errors.Is(err, repository.ErrNotFound) {
			a.logger.Debug("skipping stale golden match", "id", m.ID)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("resolving golden example %s: %w", m.ID, err)
		}
		samples = append(samples, Sample{
			ID:         rec.ID,
			PromptText: rec.PromptText,
			SQL:        rec.SQL,
			Score:      m.Score,
		})
	}

	all, err := a.instructions.All(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing instructions: %w", err)
	}
	var scoped []*entity.Instruction
	for _, in := range all {
		if in.DBConnectionID == prompt.DBConnectionID {
			scoped = append(scoped, in)
		}
	}

	return samples, scoped, nil
}

// AddGoldenSQLs validates, persists and indexes a batch of golden
// examples, returning them in submission order. Validation is
// all-or-nothing: one malformed request rejects the whole batch before
// any write. A failed index step after persistence returns the error and
// leaves the records for the reconcile sweep to index.
func (a *Assembler) AddGoldenSQLs(ctx context.Context, reqs []entity.GoldenSQLRequest) ([]*entity.GoldenSQL, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	for i, req := range reqs {
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("golden sql %d: %w", i, err)
		}
	}

	records := make([]*entity.GoldenSQL, 0, len(reqs))
	for _, req := range reqs {
		rec, err := a.golden.Insert(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("persisting golden sql: %w", err)
		}
		records = append(records, rec)
	}

	vecs := make([]vector.Record, 0, len(records))
	for _, rec := range records {
		vecs = append(vecs, GoldenRecord(rec))
	}
	if err := a.index.AddRecords(ctx, a.cfg.GoldenCollection, vecs); err != nil {
		a.logger.Error("indexing golden sqls failed after persistence",
			"count", len(records), "error", err)
		return nil, fmt.Errorf("indexing golden sqls: %w", err)
	}

	a.logger.Debug("added golden sqls", "count", len(records))
	return records, nil
}

// RemoveGoldenSQLs deletes golden examples by id, vector entry first, then
// record. Absent ids are tolerated: a missing vector is skipped and a
// zero-row record delete logs a warning. Removal is idempotent per id.
func (a *Assembler) RemoveGoldenSQLs(ctx context.Context, ids []string) error {
	for _, id := range ids {
		err := a.index.DeleteRecord(ctx, a.cfg.GoldenCollection, id)
		if err != nil && !errors.Is(err, vector.ErrNotFound) {
			return fmt.Errorf("deleting golden vector %s: %w", id, err)
		}

		n, err := a.golden.DeleteByID(ctx, id)
		if err != nil {
			return fmt.Errorf("deleting golden sql %s: %w", id, err)
		}
		if n == 0 {
			a.logger.Warn("golden sql not found during removal", "id", id)
		}
	}

	a.logger.Debug("removed golden sqls", "count", len(ids))
	return nil
}

// AddContextFile chunks content and indexes every chunk under the context
// collection with {file_name, db_connection_id, text} metadata. Context
// files have no record-store counterpart; the chunks are the only durable
// form. Re-ingesting the same file id overwrites its chunks.
func (a *Assembler) AddContextFile(ctx context.Context, file entity.ContextFile, content string) error {
	if err := file.Validate(); err != nil {
		return err
	}
	if file.ID == "" {
		return fmt.Errorf("context file id is required")
	}

	chunks := SplitDocument(file.ID, content, a.cfg.ChunkSize, a.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		a.logger.Debug("context file has no content to index", "file_name", file.FileName)
		return nil
	}

	records := make([]vector.Record, 0, len(chunks))
	for _, c := range chunks {
		records = append(records, vector.Record{
			ID:             c.ID,
			DBConnectionID: file.DBConnectionID,
			Content:        c.Text,
			Metadata: map[string]string{
				metaFileName:     file.FileName,
				metaConnectionID: file.DBConnectionID,
				metaText:         c.Text,
			},
		})
	}
	if err := a.index.AddRecords(ctx, a.cfg.ContextCollection, records); err != nil {
		return fmt.Errorf("indexing context file %s: %w", file.FileName, err)
	}

	a.logger.Debug("indexed context file", "file_name", file.FileName, "chunks", len(chunks))
	return nil
}

// DeleteContextFile removes every chunk whose file_name metadata matches.
// The caller does not need to know individual chunk ids.
func (a *Assembler) DeleteContextFile(ctx context.Context, file entity.ContextFile) error {
	if file.FileName == "" {
		return fmt.Errorf("file name is required")
	}

	removed, err := a.index.DeleteByMetadata(ctx, a.cfg.ContextCollection,
		map[string]string{metaFileName: file.FileName})
	if err != nil {
		return fmt.Errorf("deleting context file %s: %w", file.FileName, err)
	}

	a.logger.Debug("deleted context file", "file_name", file.FileName, "chunks", removed)
	return nil
}

// RetrieveContextFiles returns the text of the k most similar document
// chunks on the prompt's connection, each followed by a newline. The
// result is the empty string, never an error, when nothing is indexed.
func (a *Assembler) RetrieveContextFiles(ctx context.Context, prompt *entity.Prompt, k int) (string, error) {
	if prompt == nil {
		return "", fmt.Errorf("prompt is required")
	}

	matches, err := a.index.Query(ctx, a.cfg.ContextCollection, prompt.DBConnectionID, prompt.Text,
		vector.WithTopK(a.topK(k)))
	if err != nil {
		return "", fmt.Errorf("querying context files: %w", err)
	}

	var b strings.Builder
	for _, m := range matches {
		b.WriteString(m.Metadata[metaText])
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (a *Assembler) topK(k int) int {
	if k > 0 {
		return k
	}
	return a.cfg.TopK
}
