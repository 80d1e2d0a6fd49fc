package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// upsertRecordSQL is the standard write path. ON CONFLICT makes re-indexing
// a record with the same (collection, id) an in-place replacement.
const upsertRecordSQL = `INSERT INTO vector_records (collection, id, db_connection_id, content, embedding, metadata)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (collection, id) DO UPDATE
	SET db_connection_id = EXCLUDED.db_connection_id,
	    content          = EXCLUDED.content,
	    embedding        = EXCLUDED.embedding,
	    metadata         = EXCLUDED.metadata`

// Store manages embedded records backed by PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool       *pgxpool.Pool
	embedder   ai.Embedder
	embedOpts  any
	batchLimit int
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithEmbedOptions overrides the provider-specific options sent with every
// embed request. Pass nil for embedders that reject foreign options (Ollama).
func WithEmbedOptions(opts any) Option {
	return func(s *Store) {
		s.embedOpts = opts
	}
}

// WithBatchLimit caps concurrent embedding calls during batch writes.
func WithBatchLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchLimit = n
		}
	}
}

// NewStore creates a vector Store.
func NewStore(pool *pgxpool.Pool, embedder ai.Embedder, logger *slog.Logger, opts ...Option) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dim := Dimension
	s := &Store{
		pool:     pool,
		embedder: embedder,
		// gemini-embedding-001 defaults to 3072 dimensions; truncate to the
		// schema width.
		embedOpts:  &genai.EmbedContentConfig{OutputDimensionality: &dim},
		batchLimit: 4,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// embed generates a vector embedding for the given text.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: s.embedOpts,
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// AddRecord embeds and upserts a single record into the collection.
func (s *Store) AddRecord(ctx context.Context, collection string, rec Record) error {
	if err := validateRecord(collection, rec); err != nil {
		return err
	}

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	vec, err := s.embed(embedCtx, rec.Content)
	if err != nil {
		return fmt.Errorf("embedding record %s: %w", rec.ID, err)
	}

	if err := upsertRecord(ctx, s.pool, collection, rec, vec); err != nil {
		return err
	}

	s.logger.Debug("indexed vector record", "collection", collection, "id", rec.ID)
	return nil
}

// AddRecords embeds all records concurrently, then writes them in one
// transaction. Either every record of the batch becomes visible or none.
func (s *Store) AddRecords(ctx context.Context, collection string, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	for _, rec := range recs {
		if err := validateRecord(collection, rec); err != nil {
			return err
		}
	}

	vecs := make([]pgvector.Vector, len(recs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchLimit)
	for i := range recs {
		g.Go(func() error {
			embedCtx, cancel := context.WithTimeout(gctx, EmbedTimeout)
			defer cancel()

			vec, err := s.embed(embedCtx, recs[i].Content)
			if err != nil {
				return fmt.Errorf("embedding record %s: %w", recs[i].ID, err)
			}
			vecs[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	for i, rec := range recs {
		if err := upsertRecord(ctx, tx, collection, rec, vecs[i]); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}

	s.logger.Debug("indexed vector batch", "collection", collection, "count", len(recs))
	return nil
}

// Query finds records similar to the query text, scoped to a collection and
// a database connection. Returns up to top-k matches ordered by cosine
// similarity descending.
func (s *Store) Query(ctx context.Context, collection, dbConnectionID, query string, opts ...QueryOption) ([]Match, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if query == "" || dbConnectionID == "" {
		return []Match{}, nil
	}
	if len(query) > MaxQueryLen {
		query = query[:MaxQueryLen]
	}
	if strings.ContainsRune(query, 0) {
		return []Match{}, nil
	}

	cfg := buildQueryConfig(opts)

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	vec, err := s.embed(embedCtx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, content, metadata, 1 - (embedding <=> $3) AS score
		 FROM vector_records
		 WHERE collection = $1 AND db_connection_id = $2
		 ORDER BY embedding <=> $3
		 LIMIT $4`,
		collection, dbConnectionID, vec, cfg.topK,
	)
	if err != nil {
		return nil, fmt.Errorf("querying vector records: %w", err)
	}
	defer rows.Close()

	return scanMatches(rows)
}

// DeleteRecord removes one record. Returns ErrNotFound if the record does
// not exist.
func (s *Store) DeleteRecord(ctx context.Context, collection, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM vector_records WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("deleting vector record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByMetadata removes every record of the collection whose metadata
// contains the filter. An empty filter is rejected rather than deleting the
// whole collection. Returns the number of records removed.
func (s *Store) DeleteByMetadata(ctx context.Context, collection string, filter map[string]string) (int64, error) {
	if len(filter) == 0 {
		return 0, fmt.Errorf("metadata filter is required")
	}

	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return 0, fmt.Errorf("marshaling metadata filter: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM vector_records WHERE collection = $1 AND metadata @> $2`,
		collection, filterJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting by metadata: %w", err)
	}
	return tag.RowsAffected(), nil
}

// IDs returns every record id of the collection in lexical order.
// The reconciler diffs this listing against the system of record.
func (s *Store) IDs(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM vector_records WHERE collection = $1 ORDER BY id`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("listing vector record ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning record id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating record ids: %w", err)
	}
	return ids, nil
}

// Count returns how many records the collection holds.
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM vector_records WHERE collection = $1`,
		collection,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting vector records: %w", err)
	}
	return count, nil
}

func validateRecord(collection string, rec Record) error {
	if collection == "" {
		return fmt.Errorf("collection is required")
	}
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if rec.Content == "" {
		return fmt.Errorf("record content is required")
	}
	if rec.DBConnectionID == "" {
		return fmt.Errorf("record db connection id is required")
	}
	return nil
}

func upsertRecord(ctx context.Context, q querier, collection string, rec Record, vec pgvector.Vector) error {
	meta := rec.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metadataJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling record metadata: %w", err)
	}

	if _, err := q.Exec(ctx, upsertRecordSQL,
		collection, rec.ID, rec.DBConnectionID, rec.Content, vec, metadataJSON,
	); err != nil {
		return fmt.Errorf("upserting vector record %s: %w", rec.ID, err)
	}
	return nil
}

// scanMatches converts similarity rows into Match values.
func scanMatches(rows pgx.Rows) ([]Match, error) {
	matches := []Match{}
	for rows.Next() {
		var m Match
		var metadataJSON []byte
		if err := rows.Scan(&m.ID, &m.Content, &metadataJSON, &m.Score); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &m.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling match metadata: %w", err)
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating matches: %w", err)
	}
	return matches, nil
}
