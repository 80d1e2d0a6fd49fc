// Package vector provides the pgvector-backed similarity index shared by
// every knowledge collection.
//
// One table (vector_records) backs all collections; (collection, id) is the
// record identity. Records are embedded on write and queried by cosine
// similarity, always scoped to a collection and a database connection id.
package vector

import (
	"errors"
	"time"
)

// Dimension is the embedding width of every stored vector. The
// vector_records schema declares vector(768); gemini-embedding-001 truncates
// to 768 via OutputDimensionality (Matryoshka Representation Learning).
const Dimension int32 = 768

// EmbedTimeout bounds a single embedding call.
const EmbedTimeout = 30 * time.Second

// MaxTopK caps how many matches a single query may request.
const MaxTopK = 50

// MaxQueryLen caps query text before embedding.
const MaxQueryLen = 8192

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("vector record not found")

// Record is one embeddable entry of a collection. Content is what gets
// embedded; Metadata rides along for filtering and reassembly.
type Record struct {
	ID             string
	DBConnectionID string
	Content        string
	Metadata       map[string]string
}

// Match is a single similarity hit. Score is cosine similarity in [0, 1],
// higher is more similar.
type Match struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]string
}

// QueryOption configures a similarity query using the functional options
// pattern.
type QueryOption func(*queryConfig)

type queryConfig struct {
	topK int
}

// WithTopK sets the maximum number of matches to return. Default is 3.
func WithTopK(k int) QueryOption {
	return func(c *queryConfig) {
		c.topK = k
	}
}

func buildQueryConfig(opts []QueryOption) *queryConfig {
	cfg := &queryConfig{topK: 3}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.topK <= 0 {
		cfg.topK = 3
	}
	if cfg.topK > MaxTopK {
		cfg.topK = MaxTopK
	}
	return cfg
}
