package testutil

import (
	"context"
	"crypto/sha256"
	"io"
	"log/slog"
	"math"
	"os"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/groundsql/groundsql/internal/vector"
)

// EmbedderSetup contains all resources needed for embedder-based tests.
type EmbedderSetup struct {
	Embedder ai.Embedder
	Genkit   *genkit.Genkit
	Logger   *slog.Logger
}

// SetupEmbedder creates a Google AI embedder with logger for testing.
//
// Requirements:
//   - GEMINI_API_KEY environment variable must be set
//   - Skips test if API key is not available
//
// Most integration tests should use StaticEmbedder instead; this setup is
// for tests that exercise real embedding quality.
func SetupEmbedder(t *testing.T) *EmbedderSetup {
	t.Helper()

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set - skipping test requiring embedder")
	}

	ctx := context.Background()

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	embedder := googlegenai.GoogleAIEmbedder(g, "gemini-embedding-001")

	// Quiet logger for tests (only warn and above)
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))

	return &EmbedderSetup{
		Embedder: embedder,
		Genkit:   g,
		Logger:   logger,
	}
}

// StaticEmbedder is a deterministic ai.Embedder for tests. The vector is
// derived from a SHA-256 digest of the text: identical text always produces
// the identical normalized vector, so exact-content queries score 1.0
// without network access or API keys.
type StaticEmbedder struct{}

// Name implements ai.Embedder.
func (e *StaticEmbedder) Name() string { return "testutil/static-embedder" }

// Register implements ai.Embedder. No-op: the embedder is injected
// directly, never looked up through a registry.
func (e *StaticEmbedder) Register(r api.Registry) {}

// Embed implements ai.Embedder.
func (e *StaticEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	resp := &ai.EmbedResponse{}
	for _, doc := range req.Input {
		var text string
		if len(doc.Content) > 0 {
			text = doc.Content[0].Text
		}
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{Embedding: staticVector(text)})
	}
	return resp, nil
}

// staticVector maps text to an L2-normalized vector of the schema width.
func staticVector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))

	vec := make([]float32, int(vector.Dimension))
	for i := range vec {
		// Mix digest bytes with the position so the vector is not periodic.
		v := float64(sum[i%len(sum)]) + float64(i)*37.0
		vec[i] = float32(math.Sin(v))
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
