package testutil

import (
	"context"
	"math"
	"testing"

	"github.com/firebase/genkit/go/ai"

	"github.com/groundsql/groundsql/internal/vector"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := &StaticEmbedder{}
	ctx := context.Background()

	req := &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText("show all users", nil)},
	}

	first, err := e.Embed(ctx, req)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	second, err := e.Embed(ctx, req)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	a := first.Embeddings[0].Embedding
	b := second.Embeddings[0].Embedding
	if len(a) != int(vector.Dimension) {
		t.Fatalf("embedding width = %d, want %d", len(a), vector.Dimension)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding differs at %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestStaticEmbedder_DistinctTexts(t *testing.T) {
	e := &StaticEmbedder{}

	resp, err := e.Embed(context.Background(), &ai.EmbedRequest{
		Input: []*ai.Document{
			ai.DocumentFromText("show all users", nil),
			ai.DocumentFromText("count the orders", nil),
		},
	})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(resp.Embeddings) != 2 {
		t.Fatalf("embedding count = %d, want 2", len(resp.Embeddings))
	}

	same := true
	for i := range resp.Embeddings[0].Embedding {
		if resp.Embeddings[0].Embedding[i] != resp.Embeddings[1].Embedding[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct texts should map to distinct vectors")
	}
}

func TestStaticVector_Normalized(t *testing.T) {
	vec := staticVector("normalize me")

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-5 {
		t.Errorf("vector L2 norm = %f, want 1.0", math.Sqrt(norm))
	}
}
