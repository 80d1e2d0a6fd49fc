package vector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// mockEmbedder implements ai.Embedder for testing.
type mockEmbedder struct {
	callCount int
	embedErr  error
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(r api.Registry) {}

func (m *mockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return &ai.EmbedResponse{
		Embeddings: []*ai.Embedding{{Embedding: []float32{0.1, 0.2, 0.3}}},
	}, nil
}

func TestNewRateLimitedEmbedder_Validation(t *testing.T) {
	if _, err := NewRateLimitedEmbedder(nil, 5, 1); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewRateLimitedEmbedder(&mockEmbedder{}, 0, 1); err == nil {
		t.Error("expected error for zero rps")
	}
	if _, err := NewRateLimitedEmbedder(&mockEmbedder{}, -1, 1); err == nil {
		t.Error("expected error for negative rps")
	}
}

func TestRateLimitedEmbedder_Delegates(t *testing.T) {
	inner := &mockEmbedder{}
	limited, err := NewRateLimitedEmbedder(inner, 100, 10)
	if err != nil {
		t.Fatalf("NewRateLimitedEmbedder() error = %v", err)
	}

	if got := limited.Name(); got != "mock-embedder" {
		t.Errorf("Name() = %q, want %q", got, "mock-embedder")
	}

	resp, err := limited.Embed(context.Background(), &ai.EmbedRequest{})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(resp.Embeddings) != 1 {
		t.Errorf("Embeddings count = %d, want 1", len(resp.Embeddings))
	}
	if inner.callCount != 1 {
		t.Errorf("inner call count = %d, want 1", inner.callCount)
	}
}

func TestRateLimitedEmbedder_PropagatesError(t *testing.T) {
	wantErr := errors.New("quota exceeded")
	inner := &mockEmbedder{embedErr: wantErr}
	limited, err := NewRateLimitedEmbedder(inner, 100, 10)
	if err != nil {
		t.Fatalf("NewRateLimitedEmbedder() error = %v", err)
	}

	if _, err := limited.Embed(context.Background(), &ai.EmbedRequest{}); !errors.Is(err, wantErr) {
		t.Errorf("Embed() error = %v, want %v", err, wantErr)
	}
}

func TestRateLimitedEmbedder_CancelledContext(t *testing.T) {
	inner := &mockEmbedder{}
	// 1 rps, burst 1: the second immediate call must wait ~1s, so a
	// cancelled context aborts it without reaching the inner embedder.
	limited, err := NewRateLimitedEmbedder(inner, 1, 1)
	if err != nil {
		t.Fatalf("NewRateLimitedEmbedder() error = %v", err)
	}

	if _, err := limited.Embed(context.Background(), &ai.EmbedRequest{}); err != nil {
		t.Fatalf("first Embed() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := limited.Embed(ctx, &ai.EmbedRequest{}); err == nil {
		t.Error("expected error when limiter wait outlives context")
	}
	if inner.callCount != 1 {
		t.Errorf("inner call count = %d, want 1 (second call must not reach inner)", inner.callCount)
	}
}
