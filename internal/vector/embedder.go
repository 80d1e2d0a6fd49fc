package vector

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"golang.org/x/time/rate"
)

// RateLimitedEmbedder wraps an ai.Embedder with a process-wide request
// budget. Batch indexing fans out concurrent embed calls; the limiter keeps
// the aggregate below the provider quota instead of tripping 429s.
type RateLimitedEmbedder struct {
	inner   ai.Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder wraps inner so at most rps requests per second are
// issued, with bursts up to burst.
func NewRateLimitedEmbedder(inner ai.Embedder, rps float64, burst int) (*RateLimitedEmbedder, error) {
	if inner == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if rps <= 0 {
		return nil, fmt.Errorf("rps must be positive, got %g", rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// Name returns the wrapped embedder's name.
func (e *RateLimitedEmbedder) Name() string {
	return e.inner.Name()
}

// Register registers the wrapped embedder.
func (e *RateLimitedEmbedder) Register(r api.Registry) {
	e.inner.Register(r)
}

// Embed waits for limiter capacity, then delegates. Wait returns early if
// ctx is cancelled.
func (e *RateLimitedEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for embed budget: %w", err)
	}
	return e.inner.Embed(ctx, req)
}
