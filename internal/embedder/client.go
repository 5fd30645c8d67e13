package embedder

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agenthands/procgraph/internal/core/model"
)

// Client produces embedding vectors for candidate text.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces free text from a prompt. Used for definition synthesis.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RetryingClient wraps a Client with exponential backoff. Errors that survive
// the retry budget come back as EmbeddingServiceError so callers can degrade
// to alias-only resolution instead of failing the candidate.
type RetryingClient struct {
	inner      Client
	maxRetries uint64
}

func WithRetries(inner Client, maxRetries int) *RetryingClient {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryingClient{inner: inner, maxRetries: uint64(maxRetries)}
}

func (c *RetryingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	op := func() error {
		var err error
		vec, err = c.inner.Embed(ctx, text)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx))
	if err != nil {
		return nil, &model.EmbeddingServiceError{Err: err}
	}
	return vec, nil
}
