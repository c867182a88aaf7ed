package embed

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig bounds the retry loop around a flaky embedder.
type RetryConfig struct {
	MaxRetries   int           // attempts after the first failure
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // backoff ceiling
	Multiplier   float64       // backoff growth factor
}

// DefaultRetryConfig returns the standard retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryEmbedder wraps an Embedder with exponential backoff and jitter on
// failed calls. Context cancellation always wins over a pending retry.
type RetryEmbedder struct {
	inner Embedder
	cfg   RetryConfig
}

var _ Embedder = (*RetryEmbedder)(nil)

// NewRetryEmbedder creates a retrying embedder around inner.
func NewRetryEmbedder(inner Embedder, cfg RetryConfig) *RetryEmbedder {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultRetryConfig().InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultRetryConfig().MaxDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = DefaultRetryConfig().Multiplier
	}
	return &RetryEmbedder{inner: inner, cfg: cfg}
}

// Embed retries the single-text call.
func (r *RetryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := r.withRetry(ctx, func() error {
		var callErr error
		vec, callErr = r.inner.Embed(ctx, text)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch retries the batch call as a unit.
func (r *RetryEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := r.withRetry(ctx, func() error {
		var callErr error
		vecs, callErr = r.inner.EmbedBatch(ctx, texts)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

// withRetry runs fn until it succeeds or attempts run out. Backoff grows
// by Multiplier per attempt, capped at MaxDelay, with up to 25% jitter.
func (r *RetryEmbedder) withRetry(ctx context.Context, fn func() error) error {
	delay := r.cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt >= r.cfg.MaxRetries {
				break
			}

			jittered := delay + time.Duration(rand.Int63n(int64(delay)/4+1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jittered):
			}

			delay = time.Duration(float64(delay) * r.cfg.Multiplier)
			if delay > r.cfg.MaxDelay {
				delay = r.cfg.MaxDelay
			}
			continue
		}
		return nil
	}

	return fmt.Errorf("embed failed after %d retries: %w", r.cfg.MaxRetries, lastErr)
}

// Dimensions returns the inner embedder's dimension.
func (r *RetryEmbedder) Dimensions() int {
	return r.inner.Dimensions()
}

// ModelID returns the inner embedder's model identifier.
func (r *RetryEmbedder) ModelID() string {
	return r.inner.ModelID()
}

// Available reports whether the inner embedder is ready.
func (r *RetryEmbedder) Available(ctx context.Context) bool {
	return r.inner.Available(ctx)
}

// Close closes the inner embedder.
func (r *RetryEmbedder) Close() error {
	return r.inner.Close()
}
