package embedder

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dshills/diffcontext/pkg/types"
)

// Retry defaults.
const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = 100 * time.Millisecond
	DefaultMaxInterval     = 5 * time.Second
)

// RetryPolicy bounds how long a transient embedding failure is retried.
type RetryPolicy struct {
	MaxAttempts     int           // Total attempts including the first
	InitialInterval time.Duration // First backoff delay
	MaxInterval     time.Duration // Backoff ceiling
}

// DefaultRetryPolicy returns sensible defaults for provider retry.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
	}
}

// retrying decorates an Embedder with bounded exponential-backoff retry.
// Only types.ErrEmbeddingUnavailable is retried; anything else fails
// immediately.
type retrying struct {
	inner  Embedder
	policy RetryPolicy
}

// NewRetrying wraps inner with the given retry policy.
func NewRetrying(inner Embedder, policy RetryPolicy) Embedder {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultInitialInterval
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = DefaultMaxInterval
	}
	return &retrying{inner: inner, policy: policy}
}

func (r *retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.policy.InitialInterval
	bo.MaxInterval = r.policy.MaxInterval
	bo.MaxElapsedTime = 0 // bounded by attempt count, not wall time

	var vec []float32
	operation := func() error {
		var err error
		vec, err = r.inner.Embed(ctx, text)
		if err == nil {
			return nil
		}
		if errors.Is(err, types.ErrEmbeddingUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(r.policy.MaxAttempts-1)), ctx))
	if err != nil {
		return nil, err
	}
	return vec, nil
}

func (r *retrying) Dimension() int {
	return r.inner.Dimension()
}

// timeout decorates an Embedder so every call carries a deadline, keeping a
// stalled provider from blocking the whole pipeline.
type timeout struct {
	inner Embedder
	d     time.Duration
}

// NewTimeout wraps inner so each Embed call is bounded by d.
func NewTimeout(inner Embedder, d time.Duration) Embedder {
	if d <= 0 {
		return inner
	}
	return &timeout{inner: inner, d: d}
}

func (t *timeout) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	vec, err := t.inner.Embed(ctx, text)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		// A timeout is transient from the caller's point of view
		return nil, Transient(err)
	}
	return vec, err
}

func (t *timeout) Dimension() int {
	return t.inner.Dimension()
}
