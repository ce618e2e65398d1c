package embedder

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/diffcontext/pkg/types"
)

// scriptedEmbedder fails the first failCount calls, then succeeds.
type scriptedEmbedder struct {
	calls     atomic.Int32
	failCount int32
	failWith  error
}

func (s *scriptedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	n := s.calls.Add(1)
	if n <= s.failCount {
		return nil, s.failWith
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (s *scriptedEmbedder) Dimension() int { return 3 }

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestRetryingRecoversFromTransientFailure(t *testing.T) {
	inner := &scriptedEmbedder{failCount: 2, failWith: Transient(errors.New("flaky"))}
	e := NewRetrying(inner, fastPolicy(3))

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestRetryingGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &scriptedEmbedder{failCount: 100, failWith: Transient(errors.New("down"))}
	e := NewRetrying(inner, fastPolicy(3))

	_, err := e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrEmbeddingUnavailable)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestRetryingDoesNotRetryPermanentErrors(t *testing.T) {
	inner := &scriptedEmbedder{failCount: 100, failWith: errors.New("bad request")}
	e := NewRetrying(inner, fastPolicy(5))

	_, err := e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestRetryingHonorsContextCancellation(t *testing.T) {
	inner := &scriptedEmbedder{failCount: 100, failWith: Transient(errors.New("down"))}
	e := NewRetrying(inner, RetryPolicy{
		MaxAttempts:     10,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := e.Embed(ctx, "hello")
	require.Error(t, err)
	assert.Less(t, inner.calls.Load(), int32(10))
}

func TestCachedAvoidsRepeatCalls(t *testing.T) {
	inner := &scriptedEmbedder{}
	e := NewCached(inner, 10)

	first, err := e.Embed(context.Background(), "same text")
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), "same text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), inner.calls.Load())

	// Different text misses the cache
	_, err = e.Embed(context.Background(), "other text")
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedReturnsCopies(t *testing.T) {
	inner := &scriptedEmbedder{}
	e := NewCached(inner, 10)

	first, err := e.Embed(context.Background(), "text")
	require.NoError(t, err)
	first[0] = 999

	second, err := e.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.NotEqual(t, float32(999), second[0])
}

func TestCachedRejectsEmptyText(t *testing.T) {
	e := NewCached(&scriptedEmbedder{}, 10)

	_, err := e.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyText)
}

// slowEmbedder blocks until its context is done.
type slowEmbedder struct{}

func (slowEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowEmbedder) Dimension() int { return 3 }

func TestTimeoutMapsDeadlineToTransient(t *testing.T) {
	e := NewTimeout(slowEmbedder{}, 5*time.Millisecond)

	_, err := e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrEmbeddingUnavailable)
}
