package embedder

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/diffcontext/pkg/types"
)

// ErrEmptyText is returned when asked to embed nothing.
var ErrEmptyText = errors.New("text cannot be empty")

// Embedder generates a fixed-length vector for a piece of text. The model
// behind it is an external collaborator; transient failures are reported as
// types.ErrEmbeddingUnavailable so callers can retry.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// ComputeHash returns the cache key for a text.
func ComputeHash(text string) [32]byte {
	return sha256.Sum256([]byte(text))
}

// cached decorates an Embedder with an LRU cache keyed by content hash, so
// re-indexing unchanged content never repeats a provider call.
type cached struct {
	inner Embedder
	cache *lru.Cache[[32]byte, []float32]
}

// NewCached wraps inner with an LRU cache of maxLen entries.
func NewCached(inner Embedder, maxLen int) Embedder {
	if maxLen <= 0 {
		maxLen = 10000 // Default: cache 10k embeddings
	}
	cache, err := lru.New[[32]byte, []float32](maxLen)
	if err != nil {
		// Should never happen with positive size, but fallback to default
		cache, _ = lru.New[[32]byte, []float32](10000)
	}
	return &cached{inner: inner, cache: cache}
}

func (c *cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	key := ComputeHash(text)
	if vec, ok := c.cache.Get(key); ok {
		// Return a copy to protect the cached value from mutation
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	stored := make([]float32, len(vec))
	copy(stored, vec)
	c.cache.Add(key, stored)
	return vec, nil
}

func (c *cached) Dimension() int {
	return c.inner.Dimension()
}

// Transient wraps err as a transient embedding failure.
func Transient(err error) error {
	return fmt.Errorf("%w: %v", types.ErrEmbeddingUnavailable, err)
}
