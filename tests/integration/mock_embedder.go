package integration

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/dshills/diffcontext/internal/embedder"
)

// MockEmbedder generates deterministic unit vectors from a text hash, so
// identical text always lands on the identical vector without a network.
type MockEmbedder struct {
	dimension int
	calls     atomic.Int64
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{dimension: dimension}
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, embedder.ErrEmptyText
	}
	m.calls.Add(1)

	hash := sha256.Sum256([]byte(text))
	vector := make([]float32, m.dimension)
	for i := range vector {
		idx := (i * 4) % (len(hash) - 3)
		val := binary.BigEndian.Uint32(hash[idx : idx+4])
		vector[i] = (float32(val)/float32(1<<31) - 1)
	}

	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		scale := float32(1 / math.Sqrt(sum))
		for i := range vector {
			vector[i] *= scale
		}
	}
	return vector, nil
}

func (m *MockEmbedder) Dimension() int { return m.dimension }

// Calls reports how many embeddings were actually computed.
func (m *MockEmbedder) Calls() int64 { return m.calls.Load() }
