package vectorstore

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitVector(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot%dim] = 1
	return v
}

func TestInsertAssignsMonotonicIDs(t *testing.T) {
	ix := New(DefaultOptions())

	for want := int64(0); want < 5; want++ {
		id, err := ix.Insert(unitVector(8, int(want)))
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	assert.Equal(t, 5, ix.Len())
}

func TestInsertRejectsBadVectors(t *testing.T) {
	ix := New(DefaultOptions())

	_, err := ix.Insert(nil)
	assert.ErrorIs(t, err, ErrEmptyVector)

	// All zeros has no direction; its similarity would be NaN.
	_, err = ix.Insert(make([]float32, 8))
	assert.ErrorIs(t, err, ErrEmptyVector)

	_, err = ix.Insert(unitVector(8, 0))
	require.NoError(t, err)
	_, err = ix.Insert(unitVector(4, 0))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSearchRanksBySimilarity(t *testing.T) {
	ix := New(DefaultOptions())

	a, err := ix.Insert([]float32{1, 0, 0, 0})
	require.NoError(t, err)
	b, err := ix.Insert([]float32{0.9, 0.1, 0, 0})
	require.NoError(t, err)
	_, err = ix.Insert([]float32{0, 0, 0, 1})
	require.NoError(t, err)

	hits, err := ix.Search([]float32{1, 0, 0, 0}, 2, ix.partitions)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, a, hits[0].ID)
	assert.Equal(t, b, hits[1].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestSearchTieBreaksByAscendingID(t *testing.T) {
	ix := New(DefaultOptions())

	// Two identical vectors: equal similarity, lower id first.
	first, err := ix.Insert([]float32{0, 1, 0})
	require.NoError(t, err)
	second, err := ix.Insert([]float32{0, 1, 0})
	require.NoError(t, err)

	hits, err := ix.Search([]float32{0, 1, 0}, 2, ix.partitions)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, first, hits[0].ID)
	assert.Equal(t, second, hits[1].ID)
}

func TestSearchEmptyIndex(t *testing.T) {
	ix := New(DefaultOptions())

	hits, err := ix.Search([]float32{1, 0}, 3, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDeleteTombstones(t *testing.T) {
	ix := New(DefaultOptions())

	id, err := ix.Insert([]float32{1, 0})
	require.NoError(t, err)
	require.NoError(t, ix.Delete(id))

	// Deleted vector is invisible to search
	hits, err := ix.Search([]float32{1, 0}, 1, ix.partitions)
	require.NoError(t, err)
	assert.Empty(t, hits)

	assert.Equal(t, 0, ix.Len())
	assert.ErrorIs(t, ix.Delete(id), ErrNotFound)
	assert.ErrorIs(t, ix.Delete(999), ErrNotFound)
}

func TestCompactReclaimsTombstones(t *testing.T) {
	ix := New(DefaultOptions())

	var kept []int64
	for i := 0; i < 10; i++ {
		id, err := ix.Insert(unitVector(16, i))
		require.NoError(t, err)
		if i%2 == 0 {
			kept = append(kept, id)
		}
	}
	for i := int64(1); i < 10; i += 2 {
		require.NoError(t, ix.Delete(i))
	}

	assert.InDelta(t, 0.5, ix.TombstoneRatio(), 1e-9)
	reclaimed := ix.Compact()
	assert.Equal(t, 5, reclaimed)
	assert.Equal(t, 0.0, ix.TombstoneRatio())
	assert.Equal(t, 5, ix.Len())

	// Live ids survive compaction and remain searchable
	for _, id := range kept {
		hits, err := ix.Search(unitVector(16, int(id)), 1, ix.partitions)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, id, hits[0].ID)
	}

	// Ids are never reused after compaction
	next, err := ix.Insert(unitVector(16, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(10), next)
}

func TestMaybeCompactHonorsThreshold(t *testing.T) {
	ix := New(Options{Partitions: 4, Probes: 4, CompactionThreshold: 0.20})

	for i := 0; i < 10; i++ {
		_, err := ix.Insert(unitVector(4, i))
		require.NoError(t, err)
	}

	// 2/10 tombstones == threshold, not beyond it
	require.NoError(t, ix.Delete(0))
	require.NoError(t, ix.Delete(1))
	assert.Equal(t, 0, ix.MaybeCompact())

	require.NoError(t, ix.Delete(2))
	assert.Equal(t, 3, ix.MaybeCompact())
}

func TestProbesImproveRecall(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ix := New(Options{Partitions: 8, Probes: 1, CompactionThreshold: 0.20})

	const dim = 16
	for i := 0; i < 200; i++ {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		_, err := ix.Insert(v)
		require.NoError(t, err)
	}

	query := make([]float32, dim)
	for j := range query {
		query[j] = rng.Float32()*2 - 1
	}

	exact, err := ix.Search(query, 10, 8)
	require.NoError(t, err)
	exactSet := make(map[int64]bool, len(exact))
	for _, h := range exact {
		exactSet[h.ID] = true
	}

	recallAt := func(probes int) int {
		hits, err := ix.Search(query, 10, probes)
		require.NoError(t, err)
		n := 0
		for _, h := range hits {
			if exactSet[h.ID] {
				n++
			}
		}
		return n
	}

	prev := -1
	for probes := 1; probes <= 8; probes++ {
		got := recallAt(probes)
		assert.GreaterOrEqual(t, got, prev, "probes=%d", probes)
		prev = got
	}
	assert.Equal(t, len(exact), recallAt(8))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.idx")

	ix := New(DefaultOptions())
	a, err := ix.Insert([]float32{1, 0, 0})
	require.NoError(t, err)
	b, err := ix.Insert([]float32{0, 1, 0})
	require.NoError(t, err)
	require.NoError(t, ix.Delete(b))
	require.NoError(t, ix.Save(path))

	loaded, err := Load(path, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
	assert.InDelta(t, 0.5, loaded.TombstoneRatio(), 1e-9)

	hits, err := loaded.Search([]float32{1, 0, 0}, 2, loaded.partitions)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, a, hits[0].ID)

	// Id assignment continues where it left off
	next, err := loaded.Insert([]float32{0, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)
}

func TestLoadMissingFileYieldsEmptyIndex(t *testing.T) {
	ix, err := Load(filepath.Join(t.TempDir(), "absent.idx"), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, ix.Len())
}
