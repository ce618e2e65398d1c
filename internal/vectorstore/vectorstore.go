package vectorstore

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

const (
	// DefaultPartitions is the number of centroid partitions the index
	// divides vectors into.
	DefaultPartitions = 16

	// DefaultProbes is the number of partitions examined per search.
	// Raising it examines more candidates and improves recall; probes
	// equal to the partition count makes the search exhaustive.
	DefaultProbes = 4

	// DefaultCompactionThreshold is the tombstone ratio beyond which
	// MaybeCompact rebuilds the index.
	DefaultCompactionThreshold = 0.20
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs
	// from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrEmptyVector is returned for nil, zero-length, or zero-norm
	// vectors, none of which have a cosine similarity.
	ErrEmptyVector = errors.New("empty vector")
	// ErrNotFound is returned when a vector id does not exist.
	ErrNotFound = errors.New("vector not found")
)

// Hit is one search result: a vector handle and its cosine similarity to
// the query.
type Hit struct {
	ID    int64
	Score float64
}

// Options configure an Index.
type Options struct {
	Partitions          int
	Probes              int
	CompactionThreshold float64
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Partitions:          DefaultPartitions,
		Probes:              DefaultProbes,
		CompactionThreshold: DefaultCompactionThreshold,
	}
}

// Index is an in-process approximate-nearest-neighbor index over cosine
// similarity. Vectors are grouped into centroid partitions; a search ranks
// partitions by centroid similarity and scans only the closest `probes`
// partitions, so recall improves monotonically with the probe count.
//
// Deletions are logical: the id goes into a tombstone set and the vector is
// skipped by searches until Compact physically removes it. Ids are dense,
// monotonically assigned, and survive compaction.
type Index struct {
	mu sync.RWMutex

	dim        int // fixed by the first insert
	partitions int
	probes     int
	threshold  float64

	vectors    map[int64][]float32
	norms      map[int64]float64
	assign     map[int64]int
	centroids  [][]float32
	tombstones map[int64]struct{}
	nextID     int64
}

// New creates an empty index.
func New(opts Options) *Index {
	if opts.Partitions <= 0 {
		opts.Partitions = DefaultPartitions
	}
	if opts.Probes <= 0 {
		opts.Probes = DefaultProbes
	}
	if opts.CompactionThreshold <= 0 {
		opts.CompactionThreshold = DefaultCompactionThreshold
	}
	return &Index{
		partitions: opts.Partitions,
		probes:     opts.Probes,
		threshold:  opts.CompactionThreshold,
		vectors:    make(map[int64][]float32),
		norms:      make(map[int64]float64),
		assign:     make(map[int64]int),
		tombstones: make(map[int64]struct{}),
	}
}

// Insert adds a vector and returns its newly assigned handle.
func (ix *Index) Insert(vector []float32) (int64, error) {
	if len(vector) == 0 {
		return 0, ErrEmptyVector
	}

	n := norm(vector)
	if n == 0 {
		return 0, fmt.Errorf("%w: zero norm", ErrEmptyVector)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dim == 0 {
		ix.dim = len(vector)
	}
	if len(vector) != ix.dim {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), ix.dim)
	}

	stored := make([]float32, len(vector))
	copy(stored, vector)

	id := ix.nextID
	ix.nextID++

	ix.vectors[id] = stored
	ix.norms[id] = n
	ix.assign[id] = ix.assignPartition(stored)

	return id, nil
}

// Delete tombstones a vector. Deleting an unknown or already-tombstoned id
// returns ErrNotFound.
func (ix *Index) Delete(id int64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.vectors[id]; !ok {
		return ErrNotFound
	}
	if _, dead := ix.tombstones[id]; dead {
		return ErrNotFound
	}
	ix.tombstones[id] = struct{}{}
	return nil
}

// Search returns up to k live vectors most similar to query, ordered by
// descending cosine similarity with ties broken by ascending id. probes
// overrides the configured search effort when positive.
func (ix *Index) Search(query []float32, k, probes int) ([]Hit, error) {
	if len(query) == 0 {
		return nil, ErrEmptyVector
	}
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.vectors) == 0 {
		return nil, nil
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), ix.dim)
	}
	if probes <= 0 {
		probes = ix.probes
	}

	queryNorm := norm(query)
	if queryNorm == 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, k*2)
	for _, part := range ix.rankPartitions(query, queryNorm, probes) {
		for id, p := range ix.assign {
			if p != part {
				continue
			}
			if _, dead := ix.tombstones[id]; dead {
				continue
			}
			score := dot(query, ix.vectors[id]) / (queryNorm * ix.norms[id])
			hits = append(hits, Hit{ID: id, Score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// rankPartitions orders partition indices by centroid similarity to the
// query and returns the top `probes` of them.
func (ix *Index) rankPartitions(query []float32, queryNorm float64, probes int) []int {
	type ranked struct {
		part  int
		score float64
	}
	parts := make([]ranked, 0, len(ix.centroids))
	for i, c := range ix.centroids {
		cn := norm(c)
		if cn == 0 {
			parts = append(parts, ranked{part: i, score: -1})
			continue
		}
		parts = append(parts, ranked{part: i, score: dot(query, c) / (queryNorm * cn)})
	}
	sort.Slice(parts, func(i, j int) bool {
		if parts[i].score != parts[j].score {
			return parts[i].score > parts[j].score
		}
		return parts[i].part < parts[j].part
	})

	if probes > len(parts) {
		probes = len(parts)
	}
	out := make([]int, probes)
	for i := 0; i < probes; i++ {
		out[i] = parts[i].part
	}
	return out
}

// assignPartition places a vector in the nearest centroid partition. Until
// the configured partition count is reached, new vectors seed new
// centroids, which keeps early small indexes exhaustive.
func (ix *Index) assignPartition(vector []float32) int {
	if len(ix.centroids) < ix.partitions {
		c := make([]float32, len(vector))
		copy(c, vector)
		ix.centroids = append(ix.centroids, c)
		return len(ix.centroids) - 1
	}

	vn := norm(vector)
	best, bestScore := 0, math.Inf(-1)
	for i, c := range ix.centroids {
		cn := norm(c)
		if cn == 0 || vn == 0 {
			continue
		}
		score := dot(vector, c) / (vn * cn)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// Len returns the number of live vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors) - len(ix.tombstones)
}

// TombstoneRatio returns tombstoned / total stored vectors.
func (ix *Index) TombstoneRatio() float64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.vectors) == 0 {
		return 0
	}
	return float64(len(ix.tombstones)) / float64(len(ix.vectors))
}

// Compact physically removes tombstoned vectors and rebuilds the centroid
// partitions from the live set. Ids are preserved. Returns the number of
// vectors reclaimed.
func (ix *Index) Compact() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.compactLocked()
}

func (ix *Index) compactLocked() int {
	reclaimed := len(ix.tombstones)
	for id := range ix.tombstones {
		delete(ix.vectors, id)
		delete(ix.norms, id)
		delete(ix.assign, id)
	}
	ix.tombstones = make(map[int64]struct{})

	// Rebuild partitions from live vectors in id order so the result is
	// deterministic.
	ix.centroids = nil
	ids := make([]int64, 0, len(ix.vectors))
	for id := range ix.vectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		ix.assign[id] = ix.assignPartition(ix.vectors[id])
	}
	return reclaimed
}

// MaybeCompact compacts when the tombstone ratio exceeds the configured
// threshold. Returns the number of vectors reclaimed (0 if below).
func (ix *Index) MaybeCompact() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(ix.vectors) == 0 {
		return 0
	}
	ratio := float64(len(ix.tombstones)) / float64(len(ix.vectors))
	if ratio <= ix.threshold {
		return 0
	}
	return ix.compactLocked()
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i] * b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x * x)
	}
	return math.Sqrt(sum)
}
