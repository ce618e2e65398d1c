package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/diffcontext/internal/chunker"
	"github.com/dshills/diffcontext/internal/embedder"
	"github.com/dshills/diffcontext/internal/storage"
	"github.com/dshills/diffcontext/internal/vectorstore"
	"github.com/dshills/diffcontext/pkg/types"
)

// DefaultRetention is how long a chunk stays live without being touched by
// a reconcile run.
const DefaultRetention = 90 * 24 * time.Hour

// ErrIndexInProgress is returned when a reconcile is already running for
// the repository.
var ErrIndexInProgress = errors.New("reconcile already in progress")

// Config contains configuration for the indexing engine
type Config struct {
	Workers   int           // Concurrent embedding workers (default: runtime.NumCPU())
	Retention time.Duration // Expiry window stamped on touched chunks (default: 90 days)
}

// FailureRecord describes one file or chunk that could not be indexed.
type FailureRecord struct {
	FilePath  string
	StartLine int // 0 for whole-file failures
	EndLine   int
	Reason    string
}

// Report summarizes one reconcile run.
type Report struct {
	RunID        string
	RepoID       string
	FilesSeen    int
	FilesFailed  int
	Inserted     int
	Reused       int
	Deleted      int
	ChunksFailed int
	Failures     []FailureRecord
	Duration     time.Duration
}

// Engine reconciles a repository snapshot against the metadata and vector
// stores. One Engine serves one repository; its lock serializes reconcile
// runs while read-only selection proceeds concurrently.
type Engine struct {
	store    storage.Store
	vectors  *vectorstore.Index
	chunker  *chunker.Chunker
	embedder embedder.Embedder

	workers   int
	retention time.Duration
	lock      IndexLock
}

// New creates an indexing engine.
func New(store storage.Store, vectors *vectorstore.Index, ch *chunker.Chunker, emb embedder.Embedder, cfg *Config) *Engine {
	e := &Engine{
		store:     store,
		vectors:   vectors,
		chunker:   ch,
		embedder:  emb,
		workers:   runtime.NumCPU(),
		retention: DefaultRetention,
	}
	if cfg != nil {
		if cfg.Workers > 0 {
			e.workers = cfg.Workers
		}
		if cfg.Retention > 0 {
			e.retention = cfg.Retention
		}
	}
	return e
}

// filePlan is the computed mutation set for one file, built concurrently
// and applied inside that file's transaction.
type filePlan struct {
	repoID   string
	filePath string
	failed   bool // whole-file failure, already recorded
	inserts  []plannedInsert
	reused   []reusedChunk
	deletes  []*storage.Chunk
}

type plannedInsert struct {
	chunk  chunker.Chunk
	vector []float32
}

type reusedChunk struct {
	existing *storage.Chunk
	span     chunker.Chunk // may carry a shifted line range
}

// Reconcile compares the snapshot against stored state and applies the
// necessary insert, reuse, delete, and expiry mutations. It is idempotent:
// a second call with the same snapshot performs no inserts or deletes.
func (e *Engine) Reconcile(ctx context.Context, snap *Snapshot) (*Report, error) {
	if !e.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer e.lock.Release()

	start := time.Now()
	report := &Report{
		RunID:  uuid.NewString(),
		RepoID: snap.RepoID,
	}

	log.Debug().Str("run_id", report.RunID).Str("repo", snap.RepoID).
		Int("files", len(snap.Files)).Msg("reconcile started")

	// Remove chunks for files no longer in the snapshot.
	if err := e.removeVanishedFiles(ctx, snap, report); err != nil {
		return nil, err
	}

	// Plan every file concurrently: chunk, diff against stored state, and
	// embed new content. No writes happen in this phase.
	plans, err := e.planFiles(ctx, snap, report)
	if err != nil {
		return nil, err
	}

	// Apply one transaction per file, in path order. A failure on one
	// file is recorded and must not corrupt the others.
	now := time.Now()
	for _, plan := range plans {
		if plan.failed {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.applyPlan(ctx, plan, now, report); err != nil {
			if errors.Is(err, types.ErrStoreCorruption) {
				return nil, err
			}
			report.FilesFailed++
			report.Failures = append(report.Failures, FailureRecord{
				FilePath: plan.filePath,
				Reason:   err.Error(),
			})
			log.Warn().Str("file", plan.filePath).Err(err).Msg("file reconcile failed")
		}
	}

	report.Duration = time.Since(start)
	log.Info().Str("run_id", report.RunID).Str("repo", snap.RepoID).
		Int("inserted", report.Inserted).Int("reused", report.Reused).
		Int("deleted", report.Deleted).Int("chunks_failed", report.ChunksFailed).
		Dur("duration", report.Duration).Msg("reconcile finished")
	return report, nil
}

// removeVanishedFiles deletes all chunks belonging to files absent from
// the snapshot, one transaction per file.
func (e *Engine) removeVanishedFiles(ctx context.Context, snap *Snapshot, report *Report) error {
	stored, err := e.store.ListFilePaths(ctx, snap.RepoID)
	if err != nil {
		return fmt.Errorf("failed to list indexed files: %w", err)
	}

	for _, path := range stored {
		if _, present := snap.Files[path]; present {
			continue
		}
		chunks, err := e.store.ListChunksByFile(ctx, snap.RepoID, path)
		if err != nil {
			return err
		}

		tx, err := e.store.BeginTx(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.DeleteChunksByFile(ctx, snap.RepoID, path); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		// Rows are gone; tombstone their vectors. An id the vector store
		// no longer knows is corruption between the two stores.
		for _, c := range chunks {
			if !c.HasVector() {
				continue
			}
			if err := e.vectors.Delete(*c.VectorID); err != nil {
				return fmt.Errorf("%w: chunk %d references vector %d: %v",
					types.ErrStoreCorruption, c.ID, *c.VectorID, err)
			}
		}
		report.Deleted += len(chunks)
		log.Debug().Str("file", path).Int("chunks", len(chunks)).Msg("removed vanished file")
	}
	return nil
}

// planFiles chunks and embeds every snapshot file concurrently.
func (e *Engine) planFiles(ctx context.Context, snap *Snapshot, report *Report) ([]*filePlan, error) {
	paths := snap.Paths()
	report.FilesSeen = len(paths)

	plans := make([]*filePlan, len(paths))
	var mu sync.Mutex // Protect report aggregation

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			plan, failures := e.planFile(gctx, snap.RepoID, path, snap.Files[path])
			plans[i] = plan

			if len(failures) > 0 || plan.failed {
				mu.Lock()
				report.Failures = append(report.Failures, failures...)
				if plan.failed {
					report.FilesFailed++
				} else {
					report.ChunksFailed += len(failures)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return plans, nil
}

// planFile computes the mutation set for one file. Chunking failure marks
// the whole file failed; embedding failures skip individual chunks.
func (e *Engine) planFile(ctx context.Context, repoID, path string, content []byte) (*filePlan, []FailureRecord) {
	plan := &filePlan{repoID: repoID, filePath: path}

	chunks, _, err := e.chunker.ChunkFile(path, content)
	if err != nil {
		plan.failed = true
		return plan, []FailureRecord{{
			FilePath: path,
			Reason:   fmt.Errorf("%w: %v", types.ErrChunkingFailure, err).Error(),
		}}
	}

	existing, err := e.store.ListChunksByFile(ctx, repoID, path)
	if err != nil {
		plan.failed = true
		return plan, []FailureRecord{{FilePath: path, Reason: err.Error()}}
	}

	// Index stored chunks by hash; identical windows can repeat, so each
	// stored chunk is consumable once.
	byHash := make(map[[32]byte][]*storage.Chunk, len(existing))
	for _, c := range existing {
		byHash[c.ContentHash] = append(byHash[c.ContentHash], c)
	}

	var failures []FailureRecord
	seen := make(map[[2]int]bool, len(chunks))
	for _, span := range chunks {
		key := [2]int{span.StartLine, span.EndLine}
		if seen[key] {
			continue
		}
		seen[key] = true

		if candidates := byHash[span.Hash]; len(candidates) > 0 {
			// Hash unchanged: reuse the stored chunk and its vector.
			plan.reused = append(plan.reused, reusedChunk{existing: candidates[0], span: span})
			byHash[span.Hash] = candidates[1:]
			continue
		}

		vec, err := e.embedder.Embed(ctx, span.Content)
		if err != nil {
			failures = append(failures, FailureRecord{
				FilePath:  path,
				StartLine: span.StartLine,
				EndLine:   span.EndLine,
				Reason:    err.Error(),
			})
			continue
		}
		plan.inserts = append(plan.inserts, plannedInsert{chunk: span, vector: vec})
	}

	// Stored chunks whose hash vanished from the new span set are stale.
	for _, remaining := range byHash {
		plan.deletes = append(plan.deletes, remaining...)
	}
	sort.Slice(plan.deletes, func(i, j int) bool { return plan.deletes[i].ID < plan.deletes[j].ID })

	return plan, failures
}

// applyPlan commits one file's mutations as a single transaction. New
// vectors are inserted before the transaction and tombstoned again if it
// fails, so the metadata store never references a missing vector.
func (e *Engine) applyPlan(ctx context.Context, plan *filePlan, now time.Time, report *Report) (err error) {
	expiresAt := now.Add(e.retention)

	// Insert new vectors first; roll them back on any failure below.
	newVectorIDs := make([]int64, len(plan.inserts))
	for i, ins := range plan.inserts {
		id, verr := e.vectors.Insert(ins.vector)
		if verr != nil {
			e.rollbackVectors(newVectorIDs[:i])
			return fmt.Errorf("failed to insert vector: %w", verr)
		}
		newVectorIDs[i] = id
	}
	defer func() {
		if err != nil {
			e.rollbackVectors(newVectorIDs)
		}
	}()

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Deletes first so shifted spans cannot collide with stale rows.
	for _, stale := range plan.deletes {
		if err = tx.DeleteChunk(ctx, stale.ID); err != nil {
			return err
		}
	}

	// Reused chunks keep their vector; a shifted line range is rewritten
	// as delete+insert preserving the vector handle. All moved rows are
	// deleted before any is re-inserted: when equal-sized blocks trade
	// places, each one's new range is another's old row, and interleaving
	// would collide on the location uniqueness constraint.
	var touched []int64
	var moved []reusedChunk
	for _, r := range plan.reused {
		if r.existing.StartLine == r.span.StartLine && r.existing.EndLine == r.span.EndLine {
			touched = append(touched, r.existing.ID)
			continue
		}
		if err = tx.DeleteChunk(ctx, r.existing.ID); err != nil {
			return err
		}
		moved = append(moved, r)
	}
	for _, r := range moved {
		record := &storage.Chunk{
			RepoID:      r.existing.RepoID,
			FilePath:    r.existing.FilePath,
			StartLine:   r.span.StartLine,
			EndLine:     r.span.EndLine,
			ContentHash: r.existing.ContentHash,
			VectorID:    r.existing.VectorID,
			ExpiresAt:   expiresAt,
		}
		if err = tx.InsertChunk(ctx, record); err != nil {
			return err
		}
	}

	for i, ins := range plan.inserts {
		vid := newVectorIDs[i]
		record := &storage.Chunk{
			RepoID:      plan.repoID,
			FilePath:    ins.chunk.FilePath,
			StartLine:   ins.chunk.StartLine,
			EndLine:     ins.chunk.EndLine,
			ContentHash: ins.chunk.Hash,
			VectorID:    &vid,
			ExpiresAt:   expiresAt,
		}
		if err = tx.InsertChunk(ctx, record); err != nil {
			return err
		}
	}

	if err = tx.TouchExpiry(ctx, touched, expiresAt); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	// Committed: stale vectors can now be tombstoned. A missing id here
	// means the stores already disagreed.
	for _, stale := range plan.deletes {
		if !stale.HasVector() {
			continue
		}
		if verr := e.vectors.Delete(*stale.VectorID); verr != nil {
			return fmt.Errorf("%w: chunk %d references vector %d: %v",
				types.ErrStoreCorruption, stale.ID, *stale.VectorID, verr)
		}
	}

	report.Inserted += len(plan.inserts)
	report.Reused += len(plan.reused)
	report.Deleted += len(plan.deletes)
	return nil
}

// rollbackVectors tombstones vectors inserted for a transaction that did
// not commit.
func (e *Engine) rollbackVectors(ids []int64) {
	for _, id := range ids {
		_ = e.vectors.Delete(id)
	}
}

// MaybeCompact runs vector-store compaction when the tombstone ratio
// exceeds its threshold, returning the number of vectors reclaimed.
func (e *Engine) MaybeCompact() int {
	return e.vectors.MaybeCompact()
}
