package expiry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/dshills/diffcontext/internal/storage"
	"github.com/dshills/diffcontext/internal/vectorstore"
	"github.com/dshills/diffcontext/pkg/types"
)

// DefaultSchedule runs the sweep once an hour.
const DefaultSchedule = "@hourly"

// Collector removes chunks whose retention window has elapsed, together
// with their vectors. Rows are deleted first; vectors referenced by no
// row are harmless until compaction reclaims them.
type Collector struct {
	repoID  string
	store   storage.Store
	vectors *vectorstore.Index

	cron    *cron.Cron
	running atomic.Bool
}

func NewCollector(repoID string, store storage.Store, vectors *vectorstore.Index) *Collector {
	return &Collector{
		repoID:  repoID,
		store:   store,
		vectors: vectors,
	}
}

// Sweep deletes every chunk with an expiry at or before now and returns
// the number removed. It is safe to run while selections are being
// served: a selection that raced the sweep sees either the row and its
// vector, or neither.
func (c *Collector) Sweep(ctx context.Context, now time.Time) (int, error) {
	expired, err := c.store.ExpiredChunks(ctx, c.repoID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired chunks: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	for _, chunk := range expired {
		if err := tx.DeleteChunk(ctx, chunk.ID); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("failed to delete chunk %d: %w", chunk.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	// Rows are gone; tombstone their vectors. An id the vector store no
	// longer knows is corruption between the two stores.
	for _, chunk := range expired {
		if !chunk.HasVector() {
			continue
		}
		if err := c.vectors.Delete(*chunk.VectorID); err != nil {
			return 0, fmt.Errorf("%w: chunk %d references vector %d: %v",
				types.ErrStoreCorruption, chunk.ID, *chunk.VectorID, err)
		}
	}

	if reclaimed := c.vectors.MaybeCompact(); reclaimed > 0 {
		log.Debug().Int("reclaimed", reclaimed).Msg("compacted vector store after sweep")
	}

	log.Info().Str("repo", c.repoID).Int("expired", len(expired)).Msg("expiry sweep complete")
	return len(expired), nil
}

// Start schedules periodic sweeps with the given cron expression. An
// invocation that would overlap a still-running sweep is skipped.
func (c *Collector) Start(ctx context.Context, schedule string) error {
	if c.cron != nil {
		return fmt.Errorf("collector already started")
	}
	runner := cron.New()
	_, err := runner.AddFunc(schedule, func() {
		if !c.running.CompareAndSwap(false, true) {
			log.Info().Str("repo", c.repoID).Msg("sweep skipped: still running")
			return
		}
		defer c.running.Store(false)

		if _, err := c.Sweep(ctx, time.Now()); err != nil {
			log.Error().Str("repo", c.repoID).Err(err).Msg("scheduled sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	c.cron = runner
	c.cron.Start()
	log.Info().Str("repo", c.repoID).Str("schedule", schedule).Msg("expiry sweeps scheduled")
	return nil
}

// Stop cancels scheduled sweeps and waits for an in-flight run to finish.
func (c *Collector) Stop() {
	if c.cron == nil {
		return
	}
	<-c.cron.Stop().Done()
	c.cron = nil
}
