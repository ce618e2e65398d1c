package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/dshills/diffcontext/internal/config"
	"github.com/dshills/diffcontext/internal/embedder"
	"github.com/dshills/diffcontext/internal/storage"
	"github.com/dshills/diffcontext/internal/vectorstore"
)

// app holds the opened store pair plus the embedder stack, shared by
// every subcommand.
type app struct {
	cfg     config.Config
	store   *storage.SQLiteStore
	vectors *vectorstore.Index
	embed   embedder.Embedder
}

// openApp opens (creating if needed) the data directory, the SQLite
// store, and the vector index. requireEmbedder makes a missing embedding
// endpoint an error instead of degraded behavior.
func openApp(cfg config.Config, requireEmbedder bool) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewSQLiteStore(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	vectors, err := vectorstore.Load(cfg.VectorIndexPath(), vectorstore.Options{
		Partitions:          cfg.Partitions,
		Probes:              cfg.Probes,
		CompactionThreshold: cfg.CompactionThreshold,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &app{cfg: cfg, store: store, vectors: vectors}
	if cfg.EmbedBaseURL != "" {
		a.embed = buildEmbedder(cfg)
	} else if requireEmbedder {
		_ = store.Close()
		return nil, fmt.Errorf("no embedding endpoint configured (set DIFFCONTEXT_EMBED_BASE_URL)")
	}
	return a, nil
}

// buildEmbedder assembles the provider stack: timeout inside retry
// inside the cache, so retries see transient timeouts and the cache
// stores only settled results.
func buildEmbedder(cfg config.Config) embedder.Embedder {
	provider := embedder.NewHTTPProvider(cfg.EmbedBaseURL, cfg.EmbedAPIKey, cfg.EmbedModel, cfg.EmbedDim)

	policy := embedder.DefaultRetryPolicy()
	if cfg.EmbedRetries > 0 {
		policy.MaxAttempts = cfg.EmbedRetries
	}

	var emb embedder.Embedder = embedder.NewTimeout(provider, cfg.EmbedTimeout)
	emb = embedder.NewRetrying(emb, policy)
	return embedder.NewCached(emb, cfg.EmbedCache)
}

// close persists the vector index and releases the store. Call it on
// every exit path once openApp has succeeded.
func (a *app) close() {
	if err := a.vectors.Save(a.cfg.VectorIndexPath()); err != nil {
		log.Error().Err(err).Msg("failed to persist vector index")
	}
	if err := a.store.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close store")
	}
}
