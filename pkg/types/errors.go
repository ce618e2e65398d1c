package types

import "errors"

// Failure taxonomy. Per-file and per-chunk failures are isolated and
// aggregated into a report rather than aborting a reconcile run; only
// ErrStoreCorruption is fatal to the whole operation.
var (
	// ErrChunkingFailure marks a file that could not be chunked
	// (unreadable, binary, or rejected by the span provider).
	ErrChunkingFailure = errors.New("chunking failure")

	// ErrEmbeddingUnavailable marks a transient embedding-provider
	// failure. Callers retry a bounded number of times, then skip the
	// chunk and record it in the run report.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrStoreCorruption marks a structural disagreement between the
	// metadata store and the vector store, such as a chunk whose
	// vector id resolves to nothing. The affected repository's index
	// requires a full rebuild.
	ErrStoreCorruption = errors.New("store corruption")
)
