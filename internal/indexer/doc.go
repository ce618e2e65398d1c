// Package indexer reconciles a repository snapshot against the metadata
// and vector stores.
//
// Reconcile runs in two phases. The planning phase chunks and embeds every
// snapshot file concurrently, diffing content hashes against stored state
// to decide which spans are new, reusable, or stale; no writes happen
// here, and embedding failures are retried by the embedder's own policy
// and then recorded as per-chunk failures. The apply phase then commits
// one SQLite transaction per file, so a failure on one file never
// corrupts another's chunks.
//
// Vector-store writes bracket the transaction: new vectors go in before
// commit and are tombstoned again if the commit fails; stale vectors are
// tombstoned only after commit. Either way the metadata store never holds
// a vector_id the vector store cannot resolve — the opposite residue, an
// unreferenced vector, is reclaimed by compaction.
//
// A CAS lock serializes reconcile runs per repository. Read-only context
// selection may proceed concurrently.
package indexer
