// Package types contains the shared data types exchanged between the
// indexing engine, the context selector, and their callers: diff hunks,
// retrieval tiers, context bundles, and the error taxonomy used to
// classify per-file and per-chunk failures.
package types
