// Package vectorstore is an in-process approximate-nearest-neighbor index
// over cosine similarity, persisted as a flat binary file beside the
// metadata database.
//
// Handles are dense int64 ids assigned monotonically at insert and never
// reused; the metadata store maps them back to chunk identity. Deletion is
// logical (tombstoned) until Compact rebuilds the partition structure from
// live vectors, triggered by MaybeCompact once the tombstone ratio passes
// a threshold. Search effort is tunable via the probe count: more probed
// partitions means more candidates examined and monotonically better
// recall, up to exhaustive at probes == partitions.
package vectorstore
