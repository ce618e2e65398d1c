// Package storage persists the relational half of the index: one row per
// live chunk, keyed by (repo_id, file_path, start_line, end_line), carrying
// the content hash used for change detection, the handle into the vector
// store, and the expiry timestamp consulted by the collector.
//
// All writes go through SQLite transactions; the Tx interface embeds Store
// so the indexing engine can run a whole file's mutations atomically. The
// two retrieval query shapes, Overlapping and ByVectorIDs, back the
// proximity and semantic tiers of context selection.
//
// Two drivers are supported behind build tags: modernc.org/sqlite (pure Go,
// the default) and mattn/go-sqlite3 (cgo, tag cgo_sqlite).
package storage
