// Package chunker turns file content into hashed, line-ranged chunks.
//
// Boundaries come from an external SpanProvider when the file's language is
// supported; otherwise a fixed-size sliding window with fractional overlap
// guarantees every line of the file is covered by at least one chunk. The
// strategy is resolved once per file and reported alongside the chunks.
//
// Chunk identity is the SHA-256 of the span's exact text, which the
// indexing engine uses for change detection: an unchanged hash means the
// chunk's embedding can be reused without another provider call.
package chunker
