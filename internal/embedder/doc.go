// Package embedder defines the embedding-model collaborator contract and
// the decorators composed around it: bounded exponential-backoff retry for
// transient failures, a per-call timeout, and an LRU cache keyed by content
// hash. An OpenAI-compatible HTTP provider is included; any Embedder
// implementation can be substituted.
package embedder
