package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate record
	ErrAlreadyExists = errors.New("already exists")
)

// Store defines the interface for the relational side of the index: chunk
// records and the queries the retrieval tiers need.
type Store interface {
	// Chunk CRUD
	InsertChunk(ctx context.Context, chunk *Chunk) error
	UpdateChunk(ctx context.Context, chunk *Chunk) error
	GetChunk(ctx context.Context, chunkID int64) (*Chunk, error)
	DeleteChunk(ctx context.Context, chunkID int64) error
	DeleteChunksByFile(ctx context.Context, repoID, filePath string) (deletedCount int, err error)

	// File-scoped queries used by reconcile
	ListChunksByFile(ctx context.Context, repoID, filePath string) ([]*Chunk, error)
	ListFilePaths(ctx context.Context, repoID string) ([]string, error)
	CountChunks(ctx context.Context, repoID string) (int, error)

	// Retrieval queries
	Overlapping(ctx context.Context, repoID, filePath string, startLine, endLine, expand int) ([]*Chunk, error)
	ByVectorIDs(ctx context.Context, repoID string, vectorIDs []int64) ([]*Chunk, error)

	// Expiry
	ExpiredChunks(ctx context.Context, repoID string, now time.Time) ([]*Chunk, error)
	TouchExpiry(ctx context.Context, chunkIDs []int64, expiresAt time.Time) error

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Store // Embed Store interface for transaction operations
}

// Chunk is the relational record of one indexed span of source text.
// VectorID is nil until the span's embedding has been computed and stored.
type Chunk struct {
	ID          int64
	RepoID      string
	FilePath    string // Relative to repository root
	StartLine   int    // 1-based inclusive
	EndLine     int    // 1-based inclusive
	ContentHash [32]byte
	VectorID    *int64 // Nullable - handle into the vector store
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasVector reports whether the chunk's embedding has been stored.
func (c *Chunk) HasVector() bool {
	return c.VectorID != nil
}
