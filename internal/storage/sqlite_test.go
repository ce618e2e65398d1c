package storage

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStore {
	// Use in-memory database for testing
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testChunk(repoID, filePath string, start, end int, content string) *Chunk {
	return &Chunk{
		RepoID:      repoID,
		FilePath:    filePath,
		StartLine:   start,
		EndLine:     end,
		ContentHash: sha256.Sum256([]byte(content)),
		ExpiresAt:   time.Now().Add(24 * time.Hour),
	}
}

func TestInsertChunk(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	chunk := testChunk("repo1", "main.go", 1, 20, "package main")
	err := store.InsertChunk(ctx, chunk)
	require.NoError(t, err)
	assert.Greater(t, chunk.ID, int64(0))
	assert.False(t, chunk.CreatedAt.IsZero())

	// Duplicate location must fail
	dup := testChunk("repo1", "main.go", 1, 20, "other")
	err = store.InsertChunk(ctx, dup)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Same location in another repo is fine
	other := testChunk("repo2", "main.go", 1, 20, "package main")
	err = store.InsertChunk(ctx, other)
	assert.NoError(t, err)
}

func TestGetChunk(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	chunk := testChunk("repo1", "a.go", 5, 30, "func a() {}")
	vid := int64(7)
	chunk.VectorID = &vid
	require.NoError(t, store.InsertChunk(ctx, chunk))

	got, err := store.GetChunk(ctx, chunk.ID)
	require.NoError(t, err)
	assert.Equal(t, chunk.RepoID, got.RepoID)
	assert.Equal(t, chunk.FilePath, got.FilePath)
	assert.Equal(t, chunk.StartLine, got.StartLine)
	assert.Equal(t, chunk.EndLine, got.EndLine)
	assert.Equal(t, chunk.ContentHash, got.ContentHash)
	require.NotNil(t, got.VectorID)
	assert.Equal(t, int64(7), *got.VectorID)

	_, err = store.GetChunk(ctx, 99999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateChunk(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	chunk := testChunk("repo1", "a.go", 1, 10, "v1")
	require.NoError(t, store.InsertChunk(ctx, chunk))

	vid := int64(42)
	chunk.ContentHash = sha256.Sum256([]byte("v2"))
	chunk.VectorID = &vid
	chunk.ExpiresAt = time.Now().Add(48 * time.Hour)
	require.NoError(t, store.UpdateChunk(ctx, chunk))

	got, err := store.GetChunk(ctx, chunk.ID)
	require.NoError(t, err)
	assert.Equal(t, sha256.Sum256([]byte("v2")), got.ContentHash)
	require.NotNil(t, got.VectorID)
	assert.Equal(t, int64(42), *got.VectorID)

	missing := testChunk("repo1", "b.go", 1, 5, "x")
	missing.ID = 12345
	assert.ErrorIs(t, store.UpdateChunk(ctx, missing), ErrNotFound)
}

func TestDeleteChunksByFile(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.InsertChunk(ctx, testChunk("repo1", "a.go", 1, 10, "a1")))
	require.NoError(t, store.InsertChunk(ctx, testChunk("repo1", "a.go", 11, 20, "a2")))
	require.NoError(t, store.InsertChunk(ctx, testChunk("repo1", "b.go", 1, 10, "b1")))

	n, err := store.DeleteChunksByFile(ctx, "repo1", "a.go")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	remaining, err := store.ListChunksByFile(ctx, "repo1", "a.go")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	count, err := store.CountChunks(ctx, "repo1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListFilePaths(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.InsertChunk(ctx, testChunk("repo1", "z.go", 1, 10, "z")))
	require.NoError(t, store.InsertChunk(ctx, testChunk("repo1", "a.go", 1, 10, "a")))
	require.NoError(t, store.InsertChunk(ctx, testChunk("repo1", "a.go", 11, 20, "a2")))
	require.NoError(t, store.InsertChunk(ctx, testChunk("repo2", "m.go", 1, 10, "m")))

	paths, err := store.ListFilePaths(ctx, "repo1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "z.go"}, paths)
}

func TestOverlapping(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	// Three chunks: 1-10, 11-30, 31-100
	require.NoError(t, store.InsertChunk(ctx, testChunk("repo1", "f.go", 1, 10, "c1")))
	require.NoError(t, store.InsertChunk(ctx, testChunk("repo1", "f.go", 11, 30, "c2")))
	require.NoError(t, store.InsertChunk(ctx, testChunk("repo1", "f.go", 31, 100, "c3")))

	// Exact overlap with 10-12 hits the first two
	chunks, err := store.Overlapping(ctx, "repo1", "f.go", 10, 12, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 11, chunks[1].StartLine)

	// Expanded by 20 the range 10-12 becomes 1-32 and hits all three
	chunks, err = store.Overlapping(ctx, "repo1", "f.go", 10, 12, 20)
	require.NoError(t, err)
	assert.Len(t, chunks, 3)

	// No hits outside any range
	chunks, err = store.Overlapping(ctx, "repo1", "f.go", 200, 210, 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	// Expansion clips at line 1 rather than going negative
	chunks, err = store.Overlapping(ctx, "repo1", "f.go", 1, 2, 50)
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}

func TestByVectorIDs(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	ids := make([]int64, 3)
	for i, vid := range []int64{10, 20, 30} {
		chunk := testChunk("repo1", "f.go", i*10+1, i*10+10, string(rune('a'+i)))
		v := vid
		chunk.VectorID = &v
		require.NoError(t, store.InsertChunk(ctx, chunk))
		ids[i] = vid
	}

	chunks, err := store.ByVectorIDs(ctx, "repo1", []int64{30, 10})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	// Ordered by vector id
	assert.Equal(t, int64(10), *chunks[0].VectorID)
	assert.Equal(t, int64(30), *chunks[1].VectorID)

	// Unknown ids are simply absent
	chunks, err = store.ByVectorIDs(ctx, "repo1", []int64{10, 999})
	require.NoError(t, err)
	assert.Len(t, chunks, 1)

	chunks, err = store.ByVectorIDs(ctx, "repo1", nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestExpiredChunksAndTouchExpiry(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	stale := testChunk("repo1", "old.go", 1, 10, "old")
	stale.ExpiresAt = now.Add(-time.Hour)
	require.NoError(t, store.InsertChunk(ctx, stale))

	fresh := testChunk("repo1", "new.go", 1, 10, "new")
	fresh.ExpiresAt = now.Add(time.Hour)
	require.NoError(t, store.InsertChunk(ctx, fresh))

	expired, err := store.ExpiredChunks(ctx, "repo1", now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "old.go", expired[0].FilePath)

	// Touching the stale chunk rescues it
	require.NoError(t, store.TouchExpiry(ctx, []int64{stale.ID}, now.Add(time.Hour)))
	expired, err = store.ExpiredChunks(ctx, "repo1", now)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestTransactionCommitAndRollback(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	// Committed insert is visible
	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertChunk(ctx, testChunk("repo1", "a.go", 1, 10, "a")))
	require.NoError(t, tx.Commit())

	count, err := store.CountChunks(ctx, "repo1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Rolled-back insert is not
	tx, err = store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertChunk(ctx, testChunk("repo1", "b.go", 1, 10, "b")))
	require.NoError(t, tx.Rollback())

	count, err = store.CountChunks(ctx, "repo1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSchemaVersion(t *testing.T) {
	store := setupTestDB(t)

	v, err := SchemaVersion(context.Background(), store.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)
}
