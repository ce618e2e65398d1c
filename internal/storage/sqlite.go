package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, store: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx    *sql.Tx
	store *SQLiteStore
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStore) querier() querier {
	return s.db
}

// Chunk operations

const chunkColumns = `id, repo_id, file_path, start_line, end_line, content_hash, vector_id, expires_at, created_at, updated_at`

// insertChunkWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) insertChunkWithQuerier(ctx context.Context, q querier, chunk *Chunk) error {
	var vectorID interface{}
	if chunk.VectorID != nil {
		vectorID = *chunk.VectorID
	}

	query := `
		INSERT INTO chunks (
			repo_id, file_path, start_line, end_line,
			content_hash, vector_id, expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id, created_at, updated_at
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		chunk.RepoID, chunk.FilePath, chunk.StartLine, chunk.EndLine,
		chunk.ContentHash[:], vectorID, chunk.ExpiresAt, now, now,
	).Scan(&chunk.ID, &chunk.CreatedAt, &chunk.UpdatedAt)

	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	return nil
}

// InsertChunk inserts a new chunk record, populating its ID
func (s *SQLiteStore) InsertChunk(ctx context.Context, chunk *Chunk) error {
	return s.insertChunkWithQuerier(ctx, s.querier(), chunk)
}

func (t *sqliteTx) InsertChunk(ctx context.Context, chunk *Chunk) error {
	return t.store.insertChunkWithQuerier(ctx, t.querier(), chunk)
}

// updateChunkWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) updateChunkWithQuerier(ctx context.Context, q querier, chunk *Chunk) error {
	var vectorID interface{}
	if chunk.VectorID != nil {
		vectorID = *chunk.VectorID
	}

	query := `
		UPDATE chunks
		SET content_hash = ?, vector_id = ?, expires_at = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		chunk.ContentHash[:], vectorID, chunk.ExpiresAt, now, chunk.ID)
	if err != nil {
		return fmt.Errorf("failed to update chunk: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	chunk.UpdatedAt = now
	return nil
}

// UpdateChunk updates an existing chunk's hash, vector handle, and expiry
func (s *SQLiteStore) UpdateChunk(ctx context.Context, chunk *Chunk) error {
	return s.updateChunkWithQuerier(ctx, s.querier(), chunk)
}

func (t *sqliteTx) UpdateChunk(ctx context.Context, chunk *Chunk) error {
	return t.store.updateChunkWithQuerier(ctx, t.querier(), chunk)
}

// scanChunk scans one chunk row
func scanChunk(scanner interface{ Scan(...interface{}) error }) (*Chunk, error) {
	var chunk Chunk
	var hash []byte
	var vectorID sql.NullInt64

	err := scanner.Scan(
		&chunk.ID, &chunk.RepoID, &chunk.FilePath,
		&chunk.StartLine, &chunk.EndLine, &hash, &vectorID,
		&chunk.ExpiresAt, &chunk.CreatedAt, &chunk.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	copy(chunk.ContentHash[:], hash)
	if vectorID.Valid {
		v := vectorID.Int64
		chunk.VectorID = &v
	}
	return &chunk, nil
}

// getChunkWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getChunkWithQuerier(ctx context.Context, q querier, chunkID int64) (*Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE id = ?`
	chunk, err := scanChunk(q.QueryRowContext(ctx, query, chunkID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return chunk, nil
}

// GetChunk retrieves a chunk by ID
func (s *SQLiteStore) GetChunk(ctx context.Context, chunkID int64) (*Chunk, error) {
	return s.getChunkWithQuerier(ctx, s.querier(), chunkID)
}

func (t *sqliteTx) GetChunk(ctx context.Context, chunkID int64) (*Chunk, error) {
	return t.store.getChunkWithQuerier(ctx, t.querier(), chunkID)
}

// deleteChunkWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) deleteChunkWithQuerier(ctx context.Context, q querier, chunkID int64) error {
	_, err := q.ExecContext(ctx, "DELETE FROM chunks WHERE id = ?", chunkID)
	if err != nil {
		return fmt.Errorf("failed to delete chunk: %w", err)
	}
	return nil
}

// DeleteChunk removes a chunk record
func (s *SQLiteStore) DeleteChunk(ctx context.Context, chunkID int64) error {
	return s.deleteChunkWithQuerier(ctx, s.querier(), chunkID)
}

func (t *sqliteTx) DeleteChunk(ctx context.Context, chunkID int64) error {
	return t.store.deleteChunkWithQuerier(ctx, t.querier(), chunkID)
}

// deleteChunksByFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) deleteChunksByFileWithQuerier(ctx context.Context, q querier, repoID, filePath string) (int, error) {
	result, err := q.ExecContext(ctx,
		"DELETE FROM chunks WHERE repo_id = ? AND file_path = ?", repoID, filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks for %s: %w", filePath, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// DeleteChunksByFile removes all chunk records for one file
func (s *SQLiteStore) DeleteChunksByFile(ctx context.Context, repoID, filePath string) (int, error) {
	return s.deleteChunksByFileWithQuerier(ctx, s.querier(), repoID, filePath)
}

func (t *sqliteTx) DeleteChunksByFile(ctx context.Context, repoID, filePath string) (int, error) {
	return t.store.deleteChunksByFileWithQuerier(ctx, t.querier(), repoID, filePath)
}

// queryChunks runs a query returning chunk rows and scans them all
func queryChunks(ctx context.Context, q querier, query string, args ...interface{}) ([]*Chunk, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []*Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// listChunksByFileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) listChunksByFileWithQuerier(ctx context.Context, q querier, repoID, filePath string) ([]*Chunk, error) {
	query := `
		SELECT ` + chunkColumns + `
		FROM chunks
		WHERE repo_id = ? AND file_path = ?
		ORDER BY start_line, end_line
	`
	return queryChunks(ctx, q, query, repoID, filePath)
}

// ListChunksByFile returns all chunks for one file ordered by line range
func (s *SQLiteStore) ListChunksByFile(ctx context.Context, repoID, filePath string) ([]*Chunk, error) {
	return s.listChunksByFileWithQuerier(ctx, s.querier(), repoID, filePath)
}

func (t *sqliteTx) ListChunksByFile(ctx context.Context, repoID, filePath string) ([]*Chunk, error) {
	return t.store.listChunksByFileWithQuerier(ctx, t.querier(), repoID, filePath)
}

// listFilePathsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) listFilePathsWithQuerier(ctx context.Context, q querier, repoID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT DISTINCT file_path FROM chunks WHERE repo_id = ? ORDER BY file_path", repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list file paths: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// ListFilePaths returns every file path with at least one live chunk
func (s *SQLiteStore) ListFilePaths(ctx context.Context, repoID string) ([]string, error) {
	return s.listFilePathsWithQuerier(ctx, s.querier(), repoID)
}

func (t *sqliteTx) ListFilePaths(ctx context.Context, repoID string) ([]string, error) {
	return t.store.listFilePathsWithQuerier(ctx, t.querier(), repoID)
}

// countChunksWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) countChunksWithQuerier(ctx context.Context, q querier, repoID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE repo_id = ?", repoID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// CountChunks returns the number of live chunks for a repository
func (s *SQLiteStore) CountChunks(ctx context.Context, repoID string) (int, error) {
	return s.countChunksWithQuerier(ctx, s.querier(), repoID)
}

func (t *sqliteTx) CountChunks(ctx context.Context, repoID string) (int, error) {
	return t.store.countChunksWithQuerier(ctx, t.querier(), repoID)
}

// overlappingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) overlappingWithQuerier(ctx context.Context, q querier, repoID, filePath string, startLine, endLine, expand int) ([]*Chunk, error) {
	lo := startLine - expand
	if lo < 1 {
		lo = 1
	}
	hi := endLine + expand

	query := `
		SELECT ` + chunkColumns + `
		FROM chunks
		WHERE repo_id = ? AND file_path = ?
		  AND start_line <= ? AND end_line >= ?
		ORDER BY start_line, end_line
	`
	return queryChunks(ctx, q, query, repoID, filePath, hi, lo)
}

// Overlapping returns chunks whose line range intersects
// [startLine-expand, endLine+expand], ordered by start line
func (s *SQLiteStore) Overlapping(ctx context.Context, repoID, filePath string, startLine, endLine, expand int) ([]*Chunk, error) {
	return s.overlappingWithQuerier(ctx, s.querier(), repoID, filePath, startLine, endLine, expand)
}

func (t *sqliteTx) Overlapping(ctx context.Context, repoID, filePath string, startLine, endLine, expand int) ([]*Chunk, error) {
	return t.store.overlappingWithQuerier(ctx, t.querier(), repoID, filePath, startLine, endLine, expand)
}

// byVectorIDsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) byVectorIDsWithQuerier(ctx context.Context, q querier, repoID string, vectorIDs []int64) ([]*Chunk, error) {
	if len(vectorIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(vectorIDs))
	placeholders = placeholders[:len(placeholders)-1]

	query := `
		SELECT ` + chunkColumns + `
		FROM chunks
		WHERE repo_id = ? AND vector_id IN (` + placeholders + `)
		ORDER BY vector_id
	`
	args := make([]interface{}, 0, len(vectorIDs)+1)
	args = append(args, repoID)
	for _, id := range vectorIDs {
		args = append(args, id)
	}
	return queryChunks(ctx, q, query, args...)
}

// ByVectorIDs resolves vector handles back to their chunk records. Handles
// with no matching row are silently absent from the result; callers decide
// whether that is tolerable (a sweep racing a search) or corruption.
func (s *SQLiteStore) ByVectorIDs(ctx context.Context, repoID string, vectorIDs []int64) ([]*Chunk, error) {
	return s.byVectorIDsWithQuerier(ctx, s.querier(), repoID, vectorIDs)
}

func (t *sqliteTx) ByVectorIDs(ctx context.Context, repoID string, vectorIDs []int64) ([]*Chunk, error) {
	return t.store.byVectorIDsWithQuerier(ctx, t.querier(), repoID, vectorIDs)
}

// expiredChunksWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) expiredChunksWithQuerier(ctx context.Context, q querier, repoID string, now time.Time) ([]*Chunk, error) {
	query := `
		SELECT ` + chunkColumns + `
		FROM chunks
		WHERE repo_id = ? AND expires_at <= ?
		ORDER BY id
	`
	return queryChunks(ctx, q, query, repoID, now)
}

// ExpiredChunks returns chunks whose expires_at has elapsed
func (s *SQLiteStore) ExpiredChunks(ctx context.Context, repoID string, now time.Time) ([]*Chunk, error) {
	return s.expiredChunksWithQuerier(ctx, s.querier(), repoID, now)
}

func (t *sqliteTx) ExpiredChunks(ctx context.Context, repoID string, now time.Time) ([]*Chunk, error) {
	return t.store.expiredChunksWithQuerier(ctx, t.querier(), repoID, now)
}

// touchExpiryWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) touchExpiryWithQuerier(ctx context.Context, q querier, chunkIDs []int64, expiresAt time.Time) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(chunkIDs))
	placeholders = placeholders[:len(placeholders)-1]

	query := `UPDATE chunks SET expires_at = ?, updated_at = ? WHERE id IN (` + placeholders + `)`
	args := make([]interface{}, 0, len(chunkIDs)+2)
	args = append(args, expiresAt, time.Now())
	for _, id := range chunkIDs {
		args = append(args, id)
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to touch expiry: %w", err)
	}
	return nil
}

// TouchExpiry stamps a new expiry on the given chunks
func (s *SQLiteStore) TouchExpiry(ctx context.Context, chunkIDs []int64, expiresAt time.Time) error {
	return s.touchExpiryWithQuerier(ctx, s.querier(), chunkIDs, expiresAt)
}

func (t *sqliteTx) TouchExpiry(ctx context.Context, chunkIDs []int64, expiresAt time.Time) error {
	return t.store.touchExpiryWithQuerier(ctx, t.querier(), chunkIDs, expiresAt)
}

// Close is a no-op on a transaction; the owning store holds the connection
func (t *sqliteTx) Close() error {
	return nil
}

// BeginTx on a transaction is invalid; SQLite does not support nesting here
func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, fmt.Errorf("nested transactions are not supported")
}
