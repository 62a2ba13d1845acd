package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteMetadataStore persists chunk metadata and runtime state in SQLite.
// WAL mode allows concurrent readers while a rebuild writes.
type SQLiteMetadataStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time.
var _ MetadataStore = (*SQLiteMetadataStore)(nil)

// NewSQLiteMetadataStore opens (or creates) a metadata store.
// If path is empty, an in-memory store is created for testing.
func NewSQLiteMetadataStore(path string) (*SQLiteMetadataStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteMetadataStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteMetadataStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id            TEXT PRIMARY KEY,
		content       TEXT NOT NULL,
		title         TEXT NOT NULL DEFAULT '',
		level         TEXT NOT NULL DEFAULT 'beginner',
		category      TEXT NOT NULL DEFAULT '',
		source_domain TEXT NOT NULL DEFAULT '',
		url           TEXT NOT NULL DEFAULT '',
		topics        TEXT NOT NULL DEFAULT '[]',
		tags          TEXT NOT NULL DEFAULT '[]',
		created_at    TIMESTAMP NOT NULL,
		updated_at    TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_level ON chunks(level);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveChunks upserts chunks in a single transaction.
func (s *SQLiteMetadataStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, content, title, level, category, source_domain, url, topics, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			title = excluded.title,
			level = excluded.level,
			category = excluded.category,
			source_domain = excluded.source_domain,
			url = excluded.url,
			topics = excluded.topics,
			tags = excluded.tags,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range chunks {
		created := c.CreatedAt
		if created.IsZero() {
			created = now
		}
		topics, err := json.Marshal(c.Metadata.Topics)
		if err != nil {
			return fmt.Errorf("failed to marshal topics for %s: %w", c.ID, err)
		}
		tags, err := json.Marshal(c.Tags)
		if err != nil {
			return fmt.Errorf("failed to marshal tags for %s: %w", c.ID, err)
		}

		if _, err := stmt.ExecContext(ctx,
			c.ID, c.Content, c.Metadata.Title, string(c.Metadata.Level),
			c.Metadata.Category, c.Metadata.SourceDomain, c.Metadata.URL,
			string(topics), string(tags), created, now,
		); err != nil {
			return fmt.Errorf("failed to save chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// GetChunk returns a single chunk by ID, or nil if not found.
func (s *SQLiteMetadataStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	chunks, err := s.GetChunks(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	return chunks[0], nil
}

// GetChunks batch-fetches chunks by ID in a single query.
// Missing IDs are silently skipped; order follows the input IDs.
func (s *SQLiteMetadataStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return []*Chunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, title, level, category, source_domain, url, topics, tags, created_at, updated_at
		 FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Chunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	result := make([]*Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

// ListChunks returns every chunk ordered by ID. Used for index rebuilds.
func (s *SQLiteMetadataStore) ListChunks(ctx context.Context) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, title, level, category, source_domain, url, topics, tags, created_at, updated_at
		 FROM chunks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var result []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}
	return result, nil
}

// DeleteChunks removes chunks by ID.
func (s *SQLiteMetadataStore) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// GetState returns a runtime state value, or empty string if unset.
func (s *SQLiteMetadataStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", fmt.Errorf("store is closed")
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return value, nil
}

// SetState stores a runtime state value.
func (s *SQLiteMetadataStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	var level, topics, tags string
	if err := row.Scan(&c.ID, &c.Content, &c.Metadata.Title, &level,
		&c.Metadata.Category, &c.Metadata.SourceDomain, &c.Metadata.URL,
		&topics, &tags, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan chunk: %w", err)
	}
	c.Metadata.Level = ParseLevel(level)
	if err := json.Unmarshal([]byte(topics), &c.Metadata.Topics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal topics for %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags for %s: %w", c.ID, err)
	}
	return &c, nil
}
