// Package history persists past conversation turns in SQLite and serves
// them as an optional retrieval source. History is off by default; when
// enabled, stored content is anonymized before it is written.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/kotoba-ai/kotoba/internal/search"
	"github.com/kotoba-ai/kotoba/internal/store"
)

// DefaultRetention is how long turns are kept before Prune removes them.
const DefaultRetention = 90 * 24 * time.Hour

// Config holds history store configuration.
type Config struct {
	// Enabled gates the whole source. A disabled store accepts no writes
	// and is never searched.
	Enabled bool

	// Anonymize strips emails and long digit runs from content before it
	// is stored.
	Anonymize bool

	// Retention is how long turns are kept. Zero means the default.
	Retention time.Duration
}

// Turn is one recorded conversation exchange.
type Turn struct {
	ID        int64
	Session   string
	Role      string
	Content   string
	Level     store.Level
	CreatedAt time.Time
}

// Store persists conversation turns in SQLite.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	config Config
	logger *slog.Logger
	closed bool
}

// Verify interface implementation at compile time.
var _ search.HistorySearcher = (*Store)(nil)

// NewStore opens (or creates) a history store. If path is empty, an
// in-memory store is created for testing.
func NewStore(path string, cfg Config) (*Store, error) {
	if cfg.Retention == 0 {
		cfg.Retention = DefaultRetention
	}

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

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{
		db:     db,
		config: cfg,
		logger: slog.Default().With(slog.String("component", "history")),
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session    TEXT NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		level      TEXT NOT NULL DEFAULT 'beginner',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Enabled reports whether the history source participates in retrieval.
func (s *Store) Enabled() bool {
	return s.config.Enabled
}

// Append records one conversation turn. A disabled store drops the turn
// silently so callers need not branch on configuration.
func (s *Store) Append(ctx context.Context, turn Turn) error {
	if !s.config.Enabled {
		return nil
	}
	if strings.TrimSpace(turn.Content) == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	content := turn.Content
	if s.config.Anonymize {
		content = anonymize(content)
	}
	level := turn.Level
	if !level.Valid() {
		level = store.LevelBeginner
	}
	created := turn.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (session, role, content, level, created_at) VALUES (?, ?, ?, ?, ?)`,
		turn.Session, turn.Role, content, string(level), created)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// Search returns past turns matching the query, best match first. Ranking
// favors turns matching more query terms, then more recent ones.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]search.ExternalDoc, error) {
	if !s.config.Enabled || limit <= 0 {
		return []search.ExternalDoc{}, nil
	}

	terms := store.Tokenize(query)
	if len(terms) == 0 {
		return []search.ExternalDoc{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	conds := make([]string, len(terms))
	args := make([]any, len(terms))
	for i, t := range terms {
		conds[i] = "content LIKE ?"
		args[i] = "%" + t + "%"
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session, role, content, level, created_at
		 FROM turns WHERE `+strings.Join(conds, " OR ")+`
		 ORDER BY created_at DESC LIMIT 200`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search history: %w", err)
	}
	defer rows.Close()

	type scored struct {
		turn    Turn
		matches int
	}
	var hits []scored
	for rows.Next() {
		var t Turn
		var level string
		if err := rows.Scan(&t.ID, &t.Session, &t.Role, &t.Content, &level, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Level = store.ParseLevel(level)

		lower := strings.ToLower(t.Content)
		matches := 0
		for _, term := range terms {
			if strings.Contains(lower, term) {
				matches++
			}
		}
		hits = append(hits, scored{turn: t, matches: matches})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].matches != hits[j].matches {
			return hits[i].matches > hits[j].matches
		}
		return hits[i].turn.CreatedAt.After(hits[j].turn.CreatedAt)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	docs := make([]search.ExternalDoc, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, search.ExternalDoc{
			ID:      fmt.Sprintf("turn-%d", h.turn.ID),
			Title:   fmt.Sprintf("Past conversation (%s)", h.turn.CreatedAt.Format("2006-01-02")),
			Content: h.turn.Content,
			Level:   h.turn.Level,
		})
	}
	return docs, nil
}

// Prune deletes turns older than the retention window.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	cutoff := time.Now().UTC().Add(-s.config.Retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("pruned history",
			slog.Int64("turns", n),
			slog.Time("cutoff", cutoff))
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	digitRe = regexp.MustCompile(`\d{6,}`)
)

// anonymize removes emails and long digit runs from content. Lesson text
// stays intact; only direct identifiers are scrubbed.
func anonymize(content string) string {
	content = emailRe.ReplaceAllString(content, "[redacted]")
	content = digitRe.ReplaceAllString(content, "[redacted]")
	return content
}
