package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Fixed-width so that timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultPath is $XDG_DATA_HOME/swiftlingo/history.db.
func DefaultPath() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "swiftlingo", "history.db")
}

// SQLiteStore persists history in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// OpenSQLite creates (or opens) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	db.SetMaxOpenConns(1)
	store := &SQLiteStore{db: db, path: path}
	if err := store.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS translations (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		source_text TEXT NOT NULL,
		source_lang TEXT,
		target_text TEXT,
		target_lang TEXT NOT NULL,
		provider TEXT,
		latency_ms INTEGER,
		failure TEXT
	)`); err != nil {
		return err
	}
	_, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS translations_timestamp ON translations(timestamp)`)
	return err
}

// Save inserts a new record.
func (s *SQLiteStore) Save(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO translations
		(id, timestamp, source_text, source_lang, target_text, target_lang, provider, latency_ms, failure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(),
		e.At.UTC().Format(timeLayout),
		e.SourceText,
		e.SourceLanguage,
		e.TargetText,
		e.TargetLanguage,
		e.Provider,
		e.LatencyMS,
		e.Failure,
	)
	return err
}

// Recent returns up to limit entries, newest first. limit<=0 returns all.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, timestamp, source_text, source_lang, target_text, target_lang, provider, latency_ms, failure
		FROM translations ORDER BY timestamp DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			id, ts string
		)
		if err := rows.Scan(&id, &ts, &e.SourceText, &e.SourceLanguage, &e.TargetText,
			&e.TargetLanguage, &e.Provider, &e.LatencyMS, &e.Failure); err != nil {
			return nil, err
		}
		if parsed, err := uuid.Parse(id); err == nil {
			e.ID = parsed
		}
		if t, err := time.Parse(timeLayout, ts); err == nil {
			e.At = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Path returns the sqlite database path.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ Store = (*SQLiteStore)(nil)
