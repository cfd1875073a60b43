// Package markers persists the client's read markers: one "last viewed"
// timestamp per project plus a global "last checked" timestamp. Markers
// are local to a device and never synchronized with the server.
package markers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// LastCheckedKey is the global marker consulted by the notification counter.
const LastCheckedKey = "last_checked"

// ViewedKey is the per-project "last viewed" marker key.
func ViewedKey(projectID string) string { return "last_viewed:" + projectID }

type Store interface {
	// Get returns the marker and whether one was stored.
	Get(ctx context.Context, key string) (time.Time, bool, error)
	Set(ctx context.Context, key string, at time.Time) error
}

const schema = `CREATE TABLE IF NOT EXISTS markers (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// SQLiteStore keeps markers in a small SQLite file. Values are ISO-8601
// strings so the file stays readable with the sqlite3 shell.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create marker directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open markers: %w", err)
	}
	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize markers: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Get(ctx context.Context, key string) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM markers WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("marker %s: %w", key, err)
	}
	return at, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO markers (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, at.UTC().Format(time.RFC3339Nano))
	return err
}

// MemoryStore is a process-local Store, handy for tests and ephemeral sessions.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]time.Time)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.m[key]
	return at, ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, at time.Time) error {
	s.mu.Lock()
	s.m[key] = at
	s.mu.Unlock()
	return nil
}
