package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store is the embedded SQLite backend. It serves single-node deployments
// and tests, and implements the same repository ports as the postgres
// package.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - immediate transactions, so check-then-write sequences take the write
//     lock up front
//   - a 5-second busy timeout
//   - foreign key enforcement
type Store struct {
	db *sql.DB

	clockMu sync.Mutex
	last    int64
	now     func() time.Time
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Matches() *MatchRepo    { return &MatchRepo{store: s} }
func (s *Store) Chats() *ChatRepo       { return &ChatRepo{store: s} }
func (s *Store) Messages() *MessageRepo { return &MessageRepo{store: s} }

// timestamp returns the store clock in unix nanoseconds. It never repeats
// or goes backwards, so insertion order and timestamp order agree.
func (s *Store) timestamp() int64 {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	ts := s.now().UnixNano()
	if ts <= s.last {
		ts = s.last + 1
	}
	s.last = ts
	return ts
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
