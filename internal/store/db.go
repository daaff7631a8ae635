package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Store wraps the relational fact store (PostgreSQL with pgvector).
//
// All query deadlines are enforced application-side via contexts. The
// database is reached through a transaction-mode pooler that resets session
// state between transactions, so server-side statement_timeout settings do
// not survive and must not be relied on.
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Options configures the connection pool.
type Options struct {
	MaxOpenConns int
	MaxIdleConns int
	QueryTimeout time.Duration
}

// Open connects to the database and verifies connectivity.
func Open(dsn string, opts Options) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	timeout := opts.QueryTimeout
	if timeout <= 0 {
		timeout = 50 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, queryTimeout: timeout}, nil
}

// NewWithDB wraps an existing database handle. Intended for tests.
func NewWithDB(db *sql.DB, queryTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = 50 * time.Second
	}
	return &Store{db: db, queryTimeout: queryTimeout}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// withDeadline caps ctx with the store's query timeout.
func (s *Store) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}
