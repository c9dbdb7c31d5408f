package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidSlug   = errors.New("invalid slug: use only lowercase letters, numbers, and hyphens")
	ErrBoardExists   = errors.New("a board with this name already exists")
	ErrInvalidPIN    = errors.New("PIN must be 4-6 digits")
	ErrPINRequired   = errors.New("PIN required")
	ErrPINMismatch   = errors.New("incorrect PIN")
	ErrInvalidJob    = errors.New("invalid job data")
	ErrTooManyJobs   = errors.New("too many jobs in one request")
	ErrInvalidStatus = errors.New("status must be one of: Saved, Applied, Interview, Offer, Rejected")
	ErrInvalidColumn = errors.New("invalid column")
	ErrColumnExists  = errors.New("a column with that name already exists")
)

type DB struct {
	Pool *sql.DB
}

// Open opens (creating if needed) the sqlite file at path and applies the schema.
func Open(path string) (*DB, error) {
	// modernc sqlite uses DSN like: file:foo.db?_pragma=busy_timeout(5000)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)

	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	pool.SetMaxOpenConns(1) // one writer
	pool.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	if err := Migrate(pool); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &DB{Pool: pool}, nil
}

func (d *DB) Close() error {
	if d == nil || d.Pool == nil {
		return nil
	}
	return d.Pool.Close()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
