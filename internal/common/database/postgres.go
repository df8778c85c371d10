// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nlq-resolver/internal/common/config"

	_ "github.com/lib/pq"
)

// ErrWritableSession means read_only was configured but the server still
// opened a session that accepts writes.
var ErrWritableSession = errors.New("postgres session is not read-only")

// PostgresClient wraps the SQL database connection the resolver executes
// generated statements against.
type PostgresClient struct {
	DB       *sql.DB
	readOnly bool
}

// NewPostgres opens a connection pool. sql.Open does not dial, so call
// Ping to check the server.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return nil, fmt.Errorf("postgres host and database are required")
	}

	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	lifetime := config.GetDuration(cfg.ConnMaxLifetime)
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(lifetime)
	db.SetConnMaxIdleTime(lifetime)

	return &PostgresClient{DB: db, readOnly: cfg.ReadOnly}, nil
}

// Ping tests the database connection
func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// CheckReadOnly asks the server whether sessions reject writes. It does
// nothing unless the pool was opened with read_only.
func (c *PostgresClient) CheckReadOnly(ctx context.Context) error {
	if !c.readOnly {
		return nil
	}
	var setting string
	if err := c.DB.QueryRowContext(ctx, "SHOW transaction_read_only").Scan(&setting); err != nil {
		return fmt.Errorf("read transaction_read_only: %w", err)
	}
	if setting != "on" {
		return ErrWritableSession
	}
	return nil
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// Executor returns the statement runner backed by this pool, buffering at
// most maxRows rows per statement.
func (c *PostgresClient) Executor(maxRows int) *SQLExecutor {
	return NewSQLExecutor(c.DB, WithRowCap(maxRows))
}
