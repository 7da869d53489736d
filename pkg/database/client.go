// Package database provides the SQLite client and migration utilities
// backing the operational store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register the pure-Go sqlite driver
)

// Config holds database configuration
type Config struct {
	// Path is the sqlite file location. Parent directories are created
	// on open.
	Path string

	// Connection pool settings. SQLite allows a single writer, so the
	// defaults serialize all access through one connection.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns the standard configuration for a database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// DSN renders the sqlite connection string with the pragmas every
// database file runs with. WAL keeps readers unblocked during writes and
// busy_timeout waits out short write contention instead of failing.
func (c Config) DSN() string {
	return c.Path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(ON)"
}

// Client wraps the sql.DB handle for an on-disk sqlite database
type Client struct {
	db   *sql.DB
	path string
}

// DB returns the underlying database connection for health checks and direct queries
func (c *Client) DB() *sql.DB {
	return c.db
}

// Path returns the sqlite file location
func (c *Client) Path() string {
	return c.path
}

// Close closes the underlying database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// NewClient opens (creating if needed) the sqlite database at cfg.Path and
// applies all pending migrations
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{
		db:   db,
		path: cfg.Path,
	}, nil
}
