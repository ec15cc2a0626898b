// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// defaultPoolSize is the connection count when Config.PoolSize is
// unset. Writers serialize in SQLite, so the extra connections serve
// readers.
const defaultPoolSize = 4

// connectionPragmas run on every connection before the schema.
var connectionPragmas = [...]string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
	"PRAGMA temp_store=MEMORY",
}

// Config describes a pool. Path is required.
type Config struct {
	// Path is the database file. Its directory must exist.
	Path string

	// PoolSize defaults to 4.
	PoolSize int

	// Schema holds idempotent statements (CREATE ... IF NOT EXISTS)
	// applied to every new connection.
	Schema string

	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Pool hands out prepared connections. Safe for concurrent use.
type Pool struct {
	connections *sqlitex.Pool
	path        string
	logger      *slog.Logger
}

// Open creates the pool. Connections are prepared on first use.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlitepool: Path is required")
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = defaultPoolSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	connections, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: size,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepare(conn, cfg.Schema)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}
	logger.Debug("sqlite pool opened", "path", cfg.Path, "connections", size)
	return &Pool{connections: connections, path: cfg.Path, logger: logger}, nil
}

func prepare(conn *sqlite.Conn, schema string) error {
	for _, pragma := range connectionPragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}
	if schema != "" {
		if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
			return fmt.Errorf("sqlitepool: schema: %w", err)
		}
	}
	return nil
}

// borrow takes a connection, waiting for one to free up until ctx
// ends. The returned func gives it back.
func (p *Pool) borrow(ctx context.Context) (*sqlite.Conn, func(), error) {
	conn, err := p.connections.Take(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlitepool: waiting for a connection: %w", err)
	}
	return conn, func() { p.connections.Put(conn) }, nil
}

// Read runs fn on a connection outside any transaction.
func (p *Pool) Read(ctx context.Context, fn func(*sqlite.Conn) error) error {
	conn, release, err := p.borrow(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(conn)
}

// Write runs fn in an IMMEDIATE transaction. The transaction commits
// when fn returns nil and rolls back otherwise, so a read-merge-write
// inside fn sees no interleaved writer.
func (p *Pool) Write(ctx context.Context, fn func(*sqlite.Conn) error) (err error) {
	conn, release, err := p.borrow(ctx)
	if err != nil {
		return err
	}
	defer release()

	finish, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlitepool: begin: %w", err)
	}
	defer finish(&err)
	return fn(conn)
}

// Close waits for borrowed connections to come back, then closes them.
func (p *Pool) Close() error {
	if err := p.connections.Close(); err != nil {
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Debug("sqlite pool closed", "path", p.path)
	return nil
}
