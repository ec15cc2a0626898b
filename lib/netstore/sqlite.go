// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netstore

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/selfstore/lib/address"
	"github.com/bureau-foundation/selfstore/lib/codec"
	"github.com/bureau-foundation/selfstore/lib/payment"
	"github.com/bureau-foundation/selfstore/lib/register"
	"github.com/bureau-foundation/selfstore/lib/sqlitepool"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	address BLOB PRIMARY KEY,
	content BLOB NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS register_entries (
	register BLOB NOT NULL,
	hash     BLOB NOT NULL,
	entry    BLOB NOT NULL,
	PRIMARY KEY (register, hash)
) WITHOUT ROWID;
`

// SQLite is a Store backed by a single SQLite database file.
type SQLite struct {
	pool    *sqlitepool.Pool
	options Options
	logger  *slog.Logger
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, options Options) (*SQLite, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Schema: sqliteSchema,
		Logger: options.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening chunk database: %w", err)
	}
	return &SQLite{pool: pool, options: options, logger: options.logger()}, nil
}

// Put implements ChunkStore.
func (s *SQLite) Put(ctx context.Context, addr address.Address, content []byte, proof *payment.Proof) error {
	if err := verifyContent(addr, content); err != nil {
		return err
	}
	return s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		present, err := hasChunk(conn, addr)
		if err != nil || present {
			return err
		}
		if err := s.options.verifyPayment(addr, proof); err != nil {
			return err
		}
		err = sqlitex.Execute(conn, `INSERT INTO chunks (address, content) VALUES (?, ?)`,
			&sqlitex.ExecOptions{Args: []any{addr[:], content}})
		if err != nil {
			return fmt.Errorf("storing chunk %s: %w", addr.Short(), err)
		}
		s.logger.Debug("chunk stored", "address", addr.Short(), "size", len(content))
		return nil
	})
}

// Get implements ChunkStore.
func (s *SQLite) Get(ctx context.Context, addr address.Address) ([]byte, error) {
	var content []byte
	found := false
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT content FROM chunks WHERE address = ?`, &sqlitex.ExecOptions{
			Args: []any{addr[:]},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				content = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, content)
				found = true
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading chunk %s: %w", addr.Short(), err)
	}
	if !found {
		return nil, notFound(addr)
	}
	return content, nil
}

// Has implements ChunkStore.
func (s *SQLite) Has(ctx context.Context, addr address.Address) (bool, error) {
	var present bool
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		var err error
		present, err = hasChunk(conn, addr)
		return err
	})
	return present, err
}

func hasChunk(conn *sqlite.Conn, addr address.Address) (bool, error) {
	present := false
	err := sqlitex.Execute(conn, `SELECT 1 FROM chunks WHERE address = ?`, &sqlitex.ExecOptions{
		Args: []any{addr[:]},
		ResultFunc: func(*sqlite.Stmt) error {
			present = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("looking up chunk %s: %w", addr.Short(), err)
	}
	return present, nil
}

// PutRegister implements RegisterStore. The merge and the inserts of
// new entries share one transaction.
func (s *SQLite) PutRegister(ctx context.Context, key address.Address, delta *register.View) (*register.View, error) {
	var merged *register.View
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		stored, err := loadRegister(conn, key)
		if err != nil {
			return err
		}
		reg, fresh, err := mergeView(key, stored, delta)
		if err != nil {
			return err
		}
		for _, entry := range fresh {
			encoded, err := codec.Marshal(entry)
			if err != nil {
				return fmt.Errorf("encoding register entry: %w", err)
			}
			err = sqlitex.Execute(conn,
				`INSERT OR IGNORE INTO register_entries (register, hash, entry) VALUES (?, ?, ?)`,
				&sqlitex.ExecOptions{Args: []any{key[:], entry.Hash[:], encoded}})
			if err != nil {
				return fmt.Errorf("storing register entry %s: %w", entry.Hash.Short(), err)
			}
		}
		if len(fresh) > 0 {
			s.logger.Debug("register updated", "register", key.Short(), "added", len(fresh), "tips", len(reg.Tips()))
		}
		merged = reg.View()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// GetRegister implements RegisterStore.
func (s *SQLite) GetRegister(ctx context.Context, key address.Address) (*register.View, error) {
	var view *register.View
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		var err error
		view, err = loadRegister(conn, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func loadRegister(conn *sqlite.Conn, key address.Address) (*register.View, error) {
	view := &register.View{Key: key}
	err := sqlitex.Execute(conn, `SELECT entry FROM register_entries WHERE register = ? ORDER BY hash`, &sqlitex.ExecOptions{
		Args: []any{key[:]},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			encoded := make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, encoded)
			var entry register.Entry
			if err := codec.Unmarshal(encoded, &entry); err != nil {
				return fmt.Errorf("decoding register entry: %w", err)
			}
			view.Entries = append(view.Entries, entry)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("loading register %s: %w", key.Short(), err)
	}
	return view, nil
}

// Close implements Store.
func (s *SQLite) Close() error {
	return s.pool.Close()
}
