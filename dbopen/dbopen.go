// CLAUDE:SUMMARY Opens the SQLite result store with WAL pragmas and schema, plus BUSY-retrying Exec/RunTx helpers.
// Package dbopen opens SQLite databases for the result store.
//
// Every connection gets:
//
//	foreign_keys = ON
//	journal_mode = WAL
//	busy_timeout = 10000
//	synchronous  = NORMAL
//
// The caller blank-imports the driver:
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("visits.db", dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const driver = "sqlite"

var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

type options struct {
	mkdirAll bool
	schemas  []string
}

// Option customises Open.
type Option func(*options)

// WithMkdirAll creates the parent directories of the database path.
func WithMkdirAll() Option { return func(o *options) { o.mkdirAll = true } }

// WithSchema queues SQL executed after the pragmas, in order.
func WithSchema(s string) Option { return func(o *options) { o.schemas = append(o.schemas, s) } }

// Open opens the database at path, applies the pragmas and the schemas and
// pings it.
func Open(path string, opts ...Option) (*sql.DB, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}
	if err := setup(db, append(append([]string(nil), pragmas...), o.schemas...)); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping: %w", err)
	}
	return db, nil
}

func setup(db *sql.DB, stmts []string) error {
	for i, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			if i < len(pragmas) {
				return fmt.Errorf("dbopen: %s: %w", s, err)
			}
			return fmt.Errorf("dbopen: exec schema: %w", err)
		}
	}
	return nil
}

// OpenMemory opens an in-memory database closed on test cleanup. It is
// limited to one connection: every ":memory:" connection is a separate
// database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
