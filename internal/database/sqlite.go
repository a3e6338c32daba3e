package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	_ "modernc.org/sqlite"
)

// SQLite wraps a database/sql handle on a modernc sqlite database.
type SQLite struct {
	DB       *sql.DB
	Path     string
	ReadOnly bool
}

// OpenSQLite opens the sqlite file at path, or a private in-memory database
// when path is empty. The handle is opened read-only when readOnly is set or
// when the existing file cannot be written by this process.
func OpenSQLite(ctx context.Context, path string, readOnly bool) (*SQLite, error) {
	if path != "" && !readOnly && !writable(path) {
		readOnly = true
	}

	dsn := sqliteDSN(path, readOnly)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Each connection to :memory: is a separate database, and sqlite
	// serializes writers anyway, so a single connection is used throughout.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return &SQLite{DB: db, Path: path, ReadOnly: readOnly}, nil
}

func sqliteDSN(path string, readOnly bool) string {
	if path == "" {
		return ":memory:"
	}
	if readOnly {
		return "file:" + path + "?mode=ro&_pragma=busy_timeout(5000)"
	}
	return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

// writable reports whether path can be opened for writing. A missing file is
// writable when it can be created; that check is left to sqlite itself.
func writable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}
	f.Close()
	return true
}

// Ping checks if the database is reachable.
func (db *SQLite) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}

// Close closes the database handle.
func (db *SQLite) Close() error {
	if db.DB == nil {
		return nil
	}
	return db.DB.Close()
}
