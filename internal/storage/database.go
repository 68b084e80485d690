// Package storage persists review records, review events and the solved-problem
// registry in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/revisit/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// ErrConflict is returned when a record changed between read and update.
var ErrConflict = errors.New("revisit: review record changed concurrently")

// ErrCorrupt is returned when a stored row was read but its contents could
// not be decoded.
var ErrCorrupt = errors.New("revisit: stored record is corrupt")

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

const defaultPragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

// Open creates a new database connection and ensures the schema is up to date.
// Pragmas for busy waiting, WAL, foreign keys and immediate write locks are
// added unless dsn already carries query parameters.
func Open(ctx context.Context, dsn string) (*DB, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?" + defaultPragmas
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable("open database", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable("connect to database", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, unavailable("apply schema", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// withTx runs fn inside a transaction, committing only if fn succeeds.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit transaction", err)
	}
	return nil
}

// unavailable marks a driver failure so callers can tell "nothing found"
// apart from "could not check".
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList(s string) ([]string, error) {
	var list []string
	if s == "" {
		return list, nil
	}
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil, err
	}
	return list, nil
}
