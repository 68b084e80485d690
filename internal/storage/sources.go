package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Source types.
const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// Source represents a registry source, either a local path or a Git URL.
type Source struct {
	ID          int64
	Path        string
	Type        string
	LastScanned sql.NullTime
}

// InsertSource inserts a new source path into the database and returns its ID.
func (db *DB) InsertSource(ctx context.Context, path, sourceType string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (path, type)
		VALUES (?, ?)
	`, path, sourceType)
	if err != nil {
		return 0, unavailable(fmt.Sprintf("insert source %s", path), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, unavailable(fmt.Sprintf("last insert ID for source %s", path), err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source by its path. It returns nil when the
// path is not registered.
func (db *DB) FindSourceByPath(ctx context.Context, path string) (*Source, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, path, type, last_scanned
		FROM sources WHERE path = ?
	`, path)

	s, err := scanSource(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Source not found
		}
		return nil, unavailable(fmt.Sprintf("find source by path %s", path), err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources from the database.
func (db *DB) GetAllSources(ctx context.Context) ([]Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, path, type, last_scanned
		FROM sources
		ORDER BY id
	`)
	if err != nil {
		return nil, unavailable("get all sources", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, unavailable("scan source row", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate sources", err)
	}
	return sources, nil
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, toMillis(at), sourceID)
	if err != nil {
		return unavailable(fmt.Sprintf("update last scanned for source ID %d", sourceID), err)
	}
	return nil
}

// DeleteSource removes a source and the solved problems read from it.
func (db *DB) DeleteSource(ctx context.Context, sourceID int64) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, sourceID)
	if err != nil {
		return unavailable(fmt.Sprintf("delete source ID %d", sourceID), err)
	}
	return nil
}

func scanSource(s scanner) (Source, error) {
	var src Source
	var scanned sql.NullInt64
	if err := s.Scan(&src.ID, &src.Path, &src.Type, &scanned); err != nil {
		return Source{}, err
	}
	if scanned.Valid {
		src.LastScanned = sql.NullTime{Time: fromMillis(scanned.Int64), Valid: true}
	}
	return src, nil
}
