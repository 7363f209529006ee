// Package database provides SQLite storage for the feed cache.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bryan-buckman/infovore/internal/model"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows a single writer.
	conn.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return "SQLite"
}

func (db *DB) migrate() error {
	// updated_time holds Unix nanoseconds.
	schema := `
	CREATE TABLE IF NOT EXISTS fetch_cache (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		prefix TEXT NOT NULL,
		path TEXT NOT NULL,
		info TEXT NOT NULL,
		content TEXT NOT NULL,
		updated_time INTEGER NOT NULL,
		UNIQUE(prefix, path, info)
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// FindFeed returns the cached entry for the identity and key, or nil.
func (db *DB) FindFeed(ctx context.Context, id model.SourceIdentity, key string) (*model.CacheEntry, error) {
	var (
		content string
		updated int64
	)
	err := db.conn.QueryRowContext(ctx,
		"SELECT updated_time, content FROM fetch_cache WHERE prefix = ? AND path = ? AND info = ? LIMIT 1",
		id.Prefix, id.Path, key,
	).Scan(&updated, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.CacheEntry{
		Identity:  id,
		Key:       key,
		UpdatedAt: time.Unix(0, updated).UTC(),
		Content:   []byte(content),
	}, nil
}

// UpsertFeed stores the entry, replacing content and update time on conflict.
func (db *DB) UpsertFeed(ctx context.Context, entry model.CacheEntry) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO fetch_cache (prefix, path, info, content, updated_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(prefix, path, info) DO UPDATE SET
			content = excluded.content,
			updated_time = excluded.updated_time`,
		entry.Identity.Prefix, entry.Identity.Path, entry.Key, string(entry.Content), entry.UpdatedAt.UnixNano())
	return err
}

// Stats returns row counts and update bounds per source identity.
func (db *DB) Stats(ctx context.Context) (model.CacheStats, error) {
	var stats model.CacheStats
	rows, err := db.conn.QueryContext(ctx, `
		SELECT prefix, path, COUNT(*), MIN(updated_time), MAX(updated_time)
		FROM fetch_cache
		GROUP BY prefix, path
		ORDER BY prefix, path`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			s              model.SourceStats
			oldest, newest int64
		)
		if err := rows.Scan(&s.Identity.Prefix, &s.Identity.Path, &s.Entries, &oldest, &newest); err != nil {
			return stats, err
		}
		s.Oldest = time.Unix(0, oldest).UTC()
		s.Newest = time.Unix(0, newest).UTC()
		stats.Entries += s.Entries
		stats.Sources = append(stats.Sources, s)
	}
	return stats, rows.Err()
}
