// Package database provides storage backends for the feed cache.
package database

import (
	"context"
	"fmt"

	"github.com/bryan-buckman/infovore/internal/config"
	"github.com/bryan-buckman/infovore/internal/model"
)

// Store defines the interface for cache operations.
// The SQLite, PostgreSQL and in-memory implementations satisfy this interface.
//
// Uniqueness of (prefix, path, key) is enforced by every backend: UpsertFeed
// never creates a second row for the same logical key.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend.
	DatabaseType() string

	// FindFeed returns the entry stored for the identity and canonical key,
	// or nil when there is none. A nil entry with a nil error is a miss,
	// never a failure.
	FindFeed(ctx context.Context, id model.SourceIdentity, key string) (*model.CacheEntry, error)

	// UpsertFeed inserts the entry or overwrites content and update time of
	// the existing row with the same identity and key.
	UpsertFeed(ctx context.Context, entry model.CacheEntry) error

	// Stats summarizes the stored entries per source identity.
	Stats(ctx context.Context) (model.CacheStats, error)
}

// Open returns the backend selected by the database config.
func Open(cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := New(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DriverPostgres:
		db, err := NewPostgres(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
