package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryan-buckman/infovore/internal/config"
	"github.com/bryan-buckman/infovore/internal/model"
)

func testSQLite(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// backends returns every store available in this environment. PostgreSQL is
// included when INFOVORE_TEST_POSTGRES_DSN is set.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	stores := map[string]Store{
		"sqlite": testSQLite(t),
		"memory": NewMemory(),
	}
	if dsn := os.Getenv("INFOVORE_TEST_POSTGRES_DSN"); dsn != "" {
		pg, err := NewPostgres(dsn)
		if err != nil {
			t.Fatalf("opening postgres: %v", err)
		}
		if _, err := pg.conn.Exec("DELETE FROM fetch_cache"); err != nil {
			t.Fatalf("clearing postgres: %v", err)
		}
		t.Cleanup(func() { pg.Close() })
		stores["postgres"] = pg
	}
	return stores
}

var crates = model.NewSourceIdentity("crates-io", "crate-versions")

func entry(key, content string, at time.Time) model.CacheEntry {
	return model.CacheEntry{Identity: crates, Key: key, UpdatedAt: at, Content: []byte(content)}
}

func TestFindFeedMiss(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := store.FindFeed(context.Background(), crates, `{"crate_name":"serde"}`)
			if err != nil {
				t.Fatalf("FindFeed: %v", err)
			}
			if got != nil {
				t.Fatalf("expected miss, got %+v", got)
			}
		})
	}
}

func TestUpsertAndFind(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 10, 30, 0, 123456789, time.UTC)

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.UpsertFeed(ctx, entry(`{"crate_name":"serde"}`, `{"id":"a"}`, at)); err != nil {
				t.Fatalf("UpsertFeed: %v", err)
			}
			got, err := store.FindFeed(ctx, crates, `{"crate_name":"serde"}`)
			if err != nil {
				t.Fatalf("FindFeed: %v", err)
			}
			if got == nil {
				t.Fatal("expected hit, got miss")
			}
			if string(got.Content) != `{"id":"a"}` {
				t.Errorf("content = %s", got.Content)
			}
			// PostgreSQL keeps microseconds.
			if d := got.UpdatedAt.Sub(at); d < -time.Microsecond || d > time.Microsecond {
				t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, at)
			}
		})
	}
}

func TestUpsertOverwritesExisting(t *testing.T) {
	ctx := context.Background()
	first := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := `{"crate_name":"tokio"}`
			if err := store.UpsertFeed(ctx, entry(key, "old", first)); err != nil {
				t.Fatalf("first upsert: %v", err)
			}
			if err := store.UpsertFeed(ctx, entry(key, "new", second)); err != nil {
				t.Fatalf("second upsert: %v", err)
			}
			got, err := store.FindFeed(ctx, crates, key)
			if err != nil || got == nil {
				t.Fatalf("FindFeed: %v, %v", got, err)
			}
			if string(got.Content) != "new" {
				t.Errorf("expected updated content, got %s", got.Content)
			}
			if !got.UpdatedAt.Equal(second) {
				t.Errorf("expected updated time %v, got %v", second, got.UpdatedAt)
			}

			stats, err := store.Stats(ctx)
			if err != nil {
				t.Fatalf("Stats: %v", err)
			}
			if stats.Entries != 1 {
				t.Errorf("expected exactly one row, got %d", stats.Entries)
			}
		})
	}
}

func TestUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	at := time.Now().UTC()
	db := testSQLite(t)
	key := `{"crate_name":"rand"}`

	for i := 0; i < 2; i++ {
		if err := db.UpsertFeed(ctx, entry(key, "same", at)); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM fetch_cache WHERE prefix = ? AND path = ? AND info = ?",
		crates.Prefix, crates.Path, key).Scan(&n)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row, got %d", n)
	}
}

func TestKeysAreExactMatch(t *testing.T) {
	ctx := context.Background()
	at := time.Now().UTC()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.UpsertFeed(ctx, entry(`{"crate_name":"serde","include_yanked":true}`, "full", at)); err != nil {
				t.Fatalf("UpsertFeed: %v", err)
			}
			got, err := store.FindFeed(ctx, crates, `{"crate_name":"serde"}`)
			if err != nil {
				t.Fatalf("FindFeed: %v", err)
			}
			if got != nil {
				t.Errorf("subset key must not match, got %s", got.Content)
			}
		})
	}
}

func TestIdentitiesDoNotShareEntries(t *testing.T) {
	ctx := context.Background()
	at := time.Now().UTC()
	other := model.NewSourceIdentity("crates-mirror", "crate-versions")

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := `{"crate_name":"serde"}`
			if err := store.UpsertFeed(ctx, entry(key, "crates", at)); err != nil {
				t.Fatalf("UpsertFeed: %v", err)
			}
			got, err := store.FindFeed(ctx, other, key)
			if err != nil {
				t.Fatalf("FindFeed: %v", err)
			}
			if got != nil {
				t.Errorf("identity %v must not see entries of %v", other, crates)
			}
		})
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := old.Add(48 * time.Hour)
	rss := model.NewSourceIdentity("rss", "mirror")

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			stats, err := store.Stats(ctx)
			if err != nil {
				t.Fatalf("Stats: %v", err)
			}
			if stats.Entries != 0 || len(stats.Sources) != 0 {
				t.Fatalf("expected empty stats, got %+v", stats)
			}

			_ = store.UpsertFeed(ctx, entry(`{"crate_name":"a"}`, "a", old))
			_ = store.UpsertFeed(ctx, entry(`{"crate_name":"b"}`, "b", recent))
			_ = store.UpsertFeed(ctx, model.CacheEntry{Identity: rss, Key: `{"url":"x"}`, UpdatedAt: recent, Content: []byte("x")})

			stats, err = store.Stats(ctx)
			if err != nil {
				t.Fatalf("Stats: %v", err)
			}
			if stats.Entries != 3 {
				t.Errorf("expected 3 entries, got %d", stats.Entries)
			}
			if len(stats.Sources) != 2 {
				t.Fatalf("expected 2 sources, got %d", len(stats.Sources))
			}
			c := stats.Sources[0]
			if c.Identity != crates || c.Entries != 2 {
				t.Errorf("unexpected first source %+v", c)
			}
			if !c.Oldest.Equal(old) || !c.Newest.Equal(recent) {
				t.Errorf("unexpected bounds %v .. %v", c.Oldest, c.Newest)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	store, err := Open(config.DatabaseConfig{Driver: config.DriverSQLite, DSN: path})
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	defer store.Close()
	if store.DatabaseType() != "SQLite" {
		t.Errorf("DatabaseType = %q", store.DatabaseType())
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file was not created: %v", err)
	}

	mem, err := Open(config.DatabaseConfig{Driver: config.DriverMemory})
	if err != nil || mem.DatabaseType() != "memory" {
		t.Errorf("Open memory: %v, %v", mem, err)
	}

	if _, err := Open(config.DatabaseConfig{Driver: "mysql"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestMemoryStoreCopiesContent(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	content := []byte("original")
	_ = store.UpsertFeed(ctx, model.CacheEntry{Identity: crates, Key: "k", Content: content})
	content[0] = 'X'

	got, _ := store.FindFeed(ctx, crates, "k")
	if string(got.Content) != "original" {
		t.Errorf("stored content was aliased: %s", got.Content)
	}
}
