// Package feedworker serves generated feeds through a freshness-bounded cache.
//
// A Worker binds one Generator to one source identity. Each request runs a
// single pass of normalize, cache lookup, generate and write-through; the
// worker keeps no per-request state, so one Worker serves concurrent requests.
package feedworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bryan-buckman/infovore/internal/atom"
	"github.com/bryan-buckman/infovore/internal/config"
	"github.com/bryan-buckman/infovore/internal/database"
	"github.com/bryan-buckman/infovore/internal/model"
)

// Generator produces feeds for one resource of a source.
type Generator interface {
	// ResourcePath is the fixed path of the resource under its source prefix.
	ResourcePath() string
	// Normalize turns a raw query string into a canonical key. Malformed
	// input must be reported as a *ParseError.
	Normalize(rawQuery string) (model.CanonicalKey, error)
	// Generate builds a fresh feed for the key.
	Generate(ctx context.Context, key model.CanonicalKey) (*atom.Feed, error)
}

// Options carries the process-wide settings a worker needs.
type Options struct {
	Mode          config.ServeMode
	CacheDuration time.Duration
	Logger        *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Worker handles requests for one (source, resource) pair.
type Worker struct {
	identity      model.SourceIdentity
	generator     Generator
	store         database.Store
	mode          config.ServeMode
	cacheDuration time.Duration
	log           *slog.Logger
	now           func() time.Time
}

// New creates a worker for generator under the source prefix. It does no I/O.
func New(prefix string, generator Generator, store database.Store, opts Options) *Worker {
	identity := model.NewSourceIdentity(prefix, generator.ResourcePath())

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Worker{
		identity:      identity,
		generator:     generator,
		store:         store,
		mode:          opts.Mode,
		cacheDuration: opts.CacheDuration,
		log:           log.With("prefix", identity.Prefix, "path", identity.Path),
		now:           now,
	}
}

// Identity returns the normalized source identity of the worker.
func (w *Worker) Identity() model.SourceIdentity {
	return w.identity
}

// GetCache returns the fresh cached feed for key, or nil when there is no
// entry or the entry is older than the cache duration. Stale entries are
// left in place. Every failure is returned as a *StoreError.
func (w *Worker) GetCache(ctx context.Context, key model.CanonicalKey) (*atom.Feed, error) {
	canonical, err := key.Canonical()
	if err != nil {
		return nil, &StoreError{Op: "encode key", Err: err}
	}

	entry, err := w.store.FindFeed(ctx, w.identity, canonical)
	if err != nil {
		return nil, &StoreError{Op: "read", Err: err}
	}
	if entry == nil {
		return nil, nil
	}

	feed, err := atom.Unmarshal(entry.Content)
	if err != nil {
		return nil, &StoreError{Op: "decode", Err: err}
	}

	age := w.now().Sub(entry.UpdatedAt)
	if age < 0 {
		return nil, &StoreError{Op: "age", Err: fmt.Errorf("%w: updated %s", ErrClockSkew, entry.UpdatedAt.Format(time.RFC3339Nano))}
	}
	if age > w.cacheDuration {
		return nil, nil
	}
	return feed, nil
}

// PutCache stores feed for key, replacing any previous entry.
func (w *Worker) PutCache(ctx context.Context, key model.CanonicalKey, feed *atom.Feed) error {
	canonical, err := key.Canonical()
	if err != nil {
		return &StoreError{Op: "encode key", Err: err}
	}
	content, err := atom.Marshal(feed)
	if err != nil {
		return &StoreError{Op: "encode", Err: err}
	}
	err = w.store.UpsertFeed(ctx, model.CacheEntry{
		Identity:  w.identity,
		Key:       canonical,
		UpdatedAt: w.now().UTC(),
		Content:   content,
	})
	if err != nil {
		return &StoreError{Op: "write", Err: err}
	}
	return nil
}

// Handle serves one request for the raw query string.
func (w *Worker) Handle(ctx context.Context, rawQuery string) Response {
	key, err := w.generator.Normalize(rawQuery)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			w.log.Error("invalid query string", "kind", kindQueryParse, "query", rawQuery, "error", err)
			return Response{Outcome: OutcomeParseFailure, Err: err}
		}
		w.log.Error("normalize query string", "kind", kindUnexpected, "query", rawQuery, "error", err)
		return Response{Outcome: OutcomeUnexpectedError, Err: err}
	}

	if w.mode != config.ModeDevelopment {
		cached, err := w.GetCache(ctx, key)
		if err != nil {
			w.log.Error("read cache", "kind", kindStore, "error", err)
			return Response{Outcome: OutcomeUnexpectedError, Err: err}
		}
		if cached != nil {
			body, err := atom.Encode(cached)
			if err != nil {
				w.log.Error("encode cached feed", "kind", kindUnexpected, "error", err)
				return Response{Outcome: OutcomeUnexpectedError, Err: err}
			}
			w.log.Debug("cache hit", "key", key)
			return Response{Outcome: OutcomeCacheHit, Body: body}
		}
	}

	feed, err := w.generator.Generate(ctx, key)
	if err == nil && feed == nil {
		err = errors.New("generator returned no feed")
	}
	if err != nil {
		err = fmt.Errorf("generate %s: %w", w.identity, err)
		w.log.Error("generate feed", "kind", kindGeneration, "key", key, "error", err)
		return Response{Outcome: OutcomeUnexpectedError, Err: err}
	}

	feed.StampProvenance()

	// The write outlives a client that already went away.
	if err := w.PutCache(context.WithoutCancel(ctx), key, feed); err != nil {
		w.log.Error("write cache", "kind", kindCacheWrite, "key", key, "error", err)
	}

	body, err := atom.Encode(feed)
	if err != nil {
		w.log.Error("encode feed", "kind", kindUnexpected, "error", err)
		return Response{Outcome: OutcomeUnexpectedError, Err: err}
	}
	w.log.Debug("feed generated", "key", key, "entries", len(feed.Entries))
	return Response{Outcome: OutcomeGenerated, Body: body}
}
