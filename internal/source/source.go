// Package source groups generators under their source prefixes and builds
// the workers that serve them.
package source

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/bryan-buckman/infovore/internal/config"
	"github.com/bryan-buckman/infovore/internal/cratesio"
	"github.com/bryan-buckman/infovore/internal/database"
	"github.com/bryan-buckman/infovore/internal/feedworker"
	"github.com/bryan-buckman/infovore/internal/model"
	"github.com/bryan-buckman/infovore/internal/rss"
)

var (
	// ErrDuplicateRoute is returned when two generators normalize to the same route.
	ErrDuplicateRoute = errors.New("duplicate route")
	// ErrReservedRoute is returned when a generator would shadow a fixed route.
	ErrReservedRoute = errors.New("reserved route")
)

// Source is an upstream system exposed under one prefix.
type Source struct {
	Prefix     string
	generators []feedworker.Generator
}

// New creates an empty source.
func New(prefix string) *Source {
	return &Source{Prefix: prefix}
}

// Register adds a generator to the source.
func (s *Source) Register(g feedworker.Generator) *Source {
	s.generators = append(s.generators, g)
	return s
}

// Generators returns the registered generators in registration order.
func (s *Source) Generators() []feedworker.Generator {
	return s.generators
}

// Registry holds every configured source.
type Registry struct {
	sources  []*Source
	reserved map[string]bool
}

// NewRegistry creates a registry from sources.
func NewRegistry(sources ...*Source) *Registry {
	return &Registry{sources: sources}
}

// Add appends a source.
func (r *Registry) Add(s *Source) {
	r.sources = append(r.sources, s)
}

// Sources returns the registered sources.
func (r *Registry) Sources() []*Source {
	return r.sources
}

// Reserve marks routes that are served by something other than a worker.
func (r *Registry) Reserve(routes ...string) *Registry {
	if r.reserved == nil {
		r.reserved = make(map[string]bool)
	}
	for _, route := range routes {
		r.reserved[route] = true
	}
	return r
}

// Workers builds one worker per (source, generator), sorted by route.
func (r *Registry) Workers(store database.Store, opts feedworker.Options) ([]*feedworker.Worker, error) {
	seen := make(map[string]model.SourceIdentity)
	var workers []*feedworker.Worker
	for _, s := range r.Sources() {
		for _, g := range s.Generators() {
			w := feedworker.New(s.Prefix, g, store, opts)
			route := w.Identity().Route()
			if r.reserved[route] {
				return nil, fmt.Errorf("%w: %s registered as %s", ErrReservedRoute, route, w.Identity())
			}
			if prev, ok := seen[route]; ok {
				return nil, fmt.Errorf("%w: %s registered as %s and %s", ErrDuplicateRoute, route, prev, w.Identity())
			}
			seen[route] = w.Identity()
			workers = append(workers, w)
		}
	}
	sort.Slice(workers, func(i, j int) bool {
		return workers[i].Identity().Route() < workers[j].Identity().Route()
	})
	return workers, nil
}

// FromConfig builds the registry of enabled sources. Upstream requests share
// client, which may be nil. The mirror gets a guarded copy of it unless
// private networks are allowed.
func FromConfig(cfg config.SourcesConfig, client *http.Client) *Registry {
	r := NewRegistry()

	if c := cfg.CratesIO; c.Enabled {
		prefix := c.Prefix
		if prefix == "" {
			prefix = cratesio.Prefix
		}
		r.Add(New(prefix).Register(cratesio.NewCrateVersions(c.BaseURL, c.UserAgent, client)))
	}

	if c := cfg.RSS; c.Enabled {
		prefix := c.Prefix
		if prefix == "" {
			prefix = rss.Prefix
		}
		mirrorClient := client
		if !c.AllowPrivateNetworks {
			mirrorClient = rss.GuardedClient(client)
		}
		mirror := rss.NewMirror(c.MaxItems, c.UserAgent, mirrorClient).AllowHosts(c.AllowedHosts...)
		r.Add(New(prefix).Register(mirror))
	}

	return r
}
