// Package model defines shared data structures.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SourceIdentity identifies the worker that owns a cache entry.
type SourceIdentity struct {
	Prefix string
	Path   string
}

// NewSourceIdentity normalizes both parts with NormalizeSegments.
func NewSourceIdentity(prefix, path string) SourceIdentity {
	return SourceIdentity{
		Prefix: NormalizeSegments(prefix),
		Path:   NormalizeSegments(path),
	}
}

// Route returns the URL path the identity is served under, e.g. "/crates-io/crate-versions".
func (id SourceIdentity) Route() string {
	parts := make([]string, 0, 2)
	if id.Prefix != "" {
		parts = append(parts, id.Prefix)
	}
	if id.Path != "" {
		parts = append(parts, id.Path)
	}
	return "/" + strings.Join(parts, "/")
}

func (id SourceIdentity) String() string {
	return id.Prefix + ":" + id.Path
}

// NormalizeSegments splits s on "/", drops empty segments and joins the rest
// with "/". "//a///b/" becomes "a/b".
func NormalizeSegments(s string) string {
	var segs []string
	for _, seg := range strings.Split(s, "/") {
		if seg != "" {
			segs = append(segs, seg)
		}
	}
	return strings.Join(segs, "/")
}

// CanonicalKey is the normalized form of a request's query parameters.
// It is the generator input and the secondary cache key.
type CanonicalKey map[string]any

// NewCanonicalKey builds a key from a params value through its JSON form, so
// struct tags decide the key names and omitted fields never appear.
func NewCanonicalKey(params any) (CanonicalKey, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	key := CanonicalKey{}
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("params must encode as an object: %w", err)
	}
	return key, nil
}

// Canonical returns the deterministic serialized form of the key. Map keys
// are emitted sorted, so two equal keys always produce the same string.
func (k CanonicalKey) Canonical() (string, error) {
	if k == nil {
		return "{}", nil
	}
	data, err := json.Marshal(map[string]any(k))
	if err != nil {
		return "", fmt.Errorf("marshal canonical key: %w", err)
	}
	return string(data), nil
}

// Decode fills v (a pointer to a params struct) from the key.
func (k CanonicalKey) Decode(v any) error {
	data, err := json.Marshal(map[string]any(k))
	if err != nil {
		return fmt.Errorf("marshal canonical key: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode canonical key: %w", err)
	}
	return nil
}

// CacheEntry is one stored feed for a (SourceIdentity, canonical key) pair.
type CacheEntry struct {
	Identity  SourceIdentity
	Key       string // canonical form of the CanonicalKey
	UpdatedAt time.Time
	Content   []byte // JSON encoded feed
}

// SourceStats summarizes the cache rows of one source identity.
type SourceStats struct {
	Identity SourceIdentity
	Entries  int
	Oldest   time.Time
	Newest   time.Time
}

// CacheStats contains cache statistics.
type CacheStats struct {
	Entries int
	Sources []SourceStats
}
