package database

import (
	"context"
	"sort"
	"sync"

	"github.com/bryan-buckman/infovore/internal/model"
)

type memoryKey struct {
	id  model.SourceIdentity
	key string
}

// MemoryStore keeps entries in a map. Contents are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[memoryKey]model.CacheEntry
}

var _ Store = (*MemoryStore)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{entries: make(map[memoryKey]model.CacheEntry)}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) DatabaseType() string { return "memory" }

func (m *MemoryStore) FindFeed(_ context.Context, id model.SourceIdentity, key string) (*model.CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[memoryKey{id, key}]
	if !ok {
		return nil, nil
	}
	e.Content = append([]byte(nil), e.Content...)
	return &e, nil
}

func (m *MemoryStore) UpsertFeed(_ context.Context, entry model.CacheEntry) error {
	entry.Content = append([]byte(nil), entry.Content...)
	m.mu.Lock()
	m.entries[memoryKey{entry.Identity, entry.Key}] = entry
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Stats(_ context.Context) (model.CacheStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bySource := make(map[model.SourceIdentity]*model.SourceStats)
	for k, e := range m.entries {
		s, ok := bySource[k.id]
		if !ok {
			s = &model.SourceStats{Identity: k.id, Oldest: e.UpdatedAt, Newest: e.UpdatedAt}
			bySource[k.id] = s
		}
		s.Entries++
		if e.UpdatedAt.Before(s.Oldest) {
			s.Oldest = e.UpdatedAt
		}
		if e.UpdatedAt.After(s.Newest) {
			s.Newest = e.UpdatedAt
		}
	}

	stats := model.CacheStats{Entries: len(m.entries)}
	for _, s := range bySource {
		stats.Sources = append(stats.Sources, *s)
	}
	sort.Slice(stats.Sources, func(i, j int) bool {
		a, b := stats.Sources[i].Identity, stats.Sources[j].Identity
		if a.Prefix != b.Prefix {
			return a.Prefix < b.Prefix
		}
		return a.Path < b.Path
	})
	return stats, nil
}
