package accesslog

import (
	"context"
	"sort"
	"sync"
)

type Store interface {
	Record(ctx context.Context, e *Entry) error
	Search(ctx context.Context, p SearchParams) ([]*Entry, int, error)
}

// MemoryStore is used by tests and by servers running without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Record(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

// Search returns matches newest first.
func (s *MemoryStore) Search(_ context.Context, p SearchParams) ([]*Entry, int, error) {
	s.mu.RLock()
	var matched []*Entry
	for _, e := range s.entries {
		if p.matches(e) {
			cp := *e
			matched = append(matched, &cp)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].AccessedAt.After(matched[j].AccessedAt)
	})

	total := len(matched)
	if p.Offset >= total {
		return []*Entry{}, total, nil
	}
	end := total
	if p.Limit > 0 && p.Offset+p.Limit < total {
		end = p.Offset + p.Limit
	}
	return matched[p.Offset:end], total, nil
}
