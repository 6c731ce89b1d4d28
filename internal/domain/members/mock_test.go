package members

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rcfe/casesync/internal/platform/caspio"
)

type mockRepo struct {
	mu   sync.Mutex
	rows map[string]*Member
	meta map[string]*SyncMetadata
}

func newMockRepo() *mockRepo {
	return &mockRepo{rows: make(map[string]*Member), meta: make(map[string]*SyncMetadata)}
}

func (m *mockRepo) Upsert(_ context.Context, members []*Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range members {
		cp := *mem
		m.rows[mem.ClientID] = &cp
	}
	return nil
}

func (m *mockRepo) Get(_ context.Context, id string) (*Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[id]; ok {
		return r, nil
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

func (m *mockRepo) sorted() []*Member {
	out := make([]*Member, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

func (m *mockRepo) FindBySearchKey(_ context.Context, key string, limit int) ([]*Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Member
	for _, r := range m.sorted() {
		for _, k := range r.SearchKeys {
			if k == key {
				out = append(out, r)
				break
			}
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockRepo) ScanPage(_ context.Context, limit, offset int) ([]*Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted()
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *mockRepo) GetSyncMetadata(_ context.Context, name string) (*SyncMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if md, ok := m.meta[name]; ok {
		cp := *md
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *mockRepo) SaveSyncMetadata(_ context.Context, md *SyncMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *md
	m.meta[md.Name] = &cp
	return nil
}

// fakeUpstream serves rows in pages; failFrom > 0 makes that page and every
// later one fail.
type fakeUpstream struct {
	mu         sync.Mutex
	rows       []caspio.Row
	failFrom   int
	sessionErr error
	sessions   int
	wheres     []string
}

func (f *fakeUpstream) Session(_ context.Context) (caspio.Pager, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions++
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return f, nil
}

func (f *fakeUpstream) FetchPage(_ context.Context, _ string, where caspio.Where, page, size int) ([]caspio.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wheres = append(f.wheres, where.String())
	if f.failFrom > 0 && page >= f.failFrom {
		return nil, errors.New("upstream 502")
	}
	start := (page - 1) * size
	if start >= len(f.rows) {
		return nil, nil
	}
	end := start + size
	if end > len(f.rows) {
		end = len(f.rows)
	}
	return f.rows[start:end], nil
}

func makeRows(n int) []caspio.Row {
	rows := make([]caspio.Row, n)
	for i := range rows {
		rows[i] = caspio.Row{
			colClientID:      fmt.Sprintf("C%04d", i),
			colFirstName:     "Member",
			colLastName:      fmt.Sprintf("%d", i),
			colStaffAssigned: "Baggins, Frodo",
			colAuthStatus:    "Authorized",
			colRCFEName:      "Shire House",
		}
	}
	return rows
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
