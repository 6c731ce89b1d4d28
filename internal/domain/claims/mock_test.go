package claims

import (
	"context"
	"sort"
	"sync"
	"time"
)

type mockRepo struct {
	mu     sync.Mutex
	byKey  map[string]*Draft
	saves  int
	failOn string
}

func newMockRepo() *mockRepo {
	return &mockRepo{byKey: make(map[string]*Draft)}
}

func clone(d *Draft) *Draft {
	c := *d
	c.VisitIDs = append([]string(nil), d.VisitIDs...)
	c.LineItems = append([]LineItem(nil), d.LineItems...)
	return &c
}

func (m *mockRepo) LockDraft(_ context.Context, init *Draft) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.byKey[init.Key]; ok {
		return clone(d), nil
	}
	d := clone(init)
	d.CreatedAt = time.Now()
	m.byKey[d.Key] = d
	return clone(d), nil
}

func (m *mockRepo) Save(_ context.Context, d *Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && m.failOn == d.Key {
		return context.DeadlineExceeded
	}
	m.saves++
	m.byKey[d.Key] = clone(d)
	return nil
}

func (m *mockRepo) Get(_ context.Context, id string) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.byKey {
		if d.ID == id {
			return clone(d), nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) List(_ context.Context, staffIdentity string, day *time.Time, limit, offset int) ([]*Draft, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Draft
	for _, d := range m.byKey {
		if staffIdentity != "" && d.StaffIdentity != staffIdentity {
			continue
		}
		if day != nil && !d.ClaimDate.Equal(*day) {
			continue
		}
		out = append(out, clone(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	total := len(out)
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.byKey {
		if d.ID == id {
			d.Status = status
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockRepo) draft(key string) *Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.byKey[key]; ok {
		return clone(d)
	}
	return nil
}

// serialTx stands in for the row lock: one transaction at a time.
type serialTx struct {
	mu sync.Mutex
}

func (t *serialTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}

type linkCall struct {
	VisitID, ClaimID, ClaimKey string
}

type mockLinker struct {
	mu    sync.Mutex
	calls []linkCall
}

func (l *mockLinker) SetClaim(_ context.Context, visitID, claimID, claimKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, linkCall{visitID, claimID, claimKey})
	return nil
}

func visit(id string, day string) VisitRef {
	d, _ := time.Parse("2006-01-02", day)
	return VisitRef{
		ID:             id,
		MemberID:       "M-" + id,
		MemberName:     "Member " + id,
		StaffID:        "S-9",
		StaffEmail:     "Sam.Gamgee@example.com",
		StaffAccountID: "acct-7",
		StaffName:      "Sam Gamgee",
		VisitDate:      d,
	}
}
