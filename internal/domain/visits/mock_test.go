package visits

import (
	"context"
	"sync"
	"time"

	"github.com/rcfe/casesync/internal/domain/claims"
	"github.com/rcfe/casesync/internal/domain/members"
	"github.com/rcfe/casesync/internal/domain/staff"
)

type memberMap map[string]*members.Member

func (m memberMap) Get(_ context.Context, id string) (*members.Member, error) {
	if mem, ok := m[id]; ok {
		return mem, nil
	}
	return nil, members.ErrNotFound
}

type mockRepo struct {
	mu      sync.Mutex
	records map[string]*Record
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[string]*Record)}
}

func (r *mockRepo) Upsert(_ context.Context, v *Record) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.records[v.ID]; ok {
		*v = *stored
		return false, nil
	}
	c := *v
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.records[v.ID] = &c
	*v = c
	return true, nil
}

func (r *mockRepo) Get(_ context.Context, id string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.records[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, ErrNotFound
}

func (r *mockRepo) SetClaim(_ context.Context, visitID, claimID, claimKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.records[visitID]
	if !ok {
		return ErrNotFound
	}
	v.ClaimID, v.ClaimKey = &claimID, &claimKey
	return nil
}

func (r *mockRepo) SignOff(_ context.Context, id, signer string, at time.Time) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if v.SignedOffAt == nil {
		v.SignedOffAt, v.SignedOffBy = &at, &signer
	}
	c := *v
	return &c, nil
}

func (r *mockRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type mockLocks struct {
	mu    sync.Mutex
	locks map[string]string
}

func newMockLocks() *mockLocks {
	return &mockLocks{locks: make(map[string]string)}
}

func (l *mockLocks) Acquire(_ context.Context, memberID, monthKey, visitID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := memberID + "|" + monthKey
	if winner, ok := l.locks[key]; ok {
		return winner, nil
	}
	l.locks[key] = visitID
	return visitID, nil
}

// fakeClaims folds visits into drafts with the real draft arithmetic and
// links them back like the claims service does.
type fakeClaims struct {
	mu     sync.Mutex
	drafts map[string]*claims.Draft
	linker claims.VisitLinker
}

func newFakeClaims(linker claims.VisitLinker) *fakeClaims {
	return &fakeClaims{drafts: make(map[string]*claims.Draft), linker: linker}
}

func (f *fakeClaims) UpsertVisitIntoClaim(ctx context.Context, v claims.VisitRef) (*claims.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := claims.Key(claims.StaffIdentity(v), v.VisitDate)
	d, ok := f.drafts[key]
	if !ok {
		d = &claims.Draft{ID: "claim-" + key, Key: key, FeeRate: 45, GasFlatRate: 20, Status: claims.StatusDraft}
		f.drafts[key] = d
	}
	d.AddVisit(v)
	if err := f.linker.SetClaim(ctx, v.ID, d.ID, d.Key); err != nil {
		return nil, err
	}
	c := *d
	return &c, nil
}

func (f *fakeClaims) draft(key string) *claims.Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drafts[key]
}

type fakeContacts struct {
	assignments []string
	contacts    []staff.Contact
	err         error
}

func (f *fakeContacts) ResolveContacts(_ context.Context, assignment string) ([]staff.Contact, error) {
	f.assignments = append(f.assignments, assignment)
	return f.contacts, f.err
}

func date(s string) *time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return &t
}

func testMembers() memberMap {
	return memberMap{
		"M1": {
			ClientID: "M1", FirstName: "Bilbo", LastName: "Baggins",
			AuthorizationStatus: "Authorized", PlanType: "Health Net",
			StaffAssigned: "Baggins, Frodo", SocialWorkerAssigned: "Samwise Gamgee",
			Facility: members.Facility{ID: "F1", Name: "Bag End Care"},
		},
		"M2": {ClientID: "M2", AuthorizationStatus: "Pending"},
		"M3": {ClientID: "M3", AuthorizationStatus: "Authorized", OnHold: true, HoldText: "Hold - awaiting SW"},
		"M4": {
			ClientID: "M4", AuthorizationStatus: "Authorized", PlanType: "Kaiser Permanente",
			AuthEndDate: date("2024-01-01"),
		},
		"M5": {ClientID: "M5", FirstName: "Rosie", LastName: "Cotton", AuthorizationStatus: "authorized - active"},
		"M6": {ClientID: "M6", FirstName: "Lobelia", LastName: "Sackville", AuthorizationStatus: "Authorized"},
	}
}

func submission(visitID, memberID, day string) Submission {
	return Submission{
		VisitID:        visitID,
		MemberID:       memberID,
		StaffID:        "S-9",
		StaffEmail:     "sam@example.com",
		StaffName:      "Sam Gamgee",
		StaffAccountID: "acct-7",
		VisitDate:      day,
		Questionnaire: Questionnaire{
			Ratings: map[string]int{"cleanliness": 5, "meals": 4, "activities": 4},
			Urgency: "low",
		},
	}
}
