package members

import (
	"errors"
	"strings"
	"time"

	"github.com/rcfe/casesync/internal/domain/matching"
)

var (
	// ErrCacheEmpty means no member row has ever been synced.
	ErrCacheEmpty = errors.New("cache empty")
	// ErrCacheUnavailable means a required sync fetched no page at all.
	ErrCacheUnavailable = errors.New("cache unavailable")
	ErrNotFound         = errors.New("member not found")
)

// Member is one cached upstream row. Each sync overwrites it in place.
type Member struct {
	ClientID             string     `json:"client_id"`
	FirstName            string     `json:"first_name"`
	LastName             string     `json:"last_name"`
	AssignedStaffID      string     `json:"assigned_staff_id,omitempty"`
	StaffAssigned        string     `json:"staff_assigned,omitempty"`
	SocialWorkerAssigned string     `json:"social_worker_assigned,omitempty"`
	CaseManager          string     `json:"case_manager,omitempty"`
	AuthorizationStatus  string     `json:"authorization_status"`
	HoldText             string     `json:"hold_text,omitempty"`
	OnHold               bool       `json:"on_hold"`
	AuthEndDate          *time.Time `json:"auth_end_date,omitempty"`
	PlanType             string     `json:"plan_type,omitempty"`
	Facility             Facility   `json:"facility"`
	SearchKeys           []string   `json:"-"`
	Raw                  []byte     `json:"-"`
	UpstreamUpdatedAt    *time.Time `json:"upstream_updated_at,omitempty"`
	SyncedAt             time.Time  `json:"synced_at"`
}

// Facility is the residential facility (RCFE) a member lives in.
type Facility struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	Address      string `json:"address,omitempty"`
	ContactName  string `json:"contact_name,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
}

// GroupKey prefers the stable facility id and falls back to the normalized name.
func (f Facility) GroupKey() string {
	if id := strings.TrimSpace(f.ID); id != "" {
		return "id:" + strings.ToLower(id)
	}
	return "name:" + matching.Normalize(f.Name)
}

func (m *Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// AssignmentFields are the free-text columns that may name the assigned staff.
func (m *Member) AssignmentFields() []string {
	return []string{m.StaffAssigned, m.SocialWorkerAssigned, m.CaseManager}
}

// Candidate is the member's assignment identity for the matcher.
func (m *Member) Candidate() matching.Candidate {
	return matching.Candidate{ID: m.AssignedStaffID, Fields: m.AssignmentFields()}
}

// ComputeSearchKeys fills SearchKeys from the assignment columns.
func (m *Member) ComputeSearchKeys() {
	fields := append([]string{m.AssignedStaffID}, m.AssignmentFields()...)
	m.SearchKeys = matching.SearchKeys(fields...)
}

// IsAuthorized is true for any status starting with "Authorized", ignoring case.
func (m *Member) IsAuthorized() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(m.AuthorizationStatus)), "authorized")
}

// AuthExpiredOn reports whether the plan enforces an authorization end date
// and that date is before day. Only the calendar date is compared.
func (m *Member) AuthExpiredOn(day time.Time, policy *PlanPolicy) bool {
	if m.AuthEndDate == nil || !policy.EnforcesAuthExpiry(m.PlanType) {
		return false
	}
	return dateOnly(day).After(dateOnly(*m.AuthEndDate))
}

func dateOnly(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// SyncMode selects a full reload or only rows changed since the last sync.
type SyncMode string

const (
	SyncFull        SyncMode = "full"
	SyncIncremental SyncMode = "incremental"
)

func ParseSyncMode(s string) (SyncMode, bool) {
	switch SyncMode(strings.ToLower(strings.TrimSpace(s))) {
	case SyncFull:
		return SyncFull, true
	case SyncIncremental, "":
		return SyncIncremental, true
	}
	return "", false
}

// SyncResult summarises one sync run. Complete is false when pagination
// stopped on an upstream error or at the page ceiling.
type SyncResult struct {
	Mode         SyncMode  `json:"mode"`
	Count        int       `json:"count"`
	Pages        int       `json:"pages"`
	Complete     bool      `json:"complete"`
	LastSyncTime time.Time `json:"last_sync_time"`
}

// SyncMetadata is stored apart from the rows it describes.
type SyncMetadata struct {
	Name          string
	LastSyncAt    *time.Time
	LastAttemptAt time.Time
	Mode          SyncMode
	RowCount      int
	Pages         int
	Complete      bool
	LastError     string
}

const (
	StateFresh = "fresh"
	StateStale = "stale"
	StateEmpty = "empty"
)

// CacheStatus is what API callers see about cache health.
type CacheStatus struct {
	State      string     `json:"state"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	RowCount   int        `json:"row_count"`
	Refreshing bool       `json:"refreshing"`
	LastError  string     `json:"last_error,omitempty"`
}
