// Package accesslog keeps a queryable trail of who read or changed member,
// visit and claim data through the API.
package accesslog

import (
	"time"

	"github.com/rcfe/casesync/internal/platform/middleware"
)

type Entry struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id,omitempty"`
	Subject    string    `json:"subject"`
	Email      string    `json:"email,omitempty"`
	Roles      []string  `json:"roles"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resource_id,omitempty"`
	Action     string    `json:"action"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	IPAddress  string    `json:"ip_address"`
	StatusCode int       `json:"status_code"`
	AccessedAt time.Time `json:"accessed_at"`
}

// SearchParams filters the trail. Zero values match everything.
type SearchParams struct {
	Subject    string
	Resource   string
	ResourceID string
	Action     string
	Start      *time.Time
	End        *time.Time
	Limit      int
	Offset     int
}

func (p SearchParams) matches(e *Entry) bool {
	if p.Subject != "" && e.Subject != p.Subject {
		return false
	}
	if p.Resource != "" && e.Resource != p.Resource {
		return false
	}
	if p.ResourceID != "" && e.ResourceID != p.ResourceID {
		return false
	}
	if p.Action != "" && e.Action != p.Action {
		return false
	}
	if p.Start != nil && e.AccessedAt.Before(*p.Start) {
		return false
	}
	if p.End != nil && e.AccessedAt.After(*p.End) {
		return false
	}
	return true
}

func fromAudit(a middleware.AuditEntry) *Entry {
	roles := a.Roles
	if roles == nil {
		roles = []string{}
	}
	return &Entry{
		RequestID:  a.RequestID,
		Subject:    a.Subject,
		Email:      a.Email,
		Roles:      roles,
		Resource:   a.Resource,
		ResourceID: a.ResourceID,
		Action:     a.Action,
		Method:     a.Method,
		Path:       a.Path,
		IPAddress:  a.IPAddress,
		StatusCode: a.StatusCode,
		AccessedAt: a.Timestamp,
	}
}
