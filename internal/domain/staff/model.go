package staff

import (
	"strings"

	"github.com/rcfe/casesync/internal/domain/matching"
)

// Member is one row of the staff directory.
type Member struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	Active    bool   `json:"active"`
}

func (m Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// Candidate exposes every spelling of the staff member that assignment
// strings are known to use.
func (m Member) Candidate() matching.Candidate {
	fields := []string{m.FullName(), m.Email}
	if m.FirstName != "" && m.LastName != "" {
		fields = append(fields, m.LastName+", "+m.FirstName)
	}
	return matching.Candidate{ID: m.ID, Fields: fields}
}

// Contact is someone to notify about a flagged visit.
type Contact struct {
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	Source string `json:"source"`
}

const (
	SourceAssignment = "assignment"
	SourceEscalation = "escalation"
)

func (c Contact) key() string {
	if c.Email != "" {
		return strings.ToLower(c.Email)
	}
	return "name:" + matching.Normalize(c.Name)
}
