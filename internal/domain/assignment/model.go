package assignment

import (
	"time"
)

// MemberSummary is the per-member line shown in a facility group.
type MemberSummary struct {
	ClientID    string     `json:"clientId"`
	Name        string     `json:"name"`
	PlanType    string     `json:"planType,omitempty"`
	AuthEndDate *time.Time `json:"authEndDate,omitempty"`
}

// Group is one facility and the eligible members assigned there.
type Group struct {
	Key          string          `json:"key"`
	ID           string          `json:"rcfeId,omitempty"`
	Name         string          `json:"rcfeName"`
	Address      string          `json:"address,omitempty"`
	ContactName  string          `json:"contactName,omitempty"`
	ContactPhone string          `json:"contactPhone,omitempty"`
	ContactEmail string          `json:"contactEmail,omitempty"`
	MemberCount  int             `json:"memberCount"`
	Members      []MemberSummary `json:"members"`
}

type Excluded struct {
	Hold        int `json:"hold"`
	AuthExpired int `json:"authExpired"`
}

func (e Excluded) Total() int { return e.Hold + e.AuthExpired }

const (
	PathFast     = "fast"
	PathFallback = "fallback"
	PathNone     = "none"
)

// Result of resolving one staff identifier. TotalMatched counts every
// matching row; TotalAssignedAll counts authorized rows including the
// suppressed ones; TotalMembers counts what is actually shown.
type Result struct {
	Groups           []Group  `json:"rcfeList"`
	TotalMembers     int      `json:"totalMembers"`
	TotalMatched     int      `json:"totalMatched"`
	TotalAssignedAll int      `json:"totalAssignedAll"`
	Excluded         Excluded `json:"excluded"`
	Path             string   `json:"path"`
	Needles          []string `json:"-"`
}
