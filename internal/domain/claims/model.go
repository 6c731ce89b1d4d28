package claims

import (
	"errors"
	"math"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("claim not found")
	ErrInvalidStatus     = errors.New("invalid claim status")
	ErrInvalidTransition = errors.New("invalid claim status transition")
	ErrNoStaffIdentity   = errors.New("visit has no staff identity")
)

const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
	StatusApproved  = "approved"
	StatusPaid      = "paid"
	StatusRejected  = "rejected"
)

var transitions = map[string][]string{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusApproved, StatusRejected},
	StatusApproved:  {StatusPaid},
	StatusRejected:  {StatusDraft},
}

func ValidStatus(s string) bool {
	_, ok := transitions[s]
	return ok || s == StatusPaid
}

func canTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// VisitRef is the part of an accepted visit a claim needs.
type VisitRef struct {
	ID             string
	MemberID       string
	MemberName     string
	StaffID        string
	StaffEmail     string
	StaffAccountID string
	StaffName      string
	VisitDate      time.Time
}

// StaffIdentity prefers the account id, then the lowercased email, then the
// raw submitted staff id.
func StaffIdentity(v VisitRef) string {
	if id := strings.TrimSpace(v.StaffAccountID); id != "" {
		return id
	}
	if e := strings.ToLower(strings.TrimSpace(v.StaffEmail)); e != "" {
		return e
	}
	return strings.TrimSpace(v.StaffID)
}

// Key identifies the one draft per staff identity per day.
func Key(staffIdentity string, day time.Time) string {
	return staffIdentity + "|" + day.Format("2006-01-02")
}

type LineItem struct {
	VisitID    string  `json:"visitId"`
	MemberID   string  `json:"memberId"`
	MemberName string  `json:"memberName,omitempty"`
	VisitDate  string  `json:"visitDate"`
	Amount     float64 `json:"amount"`
}

// Draft is a per-staff, per-day billing claim.
type Draft struct {
	ID            string     `json:"id"`
	Key           string     `json:"claimKey"`
	StaffIdentity string     `json:"staffIdentity"`
	StaffName     string     `json:"staffName,omitempty"`
	ClaimDate     time.Time  `json:"claimDate"`
	VisitIDs      []string   `json:"visitIds"`
	LineItems     []LineItem `json:"lineItems"`
	FeeRate       float64    `json:"feeRate"`
	GasFlatRate   float64    `json:"gasFlatRate"`
	VisitCount    int        `json:"visitCount"`
	TotalAmount   float64    `json:"totalAmount"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Total is the claim amount for count visits: a fee per visit plus one gas
// allowance once there is any visit.
func Total(count int, feeRate, gasFlatRate float64) float64 {
	if count <= 0 {
		return 0
	}
	return round2(float64(count)*feeRate + gasFlatRate)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// AddVisit unions the visit into the draft and appends its line item if
// missing. It reports whether anything changed.
// Open reports whether billing still treats the draft as editable.
func (d *Draft) Open() bool {
	return d.Status == StatusDraft || d.Status == StatusRejected
}

func (d *Draft) AddVisit(v VisitRef) bool {
	changed := false
	if !contains(d.VisitIDs, v.ID) {
		d.VisitIDs = append(d.VisitIDs, v.ID)
		changed = true
	}
	hasItem := false
	for _, li := range d.LineItems {
		if li.VisitID == v.ID {
			hasItem = true
			break
		}
	}
	if !hasItem {
		d.LineItems = append(d.LineItems, LineItem{
			VisitID:    v.ID,
			MemberID:   v.MemberID,
			MemberName: v.MemberName,
			VisitDate:  v.VisitDate.Format("2006-01-02"),
			Amount:     d.FeeRate,
		})
		changed = true
	}
	if d.StaffName == "" && v.StaffName != "" {
		d.StaffName = v.StaffName
		changed = true
	}
	d.Recompute()
	return changed
}

// Recompute derives the count and total from the visit id set.
func (d *Draft) Recompute() {
	d.VisitCount = len(d.VisitIDs)
	d.TotalAmount = Total(d.VisitCount, d.FeeRate, d.GasFlatRate)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
