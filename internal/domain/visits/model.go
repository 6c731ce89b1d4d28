package visits

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rcfe/casesync/internal/domain/claims"
)

var ErrNotFound = errors.New("visit not found")

const (
	StatusPendingSignoff = "pending_signoff"
	StatusFlagged        = "flagged"
)

// Rejection reasons returned to the submitter.
const (
	ReasonValidation     = "validation_error"
	ReasonNotAuthorized  = "not_authorized"
	ReasonOnHold         = "on_hold"
	ReasonAuthExpired    = "auth_expired"
	ReasonDuplicateMonth = "duplicate_monthly_visit"
)

// Flag reasons.
const (
	FlagFacilityReview = "facility_review_requested"
	FlagCritical       = "critical_urgency"
	FlagActionRequired = "action_required_concern"
	FlagLowScore       = "low_score"
)

const (
	UrgencyLow      = "low"
	UrgencyMedium   = "medium"
	UrgencyHigh     = "high"
	UrgencyCritical = "critical"
)

const DefaultLowScoreThreshold = 10

// RejectionError is a synchronous refusal of a submission. Nothing was
// persisted when it is returned.
type RejectionError struct {
	Reason  string `json:"error"`
	Message string `json:"message"`
}

func (e *RejectionError) Error() string {
	return e.Reason + ": " + e.Message
}

func reject(reason, format string, args ...interface{}) *RejectionError {
	return &RejectionError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

type Concern struct {
	Category       string `json:"category" validate:"required"`
	Description    string `json:"description,omitempty" validate:"max=2000"`
	ActionRequired bool   `json:"actionRequired"`
}

type Questionnaire struct {
	Ratings                 map[string]int `json:"ratings,omitempty" validate:"omitempty,dive,min=0,max=5"`
	Concerns                []Concern      `json:"concerns,omitempty" validate:"omitempty,dive"`
	Urgency                 string         `json:"urgency,omitempty" validate:"omitempty,oneof=low medium high critical"`
	FacilityReviewRequested bool           `json:"facilityReviewRequested"`
	Notes                   string         `json:"notes,omitempty" validate:"max=4000"`
}

// Submission is the payload a staff member posts after a home visit.
type Submission struct {
	VisitID        string        `json:"visitId,omitempty" validate:"omitempty,max=64"`
	MemberID       string        `json:"memberId" validate:"required"`
	MemberName     string        `json:"memberName,omitempty"`
	StaffID        string        `json:"staffId" validate:"required"`
	StaffEmail     string        `json:"staffEmail,omitempty" validate:"omitempty,email"`
	StaffName      string        `json:"staffName,omitempty"`
	StaffAccountID string        `json:"staffAccountId,omitempty"`
	RCFEID         string        `json:"rcfeId,omitempty"`
	RCFEName       string        `json:"rcfeName,omitempty"`
	VisitDate      string        `json:"visitDate" validate:"required"`
	Questionnaire  Questionnaire `json:"questionnaire"`
	Latitude       *float64      `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude      *float64      `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
}

func (s *Submission) normalize() {
	s.VisitID = strings.TrimSpace(s.VisitID)
	s.MemberID = strings.TrimSpace(s.MemberID)
	s.StaffID = strings.TrimSpace(s.StaffID)
	s.StaffEmail = strings.ToLower(strings.TrimSpace(s.StaffEmail))
	s.VisitDate = strings.TrimSpace(s.VisitDate)
	s.Questionnaire.Urgency = strings.ToLower(strings.TrimSpace(s.Questionnaire.Urgency))
}

// ParseVisitDate accepts a plain date or an RFC 3339 timestamp and keeps
// only the calendar date.
func ParseVisitDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("visit date %q is not yyyy-mm-dd", s)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// MonthKey is the yyyy-mm bucket of the one-visit-per-month rule.
func MonthKey(day time.Time) string {
	return day.Format("2006-01")
}

// Assessment is the flagging verdict for a questionnaire.
type Assessment struct {
	TotalScore int
	Flagged    bool
	Reasons    []string
	Urgency    string
}

// Assess scores the questionnaire and decides whether supervisors must see it.
// The low-score rule only applies when at least one rating was given.
func Assess(q Questionnaire, lowScoreThreshold int) Assessment {
	var a Assessment
	for _, v := range q.Ratings {
		a.TotalScore += v
	}

	actionRequired := false
	for _, c := range q.Concerns {
		if c.ActionRequired {
			actionRequired = true
			break
		}
	}

	if q.FacilityReviewRequested {
		a.Reasons = append(a.Reasons, FlagFacilityReview)
	}
	if q.Urgency == UrgencyCritical {
		a.Reasons = append(a.Reasons, FlagCritical)
	}
	if actionRequired {
		a.Reasons = append(a.Reasons, FlagActionRequired)
	}
	if len(q.Ratings) > 0 && a.TotalScore <= lowScoreThreshold {
		a.Reasons = append(a.Reasons, FlagLowScore)
	}
	a.Flagged = len(a.Reasons) > 0

	switch {
	case q.Urgency == UrgencyCritical || len(a.Reasons) >= 2:
		a.Urgency = UrgencyCritical
	case actionRequired:
		a.Urgency = UrgencyHigh
	default:
		a.Urgency = UrgencyMedium
	}
	return a
}

// Record is a persisted visit. Core fields never change after the first
// write; sign-off and claim linkage are merged in later.
type Record struct {
	ID             string        `json:"id"`
	MemberID       string        `json:"memberId"`
	MemberName     string        `json:"memberName"`
	StaffID        string        `json:"staffId"`
	StaffEmail     string        `json:"staffEmail,omitempty"`
	StaffName      string        `json:"staffName,omitempty"`
	StaffAccountID string        `json:"staffAccountId,omitempty"`
	RCFEID         string        `json:"rcfeId,omitempty"`
	RCFEName       string        `json:"rcfeName,omitempty"`
	VisitDate      time.Time     `json:"visitDate"`
	Questionnaire  Questionnaire `json:"questionnaire"`
	TotalScore     int           `json:"totalScore"`
	Flagged        bool          `json:"flagged"`
	FlagReasons    []string      `json:"flagReasons"`
	Urgency        string        `json:"urgency"`
	Latitude       *float64      `json:"latitude,omitempty"`
	Longitude      *float64      `json:"longitude,omitempty"`
	Status         string        `json:"status"`
	SignedOffAt    *time.Time    `json:"signedOffAt,omitempty"`
	SignedOffBy    *string       `json:"signedOffBy,omitempty"`
	ClaimID        *string       `json:"claimId,omitempty"`
	ClaimKey       *string       `json:"claimKey,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

func (r *Record) ClaimRef() claims.VisitRef {
	return claims.VisitRef{
		ID:             r.ID,
		MemberID:       r.MemberID,
		MemberName:     r.MemberName,
		StaffID:        r.StaffID,
		StaffEmail:     r.StaffEmail,
		StaffAccountID: r.StaffAccountID,
		StaffName:      r.StaffName,
		VisitDate:      r.VisitDate,
	}
}

// Outcome is what an accepted submission returns.
type Outcome struct {
	VisitID     string   `json:"visitId"`
	Status      string   `json:"status"`
	Flagged     bool     `json:"flagged"`
	FlagReasons []string `json:"flagReasons"`
	Urgency     string   `json:"urgency"`
	TotalScore  int      `json:"totalScore"`
	NextActions []string `json:"nextActions"`
	ClaimID     string   `json:"claimId,omitempty"`
}

func outcomeFor(r *Record) *Outcome {
	o := &Outcome{
		VisitID:     r.ID,
		Status:      r.Status,
		Flagged:     r.Flagged,
		FlagReasons: r.FlagReasons,
		Urgency:     r.Urgency,
		TotalScore:  r.TotalScore,
		NextActions: nextActions(r),
	}
	if o.FlagReasons == nil {
		o.FlagReasons = []string{}
	}
	if r.ClaimID != nil {
		o.ClaimID = *r.ClaimID
	}
	return o
}

func nextActions(r *Record) []string {
	if !r.Flagged {
		return []string{"sign_off"}
	}
	actions := []string{"supervisor_review"}
	for _, reason := range r.FlagReasons {
		if reason == FlagActionRequired {
			actions = append(actions, "follow_up_action_required")
			break
		}
	}
	return append(actions, "sign_off")
}
