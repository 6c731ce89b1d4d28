package visits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rcfe/casesync/internal/domain/claims"
	"github.com/rcfe/casesync/internal/domain/members"
	"github.com/rcfe/casesync/internal/domain/staff"
	"github.com/rcfe/casesync/internal/platform/blobstore"
	"github.com/rcfe/casesync/internal/platform/db"
	"github.com/rcfe/casesync/internal/platform/middleware"
	"github.com/rcfe/casesync/internal/platform/notification"
	"github.com/rcfe/casesync/internal/platform/telemetry"
)

// MemberLookup reads the members cache.
type MemberLookup interface {
	Get(ctx context.Context, clientID string) (*members.Member, error)
}

type ClaimUpserter interface {
	UpsertVisitIntoClaim(ctx context.Context, v claims.VisitRef) (*claims.Draft, error)
}

type ContactResolver interface {
	ResolveContacts(ctx context.Context, assignment string) ([]staff.Contact, error)
}

type Options struct {
	Policy            *members.PlanPolicy
	LowScoreThreshold int
}

// Service accepts or rejects visit submissions, persists accepted ones and
// rolls them into claims.
type Service struct {
	members  MemberLookup
	repo     Repository
	locks    LockRepository
	tx       db.Transactor
	claims   ClaimUpserter
	policy   *members.PlanPolicy
	lowScore int
	validate *middleware.Validator

	contacts ContactResolver
	notifier notification.Notifier
	archive  blobstore.Store

	logger  zerolog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

func NewService(lookup MemberLookup, repo Repository, locks LockRepository, tx db.Transactor, claimUpserter ClaimUpserter,
	opts Options, logger zerolog.Logger, metrics *telemetry.Metrics) *Service {
	if tx == nil {
		tx = db.NopTransactor{}
	}
	if opts.Policy == nil {
		opts.Policy = members.DefaultPlanPolicy()
	}
	if opts.LowScoreThreshold == 0 {
		opts.LowScoreThreshold = DefaultLowScoreThreshold
	}
	return &Service{
		members:  lookup,
		repo:     repo,
		locks:    locks,
		tx:       tx,
		claims:   claimUpserter,
		policy:   opts.Policy,
		lowScore: opts.LowScoreThreshold,
		validate: middleware.NewValidator(),
		logger:   logger.With().Str("component", "visits").Logger(),
		metrics:  metrics,
		now:      time.Now,
	}
}

// SetNotifier enables alerts for flagged visits. contacts may be nil, in
// which case alerts go out without recipients.
func (s *Service) SetNotifier(contacts ContactResolver, n notification.Notifier) {
	s.contacts = contacts
	s.notifier = n
}

// SetArchive enables archiving of raw submissions.
func (s *Service) SetArchive(store blobstore.Store) {
	s.archive = store
}

// Submit runs the eligibility gates and, when they pass, stores the visit,
// takes the member's monthly slot and adds the visit to its claim in one
// transaction. A *RejectionError means nothing was written.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Outcome, error) {
	out, err := s.submit(ctx, sub)
	var rej *RejectionError
	switch {
	case errors.As(err, &rej):
		s.metrics.VisitOutcome(rej.Reason)
		s.logger.Info().Str("member_id", sub.MemberID).Str("reason", rej.Reason).Msg(rej.Message)
	case err != nil:
		s.metrics.VisitOutcome("error")
	case out.Flagged:
		s.metrics.VisitOutcome("flagged")
	default:
		s.metrics.VisitOutcome("accepted")
	}
	return out, err
}

func (s *Service) submit(ctx context.Context, sub Submission) (*Outcome, error) {
	sub.normalize()
	if err := s.validate.Validate(&sub); err != nil {
		return nil, reject(ReasonValidation, "%s", err.Error())
	}
	day, err := ParseVisitDate(sub.VisitDate)
	if err != nil {
		return nil, reject(ReasonValidation, "%s", err.Error())
	}

	// A known visit id replays its stored outcome without re-running the
	// gates or touching monthly locks.
	if sub.VisitID != "" {
		existing, err := s.repo.Get(ctx, sub.VisitID)
		switch {
		case err == nil:
			if err := sameVisit(existing, sub.MemberID, day); err != nil {
				return nil, err
			}
			return outcomeFor(existing), nil
		case !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("look up visit %s: %w", sub.VisitID, err)
		}
	}

	m, err := s.members.Get(ctx, sub.MemberID)
	if errors.Is(err, members.ErrNotFound) {
		return nil, reject(ReasonNotAuthorized, "member %s is not in the member list", sub.MemberID)
	}
	if err != nil {
		return nil, fmt.Errorf("look up member %s: %w", sub.MemberID, err)
	}
	if err := s.checkEligibility(m, day); err != nil {
		return nil, err
	}

	rec := s.buildRecord(sub, m, day)
	var inserted bool
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		winner, err := s.locks.Acquire(ctx, rec.MemberID, MonthKey(day), rec.ID)
		if err != nil {
			return err
		}
		if winner != rec.ID {
			return reject(ReasonDuplicateMonth, "member %s already has visit %s for %s", rec.MemberID, winner, MonthKey(day))
		}
		if inserted, err = s.repo.Upsert(ctx, rec); err != nil {
			return err
		}
		// Lost a race with a different submission under the same id: roll
		// back so the lock taken above does not survive.
		if !inserted {
			if err := sameVisit(rec, sub.MemberID, day); err != nil {
				return err
			}
		}
		if s.claims != nil {
			d, err := s.claims.UpsertVisitIntoClaim(ctx, rec.ClaimRef())
			if err != nil {
				return fmt.Errorf("add visit %s to claim: %w", rec.ID, err)
			}
			rec.ClaimID, rec.ClaimKey = &d.ID, &d.Key
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if inserted {
		s.logger.Info().Str("visit_id", rec.ID).Str("member_id", rec.MemberID).Bool("flagged", rec.Flagged).
			Strs("reasons", rec.FlagReasons).Msg("visit accepted")
		// Side effects must outlive a client that hangs up after the commit.
		bg := context.WithoutCancel(ctx)
		if rec.Flagged {
			s.notify(bg, rec, m)
		}
		s.archiveSubmission(bg, rec, sub)
	}
	return outcomeFor(rec), nil
}

// sameVisit rejects reuse of a stored visit id for another member or month.
func sameVisit(stored *Record, memberID string, day time.Time) error {
	if stored.MemberID != memberID || MonthKey(stored.VisitDate) != MonthKey(day) {
		return reject(ReasonValidation, "visit id %s is already recorded for member %s in %s",
			stored.ID, stored.MemberID, MonthKey(stored.VisitDate))
	}
	return nil
}

func (s *Service) checkEligibility(m *members.Member, day time.Time) error {
	if !m.IsAuthorized() {
		status := m.AuthorizationStatus
		if status == "" {
			status = "blank"
		}
		return reject(ReasonNotAuthorized, "member %s authorization status is %s", m.ClientID, status)
	}
	if m.OnHold {
		return reject(ReasonOnHold, "member %s is on hold: %s", m.ClientID, strings.TrimSpace(m.HoldText))
	}
	if m.AuthExpiredOn(day, s.policy) {
		return reject(ReasonAuthExpired, "member %s %s authorization ended %s",
			m.ClientID, m.PlanType, m.AuthEndDate.Format("2006-01-02"))
	}
	return nil
}

func (s *Service) buildRecord(sub Submission, m *members.Member, day time.Time) *Record {
	id := sub.VisitID
	if id == "" {
		id = uuid.NewString()
	}
	a := Assess(sub.Questionnaire, s.lowScore)
	rec := &Record{
		ID:             id,
		MemberID:       sub.MemberID,
		MemberName:     firstNonEmpty(sub.MemberName, m.FullName()),
		StaffID:        sub.StaffID,
		StaffEmail:     sub.StaffEmail,
		StaffName:      sub.StaffName,
		StaffAccountID: strings.TrimSpace(sub.StaffAccountID),
		RCFEID:         firstNonEmpty(sub.RCFEID, m.Facility.ID),
		RCFEName:       firstNonEmpty(sub.RCFEName, m.Facility.Name),
		VisitDate:      day,
		Questionnaire:  sub.Questionnaire,
		TotalScore:     a.TotalScore,
		Flagged:        a.Flagged,
		FlagReasons:    a.Reasons,
		Urgency:        a.Urgency,
		Latitude:       sub.Latitude,
		Longitude:      sub.Longitude,
		Status:         StatusPendingSignoff,
	}
	if a.Flagged {
		rec.Status = StatusFlagged
	}
	return rec
}

func (s *Service) notify(ctx context.Context, rec *Record, m *members.Member) {
	if s.notifier == nil {
		return
	}
	fv := notification.FlaggedVisit{
		VisitID:      rec.ID,
		MemberID:     rec.MemberID,
		MemberName:   rec.MemberName,
		FacilityName: rec.RCFEName,
		StaffName:    rec.StaffName,
		StaffEmail:   rec.StaffEmail,
		VisitDate:    rec.VisitDate,
		TotalScore:   rec.TotalScore,
		Reasons:      rec.FlagReasons,
		Urgency:      rec.Urgency,
	}
	if s.contacts != nil {
		assignment := joinNonEmpty("; ", m.StaffAssigned, m.SocialWorkerAssigned)
		contacts, err := s.contacts.ResolveContacts(ctx, assignment)
		if err != nil {
			s.logger.Warn().Err(err).Str("visit_id", rec.ID).Msg("resolve alert contacts")
		}
		for _, c := range contacts {
			fv.Recipients = append(fv.Recipients, notification.Recipient{Name: c.Name, Email: c.Email})
		}
	}
	if err := s.notifier.Notify(ctx, fv); err != nil {
		s.metrics.NotifyFailed()
		s.logger.Warn().Err(err).Str("visit_id", rec.ID).Msg("flagged visit notification failed")
	}
}

func (s *Service) archiveSubmission(ctx context.Context, rec *Record, sub Submission) {
	if s.archive == nil {
		return
	}
	sub.VisitID = rec.ID
	data, err := json.Marshal(sub)
	if err != nil {
		s.logger.Warn().Err(err).Str("visit_id", rec.ID).Msg("encode submission for archive")
		return
	}
	tags := map[string]string{
		"member_id": rec.MemberID,
		"flagged":   fmt.Sprintf("%t", rec.Flagged),
	}
	if _, err := s.archive.Put(ctx, blobstore.VisitArchiveKey(rec.ID, rec.VisitDate), "application/json", data, tags); err != nil {
		s.logger.Warn().Err(err).Str("visit_id", rec.ID).Msg("archive submission failed")
	}
}

func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.repo.Get(ctx, id)
}

// SignOff records the supervisor or staff sign-off. The first one sticks.
func (s *Service) SignOff(ctx context.Context, id, signer string) (*Record, error) {
	if strings.TrimSpace(signer) == "" {
		return nil, reject(ReasonValidation, "signer is required")
	}
	rec, err := s.repo.SignOff(ctx, id, signer, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("visit_id", id).Str("signed_off_by", *rec.SignedOffBy).Msg("visit signed off")
	return rec, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(sep string, vals ...string) string {
	var parts []string
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, sep)
}
