package claims

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rcfe/casesync/internal/platform/db"
	"github.com/rcfe/casesync/internal/platform/telemetry"
)

type Rates struct {
	FeeRate     float64
	GasFlatRate float64
}

func DefaultRates() Rates {
	return Rates{FeeRate: 45, GasFlatRate: 20}
}

// Service rolls accepted visits into claim drafts and manages their status.
type Service struct {
	repo    Repository
	tx      db.Transactor
	linker  VisitLinker
	rates   Rates
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

func NewService(repo Repository, tx db.Transactor, linker VisitLinker, rates Rates, logger zerolog.Logger, metrics *telemetry.Metrics) *Service {
	if tx == nil {
		tx = db.NopTransactor{}
	}
	return &Service{
		repo:    repo,
		tx:      tx,
		linker:  linker,
		rates:   rates,
		logger:  logger.With().Str("component", "claims").Logger(),
		metrics: metrics,
	}
}

// UpsertVisitIntoClaim adds the visit to its staff's draft for the visit day
// under a row lock and links the visit back to the claim. Repeating it for
// the same visit leaves the draft unchanged.
func (s *Service) UpsertVisitIntoClaim(ctx context.Context, v VisitRef) (*Draft, error) {
	identity := StaffIdentity(v)
	if identity == "" {
		return nil, ErrNoStaffIdentity
	}
	day := v.VisitDate.UTC().Truncate(24 * time.Hour)
	init := &Draft{
		ID:            uuid.NewString(),
		Key:           Key(identity, day),
		StaffIdentity: identity,
		StaffName:     v.StaffName,
		ClaimDate:     day,
		FeeRate:       s.rates.FeeRate,
		GasFlatRate:   s.rates.GasFlatRate,
		Status:        StatusDraft,
	}

	var out *Draft
	changed, late := false, false
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		d, err := s.repo.LockDraft(ctx, init)
		if err != nil {
			return err
		}
		if changed = d.AddVisit(v); changed {
			late = !d.Open()
			if err := s.repo.Save(ctx, d); err != nil {
				return fmt.Errorf("save claim %s: %w", d.Key, err)
			}
		}
		if s.linker != nil {
			if err := s.linker.SetClaim(ctx, v.ID, d.ID, d.Key); err != nil {
				return fmt.Errorf("link visit %s to claim: %w", v.ID, err)
			}
		}
		out = d
		return nil
	})
	if err != nil {
		s.metrics.ClaimUpserted("error")
		return nil, err
	}
	result := "unchanged"
	switch {
	case late:
		result = "late"
		s.logger.Warn().Str("claim_key", out.Key).Str("claim_status", out.Status).Str("visit_id", v.ID).
			Float64("total", out.TotalAmount).Msg("visit added to a claim already past draft; billing must reconcile")
	case changed:
		result = "added"
	}
	s.metrics.ClaimUpserted(result)
	s.logger.Debug().Str("claim_key", out.Key).Str("visit_id", v.ID).Int("visits", out.VisitCount).
		Float64("total", out.TotalAmount).Str("result", result).Msg("claim upserted")
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Draft, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, staffIdentity string, day *time.Time, limit, offset int) ([]*Draft, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.List(ctx, staffIdentity, day, limit, offset)
}

// UpdateStatus moves a claim along draft -> submitted -> approved -> paid,
// with submitted -> rejected -> draft for corrections.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*Draft, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	var out *Draft
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		d, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if d.Status == status {
			out = d
			return nil
		}
		if !canTransition(d.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, status)
		}
		if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		d.Status = status
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("claim_id", id).Str("status", status).Msg("claim status updated")
	return out, nil
}
