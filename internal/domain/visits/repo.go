package visits

import (
	"context"
	"time"
)

type Repository interface {
	// Upsert writes r when its id is new. For an existing id the stored core
	// fields win: r is overwritten with the stored row and inserted is false.
	Upsert(ctx context.Context, r *Record) (inserted bool, err error)
	Get(ctx context.Context, id string) (*Record, error)
	SetClaim(ctx context.Context, visitID, claimID, claimKey string) error
	// SignOff records the first sign-off only and returns the stored row.
	SignOff(ctx context.Context, id, signer string, at time.Time) (*Record, error)
}

// LockRepository guards the one-visit-per-member-per-month rule.
type LockRepository interface {
	// Acquire returns the visit id holding the (member, month) lock, creating
	// it for visitID when absent.
	Acquire(ctx context.Context, memberID, monthKey, visitID string) (winner string, err error)
}
