package claims

import (
	"context"
	"time"
)

type Repository interface {
	// LockDraft creates the draft for init.Key if absent, then returns the
	// stored row locked for the rest of the transaction.
	LockDraft(ctx context.Context, init *Draft) (*Draft, error)
	Save(ctx context.Context, d *Draft) error
	Get(ctx context.Context, id string) (*Draft, error)
	List(ctx context.Context, staffIdentity string, day *time.Time, limit, offset int) ([]*Draft, int, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

// VisitLinker back-fills the claim reference onto a visit record.
type VisitLinker interface {
	SetClaim(ctx context.Context, visitID, claimID, claimKey string) error
}
