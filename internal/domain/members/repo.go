package members

import "context"

// Repository is the local document cache of upstream member rows.
type Repository interface {
	// Upsert writes each member by client id, overwriting the stored row.
	Upsert(ctx context.Context, members []*Member) error
	Get(ctx context.Context, clientID string) (*Member, error)
	Count(ctx context.Context) (int, error)
	// FindBySearchKey returns rows whose precomputed search keys contain key.
	FindBySearchKey(ctx context.Context, key string, limit int) ([]*Member, error)
	// ScanPage lists rows ordered by client id.
	ScanPage(ctx context.Context, limit, offset int) ([]*Member, error)

	GetSyncMetadata(ctx context.Context, name string) (*SyncMetadata, error)
	SaveSyncMetadata(ctx context.Context, meta *SyncMetadata) error
}
