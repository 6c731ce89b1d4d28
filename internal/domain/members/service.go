package members

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcfe/casesync/internal/platform/caspio"
	"github.com/rcfe/casesync/internal/platform/telemetry"
)

const (
	metadataName = "members"

	// incrementalOverlap re-reads a short window before the last sync so
	// rows updated while it ran are not skipped.
	incrementalOverlap = 5 * time.Minute

	readPageSize = 1000
	readMaxPages = 1000
)

// Upstream opens an authenticated paging session against the remote platform.
type Upstream interface {
	Session(ctx context.Context) (caspio.Pager, error)
}

// RefreshTrigger queues a background sync without waiting for it.
type RefreshTrigger interface {
	Trigger(mode SyncMode) bool
	Busy() bool
}

type CacheOptions struct {
	Table     string
	PageSize  int
	MaxPages  int
	Freshness time.Duration
}

// Cache is the members cache: sync from upstream, freshness policy and reads.
type Cache struct {
	repo      Repository
	upstream  Upstream
	table     string
	pageSize  int
	maxPages  int
	freshness time.Duration
	logger    zerolog.Logger
	metrics   *telemetry.Metrics
	refresher RefreshTrigger
	now       func() time.Time

	mu      sync.Mutex
	syncing atomic.Bool
}

func NewCache(repo Repository, upstream Upstream, opts CacheOptions, logger zerolog.Logger, metrics *telemetry.Metrics) *Cache {
	if opts.PageSize <= 0 || opts.PageSize > caspio.MaxPageSize {
		opts.PageSize = caspio.MaxPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 100
	}
	if opts.Freshness <= 0 {
		opts.Freshness = time.Hour
	}
	return &Cache{
		repo:      repo,
		upstream:  upstream,
		table:     opts.Table,
		pageSize:  opts.PageSize,
		maxPages:  opts.MaxPages,
		freshness: opts.Freshness,
		logger:    logger.With().Str("component", "members_cache").Logger(),
		metrics:   metrics,
		now:       time.Now,
	}
}

// SetRefresher attaches the background worker used when the cache is stale.
func (c *Cache) SetRefresher(r RefreshTrigger) {
	c.refresher = r
}

// Sync pulls rows from upstream and upserts them by client id. Pages that
// succeed before an upstream failure are kept and the result is marked
// incomplete; if no page could be fetched the error wraps ErrCacheUnavailable.
func (c *Cache) Sync(ctx context.Context, mode SyncMode, since *time.Time) (*SyncResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncing.Store(true)
	defer c.syncing.Store(false)

	started := c.now().UTC()
	prev, err := c.repo.GetSyncMetadata(ctx, metadataName)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load sync metadata: %w", err)
	}

	var where caspio.Where
	if mode == SyncIncremental {
		if since == nil && prev != nil && prev.LastSyncAt != nil {
			s := prev.LastSyncAt.Add(-incrementalOverlap)
			since = &s
		}
		if since == nil {
			mode = SyncFull
		} else {
			where = where.After(colLastUpdated, *since)
		}
	}
	if mode != SyncIncremental {
		mode = SyncFull
	}

	res := &SyncResult{Mode: mode, Complete: true, LastSyncTime: started}
	fetchErr := c.fetchAll(ctx, where, started, res)

	meta := &SyncMetadata{
		Name:          metadataName,
		LastAttemptAt: started,
		Mode:          mode,
		Pages:         res.Pages,
		Complete:      res.Complete,
	}
	if prev != nil {
		meta.LastSyncAt = prev.LastSyncAt
		meta.RowCount = prev.RowCount
	}
	if fetchErr != nil {
		meta.LastError = fetchErr.Error()
	}

	if res.Pages == 0 {
		c.saveMetadata(ctx, meta)
		c.metrics.SyncFailed(string(mode))
		c.logger.Error().Err(fetchErr).Str("mode", string(mode)).Msg("member sync fetched no pages")
		return nil, fmt.Errorf("%w: %w", ErrCacheUnavailable, fetchErr)
	}

	if res.Complete {
		meta.LastSyncAt = &started
	}
	if n, err := c.repo.Count(ctx); err == nil {
		meta.RowCount = n
	}
	c.saveMetadata(ctx, meta)

	elapsed := c.now().Sub(started)
	c.metrics.SyncFinished(string(mode), res.Count, res.Complete, elapsed)
	ev := c.logger.Info()
	if !res.Complete {
		ev = c.logger.Warn().AnErr("fetch_error", fetchErr)
	}
	ev.Str("mode", string(mode)).Int("rows", res.Count).Int("pages", res.Pages).
		Bool("complete", res.Complete).Dur("elapsed", elapsed).Msg("member sync finished")
	return res, nil
}

func (c *Cache) fetchAll(ctx context.Context, where caspio.Where, now time.Time, res *SyncResult) error {
	pager, err := c.upstream.Session(ctx)
	if err != nil {
		res.Complete = false
		return fmt.Errorf("open session: %w", err)
	}
	for page := 1; ; page++ {
		if page > c.maxPages {
			c.logger.Warn().Int("max_pages", c.maxPages).Msg("member sync stopped at page ceiling")
			res.Complete = false
			return nil
		}
		rows, err := pager.FetchPage(ctx, c.table, where, page, c.pageSize)
		if err != nil {
			res.Complete = false
			return fmt.Errorf("fetch page %d: %w", page, err)
		}
		res.Pages++

		batch := make([]*Member, 0, len(rows))
		for _, row := range rows {
			if m := FromRow(row, now); m != nil {
				batch = append(batch, m)
			}
		}
		if err := c.repo.Upsert(ctx, batch); err != nil {
			res.Complete = false
			return fmt.Errorf("store page %d: %w", page, err)
		}
		res.Count += len(batch)

		if len(rows) < c.pageSize {
			return nil
		}
	}
}

func (c *Cache) saveMetadata(ctx context.Context, meta *SyncMetadata) {
	if err := c.repo.SaveSyncMetadata(ctx, meta); err != nil {
		c.logger.Warn().Err(err).Msg("failed to save sync metadata")
	}
}

// Read scans the whole cache and returns the members accepted by filter.
// A nil filter returns every row.
func (c *Cache) Read(ctx context.Context, filter func(*Member) bool) ([]*Member, error) {
	var out []*Member
	for page := 0; page < readMaxPages; page++ {
		rows, err := c.repo.ScanPage(ctx, readPageSize, page*readPageSize)
		if err != nil {
			return nil, fmt.Errorf("read members: %w", err)
		}
		if page == 0 && len(rows) == 0 {
			return nil, ErrCacheEmpty
		}
		for _, m := range rows {
			if filter == nil || filter(m) {
				out = append(out, m)
			}
		}
		if len(rows) < readPageSize {
			break
		}
	}
	return out, nil
}

func (c *Cache) Get(ctx context.Context, clientID string) (*Member, error) {
	return c.repo.Get(ctx, clientID)
}

func (c *Cache) Count(ctx context.Context) (int, error) {
	return c.repo.Count(ctx)
}

func (c *Cache) FindBySearchKey(ctx context.Context, key string, limit int) ([]*Member, error) {
	return c.repo.FindBySearchKey(ctx, key, limit)
}

func (c *Cache) ScanPage(ctx context.Context, limit, offset int) ([]*Member, error) {
	return c.repo.ScanPage(ctx, limit, offset)
}

// Status reports freshness without triggering anything.
func (c *Cache) Status(ctx context.Context) (CacheStatus, error) {
	var st CacheStatus
	n, err := c.repo.Count(ctx)
	if err != nil {
		return st, fmt.Errorf("count members: %w", err)
	}
	st.RowCount = n
	meta, err := c.repo.GetSyncMetadata(ctx, metadataName)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return st, fmt.Errorf("load sync metadata: %w", err)
	}
	if meta != nil {
		st.LastSyncAt = meta.LastSyncAt
		st.LastError = meta.LastError
	}
	st.Refreshing = c.syncing.Load() || (c.refresher != nil && c.refresher.Busy())

	switch {
	case n == 0:
		st.State = StateEmpty
	case st.LastSyncAt == nil || c.now().Sub(*st.LastSyncAt) >= c.freshness:
		st.State = StateStale
	default:
		st.State = StateFresh
	}
	return st, nil
}

// EnsureFresh returns the current status and, when the cache is stale or
// empty, queues a background sync. It never waits for the sync.
func (c *Cache) EnsureFresh(ctx context.Context) (CacheStatus, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return st, err
	}
	if c.refresher == nil || st.State == StateFresh {
		return st, nil
	}
	mode := SyncIncremental
	if st.State == StateEmpty {
		mode = SyncFull
	}
	if c.refresher.Trigger(mode) {
		c.logger.Debug().Str("state", st.State).Str("mode", string(mode)).Msg("queued member refresh")
	}
	st.Refreshing = true
	return st, nil
}
