package members

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcfe/casesync/internal/platform/kv"
	"github.com/rcfe/casesync/internal/platform/telemetry"
)

const syncLockKey = "casesync:members:sync"

// Syncer is the part of the cache the refresher drives.
type Syncer interface {
	Sync(ctx context.Context, mode SyncMode, since *time.Time) (*SyncResult, error)
}

type RefresherOptions struct {
	Interval   time.Duration
	MaxRetries int
	Backoff    time.Duration
	LockTTL    time.Duration
}

// RefreshState is the observable state of the background worker.
type RefreshState struct {
	Running    bool        `json:"running"`
	Pending    SyncMode    `json:"pending,omitempty"`
	LastRunAt  *time.Time  `json:"last_run_at,omitempty"`
	LastResult *SyncResult `json:"last_result,omitempty"`
	LastError  string      `json:"last_error,omitempty"`
	Failures   int         `json:"consecutive_failures"`
}

// Refresher runs member syncs on one supervised goroutine. Triggers
// coalesce into a single pending run; a full request supersedes an
// incremental one. A distributed lock keeps replicas from syncing at once.
type Refresher struct {
	syncer     Syncer
	locker     kv.Locker
	interval   time.Duration
	maxRetries int
	backoff    time.Duration
	lockTTL    time.Duration
	logger     zerolog.Logger
	metrics    *telemetry.Metrics

	wake chan struct{}

	mu    sync.Mutex
	state RefreshState
}

func NewRefresher(syncer Syncer, locker kv.Locker, opts RefresherOptions, logger zerolog.Logger, metrics *telemetry.Metrics) *Refresher {
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if locker == nil {
		locker = kv.NewLocalLocker()
	}
	return &Refresher{
		syncer:     syncer,
		locker:     locker,
		interval:   opts.Interval,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		lockTTL:    opts.LockTTL,
		logger:     logger.With().Str("component", "members_refresher").Logger(),
		metrics:    metrics,
		wake:       make(chan struct{}, 1),
	}
}

// Trigger queues a sync and returns false when an equal or stronger run was
// already pending.
func (r *Refresher) Trigger(mode SyncMode) bool {
	r.mu.Lock()
	queued := false
	if r.state.Pending == "" || (mode == SyncFull && r.state.Pending != SyncFull) {
		r.state.Pending = mode
		queued = true
	}
	r.mu.Unlock()

	if !queued {
		r.metrics.RefreshEvent("coalesced")
		return false
	}
	r.metrics.RefreshEvent("queued")
	select {
	case r.wake <- struct{}{}:
	default:
	}
	return true
}

// Busy reports a running or pending sync.
func (r *Refresher) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Running || r.state.Pending != ""
}

func (r *Refresher) State() RefreshState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Run processes triggers, plus an incremental sync every interval, until ctx
// is cancelled.
func (r *Refresher) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if r.interval > 0 {
		t := time.NewTicker(r.interval)
		defer t.Stop()
		tick = t.C
	}
	r.logger.Info().Dur("interval", r.interval).Msg("member refresher started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("member refresher stopped")
			return nil
		case <-tick:
			r.Trigger(SyncIncremental)
		case <-r.wake:
			r.mu.Lock()
			mode := r.state.Pending
			r.state.Pending = ""
			r.mu.Unlock()
			if mode != "" {
				_ = r.Refresh(ctx, mode)
			}
		}
	}
}

// Refresh runs one sync now, retrying with exponential backoff.
func (r *Refresher) Refresh(ctx context.Context, mode SyncMode) error {
	unlock, ok, err := r.locker.TryLock(ctx, syncLockKey, r.lockTTL)
	if err != nil {
		r.metrics.RefreshEvent("lock_error")
		r.record(nil, err)
		r.logger.Warn().Err(err).Msg("member refresh lock unavailable")
		return err
	}
	if !ok {
		r.metrics.RefreshEvent("skipped_locked")
		r.logger.Debug().Msg("member refresh held by another worker")
		return nil
	}
	defer unlock()

	r.setRunning(true)
	defer r.setRunning(false)

	delay := r.backoff
	for attempt := 0; ; attempt++ {
		res, err := r.syncer.Sync(ctx, mode, nil)
		if err == nil {
			r.metrics.RefreshEvent("succeeded")
			r.record(res, nil)
			return nil
		}
		r.logger.Warn().Err(err).Int("attempt", attempt+1).Str("mode", string(mode)).Msg("member refresh failed")
		if attempt >= r.maxRetries {
			r.metrics.RefreshEvent("failed")
			r.record(nil, err)
			return err
		}
		r.metrics.RefreshEvent("retried")
		select {
		case <-ctx.Done():
			r.record(nil, ctx.Err())
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (r *Refresher) setRunning(v bool) {
	r.mu.Lock()
	r.state.Running = v
	r.mu.Unlock()
}

func (r *Refresher) record(res *SyncResult, err error) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.LastRunAt = &now
	if err != nil {
		r.state.LastError = err.Error()
		r.state.Failures++
		return
	}
	r.state.LastResult = res
	r.state.LastError = ""
	r.state.Failures = 0
}
