package members

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcfe/casesync/internal/platform/kv"
)

type scriptedSyncer struct {
	mu     sync.Mutex
	fails  int
	calls  []SyncMode
	called chan SyncMode
}

func (s *scriptedSyncer) Sync(_ context.Context, mode SyncMode, _ *time.Time) (*SyncResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, mode)
	n := len(s.calls)
	s.mu.Unlock()
	if s.called != nil {
		s.called <- mode
	}
	if n <= s.fails {
		return nil, errors.New("upstream down")
	}
	return &SyncResult{Mode: mode, Count: 7, Complete: true}, nil
}

func newTestRefresher(s Syncer, locker kv.Locker, retries int) *Refresher {
	return NewRefresher(s, locker, RefresherOptions{MaxRetries: retries, Backoff: time.Millisecond}, zerolog.Nop(), nil)
}

func TestRefresh_RetriesThenSucceeds(t *testing.T) {
	s := &scriptedSyncer{fails: 2}
	r := newTestRefresher(s, nil, 3)

	require.NoError(t, r.Refresh(context.Background(), SyncIncremental))
	assert.Len(t, s.calls, 3)

	st := r.State()
	assert.Empty(t, st.LastError)
	assert.Equal(t, 0, st.Failures)
	require.NotNil(t, st.LastResult)
	assert.Equal(t, 7, st.LastResult.Count)
	assert.False(t, st.Running)
}

func TestRefresh_GivesUpAfterMaxRetries(t *testing.T) {
	s := &scriptedSyncer{fails: 100}
	r := newTestRefresher(s, nil, 2)

	err := r.Refresh(context.Background(), SyncFull)
	require.Error(t, err)
	assert.Len(t, s.calls, 3)

	st := r.State()
	assert.Equal(t, "upstream down", st.LastError)
	assert.Equal(t, 1, st.Failures)
	require.NotNil(t, st.LastRunAt)
}

func TestRefresh_SkipsWhenLockHeld(t *testing.T) {
	locker := kv.NewLocalLocker()
	unlock, ok, err := locker.TryLock(context.Background(), syncLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer unlock()

	s := &scriptedSyncer{}
	r := newTestRefresher(s, locker, 0)
	require.NoError(t, r.Refresh(context.Background(), SyncFull))
	assert.Empty(t, s.calls)
}

func TestTrigger_Coalesces(t *testing.T) {
	r := newTestRefresher(&scriptedSyncer{}, nil, 0)

	assert.True(t, r.Trigger(SyncIncremental))
	assert.False(t, r.Trigger(SyncIncremental))
	assert.True(t, r.Trigger(SyncFull), "full supersedes a pending incremental")
	assert.False(t, r.Trigger(SyncIncremental))
	assert.Equal(t, SyncFull, r.State().Pending)
	assert.True(t, r.Busy())
}

func TestRun_ProcessesTrigger(t *testing.T) {
	s := &scriptedSyncer{called: make(chan SyncMode, 4)}
	r := newTestRefresher(s, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.Trigger(SyncFull)
	select {
	case mode := <-s.called:
		assert.Equal(t, SyncFull, mode)
	case <-time.After(2 * time.Second):
		t.Fatal("refresher never ran the triggered sync")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not stop on cancel")
	}
}
