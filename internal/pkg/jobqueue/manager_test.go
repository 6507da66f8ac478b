package jobqueue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuelReschke/PlaceFox/internal/pkg/billing"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

type fakeReplayer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeReplayer) ReplayPending(context.Context, billing.ReplayOptions) (billing.ReplaySummary, error) {
	f.calls.Add(1)
	return billing.ReplaySummary{Replayed: 1}, f.err
}

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager(&fakeReplayer{}, 0, billing.ReplayOptions{})
	assert.Equal(t, 10*time.Minute, m.interval)
	assert.False(t, m.IsRunning())
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := NewManager(&fakeReplayer{}, time.Minute, billing.ReplayOptions{})

	// Stop without starting should be safe
	m.Stop()
	assert.False(t, m.IsRunning())
}

func TestManager_StartRunsSweeps(t *testing.T) {
	r := &fakeReplayer{}
	m := NewManager(r, 10*time.Millisecond, billing.ReplayOptions{})

	m.Start()
	m.Start()
	assert.True(t, m.IsRunning())

	assert.Eventually(t, func() bool { return r.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	m.Stop()
	assert.False(t, m.IsRunning())
	calls := r.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, r.calls.Load(), "no sweeps after stop")

	// restartable
	m.Start()
	m.Stop()
}

func TestManager_RunReplayOnceSwallowsErrors(t *testing.T) {
	r := &fakeReplayer{err: errors.New("db down")}
	m := NewManager(r, time.Minute, billing.ReplayOptions{})

	sum := m.RunReplayOnce(context.Background())
	assert.Equal(t, 1, sum.Replayed)
	assert.Equal(t, int32(1), r.calls.Load())
}
