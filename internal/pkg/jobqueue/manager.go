package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/ManuelReschke/PlaceFox/internal/pkg/billing"
	"github.com/gofiber/fiber/v2/log"
)

// Replayer re-runs stored billing events that never completed.
type Replayer interface {
	ReplayPending(ctx context.Context, opts billing.ReplayOptions) (billing.ReplaySummary, error)
}

// Manager runs the background replay of failed billing events.
type Manager struct {
	replayer     Replayer
	interval     time.Duration
	opts         billing.ReplayOptions
	replayTicker *time.Ticker
	cancel       context.CancelFunc
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	running      bool
}

// NewManager creates a stopped manager. A non-positive interval defaults to
// ten minutes.
func NewManager(replayer Replayer, interval time.Duration, opts billing.ReplayOptions) *Manager {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Manager{
		replayer: replayer,
		interval: interval,
		opts:     opts,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the replay worker
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true

	m.replayTicker = time.NewTicker(m.interval)
	m.wg.Add(1)
	go m.replayWorker(ctx, m.stopCh, m.replayTicker)

	log.Infof("[JobQueue Manager] Started replay worker (interval: %v)", m.interval)
}

// Stop stops the replay worker and waits for an in-progress sweep.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping replay worker...")

	if m.replayTicker != nil {
		m.replayTicker.Stop()
	}
	close(m.stopCh)
	m.cancel()
	m.running = false

	m.wg.Wait()

	log.Info("[JobQueue Manager] Stopped successfully")
}

func (m *Manager) replayWorker(ctx context.Context, stopCh <-chan struct{}, ticker *time.Ticker) {
	defer m.wg.Done()
	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Replay worker stopping")
			return
		case <-ticker.C:
			m.RunReplayOnce(ctx)
		}
	}
}

// RunReplayOnce performs a single sweep.
func (m *Manager) RunReplayOnce(ctx context.Context) billing.ReplaySummary {
	log.Debug("[JobQueue Manager] Running replay sweep for failed billing events")
	sum, err := m.replayer.ReplayPending(ctx, m.opts)
	if err != nil {
		log.Errorf("[JobQueue Manager] Replay sweep error: %v", err)
	}
	return sum
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
