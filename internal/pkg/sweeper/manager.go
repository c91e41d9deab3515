package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/outflo/outflo/internal/pkg/env"
	"github.com/outflo/outflo/internal/pkg/ingest"
)

// Pipeline is the part of the ingest service the background workers drive.
type Pipeline interface {
	Reprocess(ctx context.Context, limit int) (ingest.RunStats, error)
	ReleaseStaleClaims(ctx context.Context, ttl time.Duration) (int64, error)
}

// Config controls the background workers. A zero interval disables that worker.
type Config struct {
	ReprocessInterval  time.Duration
	ReprocessBatch     int
	ClaimTTL           time.Duration
	ClaimSweepInterval time.Duration
	RunTimeout         time.Duration
}

// ConfigFromEnv reads REPROCESS_INTERVAL, REPROCESS_BATCH, CLAIM_TTL and CLAIM_SWEEP_INTERVAL.
func ConfigFromEnv() Config {
	return Config{
		ReprocessInterval:  env.GetDuration("REPROCESS_INTERVAL", 5*time.Minute),
		ReprocessBatch:     env.GetInt("REPROCESS_BATCH", ingest.DefaultReprocessLimit),
		ClaimTTL:           env.GetDuration("CLAIM_TTL", 10*time.Minute),
		ClaimSweepInterval: env.GetDuration("CLAIM_SWEEP_INTERVAL", time.Minute),
		RunTimeout:         env.GetDuration("REPROCESS_TIMEOUT", 2*time.Minute),
	}
}

// Manager runs the periodic Batch Reprocessor and the stale-claim sweep.
type Manager struct {
	pipeline       Pipeline
	cfg            Config
	reprocessTick  *time.Ticker
	claimSweepTick *time.Ticker
	stopCh         chan struct{}
	wg             sync.WaitGroup
	mu             sync.Mutex
	running        bool
}

func NewManager(pipeline Pipeline, cfg Config) *Manager {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}
	return &Manager{
		pipeline: pipeline,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background workers.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Sweeper] Starting background workers")

	if m.cfg.ReprocessInterval > 0 {
		m.reprocessTick = time.NewTicker(m.cfg.ReprocessInterval)
		m.wg.Add(1)
		go m.reprocessWorker(m.reprocessTick, m.stopCh)
	}

	if m.cfg.ClaimSweepInterval > 0 && m.cfg.ClaimTTL > 0 {
		m.claimSweepTick = time.NewTicker(m.cfg.ClaimSweepInterval)
		m.wg.Add(1)
		go m.claimSweepWorker(m.claimSweepTick, m.stopCh)
	}

	log.Info("[Sweeper] Started successfully")
}

// Stop stops the workers and waits for an in-flight run to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Sweeper] Stopping background workers...")

	if m.reprocessTick != nil {
		m.reprocessTick.Stop()
	}
	if m.claimSweepTick != nil {
		m.claimSweepTick.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	log.Info("[Sweeper] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) reprocessWorker(ticker *time.Ticker, stopCh <-chan struct{}) {
	defer m.wg.Done()
	log.Infof("[Sweeper] Started reprocess worker (interval: %v, batch: %d)", m.cfg.ReprocessInterval, ingest.ClampLimit(m.cfg.ReprocessBatch))

	for {
		select {
		case <-stopCh:
			log.Info("[Sweeper] Reprocess worker stopping")
			return
		case <-ticker.C:
			m.RunReprocessOnce(stopCh)
		}
	}
}

func (m *Manager) claimSweepWorker(ticker *time.Ticker, stopCh <-chan struct{}) {
	defer m.wg.Done()
	log.Infof("[Sweeper] Started stale claim worker (interval: %v, ttl: %v)", m.cfg.ClaimSweepInterval, m.cfg.ClaimTTL)

	for {
		select {
		case <-stopCh:
			log.Info("[Sweeper] Stale claim worker stopping")
			return
		case <-ticker.C:
			m.RunClaimSweepOnce(stopCh)
		}
	}
}

// RunReprocessOnce runs one bounded batch. Closing stopCh cancels it.
func (m *Manager) RunReprocessOnce(stopCh <-chan struct{}) ingest.RunStats {
	ctx, cancel := m.runContext(stopCh)
	defer cancel()

	stats, err := m.pipeline.Reprocess(ctx, m.cfg.ReprocessBatch)
	if err != nil {
		log.Errorf("[Sweeper] Reprocess run error: %v", err)
	}
	return stats
}

// RunClaimSweepOnce releases claims older than the configured TTL.
func (m *Manager) RunClaimSweepOnce(stopCh <-chan struct{}) int64 {
	ctx, cancel := m.runContext(stopCh)
	defer cancel()

	n, err := m.pipeline.ReleaseStaleClaims(ctx, m.cfg.ClaimTTL)
	if err != nil {
		log.Errorf("[Sweeper] Stale claim sweep error: %v", err)
	}
	return n
}

func (m *Manager) runContext(stopCh <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RunTimeout)
	if stopCh == nil {
		return ctx, cancel
	}
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
