package state

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultIdleTTL         = 30 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

// CleanupJob periodically evicts idle sessions from a Store.
type CleanupJob struct {
	store    Store
	idleTTL  time.Duration
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewCleanupJob(store Store, cfg Config) *CleanupJob {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	return &CleanupJob{
		store:    store,
		idleTTL:  cfg.IdleTTL,
		interval: cfg.CleanupInterval,
		logger:   log.Logger.With().Str("component", "state.cleanup").Logger(),
	}
}

// Start launches the eviction loop. Calling Start on a running job is a no-op.
func (j *CleanupJob) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}
	j.running = true
	j.stop = make(chan struct{})
	j.done = make(chan struct{})

	go j.run(ctx, j.stop, j.done)

	j.logger.Info().Dur("idle_ttl", j.idleTTL).Dur("interval", j.interval).Msg("session cleanup started")
}

// Stop ends the loop and waits for it to exit.
func (j *CleanupJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	close(j.stop)
	done := j.done
	j.mu.Unlock()

	<-done
	j.logger.Info().Msg("session cleanup stopped")
}

// RunOnce performs a single eviction pass.
func (j *CleanupJob) RunOnce(ctx context.Context) (int, error) {
	return j.store.EvictIdle(ctx, j.idleTTL)
}

func (j *CleanupJob) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			evicted, err := j.RunOnce(ctx)
			if err != nil {
				j.logger.Error().Err(err).Msg("session cleanup failed")
				continue
			}
			if evicted > 0 {
				j.logger.Info().Int("evicted", evicted).Msg("idle sessions evicted")
			}
		}
	}
}
