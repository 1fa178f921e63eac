package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/assessly/assessment-service/internal/repositories"
)

const sweepBatchSize = 100

// ExpirySweeper is the server-side safety net behind the client timer:
// it periodically auto-submits in_progress instances whose deadline has
// passed, so a closed laptop still produces a submitted attempt.
type ExpirySweeper struct {
	repo     repositories.Repository
	sessions SessionService
	logger   *slog.Logger
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewExpirySweeper(repo repositories.Repository, sessions SessionService, logger *slog.Logger, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		repo:     repo,
		sessions: sessions,
		logger:   logger,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Call Stop to shut it down.
func (w *ExpirySweeper) Start() {
	go w.run()
}

func (w *ExpirySweeper) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Expiry sweeper started", "interval", w.interval)

	for {
		select {
		case <-ticker.C:
			w.SweepOnce(context.Background())
		case <-w.stop:
			w.logger.Info("Expiry sweeper stopped")
			return
		}
	}
}

// SweepOnce closes one batch of expired instances. HandleTimeout is
// idempotent, so racing a concurrent submit is harmless.
func (w *ExpirySweeper) SweepOnce(ctx context.Context) int {
	now := time.Now()

	expired, err := w.repo.Instance().GetExpiredInstances(ctx, nil, now, sweepBatchSize)
	if err != nil {
		w.logger.Error("Failed to query expired instances", "error", err)
		return 0
	}

	closed := 0
	for _, instance := range expired {
		if err := w.sessions.HandleTimeout(ctx, instance.ID); err != nil {
			w.logger.Error("Failed to auto-submit expired instance",
				"instance_id", instance.ID,
				"error", err)
			continue
		}
		closed++
	}

	if closed > 0 {
		w.logger.Info("Expired instances auto-submitted", "count", closed)
	}
	return closed
}

// Stop halts the loop and waits for the in-flight sweep to finish.
func (w *ExpirySweeper) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	<-w.done
}
