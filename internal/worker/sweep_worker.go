// Package worker hosts the background loops: the detection sweep and the
// deadline checks. Both run inside the API process and stop with it.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/parkfair/contest-service/internal/persistence"
	"github.com/parkfair/contest-service/internal/sweep"
)

const sweepLockKey = "lock:detection-sweep"

// StartSweepWorker runs detection passes on a fixed interval until ctx is
// cancelled. The redis advisory lock keeps concurrent replicas from
// sweeping simultaneously; without redis the lock degrades to a no-op and
// idempotent detection absorbs the overlap.
func StartSweepWorker(ctx context.Context, sweeper *sweep.Sweeper, redis *persistence.Redis, interval time.Duration, paused bool, logger *zap.Logger) {
	if paused {
		logger.Warn("detection sweep disabled by kill switch")
		return
	}
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		runSweep(ctx, sweeper, redis, interval, logger)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runSweep(ctx, sweeper, redis, interval, logger)
			}
		}
	}()
}

func runSweep(ctx context.Context, sweeper *sweep.Sweeper, redis *persistence.Redis, interval time.Duration, logger *zap.Logger) {
	if !redis.AcquireLock(ctx, sweepLockKey, interval/2) {
		logger.Debug("detection sweep already running elsewhere")
		return
	}
	defer redis.ReleaseLock(ctx, sweepLockKey)

	started := time.Now()
	created, err := sweeper.Run(ctx)
	if err != nil {
		logger.Error("detection sweep failed", zap.Error(err))
		return
	}
	logger.Info("detection sweep finished",
		zap.Int("tickets_created", created),
		zap.Duration("took", time.Since(started)))
}
