package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/parkfair/contest-service/internal/deadline"
	"github.com/parkfair/contest-service/internal/domain"
	"github.com/parkfair/contest-service/internal/lifecycle"
)

// StartDeadlineWorker periodically applies the auto-send safety net and the
// halfway evidence reminder. Every pass is idempotent, so a missed or
// doubled tick is harmless.
func StartDeadlineWorker(ctx context.Context, machine *lifecycle.Machine, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		runDeadlinePass(ctx, machine, logger)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runDeadlinePass(ctx, machine, logger)
			}
		}
	}()
}

func runDeadlinePass(ctx context.Context, machine *lifecycle.Machine, logger *zap.Logger) {
	if err := machine.AutoSendDue(ctx); err != nil {
		logger.Error("auto-send pass failed", zap.Error(err))
	}

	now := time.Now().UTC()
	reminderDue := func(ticket domain.Ticket) bool {
		return now.After(deadline.ReminderPoint(ticket.ViolationDate))
	}
	if err := machine.SendEvidenceReminders(ctx, reminderDue); err != nil {
		logger.Error("evidence reminder pass failed", zap.Error(err))
	}
}
