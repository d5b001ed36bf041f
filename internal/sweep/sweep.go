// Package sweep polls the violation source for every monitored plate and
// hands new tickets to the lifecycle machine. One plate failing never stops
// the rest of the run.
package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jackc/pgx/v5"

	"github.com/parkfair/contest-service/internal/collaborator"
	"github.com/parkfair/contest-service/internal/deadline"
	"github.com/parkfair/contest-service/internal/defense"
	"github.com/parkfair/contest-service/internal/domain"
	"github.com/parkfair/contest-service/internal/lifecycle"
	"github.com/parkfair/contest-service/internal/repository"
)

// Sweeper runs detection passes over all active plates.
type Sweeper struct {
	plates   repository.PlateRepository
	tickets  repository.TicketRepository
	source   collaborator.ViolationSource
	machine  *lifecycle.Machine
	logger   *zap.Logger
	lookback time.Duration
	spacing  time.Duration
	now      func() time.Time
	// sleep is injectable so tests do not wait out the plate spacing.
	sleep func(time.Duration)
}

// Options configures a Sweeper.
type Options struct {
	Plates       repository.PlateRepository
	Tickets      repository.TicketRepository
	Source       collaborator.ViolationSource
	Machine      *lifecycle.Machine
	Logger       *zap.Logger
	LookbackDays int
	PlateSpacing time.Duration
	Now          func() time.Time
	Sleep        func(time.Duration)
}

// New builds a Sweeper.
func New(opts Options) *Sweeper {
	lookbackDays := opts.LookbackDays
	if lookbackDays <= 0 {
		lookbackDays = 90
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Sweeper{
		plates:   opts.Plates,
		tickets:  opts.Tickets,
		source:   opts.Source,
		machine:  opts.Machine,
		logger:   opts.Logger,
		lookback: time.Duration(lookbackDays) * 24 * time.Hour,
		spacing:  opts.PlateSpacing,
		now:      now,
		sleep:    sleep,
	}
}

// Run performs one full detection pass. It returns the number of tickets
// created; the error is non-nil only when the plate listing itself fails.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	plates, err := s.plates.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for i, plate := range plates {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		if i > 0 && s.spacing > 0 {
			s.sleep(s.spacing)
		}
		n, err := s.sweepPlate(ctx, plate)
		if err != nil {
			// isolate the failure and keep going
			s.logger.Warn("plate sweep failed",
				zap.String("plate_id", plate.ID),
				zap.String("plate", plate.Plate),
				zap.Error(err))
			continue
		}
		created += n
	}
	return created, nil
}

func (s *Sweeper) sweepPlate(ctx context.Context, plate domain.MonitoredPlate) (int, error) {
	since := s.now().Add(-s.lookback)
	records, err := s.source.RecentViolations(ctx, plate.Plate, plate.State, since)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, record := range records {
		if record.ExternalNumber == "" {
			continue
		}
		existing, err := s.tickets.GetByExternalNumber(ctx, plate.AccountID, plate.ID, record.ExternalNumber)
		switch {
		case err == nil:
			s.reconcile(ctx, existing, record)
			continue
		case err != pgx.ErrNoRows:
			s.logger.Warn("ticket lookup failed",
				zap.String("external_number", record.ExternalNumber),
				zap.Error(err))
			continue
		}

		if record.IssueDate.Before(since) {
			// source ignored the window; such a ticket would be created
			// with every deadline already expired
			continue
		}
		if record.Settled() {
			// closed at the source before we ever saw it, nothing to contest
			continue
		}
		if err := s.createTicket(ctx, plate, record); err != nil {
			s.logger.Warn("ticket creation failed",
				zap.String("external_number", record.ExternalNumber),
				zap.Error(err))
			continue
		}
		created++
	}
	return created, nil
}

// reconcile folds the source's current disposition into a known ticket.
func (s *Sweeper) reconcile(ctx context.Context, ticket *domain.Ticket, record collaborator.ViolationRecord) {
	switch {
	case record.Dismissed():
		if err := s.machine.MarkDismissed(ctx, ticket.ID, record.Disposition); err != nil {
			s.logger.Warn("dismissal update failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	case ticket.Status == domain.TicketStatusMailed && record.Settled():
		if err := s.machine.MarkLost(ctx, ticket.ID, record.Disposition); err != nil {
			s.logger.Warn("loss update failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
}

func (s *Sweeper) createTicket(ctx context.Context, plate domain.MonitoredPlate, record collaborator.ViolationRecord) error {
	category := defense.CategoryForCode(record.Code)
	deadlines := deadline.Compute(record.IssueDate)
	ticket := &domain.Ticket{
		AccountID:        plate.AccountID,
		PlateID:          plate.ID,
		ExternalNumber:   record.ExternalNumber,
		ViolationCode:    record.Code,
		Category:         category,
		ViolationDate:    record.IssueDate,
		AmountCents:      record.AmountCents,
		Location:         record.Location,
		Status:           domain.TicketStatusFound,
		EvidenceDeadline: deadlines.EvidenceDeadline,
		AutoSendDeadline: deadlines.AutoSendDeadline,
		ContestDeadline:  deadlines.ContestDeadline,
		GuaranteeCovered: !category.IsCamera(),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return err
	}
	s.logger.Info("ticket detected",
		zap.String("ticket_id", ticket.ID),
		zap.String("external_number", ticket.ExternalNumber),
		zap.String("category", string(ticket.Category)))
	return s.machine.OnTicketDetected(ctx, ticket.ID)
}
