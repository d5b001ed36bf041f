// Package lifecycle owns ticket and letter status. Every transition is a
// compare-and-swap against the persisted status; an invocation that loses
// the race is a silent no-op. Side effects are gated on the audit log so a
// retried transition cannot dispatch the same notification or mailing twice.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parkfair/contest-service/internal/approval"
	"github.com/parkfair/contest-service/internal/collaborator"
	"github.com/parkfair/contest-service/internal/defense"
	"github.com/parkfair/contest-service/internal/domain"
	"github.com/parkfair/contest-service/internal/events"
	"github.com/parkfair/contest-service/internal/intake"
	"github.com/parkfair/contest-service/internal/letter"
	"github.com/parkfair/contest-service/internal/observability"
	"github.com/parkfair/contest-service/internal/repository"
)

const systemActor = "system:lifecycle"

// allowedTransitions is the closed transition table. Won is reachable from
// every non-terminal state through the out-of-band dismissal signal.
var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusFound: {
		domain.TicketStatusPendingEvidence,
		domain.TicketStatusWon,
	},
	domain.TicketStatusPendingEvidence: {
		domain.TicketStatusNeedsApproval,
		domain.TicketStatusEvidenceReceived,
		domain.TicketStatusWon,
	},
	domain.TicketStatusNeedsApproval: {
		domain.TicketStatusEvidenceReceived,
		domain.TicketStatusSkipped,
		domain.TicketStatusWon,
	},
	domain.TicketStatusEvidenceReceived: {
		domain.TicketStatusMailed,
		domain.TicketStatusWon,
	},
	domain.TicketStatusMailed: {
		domain.TicketStatusWon,
		domain.TicketStatusLost,
	},
	domain.TicketStatusWon:     {},
	domain.TicketStatusLost:    {},
	domain.TicketStatusSkipped: {},
}

func canTransition(from, to domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Dependencies bundles everything the machine needs.
type Dependencies struct {
	TicketRepo   repository.TicketRepository
	EvidenceRepo repository.EvidenceRepository
	LetterRepo   repository.LetterRepository
	AuditRepo    repository.AuditRepository
	AccountRepo  repository.AccountRepository
	Composer     *letter.Composer
	Mailer       collaborator.MailDispatcher
	Notifier     collaborator.Notifier
	Tokens       *approval.TokenManager
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	// Paused is the kill-switch snapshot: mail dispatch is skipped while
	// set, everything else (including evidence intake) keeps working.
	Paused bool
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Machine advances tickets through the contest lifecycle.
type Machine struct {
	tickets  repository.TicketRepository
	evidence repository.EvidenceRepository
	letters  repository.LetterRepository
	audit    repository.AuditRepository
	accounts repository.AccountRepository

	composer   *letter.Composer
	mailer     collaborator.MailDispatcher
	notifier   collaborator.Notifier
	tokens     *approval.TokenManager
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	paused     bool
	now        func() time.Time
}

// NewMachine constructs the state machine.
func NewMachine(deps Dependencies) *Machine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Machine{
		tickets:    deps.TicketRepo,
		evidence:   deps.EvidenceRepo,
		letters:    deps.LetterRepo,
		audit:      deps.AuditRepo,
		accounts:   deps.AccountRepo,
		composer:   deps.Composer,
		mailer:     deps.Mailer,
		notifier:   deps.Notifier,
		tokens:     deps.Tokens,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		paused:     deps.Paused,
		now:        now,
	}
}

// transition applies from->to iff the table allows it and the persisted
// status still equals from. A lost race returns (false, nil).
func (m *Machine) transition(ctx context.Context, ticketID string, from, to domain.TicketStatus) (bool, error) {
	if !canTransition(from, to) {
		return false, fmt.Errorf("transition %s -> %s not allowed", from, to)
	}
	applied, err := m.tickets.UpdateStatus(ctx, ticketID, from, to)
	if err != nil {
		return false, err
	}
	if applied {
		m.metrics.RecordTransition(string(from), string(to))
	}
	return applied, nil
}

// OnTicketDetected moves a freshly created ticket out of found, creates its
// letter with the category's default argument, and requests evidence from
// the user exactly once.
func (m *Machine) OnTicketDetected(ctx context.Context, ticketID string) error {
	ticket, err := m.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}

	applied, err := m.transition(ctx, ticket.ID, domain.TicketStatusFound, domain.TicketStatusPendingEvidence)
	if err != nil {
		return err
	}
	if !applied && ticket.Status != domain.TicketStatusFound {
		// another invocation already advanced it
		return nil
	}

	if applied {
		if err := m.audit.Append(ctx, &domain.AuditEntry{
			TicketID: ticket.ID,
			Actor:    "system:sweep",
			Action:   domain.AuditTicketDetected,
			Details: map[string]any{
				"external_number": ticket.ExternalNumber,
				"category":        ticket.Category,
			},
		}); err != nil {
			return err
		}
	}

	eval := defense.Evaluate(m.facts(ticket), nil)
	account, err := m.accounts.GetByID(ctx, ticket.AccountID)
	if err != nil {
		return err
	}
	body, source := m.composer.Compose(ctx, letter.ComposeInput{
		Ticket:     *ticket,
		Account:    *account,
		Evaluation: eval,
	})
	contestLetter := &domain.ContestLetter{
		TicketID:   ticket.ID,
		ArgumentID: eval.Selected.ID,
		Body:       body,
		Source:     source,
		Status:     domain.LetterStatusPendingEvidence,
	}
	if err := m.letters.Create(ctx, contestLetter); err != nil {
		return err
	}

	m.sendOnce(ctx, ticket.ID, domain.AuditEvidenceRequested, map[string]any{
		"evidence_deadline": ticket.EvidenceDeadline,
	}, func() error {
		subject := fmt.Sprintf("We found ticket %s - send us your evidence", ticket.ExternalNumber)
		msg := fmt.Sprintf(
			"We detected violation notice %s (%s) from %s and will contest it for you. Reply to this email with photos, receipts, or anything that supports your case by %s.",
			ticket.ExternalNumber,
			ticket.Category,
			ticket.ViolationDate.Format("January 2, 2006"),
			ticket.EvidenceDeadline.Format("January 2, 2006"),
		)
		return m.notifier.SendEmail(ctx, account.Email, subject, msg)
	})

	m.publish(ctx, events.Event{
		Type:      events.EventTicketDetected,
		TicketID:  ticket.ID,
		AccountID: ticket.AccountID,
		Actor:     systemActor,
		Payload: events.TicketDetectedPayload{
			ExternalNumber:   ticket.ExternalNumber,
			Category:         ticket.Category,
			AmountCents:      ticket.AmountCents,
			EvidenceDeadline: ticket.EvidenceDeadline,
		},
	})
	return nil
}

// OnEvidenceReceived integrates one inbound reply. The fingerprint
// identifies the delivery; redelivery of the same payload is a no-op.
// Mailing is the hard cutoff: evidence for a mailed or terminal ticket is
// dropped.
func (m *Machine) OnEvidenceReceived(ctx context.Context, ticketID, fingerprint string, reply intake.Reply) error {
	ticket, err := m.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.Status.IsTerminal() || ticket.Status == domain.TicketStatusMailed {
		m.logger.Info("evidence after mailing cutoff ignored",
			zap.String("ticket_id", ticket.ID),
			zap.String("status", string(ticket.Status)))
		return nil
	}

	deliveryAction := domain.AuditEvidenceReceived + ":" + fingerprint
	seen, err := m.audit.HasAction(ctx, ticket.ID, deliveryAction)
	if err != nil {
		return err
	}
	if seen {
		// reply already integrated; a redelivery only nudges a mailing
		// that may have failed transiently
		if ticket.Status == domain.TicketStatusEvidenceReceived {
			return m.TryMail(ctx, ticket.ID)
		}
		return nil
	}

	evidence := intake.Normalize(reply, ticket.EvidenceDeadline)
	evidence.TicketID = ticket.ID
	if err := m.evidence.Replace(ctx, evidence); err != nil {
		return err
	}

	account, err := m.accounts.GetByID(ctx, ticket.AccountID)
	if err != nil {
		return err
	}

	eval := defense.Evaluate(m.facts(ticket), evidence)
	if err := m.regenerateLetter(ctx, ticket, account, eval); err != nil {
		return err
	}

	if err := m.audit.Append(ctx, &domain.AuditEntry{
		TicketID: ticket.ID,
		Actor:    "user:" + ticket.AccountID,
		Action:   deliveryAction,
		Details: map[string]any{
			"kinds": evidence.Kinds(),
			"late":  evidence.Late,
		},
	}); err != nil {
		return err
	}

	m.publish(ctx, events.Event{
		Type:      events.EventEvidenceReceived,
		TicketID:  ticket.ID,
		AccountID: ticket.AccountID,
		Actor:     "user:" + ticket.AccountID,
		Payload: events.EvidenceReceivedPayload{
			Kinds: evidence.Kinds(),
			Late:  evidence.Late,
		},
	})

	// already past approval (auto-send fired, mail still pending): keep the
	// regenerated letter and retry mailing, no state to move
	if ticket.Status == domain.TicketStatusEvidenceReceived {
		return m.TryMail(ctx, ticket.ID)
	}
	if account.RequireApproval {
		return m.requestApproval(ctx, ticket, account)
	}
	return m.advanceToSend(ctx, ticket)
}

func (m *Machine) regenerateLetter(ctx context.Context, ticket *domain.Ticket, account *domain.Account, eval defense.Evaluation) error {
	contestLetter, err := m.letters.GetByTicket(ctx, ticket.ID)
	if err != nil {
		return err
	}
	body, source := m.composer.Compose(ctx, letter.ComposeInput{
		Ticket:     *ticket,
		Account:    *account,
		Evaluation: eval,
	})
	if err := m.letters.SetContent(ctx, contestLetter.ID, eval.Selected.ID, body, source); err != nil {
		return err
	}
	return m.audit.Append(ctx, &domain.AuditEntry{
		TicketID: ticket.ID,
		Actor:    systemActor,
		Action:   domain.AuditLetterRegenerated,
		Details: map[string]any{
			"argument_id": eval.Selected.ID,
			"win_rate":    eval.EstimatedWinRate,
			"source":      source,
		},
	})
}

// requestApproval moves the ticket to needs_approval and emails the
// approve/skip links once.
func (m *Machine) requestApproval(ctx context.Context, ticket *domain.Ticket, account *domain.Account) error {
	applied, err := m.transition(ctx, ticket.ID, ticket.Status, domain.TicketStatusNeedsApproval)
	if err != nil {
		if ticket.Status == domain.TicketStatusNeedsApproval {
			// already waiting; evidence was re-integrated, nothing to move
			return nil
		}
		return err
	}
	if !applied {
		return nil
	}

	contestLetter, err := m.letters.GetByTicket(ctx, ticket.ID)
	if err != nil {
		return err
	}
	if _, err := m.letters.UpdateStatus(ctx, contestLetter.ID, contestLetter.Status, domain.LetterStatusPendingApproval); err != nil {
		return err
	}

	m.sendOnce(ctx, ticket.ID, domain.AuditApprovalRequested, map[string]any{
		"letter_id": contestLetter.ID,
	}, func() error {
		approveToken, _, err := m.tokens.Generate(ticket.ID, account.ID, contestLetter.ID, approval.ActionApprove)
		if err != nil {
			return err
		}
		skipToken, _, err := m.tokens.Generate(ticket.ID, account.ID, contestLetter.ID, approval.ActionSkip)
		if err != nil {
			return err
		}
		subject := fmt.Sprintf("Your contest letter for ticket %s is ready", ticket.ExternalNumber)
		msg := fmt.Sprintf(
			"Review your contest letter. Approve: /approval/%s  Skip this contest: /approval/%s\nIf we don't hear from you, the letter mails automatically on %s so your deadline is never missed.",
			approveToken, skipToken,
			ticket.AutoSendDeadline.Format("January 2, 2006"),
		)
		return m.notifier.SendEmail(ctx, account.Email, subject, msg)
	})

	m.publish(ctx, events.Event{
		Type:      events.EventApprovalRequested,
		TicketID:  ticket.ID,
		AccountID: ticket.AccountID,
		Actor:     systemActor,
		Payload: events.ApprovalRequestedPayload{
			LetterID:         contestLetter.ID,
			ArgumentID:       contestLetter.ArgumentID,
			AutoSendDeadline: ticket.AutoSendDeadline,
		},
	})
	return nil
}

// advanceToSend moves the ticket into evidence_received and immediately
// attempts mailing.
func (m *Machine) advanceToSend(ctx context.Context, ticket *domain.Ticket) error {
	applied, err := m.transition(ctx, ticket.ID, ticket.Status, domain.TicketStatusEvidenceReceived)
	if err != nil {
		return err
	}
	if applied {
		contestLetter, err := m.letters.GetByTicket(ctx, ticket.ID)
		if err != nil {
			return err
		}
		if _, err := m.letters.UpdateStatus(ctx, contestLetter.ID, contestLetter.Status, domain.LetterStatusReady); err != nil {
			return err
		}
	}
	return m.TryMail(ctx, ticket.ID)
}

// OnApprovalAction consumes an approval link. Single use is enforced here by
// the state guard: once the ticket has left needs_approval every further
// token for it is rejected.
func (m *Machine) OnApprovalAction(ctx context.Context, claims *approval.Claims) error {
	ticket, err := m.tickets.GetByID(ctx, claims.TicketID)
	if err != nil {
		return err
	}
	if ticket.Status != domain.TicketStatusNeedsApproval {
		return ErrApprovalConsumed
	}

	switch claims.Action {
	case approval.ActionApprove:
		applied, err := m.transition(ctx, ticket.ID, domain.TicketStatusNeedsApproval, domain.TicketStatusEvidenceReceived)
		if err != nil {
			return err
		}
		if !applied {
			return ErrApprovalConsumed
		}
		m.recordApproval(ctx, ticket.ID, claims.AccountID, "approve")
		contestLetter, err := m.letters.GetByTicket(ctx, ticket.ID)
		if err != nil {
			return err
		}
		if _, err := m.letters.UpdateStatus(ctx, contestLetter.ID, contestLetter.Status, domain.LetterStatusReady); err != nil {
			return err
		}
		return m.TryMail(ctx, ticket.ID)

	case approval.ActionSkip:
		applied, err := m.transition(ctx, ticket.ID, domain.TicketStatusNeedsApproval, domain.TicketStatusSkipped)
		if err != nil {
			return err
		}
		if !applied {
			return ErrApprovalConsumed
		}
		m.recordApproval(ctx, ticket.ID, claims.AccountID, "skip")
		m.publish(ctx, events.Event{
			Type:      events.EventTicketSkipped,
			TicketID:  ticket.ID,
			AccountID: ticket.AccountID,
			Actor:     "user:" + claims.AccountID,
		})
		return nil
	}
	return fmt.Errorf("unknown approval action %q", claims.Action)
}

func (m *Machine) recordApproval(ctx context.Context, ticketID, accountID, action string) {
	if err := m.audit.Append(ctx, &domain.AuditEntry{
		TicketID: ticketID,
		Actor:    "user:" + accountID,
		Action:   domain.AuditApprovalAction,
		Details:  map[string]any{"action": action},
	}); err != nil {
		m.logger.Warn("audit append failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

// AutoSendDue applies the safety net: every ticket past its auto-send
// deadline proceeds to mailing, whether the user never sent any evidence
// (pending_evidence) or never answered the approval request
// (needs_approval). User inaction never blocks a contest; the letter
// created at detection carries the category's default argument.
func (m *Machine) AutoSendDue(ctx context.Context) error {
	for _, waiting := range []domain.TicketStatus{
		domain.TicketStatusPendingEvidence,
		domain.TicketStatusNeedsApproval,
	} {
		due, err := m.tickets.ListPastAutoSend(ctx, waiting, m.now())
		if err != nil {
			return err
		}
		for _, ticket := range due {
			applied, err := m.transition(ctx, ticket.ID, waiting, domain.TicketStatusEvidenceReceived)
			if err != nil {
				m.logger.Warn("auto-send transition failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
				continue
			}
			if !applied {
				continue
			}
			if err := m.audit.Append(ctx, &domain.AuditEntry{
				TicketID: ticket.ID,
				Actor:    systemActor,
				Action:   domain.AuditAutoSendTriggered,
				Details: map[string]any{
					"auto_send_deadline": ticket.AutoSendDeadline,
					"waited_in":          string(waiting),
				},
			}); err != nil {
				m.logger.Warn("audit append failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
			}
			contestLetter, err := m.letters.GetByTicket(ctx, ticket.ID)
			if err != nil {
				m.logger.Warn("letter lookup failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
				continue
			}
			if _, err := m.letters.UpdateStatus(ctx, contestLetter.ID, contestLetter.Status, domain.LetterStatusReady); err != nil {
				m.logger.Warn("letter status update failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
				continue
			}
			if err := m.TryMail(ctx, ticket.ID); err != nil {
				m.logger.Warn("auto-send mail attempt failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
			}
		}
	}
	return nil
}

// TryMail dispatches the letter for a ticket in evidence_received. The
// dispatch is audit-gated so a retried transition can never mail twice; a
// failed dispatch leaves the ticket unchanged and retry-safe.
func (m *Machine) TryMail(ctx context.Context, ticketID string) error {
	ticket, err := m.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.Status != domain.TicketStatusEvidenceReceived {
		return nil
	}
	if m.paused {
		m.logger.Info("mail dispatch paused by kill switch", zap.String("ticket_id", ticket.ID))
		return nil
	}

	contestLetter, err := m.letters.GetByTicket(ctx, ticket.ID)
	if err != nil {
		return err
	}
	if contestLetter.Status == domain.LetterStatusMailed {
		_, err := m.transition(ctx, ticket.ID, domain.TicketStatusEvidenceReceived, domain.TicketStatusMailed)
		return err
	}

	requested, err := m.audit.HasAction(ctx, ticket.ID, domain.AuditMailRequested)
	if err != nil {
		return err
	}
	if !requested {
		if err := m.mailer.RequestDispatch(ctx, ticket.ID, contestLetter.ID, contestLetter.Body); err != nil {
			// ticket stays in evidence_received; the deadline worker retries
			return fmt.Errorf("mail dispatch: %w", err)
		}
		m.metrics.RecordSideEffect(domain.AuditMailRequested)
		if err := m.audit.Append(ctx, &domain.AuditEntry{
			TicketID: ticket.ID,
			Actor:    systemActor,
			Action:   domain.AuditMailRequested,
			Details:  map[string]any{"letter_id": contestLetter.ID},
		}); err != nil {
			return err
		}
	}

	mailedAt := m.now()
	if _, err := m.letters.MarkMailed(ctx, contestLetter.ID, mailedAt); err != nil {
		return err
	}
	applied, err := m.transition(ctx, ticket.ID, domain.TicketStatusEvidenceReceived, domain.TicketStatusMailed)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	m.publish(ctx, events.Event{
		Type:      events.EventTicketMailed,
		TicketID:  ticket.ID,
		AccountID: ticket.AccountID,
		Actor:     systemActor,
		Payload: events.TicketMailedPayload{
			LetterID: contestLetter.ID,
			MailedAt: mailedAt,
		},
	})
	return nil
}

// ConfirmMail records the dispatcher's confirmation that the letter was
// physically mailed. Redeliveries are absorbed.
func (m *Machine) ConfirmMail(ctx context.Context, ticketID string, dispatchedAt time.Time) error {
	done, err := m.audit.HasAction(ctx, ticketID, domain.AuditMailConfirmed)
	if err != nil || done {
		return err
	}
	return m.audit.Append(ctx, &domain.AuditEntry{
		TicketID: ticketID,
		Actor:    "system:mail-dispatch",
		Action:   domain.AuditMailConfirmed,
		Details:  map[string]any{"dispatched_at": dispatchedAt},
	})
}

// MarkDismissed records an out-of-band dismissal from the violation source.
// Reachable from every non-terminal state; the user notification fires once
// no matter how many sweeps observe the dismissal.
func (m *Machine) MarkDismissed(ctx context.Context, ticketID, disposition string) error {
	for attempt := 0; attempt < 3; attempt++ {
		ticket, err := m.tickets.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status.IsTerminal() {
			return nil
		}
		applied, err := m.transition(ctx, ticket.ID, ticket.Status, domain.TicketStatusWon)
		if err != nil {
			return err
		}
		if !applied {
			continue
		}

		account, err := m.accounts.GetByID(ctx, ticket.AccountID)
		if err != nil {
			return err
		}
		m.sendOnce(ctx, ticket.ID, domain.AuditDismissedUserNotified, map[string]any{
			"disposition": disposition,
		}, func() error {
			subject := fmt.Sprintf("Ticket %s was dismissed", ticket.ExternalNumber)
			msg := fmt.Sprintf("Good news: violation notice %s has been dismissed (%s). No further action is needed.",
				ticket.ExternalNumber, disposition)
			return m.notifier.SendEmail(ctx, account.Email, subject, msg)
		})
		m.publish(ctx, events.Event{
			Type:      events.EventTicketDismissed,
			TicketID:  ticket.ID,
			AccountID: ticket.AccountID,
			Actor:     "system:sweep",
			Payload:   events.TicketDismissedPayload{Disposition: disposition},
		})
		return nil
	}
	return nil
}

// MarkLost records a liable finding on a mailed contest.
func (m *Machine) MarkLost(ctx context.Context, ticketID, disposition string) error {
	applied, err := m.transition(ctx, ticketID, domain.TicketStatusMailed, domain.TicketStatusLost)
	if err != nil || !applied {
		return err
	}
	return m.audit.Append(ctx, &domain.AuditEntry{
		TicketID: ticketID,
		Actor:    "system:sweep",
		Action:   "contest_lost",
		Details:  map[string]any{"disposition": disposition},
	})
}

// SendEvidenceReminders sends the single halfway reminder for tickets still
// waiting on evidence.
func (m *Machine) SendEvidenceReminders(ctx context.Context, reminderDue func(domain.Ticket) bool) error {
	pending, err := m.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses: []domain.TicketStatus{domain.TicketStatusPendingEvidence},
		Limit:    500,
	})
	if err != nil {
		return err
	}
	for _, ticket := range pending {
		if !reminderDue(ticket) {
			continue
		}
		account, err := m.accounts.GetByID(ctx, ticket.AccountID)
		if err != nil {
			m.logger.Warn("account lookup failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		m.sendOnce(ctx, ticket.ID, domain.AuditEvidenceReminder, nil, func() error {
			subject := fmt.Sprintf("Reminder: evidence for ticket %s due %s",
				ticket.ExternalNumber, ticket.EvidenceDeadline.Format("January 2"))
			msg := fmt.Sprintf("We're still contesting violation notice %s. Anything you can send before %s strengthens your case.",
				ticket.ExternalNumber, ticket.EvidenceDeadline.Format("January 2, 2006"))
			return m.notifier.SendEmail(ctx, account.Email, subject, msg)
		})
	}
	return nil
}

// sendOnce dispatches a side effect at most once per (ticket, action). Send
// failures are logged and left unrecorded so the next invocation retries.
func (m *Machine) sendOnce(ctx context.Context, ticketID, action string, details map[string]any, send func() error) {
	done, err := m.audit.HasAction(ctx, ticketID, action)
	if err != nil {
		m.logger.Warn("audit lookup failed", zap.String("ticket_id", ticketID), zap.String("action", action), zap.Error(err))
		return
	}
	if done {
		return
	}
	if err := send(); err != nil {
		m.logger.Warn("side effect failed",
			zap.String("ticket_id", ticketID),
			zap.String("action", action),
			zap.Error(err))
		return
	}
	m.metrics.RecordSideEffect(action)
	if err := m.audit.Append(ctx, &domain.AuditEntry{
		TicketID: ticketID,
		Actor:    systemActor,
		Action:   action,
		Details:  details,
	}); err != nil {
		m.logger.Warn("audit append failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (m *Machine) facts(ticket *domain.Ticket) defense.Facts {
	return defense.Facts{
		Category:      ticket.Category,
		ViolationCode: ticket.ViolationCode,
		ViolationDate: ticket.ViolationDate,
		Location:      ticket.Location,
	}
}

func (m *Machine) publish(ctx context.Context, event events.Event) {
	if m.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now()
	}
	_ = m.dispatcher.Publish(ctx, event)
}
