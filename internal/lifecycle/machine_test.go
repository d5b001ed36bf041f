package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/parkfair/contest-service/internal/approval"
	"github.com/parkfair/contest-service/internal/deadline"
	"github.com/parkfair/contest-service/internal/domain"
	"github.com/parkfair/contest-service/internal/events"
	"github.com/parkfair/contest-service/internal/intake"
	"github.com/parkfair/contest-service/internal/letter"
	"github.com/parkfair/contest-service/internal/observability"
	"github.com/parkfair/contest-service/internal/repository/memory"
)

type sentEmail struct {
	to      string
	subject string
	body    string
}

type fakeNotifier struct {
	mu     sync.Mutex
	emails []sentEmail
	fail   bool
}

func (n *fakeNotifier) SendEmail(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("smtp unavailable")
	}
	n.emails = append(n.emails, sentEmail{to: to, subject: subject, body: body})
	return nil
}

func (n *fakeNotifier) SendSMS(_ context.Context, _, _ string) error { return nil }

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.emails)
}

type fakeMailer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *fakeMailer) RequestDispatch(_ context.Context, _, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.err
}

func (m *fakeMailer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fixture struct {
	machine  *Machine
	tickets  *memory.TicketRepository
	letters  *memory.LetterRepository
	audit    *memory.AuditRepository
	evidence *memory.EvidenceRepository
	notifier *fakeNotifier
	mailer   *fakeMailer
	now      time.Time
}

func newFixture(t *testing.T, requireApproval, paused bool) *fixture {
	t.Helper()
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

	tickets := memory.NewTicketRepository()
	evidenceRepo := memory.NewEvidenceRepository()
	letters := memory.NewLetterRepository()
	audit := memory.NewAuditRepository()
	accounts := memory.NewAccountRepository()
	accounts.Put(domain.Account{
		ID:              "acct-1",
		Name:            "Jordan Rivera",
		Email:           "jordan@example.com",
		RequireApproval: requireApproval,
		Active:          true,
	})

	notifier := &fakeNotifier{}
	mailer := &fakeMailer{}
	logger := zap.NewNop()

	machine := NewMachine(Dependencies{
		TicketRepo:   tickets,
		EvidenceRepo: evidenceRepo,
		LetterRepo:   letters,
		AuditRepo:    audit,
		AccountRepo:  accounts,
		Composer:     letter.NewComposer(nil, time.Second, logger),
		Mailer:       mailer,
		Notifier:     notifier,
		Tokens:       approval.NewTokenManager("test-secret", 96),
		Dispatcher:   events.NewInMemoryDispatcher(),
		Metrics:      observability.NewMetrics(),
		Logger:       logger,
		Paused:       paused,
		Now:          func() time.Time { return now },
	})

	return &fixture{
		machine:  machine,
		tickets:  tickets,
		letters:  letters,
		audit:    audit,
		evidence: evidenceRepo,
		notifier: notifier,
		mailer:   mailer,
		now:      now,
	}
}

func (f *fixture) createTicket(t *testing.T, status domain.TicketStatus) *domain.Ticket {
	t.Helper()
	violationDate := f.now.AddDate(0, 0, -3)
	deadlines := deadline.Compute(violationDate)
	ticket := &domain.Ticket{
		AccountID:        "acct-1",
		PlateID:          "plate-1",
		ExternalNumber:   "9112345678",
		ViolationCode:    "0964125",
		Category:         domain.CategoryCitySticker,
		ViolationDate:    violationDate,
		AmountCents:      20000,
		Location:         "4500 N WESTERN AVE",
		Status:           status,
		EvidenceDeadline: deadlines.EvidenceDeadline,
		AutoSendDeadline: deadlines.AutoSendDeadline,
		ContestDeadline:  deadlines.ContestDeadline,
		GuaranteeCovered: true,
	}
	if err := f.tickets.Create(context.Background(), ticket); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

// detect runs the full detection handoff so the ticket has its letter.
func (f *fixture) detect(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket := f.createTicket(t, domain.TicketStatusFound)
	if err := f.machine.OnTicketDetected(context.Background(), ticket.ID); err != nil {
		t.Fatalf("OnTicketDetected: %v", err)
	}
	return ticket
}

func (f *fixture) status(t *testing.T, id string) domain.TicketStatus {
	t.Helper()
	ticket, err := f.tickets.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return ticket.Status
}

func stickerReply(fingerprint string) (string, intake.Reply) {
	return fingerprint, intake.Reply{
		Sender: "jordan@example.com",
		Body:   "Here's a photo of my city sticker on the windshield. I bought it at the currency exchange.",
		Attachments: []intake.AttachmentInput{
			{FileName: "sticker.jpg", ContentType: "image/jpeg"},
		},
		ReceivedAt: time.Date(2024, 5, 21, 9, 0, 0, 0, time.UTC),
	}
}

func TestOnTicketDetectedRequestsEvidenceOnce(t *testing.T) {
	f := newFixture(t, false, false)
	ticket := f.detect(t)

	if got := f.status(t, ticket.ID); got != domain.TicketStatusPendingEvidence {
		t.Fatalf("status = %s, want %s", got, domain.TicketStatusPendingEvidence)
	}
	contestLetter, err := f.letters.GetByTicket(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("letter missing: %v", err)
	}
	if contestLetter.Status != domain.LetterStatusPendingEvidence {
		t.Fatalf("letter status = %s", contestLetter.Status)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("emails = %d, want 1", f.notifier.count())
	}

	// retried detection must not re-request evidence
	if err := f.machine.OnTicketDetected(context.Background(), ticket.ID); err != nil {
		t.Fatalf("second OnTicketDetected: %v", err)
	}
	if got := f.audit.CountAction(ticket.ID, domain.AuditEvidenceRequested); got != 1 {
		t.Fatalf("evidence_requested audit entries = %d, want 1", got)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("emails after retry = %d, want 1", f.notifier.count())
	}
}

func TestEvidenceWithoutApprovalMailsImmediately(t *testing.T) {
	f := newFixture(t, false, false)
	ticket := f.detect(t)

	fp, reply := stickerReply("delivery-1")
	if err := f.machine.OnEvidenceReceived(context.Background(), ticket.ID, fp, reply); err != nil {
		t.Fatalf("OnEvidenceReceived: %v", err)
	}

	if got := f.status(t, ticket.ID); got != domain.TicketStatusMailed {
		t.Fatalf("status = %s, want %s", got, domain.TicketStatusMailed)
	}
	contestLetter, err := f.letters.GetByTicket(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("letter: %v", err)
	}
	if contestLetter.Status != domain.LetterStatusMailed || contestLetter.MailedAt == nil {
		t.Fatalf("letter = %s mailedAt=%v", contestLetter.Status, contestLetter.MailedAt)
	}
	if f.mailer.callCount() != 1 {
		t.Fatalf("mail dispatches = %d, want 1", f.mailer.callCount())
	}
	if got := f.audit.CountAction(ticket.ID, domain.AuditMailRequested); got != 1 {
		t.Fatalf("mail_requested audit entries = %d, want 1", got)
	}
}

func TestDuplicateWebhookDeliveryRegeneratesOnce(t *testing.T) {
	f := newFixture(t, true, false)
	ticket := f.detect(t)

	fp, reply := stickerReply("delivery-dup")
	for i := 0; i < 2; i++ {
		if err := f.machine.OnEvidenceReceived(context.Background(), ticket.ID, fp, reply); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	if got := f.audit.CountAction(ticket.ID, domain.AuditLetterRegenerated); got != 1 {
		t.Fatalf("letter_regenerated entries = %d, want 1", got)
	}
}

func TestApprovalFlow(t *testing.T) {
	f := newFixture(t, true, false)
	ticket := f.detect(t)

	fp, reply := stickerReply("delivery-2")
	if err := f.machine.OnEvidenceReceived(context.Background(), ticket.ID, fp, reply); err != nil {
		t.Fatalf("OnEvidenceReceived: %v", err)
	}
	if got := f.status(t, ticket.ID); got != domain.TicketStatusNeedsApproval {
		t.Fatalf("status = %s, want %s", got, domain.TicketStatusNeedsApproval)
	}
	if got := f.audit.CountAction(ticket.ID, domain.AuditApprovalRequested); got != 1 {
		t.Fatalf("approval_requested entries = %d, want 1", got)
	}
	if f.mailer.callCount() != 0 {
		t.Fatalf("mail dispatched before approval")
	}

	contestLetter, err := f.letters.GetByTicket(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("letter: %v", err)
	}
	claims := &approval.Claims{
		TicketID:  ticket.ID,
		AccountID: ticket.AccountID,
		LetterID:  contestLetter.ID,
		Action:    approval.ActionApprove,
	}
	if err := f.machine.OnApprovalAction(context.Background(), claims); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := f.status(t, ticket.ID); got != domain.TicketStatusMailed {
		t.Fatalf("status after approve = %s, want %s", got, domain.TicketStatusMailed)
	}
	if f.mailer.callCount() != 1 {
		t.Fatalf("mail dispatches = %d, want 1", f.mailer.callCount())
	}

	// the link is single use
	if err := f.machine.OnApprovalAction(context.Background(), claims); !errors.Is(err, ErrApprovalConsumed) {
		t.Fatalf("second approve err = %v, want ErrApprovalConsumed", err)
	}
}

func TestSkipTerminatesWithoutMailing(t *testing.T) {
	f := newFixture(t, true, false)
	ticket := f.detect(t)

	fp, reply := stickerReply("delivery-3")
	if err := f.machine.OnEvidenceReceived(context.Background(), ticket.ID, fp, reply); err != nil {
		t.Fatalf("OnEvidenceReceived: %v", err)
	}
	claims := &approval.Claims{
		TicketID:  ticket.ID,
		AccountID: ticket.AccountID,
		Action:    approval.ActionSkip,
	}
	if err := f.machine.OnApprovalAction(context.Background(), claims); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if got := f.status(t, ticket.ID); got != domain.TicketStatusSkipped {
		t.Fatalf("status = %s, want %s", got, domain.TicketStatusSkipped)
	}
	if f.mailer.callCount() != 0 {
		t.Fatalf("skipped ticket must not mail")
	}

	// evidence after a terminal state is ignored
	fp2, reply2 := stickerReply("delivery-4")
	if err := f.machine.OnEvidenceReceived(context.Background(), ticket.ID, fp2, reply2); err != nil {
		t.Fatalf("post-skip evidence: %v", err)
	}
	if got := f.status(t, ticket.ID); got != domain.TicketStatusSkipped {
		t.Fatalf("status moved after terminal: %s", got)
	}
}

func TestAutoSendSafetyNet(t *testing.T) {
	f := newFixture(t, true, false)
	ticket := f.detect(t)

	fp, reply := stickerReply("delivery-5")
	if err := f.machine.OnEvidenceReceived(context.Background(), ticket.ID, fp, reply); err != nil {
		t.Fatalf("OnEvidenceReceived: %v", err)
	}

	// deadline not yet reached: nothing happens
	if err := f.machine.AutoSendDue(context.Background()); err != nil {
		t.Fatalf("AutoSendDue: %v", err)
	}
	if got := f.status(t, ticket.ID); got != domain.TicketStatusNeedsApproval {
		t.Fatalf("status before deadline = %s", got)
	}

	// push the deadline into the past
	if _, err := f.tickets.ForceAutoSendDeadline(ticket.ID, f.now.Add(-time.Hour)); err != nil {
		t.Fatalf("ForceAutoSendDeadline: %v", err)
	}
	if err := f.machine.AutoSendDue(context.Background()); err != nil {
		t.Fatalf("AutoSendDue past deadline: %v", err)
	}
	if got := f.status(t, ticket.ID); got != domain.TicketStatusMailed {
		t.Fatalf("status after safety net = %s, want %s", got, domain.TicketStatusMailed)
	}
	if got := f.audit.CountAction(ticket.ID, domain.AuditAutoSendTriggered); got != 1 {
		t.Fatalf("auto_send_triggered entries = %d, want 1", got)
	}
	if f.mailer.callCount() != 1 {
		t.Fatalf("mail dispatches = %d, want 1", f.mailer.callCount())
	}
}

func TestAutoSendMailsTicketWithNoEvidence(t *testing.T) {
	f := newFixture(t, true, false)
	ticket := f.detect(t)

	// the user never replies; only the deadline moves
	if _, err := f.tickets.ForceAutoSendDeadline(ticket.ID, f.now.Add(-time.Hour)); err != nil {
		t.Fatalf("ForceAutoSendDeadline: %v", err)
	}
	if err := f.machine.AutoSendDue(context.Background()); err != nil {
		t.Fatalf("AutoSendDue: %v", err)
	}

	if got := f.status(t, ticket.ID); got != domain.TicketStatusMailed {
		t.Fatalf("status = %s, want %s", got, domain.TicketStatusMailed)
	}
	contestLetter, err := f.letters.GetByTicket(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("letter: %v", err)
	}
	if contestLetter.Status != domain.LetterStatusMailed || contestLetter.MailedAt == nil {
		t.Fatalf("letter = %s mailedAt=%v", contestLetter.Status, contestLetter.MailedAt)
	}
	if got := f.audit.CountAction(ticket.ID, domain.AuditAutoSendTriggered); got != 1 {
		t.Fatalf("auto_send_triggered entries = %d, want 1", got)
	}
	if f.mailer.callCount() != 1 {
		t.Fatalf("mail dispatches = %d, want 1", f.mailer.callCount())
	}
}

func TestMailDispatchFailureIsRetrySafe(t *testing.T) {
	f := newFixture(t, false, false)
	ticket := f.detect(t)
	f.mailer.err = errors.New("dispatch service down")

	fp, reply := stickerReply("delivery-6")
	if err := f.machine.OnEvidenceReceived(context.Background(), ticket.ID, fp, reply); err == nil {
		t.Fatalf("expected dispatch error")
	}
	if got := f.status(t, ticket.ID); got != domain.TicketStatusEvidenceReceived {
		t.Fatalf("status after failed dispatch = %s, want %s", got, domain.TicketStatusEvidenceReceived)
	}
	if got := f.audit.CountAction(ticket.ID, domain.AuditMailRequested); got != 0 {
		t.Fatalf("failed dispatch recorded as requested")
	}

	f.mailer.err = nil
	if err := f.machine.TryMail(context.Background(), ticket.ID); err != nil {
		t.Fatalf("retry TryMail: %v", err)
	}
	if got := f.status(t, ticket.ID); got != domain.TicketStatusMailed {
		t.Fatalf("status after retry = %s, want %s", got, domain.TicketStatusMailed)
	}
	if got := f.audit.CountAction(ticket.ID, domain.AuditMailRequested); got != 1 {
		t.Fatalf("mail_requested entries = %d, want 1", got)
	}
}

func TestMailedTicketIsNeverMailedTwice(t *testing.T) {
	f := newFixture(t, false, false)
	ticket := f.detect(t)

	fp, reply := stickerReply("delivery-7")
	if err := f.machine.OnEvidenceReceived(context.Background(), ticket.ID, fp, reply); err != nil {
		t.Fatalf("OnEvidenceReceived: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := f.machine.TryMail(context.Background(), ticket.ID); err != nil {
			t.Fatalf("TryMail %d: %v", i, err)
		}
	}
	if f.mailer.callCount() != 1 {
		t.Fatalf("mail dispatches = %d, want 1", f.mailer.callCount())
	}
}

func TestKillSwitchHoldsMailing(t *testing.T) {
	f := newFixture(t, false, true)
	ticket := f.detect(t)

	fp, reply := stickerReply("delivery-8")
	if err := f.machine.OnEvidenceReceived(context.Background(), ticket.ID, fp, reply); err != nil {
		t.Fatalf("OnEvidenceReceived: %v", err)
	}
	if got := f.status(t, ticket.ID); got != domain.TicketStatusEvidenceReceived {
		t.Fatalf("status under kill switch = %s, want %s", got, domain.TicketStatusEvidenceReceived)
	}
	if f.mailer.callCount() != 0 {
		t.Fatalf("mail dispatched while paused")
	}
}

func TestMarkDismissedNotifiesOnce(t *testing.T) {
	f := newFixture(t, false, false)
	ticket := f.detect(t)

	for i := 0; i < 3; i++ {
		if err := f.machine.MarkDismissed(context.Background(), ticket.ID, "dismissed"); err != nil {
			t.Fatalf("MarkDismissed %d: %v", i, err)
		}
	}
	if got := f.status(t, ticket.ID); got != domain.TicketStatusWon {
		t.Fatalf("status = %s, want %s", got, domain.TicketStatusWon)
	}
	if got := f.audit.CountAction(ticket.ID, domain.AuditDismissedUserNotified); got != 1 {
		t.Fatalf("dismissal notifications = %d, want 1", got)
	}
}

func TestDismissalReachableFromMailed(t *testing.T) {
	f := newFixture(t, false, false)
	ticket := f.detect(t)

	fp, reply := stickerReply("delivery-9")
	if err := f.machine.OnEvidenceReceived(context.Background(), ticket.ID, fp, reply); err != nil {
		t.Fatalf("OnEvidenceReceived: %v", err)
	}
	if err := f.machine.MarkDismissed(context.Background(), ticket.ID, "not liable"); err != nil {
		t.Fatalf("MarkDismissed: %v", err)
	}
	if got := f.status(t, ticket.ID); got != domain.TicketStatusWon {
		t.Fatalf("status = %s, want %s", got, domain.TicketStatusWon)
	}
}

func TestNotificationFailureDoesNotBlockTransition(t *testing.T) {
	f := newFixture(t, false, false)
	f.notifier.fail = true
	ticket := f.detect(t)

	if got := f.status(t, ticket.ID); got != domain.TicketStatusPendingEvidence {
		t.Fatalf("status = %s, want %s", got, domain.TicketStatusPendingEvidence)
	}
	// the failed send was not recorded, so a retry delivers it
	if got := f.audit.CountAction(ticket.ID, domain.AuditEvidenceRequested); got != 0 {
		t.Fatalf("failed send recorded in audit")
	}
	f.notifier.fail = false
	if err := f.machine.OnTicketDetected(context.Background(), ticket.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := f.audit.CountAction(ticket.ID, domain.AuditEvidenceRequested); got != 1 {
		t.Fatalf("evidence_requested entries = %d, want 1", got)
	}
}

func TestConcurrentEvidenceReplies(t *testing.T) {
	f := newFixture(t, true, false)
	ticket := f.detect(t)

	replies := []intake.Reply{
		{
			Sender:     "jordan@example.com",
			Body:       "Attached is the receipt, I bought my sticker last week.",
			ReceivedAt: f.now,
			Attachments: []intake.AttachmentInput{
				{FileName: "receipt.pdf", ContentType: "application/pdf"},
			},
		},
		{
			Sender:     "jordan@example.com",
			Body:       "Here is a photo of the sticker on my windshield.",
			ReceivedAt: f.now.Add(time.Minute),
			Attachments: []intake.AttachmentInput{
				{FileName: "windshield.jpg", ContentType: "image/jpeg"},
			},
		},
	}

	var wg sync.WaitGroup
	for i, reply := range replies {
		wg.Add(1)
		go func(fp string, reply intake.Reply) {
			defer wg.Done()
			_ = f.machine.OnEvidenceReceived(context.Background(), ticket.ID, fp, reply)
		}("concurrent-"+strings.Repeat("x", i+1), reply)
	}
	wg.Wait()

	if got := f.status(t, ticket.ID); got != domain.TicketStatusNeedsApproval {
		t.Fatalf("status = %s, want %s", got, domain.TicketStatusNeedsApproval)
	}
	// both deliveries were integrated, the stored evidence is one of them
	stored, err := f.evidence.GetByTicket(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("evidence: %v", err)
	}
	if !stored.HasReceipt && !stored.HasPhoto {
		t.Fatalf("stored evidence reflects neither reply: %+v", stored)
	}
	if got := f.audit.CountAction(ticket.ID, domain.AuditApprovalRequested); got != 1 {
		t.Fatalf("approval_requested entries = %d, want 1", got)
	}
}

func TestEvidenceReminderSentOnce(t *testing.T) {
	f := newFixture(t, false, false)
	ticket := f.detect(t)
	before := f.notifier.count()

	due := func(domain.Ticket) bool { return true }
	for i := 0; i < 2; i++ {
		if err := f.machine.SendEvidenceReminders(context.Background(), due); err != nil {
			t.Fatalf("SendEvidenceReminders: %v", err)
		}
	}
	if got := f.audit.CountAction(ticket.ID, domain.AuditEvidenceReminder); got != 1 {
		t.Fatalf("reminders = %d, want 1", got)
	}
	if f.notifier.count() != before+1 {
		t.Fatalf("reminder emails = %d, want 1", f.notifier.count()-before)
	}
}
