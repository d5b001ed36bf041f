package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/parkfair/contest-service/internal/collaborator"
	"github.com/parkfair/contest-service/internal/domain"
	"github.com/parkfair/contest-service/internal/letter"
	"github.com/parkfair/contest-service/internal/lifecycle"
	"github.com/parkfair/contest-service/internal/observability"
	"github.com/parkfair/contest-service/internal/repository/memory"
)

type fakeSource struct {
	mu      sync.Mutex
	byPlate map[string][]collaborator.ViolationRecord
	errs    map[string]error
	calls   []string
}

func (s *fakeSource) RecentViolations(_ context.Context, plate, _ string, _ time.Time) ([]collaborator.ViolationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, plate)
	if err := s.errs[plate]; err != nil {
		return nil, err
	}
	return s.byPlate[plate], nil
}

type nopNotifier struct{}

func (nopNotifier) SendEmail(context.Context, string, string, string) error { return nil }
func (nopNotifier) SendSMS(context.Context, string, string) error           { return nil }

type nopMailer struct{}

func (nopMailer) RequestDispatch(context.Context, string, string, string) error { return nil }

type harness struct {
	sweeper *Sweeper
	source  *fakeSource
	tickets *memory.TicketRepository
	audit   *memory.AuditRepository
	plates  *memory.PlateRepository
	sleeps  []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	now := time.Date(2024, 5, 20, 6, 0, 0, 0, time.UTC)

	tickets := memory.NewTicketRepository()
	plates := memory.NewPlateRepository()
	audit := memory.NewAuditRepository()
	accounts := memory.NewAccountRepository()
	accounts.Put(domain.Account{ID: "acct-1", Name: "Sam Okafor", Email: "sam@example.com", Active: true})

	logger := zap.NewNop()
	machine := lifecycle.NewMachine(lifecycle.Dependencies{
		TicketRepo:   tickets,
		EvidenceRepo: memory.NewEvidenceRepository(),
		LetterRepo:   memory.NewLetterRepository(),
		AuditRepo:    audit,
		AccountRepo:  accounts,
		Composer:     letter.NewComposer(nil, time.Second, logger),
		Mailer:       nopMailer{},
		Notifier:     nopNotifier{},
		Metrics:      observability.NewMetrics(),
		Logger:       logger,
		Now:          func() time.Time { return now },
	})

	source := &fakeSource{
		byPlate: make(map[string][]collaborator.ViolationRecord),
		errs:    make(map[string]error),
	}
	h := &harness{source: source, tickets: tickets, audit: audit, plates: plates}
	h.sweeper = New(Options{
		Plates:       plates,
		Tickets:      tickets,
		Source:       source,
		Machine:      machine,
		Logger:       logger,
		LookbackDays: 90,
		PlateSpacing: 2 * time.Second,
		Now:          func() time.Time { return now },
		Sleep:        func(d time.Duration) { h.sleeps = append(h.sleeps, d) },
	})
	return h
}

func (h *harness) addPlate(id, plate string, createdAt time.Time) {
	h.plates.Put(domain.MonitoredPlate{
		ID:        id,
		AccountID: "acct-1",
		Plate:     plate,
		State:     "IL",
		Active:    true,
		CreatedAt: createdAt,
	})
}

func violation(number, code string, issued time.Time) collaborator.ViolationRecord {
	return collaborator.ViolationRecord{
		ExternalNumber: number,
		IssueDate:      issued,
		Code:           code,
		Description:    "violation",
		AmountCents:    6000,
		Location:       "200 E RANDOLPH ST",
	}
}

func TestRunCreatesTicketsAndHandsOff(t *testing.T) {
	h := newHarness(t)
	base := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	h.addPlate("plate-1", "ABC1234", base)
	h.source.byPlate["ABC1234"] = []collaborator.ViolationRecord{
		violation("911001", "0964125", base),
		violation("911002", "RLC", base.AddDate(0, 0, 1)),
	}

	created, err := h.sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if created != 2 {
		t.Fatalf("created = %d, want 2", created)
	}

	sticker, err := h.tickets.GetByExternalNumber(context.Background(), "acct-1", "plate-1", "911001")
	if err != nil {
		t.Fatalf("sticker ticket: %v", err)
	}
	if sticker.Status != domain.TicketStatusPendingEvidence {
		t.Fatalf("status = %s, want %s", sticker.Status, domain.TicketStatusPendingEvidence)
	}
	if sticker.Category != domain.CategoryCitySticker {
		t.Fatalf("category = %s", sticker.Category)
	}
	if !sticker.GuaranteeCovered {
		t.Fatalf("sticker ticket should be guarantee covered")
	}
	wantDeadline := base.AddDate(0, 0, 17)
	if !sticker.AutoSendDeadline.Equal(wantDeadline) {
		t.Fatalf("auto-send deadline = %v, want %v", sticker.AutoSendDeadline, wantDeadline)
	}

	camera, err := h.tickets.GetByExternalNumber(context.Background(), "acct-1", "plate-1", "911002")
	if err != nil {
		t.Fatalf("camera ticket: %v", err)
	}
	if camera.Category != domain.CategoryRedLightCamera {
		t.Fatalf("camera category = %s", camera.Category)
	}
	if camera.GuaranteeCovered {
		t.Fatalf("camera ticket must not be guarantee covered")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	base := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	h.addPlate("plate-1", "ABC1234", base)
	h.source.byPlate["ABC1234"] = []collaborator.ViolationRecord{
		violation("911001", "0964125", base),
	}

	for i := 0; i < 2; i++ {
		if _, err := h.sweeper.Run(context.Background()); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}

	ticket, err := h.tickets.GetByExternalNumber(context.Background(), "acct-1", "plate-1", "911001")
	if err != nil {
		t.Fatalf("ticket: %v", err)
	}
	if got := h.audit.CountAction(ticket.ID, domain.AuditEvidenceRequested); got != 1 {
		t.Fatalf("evidence_requested entries = %d, want 1", got)
	}
}

func TestRunSkipsRecordsAlreadySettled(t *testing.T) {
	h := newHarness(t)
	base := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	h.addPlate("plate-1", "ABC1234", base)
	record := violation("911003", "0964125", base)
	record.Disposition = "Paid"
	h.source.byPlate["ABC1234"] = []collaborator.ViolationRecord{record}

	created, err := h.sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if created != 0 {
		t.Fatalf("created = %d, want 0", created)
	}
}

func TestRunSkipsRecordsOutsideLookback(t *testing.T) {
	h := newHarness(t)
	base := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	h.addPlate("plate-1", "ABC1234", base)
	// a source that ignores the since parameter returns stale records
	h.source.byPlate["ABC1234"] = []collaborator.ViolationRecord{
		violation("911009", "0964125", base.AddDate(0, -7, 0)),
		violation("911010", "0964125", base),
	}

	created, err := h.sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
	if _, err := h.tickets.GetByExternalNumber(context.Background(), "acct-1", "plate-1", "911009"); err == nil {
		t.Fatalf("stale record produced a ticket with expired deadlines")
	}
}

func TestRunReconcilesDismissal(t *testing.T) {
	h := newHarness(t)
	base := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	h.addPlate("plate-1", "ABC1234", base)
	h.source.byPlate["ABC1234"] = []collaborator.ViolationRecord{
		violation("911004", "0964125", base),
	}
	if _, err := h.sweeper.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	dismissed := violation("911004", "0964125", base)
	dismissed.Disposition = "Dismissed - Not Liable"
	h.source.byPlate["ABC1234"] = []collaborator.ViolationRecord{dismissed}
	if _, err := h.sweeper.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	ticket, err := h.tickets.GetByExternalNumber(context.Background(), "acct-1", "plate-1", "911004")
	if err != nil {
		t.Fatalf("ticket: %v", err)
	}
	if ticket.Status != domain.TicketStatusWon {
		t.Fatalf("status = %s, want %s", ticket.Status, domain.TicketStatusWon)
	}
	if got := h.audit.CountAction(ticket.ID, domain.AuditDismissedUserNotified); got != 1 {
		t.Fatalf("dismissal notifications = %d, want 1", got)
	}
}

func TestRunIsolatesPlateFailures(t *testing.T) {
	h := newHarness(t)
	base := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	h.addPlate("plate-1", "BROKEN1", base)
	h.addPlate("plate-2", "ABC1234", base.Add(time.Hour))
	h.source.errs["BROKEN1"] = errors.New("upstream 503")
	h.source.byPlate["ABC1234"] = []collaborator.ViolationRecord{
		violation("911005", "0964125", base),
	}

	created, err := h.sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
	if len(h.source.calls) != 2 {
		t.Fatalf("source calls = %d, want 2", len(h.source.calls))
	}
}

func TestRunSpacesPlateQueries(t *testing.T) {
	h := newHarness(t)
	base := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	h.addPlate("plate-1", "AAA1111", base)
	h.addPlate("plate-2", "BBB2222", base.Add(time.Hour))
	h.addPlate("plate-3", "CCC3333", base.Add(2*time.Hour))

	if _, err := h.sweeper.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.sleeps) != 2 {
		t.Fatalf("sleeps = %d, want 2", len(h.sleeps))
	}
	for _, d := range h.sleeps {
		if d != 2*time.Second {
			t.Fatalf("sleep = %v, want 2s", d)
		}
	}
}
