// Package memory provides in-memory repository implementations with the
// same compare-and-swap semantics as the postgres ones. They back the
// service when no POSTGRES_DSN is configured and serve as fakes in tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/parkfair/contest-service/internal/domain"
	"github.com/parkfair/contest-service/internal/repository"
)

// TicketRepository is an in-memory repository.TicketRepository.
type TicketRepository struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
}

// NewTicketRepository builds the store.
func NewTicketRepository() *TicketRepository {
	return &TicketRepository{tickets: make(map[string]*domain.Ticket)}
}

func (r *TicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := time.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *TicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (r *TicketRepository) GetByExternalNumber(ctx context.Context, accountID, plateID, externalNumber string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.AccountID == accountID && ticket.PlateID == plateID && ticket.ExternalNumber == externalNumber {
			clone := *ticket
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *TicketRepository) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if filter.AccountID != nil && ticket.AccountID != *filter.AccountID {
			continue
		}
		if filter.PlateID != nil && ticket.PlateID != *filter.PlateID {
			continue
		}
		if len(filter.Statuses) > 0 && !statusIn(ticket.Status, filter.Statuses) {
			continue
		}
		result = append(result, *ticket)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return paginate(result, filter.Limit, filter.Offset), nil
}

func (r *TicketRepository) ListPastAutoSend(ctx context.Context, status domain.TicketStatus, now time.Time) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.Status == status && !ticket.AutoSendDeadline.After(now) {
			result = append(result, *ticket)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AutoSendDeadline.Before(result[j].AutoSendDeadline)
	})
	return result, nil
}

func (r *TicketRepository) UpdateStatus(ctx context.Context, id string, from, to domain.TicketStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok || ticket.Status != from {
		return false, nil
	}
	ticket.Status = to
	ticket.UpdatedAt = time.Now()
	return true, nil
}

// ForceAutoSendDeadline rewrites a ticket's auto-send deadline. Test helper.
func (r *TicketRepository) ForceAutoSendDeadline(id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	ticket.AutoSendDeadline = at
	ticket.EvidenceDeadline = at
	return true, nil
}

func statusIn(status domain.TicketStatus, list []domain.TicketStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

func paginate(tickets []domain.Ticket, limit, offset int) []domain.Ticket {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(tickets) {
		return nil
	}
	tickets = tickets[offset:]
	if limit > 0 && limit < len(tickets) {
		tickets = tickets[:limit]
	}
	return tickets
}

// EvidenceRepository is an in-memory repository.EvidenceRepository.
type EvidenceRepository struct {
	mu       sync.Mutex
	byTicket map[string]*domain.Evidence
}

// NewEvidenceRepository builds the store.
func NewEvidenceRepository() *EvidenceRepository {
	return &EvidenceRepository{byTicket: make(map[string]*domain.Evidence)}
}

func (r *EvidenceRepository) Replace(ctx context.Context, evidence *domain.Evidence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if existing, ok := r.byTicket[evidence.TicketID]; ok {
		evidence.ID = existing.ID
		evidence.CreatedAt = existing.CreatedAt
	} else {
		evidence.ID = uuid.NewString()
		evidence.CreatedAt = now
	}
	evidence.UpdatedAt = now
	clone := *evidence
	r.byTicket[evidence.TicketID] = &clone
	return nil
}

func (r *EvidenceRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.Evidence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	evidence, ok := r.byTicket[ticketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *evidence
	return &clone, nil
}

// LetterRepository is an in-memory repository.LetterRepository.
type LetterRepository struct {
	mu       sync.Mutex
	byTicket map[string]*domain.ContestLetter
}

// NewLetterRepository builds the store.
func NewLetterRepository() *LetterRepository {
	return &LetterRepository{byTicket: make(map[string]*domain.ContestLetter)}
}

func (r *LetterRepository) Create(ctx context.Context, letter *domain.ContestLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byTicket[letter.TicketID]; ok {
		*letter = *existing
		return nil
	}
	letter.ID = uuid.NewString()
	now := time.Now()
	letter.CreatedAt = now
	letter.UpdatedAt = now
	clone := *letter
	r.byTicket[letter.TicketID] = &clone
	return nil
}

func (r *LetterRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.ContestLetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	letter, ok := r.byTicket[ticketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *letter
	return &clone, nil
}

func (r *LetterRepository) SetContent(ctx context.Context, id, argumentID, body string, source domain.LetterSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, letter := range r.byTicket {
		if letter.ID != id {
			continue
		}
		if letter.Status == domain.LetterStatusMailed {
			return pgx.ErrNoRows
		}
		letter.ArgumentID = argumentID
		letter.Body = body
		letter.Source = source
		letter.UpdatedAt = time.Now()
		return nil
	}
	return pgx.ErrNoRows
}

func (r *LetterRepository) UpdateStatus(ctx context.Context, id string, from, to domain.LetterStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, letter := range r.byTicket {
		if letter.ID != id {
			continue
		}
		if letter.Status != from {
			return false, nil
		}
		letter.Status = to
		letter.UpdatedAt = time.Now()
		return true, nil
	}
	return false, nil
}

func (r *LetterRepository) MarkMailed(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, letter := range r.byTicket {
		if letter.ID != id {
			continue
		}
		if letter.Status == domain.LetterStatusMailed || letter.MailedAt != nil {
			return false, nil
		}
		letter.Status = domain.LetterStatusMailed
		mailedAt := at
		letter.MailedAt = &mailedAt
		letter.UpdatedAt = time.Now()
		return true, nil
	}
	return false, nil
}

// AuditRepository is an in-memory repository.AuditRepository.
type AuditRepository struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

// NewAuditRepository builds the store.
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *AuditRepository) HasAction(ctx context.Context, ticketID, action string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if entry.TicketID == ticketID && entry.Action == action {
			return true, nil
		}
	}
	return false, nil
}

func (r *AuditRepository) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.AuditEntry
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	if offset > 0 {
		if offset >= len(result) {
			return nil, nil
		}
		result = result[offset:]
	}
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// CountAction reports how many entries carry the action for the ticket.
// Test-only convenience, not part of repository.AuditRepository.
func (r *AuditRepository) CountAction(ticketID, action string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, entry := range r.entries {
		if entry.TicketID == ticketID && entry.Action == action {
			count++
		}
	}
	return count
}

// AccountRepository is an in-memory repository.AccountRepository.
type AccountRepository struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
}

// NewAccountRepository builds the store.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{accounts: make(map[string]*domain.Account)}
}

// Put seeds or replaces an account.
func (r *AccountRepository) Put(account domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	r.accounts[account.ID] = &account
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *account
	return &clone, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if strings.EqualFold(account.Email, email) {
			clone := *account
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// PlateRepository is an in-memory repository.PlateRepository.
type PlateRepository struct {
	mu     sync.Mutex
	plates map[string]*domain.MonitoredPlate
}

// NewPlateRepository builds the store.
func NewPlateRepository() *PlateRepository {
	return &PlateRepository{plates: make(map[string]*domain.MonitoredPlate)}
}

// Put seeds or replaces a plate.
func (r *PlateRepository) Put(plate domain.MonitoredPlate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if plate.ID == "" {
		plate.ID = uuid.NewString()
	}
	r.plates[plate.ID] = &plate
}

func (r *PlateRepository) ListActive(ctx context.Context) ([]domain.MonitoredPlate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.MonitoredPlate
	for _, plate := range r.plates {
		if plate.Active {
			result = append(result, *plate)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *PlateRepository) GetByID(ctx context.Context, id string) (*domain.MonitoredPlate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plate, ok := r.plates[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *plate
	return &clone, nil
}
