package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkfair/contest-service/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	AccountID *string
	PlateID   *string
	Statuses  []domain.TicketStatus
	Limit     int
	Offset    int
}

// TicketRepository encapsulates ticket persistence. UpdateStatus is the only
// way status moves: it applies the write iff the persisted status still
// equals the expected one and reports whether the swap happened.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByExternalNumber(ctx context.Context, accountID, plateID, externalNumber string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ListPastAutoSend(ctx context.Context, status domain.TicketStatus, now time.Time) ([]domain.Ticket, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.TicketStatus) (bool, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, account_id, plate_id, external_number, violation_code, category,
       violation_date, amount_cents, location, status, evidence_deadline,
       auto_send_deadline, contest_deadline, guarantee_covered, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (account_id, plate_id, external_number, violation_code, category,
            violation_date, amount_cents, location, status, evidence_deadline,
            auto_send_deadline, contest_deadline, guarantee_covered)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.AccountID,
		ticket.PlateID,
		ticket.ExternalNumber,
		ticket.ViolationCode,
		ticket.Category,
		ticket.ViolationDate,
		ticket.AmountCents,
		ticket.Location,
		ticket.Status,
		ticket.EvidenceDeadline,
		ticket.AutoSendDeadline,
		ticket.ContestDeadline,
		ticket.GuaranteeCovered,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByExternalNumber(ctx context.Context, accountID, plateID, externalNumber string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE account_id=$1 AND plate_id=$2 AND external_number=$3`, ticketColumns)
	return r.fetchSingle(ctx, query, accountID, plateID, externalNumber)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&ticket.ID,
		&ticket.AccountID,
		&ticket.PlateID,
		&ticket.ExternalNumber,
		&ticket.ViolationCode,
		&ticket.Category,
		&ticket.ViolationDate,
		&ticket.AmountCents,
		&ticket.Location,
		&ticket.Status,
		&ticket.EvidenceDeadline,
		&ticket.AutoSendDeadline,
		&ticket.ContestDeadline,
		&ticket.GuaranteeCovered,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.AccountID != nil {
		args = append(args, *filter.AccountID)
		clauses = append(clauses, fmt.Sprintf("account_id=$%d", len(args)))
	}
	if filter.PlateID != nil {
		args = append(args, *filter.PlateID)
		clauses = append(clauses, fmt.Sprintf("plate_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListPastAutoSend(ctx context.Context, status domain.TicketStatus, now time.Time) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE status=$1 AND auto_send_deadline <= $2 ORDER BY auto_send_deadline ASC`, ticketColumns)
	rows, err := r.pool.Query(ctx, query, status, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, id string, from, to domain.TicketStatus) (bool, error) {
	const query = `UPDATE tickets SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`
	cmd, err := r.pool.Exec(ctx, query, to, id, from)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.AccountID,
			&ticket.PlateID,
			&ticket.ExternalNumber,
			&ticket.ViolationCode,
			&ticket.Category,
			&ticket.ViolationDate,
			&ticket.AmountCents,
			&ticket.Location,
			&ticket.Status,
			&ticket.EvidenceDeadline,
			&ticket.AutoSendDeadline,
			&ticket.ContestDeadline,
			&ticket.GuaranteeCovered,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
