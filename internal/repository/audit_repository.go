package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkfair/contest-service/internal/domain"
)

// AuditRepository is the append-only log of side-effecting actions. HasAction
// is the idempotency check consulted before any external dispatch.
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	HasAction(ctx context.Context, ticketID, action string) (bool, error)
	ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.AuditEntry, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository builds repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	const query = `
        INSERT INTO audit_log (ticket_id, actor, action, details)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	// rejected-webhook entries have no ticket yet
	var ticketID any
	if entry.TicketID != "" {
		ticketID = entry.TicketID
	}
	return r.pool.QueryRow(ctx, query,
		ticketID,
		entry.Actor,
		entry.Action,
		entry.Details,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *auditRepository) HasAction(ctx context.Context, ticketID, action string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM audit_log WHERE ticket_id=$1 AND action=$2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, ticketID, action).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *auditRepository) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, ticket_id, actor, action, details, created_at
        FROM audit_log WHERE ticket_id=$1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, ticketID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Actor,
			&entry.Action,
			&entry.Details,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
