package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkfair/contest-service/internal/domain"
)

// LetterRepository stores the 1:1 contest letter for a ticket. UpdateStatus
// and MarkMailed are compare-and-swap writes; MarkMailed can succeed at most
// once per letter.
type LetterRepository interface {
	Create(ctx context.Context, letter *domain.ContestLetter) error
	GetByTicket(ctx context.Context, ticketID string) (*domain.ContestLetter, error)
	SetContent(ctx context.Context, id, argumentID, body string, source domain.LetterSource) error
	UpdateStatus(ctx context.Context, id string, from, to domain.LetterStatus) (bool, error)
	MarkMailed(ctx context.Context, id string, at time.Time) (bool, error)
}

type letterRepository struct {
	pool *pgxpool.Pool
}

// NewLetterRepository builds repository.
func NewLetterRepository(pool *pgxpool.Pool) LetterRepository {
	return &letterRepository{pool: pool}
}

func (r *letterRepository) Create(ctx context.Context, letter *domain.ContestLetter) error {
	const query = `
        INSERT INTO contest_letters (ticket_id, argument_id, body, source, status)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (ticket_id) DO NOTHING
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		letter.TicketID,
		letter.ArgumentID,
		letter.Body,
		letter.Source,
		letter.Status,
	).Scan(&letter.ID, &letter.CreatedAt, &letter.UpdatedAt)
	if err == pgx.ErrNoRows {
		// Another invocation created it first; read it back.
		existing, getErr := r.GetByTicket(ctx, letter.TicketID)
		if getErr != nil {
			return getErr
		}
		*letter = *existing
		return nil
	}
	return err
}

func (r *letterRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.ContestLetter, error) {
	const query = `
        SELECT id, ticket_id, argument_id, body, source, status, mailed_at, created_at, updated_at
        FROM contest_letters WHERE ticket_id=$1`
	var letter domain.ContestLetter
	if err := r.pool.QueryRow(ctx, query, ticketID).Scan(
		&letter.ID,
		&letter.TicketID,
		&letter.ArgumentID,
		&letter.Body,
		&letter.Source,
		&letter.Status,
		&letter.MailedAt,
		&letter.CreatedAt,
		&letter.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &letter, nil
}

func (r *letterRepository) SetContent(ctx context.Context, id, argumentID, body string, source domain.LetterSource) error {
	// Content of a mailed letter is immutable.
	const query = `
        UPDATE contest_letters SET argument_id=$1, body=$2, source=$3, updated_at=NOW()
        WHERE id=$4 AND status <> $5`
	cmd, err := r.pool.Exec(ctx, query, argumentID, body, source, id, domain.LetterStatusMailed)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *letterRepository) UpdateStatus(ctx context.Context, id string, from, to domain.LetterStatus) (bool, error) {
	const query = `UPDATE contest_letters SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`
	cmd, err := r.pool.Exec(ctx, query, to, id, from)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *letterRepository) MarkMailed(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `
        UPDATE contest_letters SET status=$1, mailed_at=$2, updated_at=NOW()
        WHERE id=$3 AND status <> $1 AND mailed_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, domain.LetterStatusMailed, at, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}
