package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkfair/contest-service/internal/domain"
)

// EvidenceRepository stores the single derived evidence record per ticket.
// Replace performs a latest-wins upsert keyed on ticket id.
type EvidenceRepository interface {
	Replace(ctx context.Context, evidence *domain.Evidence) error
	GetByTicket(ctx context.Context, ticketID string) (*domain.Evidence, error)
}

type evidenceRepository struct {
	pool *pgxpool.Pool
}

// NewEvidenceRepository builds repository.
func NewEvidenceRepository(pool *pgxpool.Pool) EvidenceRepository {
	return &evidenceRepository{pool: pool}
}

func (r *evidenceRepository) Replace(ctx context.Context, evidence *domain.Evidence) error {
	const query = `
        INSERT INTO evidence (ticket_id, has_photo, has_receipt, has_police_report, has_witness,
            has_medical, has_signage_photo, has_meter_app, has_registration, has_document,
            receipt_date, raw_text, attachments, received_at, late)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        ON CONFLICT (ticket_id) DO UPDATE SET
            has_photo=EXCLUDED.has_photo,
            has_receipt=EXCLUDED.has_receipt,
            has_police_report=EXCLUDED.has_police_report,
            has_witness=EXCLUDED.has_witness,
            has_medical=EXCLUDED.has_medical,
            has_signage_photo=EXCLUDED.has_signage_photo,
            has_meter_app=EXCLUDED.has_meter_app,
            has_registration=EXCLUDED.has_registration,
            has_document=EXCLUDED.has_document,
            receipt_date=EXCLUDED.receipt_date,
            raw_text=EXCLUDED.raw_text,
            attachments=EXCLUDED.attachments,
            received_at=EXCLUDED.received_at,
            late=EXCLUDED.late,
            updated_at=NOW()
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		evidence.TicketID,
		evidence.HasPhoto,
		evidence.HasReceipt,
		evidence.HasPoliceReport,
		evidence.HasWitness,
		evidence.HasMedical,
		evidence.HasSignagePhoto,
		evidence.HasMeterApp,
		evidence.HasRegistration,
		evidence.HasDocument,
		evidence.ReceiptDate,
		evidence.RawText,
		evidence.Attachments,
		evidence.ReceivedAt,
		evidence.Late,
	).Scan(&evidence.ID, &evidence.CreatedAt, &evidence.UpdatedAt)
}

func (r *evidenceRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.Evidence, error) {
	const query = `
        SELECT id, ticket_id, has_photo, has_receipt, has_police_report, has_witness,
               has_medical, has_signage_photo, has_meter_app, has_registration, has_document,
               receipt_date, raw_text, attachments, received_at, late, created_at, updated_at
        FROM evidence WHERE ticket_id=$1`
	var evidence domain.Evidence
	if err := r.pool.QueryRow(ctx, query, ticketID).Scan(
		&evidence.ID,
		&evidence.TicketID,
		&evidence.HasPhoto,
		&evidence.HasReceipt,
		&evidence.HasPoliceReport,
		&evidence.HasWitness,
		&evidence.HasMedical,
		&evidence.HasSignagePhoto,
		&evidence.HasMeterApp,
		&evidence.HasRegistration,
		&evidence.HasDocument,
		&evidence.ReceiptDate,
		&evidence.RawText,
		&evidence.Attachments,
		&evidence.ReceivedAt,
		&evidence.Late,
		&evidence.CreatedAt,
		&evidence.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &evidence, nil
}
