package dto

import (
	"time"

	"github.com/parkfair/contest-service/internal/domain"
)

// TicketSummary response.
type TicketSummary struct {
	ID               string                   `json:"id"`
	AccountID        string                   `json:"account_id"`
	PlateID          string                   `json:"plate_id"`
	ExternalNumber   string                   `json:"external_number"`
	Category         domain.ViolationCategory `json:"category"`
	ViolationDate    time.Time                `json:"violation_date"`
	AmountCents      int64                    `json:"amount_cents"`
	Status           domain.TicketStatus      `json:"status"`
	AutoSendDeadline time.Time                `json:"auto_send_deadline"`
	ContestDeadline  time.Time                `json:"contest_deadline"`
	GuaranteeCovered bool                     `json:"guarantee_covered"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	ViolationCode    string            `json:"violation_code"`
	Location         string            `json:"location"`
	EvidenceDeadline time.Time         `json:"evidence_deadline"`
	CreatedAt        time.Time         `json:"created_at"`
	Evidence         *EvidenceResponse `json:"evidence"`
	Letter           *LetterResponse   `json:"letter"`
}

// EvidenceResponse summarizes the normalized evidence snapshot.
type EvidenceResponse struct {
	Kinds       []domain.EvidenceKind `json:"kinds"`
	Late        bool                  `json:"late"`
	ReceiptDate *time.Time            `json:"receipt_date"`
	Attachments int                   `json:"attachments"`
	ReceivedAt  time.Time             `json:"received_at"`
}

// LetterResponse describes the current contest letter.
type LetterResponse struct {
	ID         string              `json:"id"`
	ArgumentID string              `json:"argument_id"`
	Status     domain.LetterStatus `json:"status"`
	Source     domain.LetterSource `json:"source"`
	Body       string              `json:"body"`
	MailedAt   *time.Time          `json:"mailed_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// AuditEntryResponse is one audit-log record.
type AuditEntryResponse struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// FromTicketSummary maps a ticket to its list representation.
func FromTicketSummary(ticket domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:               ticket.ID,
		AccountID:        ticket.AccountID,
		PlateID:          ticket.PlateID,
		ExternalNumber:   ticket.ExternalNumber,
		Category:         ticket.Category,
		ViolationDate:    ticket.ViolationDate,
		AmountCents:      ticket.AmountCents,
		Status:           ticket.Status,
		AutoSendDeadline: ticket.AutoSendDeadline,
		ContestDeadline:  ticket.ContestDeadline,
		GuaranteeCovered: ticket.GuaranteeCovered,
		UpdatedAt:        ticket.UpdatedAt,
	}
}

// FromTicketDetail maps a ticket and its attachments to the detail view.
func FromTicketDetail(ticket domain.Ticket, evidence *domain.Evidence, letter *domain.ContestLetter) TicketDetailResponse {
	detail := TicketDetailResponse{
		TicketSummary:    FromTicketSummary(ticket),
		ViolationCode:    ticket.ViolationCode,
		Location:         ticket.Location,
		EvidenceDeadline: ticket.EvidenceDeadline,
		CreatedAt:        ticket.CreatedAt,
	}
	if evidence != nil {
		detail.Evidence = &EvidenceResponse{
			Kinds:       evidence.Kinds(),
			Late:        evidence.Late,
			ReceiptDate: evidence.ReceiptDate,
			Attachments: len(evidence.Attachments),
			ReceivedAt:  evidence.ReceivedAt,
		}
	}
	if letter != nil {
		detail.Letter = &LetterResponse{
			ID:         letter.ID,
			ArgumentID: letter.ArgumentID,
			Status:     letter.Status,
			Source:     letter.Source,
			Body:       letter.Body,
			MailedAt:   letter.MailedAt,
			UpdatedAt:  letter.UpdatedAt,
		}
	}
	return detail
}

// FromAuditEntry maps an audit record.
func FromAuditEntry(entry domain.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:        entry.ID,
		Actor:     entry.Actor,
		Action:    entry.Action,
		Details:   entry.Details,
		CreatedAt: entry.CreatedAt,
	}
}
