package events

import (
	"time"

	"github.com/parkfair/contest-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketDetected    EventType = "ticket_detected"
	EventEvidenceReceived  EventType = "evidence_received"
	EventLetterRegenerated EventType = "letter_regenerated"
	EventApprovalRequested EventType = "approval_requested"
	EventTicketMailed      EventType = "ticket_mailed"
	EventTicketDismissed   EventType = "ticket_dismissed"
	EventTicketSkipped     EventType = "ticket_skipped"
)

// Event represents a domain event emitted by the lifecycle machine.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	AccountID string      `json:"account_id"`
	Actor     string      `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketDetectedPayload payload.
type TicketDetectedPayload struct {
	ExternalNumber   string                   `json:"external_number"`
	Category         domain.ViolationCategory `json:"category"`
	AmountCents      int64                    `json:"amount_cents"`
	EvidenceDeadline time.Time                `json:"evidence_deadline"`
}

// EvidenceReceivedPayload payload.
type EvidenceReceivedPayload struct {
	Kinds []domain.EvidenceKind `json:"kinds"`
	Late  bool                  `json:"late"`
}

// LetterRegeneratedPayload payload.
type LetterRegeneratedPayload struct {
	ArgumentID string              `json:"argument_id"`
	Source     domain.LetterSource `json:"source"`
}

// ApprovalRequestedPayload payload.
type ApprovalRequestedPayload struct {
	LetterID         string    `json:"letter_id"`
	ArgumentID       string    `json:"argument_id"`
	AutoSendDeadline time.Time `json:"auto_send_deadline"`
}

// TicketMailedPayload payload.
type TicketMailedPayload struct {
	LetterID string    `json:"letter_id"`
	MailedAt time.Time `json:"mailed_at"`
}

// TicketDismissedPayload payload.
type TicketDismissedPayload struct {
	Disposition string `json:"disposition"`
}
