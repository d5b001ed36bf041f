// Package collaborator defines the contracts for the external services the
// engine depends on, plus their HTTP implementations. Every call is
// time-bounded; callers treat failures as skip-and-log, never as fatal.
package collaborator

import (
	"context"
	"strings"
	"time"
)

// ViolationRecord is one violation as reported by the external source.
// Fields may be partially populated; consumers tolerate gaps.
type ViolationRecord struct {
	ExternalNumber string    `json:"ticket_number"`
	IssueDate      time.Time `json:"issue_date"`
	Code           string    `json:"violation_code"`
	Description    string    `json:"violation_description"`
	AmountCents    int64     `json:"fine_amount_cents"`
	Disposition    string    `json:"disposition"`
	Location       string    `json:"location"`
}

// Dismissed reports whether the source shows the violation resolved in the
// holder's favor.
func (r ViolationRecord) Dismissed() bool {
	d := strings.ToLower(r.Disposition)
	return strings.Contains(d, "dismissed") || strings.Contains(d, "not liable")
}

// Settled reports whether the record is already closed at the source (paid
// or dismissed) and needs no contest.
func (r ViolationRecord) Settled() bool {
	return r.Dismissed() || strings.Contains(strings.ToLower(r.Disposition), "paid")
}

// ViolationSource queries violations by monitored identifier.
type ViolationSource interface {
	RecentViolations(ctx context.Context, plate, state string, since time.Time) ([]ViolationRecord, error)
}

// LetterRequest is the input to the text-generation collaborator.
type LetterRequest struct {
	ArgumentID       string
	ArgumentName     string
	ExternalNumber   string
	ViolationDesc    string
	ViolationDate    time.Time
	Location         string
	UserName         string
	ProvidedEvidence []string
	MissingEvidence  []string
}

// TextGenerator produces contest letter prose. Implementations never block
// past their configured budget; callers always hold a deterministic fallback.
type TextGenerator interface {
	GenerateLetter(ctx context.Context, req LetterRequest) (string, error)
}

// MailDispatcher accepts a finalized letter for physical mailing. Dispatch
// request and dispatch confirmation are separate idempotent signals.
type MailDispatcher interface {
	RequestDispatch(ctx context.Context, ticketID, letterID, body string) error
}

// Notifier delivers user-facing notifications. Failures are non-fatal to the
// transition that triggered them.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, body string) error
	SendSMS(ctx context.Context, to, body string) error
}

// BlobStore fetches stored attachment bytes.
type BlobStore interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}
