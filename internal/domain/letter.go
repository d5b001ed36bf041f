package domain

import "time"

// LetterStatus enumerates the contest letter's sub-states.
type LetterStatus string

const (
	LetterStatusPendingEvidence LetterStatus = "PENDING_EVIDENCE"
	LetterStatusPendingApproval LetterStatus = "PENDING_APPROVAL"
	LetterStatusReady           LetterStatus = "READY"
	LetterStatusMailed          LetterStatus = "MAILED"
)

// LetterSource records which path produced the letter body.
type LetterSource string

const (
	LetterSourceTemplate  LetterSource = "template"
	LetterSourceGenerator LetterSource = "generator"
)

// ContestLetter is the 1:1 letter for a ticket. Content may be regenerated
// any number of times before mailing; a mailed letter is immutable.
type ContestLetter struct {
	ID         string
	TicketID   string
	ArgumentID string
	Body       string
	Source     LetterSource
	Status     LetterStatus
	MailedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
