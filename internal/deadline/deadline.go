// Package deadline computes the contest deadlines for a ticket from its
// immutable violation date. All functions are pure so they can be re-run
// against existing tickets without drifting.
package deadline

import "time"

const (
	// autoSendDays is when mailing proceeds regardless of user approval.
	autoSendDays = 17
	// contestDays is the hard external filing cutoff.
	contestDays = 21
)

// Deadlines holds the three deadlines armed for a ticket.
type Deadlines struct {
	// EvidenceDeadline is when the user is asked to have replied by.
	// Evidence arriving later is flagged late but still integrated until
	// the letter is mailed.
	EvidenceDeadline time.Time
	// AutoSendDeadline is the safety-net cutoff: a ticket still waiting on
	// approval past this point is mailed anyway.
	AutoSendDeadline time.Time
	// ContestDeadline is the hard external cutoff for filing.
	ContestDeadline time.Time
}

// Compute derives all deadlines from the violation date. The evidence
// deadline is unified with the auto-send deadline.
func Compute(violationDate time.Time) Deadlines {
	autoSend := violationDate.AddDate(0, 0, autoSendDays)
	return Deadlines{
		EvidenceDeadline: autoSend,
		AutoSendDeadline: autoSend,
		ContestDeadline:  violationDate.AddDate(0, 0, contestDays),
	}
}

// ReminderPoint is the halfway mark between detection of the violation and
// the evidence deadline, used to schedule the single evidence reminder.
func ReminderPoint(violationDate time.Time) time.Time {
	d := Compute(violationDate)
	return violationDate.Add(d.EvidenceDeadline.Sub(violationDate) / 2)
}
