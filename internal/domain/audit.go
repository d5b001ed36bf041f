package domain

import "time"

// Audit action names. Side-effecting transitions check the log for a prior
// entry with the same action before dispatching again.
const (
	AuditTicketDetected        = "ticket_detected"
	AuditEvidenceRequested     = "evidence_requested"
	AuditEvidenceReminder      = "evidence_reminder_sent"
	AuditEvidenceReceived      = "evidence_received"
	AuditLetterRegenerated     = "letter_regenerated"
	AuditApprovalRequested     = "approval_requested"
	AuditApprovalAction        = "approval_action"
	AuditAutoSendTriggered     = "auto_send_triggered"
	AuditMailRequested         = "mail_requested"
	AuditMailConfirmed         = "mail_confirmed"
	AuditDismissedUserNotified = "ticket_dismissed_user_notified"
	AuditWebhookRejected       = "webhook_rejected"
)

// AuditEntry is one append-only record of a side-effecting action.
type AuditEntry struct {
	ID        string
	TicketID  string
	Actor     string
	Action    string
	Details   map[string]any
	CreatedAt time.Time
}
