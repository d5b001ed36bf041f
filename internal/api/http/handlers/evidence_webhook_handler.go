package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/parkfair/contest-service/internal/domain"
	"github.com/parkfair/contest-service/internal/intake"
	"github.com/parkfair/contest-service/internal/lifecycle"
	"github.com/parkfair/contest-service/internal/repository"
	apperrors "github.com/parkfair/contest-service/pkg/util/errorutil"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

const dedupeTTL = 48 * time.Hour

type evidenceAttachment struct {
	StorageKey  string `json:"storage_key"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

type evidenceWebhookPayload struct {
	MessageID   string               `json:"message_id"`
	Recipient   string               `json:"recipient"`
	Sender      string               `json:"sender"`
	Subject     string               `json:"subject"`
	Body        string               `json:"body"`
	ReceivedAt  time.Time            `json:"received_at"`
	Attachments []evidenceAttachment `json:"attachments"`
}

type markSeenFunc func(key string, ttl time.Duration) bool

// EvidenceWebhookHandler ingests inbound evidence replies from the email
// transport.
type EvidenceWebhookHandler struct {
	machine    *lifecycle.Machine
	tickets    repository.TicketRepository
	accounts   repository.AccountRepository
	audit      repository.AuditRepository
	signingKey string
	markSeen   markSeenFunc
	logger     *zap.Logger
}

// NewEvidenceWebhookHandler builds the handler. markSeen may be nil when no
// dedupe store is available.
func NewEvidenceWebhookHandler(
	machine *lifecycle.Machine,
	tickets repository.TicketRepository,
	accounts repository.AccountRepository,
	audit repository.AuditRepository,
	signingKey string,
	markSeen func(key string, ttl time.Duration) bool,
	logger *zap.Logger,
) *EvidenceWebhookHandler {
	return &EvidenceWebhookHandler{
		machine:    machine,
		tickets:    tickets,
		accounts:   accounts,
		audit:      audit,
		signingKey: signingKey,
		markSeen:   markSeen,
		logger:     logger,
	}
}

// Receive handles POST /webhooks/evidence.
func (h *EvidenceWebhookHandler) Receive(c *fiber.Ctx) error {
	raw := c.Body()

	if h.signingKey != "" && !h.verifySignature(raw, c.Get(SignatureHeader)) {
		return apperrors.NewUnauthorized("invalid webhook signature")
	}

	var payload evidenceWebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.rejectMalformed(c, raw, err)
		return apperrors.NewValidationError("malformed webhook payload", map[string]any{
			"parse_error": err.Error(),
		})
	}
	if strings.TrimSpace(payload.Sender) == "" {
		h.rejectMalformed(c, raw, nil)
		return apperrors.NewValidationError("webhook payload missing sender", nil)
	}

	fingerprint := h.fingerprint(payload)

	ticket, err := h.correlate(c, payload)
	if err != nil {
		return err
	}

	receivedAt := payload.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	reply := intake.Reply{
		Sender:     payload.Sender,
		Subject:    payload.Subject,
		Body:       payload.Body,
		ReceivedAt: receivedAt,
	}
	for _, att := range payload.Attachments {
		reply.Attachments = append(reply.Attachments, intake.AttachmentInput{
			StorageKey:  att.StorageKey,
			FileName:    att.FileName,
			ContentType: att.ContentType,
			SizeBytes:   att.SizeBytes,
		})
	}

	if err := h.machine.OnEvidenceReceived(c.UserContext(), ticket.ID, fingerprint, reply); err != nil {
		return err
	}

	// marked only after the machine accepted the delivery: a transient
	// failure above leaves the cache untouched so the transport's retry is
	// processed, and a true redelivery still hits the durable audit gate
	if h.markSeen != nil && !h.markSeen("webhook:evidence:"+fingerprint, dedupeTTL) {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "duplicate",
			"ticket_id": ticket.ID,
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":    "accepted",
		"ticket_id": ticket.ID,
	})
}

type mailConfirmationPayload struct {
	TicketID     string    `json:"ticket_id"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// ConfirmMail handles POST /webhooks/mail-confirmation, the dispatch
// provider's callback that a letter physically went out. Redeliveries are
// absorbed by the audit log.
func (h *EvidenceWebhookHandler) ConfirmMail(c *fiber.Ctx) error {
	raw := c.Body()

	if h.signingKey != "" && !h.verifySignature(raw, c.Get(SignatureHeader)) {
		return apperrors.NewUnauthorized("invalid webhook signature")
	}

	var payload mailConfirmationPayload
	if err := json.Unmarshal(raw, &payload); err != nil || strings.TrimSpace(payload.TicketID) == "" {
		return apperrors.NewValidationError("malformed mail confirmation payload", nil)
	}

	if _, err := h.tickets.GetByID(c.UserContext(), payload.TicketID); err != nil {
		return err
	}

	dispatchedAt := payload.DispatchedAt
	if dispatchedAt.IsZero() {
		dispatchedAt = time.Now().UTC()
	}
	if err := h.machine.ConfirmMail(c.UserContext(), payload.TicketID, dispatchedAt); err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "confirmed"})
}

func (h *EvidenceWebhookHandler) verifySignature(body []byte, header string) bool {
	mac := hmac.New(sha256.New, []byte(h.signingKey))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(strings.TrimSpace(header)))
}

func (h *EvidenceWebhookHandler) fingerprint(payload evidenceWebhookPayload) string {
	if payload.MessageID != "" {
		sum := sha256.Sum256([]byte(payload.MessageID))
		return hex.EncodeToString(sum[:16])
	}
	sum := sha256.Sum256([]byte(payload.Sender + "\x00" + payload.Body))
	return hex.EncodeToString(sum[:16])
}

// correlate resolves the target ticket. A plus-addressed recipient like
// evidence+<ticket-id>@parkfair.example carries the ticket id directly;
// otherwise the sender's most recently updated open ticket wins. A suffix
// that is not a ticket id still falls back to the sender.
func (h *EvidenceWebhookHandler) correlate(c *fiber.Ctx, payload evidenceWebhookPayload) (*domain.Ticket, error) {
	if id := ticketIDFromRecipient(payload.Recipient); id != "" {
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			ticket, err := h.tickets.GetByID(c.UserContext(), id)
			if err == nil {
				return ticket, nil
			}
			if err != pgx.ErrNoRows {
				return nil, err
			}
		}
		// fall through to sender correlation
	}

	account, err := h.accounts.GetByEmail(c.UserContext(), payload.Sender)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NewNotFound("account", map[string]any{"sender": payload.Sender})
	}
	if err != nil {
		return nil, err
	}

	open, err := h.tickets.ListWithFilter(c.UserContext(), repository.TicketFilter{
		AccountID: &account.ID,
		Statuses: []domain.TicketStatus{
			domain.TicketStatusPendingEvidence,
			domain.TicketStatusNeedsApproval,
			domain.TicketStatusEvidenceReceived,
		},
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, apperrors.NewNotFound("open ticket", map[string]any{"account_id": account.ID})
	}
	return &open[0], nil
}

func ticketIDFromRecipient(recipient string) string {
	at := strings.Index(recipient, "@")
	if at < 0 {
		return ""
	}
	local := recipient[:at]
	plus := strings.Index(local, "+")
	if plus < 0 {
		return ""
	}
	return local[plus+1:]
}

// rejectMalformed archives the raw payload so a delivery that cannot be
// parsed is never silently lost.
func (h *EvidenceWebhookHandler) rejectMalformed(c *fiber.Ctx, raw []byte, parseErr error) {
	details := map[string]any{"raw_payload": string(raw)}
	if parseErr != nil {
		details["parse_error"] = parseErr.Error()
	}
	if err := h.audit.Append(c.UserContext(), &domain.AuditEntry{
		Actor:   "system:webhook",
		Action:  domain.AuditWebhookRejected,
		Details: details,
	}); err != nil {
		h.logger.Warn("failed to archive rejected webhook", zap.Error(err))
	}
}
