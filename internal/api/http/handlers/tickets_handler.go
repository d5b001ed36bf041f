package handlers

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/parkfair/contest-service/internal/api/dto"
	"github.com/parkfair/contest-service/internal/collaborator"
	"github.com/parkfair/contest-service/internal/domain"
	"github.com/parkfair/contest-service/internal/repository"
	apperrors "github.com/parkfair/contest-service/pkg/util/errorutil"
)

// TicketsHandler exposes read-only operational views over tickets, their
// evidence, letters, and audit trails. Status only moves through the
// lifecycle machine, never through this surface.
type TicketsHandler struct {
	tickets  repository.TicketRepository
	evidence repository.EvidenceRepository
	letters  repository.LetterRepository
	audit    repository.AuditRepository
	blobs    collaborator.BlobStore
}

// NewTicketsHandler builds the handler.
func NewTicketsHandler(
	tickets repository.TicketRepository,
	evidence repository.EvidenceRepository,
	letters repository.LetterRepository,
	audit repository.AuditRepository,
	blobs collaborator.BlobStore,
) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, evidence: evidence, letters: letters, audit: audit, blobs: blobs}
}

// List handles GET /admin/tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	filter := repository.TicketFilter{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
	}
	if accountID := c.Query("account_id"); accountID != "" {
		filter.AccountID = &accountID
	}
	if plateID := c.Query("plate_id"); plateID != "" {
		filter.PlateID = &plateID
	}
	if rawStatuses := c.Query("status"); rawStatuses != "" {
		for _, raw := range strings.Split(rawStatuses, ",") {
			status := domain.TicketStatus(strings.ToUpper(strings.TrimSpace(raw)))
			if !status.Valid() {
				return apperrors.NewValidationError("unknown status filter", map[string]any{"status": raw})
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	tickets, err := h.tickets.ListWithFilter(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for _, ticket := range tickets {
		items = append(items, dto.FromTicketSummary(ticket))
	}
	return c.JSON(fiber.Map{"items": items, "count": len(items)})
}

// Get handles GET /admin/tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	ticket, err := h.tickets.GetByID(c.UserContext(), id)
	if err == pgx.ErrNoRows {
		return apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	if err != nil {
		return err
	}

	evidence, err := h.evidence.GetByTicket(c.UserContext(), ticket.ID)
	if err != nil && err != pgx.ErrNoRows {
		return err
	}
	letter, err := h.letters.GetByTicket(c.UserContext(), ticket.ID)
	if err != nil && err != pgx.ErrNoRows {
		return err
	}

	return c.JSON(dto.FromTicketDetail(*ticket, evidence, letter))
}

// Audit handles GET /admin/tickets/:id/audit.
func (h *TicketsHandler) Audit(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.tickets.GetByID(c.UserContext(), id); err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		return err
	}

	entries, err := h.audit.ListByTicket(c.UserContext(), id,
		parseIntDefault(c.Query("limit"), 100),
		parseIntDefault(c.Query("offset"), 0))
	if err != nil {
		return err
	}
	items := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.FromAuditEntry(entry))
	}
	return c.JSON(fiber.Map{"items": items, "count": len(items)})
}

// Attachment handles GET /admin/tickets/:id/attachments/:key. The key must
// belong to the ticket's evidence record; bytes come from the blob store.
func (h *TicketsHandler) Attachment(c *fiber.Ctx) error {
	id := c.Params("id")
	key, err := url.PathUnescape(c.Params("key"))
	if err != nil {
		return apperrors.NewValidationError("invalid attachment key", nil)
	}

	evidence, err := h.evidence.GetByTicket(c.UserContext(), id)
	if err == pgx.ErrNoRows {
		return apperrors.NewNotFound("evidence", map[string]any{"ticket_id": id})
	}
	if err != nil {
		return err
	}

	var att *domain.AttachmentRef
	for i := range evidence.Attachments {
		if evidence.Attachments[i].StorageKey == key {
			att = &evidence.Attachments[i]
			break
		}
	}
	if att == nil {
		return apperrors.NewNotFound("attachment", map[string]any{"key": key})
	}

	data, err := h.blobs.Fetch(c.UserContext(), att.StorageKey)
	if err != nil {
		return apperrors.NewNotFound("attachment content", map[string]any{"key": key})
	}
	if att.MimeType != "" {
		c.Set(fiber.HeaderContentType, att.MimeType)
	}
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+att.FileName+`"`)
	return c.Send(data)
}

func parseIntDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
