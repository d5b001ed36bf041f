package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/parkfair/contest-service/internal/approval"
	"github.com/parkfair/contest-service/internal/lifecycle"
	apperrors "github.com/parkfair/contest-service/pkg/util/errorutil"
)

// ApprovalHandler resolves emailed approve/skip links.
type ApprovalHandler struct {
	tokens  *approval.TokenManager
	machine *lifecycle.Machine
}

// NewApprovalHandler builds the handler.
func NewApprovalHandler(tokens *approval.TokenManager, machine *lifecycle.Machine) *ApprovalHandler {
	return &ApprovalHandler{tokens: tokens, machine: machine}
}

// Resolve handles GET /approval/:token. The link arrives from an email
// client, so the response is a plain JSON acknowledgment rather than a
// redirect.
func (h *ApprovalHandler) Resolve(c *fiber.Ctx) error {
	claims, err := h.tokens.Parse(c.Params("token"))
	if err != nil {
		return apperrors.NewUnauthorized("invalid or expired approval link")
	}

	err = h.machine.OnApprovalAction(c.UserContext(), claims)
	switch {
	case errors.Is(err, lifecycle.ErrApprovalConsumed):
		return apperrors.NewGone("this approval link was already used")
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.NewNotFound("ticket", nil)
	case err != nil:
		return err
	}

	status := "approved"
	if claims.Action == approval.ActionSkip {
		status = "skipped"
	}
	return c.JSON(fiber.Map{
		"status":    status,
		"ticket_id": claims.TicketID,
	})
}
