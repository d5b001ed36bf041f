package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/parkfair/contest-service/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Webhooks  *handlers.EvidenceWebhookHandler
	Approvals *handlers.ApprovalHandler
	Tickets   *handlers.TicketsHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/webhooks/evidence", cfg.Webhooks.Receive)
	app.Post("/webhooks/mail-confirmation", cfg.Webhooks.ConfirmMail)
	app.Get("/approval/:token", cfg.Approvals.Resolve)

	admin := app.Group("/admin")
	admin.Get("/tickets", cfg.Tickets.List)
	admin.Get("/tickets/:id", cfg.Tickets.Get)
	admin.Get("/tickets/:id/audit", cfg.Tickets.Audit)
	admin.Get("/tickets/:id/attachments/:key", cfg.Tickets.Attachment)
}
