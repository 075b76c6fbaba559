package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/coopdesk/internal/api/http/handlers"
	"github.com/spec-kit/coopdesk/internal/auth"
	"github.com/spec-kit/coopdesk/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Metrics        *handlers.MetricsHandler
	Tickets        *handlers.TicketsHandler
	Sweep          *handlers.SweepHandler
	Settings       *handlers.SettingsHandler
	Alerts         *handlers.AlertsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Metrics.Snapshot)

	// Authenticated by the shared webhook secret instead of a bearer token.
	app.Post("/internal/sweep", cfg.Sweep.Webhook)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())

	tickets := protected.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Put("/:id", cfg.Tickets.UpdateTicket)
	tickets.Post("/:id/transfer", cfg.Tickets.TransferTicket)
	tickets.Get("/:id/audit", cfg.Tickets.ListAudit)

	protected.Get("/dashboard/stats", cfg.Tickets.DashboardStats)

	protected.Get("/settings/system", cfg.Settings.GetSystem)
	protected.Put("/settings/system", cfg.Settings.UpdateSystem)
	protected.Get("/organizations/:id/escalation-settings", cfg.Settings.GetOrgEscalation)
	protected.Put("/organizations/:id/escalation-settings", cfg.Settings.UpdateOrgEscalation)

	alerts := protected.Group("/alerts")
	alerts.Get("/", cfg.Alerts.List)
	alerts.Post("/read-all", cfg.Alerts.MarkAllRead)
	alerts.Post("/:id/read", cfg.Alerts.SetRead)

	admin := protected.Group("/admin", auth.RequireRole(domain.RoleAdmin, domain.RoleConfederation))
	admin.Post("/sweep", cfg.Sweep.Run)
}
