package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/coopdesk/internal/api/dto"
	"github.com/spec-kit/coopdesk/internal/service"
	apperrors "github.com/spec-kit/coopdesk/pkg/util/errorutil"
)

// AlertsHandler exposes the caller's in-app notifications.
type AlertsHandler struct {
	service *service.AlertService
}

// NewAlertsHandler constructs handler.
func NewAlertsHandler(alertService *service.AlertService) *AlertsHandler {
	return &AlertsHandler{service: alertService}
}

// List GET /alerts.
func (h *AlertsHandler) List(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	alerts, err := h.service.List(c.UserContext(), principal, c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	items := make([]dto.AlertResponse, 0, len(alerts))
	for _, a := range alerts {
		items = append(items, dto.NewAlertResponse(a))
	}
	return c.JSON(fiber.Map{"data": items})
}

// SetRead POST /alerts/:id/read.
func (h *AlertsHandler) SetRead(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	read := true
	if len(c.Body()) > 0 {
		var req dto.SetAlertReadRequest
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
		if req.Read != nil {
			read = *req.Read
		}
	}
	alert, err := h.service.SetRead(c.UserContext(), principal, c.Params("id"), read)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAlertResponse(*alert)})
}

// MarkAllRead POST /alerts/read-all.
func (h *AlertsHandler) MarkAllRead(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	updated, err := h.service.MarkAllRead(c.UserContext(), principal)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"updated": updated}})
}
