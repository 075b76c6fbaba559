package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/coopdesk/internal/api/dto"
	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/service"
	apperrors "github.com/spec-kit/coopdesk/pkg/util/errorutil"
)

// SettingsHandler exposes system preferences and per-organization escalation switches.
type SettingsHandler struct {
	service *service.SettingsService
}

// NewSettingsHandler constructs handler.
func NewSettingsHandler(settingsService *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{service: settingsService}
}

// GetSystem GET /settings/system.
func (h *SettingsHandler) GetSystem(c *fiber.Ctx) error {
	settings, err := h.service.GetSystem(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": settings})
}

// UpdateSystem PUT /settings/system.
func (h *SettingsHandler) UpdateSystem(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req domain.SystemSettings
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	settings, err := h.service.UpdateSystem(c.UserContext(), principal, req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": settings})
}

// GetOrgEscalation GET /organizations/:id/escalation-settings.
func (h *SettingsHandler) GetOrgEscalation(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	result, err := h.service.GetOrgEscalation(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": orgEscalationResponse(result)})
}

// UpdateOrgEscalation PUT /organizations/:id/escalation-settings.
func (h *SettingsHandler) UpdateOrgEscalation(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateOrgEscalationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.AutoDecline == nil {
		return apperrors.NewValidationError("auto_decline required", nil)
	}
	result, err := h.service.UpdateOrgEscalation(c.UserContext(), principal, c.Params("id"), *req.AutoDecline)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": orgEscalationResponse(result)})
}

func orgEscalationResponse(r *service.OrgEscalationSettings) dto.OrgEscalationResponse {
	var updatedAt *time.Time
	if !r.Setting.UpdatedAt.IsZero() {
		ts := r.Setting.UpdatedAt
		updatedAt = &ts
	}
	return dto.OrgEscalationResponse{
		OrgID:       r.Organization.ID,
		OrgName:     r.Organization.DisplayName,
		Kind:        r.Organization.Kind,
		AutoDecline: r.Setting.AutoDecline,
		UpdatedAt:   updatedAt,
		Cascaded:    r.Cascaded,
	}
}
