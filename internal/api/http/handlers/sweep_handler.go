package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/coopdesk/internal/api/dto"
	"github.com/spec-kit/coopdesk/internal/auth"
	"github.com/spec-kit/coopdesk/internal/service"
	apperrors "github.com/spec-kit/coopdesk/pkg/util/errorutil"
)

const (
	headerCron       = "X-Cron"
	headerSweepToken = "X-Sweep-Token"
	sweepTask        = "escalate"
)

// SweepRunner runs one escalation sweep.
type SweepRunner interface {
	Run(ctx context.Context) (service.SweepSummary, error)
}

// SweepHandler triggers escalation sweeps on demand.
type SweepHandler struct {
	sweeper     SweepRunner
	webhookHash string
	logger      *zap.Logger
	timeout     time.Duration
}

// NewSweepHandler constructs handler. An empty webhookHash disables the webhook.
func NewSweepHandler(sweeper SweepRunner, webhookHash string, logger *zap.Logger) *SweepHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepHandler{sweeper: sweeper, webhookHash: webhookHash, logger: logger, timeout: service.SweepTimeout}
}

// Run POST /admin/sweep.
func (h *SweepHandler) Run(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	h.logger.Info("manual sweep requested", zap.String("actor", principal.Email))
	return h.run(c)
}

// Webhook POST /internal/sweep, called by an external scheduler.
func (h *SweepHandler) Webhook(c *fiber.Ctx) error {
	if h.webhookHash == "" {
		return apperrors.NewForbidden("sweep webhook disabled")
	}
	if !h.isSweepRequest(c) {
		return apperrors.NewValidationError("unsupported task", nil)
	}
	token := strings.TrimSpace(c.Get(headerSweepToken))
	if token == "" || auth.CompareSecret(h.webhookHash, token) != nil {
		return apperrors.NewUnauthorized("invalid sweep token")
	}
	return h.run(c)
}

func (h *SweepHandler) isSweepRequest(c *fiber.Ctx) bool {
	if strings.EqualFold(c.Get(headerCron), "true") {
		return true
	}
	if len(c.Body()) == 0 {
		return false
	}
	var req dto.SweepWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return false
	}
	return req.Task == sweepTask
}

// run detaches the sweep from the request deadline so a slow backlog is not
// cut off by the HTTP timeout or a dropped client; it gets the same budget as
// a scheduled sweep instead.
func (h *SweepHandler) run(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.UserContext()), h.timeout)
	defer cancel()
	summary, err := h.sweeper.Run(ctx)
	if errors.Is(err, service.ErrSweepInProgress) {
		return apperrors.NewConflict("sweep already in progress", nil)
	}
	if err != nil {
		return err
	}
	if summary.Truncated {
		h.logger.Warn("sweep stopped before draining the backlog", zap.Int("scanned", summary.Scanned))
	}
	return c.JSON(fiber.Map{"data": summary})
}
