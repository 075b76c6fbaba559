package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/repository"
	apperrors "github.com/spec-kit/coopdesk/pkg/util/errorutil"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 200

	auditActionAlertViewed = "Alert viewed"
)

// AlertService exposes a recipient's in-app alerts.
type AlertService struct {
	alerts repository.AlertRepository
	audit  repository.AuditRepository
	logger *zap.Logger

	Now func() time.Time
}

// NewAlertService constructs the service.
func NewAlertService(alerts repository.AlertRepository, audit repository.AuditRepository, logger *zap.Logger) *AlertService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertService{
		alerts: alerts,
		audit:  audit,
		logger: logger,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// List returns the caller's alerts, unread first. limit is clamped to [1, 200].
func (s *AlertService) List(ctx context.Context, actor domain.Principal, limit int) ([]domain.Alert, error) {
	if actor.Email == "" {
		return nil, apperrors.NewUnauthorized("principal has no email")
	}
	switch {
	case limit <= 0:
		limit = defaultAlertLimit
	case limit > maxAlertLimit:
		limit = maxAlertLimit
	}
	alerts, err := s.alerts.ListForRecipient(ctx, strings.ToLower(actor.Email), limit)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return alerts, nil
}

// SetRead flags one alert as read or unread. The first read is audited on the ticket.
func (s *AlertService) SetRead(ctx context.Context, actor domain.Principal, alertID string, read bool) (*domain.Alert, error) {
	alert, err := s.alerts.GetByID(ctx, alertID)
	if apperrors.IsNotFound(err) {
		return nil, apperrors.NewNotFound("alert", map[string]any{"alert_id": alertID})
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !strings.EqualFold(alert.RecipientEmail, actor.Email) {
		return nil, apperrors.NewForbidden("alert belongs to another user")
	}
	if alert.Read == read {
		return alert, nil
	}
	if err := s.alerts.SetRead(ctx, alertID, read); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	alert.Read = read
	if !read {
		return alert, nil
	}

	entry := domain.AuditEntry{
		ID:        uuid.NewString(),
		TicketID:  alert.TicketID,
		ActorID:   actor.ID,
		ActorName: actor.DisplayName(),
		Action:    auditActionAlertViewed,
		Details:   alert.Title,
		Timestamp: s.Now(),
	}
	if err := s.audit.Append(ctx, &entry); err != nil {
		s.logger.Warn("audit append failed", zap.String("alert_id", alertID), zap.Error(err))
	}
	return alert, nil
}

// MarkAllRead flags every alert of the caller as read and returns how many changed.
func (s *AlertService) MarkAllRead(ctx context.Context, actor domain.Principal) (int64, error) {
	if actor.Email == "" {
		return 0, apperrors.NewUnauthorized("principal has no email")
	}
	n, err := s.alerts.MarkAllRead(ctx, strings.ToLower(actor.Email))
	if err != nil {
		return 0, apperrors.NewInternalError(err)
	}
	return n, nil
}
