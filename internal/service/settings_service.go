package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/repository"
	apperrors "github.com/spec-kit/coopdesk/pkg/util/errorutil"
)

// SettingsService manages system preferences and per-organization escalation switches.
type SettingsService struct {
	settings   repository.SettingsRepository
	escalation repository.EscalationSettingRepository
	orgs       repository.OrganizationRepository
	visibility *VisibilityResolver
	cascade    *EscalationService
	logger     *zap.Logger

	Now func() time.Time
}

// SettingsDependencies bundles collaborators for SettingsService.
type SettingsDependencies struct {
	SettingsRepo          repository.SettingsRepository
	EscalationSettingRepo repository.EscalationSettingRepository
	OrganizationRepo      repository.OrganizationRepository
	Visibility            *VisibilityResolver
	Escalation            *EscalationService
	Logger                *zap.Logger
}

// OrgEscalationSettings is the read model for an organization's escalation switch.
type OrgEscalationSettings struct {
	Organization domain.Organization
	Setting      domain.EscalationSetting
	// Cascaded counts tickets moved by the cascade that enabling auto-decline triggered.
	Cascaded int
}

// NewSettingsService constructs the service.
func NewSettingsService(deps SettingsDependencies) *SettingsService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{
		settings:   deps.SettingsRepo,
		escalation: deps.EscalationSettingRepo,
		orgs:       deps.OrganizationRepo,
		visibility: deps.Visibility,
		cascade:    deps.Escalation,
		logger:     logger,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// GetSystem returns the stored preferences, or the defaults when none are stored.
func (s *SettingsService) GetSystem(ctx context.Context) (domain.SystemSettings, error) {
	stored, err := s.settings.GetSystem(ctx)
	if apperrors.IsNotFound(err) || (err == nil && stored == nil) {
		return domain.DefaultSystemSettings(), nil
	}
	if err != nil {
		return domain.SystemSettings{}, apperrors.NewInternalError(err)
	}
	return *stored, nil
}

// UpdateSystem replaces the preferences document. Only confederation users may do this.
func (s *SettingsService) UpdateSystem(ctx context.Context, actor domain.Principal, next domain.SystemSettings) (domain.SystemSettings, error) {
	if actor.Role != domain.RoleConfederation {
		return domain.SystemSettings{}, apperrors.NewForbidden("only confederation users may change system settings")
	}
	if next.LocalToFederationDays < 1 || next.FederationToConfederationDays < 1 {
		return domain.SystemSettings{}, apperrors.NewValidationError("escalation windows must be at least one day", map[string]any{
			"local_to_federation_days":         next.LocalToFederationDays,
			"federation_to_confederation_days": next.FederationToConfederationDays,
		})
	}
	if next.Theme == "" {
		next.Theme = domain.DefaultSystemSettings().Theme
	}
	if err := s.settings.SaveSystem(ctx, next); err != nil {
		return domain.SystemSettings{}, apperrors.NewInternalError(err)
	}
	s.logger.Info("system settings updated",
		zap.String("actor", actor.DisplayName()),
		zap.Int("local_to_federation_days", next.LocalToFederationDays),
		zap.Int("federation_to_confederation_days", next.FederationToConfederationDays))
	return next, nil
}

// GetOrgEscalation returns the auto-decline switch of an organization actor manages.
func (s *SettingsService) GetOrgEscalation(ctx context.Context, actor domain.Principal, orgID string) (*OrgEscalationSettings, error) {
	org, err := s.authorizeOrg(ctx, actor, orgID)
	if err != nil {
		return nil, err
	}
	setting, err := s.escalation.Get(ctx, orgID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &OrgEscalationSettings{Organization: *org, Setting: *setting}, nil
}

// UpdateOrgEscalation sets the auto-decline switch. Enabling it immediately cascades
// the organization's open tickets upward.
func (s *SettingsService) UpdateOrgEscalation(ctx context.Context, actor domain.Principal, orgID string, autoDecline bool) (*OrgEscalationSettings, error) {
	org, err := s.authorizeOrg(ctx, actor, orgID)
	if err != nil {
		return nil, err
	}
	if autoDecline && org.Kind == domain.OrgKindConfederation {
		return nil, apperrors.NewValidationError("the confederation cannot decline tickets", map[string]any{"org_id": orgID})
	}

	setting := domain.EscalationSetting{OrgID: orgID, AutoDecline: autoDecline, UpdatedAt: s.Now()}
	if err := s.escalation.Upsert(ctx, &setting); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	result := &OrgEscalationSettings{Organization: *org, Setting: setting}
	if autoDecline && s.cascade != nil {
		moved, err := s.cascade.CascadeOrganization(ctx, orgID, actor)
		if err != nil {
			s.logger.Error("cascade after enabling auto-decline failed", zap.String("org_id", orgID), zap.Error(err))
		}
		result.Cascaded = moved
	}
	return result, nil
}

func (s *SettingsService) authorizeOrg(ctx context.Context, actor domain.Principal, orgID string) (*domain.Organization, error) {
	org, err := s.orgs.GetByID(ctx, orgID)
	if apperrors.IsNotFound(err) {
		return nil, apperrors.NewNotFound("organization", map[string]any{"org_id": orgID})
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	scope, err := s.visibility.ManageableOrgs(ctx, actor)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !CanManage(scope, orgID) {
		return nil, apperrors.NewForbidden("organization outside your coverage")
	}
	return org, nil
}
