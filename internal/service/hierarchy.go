package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/repository"
	apperrors "github.com/spec-kit/coopdesk/pkg/util/errorutil"
)

// EscalationTarget is the next responsible tier for a ticket.
type EscalationTarget struct {
	Level domain.TicketLevel
	Org   domain.Organization
}

// HierarchyResolver finds the organization owning the next level up.
// A nil target with a nil error means there is nowhere to escalate.
type HierarchyResolver interface {
	Resolve(ctx context.Context, ticket domain.Ticket) (*EscalationTarget, error)
}

type parentHierarchyResolver struct {
	orgs   repository.OrganizationRepository
	logger *zap.Logger
}

// NewHierarchyResolver resolves targets by walking organization parent pointers.
func NewHierarchyResolver(orgs repository.OrganizationRepository, logger *zap.Logger) HierarchyResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &parentHierarchyResolver{orgs: orgs, logger: logger}
}

func (r *parentHierarchyResolver) Resolve(ctx context.Context, ticket domain.Ticket) (*EscalationTarget, error) {
	switch ticket.Level {
	case domain.LevelLocal:
		return r.federationFor(ctx, ticket)
	case domain.LevelFederation:
		return r.confederationFor(ctx, ticket)
	default:
		return nil, nil
	}
}

func (r *parentHierarchyResolver) federationFor(ctx context.Context, ticket domain.Ticket) (*EscalationTarget, error) {
	requester, err := r.lookup(ctx, ticket.RequestingOrgID)
	if err != nil || requester == nil {
		return nil, err
	}
	if requester.ParentID == nil || *requester.ParentID == "" {
		r.logger.Warn("organization has no parent federation",
			zap.String("ticket_id", ticket.ID), zap.String("org_id", requester.ID))
		return nil, nil
	}
	parent, err := r.lookup(ctx, *requester.ParentID)
	if err != nil || parent == nil {
		return nil, err
	}
	if parent.Kind != domain.OrgKindFederation {
		r.logger.Warn("parent organization is not a federation",
			zap.String("org_id", requester.ID), zap.String("parent_id", parent.ID), zap.String("kind", string(parent.Kind)))
		return nil, nil
	}
	return &EscalationTarget{Level: domain.LevelFederation, Org: *parent}, nil
}

func (r *parentHierarchyResolver) confederationFor(ctx context.Context, ticket domain.Ticket) (*EscalationTarget, error) {
	federation, err := r.lookup(ctx, ticket.ResponsibleOrgID)
	if err != nil {
		return nil, err
	}
	if federation != nil && federation.ParentID != nil && *federation.ParentID != "" {
		parent, err := r.lookup(ctx, *federation.ParentID)
		if err != nil {
			return nil, err
		}
		if parent != nil && parent.Kind == domain.OrgKindConfederation {
			return &EscalationTarget{Level: domain.LevelConfederation, Org: *parent}, nil
		}
	}

	confederation, err := r.orgs.FirstByKind(ctx, domain.OrgKindConfederation)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find confederation: %w", err)
	}
	return &EscalationTarget{Level: domain.LevelConfederation, Org: *confederation}, nil
}

func (r *parentHierarchyResolver) lookup(ctx context.Context, id string) (*domain.Organization, error) {
	if id == "" {
		return nil, nil
	}
	org, err := r.orgs.GetByID(ctx, id)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load organization %s: %w", id, err)
	}
	return org, nil
}
