package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spec-kit/coopdesk/internal/config"
	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/repository"
	apperrors "github.com/spec-kit/coopdesk/pkg/util/errorutil"
)

// Scope is the set of organizations a principal may act on.
type Scope struct {
	All    bool
	orgIDs map[string]struct{}
}

// AllScope is unrestricted.
func AllScope() Scope { return Scope{All: true} }

// NewScope restricts to the given ids.
func NewScope(ids ...string) Scope {
	s := Scope{orgIDs: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id != "" {
			s.orgIDs[id] = struct{}{}
		}
	}
	return s
}

// Contains reports whether orgID is inside the scope.
func (s Scope) Contains(orgID string) bool {
	if s.All {
		return true
	}
	_, ok := s.orgIDs[orgID]
	return ok
}

// Empty reports whether the scope grants nothing.
func (s Scope) Empty() bool {
	return !s.All && len(s.orgIDs) == 0
}

// IDs returns the sorted ids of a restricted scope.
func (s Scope) IDs() []string {
	ids := make([]string, 0, len(s.orgIDs))
	for id := range s.orgIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CanManage reports whether scope covers orgID.
func CanManage(scope Scope, orgID string) bool {
	return scope.Contains(orgID)
}

// VisibilityResolver computes what a principal may view or manage.
type VisibilityResolver struct {
	orgs     repository.OrganizationRepository
	insecure bool
}

// NewVisibilityResolver builds a resolver. SecurityConfig.InsecureMode widens every scope to all.
func NewVisibilityResolver(orgs repository.OrganizationRepository, security config.SecurityConfig) *VisibilityResolver {
	return &VisibilityResolver{orgs: orgs, insecure: security.InsecureMode}
}

// ManageableOrgs returns the coverage scope of p.
func (v *VisibilityResolver) ManageableOrgs(ctx context.Context, p domain.Principal) (Scope, error) {
	if v.insecure {
		return AllScope(), nil
	}
	org, err := v.principalOrg(ctx, p)
	if err != nil {
		return Scope{}, err
	}
	kind := domain.OrgKind("")
	if org != nil {
		kind = org.Kind
	}

	switch {
	case p.Role == domain.RoleConfederation || kind == domain.OrgKindConfederation:
		return AllScope(), nil
	case p.Role == domain.RoleFederation || kind == domain.OrgKindFederation:
		if org == nil {
			return NewScope(), nil
		}
		return v.federationScope(ctx, org.ID)
	case p.Role == domain.RoleAdmin && kind == domain.OrgKindLocal:
		return NewScope(org.ID), nil
	default:
		return NewScope(), nil
	}
}

// VisibleOrgs returns the organizations whose tickets p may list. Everyone sees
// their own organization; federation and confederation users see their coverage.
func (v *VisibilityResolver) VisibleOrgs(ctx context.Context, p domain.Principal) (Scope, error) {
	scope, err := v.ManageableOrgs(ctx, p)
	if err != nil {
		return Scope{}, err
	}
	if scope.All || p.OrganizationID == "" {
		return scope, nil
	}
	scope.orgIDs[p.OrganizationID] = struct{}{}
	return scope, nil
}

// CanViewTicket reports whether p may read t.
func (v *VisibilityResolver) CanViewTicket(ctx context.Context, p domain.Principal, t domain.Ticket) (bool, error) {
	if p.Email != "" && strings.EqualFold(t.CreatedBy, p.Email) {
		return true, nil
	}
	scope, err := v.VisibleOrgs(ctx, p)
	if err != nil {
		return false, err
	}
	return scope.Contains(t.RequestingOrgID) || scope.Contains(t.ResponsibleOrgID), nil
}

func (v *VisibilityResolver) federationScope(ctx context.Context, federationID string) (Scope, error) {
	children, err := v.orgs.ListChildren(ctx, federationID)
	if err != nil {
		return Scope{}, fmt.Errorf("list federation members: %w", err)
	}
	ids := []string{federationID}
	for _, child := range children {
		if child.Kind == domain.OrgKindLocal {
			ids = append(ids, child.ID)
		}
	}
	return NewScope(ids...), nil
}

func (v *VisibilityResolver) principalOrg(ctx context.Context, p domain.Principal) (*domain.Organization, error) {
	if p.OrganizationID == "" {
		return nil, nil
	}
	org, err := v.orgs.GetByID(ctx, p.OrganizationID)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load principal organization: %w", err)
	}
	return org, nil
}
