package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/coopdesk/internal/config"
	"github.com/spec-kit/coopdesk/internal/domain"
)

func TestManageableOrgsByRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	scope, err := h.visibility.ManageableOrgs(ctx, withRole(operator("conf", "c@conf.test"), domain.RoleConfederation))
	require.NoError(t, err)
	assert.True(t, scope.All)

	scope, err = h.visibility.ManageableOrgs(ctx, withRole(operator("fed-north", "f@north.test"), domain.RoleFederation))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fed-north", "local-a", "local-b"}, scope.IDs())
	assert.False(t, scope.Contains("local-c"))

	scope, err = h.visibility.ManageableOrgs(ctx, withRole(operator("local-a", "admin@a.test"), domain.RoleAdmin))
	require.NoError(t, err)
	assert.Equal(t, []string{"local-a"}, scope.IDs())

	scope, err = h.visibility.ManageableOrgs(ctx, operator("local-a", "op@a.test"))
	require.NoError(t, err)
	assert.True(t, scope.Empty())
}

func TestVisibleOrgsIncludesOwnOrganization(t *testing.T) {
	h := newHarness(t)

	scope, err := h.visibility.VisibleOrgs(context.Background(), operator("local-a", "op@a.test"))
	require.NoError(t, err)
	assert.Equal(t, []string{"local-a"}, scope.IDs())
}

func TestCanViewTicket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := domain.Ticket{ID: "t1", RequestingOrgID: "local-a", ResponsibleOrgID: "local-b", CreatedBy: "Creator@Elsewhere.test"}

	cases := []struct {
		name string
		p    domain.Principal
		want bool
	}{
		{"requesting org", operator("local-a", "x@a.test"), true},
		{"responsible org", operator("local-b", "x@b.test"), true},
		{"creator by email", operator("local-c", "creator@elsewhere.test"), true},
		{"parent federation", withRole(operator("fed-north", "f@north.test"), domain.RoleFederation), true},
		{"other federation", withRole(operator("fed-south", "f@south.test"), domain.RoleFederation), false},
		{"unrelated coop", operator("local-c", "x@c.test"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := h.visibility.CanViewTicket(ctx, tc.p, ticket)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestInsecureModeWidensScope(t *testing.T) {
	h := newHarness(t)
	resolver := NewVisibilityResolver(h.repos.Organizations, config.SecurityConfig{InsecureMode: true})

	scope, err := resolver.ManageableOrgs(context.Background(), operator("local-a", "op@a.test"))
	require.NoError(t, err)
	assert.True(t, scope.All)
	assert.True(t, CanManage(scope, "anything"))
}
