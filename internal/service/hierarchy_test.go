package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/repository/memory"
)

func TestResolverWalksParents(t *testing.T) {
	h := newHarness(t)
	resolver := NewHierarchyResolver(h.repos.Organizations, nil)
	ctx := context.Background()

	local := domain.Ticket{ID: "t1", Level: domain.LevelLocal, RequestingOrgID: "local-a", ResponsibleOrgID: "local-b"}
	target, err := resolver.Resolve(ctx, local)
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, domain.LevelFederation, target.Level)
	assert.Equal(t, "fed-north", target.Org.ID)

	federation := domain.Ticket{ID: "t1", Level: domain.LevelFederation, RequestingOrgID: "local-a", ResponsibleOrgID: "fed-north"}
	target, err = resolver.Resolve(ctx, federation)
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, domain.LevelConfederation, target.Level)
	assert.Equal(t, "conf", target.Org.ID)

	top := domain.Ticket{ID: "t1", Level: domain.LevelConfederation, ResponsibleOrgID: "conf"}
	target, err = resolver.Resolve(ctx, top)
	require.NoError(t, err)
	assert.Nil(t, target)
}

func TestResolverUsesRequesterNotResponsibleForFederation(t *testing.T) {
	h := newHarness(t)
	resolver := NewHierarchyResolver(h.repos.Organizations, nil)

	// requested by a southern coop, currently handled by a northern one
	ticket := domain.Ticket{ID: "t1", Level: domain.LevelLocal, RequestingOrgID: "local-c", ResponsibleOrgID: "local-a"}
	target, err := resolver.Resolve(context.Background(), ticket)
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, "fed-south", target.Org.ID)
}

func TestResolverReturnsNilForOrphans(t *testing.T) {
	h := newHarness(t)
	resolver := NewHierarchyResolver(h.repos.Organizations, nil)

	ticket := domain.Ticket{ID: "t1", Level: domain.LevelLocal, RequestingOrgID: "local-x", ResponsibleOrgID: "local-x"}
	target, err := resolver.Resolve(context.Background(), ticket)
	require.NoError(t, err)
	assert.Nil(t, target)

	ticket.RequestingOrgID = "missing"
	target, err = resolver.Resolve(context.Background(), ticket)
	require.NoError(t, err)
	assert.Nil(t, target)
}

func TestResolverFallsBackToAnyConfederation(t *testing.T) {
	store := memory.NewStore()
	repos := store.Repositories()
	ctx := context.Background()
	require.NoError(t, repos.Organizations.Upsert(ctx, &domain.Organization{ID: "fed", Kind: domain.OrgKindFederation}))
	resolver := NewHierarchyResolver(repos.Organizations, nil)
	ticket := domain.Ticket{ID: "t1", Level: domain.LevelFederation, ResponsibleOrgID: "fed"}

	target, err := resolver.Resolve(ctx, ticket)
	require.NoError(t, err)
	assert.Nil(t, target, "no confederation exists")

	require.NoError(t, repos.Organizations.Upsert(ctx, &domain.Organization{ID: "conf", Kind: domain.OrgKindConfederation}))
	target, err = resolver.Resolve(ctx, ticket)
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, "conf", target.Org.ID)
}

func TestResolverPropagatesLookupFailures(t *testing.T) {
	h := newHarness(t)
	resolver := NewHierarchyResolver(h.repos.Organizations, nil)
	h.store.FailOrgLookup = errors.New("db down")

	_, err := resolver.Resolve(context.Background(), domain.Ticket{ID: "t1", Level: domain.LevelLocal, RequestingOrgID: "local-a"})
	require.ErrorContains(t, err, "db down")
}
