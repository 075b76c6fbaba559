package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/repository/memory"
)

func TestGetSystemDefaultsWhenMissing(t *testing.T) {
	repos := memory.NewStore().Repositories()
	svc := NewSettingsService(SettingsDependencies{SettingsRepo: repos.Settings})

	got, err := svc.GetSystem(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSystemSettings(), got)
}

func TestUpdateSystemRequiresConfederation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	next := domain.DefaultSystemSettings()
	next.LocalToFederationDays = 7

	_, err := h.settings.UpdateSystem(ctx, withRole(operator("local-a", "a@a.test"), domain.RoleAdmin), next)
	requireStatus(t, err, http.StatusForbidden)

	conf := withRole(operator("conf", "c@conf.test"), domain.RoleConfederation)
	bad := next
	bad.FederationToConfederationDays = 0
	_, err = h.settings.UpdateSystem(ctx, conf, bad)
	requireStatus(t, err, http.StatusBadRequest)

	_, err = h.settings.UpdateSystem(ctx, conf, next)
	require.NoError(t, err)
	assert.Equal(t, 7, h.deadlines.DaysFor(ctx, domain.LevelLocal))
}

func TestUpdateOrgEscalationCascadesOpenTickets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedTicket(t, "t1", "local-a", "local-a", harnessStart.Add(72*time.Hour))
	admin := withRole(operator("local-a", "admin@a.test"), domain.RoleAdmin)

	got, err := h.settings.UpdateOrgEscalation(ctx, admin, "local-a", true)
	require.NoError(t, err)
	assert.True(t, got.Setting.AutoDecline)
	assert.Equal(t, 1, got.Cascaded)
	assert.Equal(t, domain.LevelFederation, h.ticket(t, "t1").Level)

	read, err := h.settings.GetOrgEscalation(ctx, admin, "local-a")
	require.NoError(t, err)
	assert.True(t, read.Setting.AutoDecline)
	assert.Equal(t, "Coop A", read.Organization.DisplayName)

	off, err := h.settings.UpdateOrgEscalation(ctx, admin, "local-a", false)
	require.NoError(t, err)
	assert.False(t, off.Setting.AutoDecline)
	assert.Zero(t, off.Cascaded)
}

func TestUpdateOrgEscalationGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.settings.UpdateOrgEscalation(ctx, withRole(operator("local-a", "admin@a.test"), domain.RoleAdmin), "local-b", true)
	requireStatus(t, err, http.StatusForbidden)

	_, err = h.settings.UpdateOrgEscalation(ctx, operator("local-a", "op@a.test"), "local-a", true)
	requireStatus(t, err, http.StatusForbidden)

	conf := withRole(operator("conf", "c@conf.test"), domain.RoleConfederation)
	_, err = h.settings.UpdateOrgEscalation(ctx, conf, "conf", true)
	requireStatus(t, err, http.StatusBadRequest)

	_, err = h.settings.GetOrgEscalation(ctx, conf, "missing")
	requireStatus(t, err, http.StatusNotFound)

	fed := withRole(operator("fed-north", "f@north.test"), domain.RoleFederation)
	_, err = h.settings.UpdateOrgEscalation(ctx, fed, "local-b", true)
	require.NoError(t, err)
	_, err = h.settings.UpdateOrgEscalation(ctx, fed, "local-c", true)
	requireStatus(t, err, http.StatusForbidden)
}
