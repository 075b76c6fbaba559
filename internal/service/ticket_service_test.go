package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/events"
	"github.com/spec-kit/coopdesk/internal/repository"
	apperrors "github.com/spec-kit/coopdesk/pkg/util/errorutil"
)

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, status, apperrors.ToDomainError(err).HTTPStatus, err.Error())
}

func TestCreateTicketRoutesByCity(t *testing.T) {
	h := newHarness(t)
	actor := operator("local-a", "ana@a.test")

	got, err := h.tickets.CreateTicket(context.Background(), actor, TicketCreateInput{
		Title:       "  Need tractors  ",
		CityID:      "city-b",
		Specialties: []string{"machinery", " ", "logistics"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Need tractors", got.Title)
	assert.Equal(t, "local-a", got.RequestingOrgID)
	assert.Equal(t, "local-b", got.ResponsibleOrgID)
	assert.Equal(t, domain.LevelLocal, got.Level)
	assert.Equal(t, domain.TicketStatusNew, got.Status)
	assert.Equal(t, domain.TicketPriorityMedium, got.Priority)
	assert.Equal(t, 1, got.Quantity)
	assert.Equal(t, []string{"machinery", "logistics"}, got.Specialties)
	assert.Equal(t, "ana@a.test", got.CreatedBy)
	assert.Equal(t, harnessStart.Add(3*24*time.Hour), *got.DueAt)
	assert.Equal(t, 3, got.DaysRemaining)
	assert.Equal(t, domain.ViewpointMade, got.Viewpoint)
	require.NotNil(t, got.ResponsibleOrgName)
	assert.Equal(t, "Coop B", *got.ResponsibleOrgName)

	assert.Len(t, h.auditFor(got.ID, auditActionCreated), 1)
	outbox := h.store.OutboxEvents()
	require.Len(t, outbox, 1)
	assert.Equal(t, string(events.EventTicketCreated), string(outbox[0].EventType))
}

func TestCreateTicketValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.tickets.CreateTicket(ctx, withRole(operator("fed-north", "f@north.test"), domain.RoleFederation), TicketCreateInput{Title: "x", CityID: "city-a"})
	requireStatus(t, err, http.StatusForbidden)

	_, err = h.tickets.CreateTicket(ctx, operator("local-a", "a@a.test"), TicketCreateInput{Title: " ", CityID: "city-a"})
	requireStatus(t, err, http.StatusBadRequest)

	_, err = h.tickets.CreateTicket(ctx, operator("local-a", "a@a.test"), TicketCreateInput{Title: "x", CityID: "nowhere"})
	requireStatus(t, err, http.StatusBadRequest)

	_, err = h.tickets.CreateTicket(ctx, operator("local-a", "a@a.test"), TicketCreateInput{Title: "x", CityID: "city-a", Priority: "whenever"})
	requireStatus(t, err, http.StatusBadRequest)
}

func TestCreateTicketCascadesWhenResponsibleDeclines(t *testing.T) {
	h := newHarness(t)
	h.autoDecline(t, "local-b")

	got, err := h.tickets.CreateTicket(context.Background(), operator("local-a", "ana@a.test"), TicketCreateInput{Title: "x", CityID: "city-b"})
	require.NoError(t, err)
	assert.Equal(t, domain.LevelFederation, got.Level)
	assert.Equal(t, "fed-north", got.ResponsibleOrgID)
	assert.Equal(t, 5, got.DaysRemaining)
	assert.Len(t, h.store.OutboxEvents(), 2)
}

func TestUpdateTicketStatusSetsCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.tickets.CreateTicket(ctx, operator("local-a", "ana@a.test"), TicketCreateInput{Title: "x", CityID: "city-b"})
	require.NoError(t, err)
	worker := operator("local-b", "bo@b.test")

	h.clock.Advance(36 * time.Hour)
	done, err := h.tickets.UpdateTicket(ctx, worker, created.ID, TicketPatch{
		Status:  ptr(domain.TicketStatusCompleted),
		Comment: "delivered",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, h.clock.Now(), *done.CompletedAt)
	require.NotNil(t, done.DaysToComplete)
	assert.Equal(t, 2, *done.DaysToComplete)
	assert.Zero(t, done.DaysRemaining)
	assert.Equal(t, domain.ViewpointReceived, done.Viewpoint)

	reopened, err := h.tickets.UpdateTicket(ctx, worker, created.ID, TicketPatch{Status: ptr(domain.TicketStatusInProgress)})
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)
	assert.Nil(t, reopened.DaysToComplete)

	updates := h.auditFor(created.ID, auditActionUpdated)
	require.Len(t, updates, 2)
	assert.Contains(t, updates[0].Details, "Status: new → completed")
	assert.Contains(t, updates[0].Details, "Comment: delivered")
}

func TestUpdateTicketFieldPermissions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.tickets.CreateTicket(ctx, operator("local-a", "ana@a.test"), TicketCreateInput{Title: "x", CityID: "city-b"})
	require.NoError(t, err)

	_, err = h.tickets.UpdateTicket(ctx, operator("local-b", "bo@b.test"), created.ID, TicketPatch{Title: ptr("renamed")})
	requireStatus(t, err, http.StatusForbidden)
	assert.Contains(t, err.Error(), "title")

	_, err = h.tickets.UpdateTicket(ctx, operator("local-c", "cy@c.test"), created.ID, TicketPatch{Notes: ptr("hi")})
	requireStatus(t, err, http.StatusForbidden)

	_, err = h.tickets.UpdateTicket(ctx, operator("local-a", "ana@a.test"), created.ID, TicketPatch{AssignedAgentID: ptr("agent-1")})
	requireStatus(t, err, http.StatusForbidden)

	renamed, err := h.tickets.UpdateTicket(ctx, operator("local-a", "ana@a.test"), created.ID, TicketPatch{Title: ptr("renamed"), Quantity: ptr(4)})
	require.NoError(t, err)
	assert.Equal(t, "renamed", renamed.Title)
	assert.Equal(t, 4, renamed.Quantity)

	assigned, err := h.tickets.UpdateTicket(ctx, operator("local-b", "bo@b.test"), created.ID, TicketPatch{
		AssignedAgentID:   ptr("agent-1"),
		AssignedAgentName: ptr("Bo"),
		Priority:          ptr(domain.TicketPriorityUrgent),
	})
	require.NoError(t, err)
	assert.Equal(t, "agent-1", *assigned.AssignedAgentID)
	assert.Equal(t, domain.TicketPriorityUrgent, assigned.Priority)

	_, err = h.tickets.UpdateTicket(ctx, operator("local-a", "ana@a.test"), created.ID, TicketPatch{Quantity: ptr(0)})
	requireStatus(t, err, http.StatusBadRequest)
}

// escalatingTickets lets a sweep escalation land between an edit's load and
// its write.
type escalatingTickets struct {
	repository.TicketRepository
	h *harness
}

func (e escalatingTickets) Update(ctx context.Context, ticket *domain.Ticket, expected repository.TicketVersion, event *domain.OutboxEvent) error {
	stale, err := e.TicketRepository.GetByID(ctx, ticket.ID)
	if err != nil {
		return err
	}
	if _, err := e.h.escalation.Escalate(ctx, *stale, domain.SystemPrincipal, "deadline", TriggerSweep); err != nil {
		return err
	}
	return e.TicketRepository.Update(ctx, ticket, expected, event)
}

func TestUpdateTicketLosesRaceToEscalation(t *testing.T) {
	h := newHarness(t)
	h.seedTicket(t, "t1", "local-a", "local-a", harnessStart.Add(-time.Hour))

	tickets := NewTicketService(TicketDependencies{
		TicketRepo:       escalatingTickets{TicketRepository: h.repos.Tickets, h: h},
		CityRepo:         h.repos.Cities,
		OrganizationRepo: h.repos.Organizations,
		AuditRepo:        h.repos.Audit,
		Visibility:       h.visibility,
		Escalation:       h.escalation,
		Deadlines:        h.deadlines,
	})
	tickets.Now = h.clock.Now

	_, err := tickets.UpdateTicket(context.Background(), operator("local-a", "ana@a.test"), "t1", TicketPatch{Notes: ptr("on it")})
	requireStatus(t, err, http.StatusConflict)

	got := h.ticket(t, "t1")
	assert.Equal(t, domain.LevelFederation, got.Level)
	assert.Equal(t, "fed-north", got.ResponsibleOrgID)
	assert.Empty(t, got.Notes)
	assert.Empty(t, h.auditFor("t1", auditActionUpdated))
	assert.Len(t, h.store.OutboxEvents(), 1)
}

func TestUpdateTicketWithoutChangesWritesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.tickets.CreateTicket(ctx, operator("local-a", "ana@a.test"), TicketCreateInput{Title: "x", CityID: "city-b"})
	require.NoError(t, err)

	_, err = h.tickets.UpdateTicket(ctx, operator("local-a", "ana@a.test"), created.ID, TicketPatch{Title: ptr("x")})
	require.NoError(t, err)
	assert.Empty(t, h.auditFor(created.ID, auditActionUpdated))
	assert.Len(t, h.store.OutboxEvents(), 1)
}

func TestTransferTicket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.tickets.CreateTicket(ctx, operator("local-a", "ana@a.test"), TicketCreateInput{Title: "x", CityID: "city-b"})
	require.NoError(t, err)

	_, err = h.tickets.TransferTicket(ctx, operator("local-c", "cy@c.test"), created.ID, "")
	requireStatus(t, err, http.StatusForbidden)
	assert.Equal(t, domain.LevelLocal, h.ticket(t, created.ID).Level)

	moved, err := h.tickets.TransferTicket(ctx, operator("local-b", "bo@b.test"), created.ID, "out of stock")
	require.NoError(t, err)
	assert.Equal(t, domain.LevelFederation, moved.Level)
	assert.Equal(t, "fed-north", moved.ResponsibleOrgID)

	audit := h.auditFor(created.ID, auditActionLevelTransfer)
	require.Len(t, audit, 1)
	assert.Equal(t, "New level: federation (North Federation) | Reason: out of stock", audit[0].Details)
	assert.Equal(t, int64(1), h.metrics.Snapshot().Escalations[TriggerManual])

	top, err := h.tickets.TransferTicket(ctx, withRole(operator("conf", "c@conf.test"), domain.RoleConfederation), created.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.LevelConfederation, top.Level)
	assert.Contains(t, h.auditFor(created.ID, auditActionLevelTransfer)[1].Details, defaultTransferReason)

	_, err = h.tickets.TransferTicket(ctx, withRole(operator("conf", "c@conf.test"), domain.RoleConfederation), created.ID, "")
	requireStatus(t, err, http.StatusBadRequest)
}

func TestTransferRejectsClosedTickets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.tickets.CreateTicket(ctx, operator("local-a", "ana@a.test"), TicketCreateInput{Title: "x", CityID: "city-b"})
	require.NoError(t, err)
	_, err = h.tickets.UpdateTicket(ctx, operator("local-a", "ana@a.test"), created.ID, TicketPatch{Status: ptr(domain.TicketStatusCancelled)})
	require.NoError(t, err)

	_, err = h.tickets.TransferTicket(ctx, operator("local-b", "bo@b.test"), created.ID, "")
	requireStatus(t, err, http.StatusBadRequest)
}

func TestListTicketsHonorsVisibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.tickets.CreateTicket(ctx, operator("local-a", "ana@a.test"), TicketCreateInput{Title: "north", CityID: "city-b"})
	require.NoError(t, err)
	_, err = h.tickets.CreateTicket(ctx, operator("local-c", "cy@c.test"), TicketCreateInput{Title: "south", CityID: "city-c"})
	require.NoError(t, err)

	titles := func(p domain.Principal) []string {
		list, err := h.tickets.ListTickets(ctx, p, TicketListFilter{})
		require.NoError(t, err)
		var out []string
		for _, ticket := range list {
			out = append(out, ticket.Title)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"north"}, titles(withRole(operator("fed-north", "f@north.test"), domain.RoleFederation)))
	assert.ElementsMatch(t, []string{"south"}, titles(operator("local-c", "other@c.test")))
	assert.ElementsMatch(t, []string{"north", "south"}, titles(withRole(operator("conf", "c@conf.test"), domain.RoleConfederation)))
	assert.Empty(t, titles(operator("local-x", "x@x.test")))
}

func TestStatsCountsVisibleTickets(t *testing.T) {
	h := newHarness(t)
	day := 24 * time.Hour
	setStatus := func(tk domain.Ticket, status domain.TicketStatus, completed *time.Time) {
		tk.Status = status
		tk.CompletedAt = completed
		h.store.PutTicket(tk)
	}
	setStatus(h.seedTicket(t, "soon", "local-a", "local-a", harnessStart.Add(3*day)), domain.TicketStatusInProgress, nil)
	setStatus(h.seedTicket(t, "later", "local-a", "local-a", harnessStart.Add(10*day)), domain.TicketStatusInProgress, nil)
	setStatus(h.seedTicket(t, "on-time", "local-a", "local-a", harnessStart.Add(day)), domain.TicketStatusCompleted, ptr(harnessStart))
	setStatus(h.seedTicket(t, "late", "local-a", "local-a", harnessStart.Add(-2*day)), domain.TicketStatusCompleted, ptr(harnessStart))
	h.seedTicket(t, "fresh", "local-a", "local-a", harnessStart.Add(day))
	h.seedTicket(t, "south", "local-c", "local-c", harnessStart.Add(day))

	stats, err := h.tickets.Stats(context.Background(), operator("local-a", "ana@a.test"))
	require.NoError(t, err)
	assert.Equal(t, DashboardStats{Total: 5, DueSoon: 1, InProgress: 2, Completed: 2, SLAMetPercent: 50}, stats)

	all, err := h.tickets.Stats(context.Background(), withRole(operator("conf", "c@conf.test"), domain.RoleConfederation))
	require.NoError(t, err)
	assert.Equal(t, 6, all.Total)

	none, err := h.tickets.Stats(context.Background(), operator("local-x", "x@x.test"))
	require.NoError(t, err)
	assert.Equal(t, DashboardStats{}, none)
}

func TestStatsSurfacesStoreFailure(t *testing.T) {
	h := newHarness(t)
	h.store.FailTicketListing = errors.New("db down")

	_, err := h.tickets.Stats(context.Background(), operator("local-a", "ana@a.test"))
	requireStatus(t, err, http.StatusInternalServerError)
}

func TestGetTicketAndAudit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.tickets.CreateTicket(ctx, operator("local-a", "ana@a.test"), TicketCreateInput{Title: "x", CityID: "city-b"})
	require.NoError(t, err)

	got, err := h.tickets.GetTicket(ctx, operator("local-b", "bo@b.test"), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ViewpointReceived, got.Viewpoint)

	_, err = h.tickets.GetTicket(ctx, operator("local-c", "cy@c.test"), created.ID)
	requireStatus(t, err, http.StatusForbidden)

	_, err = h.tickets.GetTicket(ctx, operator("local-a", "ana@a.test"), "missing")
	requireStatus(t, err, http.StatusNotFound)

	entries, err := h.tickets.ListAudit(ctx, operator("local-a", "ana@a.test"), created.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, auditActionCreated, entries[0].Action)
}
