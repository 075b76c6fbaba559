package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/coopdesk/internal/config"
	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/observability"
	"github.com/spec-kit/coopdesk/internal/repository"
	"github.com/spec-kit/coopdesk/internal/repository/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness wires every service over one memory store seeded with two
// federations under a single confederation:
//
//	conf
//	├── fed-north: local-a, local-b
//	└── fed-south: local-c
//	local-x has no parent.
type harness struct {
	store      *memory.Store
	repos      *repository.Store
	clock      *testClock
	metrics    *observability.Metrics
	deadlines  *DeadlineCalculator
	visibility *VisibilityResolver
	escalation *EscalationService
	sweep      *SweepService
	tickets    *TicketService
	settings   *SettingsService
	alerts     *AlertService
}

var harnessStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	repos := store.Repositories()
	ctx := context.Background()

	orgs := []domain.Organization{
		{ID: "conf", DisplayName: "Confederation", Kind: domain.OrgKindConfederation},
		{ID: "fed-north", DisplayName: "North Federation", Kind: domain.OrgKindFederation, FederationName: "North", ParentID: ptr("conf")},
		{ID: "fed-south", DisplayName: "South Federation", Kind: domain.OrgKindFederation, FederationName: "South", ParentID: ptr("conf")},
		{ID: "local-a", DisplayName: "Coop A", Kind: domain.OrgKindLocal, FederationName: "North", ParentID: ptr("fed-north")},
		{ID: "local-b", DisplayName: "Coop B", Kind: domain.OrgKindLocal, FederationName: "North", ParentID: ptr("fed-north")},
		{ID: "local-c", DisplayName: "Coop C", Kind: domain.OrgKindLocal, FederationName: "South", ParentID: ptr("fed-south")},
		{ID: "local-x", DisplayName: "Coop X", Kind: domain.OrgKindLocal},
	}
	for i := range orgs {
		require.NoError(t, repos.Organizations.Upsert(ctx, &orgs[i]))
	}
	cities := []domain.City{
		{ID: "city-a", Name: "Alpha", ResponsibleOrgID: "local-a"},
		{ID: "city-b", Name: "Beta", ResponsibleOrgID: "local-b"},
		{ID: "city-c", Name: "Gamma", ResponsibleOrgID: "local-c"},
		{ID: "city-x", Name: "Xi", ResponsibleOrgID: "local-x"},
	}
	for i := range cities {
		require.NoError(t, repos.Cities.Upsert(ctx, &cities[i]))
	}
	system := domain.DefaultSystemSettings()
	system.LocalToFederationDays = 3
	system.FederationToConfederationDays = 5
	require.NoError(t, repos.Settings.SaveSystem(ctx, system))

	clock := &testClock{now: harnessStart}
	metrics := observability.NewMetrics()
	deadlines := NewDeadlineCalculator(repos.Settings, time.UTC, nil)
	visibility := NewVisibilityResolver(repos.Organizations, config.SecurityConfig{})

	escalation := NewEscalationService(EscalationDependencies{
		TicketRepo:            repos.Tickets,
		OrganizationRepo:      repos.Organizations,
		EscalationSettingRepo: repos.EscalationSettings,
		AuditRepo:             repos.Audit,
		Deadlines:             deadlines,
		Metrics:               metrics,
	})
	escalation.Now = clock.Now

	sweep := NewSweepService(SweepDependencies{
		TicketRepo: repos.Tickets,
		Escalation: escalation,
		Metrics:    metrics,
	})
	sweep.Now = clock.Now

	tickets := NewTicketService(TicketDependencies{
		TicketRepo:       repos.Tickets,
		CityRepo:         repos.Cities,
		OrganizationRepo: repos.Organizations,
		AuditRepo:        repos.Audit,
		Visibility:       visibility,
		Escalation:       escalation,
		Deadlines:        deadlines,
	})
	tickets.Now = clock.Now

	settings := NewSettingsService(SettingsDependencies{
		SettingsRepo:          repos.Settings,
		EscalationSettingRepo: repos.EscalationSettings,
		OrganizationRepo:      repos.Organizations,
		Visibility:            visibility,
		Escalation:            escalation,
	})
	settings.Now = clock.Now

	alerts := NewAlertService(repos.Alerts, repos.Audit, nil)
	alerts.Now = clock.Now

	return &harness{
		store:      store,
		repos:      repos,
		clock:      clock,
		metrics:    metrics,
		deadlines:  deadlines,
		visibility: visibility,
		escalation: escalation,
		sweep:      sweep,
		tickets:    tickets,
		settings:   settings,
		alerts:     alerts,
	}
}

func (h *harness) autoDecline(t *testing.T, orgID string) {
	t.Helper()
	require.NoError(t, h.repos.EscalationSettings.Upsert(context.Background(), &domain.EscalationSetting{OrgID: orgID, AutoDecline: true}))
}

// seedTicket stores an open local ticket requested by org and owned by responsible.
func (h *harness) seedTicket(t *testing.T, id, org, responsible string, due time.Time) domain.Ticket {
	t.Helper()
	ticket := domain.Ticket{
		ID:               id,
		Title:            "Ticket " + id,
		RequestingOrgID:  org,
		ResponsibleOrgID: responsible,
		CityID:           "city-a",
		Quantity:         1,
		Priority:         domain.TicketPriorityMedium,
		Level:            domain.LevelLocal,
		Status:           domain.TicketStatusNew,
		CreatedBy:        "creator@" + org + ".test",
		DueAt:            &due,
		CreatedAt:        h.clock.Now(),
		LastModifiedAt:   h.clock.Now(),
	}
	h.store.PutTicket(ticket)
	return ticket
}

func (h *harness) ticket(t *testing.T, id string) domain.Ticket {
	t.Helper()
	got, err := h.repos.Tickets.GetByID(context.Background(), id)
	require.NoError(t, err)
	return *got
}

func (h *harness) auditFor(ticketID, action string) []domain.AuditEntry {
	var out []domain.AuditEntry
	for _, e := range h.store.AuditEntries() {
		if e.TicketID == ticketID && e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func operator(org, email string) domain.Principal {
	return domain.Principal{ID: email, Email: email, Name: email, Role: domain.RoleOperator, OrganizationID: org}
}

func withRole(p domain.Principal, role domain.Role) domain.Principal {
	p.Role = role
	return p
}

func ptr[T any](v T) *T { return &v }
