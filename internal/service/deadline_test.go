package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/repository/memory"
)

func TestDaysForReadsSettingsPerLevel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.Equal(t, 3, h.deadlines.DaysFor(ctx, domain.LevelLocal))
	assert.Equal(t, 5, h.deadlines.DaysFor(ctx, domain.LevelFederation))
	assert.Equal(t, domain.DefaultEscalationDays, h.deadlines.DaysFor(ctx, domain.LevelConfederation))
}

func TestDaysForFallsBackToDefault(t *testing.T) {
	store := memory.NewStore()
	repos := store.Repositories()
	calc := NewDeadlineCalculator(repos.Settings, nil, nil)
	ctx := context.Background()

	// no settings document stored
	assert.Equal(t, domain.DefaultEscalationDays, calc.DaysFor(ctx, domain.LevelLocal))

	settings := domain.DefaultSystemSettings()
	settings.LocalToFederationDays = 0
	settings.FederationToConfederationDays = -4
	assert.NoError(t, repos.Settings.SaveSystem(ctx, settings))
	assert.Equal(t, domain.DefaultEscalationDays, calc.DaysFor(ctx, domain.LevelLocal))
	assert.Equal(t, domain.DefaultEscalationDays, calc.DaysFor(ctx, domain.LevelFederation))

	store.FailSettingsRead = errors.New("db down")
	assert.Equal(t, domain.DefaultEscalationDays, calc.DaysFor(ctx, domain.LevelFederation))
}

func TestDueAtAddsWholeDays(t *testing.T) {
	h := newHarness(t)
	base := time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)

	due := h.deadlines.DueAt(context.Background(), domain.LevelLocal, base)
	assert.Equal(t, time.Date(2026, 3, 5, 15, 30, 0, 0, time.UTC), due)
}

func TestDaysRemainingCountsCalendarDays(t *testing.T) {
	now := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		due  *time.Time
		st   domain.TicketStatus
		want int
	}{
		{"tomorrow just after midnight", ptr(time.Date(2026, 3, 3, 0, 30, 0, 0, time.UTC)), domain.TicketStatusNew, 1},
		{"later today", ptr(time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC)), domain.TicketStatusNew, 0},
		{"due at midnight today", ptr(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)), domain.TicketStatusNew, 0},
		{"due at midnight tomorrow", ptr(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)), domain.TicketStatusInProgress, 1},
		{"three days out", ptr(time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)), domain.TicketStatusInProgress, 3},
		{"overdue floors at zero", ptr(time.Date(2026, 2, 20, 8, 0, 0, 0, time.UTC)), domain.TicketStatusNew, 0},
		{"completed", ptr(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)), domain.TicketStatusCompleted, 0},
		{"no due date", nil, domain.TicketStatusNew, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ticket := domain.Ticket{Status: tc.st, DueAt: tc.due}
			assert.Equal(t, tc.want, DaysRemaining(ticket, now, time.UTC))
		})
	}
}

func TestDaysRemainingUsesConfiguredZone(t *testing.T) {
	zone := time.FixedZone("UTC-3", -3*60*60)
	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	due := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
	ticket := domain.Ticket{Status: domain.TicketStatusNew, DueAt: &due}

	assert.Equal(t, 1, DaysRemaining(ticket, now, time.UTC))
	assert.Equal(t, 0, DaysRemaining(ticket, now, zone))

	// local midnight of the current local day
	midnight := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	ticket.DueAt = &midnight
	assert.Equal(t, 0, DaysRemaining(ticket, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), zone))
}

func TestDaysToCompleteRounds(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	completed := time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC)
	ticket := domain.Ticket{Status: domain.TicketStatusCompleted, CreatedAt: created, CompletedAt: &completed}

	got := DaysToComplete(ticket)
	if assert.NotNil(t, got) {
		assert.Equal(t, 2, *got)
	}

	ticket.Status = domain.TicketStatusInProgress
	assert.Nil(t, DaysToComplete(ticket))
}
