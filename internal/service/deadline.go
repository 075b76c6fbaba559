package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/repository"
)

const day = 24 * time.Hour

// DeadlineCalculator derives due dates from the per-level durations in system settings.
// Settings are read on every call.
type DeadlineCalculator struct {
	settings repository.SettingsRepository
	location *time.Location
	logger   *zap.Logger
}

// NewDeadlineCalculator builds a calculator. A nil location means UTC.
func NewDeadlineCalculator(settings repository.SettingsRepository, location *time.Location, logger *zap.Logger) *DeadlineCalculator {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeadlineCalculator{settings: settings, location: location, logger: logger}
}

// DaysFor returns the number of days a ticket may stay at level. It is always >= 1.
func (c *DeadlineCalculator) DaysFor(ctx context.Context, level domain.TicketLevel) int {
	if level == domain.LevelConfederation {
		return domain.DefaultEscalationDays
	}
	settings, err := c.settings.GetSystem(ctx)
	if err != nil {
		c.logger.Warn("system settings unavailable; using default deadline",
			zap.String("level", string(level)), zap.Error(err))
		return domain.DefaultEscalationDays
	}
	var days int
	switch level {
	case domain.LevelLocal:
		days = settings.LocalToFederationDays
	case domain.LevelFederation:
		days = settings.FederationToConfederationDays
	}
	if days <= 0 {
		return domain.DefaultEscalationDays
	}
	return days
}

// DueAt returns base plus the level's duration.
func (c *DeadlineCalculator) DueAt(ctx context.Context, level domain.TicketLevel, base time.Time) time.Time {
	return base.Add(time.Duration(c.DaysFor(ctx, level)) * day)
}

// Annotate fills the derived day counters on t.
func (c *DeadlineCalculator) Annotate(t *domain.Ticket, now time.Time) {
	t.DaysRemaining = DaysRemaining(*t, now, c.location)
	t.DaysToComplete = DaysToComplete(*t)
}

// DaysRemaining counts whole calendar days from today until the due date in loc.
// Completed tickets and tickets without a due date report 0.
func DaysRemaining(t domain.Ticket, now time.Time, loc *time.Location) int {
	if t.Status == domain.TicketStatusCompleted || t.DueAt == nil || t.DueAt.IsZero() {
		return 0
	}
	if loc == nil {
		loc = time.UTC
	}
	days := int(calendarDate(*t.DueAt, loc).Sub(calendarDate(now, loc)) / day)
	if days < 0 {
		return 0
	}
	return days
}

// DaysToComplete is the rounded number of days between creation and completion.
func DaysToComplete(t domain.Ticket) *int {
	if t.Status != domain.TicketStatusCompleted || t.CompletedAt == nil {
		return nil
	}
	days := int(math.Round(t.CompletedAt.Sub(t.CreatedAt).Hours() / 24))
	if days < 0 {
		days = 0
	}
	return &days
}

// calendarDate maps an instant to midnight UTC of its date in loc so that
// subtraction is free of DST offsets.
func calendarDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
