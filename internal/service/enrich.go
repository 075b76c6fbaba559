package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/events"
	"github.com/spec-kit/coopdesk/internal/repository"
)

// enricher attaches read-side fields to tickets. Failures degrade to nil names.
type enricher struct {
	orgs      repository.OrganizationRepository
	deadlines *DeadlineCalculator
	logger    *zap.Logger
}

func (e enricher) enrich(ctx context.Context, t *domain.Ticket, now time.Time) {
	t.RequestingOrgName = e.orgName(ctx, t.RequestingOrgID)
	if t.ResponsibleOrgID == t.RequestingOrgID {
		t.ResponsibleOrgName = t.RequestingOrgName
	} else {
		t.ResponsibleOrgName = e.orgName(ctx, t.ResponsibleOrgID)
	}
	e.deadlines.Annotate(t, now)
}

func (e enricher) orgName(ctx context.Context, id string) *string {
	if id == "" {
		return nil
	}
	org, err := e.orgs.GetByID(ctx, id)
	if err != nil {
		e.logger.Warn("organization name lookup failed", zap.String("org_id", id), zap.Error(err))
		return nil
	}
	name := org.DisplayName
	return &name
}

func viewpoint(t domain.Ticket, p domain.Principal) domain.Viewpoint {
	org := p.OrganizationID
	switch {
	case org != "" && t.RequestingOrgID == org && t.ResponsibleOrgID == org:
		return domain.ViewpointInternal
	case org != "" && t.RequestingOrgID == org:
		return domain.ViewpointMade
	case org != "" && t.ResponsibleOrgID == org:
		return domain.ViewpointReceived
	case p.Email != "" && strings.EqualFold(t.CreatedBy, p.Email):
		return domain.ViewpointMade
	default:
		return domain.ViewpointWatching
	}
}

func newTicketEvent(eventType events.EventType, actor domain.Principal, before *domain.Ticket, after domain.Ticket, now time.Time) events.Event {
	return events.Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		TicketID:     after.ID,
		TransitionID: uuid.NewString(),
		Actor:        events.ActorFrom(actor),
		Timestamp:    now,
		Payload:      events.TicketChange{Before: before, After: after},
	}
}
