package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/events"
	"github.com/spec-kit/coopdesk/internal/observability"
	"github.com/spec-kit/coopdesk/internal/repository"
)

// Escalation triggers, used for metrics and logs.
const (
	TriggerSweep   = "sweep"
	TriggerManual  = "manual"
	TriggerCascade = "cascade"
)

// DefaultMaxHops bounds the auto-decline cascade.
const DefaultMaxHops = 5

const (
	auditActionLevelTransfer = "Level transfer"
	reasonDeadlineExceeded   = "automatic escalation: deadline exceeded"
)

// EscalationService moves tickets up the hierarchy.
type EscalationService struct {
	tickets   repository.TicketRepository
	orgs      repository.OrganizationRepository
	settings  repository.EscalationSettingRepository
	audit     repository.AuditRepository
	resolver  HierarchyResolver
	deadlines *DeadlineCalculator
	metrics   *observability.Metrics
	logger    *zap.Logger
	maxHops   int
	enricher  enricher

	Now func() time.Time
}

// EscalationDependencies bundles collaborators for the escalation service.
type EscalationDependencies struct {
	TicketRepo            repository.TicketRepository
	OrganizationRepo      repository.OrganizationRepository
	EscalationSettingRepo repository.EscalationSettingRepository
	AuditRepo             repository.AuditRepository
	Resolver              HierarchyResolver
	Deadlines             *DeadlineCalculator
	Metrics               *observability.Metrics
	Logger                *zap.Logger
	MaxHops               int
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxHops := deps.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = NewHierarchyResolver(deps.OrganizationRepo, logger)
	}
	return &EscalationService{
		tickets:   deps.TicketRepo,
		orgs:      deps.OrganizationRepo,
		settings:  deps.EscalationSettingRepo,
		audit:     deps.AuditRepo,
		resolver:  resolver,
		deadlines: deps.Deadlines,
		metrics:   deps.Metrics,
		logger:    logger,
		maxHops:   maxHops,
		enricher:  enricher{orgs: deps.OrganizationRepo, deadlines: deps.Deadlines, logger: logger},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Escalate performs one level transition. It returns nil without error when
// there is no higher level or another writer already moved the ticket.
func (s *EscalationService) Escalate(ctx context.Context, ticket domain.Ticket, actor domain.Principal, reason, trigger string) (*domain.Ticket, error) {
	target, err := s.resolver.Resolve(ctx, ticket)
	if err != nil {
		return nil, fmt.Errorf("resolve escalation target: %w", err)
	}
	if target == nil {
		return nil, nil
	}
	if target.Level.Rank() < ticket.Level.Rank() {
		s.logger.Error("escalation target would regress level",
			zap.String("ticket_id", ticket.ID),
			zap.String("from", string(ticket.Level)),
			zap.String("to", string(target.Level)))
		return nil, nil
	}

	now := s.Now()
	due := s.deadlines.DueAt(ctx, target.Level, now)

	after := ticket.Clone()
	after.Level = target.Level
	after.ResponsibleOrgID = target.Org.ID
	after.DueAt = &due
	after.LastModifiedAt = now
	after.AssignedAgentID = nil
	after.AssignedAgentName = nil
	s.enricher.enrich(ctx, &after, now)

	before := ticket.Clone()
	event := newTicketEvent(events.EventTicketUpdated, actor, &before, after, now)
	event.Payload.CustomMessage = fmt.Sprintf("Ticket transferred to %s", target.Level)
	event.Payload.Details = []string{fmt.Sprintf("Level: %s → %s", ticket.Level, target.Level), "Reason: " + reason}
	outbox, err := event.ToOutbox()
	if err != nil {
		return nil, err
	}

	applied, err := s.tickets.ApplyEscalation(ctx, repository.EscalationChange{
		TicketID:         ticket.ID,
		FromLevel:        ticket.Level,
		ToLevel:          target.Level,
		ResponsibleOrgID: target.Org.ID,
		DueAt:            due,
		ModifiedAt:       now,
	}, outbox)
	if err != nil {
		return nil, fmt.Errorf("apply escalation: %w", err)
	}
	if !applied {
		s.logger.Info("ticket already moved by another writer",
			zap.String("ticket_id", ticket.ID), zap.String("from", string(ticket.Level)))
		return nil, nil
	}

	result := after
	if fresh, err := s.tickets.GetByID(ctx, ticket.ID); err != nil {
		s.logger.Warn("re-read after escalation failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	} else {
		result = *fresh
		s.enricher.enrich(ctx, &result, now)
	}

	orgName := target.Org.DisplayName
	if orgName == "" {
		orgName = target.Org.ID
	}
	s.appendAudit(ctx, domain.AuditEntry{
		ID:        uuid.NewString(),
		TicketID:  ticket.ID,
		ActorID:   actor.ID,
		ActorName: actor.DisplayName(),
		Action:    auditActionLevelTransfer,
		Details:   fmt.Sprintf("New level: %s (%s) | Reason: %s", target.Level, orgName, reason),
		Timestamp: now,
	})

	s.metrics.RecordEscalation(trigger)
	s.logger.Info("ticket escalated",
		zap.String("ticket_id", ticket.ID),
		zap.String("from", string(ticket.Level)),
		zap.String("to", string(target.Level)),
		zap.String("responsible_org_id", target.Org.ID),
		zap.String("trigger", trigger))
	return &result, nil
}

// Cascade keeps escalating while the responsible organization auto-declines.
// It always returns a ticket; the error reports a failed state write.
func (s *EscalationService) Cascade(ctx context.Context, ticket domain.Ticket, actor domain.Principal) (domain.Ticket, error) {
	current := ticket
	hops := 0
	var cascadeErr error

	for hops < s.maxHops {
		if current.ResponsibleOrgID == "" {
			break
		}
		autoDecline, err := s.autoDeclines(ctx, current.ResponsibleOrgID)
		if err != nil {
			s.logger.Warn("auto-decline lookup failed", zap.String("org_id", current.ResponsibleOrgID), zap.Error(err))
			break
		}
		if !autoDecline {
			break
		}
		reason := fmt.Sprintf("automatic decline by %s", s.orgLabel(ctx, current.ResponsibleOrgID))
		next, err := s.Escalate(ctx, current, actor, reason, TriggerCascade)
		if err != nil {
			cascadeErr = err
			break
		}
		if next == nil {
			break
		}
		current = *next
		hops++
	}

	if hops >= s.maxHops {
		s.metrics.Inc(observability.CounterCascadeHopLimit)
		s.logger.Warn("escalation cascade hop limit reached",
			zap.String("ticket_id", current.ID),
			zap.Int("max_hops", s.maxHops),
			zap.String("responsible_org_id", current.ResponsibleOrgID))
	}

	s.deadlines.Annotate(&current, s.Now())
	return current, cascadeErr
}

// CascadeOrganization runs the cascade for every open ticket the organization is responsible for.
func (s *EscalationService) CascadeOrganization(ctx context.Context, orgID string, actor domain.Principal) (int, error) {
	tickets, err := s.tickets.ListOpenByResponsibleOrg(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("list open tickets: %w", err)
	}
	moved := 0
	for _, t := range tickets {
		result, err := s.Cascade(ctx, t, actor)
		if err != nil {
			s.logger.Error("cascade failed", zap.String("ticket_id", t.ID), zap.Error(err))
			continue
		}
		if result.Level != t.Level {
			moved++
		}
	}
	return moved, nil
}

func (s *EscalationService) autoDeclines(ctx context.Context, orgID string) (bool, error) {
	setting, err := s.settings.Get(ctx, orgID)
	if err != nil {
		return false, err
	}
	return setting != nil && setting.AutoDecline, nil
}

func (s *EscalationService) orgLabel(ctx context.Context, orgID string) string {
	if name := s.enricher.orgName(ctx, orgID); name != nil && *name != "" {
		return *name
	}
	return orgID
}

func (s *EscalationService) appendAudit(ctx context.Context, entry domain.AuditEntry) {
	if err := s.audit.Append(ctx, &entry); err != nil {
		s.logger.Warn("audit append failed",
			zap.String("ticket_id", entry.TicketID), zap.String("action", entry.Action), zap.Error(err))
	}
}
