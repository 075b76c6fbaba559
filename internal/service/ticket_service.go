package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/events"
	"github.com/spec-kit/coopdesk/internal/repository"
	apperrors "github.com/spec-kit/coopdesk/pkg/util/errorutil"
)

const (
	auditActionCreated = "Ticket created"
	auditActionUpdated = "Ticket updated"

	defaultTransferReason = "Manual transfer requested by the responsible organization"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	cities     repository.CityRepository
	orgs       repository.OrganizationRepository
	audit      repository.AuditRepository
	visibility *VisibilityResolver
	escalation *EscalationService
	deadlines  *DeadlineCalculator
	enricher   enricher
	logger     *zap.Logger

	Now func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo       repository.TicketRepository
	CityRepo         repository.CityRepository
	OrganizationRepo repository.OrganizationRepository
	AuditRepo        repository.AuditRepository
	Visibility       *VisibilityResolver
	Escalation       *EscalationService
	Deadlines        *DeadlineCalculator
	Logger           *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	CityID      string
	Specialties []string
	Quantity    int
	Notes       string
	Priority    domain.TicketPriority
}

// TicketPatch lists the fields an update may change. Nil fields are untouched.
type TicketPatch struct {
	Title             *string
	ResponsibleOrgID  *string
	CityID            *string
	Specialties       *[]string
	Quantity          *int
	Notes             *string
	Priority          *domain.TicketPriority
	Status            *domain.TicketStatus
	AssignedAgentID   *string
	AssignedAgentName *string
	DueAt             *time.Time
	Comment           string
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Statuses []domain.TicketStatus
	Levels   []domain.TicketLevel
	Limit    int
	Offset   int
}

var creatorRoles = map[domain.Role]bool{
	domain.RoleOperator:      true,
	domain.RoleAdmin:         true,
	domain.RoleConfederation: true,
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		cities:     deps.CityRepo,
		orgs:       deps.OrganizationRepo,
		audit:      deps.AuditRepo,
		visibility: deps.Visibility,
		escalation: deps.Escalation,
		deadlines:  deps.Deadlines,
		enricher:   enricher{orgs: deps.OrganizationRepo, deadlines: deps.Deadlines, logger: logger},
		logger:     logger,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// CreateTicket opens a ticket at the local level for the actor's organization.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Principal, input TicketCreateInput) (*domain.Ticket, error) {
	if !creatorRoles[actor.Role] {
		return nil, apperrors.NewForbidden("role cannot create tickets")
	}
	if actor.OrganizationID == "" {
		return nil, apperrors.NewForbidden("principal has no organization")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" || strings.TrimSpace(input.CityID) == "" {
		return nil, apperrors.NewValidationError("title and city_id required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	quantity := input.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	responsible, err := s.responsibleForCity(ctx, input.CityID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	due := s.deadlines.DueAt(ctx, domain.LevelLocal, now)
	ticket := domain.Ticket{
		ID:               uuid.NewString(),
		Title:            title,
		RequestingOrgID:  actor.OrganizationID,
		ResponsibleOrgID: responsible,
		CityID:           input.CityID,
		Specialties:      cleanSpecialties(input.Specialties),
		Quantity:         quantity,
		Notes:            strings.TrimSpace(input.Notes),
		Priority:         priority,
		Level:            domain.LevelLocal,
		Status:           domain.TicketStatusNew,
		CreatedBy:        actor.Email,
		DueAt:            &due,
		CreatedAt:        now,
		LastModifiedAt:   now,
	}

	snapshot := ticket.Clone()
	s.enricher.enrich(ctx, &snapshot, now)
	event := newTicketEvent(events.EventTicketCreated, actor, nil, snapshot, now)
	outbox, err := event.ToOutbox()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if err := s.tickets.Create(ctx, &ticket, outbox); err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("create ticket: %w", err))
	}

	s.appendAudit(ctx, actor, ticket.ID, auditActionCreated, "Title: "+ticket.Title, now)
	return s.finish(ctx, ticket, actor), nil
}

// GetTicket returns a ticket visible to actor.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Principal, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.loadVisible(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	s.enricher.enrich(ctx, ticket, s.Now())
	ticket.Viewpoint = viewpoint(*ticket, actor)
	return ticket, nil
}

// ListTickets returns the tickets actor may see.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Principal, filter TicketListFilter) ([]domain.Ticket, error) {
	scope, err := s.visibility.VisibleOrgs(ctx, actor)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	tickets, err := s.tickets.List(ctx, repository.TicketFilter{
		All:       scope.All,
		OrgIDs:    scope.IDs(),
		CreatedBy: actor.Email,
		Statuses:  filter.Statuses,
		Levels:    filter.Levels,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	now := s.Now()
	for i := range tickets {
		s.enricher.enrich(ctx, &tickets[i], now)
		tickets[i].Viewpoint = viewpoint(tickets[i], actor)
	}
	return tickets, nil
}

// dueSoonWindow is the look-ahead for the dashboard's due-soon count.
const dueSoonWindow = 7 * 24 * time.Hour

// DashboardStats summarizes the tickets an actor can see.
type DashboardStats struct {
	Total      int
	DueSoon    int
	InProgress int
	Completed  int
	// SLAMetPercent is the share of completed tickets closed by their
	// deadline, rounded to a whole percent. Zero when nothing is completed.
	SLAMetPercent int
}

// Stats aggregates the actor's visible tickets for the dashboard.
func (s *TicketService) Stats(ctx context.Context, actor domain.Principal) (DashboardStats, error) {
	scope, err := s.visibility.VisibleOrgs(ctx, actor)
	if err != nil {
		return DashboardStats{}, apperrors.NewInternalError(err)
	}
	now := s.Now()
	counts, err := s.tickets.Count(ctx, repository.TicketFilter{
		All:       scope.All,
		OrgIDs:    scope.IDs(),
		CreatedBy: actor.Email,
	}, now, now.Add(dueSoonWindow))
	if err != nil {
		return DashboardStats{}, apperrors.NewInternalError(fmt.Errorf("count tickets: %w", err))
	}
	stats := DashboardStats{
		Total:      counts.Total,
		DueSoon:    counts.DueSoon,
		InProgress: counts.InProgress,
		Completed:  counts.Completed,
	}
	if counts.Completed > 0 {
		stats.SLAMetPercent = int(math.Round(float64(counts.CompletedOnTime) * 100 / float64(counts.Completed)))
	}
	return stats, nil
}

// ListAudit returns the audit trail of a visible ticket, newest first.
func (s *TicketService) ListAudit(ctx context.Context, actor domain.Principal, ticketID string) ([]domain.AuditEntry, error) {
	if _, err := s.loadVisible(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.audit.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return entries, nil
}

// UpdateTicket applies a role-gated patch, then runs the auto-decline cascade.
func (s *TicketService) UpdateTicket(ctx context.Context, actor domain.Principal, ticketID string, patch TicketPatch) (*domain.Ticket, error) {
	current, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	owner := actor.Role == domain.RoleConfederation ||
		(actor.Role == domain.RoleAdmin && actor.OrganizationID != "" && actor.OrganizationID == current.RequestingOrgID) ||
		(actor.Email != "" && strings.EqualFold(actor.Email, current.CreatedBy))
	responsible := actor.OrganizationID != "" && actor.OrganizationID == current.ResponsibleOrgID
	if !owner && !responsible {
		return nil, apperrors.NewForbidden("not allowed to update this ticket")
	}
	if denied := deniedFields(patch, owner, responsible); len(denied) > 0 {
		return nil, apperrors.NewForbidden("fields not editable by this user: " + strings.Join(denied, ", "))
	}

	now := s.Now()
	after := current.Clone()
	details, err := s.applyPatch(ctx, &after, patch, now)
	if err != nil {
		return nil, err
	}
	comment := strings.TrimSpace(patch.Comment)
	if len(details) == 0 && comment == "" {
		return s.finish(ctx, *current, actor), nil
	}
	after.LastModifiedAt = now

	before := current.Clone()
	snapshot := after.Clone()
	s.enricher.enrich(ctx, &snapshot, now)
	event := newTicketEvent(events.EventTicketUpdated, actor, &before, snapshot, now)
	event.Payload.Details = details
	event.Payload.Comment = comment
	outbox, err := event.ToOutbox()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if err := s.tickets.Update(ctx, &after, repository.VersionOf(*current), outbox); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.NewConflict("ticket changed while it was being edited; reload and retry",
				map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.NewInternalError(fmt.Errorf("update ticket: %w", err))
	}

	auditDetails := strings.Join(details, "; ")
	if comment != "" {
		if auditDetails != "" {
			auditDetails += "; "
		}
		auditDetails += "Comment: " + comment
	}
	s.appendAudit(ctx, actor, after.ID, auditActionUpdated, auditDetails, now)
	return s.finish(ctx, after, actor), nil
}

// TransferTicket escalates a ticket on request, bypassing the deadline.
func (s *TicketService) TransferTicket(ctx context.Context, actor domain.Principal, ticketID, reason string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	allowed := actor.Role == domain.RoleConfederation ||
		(actor.OrganizationID != "" && (actor.OrganizationID == ticket.RequestingOrgID || actor.OrganizationID == ticket.ResponsibleOrgID))
	if !allowed {
		scope, err := s.visibility.ManageableOrgs(ctx, actor)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		allowed = scope.All
	}
	if !allowed {
		return nil, apperrors.NewForbidden("only the requesting or responsible organization may transfer this ticket")
	}
	if !ticket.Status.Open() {
		return nil, apperrors.NewValidationError("ticket is closed", map[string]any{"status": ticket.Status})
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultTransferReason
	}
	escalated, err := s.escalation.Escalate(ctx, *ticket, actor, reason, TriggerManual)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if escalated == nil {
		return nil, apperrors.NewValidationError("no higher level available for this ticket", map[string]any{"level": ticket.Level})
	}
	final, err := s.escalation.Cascade(ctx, *escalated, actor)
	if err != nil {
		s.logger.Error("cascade after transfer failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
	final.Viewpoint = viewpoint(final, actor)
	return &final, nil
}

func (s *TicketService) finish(ctx context.Context, ticket domain.Ticket, actor domain.Principal) *domain.Ticket {
	result, err := s.escalation.Cascade(ctx, ticket, actor)
	if err != nil {
		s.logger.Error("cascade failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	s.enricher.enrich(ctx, &result, s.Now())
	result.Viewpoint = viewpoint(result, actor)
	return &result
}

func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if apperrors.IsNotFound(err) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return ticket, nil
}

func (s *TicketService) loadVisible(ctx context.Context, actor domain.Principal, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	ok, err := s.visibility.CanViewTicket(ctx, actor, *ticket)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !ok {
		return nil, apperrors.NewForbidden("ticket not visible to this user")
	}
	return ticket, nil
}

func (s *TicketService) responsibleForCity(ctx context.Context, cityID string) (string, error) {
	city, err := s.cities.GetByID(ctx, cityID)
	if apperrors.IsNotFound(err) {
		return "", apperrors.NewValidationError("unknown city", map[string]any{"city_id": cityID})
	}
	if err != nil {
		return "", apperrors.NewInternalError(err)
	}
	if city.ResponsibleOrgID == "" {
		return "", apperrors.NewValidationError("city has no responsible organization", map[string]any{"city_id": cityID})
	}
	return city.ResponsibleOrgID, nil
}

func (s *TicketService) appendAudit(ctx context.Context, actor domain.Principal, ticketID, action, details string, at time.Time) {
	entry := domain.AuditEntry{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		ActorID:   actor.ID,
		ActorName: actor.DisplayName(),
		Action:    action,
		Details:   details,
		Timestamp: at,
	}
	if err := s.audit.Append(ctx, &entry); err != nil {
		s.logger.Warn("audit append failed", zap.String("ticket_id", ticketID), zap.String("action", action), zap.Error(err))
	}
}

// applyPatch mutates t and returns human-readable change lines.
func (s *TicketService) applyPatch(ctx context.Context, t *domain.Ticket, patch TicketPatch, now time.Time) ([]string, error) {
	var details []string

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, apperrors.NewValidationError("title cannot be empty", nil)
		}
		if title != t.Title {
			details = append(details, fmt.Sprintf("Title: %s → %s", t.Title, title))
			t.Title = title
		}
	}
	if patch.CityID != nil && *patch.CityID != t.CityID {
		if _, err := s.responsibleForCity(ctx, *patch.CityID); err != nil {
			return nil, err
		}
		details = append(details, fmt.Sprintf("City: %s → %s", t.CityID, *patch.CityID))
		t.CityID = *patch.CityID
	}
	if patch.ResponsibleOrgID != nil && *patch.ResponsibleOrgID != t.ResponsibleOrgID {
		if _, err := s.orgs.GetByID(ctx, *patch.ResponsibleOrgID); err != nil {
			if apperrors.IsNotFound(err) {
				return nil, apperrors.NewValidationError("unknown responsible organization", map[string]any{"responsible_org_id": *patch.ResponsibleOrgID})
			}
			return nil, apperrors.NewInternalError(err)
		}
		details = append(details, fmt.Sprintf("Responsible organization: %s → %s", t.ResponsibleOrgID, *patch.ResponsibleOrgID))
		t.ResponsibleOrgID = *patch.ResponsibleOrgID
	}
	if patch.Specialties != nil {
		next := cleanSpecialties(*patch.Specialties)
		if strings.Join(next, ",") != strings.Join(t.Specialties, ",") {
			details = append(details, "Specialties: "+strings.Join(next, ", "))
			t.Specialties = next
		}
	}
	if patch.Quantity != nil && *patch.Quantity != t.Quantity {
		if *patch.Quantity < 1 {
			return nil, apperrors.NewValidationError("quantity must be at least 1", nil)
		}
		details = append(details, fmt.Sprintf("Quantity: %d → %d", t.Quantity, *patch.Quantity))
		t.Quantity = *patch.Quantity
	}
	if patch.Notes != nil && strings.TrimSpace(*patch.Notes) != t.Notes {
		details = append(details, "Notes updated")
		t.Notes = strings.TrimSpace(*patch.Notes)
	}
	if patch.Priority != nil && *patch.Priority != t.Priority {
		if !patch.Priority.Valid() {
			return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": *patch.Priority})
		}
		details = append(details, fmt.Sprintf("Priority: %s → %s", t.Priority, *patch.Priority))
		t.Priority = *patch.Priority
	}
	if patch.Status != nil && *patch.Status != t.Status {
		if !patch.Status.Valid() {
			return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": *patch.Status})
		}
		details = append(details, fmt.Sprintf("Status: %s → %s", t.Status, *patch.Status))
		if *patch.Status == domain.TicketStatusCompleted {
			completed := now
			t.CompletedAt = &completed
		} else {
			t.CompletedAt = nil
		}
		t.Status = *patch.Status
	}
	if patch.AssignedAgentID != nil && derefOr(patch.AssignedAgentID, "") != derefOr(t.AssignedAgentID, "") {
		details = append(details, "Assigned agent: "+derefOr(patch.AssignedAgentName, *patch.AssignedAgentID))
		t.AssignedAgentID = emptyToNil(*patch.AssignedAgentID)
	}
	if patch.AssignedAgentName != nil && derefOr(patch.AssignedAgentName, "") != derefOr(t.AssignedAgentName, "") {
		t.AssignedAgentName = emptyToNil(*patch.AssignedAgentName)
		if patch.AssignedAgentID == nil {
			details = append(details, "Assigned agent: "+*patch.AssignedAgentName)
		}
	}
	if patch.DueAt != nil && (t.DueAt == nil || !patch.DueAt.Equal(*t.DueAt)) {
		due := patch.DueAt.UTC()
		details = append(details, "Due date: "+due.Format(time.RFC3339))
		t.DueAt = &due
	}
	return details, nil
}

func deniedFields(p TicketPatch, owner, responsible bool) []string {
	type field struct {
		name        string
		set         bool
		owner       bool
		responsible bool
	}
	fields := []field{
		{"title", p.Title != nil, true, false},
		{"responsible_org_id", p.ResponsibleOrgID != nil, true, false},
		{"city_id", p.CityID != nil, true, false},
		{"specialties", p.Specialties != nil, true, false},
		{"quantity", p.Quantity != nil, true, false},
		{"notes", p.Notes != nil, true, true},
		{"priority", p.Priority != nil, true, true},
		{"status", p.Status != nil, true, true},
		{"assigned_agent_id", p.AssignedAgentID != nil, false, true},
		{"assigned_agent_name", p.AssignedAgentName != nil, false, true},
		{"due_at", p.DueAt != nil, true, true},
	}
	var denied []string
	for _, f := range fields {
		if !f.set {
			continue
		}
		if (owner && f.owner) || (responsible && f.responsible) {
			continue
		}
		denied = append(denied, f.name)
	}
	sort.Strings(denied)
	return denied
}

func cleanSpecialties(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func emptyToNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
