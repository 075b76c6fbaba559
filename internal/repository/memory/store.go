// Package memory provides map-backed repositories for tests and for running
// the service without Postgres.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/repository"
)

// Store is an in-memory implementation of every repository. All methods are
// safe for concurrent use; one mutex guards every table so multi-table writes
// are atomic.
type Store struct {
	mu sync.Mutex

	tickets  map[string]domain.Ticket
	orgs     map[string]domain.Organization
	settings map[string]domain.EscalationSetting
	cities   map[string]domain.City
	agents   map[string]domain.Agent
	audit    []domain.AuditEntry
	alerts   map[string]domain.Alert
	system   *domain.SystemSettings
	outbox   []domain.OutboxEvent

	// Fault injection for tests.
	FailTicketWrites  error
	FailAuditAppend   error
	FailAlertCreate   func(alert domain.Alert) error
	FailSettingsRead  error
	FailOrgLookup     error
	FailTicketListing error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		tickets:  make(map[string]domain.Ticket),
		orgs:     make(map[string]domain.Organization),
		settings: make(map[string]domain.EscalationSetting),
		cities:   make(map[string]domain.City),
		agents:   make(map[string]domain.Agent),
		alerts:   make(map[string]domain.Alert),
	}
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() *repository.Store {
	return &repository.Store{
		Tickets:            ticketRepo{s},
		Organizations:      orgRepo{s},
		EscalationSettings: settingRepo{s},
		Cities:             cityRepo{s},
		Agents:             agentRepo{s},
		Audit:              auditRepo{s},
		Alerts:             alertRepo{s},
		Settings:           systemRepo{s},
		Outbox:             outboxRepo{s},
	}
}

// AuditEntries returns a copy of every audit entry in insertion order.
func (s *Store) AuditEntries() []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEntry(nil), s.audit...)
}

// OutboxEvents returns a copy of the outbox in insertion order.
func (s *Store) OutboxEvents() []domain.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OutboxEvent(nil), s.outbox...)
}

// AllAlerts returns every alert ordered by creation time.
func (s *Store) AllAlerts() []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// PutTicket stores a ticket as-is, bypassing the outbox.
func (s *Store) PutTicket(t domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t.Clone()
}

func (s *Store) enqueueLocked(event *domain.OutboxEvent) {
	if event == nil {
		return
	}
	for _, existing := range s.outbox {
		if existing.DedupKey == event.DedupKey {
			return
		}
	}
	e := *event
	e.Status = domain.OutboxPending
	s.outbox = append(s.outbox, e)
}

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket, event *domain.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailTicketWrites != nil {
		return r.s.FailTicketWrites
	}
	r.s.tickets[ticket.ID] = ticket.Clone()
	r.s.enqueueLocked(event)
	return nil
}

func (r ticketRepo) Update(_ context.Context, ticket *domain.Ticket, expected repository.TicketVersion, event *domain.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailTicketWrites != nil {
		return r.s.FailTicketWrites
	}
	current, ok := r.s.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Level != expected.Level || !current.LastModifiedAt.Equal(expected.LastModifiedAt) {
		return repository.ErrConflict
	}
	next := ticket.Clone()
	next.Level = current.Level
	next.RequestingOrgID = current.RequestingOrgID
	next.CreatedBy = current.CreatedBy
	next.CreatedAt = current.CreatedAt
	r.s.tickets[ticket.ID] = next
	r.s.enqueueLocked(event)
	return nil
}

func (r ticketRepo) ApplyEscalation(_ context.Context, change repository.EscalationChange, event *domain.OutboxEvent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailTicketWrites != nil {
		return false, r.s.FailTicketWrites
	}
	current, ok := r.s.tickets[change.TicketID]
	if !ok || current.Level != change.FromLevel {
		return false, nil
	}
	due := change.DueAt
	current.Level = change.ToLevel
	current.ResponsibleOrgID = change.ResponsibleOrgID
	current.DueAt = &due
	current.LastModifiedAt = change.ModifiedAt
	current.AssignedAgentID = nil
	current.AssignedAgentName = nil
	r.s.tickets[change.TicketID] = current
	r.s.enqueueLocked(event)
	return true, nil
}

func (r ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := t.Clone()
	return &out, nil
}

func (r ticketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailTicketListing != nil {
		return nil, r.s.FailTicketListing
	}
	orgs := make(map[string]struct{}, len(filter.OrgIDs))
	for _, id := range filter.OrgIDs {
		orgs[id] = struct{}{}
	}
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		if !visible(filter, orgs, t) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if len(filter.Levels) > 0 && !containsLevel(filter.Levels, t.Level) {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (r ticketRepo) Count(_ context.Context, filter repository.TicketFilter, from, to time.Time) (repository.TicketCounts, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailTicketListing != nil {
		return repository.TicketCounts{}, r.s.FailTicketListing
	}
	orgs := make(map[string]struct{}, len(filter.OrgIDs))
	for _, id := range filter.OrgIDs {
		orgs[id] = struct{}{}
	}
	var counts repository.TicketCounts
	for _, t := range r.s.tickets {
		if !visible(filter, orgs, t) {
			continue
		}
		counts.Total++
		switch t.Status {
		case domain.TicketStatusInProgress:
			counts.InProgress++
			if t.DueAt != nil && !t.DueAt.Before(from) && !t.DueAt.After(to) {
				counts.DueSoon++
			}
		case domain.TicketStatusCompleted:
			counts.Completed++
			if t.CompletedAt != nil && t.DueAt != nil && !t.CompletedAt.After(*t.DueAt) {
				counts.CompletedOnTime++
			}
		}
	}
	return counts, nil
}

func visible(filter repository.TicketFilter, orgs map[string]struct{}, t domain.Ticket) bool {
	if filter.All {
		return true
	}
	_, req := orgs[t.RequestingOrgID]
	_, resp := orgs[t.ResponsibleOrgID]
	mine := filter.CreatedBy != "" && strings.EqualFold(t.CreatedBy, filter.CreatedBy)
	return req || resp || mine
}

func (r ticketRepo) ListDueForEscalation(_ context.Context, now time.Time, after *repository.DueCursor, limit int) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailTicketListing != nil {
		return nil, r.s.FailTicketListing
	}
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		if !t.Status.Open() || t.Level == domain.LevelConfederation || t.DueAt == nil || t.DueAt.After(now) {
			continue
		}
		if after != nil && !dueAfter(*t.DueAt, t.ID, *after) {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueAt.Equal(*out[j].DueAt) {
			return out[i].DueAt.Before(*out[j].DueAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, limit, 0), nil
}

func (r ticketRepo) ListOpenByResponsibleOrg(_ context.Context, orgID string) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		if t.ResponsibleOrgID != orgID || t.Status == domain.TicketStatusCompleted || t.Status == domain.TicketStatusCancelled {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// dueAfter mirrors the row comparison (due_at, id) > (cursor.DueAt, cursor.ID).
func dueAfter(due time.Time, id string, cursor repository.DueCursor) bool {
	if !due.Equal(cursor.DueAt) {
		return due.After(cursor.DueAt)
	}
	return id > cursor.ID
}

func containsStatus(list []domain.TicketStatus, v domain.TicketStatus) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsLevel(list []domain.TicketLevel, v domain.TicketLevel) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
