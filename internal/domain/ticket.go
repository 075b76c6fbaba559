package domain

import "time"

// TicketLevel is the hierarchy tier currently responsible for a ticket.
type TicketLevel string

const (
	LevelLocal         TicketLevel = "local"
	LevelFederation    TicketLevel = "federation"
	LevelConfederation TicketLevel = "confederation"
)

// Rank orders levels so that escalation only moves forward.
func (l TicketLevel) Rank() int {
	switch l {
	case LevelLocal:
		return 0
	case LevelFederation:
		return 1
	case LevelConfederation:
		return 2
	default:
		return -1
	}
}

// Valid reports whether l is a known level.
func (l TicketLevel) Valid() bool {
	return l.Rank() >= 0
}

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusCompleted  TicketStatus = "completed"
	TicketStatusCancelled  TicketStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusInProgress, TicketStatusCompleted, TicketStatusCancelled:
		return true
	}
	return false
}

// Open reports whether the ticket still awaits resolution.
func (s TicketStatus) Open() bool {
	return s == TicketStatusNew || s == TicketStatusInProgress
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Viewpoint describes how a ticket relates to the caller's organization.
type Viewpoint string

const (
	ViewpointMade     Viewpoint = "made"
	ViewpointReceived Viewpoint = "received"
	ViewpointInternal Viewpoint = "internal"
	ViewpointWatching Viewpoint = "watching"
)

// Ticket is a service request routed through the cooperative hierarchy.
type Ticket struct {
	ID                string
	Title             string
	RequestingOrgID   string
	ResponsibleOrgID  string
	CityID            string
	Specialties       []string
	Quantity          int
	Notes             string
	Priority          TicketPriority
	Level             TicketLevel
	Status            TicketStatus
	AssignedAgentID   *string
	AssignedAgentName *string
	CreatedBy         string
	DueAt             *time.Time
	CreatedAt         time.Time
	LastModifiedAt    time.Time
	CompletedAt       *time.Time

	// Read-side enrichment, never persisted.
	RequestingOrgName  *string
	ResponsibleOrgName *string
	DaysRemaining      int
	DaysToComplete     *int
	Viewpoint          Viewpoint
}

// Clone returns a deep copy so snapshots cannot alias each other.
func (t Ticket) Clone() Ticket {
	out := t
	if t.Specialties != nil {
		out.Specialties = append([]string(nil), t.Specialties...)
	}
	out.AssignedAgentID = cloneString(t.AssignedAgentID)
	out.AssignedAgentName = cloneString(t.AssignedAgentName)
	out.RequestingOrgName = cloneString(t.RequestingOrgName)
	out.ResponsibleOrgName = cloneString(t.ResponsibleOrgName)
	out.DueAt = cloneTime(t.DueAt)
	out.CompletedAt = cloneTime(t.CompletedAt)
	if t.DaysToComplete != nil {
		v := *t.DaysToComplete
		out.DaysToComplete = &v
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
