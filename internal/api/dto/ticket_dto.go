package dto

import (
	"time"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/service"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	CityID      string                `json:"city_id"`
	Specialties []string              `json:"specialties"`
	Quantity    int                   `json:"quantity"`
	Notes       string                `json:"notes"`
	Priority    domain.TicketPriority `json:"priority"`
}

// UpdateTicketRequest is a partial update. Absent fields are left alone.
// Level, RequestingOrgID and CreatedBy are accepted only so they can be refused.
type UpdateTicketRequest struct {
	Title             *string                `json:"title"`
	ResponsibleOrgID  *string                `json:"responsible_org_id"`
	CityID            *string                `json:"city_id"`
	Specialties       *[]string              `json:"specialties"`
	Quantity          *int                   `json:"quantity"`
	Notes             *string                `json:"notes"`
	Priority          *domain.TicketPriority `json:"priority"`
	Status            *domain.TicketStatus   `json:"status"`
	AssignedAgentID   *string                `json:"assigned_agent_id"`
	AssignedAgentName *string                `json:"assigned_agent_name"`
	DueAt             *time.Time             `json:"due_at"`
	Comment           string                 `json:"comment"`

	Level           *string `json:"level"`
	RequestingOrgID *string `json:"requesting_org_id"`
	CreatedBy       *string `json:"created_by"`
}

// TransferTicketRequest payload.
type TransferTicketRequest struct {
	Reason string `json:"reason"`
}

// TicketResponse is the enriched ticket.
type TicketResponse struct {
	ID                 string                `json:"id"`
	Title              string                `json:"title"`
	RequestingOrgID    string                `json:"requesting_org_id"`
	RequestingOrgName  *string               `json:"requesting_org_name"`
	ResponsibleOrgID   string                `json:"responsible_org_id"`
	ResponsibleOrgName *string               `json:"responsible_org_name"`
	CityID             string                `json:"city_id"`
	Specialties        []string              `json:"specialties"`
	Quantity           int                   `json:"quantity"`
	Notes              string                `json:"notes"`
	Priority           domain.TicketPriority `json:"priority"`
	Level              domain.TicketLevel    `json:"level"`
	Status             domain.TicketStatus   `json:"status"`
	AssignedAgentID    *string               `json:"assigned_agent_id"`
	AssignedAgentName  *string               `json:"assigned_agent_name"`
	CreatedBy          string                `json:"created_by"`
	DueAt              *time.Time            `json:"due_at"`
	CreatedAt          time.Time             `json:"created_at"`
	LastModifiedAt     time.Time             `json:"last_modified_at"`
	CompletedAt        *time.Time            `json:"completed_at"`
	DaysRemaining      int                   `json:"days_remaining"`
	DaysToComplete     *int                  `json:"days_to_complete"`
	Viewpoint          domain.Viewpoint      `json:"viewpoint"`
}

// AuditEntryResponse is one audit trail line.
type AuditEntryResponse struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	specialties := t.Specialties
	if specialties == nil {
		specialties = []string{}
	}
	return TicketResponse{
		ID:                 t.ID,
		Title:              t.Title,
		RequestingOrgID:    t.RequestingOrgID,
		RequestingOrgName:  t.RequestingOrgName,
		ResponsibleOrgID:   t.ResponsibleOrgID,
		ResponsibleOrgName: t.ResponsibleOrgName,
		CityID:             t.CityID,
		Specialties:        specialties,
		Quantity:           t.Quantity,
		Notes:              t.Notes,
		Priority:           t.Priority,
		Level:              t.Level,
		Status:             t.Status,
		AssignedAgentID:    t.AssignedAgentID,
		AssignedAgentName:  t.AssignedAgentName,
		CreatedBy:          t.CreatedBy,
		DueAt:              t.DueAt,
		CreatedAt:          t.CreatedAt,
		LastModifiedAt:     t.LastModifiedAt,
		CompletedAt:        t.CompletedAt,
		DaysRemaining:      t.DaysRemaining,
		DaysToComplete:     t.DaysToComplete,
		Viewpoint:          t.Viewpoint,
	}
}

// NewAuditEntryResponse maps an audit entry.
func NewAuditEntryResponse(e domain.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:        e.ID,
		ActorID:   e.ActorID,
		ActorName: e.ActorName,
		Action:    e.Action,
		Details:   e.Details,
		Timestamp: e.Timestamp,
	}
}

// DashboardStatsResponse is the dashboard summary.
type DashboardStatsResponse struct {
	Total         int `json:"total"`
	DueSoon       int `json:"due_soon"`
	InProgress    int `json:"in_progress"`
	Completed     int `json:"completed"`
	SLAMetPercent int `json:"sla_met_percent"`
}

// NewDashboardStatsResponse maps service stats.
func NewDashboardStatsResponse(s service.DashboardStats) DashboardStatsResponse {
	return DashboardStatsResponse{
		Total:         s.Total,
		DueSoon:       s.DueSoon,
		InProgress:    s.InProgress,
		Completed:     s.Completed,
		SLAMetPercent: s.SLAMetPercent,
	}
}
