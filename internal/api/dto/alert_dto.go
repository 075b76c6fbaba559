package dto

import (
	"time"

	"github.com/spec-kit/coopdesk/internal/domain"
)

// SetAlertReadRequest payload. A missing read flag means true.
type SetAlertReadRequest struct {
	Read *bool `json:"read"`
}

// AlertResponse is one in-app notification.
type AlertResponse struct {
	ID          string           `json:"id"`
	TicketID    string           `json:"ticket_id"`
	Kind        domain.AlertKind `json:"kind"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Details     string           `json:"details,omitempty"`
	Read        bool             `json:"read"`
	TriggeredBy string           `json:"triggered_by"`
	CreatedAt   time.Time        `json:"created_at"`
}

// NewAlertResponse maps an alert.
func NewAlertResponse(a domain.Alert) AlertResponse {
	return AlertResponse{
		ID:          a.ID,
		TicketID:    a.TicketID,
		Kind:        a.Kind,
		Title:       a.Title,
		Message:     a.Message,
		Details:     a.Details,
		Read:        a.Read,
		TriggeredBy: a.TriggeredBy,
		CreatedAt:   a.CreatedAt,
	}
}
