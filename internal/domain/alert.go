package domain

import "time"

// AlertKind classifies a notification.
type AlertKind string

const (
	AlertKindNew        AlertKind = "new"
	AlertKindStatus     AlertKind = "status"
	AlertKindLevel      AlertKind = "level"
	AlertKindAssignment AlertKind = "assignment"
	AlertKindComment    AlertKind = "comment"
	AlertKindUpdate     AlertKind = "update"
)

// Alert is a per-recipient in-app notification.
type Alert struct {
	ID             string
	TicketID       string
	RecipientEmail string
	RecipientOrgID *string
	Kind           AlertKind
	Title          string
	Message        string
	Details        string
	Read           bool
	TriggeredBy    string
	CreatedAt      time.Time
}
