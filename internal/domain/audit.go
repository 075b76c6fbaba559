package domain

import "time"

// AuditEntry is an append-only record of a ticket mutation.
type AuditEntry struct {
	ID        string
	TicketID  string
	ActorID   string
	ActorName string
	Action    string
	Details   string
	Timestamp time.Time
}
