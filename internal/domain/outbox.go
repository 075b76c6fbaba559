package domain

import (
	"encoding/json"
	"time"
)

// OutboxStatus tracks delivery of a queued notification event.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxDone       OutboxStatus = "done"
	OutboxFailed     OutboxStatus = "failed"
)

// OutboxEvent is a durable pending notification written alongside a ticket mutation.
type OutboxEvent struct {
	ID          string
	DedupKey    string
	TicketID    string
	EventType   string
	Payload     json.RawMessage
	Status      OutboxStatus
	Attempts    int
	LastError   *string
	CreatedAt   time.Time
	ClaimedAt   *time.Time
	ProcessedAt *time.Time
}
