package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spec-kit/coopdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated EventType = "ticket.created"
	EventTicketUpdated EventType = "ticket.updated"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ActorFrom converts a principal.
func ActorFrom(p domain.Principal) Actor {
	return Actor{ID: p.ID, Email: p.Email, Name: p.DisplayName()}
}

// TicketChange carries the state of a ticket around a mutation.
type TicketChange struct {
	Before        *domain.Ticket `json:"before,omitempty"`
	After         domain.Ticket  `json:"after"`
	Details       []string       `json:"details,omitempty"`
	Comment       string         `json:"comment,omitempty"`
	CustomMessage string         `json:"custom_message,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID           string       `json:"id"`
	Type         EventType    `json:"type"`
	TicketID     string       `json:"ticket_id"`
	TransitionID string       `json:"transition_id"`
	Actor        Actor        `json:"actor"`
	Timestamp    time.Time    `json:"timestamp"`
	Payload      TicketChange `json:"payload"`
}

// DedupKey identifies one logical notification.
func (e Event) DedupKey() string {
	return e.TicketID + ":" + e.TransitionID
}

// ToOutbox serializes the event for durable delivery.
func (e Event) ToOutbox() (*domain.OutboxEvent, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return &domain.OutboxEvent{
		ID:        e.ID,
		DedupKey:  e.DedupKey(),
		TicketID:  e.TicketID,
		EventType: string(e.Type),
		Payload:   raw,
		Status:    domain.OutboxPending,
		CreatedAt: e.Timestamp,
	}, nil
}

// FromOutbox decodes an event stored by ToOutbox.
func FromOutbox(row domain.OutboxEvent) (Event, error) {
	var event Event
	if err := json.Unmarshal(row.Payload, &event); err != nil {
		return Event{}, fmt.Errorf("decode outbox event %s: %w", row.ID, err)
	}
	return event, nil
}
