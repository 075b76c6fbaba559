package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/coopdesk/internal/domain"
)

func TestPublishRunsEveryHandlerAndJoinsErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	d.Subscribe(EventTicketUpdated, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("first failed")
	})
	d.Subscribe(EventTicketUpdated, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketUpdated})
	require.ErrorContains(t, err, "first failed")
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestOutboxRoundTripKeepsDedupKey(t *testing.T) {
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := Event{
		ID:           "evt-1",
		Type:         EventTicketUpdated,
		TicketID:     "t-1",
		TransitionID: "tr-9",
		Actor:        ActorFrom(domain.SystemPrincipal),
		Timestamp:    due,
		Payload: TicketChange{
			After:         domain.Ticket{ID: "t-1", Level: domain.LevelFederation, DueAt: &due},
			CustomMessage: "Ticket transferred to federation",
		},
	}

	row, err := event.ToOutbox()
	require.NoError(t, err)
	assert.Equal(t, "t-1:tr-9", row.DedupKey)
	assert.Equal(t, domain.OutboxPending, row.Status)

	decoded, err := FromOutbox(*row)
	require.NoError(t, err)
	assert.Equal(t, domain.LevelFederation, decoded.Payload.After.Level)
	assert.Equal(t, "Automatic System", decoded.Actor.Name)
	require.NotNil(t, decoded.Payload.After.DueAt)
	assert.True(t, due.Equal(*decoded.Payload.After.DueAt))
}
