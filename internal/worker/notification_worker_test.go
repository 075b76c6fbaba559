package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/events"
	"github.com/spec-kit/coopdesk/internal/observability"
	"github.com/spec-kit/coopdesk/internal/repository"
	"github.com/spec-kit/coopdesk/internal/repository/memory"
)

func enqueue(t *testing.T, store *memory.Store, id, transition string) {
	t.Helper()
	event := events.Event{
		ID:           id,
		Type:         events.EventTicketUpdated,
		TicketID:     "t1",
		TransitionID: transition,
		Timestamp:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Payload:      events.TicketChange{After: domain.Ticket{ID: "t1", Title: "x"}},
	}
	row, err := event.ToOutbox()
	require.NoError(t, err)
	store.PutTicket(domain.Ticket{ID: "t1"})
	require.NoError(t, store.Repositories().Tickets.Update(context.Background(), &domain.Ticket{ID: "t1"}, repository.TicketVersion{}, row))
}

func TestRunOnceDeliversAndMarksDone(t *testing.T) {
	store := memory.NewStore()
	enqueue(t, store, "e1", "tr-1")
	enqueue(t, store, "e2", "tr-2")
	enqueue(t, store, "e3", "tr-2") // same transition, dropped at enqueue

	dispatcher := events.NewInMemoryDispatcher()
	var got []string
	dispatcher.Subscribe(events.EventTicketUpdated, func(_ context.Context, e events.Event) error {
		got = append(got, e.DedupKey())
		return nil
	})
	metrics := observability.NewMetrics()
	w := NewNotificationWorker(store.Repositories().Outbox, dispatcher, NotificationWorkerConfig{})
	w.Metrics = metrics

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"t1:tr-1", "t1:tr-2"}, got)
	for _, row := range store.OutboxEvents() {
		assert.Equal(t, domain.OutboxDone, row.Status)
		assert.NotNil(t, row.ProcessedAt)
	}
	assert.Equal(t, int64(2), metrics.Snapshot().Counters[observability.CounterOutboxDelivered])

	n, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunOnceRetriesThenGivesUp(t *testing.T) {
	store := memory.NewStore()
	enqueue(t, store, "e1", "tr-1")

	dispatcher := events.NewInMemoryDispatcher()
	calls := 0
	dispatcher.Subscribe(events.EventTicketUpdated, func(context.Context, events.Event) error {
		calls++
		return errors.New("smtp down")
	})
	w := NewNotificationWorker(store.Repositories().Outbox, dispatcher, NotificationWorkerConfig{MaxAttempts: 2})

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	row := store.OutboxEvents()[0]
	assert.Equal(t, domain.OutboxPending, row.Status)
	require.NotNil(t, row.LastError)
	assert.Contains(t, *row.LastError, "smtp down")

	_, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxFailed, store.OutboxEvents()[0].Status)

	_, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRunOnceRedeliversAbandonedClaims(t *testing.T) {
	store := memory.NewStore()
	enqueue(t, store, "e1", "tr-1")
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	// a previous worker claimed the row and died before marking it
	claimed, err := store.Repositories().Outbox.Claim(context.Background(), now, time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	dispatcher := events.NewInMemoryDispatcher()
	var got []string
	dispatcher.Subscribe(events.EventTicketUpdated, func(_ context.Context, e events.Event) error {
		got = append(got, e.DedupKey())
		return nil
	})
	w := NewNotificationWorker(store.Repositories().Outbox, dispatcher, NotificationWorkerConfig{ClaimLease: time.Minute})
	w.Now = func() time.Time { return now.Add(30 * time.Second) }

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "claim is still leased")
	assert.Equal(t, domain.OutboxProcessing, store.OutboxEvents()[0].Status)

	w.Now = func() time.Time { return now.Add(2 * time.Minute) }
	n, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"t1:tr-1"}, got)
	row := store.OutboxEvents()[0]
	assert.Equal(t, domain.OutboxDone, row.Status)
	assert.Equal(t, 2, row.Attempts)
}

func TestClaimLeaseDefaultsToBatchBudget(t *testing.T) {
	w := NewNotificationWorker(memory.NewStore().Repositories().Outbox, events.NewInMemoryDispatcher(), NotificationWorkerConfig{
		PollInterval: time.Second,
		BatchSize:    10,
		EventTimeout: time.Minute,
	})
	assert.Equal(t, 10*time.Minute+time.Second, w.Config.ClaimLease)
}

func TestStartStopsOnCancel(t *testing.T) {
	store := memory.NewStore()
	w := NewNotificationWorker(store.Repositories().Outbox, events.NewInMemoryDispatcher(), NotificationWorkerConfig{PollInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRunOnceRequiresDependencies(t *testing.T) {
	var w *NotificationWorker
	_, err := w.RunOnce(context.Background())
	require.Error(t, err)
}
