package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/coopdesk/internal/domain"
)

// OutboxRepository drains queued notification events.
type OutboxRepository interface {
	// Claim moves up to limit events to processing, stamped with now, and
	// returns them. Pending rows qualify, and so do processing rows whose claim
	// is older than lease, which covers workers that died mid-delivery.
	Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.OutboxEvent, error)
	MarkDone(ctx context.Context, id string, at time.Time) error
	// MarkFailed records the error; the event returns to pending until maxAttempts is reached.
	MarkFailed(ctx context.Context, id string, cause string, maxAttempts int) error
}

type outboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository builds repository.
func NewOutboxRepository(pool *pgxpool.Pool) OutboxRepository {
	return &outboxRepository{pool: pool}
}

func (r *outboxRepository) Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.OutboxEvent, error) {
	const query = `
        UPDATE notification_outbox SET status='processing', attempts=attempts+1, claimed_at=$2
        WHERE id IN (
            SELECT id FROM notification_outbox
            WHERE status='pending'
               OR (status='processing' AND (claimed_at IS NULL OR claimed_at < $3))
            ORDER BY created_at ASC
            LIMIT $1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING id, dedup_key, ticket_id, event_type, payload, status, attempts, last_error, created_at, claimed_at, processed_at`

	var result []domain.OutboxEvent
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, limit, now, now.Add(-lease))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var event domain.OutboxEvent
			var payload []byte
			if err := rows.Scan(
				&event.ID,
				&event.DedupKey,
				&event.TicketID,
				&event.EventType,
				&payload,
				&event.Status,
				&event.Attempts,
				&event.LastError,
				&event.CreatedAt,
				&event.ClaimedAt,
				&event.ProcessedAt,
			); err != nil {
				return err
			}
			event.Payload = payload
			result = append(result, event)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *outboxRepository) MarkDone(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE notification_outbox SET status='done', processed_at=$1, last_error=NULL WHERE id=$2`, at, id)
	return err
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, cause string, maxAttempts int) error {
	const query = `
        UPDATE notification_outbox
        SET status = CASE WHEN attempts >= $1 THEN 'failed' ELSE 'pending' END, last_error=$2
        WHERE id=$3`
	_, err := r.pool.Exec(ctx, query, maxAttempts, cause, id)
	return err
}
