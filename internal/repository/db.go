package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/coopdesk/internal/domain"
	apperrors "github.com/spec-kit/coopdesk/pkg/util/errorutil"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = apperrors.ErrNotFound

// ErrConflict is returned when a conditional update finds the row changed.
var ErrConflict = apperrors.ErrConflict

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func enqueueOutbox(ctx context.Context, db DBTX, event *domain.OutboxEvent) error {
	if event == nil {
		return nil
	}
	const query = `
        INSERT INTO notification_outbox (id, dedup_key, ticket_id, event_type, payload, status, attempts, created_at)
        VALUES ($1,$2,$3,$4,$5,'pending',0,$6)
        ON CONFLICT (dedup_key) DO NOTHING`
	if _, err := db.Exec(ctx, query,
		event.ID,
		event.DedupKey,
		event.TicketID,
		event.EventType,
		[]byte(event.Payload),
		event.CreatedAt,
	); err != nil {
		return fmt.Errorf("enqueue outbox: %w", err)
	}
	return nil
}
