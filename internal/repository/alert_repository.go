package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/coopdesk/internal/domain"
)

// AlertRepository persists per-recipient alerts.
type AlertRepository interface {
	Create(ctx context.Context, alert *domain.Alert) error
	GetByID(ctx context.Context, id string) (*domain.Alert, error)
	// ListForRecipient returns unread alerts first, newest first within each group.
	ListForRecipient(ctx context.Context, email string, limit int) ([]domain.Alert, error)
	SetRead(ctx context.Context, id string, read bool) error
	MarkAllRead(ctx context.Context, email string) (int64, error)
}

type alertRepository struct {
	pool *pgxpool.Pool
}

// NewAlertRepository builds repository.
func NewAlertRepository(pool *pgxpool.Pool) AlertRepository {
	return &alertRepository{pool: pool}
}

const alertColumns = `id, ticket_id, recipient_email, recipient_org_id, kind, title, message, details, read, triggered_by, created_at`

func (r *alertRepository) Create(ctx context.Context, alert *domain.Alert) error {
	const query = `
        INSERT INTO alerts (id, ticket_id, recipient_email, recipient_org_id, kind, title, message, details, read, triggered_by, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query,
		alert.ID,
		alert.TicketID,
		alert.RecipientEmail,
		alert.RecipientOrgID,
		alert.Kind,
		alert.Title,
		alert.Message,
		alert.Details,
		alert.Read,
		alert.TriggeredBy,
		alert.CreatedAt,
	)
	return err
}

func (r *alertRepository) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id=$1`
	var alert domain.Alert
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&alert.ID,
		&alert.TicketID,
		&alert.RecipientEmail,
		&alert.RecipientOrgID,
		&alert.Kind,
		&alert.Title,
		&alert.Message,
		&alert.Details,
		&alert.Read,
		&alert.TriggeredBy,
		&alert.CreatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &alert, nil
}

func (r *alertRepository) ListForRecipient(ctx context.Context, email string, limit int) ([]domain.Alert, error) {
	query := `SELECT ` + alertColumns + `
        FROM alerts WHERE lower(recipient_email)=lower($1)
        ORDER BY read ASC, created_at DESC
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, email, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Alert
	for rows.Next() {
		var alert domain.Alert
		if err := rows.Scan(
			&alert.ID,
			&alert.TicketID,
			&alert.RecipientEmail,
			&alert.RecipientOrgID,
			&alert.Kind,
			&alert.Title,
			&alert.Message,
			&alert.Details,
			&alert.Read,
			&alert.TriggeredBy,
			&alert.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, alert)
	}
	return result, rows.Err()
}

func (r *alertRepository) SetRead(ctx context.Context, id string, read bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE alerts SET read=$1 WHERE id=$2`, read, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *alertRepository) MarkAllRead(ctx context.Context, email string) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `UPDATE alerts SET read=TRUE WHERE lower(recipient_email)=lower($1) AND NOT read`, email)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
