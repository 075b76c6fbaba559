package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/coopdesk/internal/domain"
)

// EscalationSettingRepository stores per-organization auto-decline flags.
type EscalationSettingRepository interface {
	// Get returns a disabled setting when none is stored.
	Get(ctx context.Context, orgID string) (*domain.EscalationSetting, error)
	Upsert(ctx context.Context, setting *domain.EscalationSetting) error
}

type escalationSettingRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationSettingRepository builds repository.
func NewEscalationSettingRepository(pool *pgxpool.Pool) EscalationSettingRepository {
	return &escalationSettingRepository{pool: pool}
}

func (r *escalationSettingRepository) Get(ctx context.Context, orgID string) (*domain.EscalationSetting, error) {
	const query = `SELECT org_id, auto_decline, updated_at FROM organization_escalation_settings WHERE org_id=$1`
	var setting domain.EscalationSetting
	err := r.pool.QueryRow(ctx, query, orgID).Scan(&setting.OrgID, &setting.AutoDecline, &setting.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.EscalationSetting{OrgID: orgID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (r *escalationSettingRepository) Upsert(ctx context.Context, setting *domain.EscalationSetting) error {
	const query = `
        INSERT INTO organization_escalation_settings (org_id, auto_decline, updated_at)
        VALUES ($1,$2,$3)
        ON CONFLICT (org_id) DO UPDATE SET auto_decline=EXCLUDED.auto_decline, updated_at=EXCLUDED.updated_at`
	_, err := r.pool.Exec(ctx, query, setting.OrgID, setting.AutoDecline, setting.UpdatedAt)
	return err
}
