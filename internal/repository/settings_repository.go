package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/coopdesk/internal/domain"
)

// SystemPreferencesKey is the settings row holding SystemSettings.
const SystemPreferencesKey = "system_preferences"

// SettingsRepository persists the system preferences document.
type SettingsRepository interface {
	GetSystem(ctx context.Context) (*domain.SystemSettings, error)
	SaveSystem(ctx context.Context, settings domain.SystemSettings) error
	// EnsureDefaults stores the defaults unless a document already exists.
	EnsureDefaults(ctx context.Context) error
}

type settingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository builds repository.
func NewSettingsRepository(pool *pgxpool.Pool) SettingsRepository {
	return &settingsRepository{pool: pool}
}

func (r *settingsRepository) GetSystem(ctx context.Context) (*domain.SystemSettings, error) {
	var raw []byte
	if err := r.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key=$1`, SystemPreferencesKey).Scan(&raw); err != nil {
		return nil, notFound(err)
	}
	settings := domain.DefaultSystemSettings()
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("decode system settings: %w", err)
	}
	return &settings, nil
}

func (r *settingsRepository) SaveSystem(ctx context.Context, settings domain.SystemSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO settings (key, value, updated_at) VALUES ($1,$2,NOW())
        ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`
	_, err = r.pool.Exec(ctx, query, SystemPreferencesKey, raw)
	return err
}

func (r *settingsRepository) EnsureDefaults(ctx context.Context) error {
	raw, err := json.Marshal(domain.DefaultSystemSettings())
	if err != nil {
		return err
	}
	const query = `INSERT INTO settings (key, value, updated_at) VALUES ($1,$2,NOW()) ON CONFLICT (key) DO NOTHING`
	_, err = r.pool.Exec(ctx, query, SystemPreferencesKey, raw)
	return err
}
