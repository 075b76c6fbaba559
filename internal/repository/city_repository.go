package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/coopdesk/internal/domain"
)

// CityRepository resolves served cities to their responsible organization.
type CityRepository interface {
	GetByID(ctx context.Context, id string) (*domain.City, error)
	Upsert(ctx context.Context, city *domain.City) error
}

type cityRepository struct {
	pool *pgxpool.Pool
}

// NewCityRepository builds repository.
func NewCityRepository(pool *pgxpool.Pool) CityRepository {
	return &cityRepository{pool: pool}
}

func (r *cityRepository) GetByID(ctx context.Context, id string) (*domain.City, error) {
	const query = `SELECT id, name, COALESCE(responsible_org_id, '') FROM cities WHERE id=$1`
	var city domain.City
	if err := r.pool.QueryRow(ctx, query, id).Scan(&city.ID, &city.Name, &city.ResponsibleOrgID); err != nil {
		return nil, notFound(err)
	}
	return &city, nil
}

func (r *cityRepository) Upsert(ctx context.Context, city *domain.City) error {
	const query = `
        INSERT INTO cities (id, name, responsible_org_id) VALUES ($1,$2,NULLIF($3,''))
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, responsible_org_id=EXCLUDED.responsible_org_id`
	_, err := r.pool.Exec(ctx, query, city.ID, city.Name, city.ResponsibleOrgID)
	return err
}
