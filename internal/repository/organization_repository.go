package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/coopdesk/internal/domain"
)

// OrganizationRepository reads the cooperative hierarchy.
type OrganizationRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Organization, error)
	// FirstByKind returns one organization of the kind, lowest id first.
	FirstByKind(ctx context.Context, kind domain.OrgKind) (*domain.Organization, error)
	ListChildren(ctx context.Context, parentID string) ([]domain.Organization, error)
	Upsert(ctx context.Context, org *domain.Organization) error
}

type organizationRepository struct {
	pool *pgxpool.Pool
}

// NewOrganizationRepository builds repository.
func NewOrganizationRepository(pool *pgxpool.Pool) OrganizationRepository {
	return &organizationRepository{pool: pool}
}

func (r *organizationRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	const query = `SELECT id, display_name, kind, federation_name, parent_id FROM organizations WHERE id=$1`
	var org domain.Organization
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&org.ID,
		&org.DisplayName,
		&org.Kind,
		&org.FederationName,
		&org.ParentID,
	); err != nil {
		return nil, notFound(err)
	}
	return &org, nil
}

func (r *organizationRepository) FirstByKind(ctx context.Context, kind domain.OrgKind) (*domain.Organization, error) {
	const query = `SELECT id, display_name, kind, federation_name, parent_id FROM organizations WHERE kind=$1 ORDER BY id LIMIT 1`
	var org domain.Organization
	if err := r.pool.QueryRow(ctx, query, kind).Scan(
		&org.ID,
		&org.DisplayName,
		&org.Kind,
		&org.FederationName,
		&org.ParentID,
	); err != nil {
		return nil, notFound(err)
	}
	return &org, nil
}

func (r *organizationRepository) ListChildren(ctx context.Context, parentID string) ([]domain.Organization, error) {
	const query = `SELECT id, display_name, kind, federation_name, parent_id FROM organizations WHERE parent_id=$1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Organization
	for rows.Next() {
		var org domain.Organization
		if err := rows.Scan(&org.ID, &org.DisplayName, &org.Kind, &org.FederationName, &org.ParentID); err != nil {
			return nil, err
		}
		result = append(result, org)
	}
	return result, rows.Err()
}

func (r *organizationRepository) Upsert(ctx context.Context, org *domain.Organization) error {
	const query = `
        INSERT INTO organizations (id, display_name, kind, federation_name, parent_id)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE SET display_name=EXCLUDED.display_name, kind=EXCLUDED.kind,
            federation_name=EXCLUDED.federation_name, parent_id=EXCLUDED.parent_id`
	_, err := r.pool.Exec(ctx, query, org.ID, org.DisplayName, org.Kind, org.FederationName, org.ParentID)
	return err
}
