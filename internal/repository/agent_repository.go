package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/coopdesk/internal/domain"
)

// AgentRepository reads the agent directory.
type AgentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	ListActiveByOrg(ctx context.Context, orgID string) ([]domain.Agent, error)
	Upsert(ctx context.Context, agent *domain.Agent) error
}

type agentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository instantiates the repository.
func NewAgentRepository(pool *pgxpool.Pool) AgentRepository {
	return &agentRepository{pool: pool}
}

func (r *agentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	const query = `SELECT id, name, email, org_id, active FROM agents WHERE id=$1`
	var agent domain.Agent
	if err := r.pool.QueryRow(ctx, query, id).Scan(&agent.ID, &agent.Name, &agent.Email, &agent.OrgID, &agent.Active); err != nil {
		return nil, notFound(err)
	}
	return &agent, nil
}

func (r *agentRepository) ListActiveByOrg(ctx context.Context, orgID string) ([]domain.Agent, error) {
	const query = `SELECT id, name, email, org_id, active FROM agents WHERE org_id=$1 AND active ORDER BY name`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Agent
	for rows.Next() {
		var agent domain.Agent
		if err := rows.Scan(&agent.ID, &agent.Name, &agent.Email, &agent.OrgID, &agent.Active); err != nil {
			return nil, err
		}
		result = append(result, agent)
	}
	return result, rows.Err()
}

func (r *agentRepository) Upsert(ctx context.Context, agent *domain.Agent) error {
	const query = `
        INSERT INTO agents (id, name, email, org_id, active) VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, email=EXCLUDED.email, org_id=EXCLUDED.org_id, active=EXCLUDED.active`
	_, err := r.pool.Exec(ctx, query, agent.ID, agent.Name, agent.Email, agent.OrgID, agent.Active)
	return err
}
