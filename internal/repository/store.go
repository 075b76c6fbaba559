package repository

import "github.com/jackc/pgx/v5/pgxpool"

// Store bundles every repository the service needs.
type Store struct {
	Tickets            TicketRepository
	Organizations      OrganizationRepository
	EscalationSettings EscalationSettingRepository
	Cities             CityRepository
	Agents             AgentRepository
	Audit              AuditRepository
	Alerts             AlertRepository
	Settings           SettingsRepository
	Outbox             OutboxRepository
}

// NewPostgresStore wires pgx-backed repositories over a shared pool.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Tickets:            NewTicketRepository(pool),
		Organizations:      NewOrganizationRepository(pool),
		EscalationSettings: NewEscalationSettingRepository(pool),
		Cities:             NewCityRepository(pool),
		Agents:             NewAgentRepository(pool),
		Audit:              NewAuditRepository(pool),
		Alerts:             NewAlertRepository(pool),
		Settings:           NewSettingsRepository(pool),
		Outbox:             NewOutboxRepository(pool),
	}
}
