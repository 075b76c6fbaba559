package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/repository"
)

type orgRepo struct{ s *Store }

func (r orgRepo) GetByID(_ context.Context, id string) (*domain.Organization, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailOrgLookup != nil {
		return nil, r.s.FailOrgLookup
	}
	org, ok := r.s.orgs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &org, nil
}

func (r orgRepo) FirstByKind(_ context.Context, kind domain.OrgKind) (*domain.Organization, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailOrgLookup != nil {
		return nil, r.s.FailOrgLookup
	}
	var match *domain.Organization
	for _, org := range r.s.orgs {
		if org.Kind != kind {
			continue
		}
		if match == nil || org.ID < match.ID {
			o := org
			match = &o
		}
	}
	if match == nil {
		return nil, repository.ErrNotFound
	}
	return match, nil
}

func (r orgRepo) ListChildren(_ context.Context, parentID string) ([]domain.Organization, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailOrgLookup != nil {
		return nil, r.s.FailOrgLookup
	}
	var out []domain.Organization
	for _, org := range r.s.orgs {
		if org.ParentID != nil && *org.ParentID == parentID {
			out = append(out, org)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r orgRepo) Upsert(_ context.Context, org *domain.Organization) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.orgs[org.ID] = *org
	return nil
}

type settingRepo struct{ s *Store }

func (r settingRepo) Get(_ context.Context, orgID string) (*domain.EscalationSetting, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	setting, ok := r.s.settings[orgID]
	if !ok {
		return &domain.EscalationSetting{OrgID: orgID}, nil
	}
	return &setting, nil
}

func (r settingRepo) Upsert(_ context.Context, setting *domain.EscalationSetting) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.settings[setting.OrgID] = *setting
	return nil
}

type cityRepo struct{ s *Store }

func (r cityRepo) GetByID(_ context.Context, id string) (*domain.City, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	city, ok := r.s.cities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &city, nil
}

func (r cityRepo) Upsert(_ context.Context, city *domain.City) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.cities[city.ID] = *city
	return nil
}

type agentRepo struct{ s *Store }

func (r agentRepo) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	agent, ok := r.s.agents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &agent, nil
}

func (r agentRepo) ListActiveByOrg(_ context.Context, orgID string) ([]domain.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Agent
	for _, agent := range r.s.agents {
		if agent.OrgID == orgID && agent.Active {
			out = append(out, agent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r agentRepo) Upsert(_ context.Context, agent *domain.Agent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.agents[agent.ID] = *agent
	return nil
}

type auditRepo struct{ s *Store }

func (r auditRepo) Append(_ context.Context, entry *domain.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailAuditAppend != nil {
		return r.s.FailAuditAppend
	}
	r.s.audit = append(r.s.audit, *entry)
	return nil
}

func (r auditRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.AuditEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.AuditEntry
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		if r.s.audit[i].TicketID == ticketID {
			out = append(out, r.s.audit[i])
		}
	}
	return out, nil
}

type alertRepo struct{ s *Store }

func (r alertRepo) Create(_ context.Context, alert *domain.Alert) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailAlertCreate != nil {
		if err := r.s.FailAlertCreate(*alert); err != nil {
			return err
		}
	}
	if _, exists := r.s.alerts[alert.ID]; exists {
		return nil
	}
	r.s.alerts[alert.ID] = *alert
	return nil
}

func (r alertRepo) GetByID(_ context.Context, id string) (*domain.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	alert, ok := r.s.alerts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &alert, nil
}

func (r alertRepo) ListForRecipient(_ context.Context, email string, limit int) ([]domain.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Alert
	for _, alert := range r.s.alerts {
		if strings.EqualFold(alert.RecipientEmail, email) {
			out = append(out, alert)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Read != out[j].Read {
			return !out[i].Read
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, limit, 0), nil
}

func (r alertRepo) SetRead(_ context.Context, id string, read bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	alert, ok := r.s.alerts[id]
	if !ok {
		return repository.ErrNotFound
	}
	alert.Read = read
	r.s.alerts[id] = alert
	return nil
}

func (r alertRepo) MarkAllRead(_ context.Context, email string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, alert := range r.s.alerts {
		if strings.EqualFold(alert.RecipientEmail, email) && !alert.Read {
			alert.Read = true
			r.s.alerts[id] = alert
			n++
		}
	}
	return n, nil
}

type systemRepo struct{ s *Store }

func (r systemRepo) GetSystem(_ context.Context) (*domain.SystemSettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailSettingsRead != nil {
		return nil, r.s.FailSettingsRead
	}
	if r.s.system == nil {
		return nil, repository.ErrNotFound
	}
	out := *r.s.system
	return &out, nil
}

func (r systemRepo) SaveSystem(_ context.Context, settings domain.SystemSettings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.system = &settings
	return nil
}

func (r systemRepo) EnsureDefaults(_ context.Context) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.system == nil {
		defaults := domain.DefaultSystemSettings()
		r.s.system = &defaults
	}
	return nil
}

type outboxRepo struct{ s *Store }

func (r outboxRepo) Claim(_ context.Context, now time.Time, lease time.Duration, limit int) ([]domain.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	staleBefore := now.Add(-lease)
	var out []domain.OutboxEvent
	for i := range r.s.outbox {
		if limit > 0 && len(out) >= limit {
			break
		}
		row := &r.s.outbox[i]
		expired := row.Status == domain.OutboxProcessing && (row.ClaimedAt == nil || row.ClaimedAt.Before(staleBefore))
		if row.Status != domain.OutboxPending && !expired {
			continue
		}
		claimed := now
		row.Status = domain.OutboxProcessing
		row.Attempts++
		row.ClaimedAt = &claimed
		out = append(out, *row)
	}
	return out, nil
}

func (r outboxRepo) MarkDone(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.outbox {
		if r.s.outbox[i].ID == id {
			processed := at
			r.s.outbox[i].Status = domain.OutboxDone
			r.s.outbox[i].ProcessedAt = &processed
			r.s.outbox[i].LastError = nil
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r outboxRepo) MarkFailed(_ context.Context, id string, cause string, maxAttempts int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.outbox {
		if r.s.outbox[i].ID == id {
			msg := cause
			r.s.outbox[i].LastError = &msg
			if r.s.outbox[i].Attempts >= maxAttempts {
				r.s.outbox[i].Status = domain.OutboxFailed
			} else {
				r.s.outbox[i].Status = domain.OutboxPending
			}
			return nil
		}
	}
	return repository.ErrNotFound
}
