package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/coopdesk/internal/domain"
)

// TicketFilter captures listing parameters. An empty OrgIDs with All unset
// restricts results to tickets created by CreatedBy.
type TicketFilter struct {
	All       bool
	OrgIDs    []string
	CreatedBy string
	Statuses  []domain.TicketStatus
	Levels    []domain.TicketLevel
	Limit     int
	Offset    int
}

// EscalationChange describes one level transition.
type EscalationChange struct {
	TicketID         string
	FromLevel        domain.TicketLevel
	ToLevel          domain.TicketLevel
	ResponsibleOrgID string
	DueAt            time.Time
	ModifiedAt       time.Time
}

// TicketVersion is the row state an Update expects to replace.
type TicketVersion struct {
	Level          domain.TicketLevel
	LastModifiedAt time.Time
}

// VersionOf captures the optimistic-concurrency token of a loaded ticket.
func VersionOf(t domain.Ticket) TicketVersion {
	return TicketVersion{Level: t.Level, LastModifiedAt: t.LastModifiedAt}
}

// DueCursor is the keyset position after the last ticket of a due page.
type DueCursor struct {
	DueAt time.Time
	ID    string
}

// TicketCounts aggregates the tickets matched by a filter. DueSoon counts
// in-progress tickets whose deadline falls inside the requested window;
// CompletedOnTime counts completions at or before the deadline.
type TicketCounts struct {
	Total           int
	InProgress      int
	DueSoon         int
	Completed       int
	CompletedOnTime int
}

// TicketRepository encapsulates ticket persistence. Mutations take an optional
// outbox event that is committed atomically with the ticket row.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket, event *domain.OutboxEvent) error
	// Update writes ticket only if the stored row still matches expected. It
	// returns ErrConflict when another writer got there first.
	Update(ctx context.Context, ticket *domain.Ticket, expected TicketVersion, event *domain.OutboxEvent) error
	// ApplyEscalation moves the ticket to ToLevel only if it is still at FromLevel.
	// It reports false when the precondition no longer holds.
	ApplyEscalation(ctx context.Context, change EscalationChange, event *domain.OutboxEvent) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// ListDueForEscalation pages overdue open tickets ordered by (due_at, id),
	// starting strictly after the cursor when one is given.
	ListDueForEscalation(ctx context.Context, now time.Time, after *DueCursor, limit int) ([]domain.Ticket, error)
	ListOpenByResponsibleOrg(ctx context.Context, orgID string) ([]domain.Ticket, error)
	// Count aggregates the tickets visible under filter. Statuses, Levels and
	// paging fields are ignored.
	Count(ctx context.Context, filter TicketFilter, from, to time.Time) (TicketCounts, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, title, requesting_org_id, responsible_org_id, city_id, specialties, quantity, notes,
               priority, level, status, assigned_agent_id, assigned_agent_name, created_by,
               due_at, created_at, last_modified_at, completed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket, event *domain.OutboxEvent) error {
	const query = `
        INSERT INTO tickets (id, title, requesting_org_id, responsible_org_id, city_id, specialties, quantity, notes,
            priority, level, status, assigned_agent_id, assigned_agent_name, created_by, due_at, created_at,
            last_modified_at, completed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query,
			ticket.ID,
			ticket.Title,
			ticket.RequestingOrgID,
			ticket.ResponsibleOrgID,
			ticket.CityID,
			specialtiesOrEmpty(ticket.Specialties),
			ticket.Quantity,
			ticket.Notes,
			ticket.Priority,
			ticket.Level,
			ticket.Status,
			ticket.AssignedAgentID,
			ticket.AssignedAgentName,
			ticket.CreatedBy,
			ticket.DueAt,
			ticket.CreatedAt,
			ticket.LastModifiedAt,
			ticket.CompletedAt,
		); err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		return enqueueOutbox(ctx, tx, event)
	})
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, expected TicketVersion, event *domain.OutboxEvent) error {
	const query = `
        UPDATE tickets SET title=$1, responsible_org_id=$2, city_id=$3, specialties=$4, quantity=$5, notes=$6,
            priority=$7, status=$8, assigned_agent_id=$9, assigned_agent_name=$10, due_at=$11,
            last_modified_at=$12, completed_at=$13
        WHERE id=$14 AND level=$15 AND last_modified_at=$16`
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, query,
			ticket.Title,
			ticket.ResponsibleOrgID,
			ticket.CityID,
			specialtiesOrEmpty(ticket.Specialties),
			ticket.Quantity,
			ticket.Notes,
			ticket.Priority,
			ticket.Status,
			ticket.AssignedAgentID,
			ticket.AssignedAgentName,
			ticket.DueAt,
			ticket.LastModifiedAt,
			ticket.CompletedAt,
			ticket.ID,
			expected.Level,
			expected.LastModifiedAt,
		)
		if err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
				return fmt.Errorf("check ticket: %w", err)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConflict
		}
		return enqueueOutbox(ctx, tx, event)
	})
}

func (r *ticketRepository) ApplyEscalation(ctx context.Context, change EscalationChange, event *domain.OutboxEvent) (bool, error) {
	const query = `
        UPDATE tickets SET level=$1, responsible_org_id=$2, due_at=$3, last_modified_at=$4,
            assigned_agent_id=NULL, assigned_agent_name=NULL
        WHERE id=$5 AND level=$6`
	applied := false
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, query,
			change.ToLevel,
			change.ResponsibleOrgID,
			change.DueAt,
			change.ModifiedAt,
			change.TicketID,
			change.FromLevel,
		)
		if err != nil {
			return fmt.Errorf("escalate ticket: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return nil
		}
		applied = true
		return enqueueOutbox(ctx, tx, event)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses, args := visibilityClauses(filter)
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Levels) > 0 {
		placeholders := make([]string, len(filter.Levels))
		for i, level := range filter.Levels {
			args = append(args, level)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("level IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Count(ctx context.Context, filter TicketFilter, from, to time.Time) (TicketCounts, error) {
	clauses, args := visibilityClauses(filter)
	args = append(args, from, to)
	fromArg, toArg := len(args)-1, len(args)
	query := fmt.Sprintf(`
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status='in_progress'),
               COUNT(*) FILTER (WHERE status='in_progress' AND due_at >= $%d AND due_at <= $%d),
               COUNT(*) FILTER (WHERE status='completed'),
               COUNT(*) FILTER (WHERE status='completed' AND completed_at IS NOT NULL AND due_at IS NOT NULL AND completed_at <= due_at)
        FROM tickets WHERE %s`, fromArg, toArg, strings.Join(clauses, " AND "))

	var counts TicketCounts
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&counts.Total,
		&counts.InProgress,
		&counts.DueSoon,
		&counts.Completed,
		&counts.CompletedOnTime,
	); err != nil {
		return TicketCounts{}, fmt.Errorf("count tickets: %w", err)
	}
	return counts, nil
}

// visibilityClauses starts a WHERE list restricted to what filter may see.
func visibilityClauses(filter TicketFilter) ([]string, []any) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.All {
		return clauses, args
	}
	args = append(args, filter.CreatedBy)
	visibility := fmt.Sprintf("lower(created_by)=lower($%d)", len(args))
	if len(filter.OrgIDs) > 0 {
		args = append(args, filter.OrgIDs)
		placeholder := fmt.Sprintf("$%d", len(args))
		visibility = fmt.Sprintf("(requesting_org_id = ANY(%s) OR responsible_org_id = ANY(%s) OR %s)", placeholder, placeholder, visibility)
	}
	return append(clauses, visibility), args
}

func (r *ticketRepository) ListDueForEscalation(ctx context.Context, now time.Time, after *DueCursor, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 500
	}
	args := []any{now, limit}
	keyset := ""
	if after != nil {
		keyset = ` AND (due_at, id) > ($3, $4)`
		args = append(args, after.DueAt, after.ID)
	}
	query := `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE status IN ('new','in_progress') AND level <> 'confederation'
          AND due_at IS NOT NULL AND due_at <= $1` + keyset + `
        ORDER BY due_at ASC, id ASC
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListOpenByResponsibleOrg(ctx context.Context, orgID string) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE responsible_org_id=$1 AND status NOT IN ('completed','cancelled')
        ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.RequestingOrgID,
		&ticket.ResponsibleOrgID,
		&ticket.CityID,
		&ticket.Specialties,
		&ticket.Quantity,
		&ticket.Notes,
		&ticket.Priority,
		&ticket.Level,
		&ticket.Status,
		&ticket.AssignedAgentID,
		&ticket.AssignedAgentName,
		&ticket.CreatedBy,
		&ticket.DueAt,
		&ticket.CreatedAt,
		&ticket.LastModifiedAt,
		&ticket.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func specialtiesOrEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
