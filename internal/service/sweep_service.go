package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/observability"
	"github.com/spec-kit/coopdesk/internal/repository"
)

// SweepTimeout bounds one sweep no matter who triggered it.
const SweepTimeout = 10 * time.Minute

const (
	defaultSweepBatchSize = 500
	sweepLockKey          = "coopdesk:sweep:lock"
	sweepLockTTL          = 10 * time.Minute
)

// ErrSweepInProgress is returned when another sweep holds the lock.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Locker grants a short exclusive lease on a key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// SweepSummary reports the outcome of one sweep pass.
type SweepSummary struct {
	Scanned    int       `json:"scanned"`
	Escalated  int       `json:"escalated"`
	Cascaded   int       `json:"cascaded"`
	Orphaned   int       `json:"orphaned"`
	Failed     int       `json:"failed"`
	Pages      int       `json:"pages"`
	// Truncated is set when the context ended before the backlog was drained.
	Truncated  bool      `json:"truncated"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// SweepService escalates tickets whose deadline has lapsed.
type SweepService struct {
	tickets    repository.TicketRepository
	escalation *EscalationService
	locker     Locker
	metrics    *observability.Metrics
	logger     *zap.Logger
	batchSize  int

	Now func() time.Time
}

// SweepDependencies bundles collaborators for the sweep.
type SweepDependencies struct {
	TicketRepo repository.TicketRepository
	Escalation *EscalationService
	Locker     Locker
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	BatchSize  int
}

// NewSweepService constructs the service. A nil Locker uses a process-local lock.
func NewSweepService(deps SweepDependencies) *SweepService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locker := deps.Locker
	if locker == nil {
		locker = NewLocalLocker()
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	return &SweepService{
		tickets:    deps.TicketRepo,
		escalation: deps.Escalation,
		locker:     locker,
		metrics:    deps.Metrics,
		logger:     logger,
		batchSize:  batch,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Run performs one sweep. Per-ticket failures are logged and counted; only a
// failure to list candidates or to take the lock aborts the pass.
func (s *SweepService) Run(ctx context.Context) (SweepSummary, error) {
	release, ok, err := s.locker.TryLock(ctx, sweepLockKey, sweepLockTTL)
	if err != nil {
		return SweepSummary{}, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		return SweepSummary{}, ErrSweepInProgress
	}
	defer release()

	summary := SweepSummary{StartedAt: s.Now()}
	s.metrics.Inc(observability.CounterSweepRuns)

	// Pages are keyed on (due_at, id) so tickets that stay due, such as
	// orphans, cannot hide the rest of the backlog.
	var cursor *repository.DueCursor
	for ctx.Err() == nil {
		due, err := s.tickets.ListDueForEscalation(ctx, summary.StartedAt, cursor, s.batchSize)
		if err != nil {
			return summary, fmt.Errorf("list due tickets: %w", err)
		}
		summary.Pages++
		for _, ticket := range due {
			if ctx.Err() != nil {
				break
			}
			summary.Scanned++
			s.sweepTicket(ctx, ticket, summary.StartedAt, &summary)
		}
		if len(due) < s.batchSize {
			break
		}
		last := due[len(due)-1]
		cursor = &repository.DueCursor{DueAt: *last.DueAt, ID: last.ID}
	}
	if ctx.Err() != nil {
		summary.Truncated = true
	}

	summary.FinishedAt = s.Now()
	s.logger.Info("escalation sweep finished",
		zap.Int("scanned", summary.Scanned),
		zap.Int("escalated", summary.Escalated),
		zap.Int("cascaded", summary.Cascaded),
		zap.Int("orphaned", summary.Orphaned),
		zap.Int("failed", summary.Failed),
		zap.Int("pages", summary.Pages),
		zap.Bool("truncated", summary.Truncated),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)))
	return summary, nil
}

func (s *SweepService) sweepTicket(ctx context.Context, ticket domain.Ticket, now time.Time, summary *SweepSummary) {
	if ticket.DueAt == nil || ticket.DueAt.After(now) {
		return
	}
	escalated, err := s.escalation.Escalate(ctx, ticket, domain.SystemPrincipal, reasonDeadlineExceeded, TriggerSweep)
	if err != nil {
		summary.Failed++
		s.metrics.Inc(observability.CounterSweepFailures)
		s.logger.Error("sweep escalation failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	if escalated == nil {
		summary.Orphaned++
		s.metrics.Inc(observability.CounterOrphanedTickets)
		s.logger.Warn("ticket due but no escalation target",
			zap.String("ticket_id", ticket.ID),
			zap.String("level", string(ticket.Level)),
			zap.String("requesting_org_id", ticket.RequestingOrgID),
			zap.String("responsible_org_id", ticket.ResponsibleOrgID),
			zap.Time("due_at", *ticket.DueAt))
		return
	}
	summary.Escalated++

	final, err := s.escalation.Cascade(ctx, *escalated, domain.SystemPrincipal)
	if err != nil {
		summary.Failed++
		s.metrics.Inc(observability.CounterSweepFailures)
		s.logger.Error("sweep cascade failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	if final.Level != escalated.Level || final.ResponsibleOrgID != escalated.ResponsibleOrgID {
		summary.Cascaded++
	}
}

// localLocker serializes sweeps inside one process.
type localLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalLocker returns a Locker that only excludes callers in the same process.
func NewLocalLocker() Locker {
	return &localLocker{held: make(map[string]bool)}
}

func (l *localLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, true, nil
}
