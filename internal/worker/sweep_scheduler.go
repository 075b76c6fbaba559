package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/coopdesk/internal/service"
)

// Sweeper runs one escalation pass.
type Sweeper interface {
	Run(ctx context.Context) (service.SweepSummary, error)
}

// SweepScheduler triggers escalation sweeps on a cron schedule.
type SweepScheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	logger  *zap.Logger
	timeout time.Duration
	entry   cron.EntryID
}

// NewSweepScheduler parses schedule (standard five-field cron or a descriptor such as @hourly)
// and evaluates it in loc.
func NewSweepScheduler(schedule string, loc *time.Location, sweeper Sweeper, logger *zap.Logger) (*SweepScheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	cronLogger := zapCronLogger{logger.Sugar()}
	s := &SweepScheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		sweeper: sweeper,
		logger:  logger,
		timeout: service.SweepTimeout,
	}
	id, err := s.cron.AddFunc(schedule, s.runSweep)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.entry = id
	return s, nil
}

// Start begins firing in the background.
func (s *SweepScheduler) Start() {
	s.cron.Start()
	s.logger.Info("escalation sweep scheduled", zap.Time("next_run", s.Next()))
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to expire.
func (s *SweepScheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Next reports when the sweep fires next. It is zero before Start.
func (s *SweepScheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

func (s *SweepScheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	summary, err := s.sweeper.Run(ctx)
	switch {
	case errors.Is(err, service.ErrSweepInProgress):
		s.logger.Info("escalation sweep skipped; another sweep holds the lock")
	case err != nil:
		s.logger.Error("scheduled escalation sweep failed", zap.Error(err))
	default:
		s.logger.Debug("scheduled escalation sweep done",
			zap.Int("escalated", summary.Escalated), zap.Int("orphaned", summary.Orphaned))
	}
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	s *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
