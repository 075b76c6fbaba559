package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/coopdesk/internal/service"
)

type countingSweeper struct {
	runs atomic.Int32
	err  error
}

func (c *countingSweeper) Run(context.Context) (service.SweepSummary, error) {
	c.runs.Add(1)
	return service.SweepSummary{Escalated: 1}, c.err
}

func TestNewSweepSchedulerRejectsBadSchedule(t *testing.T) {
	_, err := NewSweepScheduler("every now and then", time.UTC, &countingSweeper{}, nil)
	require.Error(t, err)
}

func TestSweepSchedulerComputesNextRunInZone(t *testing.T) {
	zone := time.FixedZone("UTC-3", -3*60*60)
	s, err := NewSweepScheduler("0 2 * * *", zone, &countingSweeper{}, nil)
	require.NoError(t, err)

	s.Start()
	defer s.Stop(context.Background())

	next := s.Next().In(zone)
	assert.Equal(t, 2, next.Hour())
	assert.Equal(t, 0, next.Minute())
}

func TestRunSweepToleratesLockContention(t *testing.T) {
	sweeper := &countingSweeper{err: service.ErrSweepInProgress}
	s, err := NewSweepScheduler("@hourly", nil, sweeper, nil)
	require.NoError(t, err)

	s.runSweep()
	s.runSweep()
	assert.Equal(t, int32(2), sweeper.runs.Load())
}
