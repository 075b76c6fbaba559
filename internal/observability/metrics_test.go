package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotCopiesCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/tickets", "GET", 200, time.Millisecond)
	m.RecordEscalation("sweep")
	m.RecordEscalation("sweep")
	m.Inc(CounterOrphanedTickets)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.Requests["/tickets|GET|200"])
	assert.Equal(t, int64(2), snap.Escalations["sweep"])
	assert.Equal(t, int64(1), snap.Counters[CounterOrphanedTickets])

	snap.Escalations["sweep"] = 99
	assert.Equal(t, int64(2), m.Snapshot().Escalations["sweep"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordEscalation("manual")
	m.Inc(CounterSweepRuns)
	assert.Empty(t, m.Snapshot().Counters)
}
