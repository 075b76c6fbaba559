package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	escalations  map[string]int64
	counters     map[string]int64
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Requests    map[string]int64 `json:"requests"`
	Errors      map[string]int64 `json:"errors"`
	Escalations map[string]int64 `json:"escalations"`
	Counters    map[string]int64 `json:"counters"`
}

// Counter names shared by the escalation engine and the workers.
const (
	CounterSweepRuns         = "sweep_runs"
	CounterSweepFailures     = "sweep_ticket_failures"
	CounterOrphanedTickets   = "orphaned_tickets"
	CounterCascadeHopLimit   = "cascade_hop_limit"
	CounterOutboxDelivered   = "outbox_delivered"
	CounterOutboxFailed      = "outbox_failed"
	CounterEmailsSent        = "emails_sent"
	CounterEmailsSuppressed  = "emails_suppressed"
	CounterAlertInsertFailed = "alert_insert_failed"
)

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		escalations:  make(map[string]int64),
		counters:     make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordEscalation counts one level transition by trigger.
func (m *Metrics) RecordEscalation(trigger string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations[trigger]++
}

// Inc bumps a named counter.
func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

// Add bumps a named counter by n.
func (m *Metrics) Add(name string, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += n
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Requests:    copyCounts(m.requestCount),
		Errors:      copyCounts(m.errorCount),
		Escalations: copyCounts(m.escalations),
		Counters:    copyCounts(m.counters),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
