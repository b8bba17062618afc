package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for request handling and
// case lifecycle activity.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	engineCount  map[string]int64
}

// Engine counter names.
const (
	CounterInboundProcessed     = "inbound_processed"
	CounterCasesCreated         = "cases_created"
	CounterEscalations          = "escalations"
	CounterClosures             = "closures"
	CounterNotificationFailures = "notification_failures"
	CounterTickCasesSkipped     = "tick_cases_skipped"
)

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		engineCount:  make(map[string]int64),
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

// IncEngine increments a named engine counter.
func (m *Metrics) IncEngine(counter string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engineCount[counter]++
}

// EngineCount returns the current value of a named engine counter.
func (m *Metrics) EngineCount(counter string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engineCount[counter]
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
