package observability

import (
	"sync"
	"time"
)

type requestKey struct {
	route  string
	method string
	status int
}

type errorKey struct {
	route  string
	method string
	code   string
}

type requestStat struct {
	count   int64
	elapsed time.Duration
}

// Metrics keeps coarse in-process request and error tallies for a single
// service instance. Anything richer belongs in an external collector.
type Metrics struct {
	mu       sync.Mutex
	requests map[requestKey]requestStat
	errors   map[errorKey]int64
}

// NewMetrics initializes empty tallies.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: make(map[requestKey]requestStat),
		errors:   make(map[errorKey]int64),
	}
}

// RecordRequest tallies one handled request and its latency.
func (m *Metrics) RecordRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	key := requestKey{route: route, method: method, status: status}
	m.mu.Lock()
	defer m.mu.Unlock()
	stat := m.requests[key]
	stat.count++
	stat.elapsed += elapsed
	m.requests[key] = stat
}

// RecordError tallies one request that resolved to a domain error code.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	key := errorKey{route: route, method: method, code: code}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[key]++
}
