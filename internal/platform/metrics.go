package platform

import (
	"errors"
	"sync"
	"time"
)

// Metrics tracks API calls made by a client. A call is one logical request,
// however many transport retries it took.
type Metrics struct {
	mu       sync.Mutex
	requests int64
	errors   int64
	byStatus map[int]int64
	duration time.Duration
}

func NewMetrics() *Metrics {
	return &Metrics{byStatus: map[int]int64{}}
}

// Record counts one call and, for API errors, its status code.
func (m *Metrics) Record(d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	m.duration += d
	if err == nil {
		return
	}
	m.errors++
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		m.byStatus[apiErr.StatusCode]++
	}
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Requests       int64
	Errors         int64
	ErrorsByStatus map[int]int64
	Total          time.Duration
}

// Average is the mean call latency.
func (s MetricsSnapshot) Average() time.Duration {
	if s.Requests == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Requests)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	by := make(map[int]int64, len(m.byStatus))
	for k, v := range m.byStatus {
		by[k] = v
	}
	return MetricsSnapshot{Requests: m.requests, Errors: m.errors, ErrorsByStatus: by, Total: m.duration}
}
