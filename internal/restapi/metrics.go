package restapi

import "sync/atomic"

// metrics holds the counters the gateway/metrics endpoint snapshots. Incremented by the request-counting
// middleware; read-only everywhere else, so plain atomics are enough (no teacher equivalent: the domain handlers
// have no counters of their own).
type metrics struct {
	requestsTotal atomic.Int64
	errorsTotal   atomic.Int64
}

func (m *metrics) recordRequest() {
	m.requestsTotal.Add(1)
}

func (m *metrics) recordError() {
	m.errorsTotal.Add(1)
}

func (m *metrics) snapshot() map[string]int64 {
	return map[string]int64{
		"requests_total": m.requestsTotal.Load(),
		"errors_total":   m.errorsTotal.Load(),
	}
}
