package hooks

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// ── In-memory metrics collector ───────────────────────────────────────────────

// InMemoryMetrics accumulates metrics atomically; safe for concurrent use.
type InMemoryMetrics struct {
	mu sync.RWMutex

	fetchDurationsMs map[string]int64 // cumulative ms per scheme
	fetchCalls       map[string]int64
	cacheHits        map[string]int64
	coalesced        map[string]int64
	errors           map[string]int64 // keyed "scope/category"

	stepDurationsMs map[string]int64
	stepCalls       map[string]int64

	totalThroughputB int64
}

// NewInMemoryMetrics creates an empty metrics store.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		fetchDurationsMs: make(map[string]int64),
		fetchCalls:       make(map[string]int64),
		cacheHits:        make(map[string]int64),
		coalesced:        make(map[string]int64),
		errors:           make(map[string]int64),
		stepDurationsMs:  make(map[string]int64),
		stepCalls:        make(map[string]int64),
	}
}

func (m *InMemoryMetrics) RecordFetchTime(scheme string, d time.Duration) {
	m.mu.Lock()
	m.fetchDurationsMs[scheme] += d.Milliseconds()
	m.fetchCalls[scheme]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordCacheHit(scheme string) {
	m.mu.Lock()
	m.cacheHits[scheme]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordCoalesced(scheme string) {
	m.mu.Lock()
	m.coalesced[scheme]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordError(scope, category string) {
	m.mu.Lock()
	m.errors[scope+"/"+category]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordStepTime(step string, d time.Duration) {
	m.mu.Lock()
	m.stepDurationsMs[step] += d.Milliseconds()
	m.stepCalls[step]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordThroughput(bytes int64) {
	atomic.AddInt64(&m.totalThroughputB, bytes)
}

// Snapshot returns a copy of current metrics.
func (m *InMemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MetricsSnapshot{
		FetchDurationsMs: maps.Clone(m.fetchDurationsMs),
		FetchCalls:       maps.Clone(m.fetchCalls),
		CacheHits:        maps.Clone(m.cacheHits),
		Coalesced:        maps.Clone(m.coalesced),
		Errors:           maps.Clone(m.errors),
		StepDurationsMs:  maps.Clone(m.stepDurationsMs),
		StepCalls:        maps.Clone(m.stepCalls),
		TotalThroughputB: atomic.LoadInt64(&m.totalThroughputB),
	}
}

// MetricsSnapshot is an immutable point-in-time copy of metrics.
type MetricsSnapshot struct {
	FetchDurationsMs map[string]int64
	FetchCalls       map[string]int64
	CacheHits        map[string]int64
	Coalesced        map[string]int64
	Errors           map[string]int64
	StepDurationsMs  map[string]int64
	StepCalls        map[string]int64
	TotalThroughputB int64
}
