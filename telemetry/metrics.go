package telemetry

import (
	"context"
	"sort"
	"sync"

	"github.com/vinovest/chain"
)

// DefaultBuckets are the default histogram upper bounds in seconds.
var DefaultBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}

// Metrics counts executions per operation and outcome and keeps a duration
// histogram.
type Metrics struct {
	mu       sync.RWMutex
	buckets  []float64
	counts   map[string]map[chain.EventKind]int64
	rows     map[string]int64
	duration map[string][]int64 // per operation, one count per bucket plus overflow
}

// NewMetrics creates an empty Metrics with the given bucket bounds, or
// DefaultBuckets when none are given.
func NewMetrics(buckets []float64) *Metrics {
	if len(buckets) == 0 {
		buckets = DefaultBuckets
	}
	b := append([]float64(nil), buckets...)
	sort.Float64s(b)
	return &Metrics{
		buckets:  b,
		counts:   make(map[string]map[chain.EventKind]int64),
		rows:     make(map[string]int64),
		duration: make(map[string][]int64),
	}
}

// HandleExecutionEvent records ev.
func (m *Metrics) HandleExecutionEvent(_ context.Context, ev chain.ExecutionEvent) {
	op := ""
	if ev.Token != nil {
		op = ev.Token.Operation()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byKind := m.counts[op]
	if byKind == nil {
		byKind = make(map[chain.EventKind]int64)
		m.counts[op] = byKind
	}
	byKind[ev.Kind]++

	switch ev.Kind {
	case chain.EventFinished, chain.EventError, chain.EventCanceled:
	default:
		return
	}
	if ev.RowsAffected != nil {
		m.rows[op] += *ev.RowsAffected
	}
	hist := m.duration[op]
	if hist == nil {
		hist = make([]int64, len(m.buckets)+1)
		m.duration[op] = hist
	}
	secs := ev.Duration().Seconds()
	i := sort.SearchFloat64s(m.buckets, secs)
	hist[i]++
}

// Count returns how many events of kind were seen for operation.
func (m *Metrics) Count(operation string, kind chain.EventKind) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[operation][kind]
}

// RowsAffected returns the total rows affected reported for operation.
func (m *Metrics) RowsAffected(operation string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rows[operation]
}

// Histogram returns the duration bucket counts for operation; the last entry
// counts durations above the largest bound.
func (m *Metrics) Histogram(operation string) []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int64(nil), m.duration[operation]...)
}

// Operations returns the operations seen so far, sorted.
func (m *Metrics) Operations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ops := make([]string, 0, len(m.counts))
	for op := range m.counts {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Reset clears all recorded data.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = make(map[string]map[chain.EventKind]int64)
	m.rows = make(map[string]int64)
	m.duration = make(map[string][]int64)
}

var _ chain.Listener = (*Metrics)(nil)
