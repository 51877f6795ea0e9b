package reliability

import (
	"sync"
	"time"

	"github.com/osintops/dragnet/internal/model"
)

// latencyAlpha is the smoothing factor of the latency moving average. Each
// success contributes 20% of its observed latency; the first sample seeds the
// average directly.
const latencyAlpha = 0.2

// Tracker serializes reliability updates per source id. Concurrent searches
// hitting the same source contend only on that source's lock, never on a
// global one.
type Tracker struct {
	mu      sync.RWMutex
	locks   map[string]*sync.Mutex
	metrics map[string]*model.ReliabilityMetrics
}

// New builds a Tracker over the given sources. Sources recorded later that
// were not present at construction register on first attempt.
func New(sources []*model.Source) *Tracker {
	t := &Tracker{
		locks:   make(map[string]*sync.Mutex, len(sources)),
		metrics: make(map[string]*model.ReliabilityMetrics, len(sources)),
	}
	for _, s := range sources {
		if s.Reliability == nil {
			s.Reliability = &model.ReliabilityMetrics{}
		}
		t.locks[s.ID] = &sync.Mutex{}
		t.metrics[s.ID] = s.Reliability
	}
	return t
}

// register returns the lock and metrics for a source, creating both on first
// sight. The metrics instance is adopted from the source so the registry and
// tracker share one instance per source for the process lifetime.
func (t *Tracker) register(src *model.Source) (*sync.Mutex, *model.ReliabilityMetrics) {
	t.mu.RLock()
	mu, ok := t.locks[src.ID]
	m := t.metrics[src.ID]
	t.mu.RUnlock()
	if ok {
		return mu, m
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if mu, ok := t.locks[src.ID]; ok {
		return mu, t.metrics[src.ID]
	}
	if src.Reliability == nil {
		src.Reliability = &model.ReliabilityMetrics{}
	}
	mu = &sync.Mutex{}
	t.locks[src.ID] = mu
	t.metrics[src.ID] = src.Reliability
	return mu, src.Reliability
}

// RecordSuccess folds one successful fetch into the source's metrics.
func (t *Tracker) RecordSuccess(src *model.Source, latency time.Duration) {
	mu, m := t.register(src)
	mu.Lock()
	defer mu.Unlock()

	secs := latency.Seconds()
	if m.AvgLatencySeconds == 0 {
		m.AvgLatencySeconds = secs
	} else {
		m.AvgLatencySeconds = latencyAlpha*secs + (1-latencyAlpha)*m.AvgLatencySeconds
	}
	m.SuccessCount++
	m.ConsecutiveFailures = 0
	m.RecomputeRate()
}

// RecordFailure folds one failed fetch into the source's metrics.
func (t *Tracker) RecordFailure(src *model.Source) {
	mu, m := t.register(src)
	mu.Lock()
	defer mu.Unlock()

	m.FailureCount++
	m.ConsecutiveFailures++
	m.RecomputeRate()
}

// Get returns a copy of the metrics for a source id.
func (t *Tracker) Get(id string) (model.ReliabilityMetrics, bool) {
	t.mu.RLock()
	mu, ok := t.locks[id]
	m := t.metrics[id]
	t.mu.RUnlock()
	if !ok {
		return model.ReliabilityMetrics{}, false
	}
	mu.Lock()
	defer mu.Unlock()
	return *m, true
}

// Snapshot copies every tracked source's metrics, keyed by source id.
func (t *Tracker) Snapshot() map[string]model.ReliabilityMetrics {
	t.mu.RLock()
	ids := make([]string, 0, len(t.metrics))
	for id := range t.metrics {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	out := make(map[string]model.ReliabilityMetrics, len(ids))
	for _, id := range ids {
		if m, ok := t.Get(id); ok {
			out[id] = m
		}
	}
	return out
}

// Restore overwrites metrics for the ids present in the snapshot. This is an
// operator action, the only path that ever resets counters mid-lifetime.
func (t *Tracker) Restore(snapshot map[string]model.ReliabilityMetrics) {
	for id, saved := range snapshot {
		t.mu.RLock()
		mu, ok := t.locks[id]
		m := t.metrics[id]
		t.mu.RUnlock()
		if !ok {
			continue
		}
		mu.Lock()
		m.SuccessCount = saved.SuccessCount
		m.FailureCount = saved.FailureCount
		m.ConsecutiveFailures = saved.ConsecutiveFailures
		m.AvgLatencySeconds = saved.AvgLatencySeconds
		m.RecomputeRate()
		mu.Unlock()
	}
}

// Reset zeroes the metrics of one source id. Operator action.
func (t *Tracker) Reset(id string) bool {
	t.mu.RLock()
	mu, ok := t.locks[id]
	m := t.metrics[id]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	mu.Lock()
	defer mu.Unlock()
	*m = model.ReliabilityMetrics{}
	return true
}
