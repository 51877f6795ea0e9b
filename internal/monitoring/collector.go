package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/osintops/dragnet/internal/model"
	"github.com/osintops/dragnet/internal/resilience"
	"github.com/osintops/dragnet/internal/store"
)

// degradedAfter is how many consecutive failures mark a source as degraded.
// Matches the point where the fetch path starts skipping the source.
const degradedAfter = 3

// windowScanLimit caps how many responses one collection reads.
const windowScanLimit = 10000

// StatusSnapshot holds a point-in-time view of engine health.
type StatusSnapshot struct {
	// Search activity within the lookback window.
	SearchTotal       int     `json:"search_total"`
	SearchPartial     int     `json:"search_partial"`
	SearchDegraded    int     `json:"search_degraded"`
	ResultTotal       int     `json:"result_total"`
	SourceAttempts    int     `json:"source_attempts"`
	SourceSuccesses   int     `json:"source_successes"`
	FailureRate       float64 `json:"failure_rate"`
	AvgLatencySeconds float64 `json:"avg_latency_seconds"`

	// Source reliability over the process lifetime.
	SourcesTracked  int      `json:"sources_tracked"`
	SourcesDegraded int      `json:"sources_degraded"`
	OpenBreakers    []string `json:"open_breakers,omitempty"`

	// Stored totals.
	ResponsesStored int `json:"responses_stored"`
	EntitiesStored  int `json:"entities_stored"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// ReliabilityReader abstracts the tracker methods needed by the collector.
type ReliabilityReader interface {
	Snapshot() map[string]model.ReliabilityMetrics
}

// BreakerReporter abstracts the fetcher's per-host breaker view.
type BreakerReporter interface {
	BreakerStates() map[string]resilience.BreakerState
}

// Collector gathers health metrics from the store, the reliability tracker,
// and the fetch-path breakers. Tracker and breakers may be nil; the store
// never is.
type Collector struct {
	store    store.Store
	tracker  ReliabilityReader
	breakers BreakerReporter
}

// NewCollector creates a new status collector.
func NewCollector(st store.Store, tracker ReliabilityReader, breakers BreakerReporter) *Collector {
	return &Collector{store: st, tracker: tracker, breakers: breakers}
}

// Collect gathers a snapshot of engine health over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*StatusSnapshot, error) {
	snap := &StatusSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	// Responses within the window, oldest first.
	responses, err := c.store.ListResponsesAfter(ctx, store.Cursor{CreatedAt: cutoff}, windowScanLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list responses")
	}

	var totalLatency float64
	for _, r := range responses {
		snap.SearchTotal++
		snap.ResultTotal += r.TotalResults
		snap.SourceAttempts += r.SourcesQueried
		snap.SourceSuccesses += r.SourcesSucceeded
		totalLatency += r.TotalLatencySeconds

		switch {
		case r.SourcesQueried > 0 && r.SourcesSucceeded == 0:
			snap.SearchDegraded++
		case r.SourcesSucceeded < r.SourcesQueried:
			snap.SearchPartial++
		}
	}

	if snap.SourceAttempts > 0 {
		failed := snap.SourceAttempts - snap.SourceSuccesses
		snap.FailureRate = float64(failed) / float64(snap.SourceAttempts)
	}
	if snap.SearchTotal > 0 {
		snap.AvgLatencySeconds = totalLatency / float64(snap.SearchTotal)
	}

	if c.tracker != nil {
		metrics := c.tracker.Snapshot()
		snap.SourcesTracked = len(metrics)
		for _, m := range metrics {
			if m.ConsecutiveFailures >= degradedAfter {
				snap.SourcesDegraded++
			}
		}
	}

	if c.breakers != nil {
		for host, state := range c.breakers.BreakerStates() {
			if state == resilience.BreakerOpen {
				snap.OpenBreakers = append(snap.OpenBreakers, host)
			}
		}
		sort.Strings(snap.OpenBreakers)
	}

	total, err := c.store.CountResponses(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count responses")
	}
	snap.ResponsesStored = total

	entities, err := c.store.CountEntities(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count entities")
	}
	snap.EntitiesStored = entities

	return snap, nil
}
