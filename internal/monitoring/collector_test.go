package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osintops/dragnet/internal/model"
	"github.com/osintops/dragnet/internal/reliability"
	"github.com/osintops/dragnet/internal/resilience"
	"github.com/osintops/dragnet/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "monitor.db"), time.Hour)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() {
		st.Close() //nolint:errcheck
	})
	return st
}

func seedResponse(t *testing.T, st store.Store, id string, createdAt time.Time, queried, succeeded, results int, latency float64) {
	t.Helper()
	require.NoError(t, st.SaveResponse(context.Background(), &model.SearchResponse{
		ID:                  id,
		Query:               "acme holdings",
		InputType:           model.InputCompanyName,
		Jurisdiction:        "HU",
		SourcesQueried:      queried,
		SourcesSucceeded:    succeeded,
		TotalResults:        results,
		TotalLatencySeconds: latency,
		CreatedAt:           createdAt,
	}))
}

// fakeBreakers implements BreakerReporter for testing.
type fakeBreakers struct {
	states map[string]resilience.BreakerState
}

func (f *fakeBreakers) BreakerStates() map[string]resilience.BreakerState {
	return f.states
}

func TestCollector_EmptyStore(t *testing.T) {
	st := newTestStore(t)
	c := NewCollector(st, nil, nil)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.SearchTotal)
	assert.Equal(t, 0, snap.SourceAttempts)
	assert.Equal(t, 0.0, snap.FailureRate)
	assert.Equal(t, 0, snap.ResponsesStored)
	assert.Equal(t, 0, snap.EntitiesStored)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_WindowMetrics(t *testing.T) {
	now := time.Now().UTC()
	st := newTestStore(t)

	seedResponse(t, st, "r1", now.Add(-1*time.Hour), 3, 3, 5, 2.0)
	seedResponse(t, st, "r2", now.Add(-2*time.Hour), 4, 2, 3, 4.0)
	seedResponse(t, st, "r3", now.Add(-3*time.Hour), 2, 0, 0, 6.0)
	// Outside lookback window; counts toward stored totals only.
	seedResponse(t, st, "r4", now.Add(-48*time.Hour), 5, 0, 0, 1.0)

	c := NewCollector(st, nil, nil)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.SearchTotal)
	assert.Equal(t, 1, snap.SearchPartial)
	assert.Equal(t, 1, snap.SearchDegraded)
	assert.Equal(t, 8, snap.ResultTotal)
	assert.Equal(t, 9, snap.SourceAttempts)
	assert.Equal(t, 5, snap.SourceSuccesses)
	assert.InDelta(t, 4.0/9.0, snap.FailureRate, 0.001)
	assert.InDelta(t, 4.0, snap.AvgLatencySeconds, 0.001)
	assert.Equal(t, 4, snap.ResponsesStored)
}

func TestCollector_ReliabilityAndBreakers(t *testing.T) {
	st := newTestStore(t)

	healthy := &model.Source{ID: "hu_cegjegyzek", Jurisdiction: "HU", InputType: model.InputCompanyName}
	failing := &model.Source{ID: "de_handelsregister", Jurisdiction: "DE", InputType: model.InputCompanyName}
	tracker := reliability.New([]*model.Source{healthy, failing})
	tracker.RecordSuccess(healthy, 200*time.Millisecond)
	for i := 0; i < degradedAfter; i++ {
		tracker.RecordFailure(failing)
	}

	breakers := &fakeBreakers{states: map[string]resilience.BreakerState{
		"www.handelsregister.de": resilience.BreakerOpen,
		"www.e-cegjegyzek.hu":    resilience.BreakerClosed,
	}}

	c := NewCollector(st, tracker, breakers)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.SourcesTracked)
	assert.Equal(t, 1, snap.SourcesDegraded)
	assert.Equal(t, []string{"www.handelsregister.de"}, snap.OpenBreakers)
}

func TestCollector_EntityCount(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()

	_, err := st.UpsertEntities(context.Background(), []model.Entity{
		{IdentityKey: "acme kft|01-09-123456", Jurisdiction: "HU", Name: "Acme Kft.", ResultCount: 2, FirstSeen: now, LastSeen: now},
		{IdentityKey: "acme gmbh|hrb 1234", Jurisdiction: "DE", Name: "Acme GmbH", ResultCount: 1, FirstSeen: now, LastSeen: now},
	})
	require.NoError(t, err)

	c := NewCollector(st, nil, nil)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.EntitiesStored)
}
