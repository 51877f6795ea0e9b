package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osintops/dragnet/internal/config"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		FailureRateThreshold: 0.10,
		DegradedSourcesMin:   1,
	})

	snap := &StatusSnapshot{
		SearchTotal:     50,
		SourceAttempts:  100,
		SourceSuccesses: 95,
		FailureRate:     0.05,
		SourcesTracked:  10,
		SourcesDegraded: 0,
		LookbackHours:   24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		FailureRateThreshold: 0.10,
		DegradedSourcesMin:   1,
	})

	snap := &StatusSnapshot{
		SourceAttempts:  20,
		SourceSuccesses: 12,
		FailureRate:     0.4, // 8/20 = 40%
		LookbackHours:   24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSearchFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
}

func TestAlerter_Evaluate_SourcesDegraded(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		FailureRateThreshold: 0.10,
		DegradedSourcesMin:   1,
	})

	snap := &StatusSnapshot{
		SourcesTracked:  5,
		SourcesDegraded: 2,
		LookbackHours:   24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSourcesDegraded, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "2 of 5")
}

func TestAlerter_Evaluate_BreakersOpen(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		FailureRateThreshold: 0.10,
		DegradedSourcesMin:   1,
	})

	snap := &StatusSnapshot{
		OpenBreakers:  []string{"www.handelsregister.de", "opencorporates.com"},
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertBreakersOpen, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "www.handelsregister.de")
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		FailureRateThreshold: 0.10,
		DegradedSourcesMin:   1,
	})

	snap := &StatusSnapshot{
		SourceAttempts:  20,
		SourceSuccesses: 10,
		FailureRate:     0.5,
		SourcesTracked:  4,
		SourcesDegraded: 1,
		OpenBreakers:    []string{"www.handelsregister.de"},
		LookbackHours:   24,
	}

	alerts := a.Evaluate(snap)
	assert.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, al := range alerts {
		types[al.Type] = true
	}
	assert.True(t, types[AlertSearchFailureRate])
	assert.True(t, types[AlertSourcesDegraded])
	assert.True(t, types[AlertBreakersOpen])
}

func TestAlerter_Evaluate_MinimumSampleRequired(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		FailureRateThreshold: 0.10,
		DegradedSourcesMin:   1,
	})

	// Only 6 attempts, below the 10-attempt minimum for the rate alert.
	snap := &StatusSnapshot{
		SourceAttempts:  6,
		SourceSuccesses: 2,
		FailureRate:     0.666,
		LookbackHours:   24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_DegradedDisabled(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		DegradedSourcesMin: 0, // disabled
	})

	snap := &StatusSnapshot{
		SourcesTracked:  5,
		SourcesDegraded: 3,
		LookbackHours:   24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitorConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertSearchFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertSourcesDegraded, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		WebhookURL: "",
	})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertSearchFailureRate, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{
		WebhookURL: "http://example.com",
	})

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitorConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertSearchFailureRate, Message: "test"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 0, sent)
}
