package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/osintops/dragnet/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSearchFailureRate AlertType = "search_failure_rate"
	AlertSourcesDegraded   AlertType = "sources_degraded"
	AlertBreakersOpen      AlertType = "breakers_open"
)

// minAttemptSample is the number of source attempts a window needs before the
// failure-rate alert can fire.
const minAttemptSample = 10

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a StatusSnapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitorConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitor config.
func NewAlerter(cfg config.MonitorConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *StatusSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Failure rate across source attempts, subject to a minimum sample.
	if snap.SourceAttempts >= minAttemptSample && snap.FailureRate > a.cfg.FailureRateThreshold {
		failed := snap.SourceAttempts - snap.SourceSuccesses
		alerts = append(alerts, Alert{
			Type:     AlertSearchFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Source failure rate %.1f%% exceeds threshold %.1f%% (%d of %d attempts failed in last %dh)",
				snap.FailureRate*100, a.cfg.FailureRateThreshold*100,
				failed, snap.SourceAttempts, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailureRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"attempts":     snap.SourceAttempts,
				"successes":    snap.SourceSuccesses,
			},
			Timestamp: now,
		})
	}

	// Sources stuck in consecutive failure.
	if a.cfg.DegradedSourcesMin > 0 && snap.SourcesDegraded >= a.cfg.DegradedSourcesMin {
		alerts = append(alerts, Alert{
			Type:     AlertSourcesDegraded,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d of %d tracked source(s) failing consecutively",
				snap.SourcesDegraded, snap.SourcesTracked,
			),
			Details: map[string]any{
				"degraded": snap.SourcesDegraded,
				"tracked":  snap.SourcesTracked,
			},
			Timestamp: now,
		})
	}

	// Open host breakers. These self-heal after cooldown.
	if len(snap.OpenBreakers) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertBreakersOpen,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d host breaker(s) open: %s",
				len(snap.OpenBreakers), strings.Join(snap.OpenBreakers, ", "),
			),
			Details: map[string]any{
				"hosts": snap.OpenBreakers,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
