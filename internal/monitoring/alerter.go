// Package monitoring surfaces operational problems: exhausted aggregation
// windows, quality-issue spikes, and stalled collection.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertAggregationExhausted AlertType = "aggregation_exhausted"
	AlertQualitySpike         AlertType = "quality_spike"
	AlertCollectorStall       AlertType = "collector_stall"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter sends alerts via webhook and evaluates metric snapshots against
// configured thresholds.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// AggregationExhausted builds the alert raised when a period's attempt
// budget runs out and the window goes terminal.
func AggregationExhausted(parkID int64, periodType string, periodStart time.Time, attempts int, cause string) Alert {
	return Alert{
		Type:     AlertAggregationExhausted,
		Severity: "high",
		Message: fmt.Sprintf(
			"Aggregation for park %d %s window %s failed after %d attempts; retention for this window is blocked",
			parkID, periodType, periodStart.Format(time.RFC3339), attempts,
		),
		Details: map[string]any{
			"park_id":      parkID,
			"period_type":  periodType,
			"period_start": periodStart.Format(time.RFC3339),
			"attempts":     attempts,
			"error":        cause,
		},
		Timestamp: time.Now().UTC(),
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if a.cfg.QualityIssueThreshold > 0 && snap.QualityIssues > a.cfg.QualityIssueThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertQualitySpike,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d unresolved data quality issues in last %dh exceeds threshold %d",
				snap.QualityIssues, snap.LookbackHours, a.cfg.QualityIssueThreshold,
			),
			Details: map[string]any{
				"issues":    snap.QualityIssues,
				"threshold": a.cfg.QualityIssueThreshold,
				"by_kind":   snap.QualityByKind,
			},
			Timestamp: now,
		})
	}

	if snap.StaleParks > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertCollectorStall,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d of %d active parks have no snapshot in last %dh",
				snap.StaleParks, snap.ActiveParks, snap.LookbackHours,
			),
			Details: map[string]any{
				"stale_parks":  snap.StaleParks,
				"active_parks": snap.ActiveParks,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// Send delivers alerts to the configured webhook URL. Returns the number of
// alerts successfully sent.
func (a *Alerter) Send(ctx context.Context, alerts ...Alert) int {
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
