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

	"github.com/sells-group/invoice-recon/internal/config"
	"github.com/sells-group/invoice-recon/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFlagRate      AlertType = "flag_rate"
	AlertLowConfidence AlertType = "low_confidence"
	AlertNotFound      AlertType = "invoices_not_found"
)

// minReconciled is the number of reconciled runs needed before rate alerts
// fire.
const minReconciled = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	guard  *resilience.Guard
}

// NewAlerter creates a new Alerter with the given monitoring config. guard
// may be nil, in which case each webhook is attempted once.
func NewAlerter(cfg config.MonitoringConfig, guard *resilience.Guard) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		guard:  guard,
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.Reconciled >= minReconciled && a.cfg.FlagRateThreshold > 0 && snap.FlagRate > a.cfg.FlagRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFlagRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Invoice flag rate %.1f%% exceeds threshold %.1f%% (%d flagged / %d reconciled in last %dh)",
				snap.FlagRate*100, a.cfg.FlagRateThreshold*100,
				snap.Flagged, snap.Reconciled, snap.LookbackHours,
			),
			Details: map[string]any{
				"flag_rate":  snap.FlagRate,
				"threshold":  a.cfg.FlagRateThreshold,
				"flagged":    snap.Flagged,
				"reconciled": snap.Reconciled,
			},
			Timestamp: now,
		})
	}

	scored := snap.Reconciled - snap.NotFound
	if scored >= minReconciled && a.cfg.MinConfidence > 0 && snap.AvgConfidence < a.cfg.MinConfidence {
		alerts = append(alerts, Alert{
			Type:     AlertLowConfidence,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Average verifier confidence %.2f below %.2f over %d runs in last %dh",
				snap.AvgConfidence, a.cfg.MinConfidence, scored, snap.LookbackHours,
			),
			Details: map[string]any{
				"avg_confidence": snap.AvgConfidence,
				"min_confidence": a.cfg.MinConfidence,
				"scored":         scored,
			},
			Timestamp: now,
		})
	}

	if snap.NotFound > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertNotFound,
			Severity: "low",
			Message: fmt.Sprintf(
				"%d invoice lookup(s) found no local data in last %dh",
				snap.NotFound, snap.LookbackHours,
			),
			Details: map[string]any{
				"not_found":  snap.NotFound,
				"runs_total": snap.RunsTotal,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL and returns the
// number delivered. A failed delivery is logged and does not stop the rest.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		err := a.deliver(ctx, alert)
		if err != nil {
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

func (a *Alerter) deliver(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}
	if a.guard == nil {
		return a.post(ctx, payload)
	}
	_, err = resilience.Call(ctx, a.guard, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.post(ctx, payload)
	})
	return err
}

// post sends one payload. 408, 429 and 5xx responses are transient.
func (a *Alerter) post(ctx context.Context, payload []byte) error {
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
		err := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
