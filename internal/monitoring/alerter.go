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

	"github.com/KevinLaRosa/yorimichi-workers/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate AlertType = "failure_rate"
	AlertCostOverrun AlertType = "cost_overrun"
)

const defaultMinSamples = 20

// Alert is one threshold breach during a pass.
type Alert struct {
	Type      AlertType `json:"type"`
	Pass      string    `json:"pass"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Processed int       `json:"processed"`
	Timestamp time.Time `json:"timestamp"`
}

// rule inspects a snapshot and reports a breach, if any.
type rule func(Snapshot) (Alert, bool)

// Alerter evaluates a Snapshot against configured thresholds and posts
// breaches to a webhook when one is configured.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates an Alerter. A non-positive MinProcessed falls back to 20.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	if cfg.MinProcessed <= 0 {
		cfg.MinProcessed = defaultMinSamples
	}
	return &Alerter{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

// Evaluate returns the alerts snap triggers. Zero thresholds are disabled.
func (a *Alerter) Evaluate(snap Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()
	for _, r := range []rule{a.failureRate, a.costOverrun} {
		alert, ok := r(snap)
		if !ok {
			continue
		}
		alert.Pass = snap.Pass
		alert.Processed = snap.Processed
		alert.Timestamp = now
		alerts = append(alerts, alert)
	}
	return alerts
}

func (a *Alerter) failureRate(snap Snapshot) (Alert, bool) {
	limit := a.cfg.FailureRateThreshold
	if limit <= 0 || snap.Processed < a.cfg.MinProcessed || snap.FailRate <= limit {
		return Alert{}, false
	}
	return Alert{
		Type: AlertFailureRate,
		Message: fmt.Sprintf("%s: %d of %d items failed (%.1f%%, limit %.1f%%)",
			snap.Pass, snap.Failed, snap.Processed, snap.FailRate*100, limit*100),
		Value:     snap.FailRate,
		Threshold: limit,
	}, true
}

func (a *Alerter) costOverrun(snap Snapshot) (Alert, bool) {
	limit := a.cfg.CostThresholdUSD
	if limit <= 0 || snap.CostUSD <= limit {
		return Alert{}, false
	}
	return Alert{
		Type:      AlertCostOverrun,
		Message:   fmt.Sprintf("%s: spent $%.2f, over the $%.2f budget", snap.Pass, snap.CostUSD, limit),
		Value:     snap.CostUSD,
		Threshold: limit,
	}, true
}

// SendAlerts logs every alert and posts it to the webhook, if configured.
// It returns how many were delivered.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	for _, alert := range alerts {
		zap.L().Warn("monitoring: "+alert.Message, zap.String("type", string(alert.Type)))
	}
	if a.cfg.WebhookURL == "" {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.post(ctx, alert); err != nil {
			zap.L().Error("monitoring: alert not delivered", zap.String("type", string(alert.Type)), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: encode alert")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
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
