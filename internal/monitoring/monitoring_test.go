package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinLaRosa/yorimichi-workers/internal/config"
	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
)

func TestCollect(t *testing.T) {
	stats := model.Stats{Processed: 50, Success: 30, SkippedNotQualified: 10, SkippedDuplicate: 5, Failed: 5}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	snap := Collect("crawl", 150, stats, 1.25, 10*time.Minute, now)

	assert.Equal(t, 15, snap.Skipped)
	assert.InDelta(t, 0.1, snap.FailRate, 1e-9)
	assert.InDelta(t, 5.0, snap.RatePerMin, 1e-9)
	assert.Equal(t, 20*time.Minute, snap.ETA)
	assert.Equal(t, 1.25, snap.CostUSD)
}

func TestCollect_Empty(t *testing.T) {
	snap := Collect("crawl", 10, model.Stats{}, 0, 0, time.Now())
	assert.Zero(t, snap.FailRate)
	assert.Zero(t, snap.RatePerMin)
	assert.Zero(t, snap.ETA)
}

func TestAlerter_Evaluate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.5, MinProcessed: 10, CostThresholdUSD: 2})

	t.Run("below min processed", func(t *testing.T) {
		alerts := a.Evaluate(Snapshot{Pass: "crawl", Processed: 5, Failed: 5, FailRate: 1})
		assert.Empty(t, alerts)
	})

	t.Run("failure rate", func(t *testing.T) {
		alerts := a.Evaluate(Snapshot{Pass: "crawl", Processed: 20, Failed: 15, FailRate: 0.75})
		require.Len(t, alerts, 1)
		assert.Equal(t, AlertFailureRate, alerts[0].Type)
		assert.Contains(t, alerts[0].Message, "75.0%")
		assert.Equal(t, "crawl", alerts[0].Pass)
		assert.Equal(t, 0.75, alerts[0].Value)
		assert.Equal(t, 0.5, alerts[0].Threshold)
		assert.Equal(t, 20, alerts[0].Processed)
	})

	t.Run("cost overrun", func(t *testing.T) {
		alerts := a.Evaluate(Snapshot{Pass: "enrich", Processed: 3, CostUSD: 2.5})
		require.Len(t, alerts, 1)
		assert.Equal(t, AlertCostOverrun, alerts[0].Type)
		assert.Contains(t, alerts[0].Message, "$2.50")
	})

	t.Run("both", func(t *testing.T) {
		alerts := a.Evaluate(Snapshot{Pass: "crawl", Processed: 20, FailRate: 0.9, CostUSD: 3})
		require.Len(t, alerts, 2)
		assert.Equal(t, AlertFailureRate, alerts[0].Type)
		assert.Equal(t, AlertCostOverrun, alerts[1].Type)
	})

	t.Run("disabled thresholds", func(t *testing.T) {
		off := NewAlerter(config.MonitoringConfig{})
		assert.Empty(t, off.Evaluate(Snapshot{Processed: 100, FailRate: 1, CostUSD: 1000}))
	})
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var got []Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var a Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&a))
		got = append(got, a)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertFailureRate, Pass: "crawl", Message: "bad"},
		{Type: AlertCostOverrun, Pass: "crawl", Message: "pricey"},
	})

	assert.Equal(t, 2, sent)
	require.Len(t, got, 2)
	assert.Equal(t, AlertCostOverrun, got[1].Type)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate}}))
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate}}))
}

func TestReporter_Observe(t *testing.T) {
	r := NewReporter("crawl", 100, WithIntervals(25, 100))

	assert.False(t, r.Observe(context.Background(), model.Stats{Processed: 0}))
	assert.False(t, r.Observe(context.Background(), model.Stats{Processed: 24}))
	assert.True(t, r.Observe(context.Background(), model.Stats{Processed: 25}))
	assert.True(t, r.Observe(context.Background(), model.Stats{Processed: 100}))
}

func TestReporter_AlertsFireOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	alerter := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.5,
		MinProcessed:         2,
		WebhookURL:           srv.URL,
	})
	r := NewReporter("crawl", 10, WithIntervals(2, 10), WithAlerter(alerter))

	r.Observe(context.Background(), model.Stats{Processed: 2, Failed: 2})
	r.Observe(context.Background(), model.Stats{Processed: 4, Failed: 4})
	r.Observe(context.Background(), model.Stats{Processed: 6, Failed: 6})

	assert.Equal(t, int32(1), hits.Load())
}

func TestReporter_Final(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewReporter("geocode", 4, WithCost(func() float64 { return 0.02 }))
	r.now = func() time.Time { return clock.Add(2 * time.Minute) }
	r.start = clock

	snap := r.Final(model.Stats{Processed: 4, Success: 3, Failed: 1}, false)

	assert.Equal(t, 2*time.Minute, snap.Elapsed)
	assert.Equal(t, 0.02, snap.CostUSD)
	assert.InDelta(t, 2.0, snap.RatePerMin, 1e-9)
}
