package cache

import (
	"context"
	"testing"
	"time"

	"github.com/herlein/rfwatch/pkg/anomaly"
	"github.com/herlein/rfwatch/pkg/signal"
)

func TestNewWithoutAddrDisables(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if c != nil {
		t.Fatalf("New() = %v, want nil cache", c)
	}
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	if err := c.PushMetrics(ctx, signal.Metrics{}); err != nil {
		t.Errorf("PushMetrics() on nil = %v, want nil", err)
	}
	if err := c.PushAnomaly(ctx, anomaly.Anomaly{}, signal.Metrics{}); err != nil {
		t.Errorf("PushAnomaly() on nil = %v, want nil", err)
	}
	if recs, err := c.RecentMetrics(ctx, 10); err != nil || recs != nil {
		t.Errorf("RecentMetrics() on nil = %v, %v, want nil, nil", recs, err)
	}
	if recs, err := c.RecentAnomalies(ctx, 10); err != nil || recs != nil {
		t.Errorf("RecentAnomalies() on nil = %v, %v, want nil, nil", recs, err)
	}
	if err := c.Ping(ctx); err != nil {
		t.Errorf("Ping() on nil = %v, want nil", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil = %v, want nil", err)
	}
}

func TestNewAnomalyEntry(t *testing.T) {
	ts := time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)
	a := anomaly.Anomaly{
		Kind:       anomaly.KindFrequencyShift,
		Confidence: 0.9,
		Details:    map[string]float64{"shift_db": 12.5},
	}
	m := signal.Metrics{Frequency: 915.0, Timestamp: ts}

	e := newAnomalyEntry(a, m)
	if e.Kind != "frequency_shift" {
		t.Errorf("Kind = %q, want frequency_shift", e.Kind)
	}
	if e.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", e.Confidence)
	}
	if e.Frequency != 915.0 {
		t.Errorf("Frequency = %v, want 915.0", e.Frequency)
	}
	if !e.Time.Equal(ts) {
		t.Errorf("Time = %v, want %v", e.Time, ts)
	}
	if e.Details["shift_db"] != 12.5 {
		t.Errorf("Details = %v, want shift_db 12.5", e.Details)
	}
}
