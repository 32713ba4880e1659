package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/herlein/rfwatch/pkg/anomaly"
	"github.com/herlein/rfwatch/pkg/signal"
)

func testAnomaly(kind anomaly.Kind) anomaly.Anomaly {
	return anomaly.Anomaly{
		Kind:       kind,
		Confidence: 0.85,
		Details:    map[string]float64{"rssi": -45.5},
	}
}

func testMetrics() signal.Metrics {
	return signal.Metrics{
		RSSI:      -45.5,
		Frequency: 433.92,
		Timestamp: time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC),
	}
}

func TestNotifyPostsPayload(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL}, nil)
	delivered, err := n.Notify(context.Background(), testAnomaly(anomaly.KindGhostEcho), testMetrics())
	if err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if !delivered {
		t.Fatal("Notify() delivered = false, want true")
	}

	if got.Message != "Ghost echo at 433.920 MHz (confidence 0.85)" {
		t.Errorf("message = %q", got.Message)
	}
	if got.Kind != "ghost_echo" {
		t.Errorf("kind = %q, want ghost_echo", got.Kind)
	}
	if got.Confidence != 0.85 {
		t.Errorf("confidence = %v, want 0.85", got.Confidence)
	}
	if got.Frequency != 433.92 {
		t.Errorf("frequency = %v, want 433.92", got.Frequency)
	}
	if got.Details["rssi"] != -45.5 {
		t.Errorf("details = %v, want rssi -45.5", got.Details)
	}
	if got.Time.IsZero() {
		t.Error("time is zero")
	}
}

func TestCooldownSuppressesSameKind(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL, Cooldown: time.Hour}, nil)
	ctx := context.Background()

	delivered, err := n.Notify(ctx, testAnomaly(anomaly.KindGhostEcho), testMetrics())
	if err != nil || !delivered {
		t.Fatalf("first Notify() = %v, %v, want true, nil", delivered, err)
	}
	delivered, err = n.Notify(ctx, testAnomaly(anomaly.KindGhostEcho), testMetrics())
	if err != nil {
		t.Fatalf("second Notify() error: %v", err)
	}
	if delivered {
		t.Error("second Notify() delivered = true, want suppressed")
	}

	// A different kind has its own cooldown slot.
	delivered, err = n.Notify(ctx, testAnomaly(anomaly.KindVoidPulse), testMetrics())
	if err != nil || !delivered {
		t.Fatalf("other-kind Notify() = %v, %v, want true, nil", delivered, err)
	}

	if got := hits.Load(); got != 2 {
		t.Errorf("webhook hits = %d, want 2", got)
	}
	if got := n.Suppressed(); got != 1 {
		t.Errorf("Suppressed() = %d, want 1", got)
	}
}

func TestCooldownExpires(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL, Cooldown: 30 * time.Millisecond}, nil)
	ctx := context.Background()

	if _, err := n.Notify(ctx, testAnomaly(anomaly.KindStaticBurst), testMetrics()); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	delivered, err := n.Notify(ctx, testAnomaly(anomaly.KindStaticBurst), testMetrics())
	if err != nil {
		t.Fatalf("Notify() after cooldown error: %v", err)
	}
	if !delivered {
		t.Error("Notify() after cooldown delivered = false, want true")
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("webhook hits = %d, want 2", got)
	}
}

func TestZeroCooldownDeliversAll(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL}, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		delivered, err := n.Notify(ctx, testAnomaly(anomaly.KindGhostEcho), testMetrics())
		if err != nil || !delivered {
			t.Fatalf("Notify(%d) = %v, %v, want true, nil", i, delivered, err)
		}
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("webhook hits = %d, want 3", got)
	}
}

func TestServerErrorReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL}, nil)
	delivered, err := n.Notify(context.Background(), testAnomaly(anomaly.KindGhostEcho), testMetrics())
	if delivered {
		t.Error("delivered = true, want false")
	}
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error = %v, want status 500", err)
	}
}

func TestUnreachableWebhook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	n := New(Config{WebhookURL: url, Timeout: time.Second}, nil)
	delivered, err := n.Notify(context.Background(), testAnomaly(anomaly.KindGhostEcho), testMetrics())
	if delivered {
		t.Error("delivered = true, want false")
	}
	if err == nil {
		t.Fatal("Notify() succeeded, want connection error")
	}
}
