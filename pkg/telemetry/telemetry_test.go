package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersOnInjectedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ScansTotal.Inc()
	m.ScansTotal.Inc()
	m.ScanErrors.WithLabelValues("tuning").Inc()
	m.AnomaliesDetected.WithLabelValues("ghost_echo").Inc()
	m.LastRSSI.WithLabelValues(FrequencyLabel(433.92)).Set(-72.5)

	if got := testutil.ToFloat64(m.ScansTotal); got != 2 {
		t.Errorf("ScansTotal = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ScanErrors.WithLabelValues("tuning")); got != 1 {
		t.Errorf("ScanErrors[tuning] = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LastRSSI.WithLabelValues("433.920")); got != -72.5 {
		t.Errorf("LastRSSI[433.920] = %v, want -72.5", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("Gather() returned no metric families")
	}
}

func TestTwoRegistriesDoNotCollide(t *testing.T) {
	a := New(prometheus.NewRegistry())
	b := New(prometheus.NewRegistry())

	a.ScansTotal.Inc()
	if got := testutil.ToFloat64(b.ScansTotal); got != 0 {
		t.Errorf("second registry ScansTotal = %v, want 0", got)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ScansTotal.Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler(reg).ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "rfwatch_scans_total 1") {
		t.Errorf("body missing rfwatch_scans_total 1:\n%s", body)
	}
}

func TestFrequencyLabel(t *testing.T) {
	cases := []struct {
		mhz  float64
		want string
	}{
		{433.92, "433.920"},
		{315.0, "315.000"},
		{868.3, "868.300"},
	}
	for _, tc := range cases {
		if got := FrequencyLabel(tc.mhz); got != tc.want {
			t.Errorf("FrequencyLabel(%v) = %q, want %q", tc.mhz, got, tc.want)
		}
	}
}
