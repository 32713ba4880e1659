// Package telemetry defines the Prometheus instrumentation for the watch
// loop and the handler that serves it.
package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the watch loop updates. All collectors
// register on the Registerer passed to New, so tests can use a private
// registry.
type Metrics struct {
	ScansTotal        prometheus.Counter
	ScanErrors        *prometheus.CounterVec
	AnomaliesDetected *prometheus.CounterVec
	DetectorFailures  prometheus.Counter
	ScanDuration      prometheus.Histogram
	LastRSSI          *prometheus.GaugeVec
	Calibrations      prometheus.Counter
	AlertsDelivered   prometheus.Counter
	AlertsSuppressed  prometheus.Counter
}

// New registers the rfwatch collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ScansTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "rfwatch_scans_total",
			Help: "Total number of frequency scans attempted",
		}),
		ScanErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rfwatch_scan_errors_total",
			Help: "Total number of failed scans by reason",
		}, []string{"reason"}),
		AnomaliesDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rfwatch_anomalies_detected_total",
			Help: "Total number of anomalies detected by kind",
		}, []string{"kind"}),
		DetectorFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "rfwatch_detector_failures_total",
			Help: "Total number of detector runs that errored or panicked",
		}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rfwatch_scan_duration_seconds",
			Help:    "Time spent per frequency scan in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		LastRSSI: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rfwatch_last_rssi_dbm",
			Help: "RSSI of the most recent scan per frequency",
		}, []string{"frequency_mhz"}),
		Calibrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "rfwatch_calibrations_total",
			Help: "Total number of frequency synthesizer calibrations",
		}),
		AlertsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "rfwatch_alerts_delivered_total",
			Help: "Total number of webhook alerts delivered",
		}),
		AlertsSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "rfwatch_alerts_suppressed_total",
			Help: "Total number of webhook alerts suppressed by the cooldown",
		}),
	}
}

// FrequencyLabel formats a frequency for use as a label value. A fixed
// format keeps 433.92 and 433.920 from becoming two series.
func FrequencyLabel(mhz float64) string {
	return strconv.FormatFloat(mhz, 'f', 3, 64)
}

// Handler serves g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
