// Package watch drives the scan loop: sweep the configured frequencies,
// run detection on each result and fan the outcome out to the sinks.
package watch

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/herlein/rfwatch/pkg/alert"
	"github.com/herlein/rfwatch/pkg/anomaly"
	"github.com/herlein/rfwatch/pkg/cache"
	"github.com/herlein/rfwatch/pkg/driver"
	"github.com/herlein/rfwatch/pkg/journal"
	"github.com/herlein/rfwatch/pkg/logging"
	"github.com/herlein/rfwatch/pkg/publish"
	"github.com/herlein/rfwatch/pkg/sampler"
	"github.com/herlein/rfwatch/pkg/signal"
	"github.com/herlein/rfwatch/pkg/telemetry"
)

const (
	resultBuffer = 16
	cacheTimeout = 3 * time.Second
)

// Scanner measures one frequency. *sampler.Sampler implements it.
type Scanner interface {
	ScanFrequency(ctx context.Context, freqMHz float64) (signal.Metrics, error)
}

// Detector turns one scan result into zero or more anomalies.
// *anomaly.Engine implements it.
type Detector interface {
	DetectAnomalies(m signal.Metrics) []anomaly.Anomaly
}

// Config drives the sweep schedule.
type Config struct {
	Frequencies  []float64
	ScanInterval time.Duration
}

// Sinks collects the consumers of scan results. Every field may be left
// nil.
type Sinks struct {
	Journal   *journal.Journal
	Alerts    *alert.Notifier
	Publisher *publish.Publisher
	Cache     *cache.Cache
	Telemetry *telemetry.Metrics
}

// Watcher owns the scan loop. Each frequency gets its own Detector from
// the factory, so a sweep hopping 433.92 to 915 never reads as a
// frequency shift and no history is shared across frequencies.
type Watcher struct {
	cfg       Config
	scanner   Scanner
	newEngine func() Detector
	sinks     Sinks
	log       logging.Logger

	engines map[float64]Detector // touched only by Run's goroutine
}

// New builds a Watcher. newEngine is called once per frequency, on first
// result. A nil Telemetry sink is replaced with collectors on a private
// registry nobody scrapes, so the loop never branches on it.
func New(cfg Config, scanner Scanner, newEngine func() Detector, sinks Sinks, log logging.Logger) *Watcher {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 5 * time.Second
	}
	if log == nil {
		log = logging.Noop()
	}
	if sinks.Telemetry == nil {
		sinks.Telemetry = telemetry.New(prometheus.NewRegistry())
	}
	return &Watcher{
		cfg:       cfg,
		scanner:   scanner,
		newEngine: newEngine,
		sinks:     sinks,
		log:       log,
		engines:   make(map[float64]Detector),
	}
}

// Run sweeps until ctx is cancelled and returns ctx's error. Scanning
// happens on its own goroutine; detection and sink fan-out run here, so
// every engine history has a single owner.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("watch loop started",
		logging.Int("frequencies", len(w.cfg.Frequencies)),
		logging.Duration("interval", w.cfg.ScanInterval))

	results := make(chan signal.Metrics, resultBuffer)
	go w.scanLoop(ctx, results)

	for m := range results {
		if ctx.Err() != nil {
			continue
		}
		w.dispatch(ctx, m)
	}

	w.log.Info("watch loop stopped")
	return ctx.Err()
}

func (w *Watcher) scanLoop(ctx context.Context, results chan<- signal.Metrics) {
	defer close(results)

	ticker := time.NewTicker(w.cfg.ScanInterval)
	defer ticker.Stop()

	w.sweep(ctx, results)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx, results)
		}
	}
}

// sweep scans every configured frequency once, bailing out between
// frequencies when ctx is cancelled. A failed scan is reported once and
// the sweep moves on; the next cycle retries it.
func (w *Watcher) sweep(ctx context.Context, results chan<- signal.Metrics) {
	for _, freq := range w.cfg.Frequencies {
		if ctx.Err() != nil {
			return
		}

		w.sinks.Telemetry.ScansTotal.Inc()
		start := time.Now()
		m, err := w.scanner.ScanFrequency(ctx, freq)
		w.sinks.Telemetry.ScanDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			// A window cut short by shutdown is not a failure.
			if ctx.Err() != nil {
				return
			}
			w.log.Warn("scan failed",
				logging.Float64("frequency_mhz", freq), logging.Err(err))
			w.sinks.Telemetry.ScanErrors.WithLabelValues(scanErrorReason(err)).Inc()
			continue
		}

		select {
		case results <- m:
		case <-ctx.Done():
			return
		}
	}
}

// dispatch feeds one result through detection and every sink. A failing
// sink is logged and the rest still run.
func (w *Watcher) dispatch(ctx context.Context, m signal.Metrics) {
	w.sinks.Telemetry.LastRSSI.WithLabelValues(telemetry.FrequencyLabel(m.Frequency)).Set(m.RSSI)

	if w.sinks.Journal != nil {
		if err := w.sinks.Journal.Write(journal.KindMetrics, m); err != nil {
			w.log.Warn("journal write failed", logging.Err(err))
		}
	}
	if err := w.sinks.Publisher.PublishMetrics(m); err != nil {
		w.log.Warn("metrics publish failed", logging.Err(err))
	}

	cctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	if err := w.sinks.Cache.PushMetrics(cctx, m); err != nil {
		w.log.Warn("metrics cache push failed", logging.Err(err))
	}
	cancel()

	for _, a := range w.engineFor(m.Frequency).DetectAnomalies(m) {
		w.handleAnomaly(ctx, a, m)
	}
}

func (w *Watcher) engineFor(freq float64) Detector {
	eng, ok := w.engines[freq]
	if !ok {
		eng = w.newEngine()
		w.engines[freq] = eng
	}
	return eng
}

func (w *Watcher) handleAnomaly(ctx context.Context, a anomaly.Anomaly, m signal.Metrics) {
	w.log.Info("anomaly detected",
		logging.String("kind", string(a.Kind)),
		logging.Float64("confidence", a.Confidence),
		logging.Float64("frequency_mhz", m.Frequency))

	w.sinks.Telemetry.AnomaliesDetected.WithLabelValues(string(a.Kind)).Inc()

	if w.sinks.Journal != nil {
		rec := anomalyRecord{
			Kind:       string(a.Kind),
			Confidence: a.Confidence,
			Details:    a.Details,
			Frequency:  m.Frequency,
			RSSI:       m.RSSI,
		}
		if err := w.sinks.Journal.Write(journal.KindAnomaly, rec); err != nil {
			w.log.Warn("journal write failed", logging.Err(err))
		}
	}
	if err := w.sinks.Publisher.PublishAnomaly(a, m); err != nil {
		w.log.Warn("anomaly publish failed", logging.Err(err))
	}

	cctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	if err := w.sinks.Cache.PushAnomaly(cctx, a, m); err != nil {
		w.log.Warn("anomaly cache push failed", logging.Err(err))
	}
	cancel()

	if w.sinks.Alerts == nil {
		return
	}
	delivered, err := w.sinks.Alerts.Notify(ctx, a, m)
	switch {
	case err != nil:
		w.log.Warn("alert delivery failed", logging.Err(err))
	case delivered:
		w.sinks.Telemetry.AlertsDelivered.Inc()
	default:
		w.sinks.Telemetry.AlertsSuppressed.Inc()
	}
}

// anomalyRecord is the journal payload for one anomaly, carrying the scan
// context the Anomaly itself does not.
type anomalyRecord struct {
	Kind       string             `json:"kind"`
	Confidence float64            `json:"confidence"`
	Details    map[string]float64 `json:"details,omitempty"`
	Frequency  float64            `json:"frequency"`
	RSSI       float64            `json:"rssi"`
}

func scanErrorReason(err error) string {
	switch {
	case errors.Is(err, sampler.ErrTuning):
		return "tuning"
	case errors.Is(err, sampler.ErrNoSamples):
		return "no_samples"
	case errors.Is(err, driver.ErrCalibrationTimeout):
		return "calibration"
	case errors.Is(err, driver.ErrBus):
		return "bus"
	default:
		return "other"
	}
}
