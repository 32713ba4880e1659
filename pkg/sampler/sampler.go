// Package sampler reduces a receive window on one frequency to a metrics
// record: averaged RSSI and link quality plus the derived entropy, pattern
// and quality scores the detection engine consumes.
package sampler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/herlein/rfwatch/pkg/codec"
	"github.com/herlein/rfwatch/pkg/driver"
	"github.com/herlein/rfwatch/pkg/logging"
	"github.com/herlein/rfwatch/pkg/signal"
)

// Sampling defaults.
const (
	DefaultWindow         = time.Second
	DefaultSampleInterval = 10 * time.Millisecond
	DefaultSettleDelay    = 100 * time.Millisecond
)

// Signal quality weights.
const (
	rssiWeight = 0.7
	lqiWeight  = 0.3
)

// Config holds the sampling window parameters.
type Config struct {
	WindowDuration time.Duration // wall-clock length of one scan
	SampleInterval time.Duration // cadence between RSSI/LQI reads
	SettleDelay    time.Duration // PLL settle time after entering RX
}

func (c Config) withDefaults() Config {
	if c.WindowDuration == 0 {
		c.WindowDuration = DefaultWindow
	}
	if c.SampleInterval == 0 {
		c.SampleInterval = DefaultSampleInterval
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	return c
}

// Sampler runs receive windows on a driver and scores the results.
type Sampler struct {
	drv *driver.Driver
	cfg Config
	log logging.Logger

	mu        sync.Mutex
	templates map[string][]float64
}

// New returns a Sampler over drv.
func New(drv *driver.Driver, cfg Config, log logging.Logger) *Sampler {
	if log == nil {
		log = logging.Noop()
	}
	return &Sampler{
		drv:       drv,
		cfg:       cfg.withDefaults(),
		log:       log,
		templates: make(map[string][]float64),
	}
}

// RegisterTemplate adds a named waveform template for cross-correlation
// scoring. The pattern is copied.
func (s *Sampler) RegisterTemplate(name string, pattern []float64) {
	tpl := make([]float64, len(pattern))
	copy(tpl, pattern)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[name] = tpl
}

// ScanFrequency tunes to freqMHz, collects RSSI and LQI samples for the
// configured window and reduces them to a metrics record. The radio is
// recalibrated first when due and left idle afterwards. Cancelling ctx
// discards the partial scan.
func (s *Sampler) ScanFrequency(ctx context.Context, freqMHz float64) (signal.Metrics, error) {
	if s.drv.NeedsCalibration() {
		if err := s.drv.Calibrate(); err != nil {
			return signal.Metrics{}, fmt.Errorf("failed to recalibrate: %w", err)
		}
	}

	if err := s.drv.SetFrequency(freqMHz); err != nil {
		return signal.Metrics{}, fmt.Errorf("%w: %w", ErrTuning, err)
	}

	if err := s.drv.SetPowerMode(driver.PowerActive); err != nil {
		return signal.Metrics{}, fmt.Errorf("failed to enter receive mode: %w", err)
	}

	// Let the PLL settle before the first read.
	select {
	case <-ctx.Done():
		s.idle()
		return signal.Metrics{}, ctx.Err()
	case <-time.After(s.cfg.SettleDelay):
	}

	start := time.Now()
	rssis := make([]float64, 0, int(s.cfg.WindowDuration/s.cfg.SampleInterval)+1)
	lqiSum := 0
	crcOKCount := 0

	window := time.NewTimer(s.cfg.WindowDuration)
	defer window.Stop()
	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			s.idle()
			return signal.Metrics{}, ctx.Err()
		case <-window.C:
			break loop
		case <-ticker.C:
			rssi, err := s.drv.ReadRSSI()
			if err != nil {
				s.idle()
				return signal.Metrics{}, err
			}
			quality, crcOK, err := s.drv.ReadLQI()
			if err != nil {
				s.idle()
				return signal.Metrics{}, err
			}
			rssis = append(rssis, rssi)
			lqiSum += int(quality)
			if crcOK {
				crcOKCount++
			}
		}
	}
	elapsed := time.Since(start)

	if err := s.drv.SetPowerMode(driver.PowerIdle); err != nil {
		s.log.Warn("failed to idle radio after scan", logging.Err(err))
	}

	n := len(rssis)
	if n == 0 {
		return signal.Metrics{}, ErrNoSamples
	}

	meanRSSI := stat.Mean(rssis, nil)
	meanLQI := int(math.Round(float64(lqiSum) / float64(n)))

	m := signal.Metrics{
		RSSI:          meanRSSI,
		LQI:           meanLQI,
		CRCOK:         crcOKCount > n/2,
		Timestamp:     time.Now(),
		Frequency:     freqMHz,
		Duration:      elapsed.Seconds(),
		Entropy:       shannonEntropy(rssis),
		PatternMatch:  s.patternScore(rssis),
		SignalQuality: signalQuality(meanRSSI, meanLQI),
	}
	s.log.Debug("scan complete",
		logging.Float64("frequency_mhz", freqMHz),
		logging.Int("samples", n),
		logging.Float64("rssi_dbm", meanRSSI),
		logging.Float64("entropy", m.Entropy))
	return m, nil
}

// idle parks the radio after an aborted scan. Best effort.
func (s *Sampler) idle() {
	if err := s.drv.SetPowerMode(driver.PowerIdle); err != nil {
		s.log.Warn("failed to idle radio after aborted scan", logging.Err(err))
	}
}

func signalQuality(rssi float64, lqi int) float64 {
	q := rssiWeight*codec.Normalize(rssi, -120, 0) + lqiWeight*float64(lqi)/255.0
	if q > 1 {
		q = 1
	}
	if q < 0 {
		q = 0
	}
	return q
}
