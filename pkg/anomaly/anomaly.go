// Package anomaly scores metrics records against a bounded detection
// history. Five detectors run in a fixed order over each record; a detector
// failure is isolated and never aborts the scan that produced the record.
package anomaly

import (
	"fmt"

	"github.com/herlein/rfwatch/pkg/logging"
	"github.com/herlein/rfwatch/pkg/signal"
)

// Kind identifies a detector.
type Kind string

const (
	KindGhostEcho      Kind = "ghost_echo"
	KindVoidPulse      Kind = "void_pulse"
	KindStaticBurst    Kind = "static_burst"
	KindFrequencyShift Kind = "frequency_shift"
	KindSignalPattern  Kind = "signal_pattern"
)

// HistoryCapacity bounds the detection history.
const HistoryCapacity = 100

// Anomaly is one detector firing for one metrics record.
type Anomaly struct {
	Kind       Kind               `json:"kind"`
	Confidence float64            `json:"confidence"`
	Details    map[string]float64 `json:"details,omitempty"`
}

// Thresholds is the detection policy. Values are fixed for the lifetime of
// an Engine; a new policy means a new Engine.
type Thresholds struct {
	RSSIHigh          float64 // dBm, GhostEcho floor
	RSSILow           float64 // dBm, VoidPulse ceiling
	EntropyThreshold  float64 // 0..1
	DurationThreshold float64 // seconds, StaticBurst floor
	PatternThreshold  float64 // 0..1, SignalPattern floor
}

// DefaultThresholds returns the standard detection policy.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RSSIHigh:          -50,
		RSSILow:           -90,
		EntropyThreshold:  0.8,
		DurationThreshold: 2.0,
		PatternThreshold:  0.7,
	}
}

type detector struct {
	kind Kind
	fn   func(signal.Metrics) (*Anomaly, error)
}

// Engine runs the detectors over a private detection history. An Engine is
// owned by a single goroutine; DetectAnomalies is the only mutator.
type Engine struct {
	thresholds Thresholds
	log        logging.Logger
	history    []signal.Metrics
	detectors  []detector
	failures   uint64

	onFailure func(Kind, error)
}

// New returns an Engine with the given policy.
func New(th Thresholds, log logging.Logger) *Engine {
	if log == nil {
		log = logging.Noop()
	}
	e := &Engine{
		thresholds: th,
		log:        log,
		history:    make([]signal.Metrics, 0, HistoryCapacity),
	}
	e.detectors = []detector{
		{KindGhostEcho, e.detectGhostEcho},
		{KindVoidPulse, e.detectVoidPulse},
		{KindStaticBurst, e.detectStaticBurst},
		{KindFrequencyShift, e.detectFrequencyShift},
		{KindSignalPattern, e.detectSignalPattern},
	}
	return e
}

// SetFailureHook installs a callback invoked whenever a detector fails.
// Set it before the first DetectAnomalies call.
func (e *Engine) SetFailureHook(fn func(Kind, error)) {
	e.onFailure = fn
}

// DetectAnomalies appends m to the history, evicting the oldest record past
// capacity, and runs every detector against it. Detectors see m as the
// newest history entry.
func (e *Engine) DetectAnomalies(m signal.Metrics) []Anomaly {
	e.history = append(e.history, m)
	if len(e.history) > HistoryCapacity {
		n := copy(e.history, e.history[1:])
		e.history = e.history[:n]
	}

	var out []Anomaly
	for _, d := range e.detectors {
		if a := e.runDetector(d.kind, m, d.fn); a != nil {
			out = append(out, *a)
		}
	}
	return out
}

// History returns a copy of the detection history, oldest first.
func (e *Engine) History() []signal.Metrics {
	out := make([]signal.Metrics, len(e.history))
	copy(out, e.history)
	return out
}

// DetectorFailures returns the number of isolated detector failures.
func (e *Engine) DetectorFailures() uint64 {
	return e.failures
}

// runDetector isolates one detector invocation: a returned error or a panic
// is logged, counted and reported to the failure hook, never propagated.
func (e *Engine) runDetector(kind Kind, m signal.Metrics, fn func(signal.Metrics) (*Anomaly, error)) *Anomaly {
	a, err := func() (a *Anomaly, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("detector panic: %v", r)
			}
		}()
		return fn(m)
	}()
	if err != nil {
		e.failures++
		e.log.Warn("detector failed",
			logging.String("kind", string(kind)),
			logging.Err(err))
		if e.onFailure != nil {
			e.onFailure(kind, err)
		}
		return nil
	}
	return a
}
