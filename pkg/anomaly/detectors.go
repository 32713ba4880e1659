package anomaly

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/herlein/rfwatch/pkg/codec"
	"github.com/herlein/rfwatch/pkg/signal"
)

// Confidence scaling parameters.
const (
	rssiScaleMin = -120.0 // dBm, confidence normalization floor
	rssiScaleMax = -30.0  // dBm, confidence normalization ceiling

	burstSaturationSec = 5.0  // StaticBurst confidence saturates here
	shiftMinMHz        = 1.0  // FrequencyShift minimum jump
	shiftSaturationMHz = 10.0 // FrequencyShift confidence saturates here

	patternWindow    = 5    // records compared by SignalPattern
	patternDiffScale = 20.0 // dBm spread mapped onto similarity
)

// detectGhostEcho fires on a strong, high-entropy signal: structured energy
// where the band should carry noise.
func (e *Engine) detectGhostEcho(m signal.Metrics) (*Anomaly, error) {
	if m.RSSI <= e.thresholds.RSSIHigh || m.Entropy <= e.thresholds.EntropyThreshold {
		return nil, nil
	}
	return &Anomaly{
		Kind:       KindGhostEcho,
		Confidence: codec.Normalize(m.RSSI, rssiScaleMin, rssiScaleMax),
		Details: map[string]float64{
			"rssi":    m.RSSI,
			"entropy": m.Entropy,
		},
	}, nil
}

// detectVoidPulse fires on a very weak but high-entropy signal: structure
// below the noise floor.
func (e *Engine) detectVoidPulse(m signal.Metrics) (*Anomaly, error) {
	if m.RSSI >= e.thresholds.RSSILow || m.Entropy <= e.thresholds.EntropyThreshold {
		return nil, nil
	}
	return &Anomaly{
		Kind:       KindVoidPulse,
		Confidence: 1 - codec.Normalize(m.RSSI, rssiScaleMin, rssiScaleMax),
		Details: map[string]float64{
			"rssi":    m.RSSI,
			"entropy": m.Entropy,
		},
	}, nil
}

// detectStaticBurst fires when a high-entropy window ran unusually long.
func (e *Engine) detectStaticBurst(m signal.Metrics) (*Anomaly, error) {
	if m.Duration <= e.thresholds.DurationThreshold || m.Entropy <= e.thresholds.EntropyThreshold {
		return nil, nil
	}
	return &Anomaly{
		Kind:       KindStaticBurst,
		Confidence: math.Min(1, m.Duration/burstSaturationSec),
		Details: map[string]float64{
			"duration": m.Duration,
			"entropy":  m.Entropy,
		},
	}, nil
}

// detectFrequencyShift compares the record against the previous one and
// fires on a carrier jump.
func (e *Engine) detectFrequencyShift(m signal.Metrics) (*Anomaly, error) {
	if len(e.history) < 2 {
		return nil, nil
	}
	prev := e.history[len(e.history)-2]
	shift := math.Abs(m.Frequency - prev.Frequency)
	if shift <= shiftMinMHz {
		return nil, nil
	}
	return &Anomaly{
		Kind:       KindFrequencyShift,
		Confidence: math.Min(1, shift/shiftSaturationMHz),
		Details: map[string]float64{
			"from_mhz":  prev.Frequency,
			"to_mhz":    m.Frequency,
			"shift_mhz": shift,
		},
	}, nil
}

// detectSignalPattern fires when the last few RSSI readings change by
// near-constant steps, a regularity ordinary traffic does not show.
func (e *Engine) detectSignalPattern(m signal.Metrics) (*Anomaly, error) {
	if len(e.history) < patternWindow {
		return nil, nil
	}
	recent := e.history[len(e.history)-patternWindow:]
	diffs := make([]float64, 0, patternWindow-1)
	for i := 1; i < len(recent); i++ {
		diffs = append(diffs, recent[i].RSSI-recent[i-1].RSSI)
	}

	similarity := 1 - popStdDev(diffs)/patternDiffScale
	if similarity < 0 {
		similarity = 0
	}
	if similarity <= e.thresholds.PatternThreshold {
		return nil, nil
	}
	return &Anomaly{
		Kind:       KindSignalPattern,
		Confidence: similarity,
		Details: map[string]float64{
			"similarity": similarity,
		},
	}, nil
}

// popStdDev is the population standard deviation.
func popStdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := stat.Mean(xs, nil)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}
