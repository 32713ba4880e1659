package sampler

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Pattern scoring parameters.
const (
	// PeriodicPatternScore is reported when autocorrelation flags a
	// periodic structure in the sample window.
	PeriodicPatternScore = 0.8

	autocorrMinSamples = 10
	peakFraction       = 0.70
	spacingMinIndex    = 0.1
	spacingMaxIndex    = 10.0
	templateThreshold  = 0.7
)

const entropyBins = 256

// shannonEntropy computes the Shannon entropy of the sample distribution
// over a fixed-bin histogram spanning the observed range, scaled by the
// maximum attainable 8 bits and clamped to [0, 1].
func shannonEntropy(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	lo, hi := floats.Min(samples), floats.Max(samples)
	if hi <= lo {
		return 0
	}

	hist := make([]int, entropyBins)
	for _, v := range samples {
		i := int((v - lo) / (hi - lo) * entropyBins)
		if i >= entropyBins {
			i = entropyBins - 1
		}
		hist[i]++
	}

	n := float64(len(samples))
	var h float64
	for _, c := range hist {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}

	h /= 8.0
	if h > 1 {
		h = 1
	}
	return h
}

// patternScore detects repetitive structure in the window. A periodic
// autocorrelation wins over template matching; templates only count above
// the match threshold.
func (s *Sampler) patternScore(samples []float64) float64 {
	if len(samples) > autocorrMinSamples && isPeriodic(samples) {
		return PeriodicPatternScore
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	best := 0.0
	for _, tpl := range s.templates {
		if score := crossCorrelate(samples, tpl); score > best {
			best = score
		}
	}
	if best > templateThreshold {
		return best
	}
	return 0
}

// isPeriodic reports whether the mean-centered autocorrelation has at least
// two peaks above the peak fraction of its maximum with a plausible mean
// spacing.
func isPeriodic(samples []float64) bool {
	n := len(samples)
	m := stat.Mean(samples, nil)
	centered := make([]float64, n)
	for i, v := range samples {
		centered[i] = v - m
	}

	ac := make([]float64, n)
	for lag := 0; lag < n; lag++ {
		var sum float64
		for i := 0; i+lag < n; i++ {
			sum += centered[i] * centered[i+lag]
		}
		ac[lag] = sum
	}

	peak := floats.Max(ac)
	if peak <= 0 {
		return false
	}

	var peaks []int
	for lag, v := range ac {
		if v > peakFraction*peak {
			peaks = append(peaks, lag)
		}
	}
	if len(peaks) < 2 {
		return false
	}

	var spacing float64
	for i := 1; i < len(peaks); i++ {
		spacing += float64(peaks[i] - peaks[i-1])
	}
	spacing /= float64(len(peaks) - 1)
	return spacing > spacingMinIndex && spacing < spacingMaxIndex
}

// crossCorrelate slides tpl across samples and returns the best normalized
// cross-correlation, clamped to [0, 1]. Anti-correlated alignments score 0.
func crossCorrelate(samples, tpl []float64) float64 {
	n, m := len(samples), len(tpl)
	if m == 0 || m > n {
		return 0
	}

	tm := stat.Mean(tpl, nil)
	tc := make([]float64, m)
	for i, v := range tpl {
		tc[i] = v - tm
	}
	tNorm := math.Sqrt(floats.Dot(tc, tc))
	if tNorm == 0 {
		return 0
	}

	best := 0.0
	for off := 0; off+m <= n; off++ {
		win := samples[off : off+m]
		wm := stat.Mean(win, nil)
		var dot, wss float64
		for i, v := range win {
			d := v - wm
			dot += d * tc[i]
			wss += d * d
		}
		if wss == 0 {
			continue
		}
		if score := dot / (math.Sqrt(wss) * tNorm); score > best {
			best = score
		}
	}
	return best
}
