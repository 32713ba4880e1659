package sampler

import (
	"math"
	"testing"
)

// squareWave returns reps repetitions of a period-4 unit square wave.
func squareWave(reps int) []float64 {
	var out []float64
	for i := 0; i < reps; i++ {
		out = append(out, 1, 1, -1, -1)
	}
	return out
}

// impulse returns n samples that are zero except for a single leading spike.
func impulse(n int) []float64 {
	out := make([]float64, n)
	out[0] = float64(n)
	return out
}

func TestShannonEntropy(t *testing.T) {
	cases := []struct {
		name    string
		samples []float64
		want    float64
	}{
		{"empty", nil, 0},
		{"constant", []float64{-50, -50, -50, -50}, 0},
		{"two levels", alternating(-50, -60, 64), 0.125},
		{"uniform", ramp(256), 1.0},
	}
	for _, c := range cases {
		got := shannonEntropy(c.samples)
		if math.Abs(got-c.want) > 1e-12 {
			t.Errorf("shannonEntropy(%s) = %v, want %v", c.name, got, c.want)
		}
	}
}

func alternating(a, b float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = a
		} else {
			out[i] = b
		}
	}
	return out
}

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestIsPeriodic(t *testing.T) {
	if !isPeriodic(squareWave(8)) {
		t.Error("isPeriodic(square wave) = false, want true")
	}
	if isPeriodic(impulse(16)) {
		t.Error("isPeriodic(impulse) = true, want false")
	}
	if isPeriodic([]float64{3, 3, 3, 3, 3, 3, 3, 3}) {
		t.Error("isPeriodic(constant) = true, want false")
	}
}

func TestCrossCorrelate(t *testing.T) {
	samples := []float64{0, 1, 4, 9, 16, 9, 4, 1, 0, 3, 7, 2}
	tpl := []float64{4, 9, 16, 9, 4}
	if got := crossCorrelate(samples, tpl); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("crossCorrelate(exact segment) = %v, want 1.0", got)
	}

	// A decreasing template against a strictly increasing signal is
	// anti-correlated at every offset.
	if got := crossCorrelate(ramp(10), []float64{3, 2, 1}); got != 0 {
		t.Errorf("crossCorrelate(anti-correlated) = %v, want 0", got)
	}

	if got := crossCorrelate([]float64{1, 2}, []float64{1, 2, 3}); got != 0 {
		t.Errorf("crossCorrelate(template longer than signal) = %v, want 0", got)
	}
	if got := crossCorrelate([]float64{5, 5, 5, 5}, []float64{1, 2, 3}); got != 0 {
		t.Errorf("crossCorrelate(flat signal) = %v, want 0", got)
	}
}

func TestPatternScore(t *testing.T) {
	s := New(nil, Config{}, nil)

	if got := s.patternScore(squareWave(8)); got != PeriodicPatternScore {
		t.Errorf("patternScore(periodic) = %v, want %v", got, PeriodicPatternScore)
	}

	// Below the autocorrelation sample floor nothing is periodic.
	if got := s.patternScore(squareWave(2)); got != 0 {
		t.Errorf("patternScore(short periodic) = %v, want 0", got)
	}

	// A registered template that matches a window exactly scores 1.0.
	samples := impulse(16)
	s.RegisterTemplate("spike", samples[:5])
	if got := s.patternScore(samples); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("patternScore(template match) = %v, want 1.0", got)
	}

	// An uncorrelated template stays below the match threshold.
	s2 := New(nil, Config{}, nil)
	s2.RegisterTemplate("rise", []float64{1, 2, 3, 4, 5})
	if got := s2.patternScore(samples); got != 0 {
		t.Errorf("patternScore(no match) = %v, want 0", got)
	}
}
