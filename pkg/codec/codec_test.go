package codec

import (
	"errors"
	"math"
	"testing"
)

func TestCalcFreqRegsKnownValue(t *testing.T) {
	// 433.92 MHz with a 26 MHz crystal is the textbook 0x10B071 word.
	freq2, freq1, freq0, err := CalcFreqRegs(433.92)
	if err != nil {
		t.Fatalf("CalcFreqRegs(433.92) returned error: %v", err)
	}
	if freq2 != 0x10 || freq1 != 0xB0 || freq0 != 0x71 {
		t.Fatalf("CalcFreqRegs(433.92) = %#02x %#02x %#02x, want 0x10 0xb0 0x71", freq2, freq1, freq0)
	}
}

func TestCalcFreqRegsRoundTrip(t *testing.T) {
	freqs := []float64{300.0, 315.0, 347.99, 387.0, 433.92, 464.0, 779.0, 868.3, 915.0, 928.0}
	for _, want := range freqs {
		freq2, freq1, freq0, err := CalcFreqRegs(want)
		if err != nil {
			t.Fatalf("CalcFreqRegs(%v) returned error: %v", want, err)
		}
		got := FreqFromRegs(freq2, freq1, freq0)
		if diffHz := math.Abs(got-want) * 1e6; diffHz > FrequencyStepHz {
			t.Fatalf("round trip at %v MHz off by %.1f Hz, want <= %.1f Hz", want, diffHz, FrequencyStepHz)
		}
	}
}

func TestCalcFreqRegsOutOfBand(t *testing.T) {
	for _, freq := range []float64{0, 299.99, 348.01, 360.0, 464.5, 700.0, 928.1, 2400.0} {
		if _, _, _, err := CalcFreqRegs(freq); !errors.Is(err, ErrOutOfBandFrequency) {
			t.Fatalf("CalcFreqRegs(%v) error = %v, want ErrOutOfBandFrequency", freq, err)
		}
	}
}

func TestIsValidFrequencyEdges(t *testing.T) {
	tests := []struct {
		freq float64
		want bool
	}{
		{300.0, true},
		{348.0, true},
		{348.01, false},
		{386.99, false},
		{387.0, true},
		{464.0, true},
		{779.0, true},
		{928.0, true},
		{928.01, false},
	}
	for _, tt := range tests {
		if got := IsValidFrequency(tt.freq); got != tt.want {
			t.Fatalf("IsValidFrequency(%v) = %v, want %v", tt.freq, got, tt.want)
		}
	}
}

func TestFrequencyBand(t *testing.T) {
	tests := []struct {
		freq float64
		want string
	}{
		{315.0, "300MHz"},
		{433.92, "400MHz"},
		{915.0, "800MHz"},
		{600.0, "unknown"},
	}
	for _, tt := range tests {
		if got := FrequencyBand(tt.freq); got != tt.want {
			t.Fatalf("FrequencyBand(%v) = %q, want %q", tt.freq, got, tt.want)
		}
	}
}

func TestDecodeRSSI(t *testing.T) {
	tests := []struct {
		raw  uint8
		want float64
	}{
		{128, -138.0},
		{0, -74.0},
		{255, -74.5},
		{127, -10.5},
		{58, -45.0},
		{200, -102.0},
	}
	for _, tt := range tests {
		if got := DecodeRSSI(tt.raw); got != tt.want {
			t.Fatalf("DecodeRSSI(%d) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestDecodeLQI(t *testing.T) {
	quality, crcOK := DecodeLQI(0x80 | 42)
	if quality != 42 || !crcOK {
		t.Fatalf("DecodeLQI(0x80|42) = (%d, %v), want (42, true)", quality, crcOK)
	}
	quality, crcOK = DecodeLQI(0x30)
	if quality != 0x30 || crcOK {
		t.Fatalf("DecodeLQI(0x30) = (%d, %v), want (48, false)", quality, crcOK)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		value, min, max float64
		want            float64
	}{
		{-60.0, -120.0, 0.0, 0.5},
		{-120.0, -120.0, 0.0, 0.0},
		{0.0, -120.0, 0.0, 1.0},
		{-150.0, -120.0, 0.0, 0.0},
		{50.0, -120.0, 0.0, 1.0},
		{5.0, 10.0, 10.0, 0.0},
	}
	for _, tt := range tests {
		if got := Normalize(tt.value, tt.min, tt.max); got != tt.want {
			t.Fatalf("Normalize(%v, %v, %v) = %v, want %v", tt.value, tt.min, tt.max, got, tt.want)
		}
	}
}

func TestCalcDataRateRegsKnownValue(t *testing.T) {
	// 1.2 kbps at 26 MHz is the datasheet DRATE_E=5, DRATE_M=0x83 setting.
	drateE, drateM, clamped := CalcDataRateRegs(1.2)
	if clamped {
		t.Fatalf("CalcDataRateRegs(1.2) reported clamped")
	}
	if drateE != 5 || drateM != 0x83 {
		t.Fatalf("CalcDataRateRegs(1.2) = (%d, %#02x), want (5, 0x83)", drateE, drateM)
	}
}

func TestCalcDataRateRegsClamped(t *testing.T) {
	wantE, wantM, _ := CalcDataRateRegs(DataRateDefaultKbps)
	for _, kbps := range []float64{0.1, 0.59, 500.1, 10000.0} {
		drateE, drateM, clamped := CalcDataRateRegs(kbps)
		if !clamped {
			t.Fatalf("CalcDataRateRegs(%v) did not report clamped", kbps)
		}
		if drateE != wantE || drateM != wantM {
			t.Fatalf("CalcDataRateRegs(%v) = (%d, %d), want default (%d, %d)", kbps, drateE, drateM, wantE, wantM)
		}
	}
}

func TestDataRateRoundTrip(t *testing.T) {
	for _, kbps := range []float64{0.6, 1.2, 2.4, 4.8, 38.4, 100.0, 250.0, 500.0} {
		drateE, drateM, clamped := CalcDataRateRegs(kbps)
		if clamped {
			t.Fatalf("CalcDataRateRegs(%v) reported clamped", kbps)
		}
		got := DataRateFromRegs(drateE, drateM)
		if rel := math.Abs(got-kbps) / kbps; rel > 0.01 {
			t.Fatalf("data rate round trip at %v kbps = %v kbps (%.2f%% off)", kbps, got, rel*100)
		}
	}
}

func TestCalcDeviationRegsKnownValue(t *testing.T) {
	deviatn, clamped := CalcDeviationRegs(45.0)
	if clamped {
		t.Fatalf("CalcDeviationRegs(45) reported clamped")
	}
	if deviatn != 0x46 {
		t.Fatalf("CalcDeviationRegs(45) = %#02x, want 0x46", deviatn)
	}
}

func TestCalcDeviationRegsClamped(t *testing.T) {
	want, _ := CalcDeviationRegs(DeviationDefaultKHz)
	for _, khz := range []float64{0.0, 1.0, 380.1, 1000.0} {
		deviatn, clamped := CalcDeviationRegs(khz)
		if !clamped {
			t.Fatalf("CalcDeviationRegs(%v) did not report clamped", khz)
		}
		if deviatn != want {
			t.Fatalf("CalcDeviationRegs(%v) = %#02x, want default %#02x", khz, deviatn, want)
		}
	}
}

func TestDeviationRoundTrip(t *testing.T) {
	// 3-bit mantissa quantization allows up to ~6% error.
	for _, khz := range []float64{1.587, 5.0, 20.0, 45.0, 100.0, 250.0, 380.0} {
		deviatn, clamped := CalcDeviationRegs(khz)
		if clamped {
			t.Fatalf("CalcDeviationRegs(%v) reported clamped", khz)
		}
		got := DeviationFromRegs(deviatn)
		if rel := math.Abs(got-khz) / khz; rel > 0.07 {
			t.Fatalf("deviation round trip at %v kHz = %v kHz (%.2f%% off)", khz, got, rel*100)
		}
	}
}

func TestCalcChannelBWRegs(t *testing.T) {
	tests := []struct {
		khz          float64
		wantE, wantM uint8
	}{
		{203.125, 2, 0},
		{58.036, 3, 3},
		{812.5, 0, 0},
		{2000.0, 0, 0},
		{10.0, 3, 3},
	}
	for _, tt := range tests {
		bwE, bwM := CalcChannelBWRegs(tt.khz)
		if bwE != tt.wantE || bwM != tt.wantM {
			t.Fatalf("CalcChannelBWRegs(%v) = (%d, %d), want (%d, %d)", tt.khz, bwE, bwM, tt.wantE, tt.wantM)
		}
	}
}
