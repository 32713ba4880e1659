// Package codec translates between physical radio quantities and CC1101
// register values. All conversions assume the standard 26 MHz crystal.
package codec

import (
	"errors"
	"fmt"
	"math"
)

// CrystalHz is the reference oscillator frequency the synthesizer math is
// derived from.
const CrystalHz = 26_000_000.0

// FrequencyStepHz is the tuning resolution of the 24-bit frequency word.
const FrequencyStepHz = CrystalHz / 65536.0 // ~396.7 Hz

// Supported band edges in MHz.
const (
	Band300MinMHz = 300.0
	Band300MaxMHz = 348.0
	Band400MinMHz = 387.0
	Band400MaxMHz = 464.0
	Band800MinMHz = 779.0
	Band800MaxMHz = 928.0
)

// ErrOutOfBandFrequency indicates a frequency outside the supported
// 300-348, 387-464 and 779-928 MHz bands.
var ErrOutOfBandFrequency = errors.New("frequency outside supported bands")

// IsValidFrequency reports whether freqMHz falls within a supported band.
func IsValidFrequency(freqMHz float64) bool {
	switch {
	case freqMHz >= Band300MinMHz && freqMHz <= Band300MaxMHz:
		return true
	case freqMHz >= Band400MinMHz && freqMHz <= Band400MaxMHz:
		return true
	case freqMHz >= Band800MinMHz && freqMHz <= Band800MaxMHz:
		return true
	}
	return false
}

// FrequencyBand returns a human-readable band name for a frequency.
func FrequencyBand(freqMHz float64) string {
	switch {
	case freqMHz >= Band300MinMHz && freqMHz <= Band300MaxMHz:
		return "300MHz"
	case freqMHz >= Band400MinMHz && freqMHz <= Band400MaxMHz:
		return "400MHz"
	case freqMHz >= Band800MinMHz && freqMHz <= Band800MaxMHz:
		return "800MHz"
	}
	return "unknown"
}

// CalcFreqRegs calculates FREQ2/FREQ1/FREQ0 register values for a carrier
// frequency in MHz. The 24-bit frequency word is freq / crystal * 2^16,
// rounded to the nearest step, so the programmed carrier lands within
// FrequencyStepHz/2 of the request.
func CalcFreqRegs(freqMHz float64) (freq2, freq1, freq0 uint8, err error) {
	if !IsValidFrequency(freqMHz) {
		return 0, 0, 0, fmt.Errorf("%w: %.3f MHz", ErrOutOfBandFrequency, freqMHz)
	}

	freqHz := freqMHz * 1e6
	word := uint32(math.Round(freqHz / CrystalHz * 65536.0))

	freq2 = uint8((word >> 16) & 0xFF)
	freq1 = uint8((word >> 8) & 0xFF)
	freq0 = uint8(word & 0xFF)
	return freq2, freq1, freq0, nil
}

// FreqFromRegs converts FREQ2/FREQ1/FREQ0 register values back to a carrier
// frequency in MHz.
func FreqFromRegs(freq2, freq1, freq0 uint8) float64 {
	word := uint32(freq2)<<16 | uint32(freq1)<<8 | uint32(freq0)
	return float64(word) * CrystalHz / 65536.0 / 1e6
}

// DecodeRSSI converts a raw RSSI register value to dBm. The register holds a
// two's complement half-dB count relative to the -74 dBm offset.
func DecodeRSSI(raw uint8) float64 {
	if raw >= 128 {
		return (float64(raw)-256.0)/2.0 - 74.0
	}
	return float64(raw)/2.0 - 74.0
}

// DecodeLQI splits a raw LQI register value into the 7-bit link quality
// estimate and the CRC_OK flag carried in the top bit. Lower quality values
// indicate a better link.
func DecodeLQI(raw uint8) (quality uint8, crcOK bool) {
	return raw & 0x7F, raw&0x80 != 0
}

// Normalize maps value into [0, 1] relative to the [min, max] interval,
// clamping at the edges. A degenerate interval yields 0.
func Normalize(value, min, max float64) float64 {
	if max <= min {
		return 0
	}
	n := (value - min) / (max - min)
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}
