// Package signal defines the measurement record a sampling window produces
// and that every downstream consumer shares.
package signal

import "time"

// Metrics is one receive window reduced to scalar form. RSSI is in dBm,
// Frequency in MHz, Duration in seconds. Entropy, PatternMatch and
// SignalQuality are normalized to [0, 1]. LQI carries the 7-bit link
// quality estimate with the CRC flag split out into CRCOK.
type Metrics struct {
	RSSI          float64   `json:"rssi"`
	LQI           int       `json:"lqi"`
	CRCOK         bool      `json:"crc_ok"`
	Timestamp     time.Time `json:"timestamp"`
	Frequency     float64   `json:"frequency"`
	Duration      float64   `json:"duration"`
	Entropy       float64   `json:"entropy"`
	PatternMatch  float64   `json:"pattern_match"`
	SignalQuality float64   `json:"signal_quality"`
}
