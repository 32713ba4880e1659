package sampler

import "errors"

// Sentinel errors returned by ScanFrequency.
var (
	// ErrTuning indicates the radio could not be tuned to the requested
	// frequency. The previous tuning is still in effect.
	ErrTuning = errors.New("tuning failed")

	// ErrNoSamples indicates the sampling window closed before any sample
	// was collected.
	ErrNoSamples = errors.New("no samples collected")
)
