package driver

import "errors"

var (
	// ErrChipNotDetected indicates the identity registers did not match a
	// supported chip revision. Construction fails permanently on this error.
	ErrChipNotDetected = errors.New("chip not detected")

	// ErrCalibrationTimeout indicates the synthesizer did not return to
	// IDLE within the calibration deadline.
	ErrCalibrationTimeout = errors.New("calibration timeout")

	// ErrBus indicates an I/O failure on the underlying bus. The current
	// operation is abandoned; register writes already applied stay applied.
	ErrBus = errors.New("bus I/O failure")

	// ErrInvalidPowerMode indicates an unrecognized power mode name.
	ErrInvalidPowerMode = errors.New("invalid power mode")
)
