//go:build !cgo

package bus

import "fmt"

// The USB bridge dongle backend links against libusb through gousb, which
// needs cgo. Builds with CGO_ENABLED=0 compile without it and report the
// backend as unavailable at open time.
func openUSB(USBConfig) (Bus, error) {
	return nil, fmt.Errorf("usb bus backend requires a cgo-enabled build (gousb/libusb)")
}
