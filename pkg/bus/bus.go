// Package bus provides register-level transports for a CC1101 radio. Three
// backends are available: a USB bridge dongle, native SPI through periph.io,
// and an in-process simulator for running without hardware.
package bus

import (
	"errors"
	"fmt"
	"time"
)

// Bus is a register-level transport to a CC1101. Implementations serialize
// access internally so a Bus is safe for use from multiple goroutines,
// though callers normally hold the driver lock across multi-step sequences.
type Bus interface {
	// ReadReg reads a single configuration register.
	ReadReg(addr uint8) (uint8, error)
	// WriteReg writes a single configuration register.
	WriteReg(addr uint8, value uint8) error
	// ReadStatus reads a read-only status register.
	ReadStatus(addr uint8) (uint8, error)
	// ReadBurst reads n consecutive configuration registers starting at addr.
	ReadBurst(addr uint8, n int) ([]byte, error)
	// WriteBurst writes consecutive configuration registers starting at addr.
	WriteBurst(addr uint8, data []byte) error
	// Strobe issues a command strobe.
	Strobe(cmd uint8) error
	// Reset issues a chip reset. Callers allow the settle time afterwards.
	Reset() error
	// Close releases the transport. The Bus is unusable afterwards.
	Close() error
}

// Sentinel errors shared by the bus backends.
var (
	// ErrDeviceNotFound indicates no matching device was found on the bus.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrBusClosed indicates an operation on a closed bus.
	ErrBusClosed = errors.New("bus is closed")

	// ErrUnknownBusType indicates an unrecognized bus type in configuration.
	ErrUnknownBusType = errors.New("unknown bus type")
)

// Config selects and parameterizes a bus backend.
type Config struct {
	Type string    `yaml:"type"` // usb, spi or sim
	USB  USBConfig `yaml:"usb"`
	SPI  SPIConfig `yaml:"spi"`
	Sim  SimConfig `yaml:"sim"`
}

// USBConfig identifies a USB bridge dongle.
type USBConfig struct {
	Vendor  uint16        `yaml:"vendor"`
	Product uint16        `yaml:"product"`
	Serial  string        `yaml:"serial"` // optional, matched when set
	Timeout time.Duration `yaml:"-"`      // per-command timeout
}

// SPIConfig identifies a native SPI port.
type SPIConfig struct {
	Port     string `yaml:"port"` // spireg name, e.g. /dev/spidev0.0
	SpeedKHz int    `yaml:"speed_khz"`
}

// SimConfig parameterizes the simulated radio environment.
type SimConfig struct {
	Seed          int64        `yaml:"seed"`            // 0 selects a time-based seed
	NoiseFloorDBm float64      `yaml:"noise_floor_dbm"` // mean of the noise distribution
	NoiseSigmaDBm float64      `yaml:"noise_sigma_dbm"` // standard deviation of the noise
	Carriers      []SimCarrier `yaml:"carriers"`
}

// SimCarrier injects a steady emitter into the simulated spectrum.
type SimCarrier struct {
	FrequencyMHz float64 `yaml:"frequency_mhz"`
	LevelDBm     float64 `yaml:"level_dbm"`
	WidthKHz     float64 `yaml:"width_khz"`
}

// Defaults for the backend configurations.
const (
	DefaultUSBVendor  = 0x1D50
	DefaultUSBProduct = 0x60C5
	DefaultUSBTimeout = time.Second

	DefaultSPISpeedKHz = 5000

	DefaultNoiseFloorDBm   = -95.0
	DefaultNoiseSigmaDBm   = 5.0
	DefaultCarrierWidthKHz = 200.0
)

// Open constructs the bus backend selected by cfg.Type.
func Open(cfg Config) (Bus, error) {
	switch cfg.Type {
	case "usb":
		return openUSB(cfg.USB)
	case "spi":
		return openSPI(cfg.SPI)
	case "sim", "":
		return openSim(cfg.Sim)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBusType, cfg.Type)
}
