// Package driver owns a CC1101 through its life cycle: reset, identity
// verification, modem configuration, synthesizer calibration and power mode
// changes. All public methods serialize on an internal lock; multi-operation
// sequences such as a sampling window rely on a single goroutine owning the
// driver at a time.
package driver

import (
	"fmt"
	"sync"
	"time"

	"github.com/herlein/rfwatch/pkg/bus"
	"github.com/herlein/rfwatch/pkg/codec"
	"github.com/herlein/rfwatch/pkg/logging"
	"github.com/herlein/rfwatch/pkg/registers"
)

// State is the driver's position in the radio life cycle.
type State uint8

const (
	StateUninitialized State = iota
	StateResetting
	StateVerifyingIdentity
	StateConfiguring
	StateCalibrating
	StateIdle
	StateActive
	StateSleep
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateResetting:
		return "resetting"
	case StateVerifyingIdentity:
		return "verifying-identity"
	case StateConfiguring:
		return "configuring"
	case StateCalibrating:
		return "calibrating"
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateSleep:
		return "sleep"
	}
	return "unknown"
}

// PowerMode selects the radio's operating mode.
type PowerMode uint8

const (
	PowerIdle PowerMode = iota
	PowerActive
	PowerSleep
)

// String returns the power mode name.
func (m PowerMode) String() string {
	switch m {
	case PowerIdle:
		return "idle"
	case PowerActive:
		return "active"
	case PowerSleep:
		return "sleep"
	}
	return "unknown"
}

// ParsePowerMode converts a power mode name to its value.
func ParsePowerMode(name string) (PowerMode, error) {
	switch name {
	case "idle":
		return PowerIdle, nil
	case "active":
		return PowerActive, nil
	case "sleep":
		return PowerSleep, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPowerMode, name)
}

// Timing defaults.
const (
	DefaultResetSettle   = 100 * time.Millisecond
	DefaultCalTimeout    = 2 * time.Second
	DefaultRecalInterval = 5 * time.Minute

	calPollInterval  = time.Millisecond
	stateWaitTimeout = 100 * time.Millisecond
)

// Config holds the radio parameters applied during construction.
type Config struct {
	FrequencyMHz float64 // initial carrier frequency
	DataRateKbps float64
	DeviationKHz float64
	ChannelBWKHz float64
	Modulation   uint8  // registers.Mod* value
	SyncWord     uint16 // 16-bit sync word

	ResetSettle   time.Duration // settle delay after chip reset
	CalTimeout    time.Duration // deadline for synthesizer calibration
	RecalInterval time.Duration // calibration staleness limit
}

// DefaultConfig returns the standard survey configuration: 433.92 MHz GFSK
// at 1.2 kbps.
func DefaultConfig() Config {
	return Config{
		FrequencyMHz:  433.92,
		DataRateKbps:  codec.DataRateDefaultKbps,
		DeviationKHz:  codec.DeviationDefaultKHz,
		ChannelBWKHz:  codec.ChannelBWDefaultKHz,
		Modulation:    registers.ModGFSK,
		SyncWord:      0xD391,
		ResetSettle:   DefaultResetSettle,
		CalTimeout:    DefaultCalTimeout,
		RecalInterval: DefaultRecalInterval,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.FrequencyMHz == 0 {
		c.FrequencyMHz = def.FrequencyMHz
	}
	if c.DataRateKbps == 0 {
		c.DataRateKbps = def.DataRateKbps
	}
	if c.DeviationKHz == 0 {
		c.DeviationKHz = def.DeviationKHz
	}
	if c.ChannelBWKHz == 0 {
		c.ChannelBWKHz = def.ChannelBWKHz
	}
	if c.SyncWord == 0 {
		c.SyncWord = def.SyncWord
	}
	if c.ResetSettle == 0 {
		c.ResetSettle = def.ResetSettle
	}
	if c.CalTimeout == 0 {
		c.CalTimeout = def.CalTimeout
	}
	if c.RecalInterval == 0 {
		c.RecalInterval = def.RecalInterval
	}
	return c
}

// Driver drives a CC1101 over a register-level bus.
type Driver struct {
	bus bus.Bus
	cfg Config
	log logging.Logger

	mu      sync.Mutex
	state   State
	mode    PowerMode
	freqMHz float64
	lastCal time.Time
	onCal   func()
}

// SetCalibrationHook installs fn to run after every successful
// calibration. Set it before handing the driver to other goroutines.
func (d *Driver) SetCalibrationHook(fn func()) {
	d.onCal = fn
}

// New resets, verifies, configures and calibrates the radio. A failed
// identity check is permanent; the caller should not retry with the same
// hardware.
func New(b bus.Bus, cfg Config, log logging.Logger) (*Driver, error) {
	if log == nil {
		log = logging.Noop()
	}

	d := &Driver{
		bus:   b,
		cfg:   cfg.withDefaults(),
		log:   log,
		state: StateUninitialized,
	}

	if err := d.initialize(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) initialize() error {
	// 1. Reset the chip and let the crystal settle
	d.state = StateResetting
	if err := d.bus.Reset(); err != nil {
		return d.busErr("reset chip", err)
	}
	time.Sleep(d.cfg.ResetSettle)

	// 2. Verify chip identity
	d.state = StateVerifyingIdentity
	partNum, version, err := registers.ReadIdentity(d.bus)
	if err != nil {
		return d.busErr("read identity", err)
	}
	if partNum != registers.PartNumCC1101 ||
		(version != registers.VersionCC1101 && version != registers.VersionCC1101Legacy) {
		return fmt.Errorf("%w: PARTNUM=0x%02X VERSION=0x%02X", ErrChipNotDetected, partNum, version)
	}

	// 3. Apply modem configuration
	d.state = StateConfiguring
	if err := d.configure(); err != nil {
		return err
	}

	// 4. Calibrate the synthesizer
	if err := d.calibrate(); err != nil {
		return err
	}

	d.state = StateIdle
	d.mode = PowerIdle
	d.log.Info("radio initialized",
		logging.String("part", fmt.Sprintf("0x%02X", partNum)),
		logging.String("version", fmt.Sprintf("0x%02X", version)),
		logging.Float64("frequency_mhz", d.freqMHz))
	return nil
}

// configure derives the register block from the driver config and writes it
// in one burst.
func (d *Driver) configure() error {
	regs := registers.ReceivePreset()

	if err := regs.SetFrequency(d.cfg.FrequencyMHz); err != nil {
		return fmt.Errorf("initial frequency: %w", err)
	}

	drateE, drateM, clamped := codec.CalcDataRateRegs(d.cfg.DataRateKbps)
	if clamped {
		d.log.Warn("data rate out of range, using default",
			logging.Float64("requested_kbps", d.cfg.DataRateKbps),
			logging.Float64("applied_kbps", codec.DataRateDefaultKbps))
	}
	bwE, bwM := codec.CalcChannelBWRegs(d.cfg.ChannelBWKHz)
	regs.MDMCFG4 = bwE<<6 | bwM<<4 | drateE
	regs.MDMCFG3 = drateM

	deviatn, clamped := codec.CalcDeviationRegs(d.cfg.DeviationKHz)
	if clamped {
		d.log.Warn("deviation out of range, using default",
			logging.Float64("requested_khz", d.cfg.DeviationKHz),
			logging.Float64("applied_khz", codec.DeviationDefaultKHz))
	}
	regs.DEVIATN = deviatn

	regs.SetModulation(d.cfg.Modulation)
	regs.SetSyncWord(d.cfg.SyncWord)

	if err := registers.WriteAll(d.bus, &regs); err != nil {
		return d.busErr("write configuration", err)
	}
	d.freqMHz = d.cfg.FrequencyMHz
	return nil
}

// calibrate runs a manual synthesizer calibration from IDLE and polls
// MARCSTATE until the chip lands back in IDLE. Callers hold the lock.
func (d *Driver) calibrate() error {
	prev := d.state
	d.state = StateCalibrating

	// SCAL is only valid from IDLE.
	if err := d.bus.Strobe(registers.StrobeSIDLE); err != nil {
		d.state = prev
		return d.busErr("enter IDLE for calibration", err)
	}
	if err := d.bus.Strobe(registers.StrobeSCAL); err != nil {
		d.state = prev
		return d.busErr("start calibration", err)
	}

	// Give the strobe time to take effect before polling.
	time.Sleep(500 * time.Microsecond)

	deadline := time.Now().Add(d.cfg.CalTimeout)
	for {
		state, err := registers.ReadState(d.bus)
		if err != nil {
			d.state = prev
			return d.busErr("poll calibration state", err)
		}
		if state == registers.StateIDLE {
			d.lastCal = time.Now()
			d.state = StateIdle
			d.mode = PowerIdle
			d.log.Debug("synthesizer calibrated", logging.Float64("frequency_mhz", d.freqMHz))
			if d.onCal != nil {
				d.onCal()
			}
			return nil
		}
		if time.Now().After(deadline) {
			d.state = prev
			return fmt.Errorf("%w: stuck in %s after %s", ErrCalibrationTimeout, state, d.cfg.CalTimeout)
		}
		time.Sleep(calPollInterval)
	}
}

// Calibrate runs a manual synthesizer calibration. The radio is left idle.
func (d *Driver) Calibrate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calibrate()
}

// NeedsCalibration reports whether the last calibration is older than the
// configured recalibration interval.
func (d *Driver) NeedsCalibration() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Since(d.lastCal) > d.cfg.RecalInterval
}

// LastCalibration returns the time of the last successful calibration.
func (d *Driver) LastCalibration() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastCal
}

// SetFrequency retunes the carrier. An out-of-band frequency is rejected
// and the previous tuning stays in place. The synthesizer picks up the new
// frequency on the next transition to RX.
func (d *Driver) SetFrequency(freqMHz float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	freq2, freq1, freq0, err := codec.CalcFreqRegs(freqMHz)
	if err != nil {
		return err
	}
	if err := d.bus.WriteBurst(registers.RegFREQ2, []byte{freq2, freq1, freq0}); err != nil {
		return d.busErr("write frequency", err)
	}
	d.freqMHz = freqMHz
	return nil
}

// Frequency returns the last successfully requested carrier in MHz.
func (d *Driver) Frequency() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freqMHz
}

// SetPowerMode moves the radio between idle, active (RX) and sleep.
// Setting the current mode again is a no-op.
func (d *Driver) SetPowerMode(mode PowerMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if mode == d.mode {
		return nil
	}

	switch mode {
	case PowerActive:
		if d.mode == PowerSleep {
			// Waking from SPWD requires a pass through IDLE.
			if err := d.bus.Strobe(registers.StrobeSIDLE); err != nil {
				return d.busErr("wake radio", err)
			}
		}
		if err := d.bus.Strobe(registers.StrobeSRX); err != nil {
			return d.busErr("enter RX", err)
		}
		if err := d.waitForState(registers.StateRX, stateWaitTimeout); err != nil {
			return err
		}
		d.state = StateActive
	case PowerIdle:
		if err := d.bus.Strobe(registers.StrobeSIDLE); err != nil {
			return d.busErr("enter IDLE", err)
		}
		if err := d.waitForState(registers.StateIDLE, stateWaitTimeout); err != nil {
			return err
		}
		d.state = StateIdle
	case PowerSleep:
		// The chip powers down when the bus releases it. No state to verify.
		if err := d.bus.Strobe(registers.StrobeSPWD); err != nil {
			return d.busErr("enter sleep", err)
		}
		d.state = StateSleep
	default:
		return fmt.Errorf("%w: %d", ErrInvalidPowerMode, mode)
	}

	d.mode = mode
	return nil
}

// Mode returns the current power mode.
func (d *Driver) Mode() PowerMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// State returns the driver's life cycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// ReadRSSI reads and decodes the RSSI status register in dBm.
func (d *Driver) ReadRSSI() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	raw, err := d.bus.ReadStatus(registers.RegRSSI)
	if err != nil {
		return 0, d.busErr("read RSSI", err)
	}
	return codec.DecodeRSSI(raw), nil
}

// ReadLQI reads and decodes the LQI status register: the 7-bit link quality
// estimate and the CRC_OK flag.
func (d *Driver) ReadLQI() (quality uint8, crcOK bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	raw, err := d.bus.ReadStatus(registers.RegLQI)
	if err != nil {
		return 0, false, d.busErr("read LQI", err)
	}
	quality, crcOK = codec.DecodeLQI(raw)
	return quality, crcOK, nil
}

// waitForState polls MARCSTATE until the radio reaches want. Callers hold
// the lock.
func (d *Driver) waitForState(want registers.RadioState, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		state, err := registers.ReadState(d.bus)
		if err != nil {
			return d.busErr("read radio state", err)
		}
		if state == want {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("radio did not reach %s: stuck in %s", want, state)
		}
		time.Sleep(calPollInterval)
	}
}

func (d *Driver) busErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrBus, op, err)
}
