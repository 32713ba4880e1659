package bus

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/herlein/rfwatch/pkg/codec"
	"github.com/herlein/rfwatch/pkg/registers"
)

// simBus emulates a CC1101 well enough to exercise the full driver and
// sampling path without hardware: a register file, the MARCSTATE machine,
// and an RSSI synthesizer producing gaussian noise plus configured carriers.
type simBus struct {
	mu         sync.Mutex
	rng        *rand.Rand
	regs       [registers.NumConfigRegisters]uint8
	state      registers.RadioState
	noiseFloor float64
	noiseSigma float64
	carriers   []SimCarrier
	closed     bool
}

func openSim(cfg SimConfig) (*simBus, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	noiseFloor := cfg.NoiseFloorDBm
	if noiseFloor == 0 {
		noiseFloor = DefaultNoiseFloorDBm
	}
	noiseSigma := cfg.NoiseSigmaDBm
	if noiseSigma == 0 {
		noiseSigma = DefaultNoiseSigmaDBm
	}

	carriers := make([]SimCarrier, len(cfg.Carriers))
	copy(carriers, cfg.Carriers)
	for i := range carriers {
		if carriers[i].WidthKHz == 0 {
			carriers[i].WidthKHz = DefaultCarrierWidthKHz
		}
	}

	b := &simBus{
		rng:        rand.New(rand.NewSource(seed)),
		noiseFloor: noiseFloor,
		noiseSigma: noiseSigma,
		carriers:   carriers,
	}
	b.loadResetDefaults()
	return b, nil
}

// Power-on reset values from the datasheet.
var simResetDefaults = registers.RegisterMap{
	IOCFG2: 0x29, IOCFG1: 0x2E, IOCFG0: 0x3F,
	FIFOTHR: 0x07,
	SYNC1:   0xD3, SYNC0: 0x91,
	PKTLEN: 0xFF, PKTCTRL1: 0x04, PKTCTRL0: 0x45,
	FSCTRL1: 0x0F,
	FREQ2:   0x1E, FREQ1: 0xC4, FREQ0: 0xEC,
	MDMCFG4: 0x8C, MDMCFG3: 0x22, MDMCFG2: 0x02, MDMCFG1: 0x22, MDMCFG0: 0xF8,
	DEVIATN: 0x47,
	MCSM2:   0x07, MCSM1: 0x30, MCSM0: 0x04,
	FOCCFG: 0x36, BSCFG: 0x6C,
	AGCCTRL2: 0x03, AGCCTRL1: 0x40, AGCCTRL0: 0x91,
	WOREVT1: 0x87, WOREVT0: 0x6B, WORCTRL: 0xF8,
	FREND1: 0x56, FREND0: 0x10,
	FSCAL3: 0xA9, FSCAL2: 0x0A, FSCAL1: 0x20, FSCAL0: 0x0D,
	RCCTRL1: 0x41,
	FSTEST:  0x59, PTEST: 0x7F, AGCTEST: 0x3F,
	TEST2: 0x88, TEST1: 0x31, TEST0: 0x0B,
}

func (b *simBus) loadResetDefaults() {
	copy(b.regs[:], simResetDefaults.Bytes())
	b.state = registers.StateIDLE
}

func (b *simBus) checkAddr(addr uint8, n int) error {
	if int(addr)+n > len(b.regs) {
		return fmt.Errorf("register address out of range: 0x%02X+%d", addr, n)
	}
	return nil
}

func (b *simBus) ReadReg(addr uint8) (uint8, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrBusClosed
	}
	if err := b.checkAddr(addr, 1); err != nil {
		return 0, err
	}
	return b.regs[addr], nil
}

func (b *simBus) WriteReg(addr uint8, value uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if err := b.checkAddr(addr, 1); err != nil {
		return err
	}
	b.regs[addr] = value
	return nil
}

func (b *simBus) ReadStatus(addr uint8) (uint8, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrBusClosed
	}

	switch addr {
	case registers.RegPARTNUM:
		return registers.PartNumCC1101, nil
	case registers.RegVERSION:
		return registers.VersionCC1101, nil
	case registers.RegMARCSTATE:
		return uint8(b.state), nil
	case registers.RegRSSI:
		return b.synthesizeRSSI(), nil
	case registers.RegLQI:
		return b.synthesizeLQI(), nil
	}
	return 0, nil
}

func (b *simBus) ReadBurst(addr uint8, n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	if err := b.checkAddr(addr, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.regs[addr:int(addr)+n])
	return out, nil
}

func (b *simBus) WriteBurst(addr uint8, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if err := b.checkAddr(addr, len(data)); err != nil {
		return err
	}
	copy(b.regs[addr:], data)
	return nil
}

func (b *simBus) Strobe(cmd uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}

	switch cmd {
	case registers.StrobeSRES:
		b.loadResetDefaults()
	case registers.StrobeSCAL:
		// Calibration completes immediately and lands in IDLE.
		b.state = registers.StateIDLE
	case registers.StrobeSRX:
		b.state = registers.StateRX
	case registers.StrobeSIDLE:
		b.state = registers.StateIDLE
	case registers.StrobeSPWD, registers.StrobeSXOFF:
		b.state = registers.StateSLEEP
	case registers.StrobeSNOP, registers.StrobeSFRX, registers.StrobeSFTX:
		// No state change.
	}
	return nil
}

func (b *simBus) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	b.loadResetDefaults()
	return nil
}

func (b *simBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// tunedMHz returns the frequency currently programmed into the FREQ
// registers. Callers hold the mutex.
func (b *simBus) tunedMHz() float64 {
	return codec.FreqFromRegs(b.regs[registers.RegFREQ2], b.regs[registers.RegFREQ1], b.regs[registers.RegFREQ0])
}

// carrierAt returns the strongest configured carrier covering freqMHz.
func (b *simBus) carrierAt(freqMHz float64) (SimCarrier, bool) {
	var best SimCarrier
	found := false
	for _, c := range b.carriers {
		if math.Abs(freqMHz-c.FrequencyMHz) > c.WidthKHz/2000.0 {
			continue
		}
		if !found || c.LevelDBm > best.LevelDBm {
			best = c
			found = true
		}
	}
	return best, found
}

// synthesizeRSSI produces a raw RSSI register value for the tuned frequency:
// gaussian noise around the floor, overridden by any carrier in range.
// Callers hold the mutex.
func (b *simBus) synthesizeRSSI() uint8 {
	level := b.noiseFloor + b.rng.NormFloat64()*b.noiseSigma
	if c, ok := b.carrierAt(b.tunedMHz()); ok {
		carrier := c.LevelDBm + b.rng.NormFloat64()
		if carrier > level {
			level = carrier
		}
	}
	if level < -120 {
		level = -120
	}
	if level > -10 {
		level = -10
	}

	// Invert the half-dB two's complement encoding.
	raw := int(math.Round((level + 74.0) * 2.0))
	if raw < 0 {
		raw += 256
	}
	return uint8(raw)
}

// synthesizeLQI produces a raw LQI register value. On a carrier the link
// quality estimate improves (lower) and CRCs mostly pass. Callers hold the
// mutex.
func (b *simBus) synthesizeLQI() uint8 {
	_, onCarrier := b.carrierAt(b.tunedMHz())

	var quality uint8
	crcProb := 0.3
	if onCarrier {
		quality = uint8(8 + b.rng.Intn(16))
		crcProb = 0.9
	} else {
		quality = uint8(40 + b.rng.Intn(24))
	}

	raw := quality & 0x7F
	if b.rng.Float64() < crcProb {
		raw |= 0x80
	}
	return raw
}
