package bus

import (
	"errors"
	"testing"

	"github.com/herlein/rfwatch/pkg/codec"
	"github.com/herlein/rfwatch/pkg/registers"
)

func tuneSim(t *testing.T, b Bus, freqMHz float64) {
	t.Helper()
	freq2, freq1, freq0, err := codec.CalcFreqRegs(freqMHz)
	if err != nil {
		t.Fatalf("CalcFreqRegs(%v): %v", freqMHz, err)
	}
	if err := b.WriteBurst(registers.RegFREQ2, []byte{freq2, freq1, freq0}); err != nil {
		t.Fatalf("WriteBurst(FREQ): %v", err)
	}
}

func meanRSSI(t *testing.T, b Bus, samples int) float64 {
	t.Helper()
	sum := 0.0
	for i := 0; i < samples; i++ {
		raw, err := b.ReadStatus(registers.RegRSSI)
		if err != nil {
			t.Fatalf("ReadStatus(RSSI): %v", err)
		}
		sum += codec.DecodeRSSI(raw)
	}
	return sum / float64(samples)
}

func TestSimIdentity(t *testing.T) {
	b, err := openSim(SimConfig{Seed: 1})
	if err != nil {
		t.Fatalf("openSim: %v", err)
	}
	defer b.Close()

	partNum, version, err := registers.ReadIdentity(b)
	if err != nil {
		t.Fatalf("ReadIdentity: %v", err)
	}
	if partNum != registers.PartNumCC1101 || version != registers.VersionCC1101 {
		t.Fatalf("identity = (%#02x, %#02x), want (%#02x, %#02x)",
			partNum, version, registers.PartNumCC1101, registers.VersionCC1101)
	}
}

func TestSimStateMachine(t *testing.T) {
	b, err := openSim(SimConfig{Seed: 1})
	if err != nil {
		t.Fatalf("openSim: %v", err)
	}
	defer b.Close()

	steps := []struct {
		strobe uint8
		want   registers.RadioState
	}{
		{registers.StrobeSRX, registers.StateRX},
		{registers.StrobeSIDLE, registers.StateIDLE},
		{registers.StrobeSCAL, registers.StateIDLE},
		{registers.StrobeSRX, registers.StateRX},
		{registers.StrobeSPWD, registers.StateSLEEP},
		{registers.StrobeSRES, registers.StateIDLE},
	}

	if state, _ := registers.ReadState(b); state != registers.StateIDLE {
		t.Fatalf("initial state = %v, want IDLE", state)
	}
	for _, step := range steps {
		if err := b.Strobe(step.strobe); err != nil {
			t.Fatalf("Strobe(%#02x): %v", step.strobe, err)
		}
		state, err := registers.ReadState(b)
		if err != nil {
			t.Fatalf("ReadState: %v", err)
		}
		if state != step.want {
			t.Fatalf("state after strobe %#02x = %v, want %v", step.strobe, state, step.want)
		}
	}
}

func TestSimResetRestoresDefaults(t *testing.T) {
	b, err := openSim(SimConfig{Seed: 1})
	if err != nil {
		t.Fatalf("openSim: %v", err)
	}
	defer b.Close()

	if err := b.WriteReg(registers.RegMDMCFG4, 0x55); err != nil {
		t.Fatalf("WriteReg: %v", err)
	}
	if err := b.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	value, err := b.ReadReg(registers.RegMDMCFG4)
	if err != nil {
		t.Fatalf("ReadReg: %v", err)
	}
	if value != 0x8C {
		t.Fatalf("MDMCFG4 after reset = %#02x, want 0x8c", value)
	}
}

func TestSimRegisterBlockRoundTrip(t *testing.T) {
	b, err := openSim(SimConfig{Seed: 1})
	if err != nil {
		t.Fatalf("openSim: %v", err)
	}
	defer b.Close()

	preset := registers.ReceivePreset()
	if err := registers.WriteAll(b, &preset); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	got, err := registers.ReadAll(b)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if *got != preset {
		t.Fatalf("register block round trip mismatch")
	}
}

func TestSimNoiseFloor(t *testing.T) {
	b, err := openSim(SimConfig{Seed: 42})
	if err != nil {
		t.Fatalf("openSim: %v", err)
	}
	defer b.Close()

	tuneSim(t, b, 433.92)
	mean := meanRSSI(t, b, 400)
	if mean < -99 || mean > -91 {
		t.Fatalf("noise floor mean = %.1f dBm, want around %v", mean, DefaultNoiseFloorDBm)
	}
}

func TestSimCarrier(t *testing.T) {
	b, err := openSim(SimConfig{
		Seed:     42,
		Carriers: []SimCarrier{{FrequencyMHz: 433.92, LevelDBm: -40}},
	})
	if err != nil {
		t.Fatalf("openSim: %v", err)
	}
	defer b.Close()

	tuneSim(t, b, 433.92)
	if mean := meanRSSI(t, b, 400); mean < -45 || mean > -35 {
		t.Fatalf("carrier mean = %.1f dBm, want around -40", mean)
	}

	// Off the carrier only noise remains.
	tuneSim(t, b, 915.0)
	if mean := meanRSSI(t, b, 400); mean > -85 {
		t.Fatalf("off-carrier mean = %.1f dBm, want below -85", mean)
	}
}

func TestSimDeterministicSeed(t *testing.T) {
	first, err := openSim(SimConfig{Seed: 7})
	if err != nil {
		t.Fatalf("openSim: %v", err)
	}
	defer first.Close()
	second, err := openSim(SimConfig{Seed: 7})
	if err != nil {
		t.Fatalf("openSim: %v", err)
	}
	defer second.Close()

	for i := 0; i < 32; i++ {
		a, _ := first.ReadStatus(registers.RegRSSI)
		b, _ := second.ReadStatus(registers.RegRSSI)
		if a != b {
			t.Fatalf("sample %d differs between identically seeded sims: %#02x vs %#02x", i, a, b)
		}
	}
}

func TestSimAddressBounds(t *testing.T) {
	b, err := openSim(SimConfig{Seed: 1})
	if err != nil {
		t.Fatalf("openSim: %v", err)
	}
	defer b.Close()

	if _, err := b.ReadBurst(registers.RegTEST0, 4); err == nil {
		t.Fatalf("ReadBurst past end of register file did not fail")
	}
}

func TestSimClosed(t *testing.T) {
	b, err := openSim(SimConfig{Seed: 1})
	if err != nil {
		t.Fatalf("openSim: %v", err)
	}
	b.Close()

	if _, err := b.ReadReg(registers.RegMDMCFG4); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("ReadReg on closed bus = %v, want ErrBusClosed", err)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	b, err := Open(Config{Type: "sim", Sim: SimConfig{Seed: 1}})
	if err != nil {
		t.Fatalf("Open(sim): %v", err)
	}
	b.Close()

	if _, err := Open(Config{Type: "carrier-pigeon"}); !errors.Is(err, ErrUnknownBusType) {
		t.Fatalf("Open(carrier-pigeon) error = %v, want ErrUnknownBusType", err)
	}
}
