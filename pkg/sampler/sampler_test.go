package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/herlein/rfwatch/pkg/bus"
	"github.com/herlein/rfwatch/pkg/codec"
	"github.com/herlein/rfwatch/pkg/driver"
	"github.com/herlein/rfwatch/pkg/logging"
)

// newTestSampler builds a sampler over the simulated bus with a short
// window so tests stay fast.
func newTestSampler(t *testing.T, carriers []bus.SimCarrier) (*Sampler, *driver.Driver) {
	t.Helper()

	b, err := bus.Open(bus.Config{
		Type: "sim",
		Sim:  bus.SimConfig{Seed: 42, Carriers: carriers},
	})
	if err != nil {
		t.Fatalf("bus.Open() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })

	dcfg := driver.DefaultConfig()
	dcfg.ResetSettle = time.Millisecond
	d, err := driver.New(b, dcfg, logging.Noop())
	if err != nil {
		t.Fatalf("driver.New() error = %v", err)
	}

	cfg := Config{
		WindowDuration: 60 * time.Millisecond,
		SampleInterval: 5 * time.Millisecond,
		SettleDelay:    time.Millisecond,
	}
	return New(d, cfg, logging.Noop()), d
}

func TestScanFrequencyCarrier(t *testing.T) {
	s, d := newTestSampler(t, []bus.SimCarrier{
		{FrequencyMHz: 433.92, LevelDBm: -40},
	})

	m, err := s.ScanFrequency(context.Background(), 433.92)
	if err != nil {
		t.Fatalf("ScanFrequency() error = %v", err)
	}
	if m.Frequency != 433.92 {
		t.Errorf("Frequency = %v, want 433.92", m.Frequency)
	}
	if m.RSSI < -50 || m.RSSI > -30 {
		t.Errorf("RSSI = %v dBm on a -40 dBm carrier", m.RSSI)
	}
	if m.Duration <= 0 {
		t.Errorf("Duration = %v, want > 0", m.Duration)
	}
	if m.SignalQuality < 0.3 || m.SignalQuality > 1 {
		t.Errorf("SignalQuality = %v on a strong carrier", m.SignalQuality)
	}
	if m.LQI < 0 || m.LQI > 255 {
		t.Errorf("LQI = %v out of range", m.LQI)
	}
	if d.Mode() != driver.PowerIdle {
		t.Errorf("driver mode after scan = %v, want idle", d.Mode())
	}
}

func TestScanFrequencyQuietBand(t *testing.T) {
	s, _ := newTestSampler(t, []bus.SimCarrier{
		{FrequencyMHz: 433.92, LevelDBm: -40},
	})

	m, err := s.ScanFrequency(context.Background(), 915.0)
	if err != nil {
		t.Fatalf("ScanFrequency() error = %v", err)
	}
	if m.RSSI > -80 {
		t.Errorf("RSSI = %v dBm off carrier, want below noise ceiling", m.RSSI)
	}
}

func TestScanFrequencyTuningError(t *testing.T) {
	s, d := newTestSampler(t, nil)

	_, err := s.ScanFrequency(context.Background(), 99.0)
	if !errors.Is(err, ErrTuning) {
		t.Fatalf("ScanFrequency(99.0) error = %v, want ErrTuning", err)
	}
	if !errors.Is(err, codec.ErrOutOfBandFrequency) {
		t.Errorf("ScanFrequency(99.0) error = %v, want wrapped ErrOutOfBandFrequency", err)
	}
	if got := d.Frequency(); got != 433.92 {
		t.Errorf("Frequency() = %v after rejected scan, want 433.92", got)
	}
}

func TestScanFrequencyCancelled(t *testing.T) {
	s, d := newTestSampler(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.ScanFrequency(ctx, 433.92)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ScanFrequency(cancelled ctx) error = %v, want context.Canceled", err)
	}
	if d.Mode() != driver.PowerIdle {
		t.Errorf("driver mode after cancelled scan = %v, want idle", d.Mode())
	}
}

func TestScanFrequencyNoSamples(t *testing.T) {
	_, d := newTestSampler(t, nil)

	cfg := Config{
		WindowDuration: time.Millisecond,
		SampleInterval: 250 * time.Millisecond,
		SettleDelay:    time.Millisecond,
	}
	s := New(d, cfg, logging.Noop())

	_, err := s.ScanFrequency(context.Background(), 433.92)
	if !errors.Is(err, ErrNoSamples) {
		t.Fatalf("ScanFrequency() error = %v, want ErrNoSamples", err)
	}
}
