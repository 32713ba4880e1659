package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rfwatch.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
bus:
  type: sim
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if got := len(cfg.Scan.FrequenciesMHz); got != len(DefaultFrequenciesMHz) {
		t.Fatalf("len(FrequenciesMHz) = %d, want %d", got, len(DefaultFrequenciesMHz))
	}
	if cfg.Scan.IntervalSec != DefaultScanIntervalSec {
		t.Errorf("IntervalSec = %v, want %v", cfg.Scan.IntervalSec, DefaultScanIntervalSec)
	}
	if cfg.Radio.Modulation != "gfsk" {
		t.Errorf("Modulation = %q, want %q", cfg.Radio.Modulation, "gfsk")
	}
	if cfg.Radio.RecalIntervalSec != DefaultRecalSec {
		t.Errorf("RecalIntervalSec = %d, want %d", cfg.Radio.RecalIntervalSec, DefaultRecalSec)
	}
	if cfg.Journal.Dir != DefaultJournalDir {
		t.Errorf("Journal.Dir = %q, want %q", cfg.Journal.Dir, DefaultJournalDir)
	}
	if cfg.Alert.CooldownSec == nil || *cfg.Alert.CooldownSec != DefaultAlertCooldown {
		t.Errorf("Alert.CooldownSec = %v, want %d", cfg.Alert.CooldownSec, DefaultAlertCooldown)
	}
	if cfg.MQTT.TopicPrefix != DefaultTopicPrefix {
		t.Errorf("TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, DefaultTopicPrefix)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %q/%q, want info/text", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, `
scan:
  frequencies_mhz: [433.92]
  interval_sec: 1.5
radio:
  modulation: ask_ook
  sync_word: 0xD391
journal:
  enabled: true
  max_size_mb: 25
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(cfg.Scan.FrequenciesMHz) != 1 || cfg.Scan.FrequenciesMHz[0] != 433.92 {
		t.Errorf("FrequenciesMHz = %v, want [433.92]", cfg.Scan.FrequenciesMHz)
	}
	if cfg.Scan.IntervalSec != 1.5 {
		t.Errorf("IntervalSec = %v, want 1.5", cfg.Scan.IntervalSec)
	}
	if cfg.Radio.Modulation != "ask_ook" {
		t.Errorf("Modulation = %q, want ask_ook", cfg.Radio.Modulation)
	}
	if cfg.Radio.SyncWord != 0xD391 {
		t.Errorf("SyncWord = %#04x, want 0xD391", cfg.Radio.SyncWord)
	}
	if !cfg.Journal.Enabled || cfg.Journal.MaxSizeMB != 25 {
		t.Errorf("Journal = %+v, want enabled with 25 MB cap", cfg.Journal)
	}
}

func TestLoadExplicitZeroCooldown(t *testing.T) {
	path := writeConfig(t, `
alert:
  webhook_url: http://localhost:9000/hook
  cooldown_sec: 0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// An explicit zero disables throttling and must not be replaced by
	// the default.
	if cfg.Alert.CooldownSec == nil {
		t.Fatal("CooldownSec = nil, want pointer to 0")
	}
	if *cfg.Alert.CooldownSec != 0 {
		t.Errorf("CooldownSec = %d, want 0", *cfg.Alert.CooldownSec)
	}
}

func TestLoadThresholdOverrides(t *testing.T) {
	path := writeConfig(t, `
thresholds:
  rssi_high: -40
  rssi_low: -110
  entropy_threshold: 0.0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Thresholds.RSSIHigh == nil || *cfg.Thresholds.RSSIHigh != -40 {
		t.Errorf("RSSIHigh = %v, want -40", cfg.Thresholds.RSSIHigh)
	}
	if cfg.Thresholds.EntropyThreshold == nil || *cfg.Thresholds.EntropyThreshold != 0 {
		t.Errorf("EntropyThreshold = %v, want 0", cfg.Thresholds.EntropyThreshold)
	}
	if cfg.Thresholds.DurationThreshold != nil {
		t.Errorf("DurationThreshold = %v, want nil", cfg.Thresholds.DurationThreshold)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "frequency outside bands",
			body: "scan:\n  frequencies_mhz: [99.0]\n",
			want: "outside the supported bands",
		},
		{
			name: "unknown modulation",
			body: "radio:\n  modulation: qpsk\n",
			want: "radio.modulation",
		},
		{
			name: "entropy threshold out of range",
			body: "thresholds:\n  entropy_threshold: 1.5\n",
			want: "entropy_threshold",
		},
		{
			name: "inverted rssi thresholds",
			body: "thresholds:\n  rssi_high: -100\n  rssi_low: -50\n",
			want: "rssi_high must be above",
		},
		{
			name: "negative scan interval",
			body: "scan:\n  interval_sec: -1\n",
			want: "interval_sec",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %q, want substring %q", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load() succeeded, want error")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error: %v", err)
	}
}
