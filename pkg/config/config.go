// Package config loads and validates the YAML configuration file. Fields
// left out of the file get documented defaults; validation fails fast on
// values no component could run with.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/herlein/rfwatch/pkg/bus"
	"github.com/herlein/rfwatch/pkg/codec"
	"github.com/herlein/rfwatch/pkg/registers"
)

// Config is the top-level configuration file.
type Config struct {
	Bus        bus.Config       `yaml:"bus"`
	Radio      RadioConfig      `yaml:"radio"`
	Scan       ScanConfig       `yaml:"scan"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Journal    JournalConfig    `yaml:"journal"`
	Alert      AlertConfig      `yaml:"alert"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Cache      CacheConfig      `yaml:"cache"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RadioConfig selects the modem parameters applied at startup.
type RadioConfig struct {
	DataRateKbps     float64 `yaml:"data_rate_kbps"`
	DeviationKHz     float64 `yaml:"deviation_khz"`
	ChannelBWKHz     float64 `yaml:"channel_bw_khz"`
	Modulation       string  `yaml:"modulation"` // 2fsk, gfsk, ask_ook, 4fsk, msk
	SyncWord         uint16  `yaml:"sync_word"`
	RecalIntervalSec int     `yaml:"recal_interval_sec"`
}

// ScanConfig drives the watch loop's sweep.
type ScanConfig struct {
	FrequenciesMHz []float64 `yaml:"frequencies_mhz"`
	IntervalSec    float64   `yaml:"interval_sec"` // pause between sweep cycles
	WindowSec      float64   `yaml:"window_sec"`   // sampling window override
	CadenceMs      int       `yaml:"cadence_ms"`   // sample cadence override
}

// ThresholdsConfig overrides the detection policy. A nil field keeps the
// engine default; zero is a meaningful value for every field here.
type ThresholdsConfig struct {
	RSSIHigh          *float64 `yaml:"rssi_high"`
	RSSILow           *float64 `yaml:"rssi_low"`
	EntropyThreshold  *float64 `yaml:"entropy_threshold"`
	DurationThreshold *float64 `yaml:"duration_threshold"`
	PatternThreshold  *float64 `yaml:"pattern_threshold"`
}

// JournalConfig controls the on-disk scan journal.
type JournalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	MaxSizeMB     int    `yaml:"max_size_mb"`
	RetentionDays int    `yaml:"retention_days"`
}

// AlertConfig controls webhook alerting. An empty URL disables it.
type AlertConfig struct {
	WebhookURL  string `yaml:"webhook_url"`
	CooldownSec *int   `yaml:"cooldown_sec"` // nil keeps the default throttle
	TimeoutSec  int    `yaml:"timeout_sec"`
}

// MQTTConfig controls the publisher. An empty broker disables it.
type MQTTConfig struct {
	Broker       string `yaml:"broker"`
	TopicPrefix  string `yaml:"topic_prefix"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	TLS          bool   `yaml:"tls"`
	KeepAliveSec int    `yaml:"keepalive_sec"`
	HeartbeatSec int    `yaml:"heartbeat_sec"`
}

// CacheConfig controls the recent-metrics Redis cache. An empty address
// disables it.
type CacheConfig struct {
	RedisAddr  string `yaml:"redis_addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxEntries int    `yaml:"max_entries"`
}

// TelemetryConfig controls the metrics/health HTTP endpoint. An empty
// listen address disables it.
type TelemetryConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// Configuration defaults.
const (
	DefaultScanIntervalSec = 5.0
	DefaultRecalSec        = 300
	DefaultJournalDir      = "journal"
	DefaultJournalSizeMB   = 10
	DefaultRetentionDays   = 7
	DefaultAlertCooldown   = 60
	DefaultAlertTimeout    = 5
	DefaultTopicPrefix     = "rfwatch"
	DefaultKeepAliveSec    = 30
	DefaultHeartbeatSec    = 60
	DefaultCacheEntries    = 100
)

// DefaultFrequenciesMHz is the sweep list used when the file names none:
// the common sub-GHz ISM carriers.
var DefaultFrequenciesMHz = []float64{315.0, 433.92, 868.0, 915.0}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given: simulated
// bus, default sweep, journal and network sinks off.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills omitted fields in place.
func (c *Config) ApplyDefaults() {
	if len(c.Scan.FrequenciesMHz) == 0 {
		c.Scan.FrequenciesMHz = append([]float64(nil), DefaultFrequenciesMHz...)
	}
	if c.Scan.IntervalSec == 0 {
		c.Scan.IntervalSec = DefaultScanIntervalSec
	}
	if c.Radio.Modulation == "" {
		c.Radio.Modulation = "gfsk"
	}
	if c.Radio.RecalIntervalSec == 0 {
		c.Radio.RecalIntervalSec = DefaultRecalSec
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = DefaultJournalDir
	}
	if c.Journal.MaxSizeMB == 0 {
		c.Journal.MaxSizeMB = DefaultJournalSizeMB
	}
	if c.Journal.RetentionDays == 0 {
		c.Journal.RetentionDays = DefaultRetentionDays
	}
	if c.Alert.CooldownSec == nil {
		cooldown := DefaultAlertCooldown
		c.Alert.CooldownSec = &cooldown
	}
	if c.Alert.TimeoutSec == 0 {
		c.Alert.TimeoutSec = DefaultAlertTimeout
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if c.MQTT.KeepAliveSec == 0 {
		c.MQTT.KeepAliveSec = DefaultKeepAliveSec
	}
	if c.MQTT.HeartbeatSec == 0 {
		c.MQTT.HeartbeatSec = DefaultHeartbeatSec
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = DefaultCacheEntries
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate rejects values no component could run with. Range clamping for
// modem parameters is the codec layer's job; this only catches input that
// is structurally wrong.
func (c *Config) Validate() error {
	if len(c.Scan.FrequenciesMHz) == 0 {
		return fmt.Errorf("scan.frequencies_mhz must name at least one frequency")
	}
	for i, f := range c.Scan.FrequenciesMHz {
		if !codec.IsValidFrequency(f) {
			return fmt.Errorf("scan.frequencies_mhz[%d]: %.3f MHz is outside the supported bands", i, f)
		}
	}
	if c.Scan.IntervalSec < 0 {
		return fmt.Errorf("scan.interval_sec must not be negative")
	}
	if c.Scan.WindowSec < 0 {
		return fmt.Errorf("scan.window_sec must not be negative")
	}
	if c.Scan.CadenceMs < 0 {
		return fmt.Errorf("scan.cadence_ms must not be negative")
	}

	if _, err := registers.ParseModulation(c.Radio.Modulation); err != nil {
		return fmt.Errorf("radio.modulation: %w", err)
	}
	if c.Radio.RecalIntervalSec < 0 {
		return fmt.Errorf("radio.recal_interval_sec must not be negative")
	}

	if err := c.Thresholds.validate(); err != nil {
		return err
	}

	if c.Journal.MaxSizeMB < 1 {
		return fmt.Errorf("journal.max_size_mb must be at least 1")
	}
	if c.Journal.RetentionDays < 1 {
		return fmt.Errorf("journal.retention_days must be at least 1")
	}

	if *c.Alert.CooldownSec < 0 {
		return fmt.Errorf("alert.cooldown_sec must not be negative")
	}
	if c.Alert.TimeoutSec < 1 {
		return fmt.Errorf("alert.timeout_sec must be at least 1")
	}

	return nil
}

func (t *ThresholdsConfig) validate() error {
	if t.EntropyThreshold != nil && (*t.EntropyThreshold < 0 || *t.EntropyThreshold > 1) {
		return fmt.Errorf("thresholds.entropy_threshold must be within [0, 1]")
	}
	if t.PatternThreshold != nil && (*t.PatternThreshold < 0 || *t.PatternThreshold > 1) {
		return fmt.Errorf("thresholds.pattern_threshold must be within [0, 1]")
	}
	if t.DurationThreshold != nil && *t.DurationThreshold < 0 {
		return fmt.Errorf("thresholds.duration_threshold must not be negative")
	}
	if t.RSSIHigh != nil && t.RSSILow != nil && *t.RSSIHigh <= *t.RSSILow {
		return fmt.Errorf("thresholds.rssi_high must be above thresholds.rssi_low")
	}
	return nil
}
