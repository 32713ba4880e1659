// rfwatch watches a set of sub-GHz frequencies through a CC1101 and raises
// anomalies on what it hears.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/herlein/rfwatch/pkg/alert"
	"github.com/herlein/rfwatch/pkg/anomaly"
	"github.com/herlein/rfwatch/pkg/bus"
	"github.com/herlein/rfwatch/pkg/cache"
	"github.com/herlein/rfwatch/pkg/config"
	"github.com/herlein/rfwatch/pkg/driver"
	"github.com/herlein/rfwatch/pkg/journal"
	"github.com/herlein/rfwatch/pkg/logging"
	"github.com/herlein/rfwatch/pkg/publish"
	"github.com/herlein/rfwatch/pkg/registers"
	"github.com/herlein/rfwatch/pkg/sampler"
	"github.com/herlein/rfwatch/pkg/telemetry"
	"github.com/herlein/rfwatch/pkg/watch"
)

var (
	configPath  = flag.String("config", "", "Path to YAML configuration file")
	logLevel    = flag.String("log-level", "", "Override log level (debug, info, warn, error)")
	logFormat   = flag.String("log-format", "", "Override log format (text or json)")
	simulate    = flag.Bool("simulate", false, "Force the simulated radio backend")
	checkConfig = flag.Bool("check-config", false, "Validate the configuration and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Sub-GHz spectrum watcher for the CC1101\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -config rfwatch.yaml               # watch with hardware\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -simulate -log-level debug         # watch the simulated band\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -config rfwatch.yaml -check-config # validate and exit\n", os.Args[0])
	}
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if *checkConfig {
		fmt.Printf("Configuration OK: %d frequencies, %s bus\n",
			len(cfg.Scan.FrequenciesMHz), busName(cfg.Bus.Type))
		return nil
	}

	log := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	log.Info("starting rfwatch",
		logging.String("bus", busName(cfg.Bus.Type)),
		logging.Int("frequencies", len(cfg.Scan.FrequenciesMHz)),
		logging.Float64("interval_sec", cfg.Scan.IntervalSec))

	// Radio stack, torn down in reverse: sleep the chip before the bus goes.
	b, err := bus.Open(cfg.Bus)
	if err != nil {
		return fmt.Errorf("failed to open bus: %w", err)
	}
	defer b.Close()

	drvCfg, err := driverConfig(cfg)
	if err != nil {
		return err
	}
	drv, err := driver.New(b, drvCfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize radio: %w", err)
	}
	defer func() {
		if err := drv.SetPowerMode(driver.PowerSleep); err != nil {
			log.Warn("failed to power the radio down", logging.Err(err))
		}
	}()

	smp := sampler.New(drv, samplerConfig(cfg), log)

	metrics := telemetry.New(prometheus.DefaultRegisterer)
	drv.SetCalibrationHook(func() { metrics.Calibrations.Inc() })

	// One engine per frequency keeps detection histories independent.
	th := thresholds(cfg)
	newEngine := func() watch.Detector {
		e := anomaly.New(th, log)
		e.SetFailureHook(func(anomaly.Kind, error) { metrics.DetectorFailures.Inc() })
		return e
	}

	var jnl *journal.Journal
	if cfg.Journal.Enabled {
		jnl, err = journal.Open(journal.Config{
			Dir:           cfg.Journal.Dir,
			MaxSizeBytes:  int64(cfg.Journal.MaxSizeMB) << 20,
			RetentionDays: cfg.Journal.RetentionDays,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer jnl.Close()
	}

	pub, err := publish.New(publish.Config{
		Broker:      cfg.MQTT.Broker,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TLS:         cfg.MQTT.TLS,
		KeepAlive:   time.Duration(cfg.MQTT.KeepAliveSec) * time.Second,
		Heartbeat:   time.Duration(cfg.MQTT.HeartbeatSec) * time.Second,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to connect to mqtt broker: %w", err)
	}
	defer pub.Close()

	// The cache is advisory: if Redis is down at startup, run without it.
	recent, err := cache.New(cache.Config{
		Addr:       cfg.Cache.RedisAddr,
		Password:   cfg.Cache.Password,
		DB:         cfg.Cache.DB,
		MaxEntries: cfg.Cache.MaxEntries,
	})
	if err != nil {
		log.Warn("redis unavailable, running without the recent cache", logging.Err(err))
		recent = nil
	}
	defer recent.Close()

	var alerts *alert.Notifier
	if cfg.Alert.WebhookURL != "" {
		alerts = alert.New(alert.Config{
			WebhookURL: cfg.Alert.WebhookURL,
			Cooldown:   time.Duration(*cfg.Alert.CooldownSec) * time.Second,
			Timeout:    time.Duration(cfg.Alert.TimeoutSec) * time.Second,
		}, log)
	}

	if cfg.Telemetry.Listen != "" {
		shutdown := serveTelemetry(cfg.Telemetry.Listen, recent, log)
		defer shutdown()
	}

	watcher := watch.New(watch.Config{
		Frequencies:  cfg.Scan.FrequenciesMHz,
		ScanInterval: time.Duration(cfg.Scan.IntervalSec * float64(time.Second)),
	}, smp, newEngine, watch.Sinks{
		Journal:   jnl,
		Alerts:    alerts,
		Publisher: pub,
		Cache:     recent,
		Telemetry: metrics,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("shutdown signal received", logging.String("signal", sig.String()))
		cancel()
	}()

	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("scan loop stopped")
	return nil
}

// loadConfig reads the file named by -config, or the built-in defaults when
// none is given, then applies the flag overrides.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if *simulate {
		cfg.Bus.Type = "sim"
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	return cfg, nil
}

func busName(busType string) string {
	if busType == "" {
		return "sim"
	}
	return busType
}

func driverConfig(cfg *config.Config) (driver.Config, error) {
	mod, err := registers.ParseModulation(cfg.Radio.Modulation)
	if err != nil {
		return driver.Config{}, fmt.Errorf("radio.modulation: %w", err)
	}

	dc := driver.DefaultConfig()
	dc.FrequencyMHz = cfg.Scan.FrequenciesMHz[0]
	dc.Modulation = mod
	dc.RecalInterval = time.Duration(cfg.Radio.RecalIntervalSec) * time.Second
	if cfg.Radio.DataRateKbps > 0 {
		dc.DataRateKbps = cfg.Radio.DataRateKbps
	}
	if cfg.Radio.DeviationKHz > 0 {
		dc.DeviationKHz = cfg.Radio.DeviationKHz
	}
	if cfg.Radio.ChannelBWKHz > 0 {
		dc.ChannelBWKHz = cfg.Radio.ChannelBWKHz
	}
	if cfg.Radio.SyncWord != 0 {
		dc.SyncWord = cfg.Radio.SyncWord
	}
	return dc, nil
}

func samplerConfig(cfg *config.Config) sampler.Config {
	var sc sampler.Config
	if cfg.Scan.WindowSec > 0 {
		sc.WindowDuration = time.Duration(cfg.Scan.WindowSec * float64(time.Second))
	}
	if cfg.Scan.CadenceMs > 0 {
		sc.SampleInterval = time.Duration(cfg.Scan.CadenceMs) * time.Millisecond
	}
	return sc
}

func thresholds(cfg *config.Config) anomaly.Thresholds {
	th := anomaly.DefaultThresholds()
	if v := cfg.Thresholds.RSSIHigh; v != nil {
		th.RSSIHigh = *v
	}
	if v := cfg.Thresholds.RSSILow; v != nil {
		th.RSSILow = *v
	}
	if v := cfg.Thresholds.EntropyThreshold; v != nil {
		th.EntropyThreshold = *v
	}
	if v := cfg.Thresholds.DurationThreshold; v != nil {
		th.DurationThreshold = *v
	}
	if v := cfg.Thresholds.PatternThreshold; v != nil {
		th.PatternThreshold = *v
	}
	return th
}

// serveTelemetry starts the metrics/health endpoint and returns its
// shutdown func.
func serveTelemetry(addr string, recent *cache.Cache, log logging.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler(prometheus.DefaultGatherer))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if err := recent.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["cache"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("telemetry endpoint listening", logging.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("telemetry endpoint failed", logging.Err(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("telemetry endpoint shutdown failed", logging.Err(err))
		}
	}
}
