// rfscan surveys a set of sub-GHz frequencies once and reports what it
// hears on each.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/herlein/rfwatch/pkg/anomaly"
	"github.com/herlein/rfwatch/pkg/bus"
	"github.com/herlein/rfwatch/pkg/codec"
	"github.com/herlein/rfwatch/pkg/config"
	"github.com/herlein/rfwatch/pkg/driver"
	"github.com/herlein/rfwatch/pkg/logging"
	"github.com/herlein/rfwatch/pkg/registers"
	"github.com/herlein/rfwatch/pkg/sampler"
	"github.com/herlein/rfwatch/pkg/signal"
)

var (
	configPath = flag.String("config", "", "Path to YAML configuration file")
	freqList   = flag.String("freqs", "", "Comma-separated frequencies in MHz (overrides config)")
	window     = flag.Duration("window", 0, "Sampling window per frequency (default 1s)")
	simulate   = flag.Bool("simulate", false, "Force the simulated radio backend")
	jsonOut    = flag.Bool("json", false, "Emit JSON instead of the table")
	verbose    = flag.Bool("v", false, "Log radio activity to stderr")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "One-shot sub-GHz site survey\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -freqs 433.92,868,915          # survey three carriers\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -simulate -json                # smoke-test without hardware\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -config rfwatch.yaml -window 2s\n", os.Args[0])
	}
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type surveyRow struct {
	Metrics   signal.Metrics    `json:"metrics"`
	Anomalies []anomaly.Anomaly `json:"anomalies,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func run() error {
	cfg, freqs, err := surveyConfig()
	if err != nil {
		return err
	}

	log := logging.Noop()
	if *verbose {
		log = logging.New(logging.Config{Level: "debug", Format: "text"})
	}

	b, err := bus.Open(cfg.Bus)
	if err != nil {
		return fmt.Errorf("failed to open bus: %w", err)
	}
	defer b.Close()

	mod, err := registers.ParseModulation(cfg.Radio.Modulation)
	if err != nil {
		return fmt.Errorf("radio.modulation: %w", err)
	}
	dc := driver.DefaultConfig()
	dc.FrequencyMHz = freqs[0]
	dc.Modulation = mod
	if cfg.Radio.DataRateKbps > 0 {
		dc.DataRateKbps = cfg.Radio.DataRateKbps
	}
	if cfg.Radio.DeviationKHz > 0 {
		dc.DeviationKHz = cfg.Radio.DeviationKHz
	}
	if cfg.Radio.ChannelBWKHz > 0 {
		dc.ChannelBWKHz = cfg.Radio.ChannelBWKHz
	}

	drv, err := driver.New(b, dc, log)
	if err != nil {
		return fmt.Errorf("failed to initialize radio: %w", err)
	}
	defer drv.SetPowerMode(driver.PowerSleep)

	var sc sampler.Config
	if *window > 0 {
		sc.WindowDuration = *window
	} else if cfg.Scan.WindowSec > 0 {
		sc.WindowDuration = time.Duration(cfg.Scan.WindowSec * float64(time.Second))
	}
	smp := sampler.New(drv, sc, log)

	th := thresholds(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if !*jsonOut {
		fmt.Printf("Surveying %d frequencies...\n\n", len(freqs))
	}

	rows := make([]surveyRow, 0, len(freqs))
	for _, freq := range freqs {
		if ctx.Err() != nil {
			break
		}
		// A fresh engine per frequency: the hop to the next carrier is
		// not a frequency shift.
		eng := anomaly.New(th, log)

		m, err := smp.ScanFrequency(ctx, freq)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			rows = append(rows, surveyRow{
				Metrics: signal.Metrics{Frequency: freq},
				Error:   err.Error(),
			})
			continue
		}
		rows = append(rows, surveyRow{
			Metrics:   m,
			Anomalies: eng.DetectAnomalies(m),
		})
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	printTable(rows)
	return nil
}

func printTable(rows []surveyRow) {
	fmt.Println(" Freq (MHz) | RSSI (dBm) | LQI | CRC | Quality | Entropy | Anomalies")
	fmt.Println("------------+------------+-----+-----+---------+---------+----------")
	for _, row := range rows {
		if row.Error != "" {
			fmt.Printf(" %10.3f | scan failed: %s\n", row.Metrics.Frequency, row.Error)
			continue
		}
		crc := "ok"
		if !row.Metrics.CRCOK {
			crc = "--"
		}
		fmt.Printf(" %10.3f | %10.1f | %3d | %3s | %7.2f | %7.2f | %s\n",
			row.Metrics.Frequency, row.Metrics.RSSI, row.Metrics.LQI, crc,
			row.Metrics.SignalQuality, row.Metrics.Entropy,
			renderAnomalies(row.Anomalies))
	}
}

func renderAnomalies(as []anomaly.Anomaly) string {
	if len(as) == 0 {
		return "-"
	}
	parts := make([]string, len(as))
	for i, a := range as {
		parts[i] = fmt.Sprintf("%s(%.2f)", a.Kind, a.Confidence)
	}
	return strings.Join(parts, ", ")
}

func surveyConfig() (*config.Config, []float64, error) {
	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}
	if *simulate {
		cfg.Bus.Type = "sim"
	}

	freqs := cfg.Scan.FrequenciesMHz
	if *freqList != "" {
		parsed, err := parseFrequencies(*freqList)
		if err != nil {
			return nil, nil, err
		}
		freqs = parsed
	}
	return cfg, freqs, nil
}

func parseFrequencies(list string) ([]float64, error) {
	parts := strings.Split(list, ",")
	freqs := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid frequency %q", p)
		}
		if !codec.IsValidFrequency(f) {
			return nil, fmt.Errorf("%.3f MHz is outside the supported bands", f)
		}
		freqs = append(freqs, f)
	}
	return freqs, nil
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
