// Package alert posts anomaly notifications to a webhook. Repeats of the
// same anomaly kind inside the cooldown window are suppressed, and a
// failed delivery is dropped rather than queued.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/herlein/rfwatch/pkg/anomaly"
	"github.com/herlein/rfwatch/pkg/logging"
	"github.com/herlein/rfwatch/pkg/signal"
)

// DefaultTimeout bounds a single webhook request.
const DefaultTimeout = 5 * time.Second

// Config controls webhook delivery. A zero Cooldown delivers every
// anomaly; a zero Timeout falls back to DefaultTimeout.
type Config struct {
	WebhookURL string
	Cooldown   time.Duration
	Timeout    time.Duration
}

// Notifier delivers anomalies to the configured webhook. Safe for
// concurrent use.
type Notifier struct {
	cfg    Config
	log    logging.Logger
	client *http.Client

	mu         sync.Mutex
	lastSent   map[anomaly.Kind]time.Time
	suppressed uint64
}

// New builds a Notifier for cfg.
func New(cfg Config, log logging.Logger) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Notifier{
		cfg:      cfg,
		log:      log,
		client:   &http.Client{Timeout: cfg.Timeout},
		lastSent: make(map[anomaly.Kind]time.Time),
	}
}

type payload struct {
	Message    string             `json:"message"`
	Kind       string             `json:"kind"`
	Confidence float64            `json:"confidence"`
	Frequency  float64            `json:"frequency"`
	Details    map[string]float64 `json:"details,omitempty"`
	Time       time.Time          `json:"time"`
}

// Notify renders and posts one anomaly. It reports whether a request went
// out; false with a nil error means the cooldown suppressed it. The
// cooldown throttles attempts, not successes, so a dead webhook does not
// get hammered once per anomaly.
func (n *Notifier) Notify(ctx context.Context, a anomaly.Anomaly, m signal.Metrics) (bool, error) {
	now := time.Now()

	n.mu.Lock()
	if last, ok := n.lastSent[a.Kind]; ok && n.cfg.Cooldown > 0 && now.Sub(last) < n.cfg.Cooldown {
		n.suppressed++
		n.mu.Unlock()
		n.log.Debug("alert suppressed by cooldown", logging.String("kind", string(a.Kind)))
		return false, nil
	}
	n.lastSent[a.Kind] = now
	n.mu.Unlock()

	body := payload{
		Message:    renderMessage(a, m),
		Kind:       string(a.Kind),
		Confidence: a.Confidence,
		Frequency:  m.Frequency,
		Details:    a.Details,
		Time:       m.Timestamp,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewBuffer(data))
	if err != nil {
		return false, fmt.Errorf("failed to create alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to deliver alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return true, nil
}

// Suppressed returns how many deliveries the cooldown has swallowed.
func (n *Notifier) Suppressed() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.suppressed
}

func renderMessage(a anomaly.Anomaly, m signal.Metrics) string {
	label := strings.ReplaceAll(string(a.Kind), "_", " ")
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	return fmt.Sprintf("%s at %.3f MHz (confidence %.2f)", label, m.Frequency, a.Confidence)
}
