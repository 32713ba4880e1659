// Package cache keeps the most recent scan results and anomalies in Redis
// lists for other tools to read. The cache is advisory: when Redis is not
// configured or goes away, the watch loop runs unaffected.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/herlein/rfwatch/pkg/anomaly"
	"github.com/herlein/rfwatch/pkg/signal"
)

const (
	metricsKey   = "rfwatch:metrics"
	anomaliesKey = "rfwatch:anomalies"

	pingTimeout = 5 * time.Second
)

// Config controls the Redis connection and list bounds.
type Config struct {
	Addr       string
	Password   string
	DB         int
	MaxEntries int
}

// AnomalyEntry is one cached anomaly with its scan context.
type AnomalyEntry struct {
	Kind       string             `json:"kind"`
	Confidence float64            `json:"confidence"`
	Details    map[string]float64 `json:"details,omitempty"`
	Frequency  float64            `json:"frequency"`
	Time       time.Time          `json:"time"`
}

// Cache is a bounded Redis mirror of recent activity. A nil Cache is a
// valid no-op, which is what New returns when no address is configured.
type Cache struct {
	client *redis.Client
	max    int64
}

// New connects to Redis and verifies the connection with a ping.
func New(cfg Config) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 100
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client, max: int64(cfg.MaxEntries)}, nil
}

// PushMetrics prepends one scan result to the metrics list and trims the
// list to the configured cap.
func (c *Cache) PushMetrics(ctx context.Context, m signal.Metrics) error {
	if c == nil {
		return nil
	}
	return c.push(ctx, metricsKey, m)
}

// PushAnomaly prepends one anomaly to the anomalies list.
func (c *Cache) PushAnomaly(ctx context.Context, a anomaly.Anomaly, m signal.Metrics) error {
	if c == nil {
		return nil
	}
	return c.push(ctx, anomaliesKey, newAnomalyEntry(a, m))
}

// RecentMetrics returns up to n cached scan results, newest first.
// Entries that no longer parse are skipped.
func (c *Cache) RecentMetrics(ctx context.Context, n int) ([]signal.Metrics, error) {
	if c == nil || n <= 0 {
		return nil, nil
	}
	vals, err := c.client.LRange(ctx, metricsKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics cache: %w", err)
	}

	out := make([]signal.Metrics, 0, len(vals))
	for _, v := range vals {
		var m signal.Metrics
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// RecentAnomalies returns up to n cached anomalies, newest first.
func (c *Cache) RecentAnomalies(ctx context.Context, n int) ([]AnomalyEntry, error) {
	if c == nil || n <= 0 {
		return nil, nil
	}
	vals, err := c.client.LRange(ctx, anomaliesKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read anomaly cache: %w", err)
	}

	out := make([]AnomalyEntry, 0, len(vals))
	for _, v := range vals {
		var e AnomalyEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Ping reports whether Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis connection. Safe on a nil Cache.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Cache) push(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, c.max-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

func newAnomalyEntry(a anomaly.Anomaly, m signal.Metrics) AnomalyEntry {
	return AnomalyEntry{
		Kind:       string(a.Kind),
		Confidence: a.Confidence,
		Details:    a.Details,
		Frequency:  m.Frequency,
		Time:       m.Timestamp,
	}
}
