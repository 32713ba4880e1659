// Package publish mirrors scan metrics, anomalies and a liveness heartbeat
// onto MQTT topics. The publisher is optional: New returns a nil Publisher
// when no broker is configured, and every method treats a nil receiver as
// publishing switched off.
package publish

import (
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/herlein/rfwatch/pkg/anomaly"
	"github.com/herlein/rfwatch/pkg/logging"
	"github.com/herlein/rfwatch/pkg/signal"
)

const (
	connectTimeout       = 10 * time.Second
	connectRetryInterval = 10 * time.Second
	pingTimeout          = 10 * time.Second
	disconnectQuiesceMs  = 250
)

// Config controls the MQTT connection and topic layout.
type Config struct {
	Broker      string
	TopicPrefix string
	Username    string
	Password    string
	TLS         bool
	KeepAlive   time.Duration
	Heartbeat   time.Duration
}

// StatusReport is the heartbeat payload published to <prefix>/status.
type StatusReport struct {
	Time       time.Time `json:"time"`
	UptimeSec  float64   `json:"uptime_sec"`
	CPUPercent float64   `json:"cpu_percent"`
	RSSBytes   uint64    `json:"rss_bytes"`
	Goroutines int       `json:"goroutines"`
}

type anomalyMessage struct {
	Kind       string             `json:"kind"`
	Confidence float64            `json:"confidence"`
	Details    map[string]float64 `json:"details,omitempty"`
	Frequency  float64            `json:"frequency"`
	RSSI       float64            `json:"rssi"`
	Time       time.Time          `json:"time"`
}

// Publisher owns one MQTT client and the heartbeat goroutine.
type Publisher struct {
	client  mqtt.Client
	cfg     Config
	log     logging.Logger
	started time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

func generateClientID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "rfwatch_" + hex.EncodeToString(b)
}

// New connects to the broker in cfg and starts the heartbeat when one is
// configured. An unreachable broker does not fail construction: the client
// keeps retrying in the background and publishes resume once it connects.
func New(cfg Config, log logging.Logger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, nil
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "rfwatch"
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	if log == nil {
		log = logging.Noop()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(generateClientID())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(connectRetryInterval)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetPingTimeout(pingTimeout)
	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{})
	}
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("mqtt connected", logging.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", logging.Err(err))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warn("mqtt broker not reachable yet, retrying in background",
			logging.String("broker", cfg.Broker))
	} else if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	p := &Publisher{
		client:  client,
		cfg:     cfg,
		log:     log,
		started: time.Now(),
		stop:    make(chan struct{}),
	}
	if cfg.Heartbeat > 0 {
		p.wg.Add(1)
		go p.heartbeatLoop()
	}
	return p, nil
}

// PublishMetrics mirrors one scan result to <prefix>/metrics at QoS 0.
func (p *Publisher) PublishMetrics(m signal.Metrics) error {
	if p == nil {
		return nil
	}
	return p.publish(p.cfg.TopicPrefix+"/metrics", 0, m)
}

// PublishAnomaly mirrors one anomaly to <prefix>/anomalies at QoS 1.
func (p *Publisher) PublishAnomaly(a anomaly.Anomaly, m signal.Metrics) error {
	if p == nil {
		return nil
	}
	msg := anomalyMessage{
		Kind:       string(a.Kind),
		Confidence: a.Confidence,
		Details:    a.Details,
		Frequency:  m.Frequency,
		RSSI:       m.RSSI,
		Time:       m.Timestamp,
	}
	return p.publish(p.cfg.TopicPrefix+"/anomalies", 1, msg)
}

// Close stops the heartbeat and disconnects from the broker. Safe on a nil
// Publisher.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	close(p.stop)
	p.wg.Wait()
	if p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiesceMs)
	}
}

// publish drops the message when the broker is away; the mirror is
// advisory and the journal keeps the durable copy.
func (p *Publisher) publish(topic string, qos byte, payload any) error {
	if !p.client.IsConnected() {
		p.log.Debug("mqtt not connected, dropping message", logging.String("topic", topic))
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
	}
	token := p.client.Publish(topic, qos, false, data)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}
	return nil
}

func (p *Publisher) heartbeatLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Heartbeat)
	defer ticker.Stop()

	proc, _ := process.NewProcess(int32(os.Getpid()))

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			if err := p.publish(p.cfg.TopicPrefix+"/status", 0, p.statusReport(proc)); err != nil {
				p.log.Warn("failed to publish status", logging.Err(err))
			}
		}
	}
}

func (p *Publisher) statusReport(proc *process.Process) StatusReport {
	rep := StatusReport{
		Time:       time.Now().UTC(),
		UptimeSec:  time.Since(p.started).Seconds(),
		Goroutines: runtime.NumGoroutine(),
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		rep.CPUPercent = pct[0]
	}
	if proc != nil {
		if mi, err := proc.MemoryInfo(); err == nil {
			rep.RSSBytes = mi.RSS
		}
	}
	return rep
}
