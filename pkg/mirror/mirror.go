package mirror

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/itohio/gotmep/pkg/indicator"
	"github.com/itohio/gotmep/pkg/metrics"
)

// DefaultTimeout bounds connecting and each publish.
const DefaultTimeout = 5 * time.Second

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt timeout")

// Config holds MQTT mirror configuration.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // e.g. "gotmep/{device_id}/snapshot"
	Timeout  time.Duration
}

// Mirror republishes snapshot documents to an MQTT broker.
type Mirror struct {
	client    mqtt.Client
	topic     string
	timeout   time.Duration
	indicator indicator.Indicator
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New creates a Mirror with a paho client for cfg. The connection is
// established lazily by the first Publish and kept alive by paho.
func New(cfg Config, ind indicator.Indicator, logger *slog.Logger, m *metrics.Metrics) *Mirror {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("broker", cfg.Broker))

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", slog.Any("error", err))
	})

	return NewWithClient(mqtt.NewClient(opts), cfg, ind, logger, m)
}

// NewWithClient creates a Mirror around an existing client.
func NewWithClient(client mqtt.Client, cfg Config, ind indicator.Indicator, logger *slog.Logger, m *metrics.Metrics) *Mirror {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Mirror{
		client:    client,
		topic:     cfg.Topic,
		timeout:   cfg.Timeout,
		indicator: ind,
		logger:    logger,
		metrics:   m,
	}
}

// Publish sends doc as JSON to the device topic with QoS 1. Failures blink
// the connect failure pattern and are not retried.
func (m *Mirror) Publish(deviceID string, doc any) error {
	if err := m.publish(deviceID, doc); err != nil {
		m.logger.Warn("mirror publish failed", slog.Any("error", err))
		m.indicator.Blink(indicator.ConnectFailure)
		m.metrics.Mirror(metrics.PushConnect)
		return err
	}
	m.metrics.Mirror(metrics.PushOK)
	return nil
}

func (m *Mirror) publish(deviceID string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if !m.client.IsConnected() {
		if err := wait(m.client.Connect(), m.timeout); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
	}

	topic := FormatTopic(m.topic, deviceID)
	if err := wait(m.client.Publish(topic, 1, false, payload), m.timeout); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	m.logger.Debug("snapshot mirrored", slog.String("topic", topic))
	return nil
}

// Close disconnects from the broker.
func (m *Mirror) Close() {
	if m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}

func wait(token mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return token.Error()
}

// FormatTopic replaces the {device_id} placeholder with deviceID.
func FormatTopic(pattern, deviceID string) string {
	return strings.ReplaceAll(pattern, "{device_id}", deviceID)
}
