package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/imbesat-rizvi/imperio/internal/errkind"
	"github.com/imbesat-rizvi/imperio/internal/metrics"
)

// MQTTConfig contains MQTT publisher configuration
type MQTTConfig struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	Language       string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	Phrases        []string
}

// BatchMessage is the JSON payload published for every batch
type BatchMessage struct {
	ID        string    `json:"id"`
	Texts     []string  `json:"texts"`
	Reset     bool      `json:"reset"`
	Language  string    `json:"language,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TopicBatch is the topic every batch is published to
func TopicBatch(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/speech/batch"
}

// TopicUtterance receives the batches that close an utterance
func TopicUtterance(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/speech/utterance"
}

// mqttClient is the subset of paho.Client the publisher uses
type mqttClient interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// MQTTPublisher is a Processor that publishes batches to an MQTT broker
type MQTTPublisher struct {
	cfg     MQTTConfig
	client  mqttClient
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewMQTTPublisher creates a publisher for cfg. Call Connect before use.
func NewMQTTPublisher(cfg MQTTConfig, logger *slog.Logger, m *metrics.Metrics) (*MQTTPublisher, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("mqtt broker URL is required: %w", errkind.ErrConfiguration)
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d: %w", cfg.QoS, errkind.ErrConfiguration)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "imperio-" + uuid.NewString()[:8]
	}

	logger = logger.With("component", "mqtt")

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Error("MQTT connection lost", slog.String("error", err.Error()))
	})
	opts.SetOnConnectHandler(func(_ paho.Client) {
		logger.Info("MQTT connected", slog.String("broker", cfg.BrokerURL))
	})

	return newMQTTPublisher(cfg, paho.NewClient(opts), logger, m), nil
}

func newMQTTPublisher(cfg MQTTConfig, client mqttClient, logger *slog.Logger, m *metrics.Metrics) *MQTTPublisher {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &MQTTPublisher{
		cfg:     cfg,
		client:  client,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Connect connects to the broker. With connect retry enabled the client keeps
// retrying in the background if the first attempt times out.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	if err := p.wait(ctx, p.client.Connect(), p.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w: %w", p.cfg.BrokerURL, errkind.ErrNetwork, err)
	}
	return nil
}

// Process implements Processor
func (p *MQTTPublisher) Process(ctx context.Context, texts []string, reset bool) error {
	payload, err := json.Marshal(BatchMessage{
		ID:        uuid.NewString(),
		Texts:     texts,
		Reset:     reset,
		Language:  p.cfg.Language,
		Timestamp: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	topics := []string{TopicBatch(p.cfg.TopicPrefix)}
	if reset {
		topics = append(topics, TopicUtterance(p.cfg.TopicPrefix))
	}

	for _, topic := range topics {
		err := p.wait(ctx, p.client.Publish(topic, p.cfg.QoS, false, payload), p.cfg.PublishTimeout)
		p.metrics.RecordPublish(err)
		if err != nil {
			return fmt.Errorf("mqtt publish to %s: %w: %w", topic, errkind.ErrNetwork, err)
		}
	}

	p.logger.Debug("Batch published",
		slog.Int("items", len(texts)),
		slog.Bool("reset", reset),
	)
	return nil
}

// Phrases implements PhraseProvider
func (p *MQTTPublisher) Phrases() []string {
	return p.cfg.Phrases
}

// Close disconnects from the broker
func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

func (p *MQTTPublisher) wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
