package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"airdash/internal/config"
	"airdash/internal/modules/airquality/feed"
	"airdash/internal/modules/airquality/types"
)

// connectRetryInterval spaces connection attempts while the broker is
// unreachable.
var connectRetryInterval = 5 * time.Second

// RecordHandler receives each valid channel update.
type RecordHandler func(record types.Record) error

// MQTTSubscriber is what feature modules need to attach a handler.
type MQTTSubscriber interface {
	SetMessageHandler(handler RecordHandler)
}

// Subscriber listens on a ThingSpeak channel subscribe topic. Each message
// is one feed entry in the same JSON shape as the REST feed.
type Subscriber struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool
	handler   RecordHandler

	stopCh   chan struct{}
	stopOnce sync.Once
}

// SetMessageHandler replaces the handler called for each valid entry.
func (s *Subscriber) SetMessageHandler(handler RecordHandler) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

func NewSubscriber(cfg config.Config, logger *slog.Logger) (*Subscriber, error) {
	if cfg.MQTTBroker == "" {
		return nil, errors.New("mqtt broker is not configured")
	}
	if cfg.MQTTTopic == "" {
		return nil, errors.New("mqtt topic is not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Subscriber{
		cfg:    cfg,
		logger: logger.With("component", "mqtt"),
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(cfg.MQTTClientID)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(connectRetryInterval)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.setConnected(true)
		s.logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		// Clean sessions lose subscriptions on reconnect.
		go func() {
			if err := s.subscribe(); err != nil {
				s.logger.Error("mqtt resubscribe failed", "error", err)
			}
		}()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		s.logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s, nil
}

// brokerURL accepts a bare host or a full URL (tcp://, ssl://, ws://).
func brokerURL(cfg config.Config) string {
	if strings.Contains(cfg.MQTTBroker, "://") {
		return cfg.MQTTBroker
	}
	scheme := "tcp"
	if cfg.MQTTPort == 8883 {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.MQTTBroker, cfg.MQTTPort)
}

// Connect dials the broker and waits until the first connection attempt
// resolves or ctx ends. When ctx ends first the client keeps retrying in the
// background until Disconnect. The subscription is made by the connect
// handler.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return errors.New("subscriber stopped")
	default:
	}
	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

	const poll = 200 * time.Millisecond
	for !token.WaitTimeout(poll) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return errors.New("subscriber stopped")
		default:
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (s *Subscriber) subscribe() error {
	topic := s.cfg.MQTTTopic
	qos := byte(0)

	token := s.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	record, err := feed.DecodeEntry(payload)
	if err != nil {
		s.logger.Warn("failed to parse channel update",
			"topic", topic,
			"error", err,
			"payload", string(payload),
		)
		return
	}
	if err := validateRecord(record); err != nil {
		s.logger.Warn("invalid channel update",
			"topic", topic,
			"entry_id", record.EntryID,
			"error", err,
		)
		return
	}

	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()
	if handler == nil {
		return
	}
	if err := handler(record); err != nil {
		s.logger.Error("message handler failed",
			"topic", topic,
			"entry_id", record.EntryID,
			"error", err,
		)
		return
	}
	s.logger.Debug("processed channel update", "entry_id", record.EntryID, "created_at", record.CreatedAt)
}

func validateRecord(r types.Record) error {
	if r.CreatedAt.IsZero() {
		return errors.New("created_at is required")
	}
	for _, f := range types.Fields {
		if _, ok := r.Value(f); ok {
			return nil
		}
	}
	return errors.New("at least one field value is required")
}

// IsConnected returns whether the client is connected.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the MQTT connection. Safe to
// call more than once.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.MQTTTopic)
		token.WaitTimeout(2 * time.Second)
	}
	if s.client != nil {
		s.client.Disconnect(250)
	}

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
