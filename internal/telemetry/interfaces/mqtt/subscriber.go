package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"fleet-telemetry/internal/config"
	masterdata "fleet-telemetry/internal/masterdata/domain"
	"fleet-telemetry/internal/observability/metrics"
	telemetry "fleet-telemetry/internal/telemetry/domain"
)

const (
	connectTimeout    = 10 * time.Second
	subscribeTimeout  = 5 * time.Second
	disconnectQuiesce = 250
	handleTimeout     = 5 * time.Second

	readingsSuffix = "readings"
)

// Ingester stores one reading addressed by external device id.
type Ingester interface {
	Ingest(ctx context.Context, draft telemetry.Draft) (*telemetry.Reading, error)
}

// Subscriber feeds device readings published on MQTT into the ingest pipeline.
// Topics follow <prefix>/<external_id>/readings.
type Subscriber struct {
	client   paho.Client
	cfg      config.MQTTConfig
	ingester Ingester
	logger   *zap.Logger
}

// NewSubscriber builds a subscriber with an auto-reconnecting paho client.
func NewSubscriber(cfg config.MQTTConfig, ingester Ingester, logger *zap.Logger) (*Subscriber, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker address cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("fleet-telemetry-%d", time.Now().Unix())
	}
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Error("mqtt connection lost", zap.Error(err))
	})
	opts.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
		logger.Info("mqtt reconnecting", zap.String("broker", cfg.Broker))
	})
	return newSubscriber(paho.NewClient(opts), cfg, ingester, logger)
}

func newSubscriber(client paho.Client, cfg config.MQTTConfig, ingester Ingester, logger *zap.Logger) (*Subscriber, error) {
	if client == nil {
		return nil, errors.New("mqtt: nil client")
	}
	if ingester == nil {
		return nil, errors.New("mqtt: nil ingester")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{client: client, cfg: cfg, ingester: ingester, logger: logger}, nil
}

// Start connects and subscribes to every configured topic. A topic that fails
// to subscribe is logged and skipped.
func (s *Subscriber) Start() error {
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return errors.New("mqtt: connect timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connect: %w", err)
	}
	s.logger.Info("mqtt connected", zap.String("broker", s.cfg.Broker))

	for _, topic := range s.cfg.Topics {
		if err := s.subscribe(topic); err != nil {
			s.logger.Warn("mqtt subscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}
	return nil
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop() {
	s.client.Disconnect(disconnectQuiesce)
	s.logger.Info("mqtt disconnected")
}

func (s *Subscriber) subscribe(topic string) error {
	token := s.client.Subscribe(topic, byte(s.cfg.QoS), func(_ paho.Client, msg paho.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		_ = s.HandleMessage(ctx, msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("mqtt: subscription to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return err
	}
	s.logger.Info("mqtt subscribed", zap.String("topic", topic))
	return nil
}

// HandleMessage decodes one payload and ingests it. The device id in the body
// wins; the topic segment is used when the body omits it.
func (s *Subscriber) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveIngest("mqtt", result, time.Since(start))
	}()

	var draft telemetry.Draft
	if err := json.Unmarshal(payload, &draft); err != nil {
		result = metrics.ResultError
		metrics.IncIngestError("decode")
		s.logger.Warn("mqtt payload rejected", zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("mqtt: decode payload: %w", err)
	}
	if draft.DeviceID == "" {
		draft.DeviceID = DeviceIDFromTopic(topic)
	}
	if draft.DeviceID == "" {
		result = metrics.ResultError
		metrics.IncIngestError("no_device")
		s.logger.Warn("mqtt message without device id", zap.String("topic", topic))
		return errors.New("mqtt: no device id in payload or topic")
	}
	if _, err := s.ingester.Ingest(ctx, draft); err != nil {
		result = metrics.ResultError
		if errors.Is(err, masterdata.ErrDeviceNotFound) {
			s.logger.Warn("mqtt reading from unregistered device", zap.String("device_id", draft.DeviceID))
		} else {
			s.logger.Error("mqtt ingest failed", zap.String("device_id", draft.DeviceID), zap.Error(err))
		}
		return err
	}
	s.logger.Debug("mqtt reading stored", zap.String("device_id", draft.DeviceID))
	return nil
}

// DeviceIDFromTopic extracts the external id from <prefix>/<external_id>/readings.
func DeviceIDFromTopic(topic string) string {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) < 2 || parts[len(parts)-1] != readingsSuffix {
		return ""
	}
	return parts[len(parts)-2]
}
