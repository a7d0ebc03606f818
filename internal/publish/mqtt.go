package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/muurk/ubxrelay/internal/logging"
	"github.com/muurk/ubxrelay/internal/protocol"
	"github.com/muurk/ubxrelay/internal/relay"
)

// Defaults applied by Config.withDefaults
const (
	DefaultTopicPrefix    = "ubxrelay"
	DefaultClientID       = "ubxrelay"
	DefaultConnectTimeout = 10 * time.Second
	DefaultPublishTimeout = 5 * time.Second
)

// ErrNotConnected is reported for records published while the broker is
// unreachable.
var ErrNotConnected = errors.New("mqtt: not connected")

// Config holds the MQTT publisher configuration
type Config struct {
	Broker         string // tcp://host:1883
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	Retain         bool
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = DefaultPublishTimeout
	}
	return c
}

// Publisher is the part of mqtt.Client the sink uses
type Publisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Observer receives the outcome of every publish. metrics.Collector
// implements it.
type Observer interface {
	Published(err error)
}

type nopObserver struct{}

func (nopObserver) Published(error) {}

// MQTTSink publishes every decoded record as JSON to
// <prefix>/<message>, e.g. ubxrelay/nav-sol. It implements relay.RecordSink.
//
// Display never waits for the broker: acknowledgements are collected in
// the background and reported to the Observer.
type MQTTSink struct {
	client   Publisher
	config   Config
	observer Observer
	now      func() time.Time

	mu      sync.Mutex
	seq     int
	pending sync.WaitGroup
}

// Connect dials the broker and returns a sink publishing to it
func Connect(config Config, observer Observer) (*MQTTSink, error) {
	config = config.withDefaults()
	if config.Broker == "" {
		return nil, errors.New("mqtt: broker address is required")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(config.Broker).
		SetClientID(config.ClientID).
		SetConnectTimeout(config.ConnectTimeout).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logging.Warn("MQTT connection lost",
				zap.String("broker", config.Broker),
				zap.Error(err),
			)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			logging.Info("MQTT connected", zap.String("broker", config.Broker))
		})
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(config.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt: timed out connecting to %s", config.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: failed to connect to %s: %w", config.Broker, err)
	}

	return NewMQTTSink(client, config, observer), nil
}

// NewMQTTSink wraps an existing client. A nil observer is allowed.
func NewMQTTSink(client Publisher, config Config, observer Observer) *MQTTSink {
	if observer == nil {
		observer = nopObserver{}
	}
	return &MQTTSink{
		client:   client,
		config:   config.withDefaults(),
		observer: observer,
		now:      time.Now,
	}
}

// Topic returns the topic a message is published on
func (s *MQTTSink) Topic(msg protocol.Message) string {
	name := strings.ToLower(protocol.MessageName(msg.Class(), msg.ID()))
	return strings.TrimSuffix(s.config.TopicPrefix, "/") + "/" + name
}

// Display publishes msg
func (s *MQTTSink) Display(msg protocol.Message) {
	if !s.client.IsConnected() {
		s.observer.Published(ErrNotConnected)
		return
	}

	s.mu.Lock()
	s.seq++
	entry := relay.RecordEntry{
		Timestamp: s.now(),
		Sequence:  s.seq,
		Message:   protocol.MessageName(msg.Class(), msg.ID()),
		Class:     msg.Class(),
		ID:        msg.ID(),
		ITOW:      msg.TimeOfWeek(),
		Record:    msg,
	}
	s.mu.Unlock()

	payload, err := json.Marshal(entry)
	if err != nil {
		logging.Error("Failed to marshal record", zap.String("message", entry.Message), zap.Error(err))
		s.observer.Published(err)
		return
	}

	topic := s.Topic(msg)
	token := s.client.Publish(topic, s.config.QoS, s.config.Retain, payload)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.observer.Published(s.wait(topic, token))
	}()
}

func (s *MQTTSink) wait(topic string, token mqtt.Token) error {
	if !token.WaitTimeout(s.config.PublishTimeout) {
		logging.Warn("MQTT publish timed out", zap.String("topic", topic))
		return fmt.Errorf("mqtt: publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		logging.Warn("MQTT publish failed", zap.String("topic", topic), zap.Error(err))
		return err
	}
	return nil
}

// Close waits for outstanding publishes and disconnects from the broker
func (s *MQTTSink) Close() error {
	s.pending.Wait()
	s.client.Disconnect(250)
	return nil
}
