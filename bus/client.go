// Package bus connects to the MQTT broker the tag readers publish on.
package bus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dotside-studios/nfc-juke/buildinfo"
	"github.com/dotside-studios/nfc-juke/logging"
	"github.com/dotside-studios/nfc-juke/metrics"
)

const (
	DefaultPort           = 1883
	DefaultConnectTimeout = 10 * time.Second
	DefaultQueueSize      = 128
)

// ErrQueueFull is returned by Deliver when the consumer has fallen behind.
var ErrQueueFull = errors.New("bus: message queue full")

// Message is one inbound message.
type Message struct {
	Topic    string
	Payload  []byte
	Received time.Time
}

// Config describes the broker connection.
type Config struct {
	Broker         string // host, host:port or a URL such as tcp://host:1883
	Username       string
	Password       string
	Topic          string // reader prefix, e.g. rfid/reader01
	ClientID       string
	QoS            byte
	ConnectTimeout time.Duration
	QueueSize      int
}

// BrokerURL normalizes Config.Broker to a paho broker URL.
func (c Config) BrokerURL() string {
	if strings.Contains(c.Broker, "://") {
		return c.Broker
	}
	if _, _, err := net.SplitHostPort(c.Broker); err == nil {
		return "tcp://" + c.Broker
	}
	return "tcp://" + net.JoinHostPort(c.Broker, strconv.Itoa(DefaultPort))
}

// Client subscribes below the reader prefix and queues messages for a single
// consumer. It resubscribes after automatic reconnects.
type Client struct {
	cfg      Config
	client   mqtt.Client
	messages chan Message
	logger   zerolog.Logger
}

// New creates a client. Nothing is sent until Connect.
func New(cfg Config) *Client {
	if cfg.ClientID == "" {
		cfg.ClientID = buildinfo.Name + "-" + uuid.NewString()[:8]
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	c := &Client{
		cfg:      cfg,
		messages: make(chan Message, cfg.QueueSize),
		logger:   logging.WithComponent("mqtt"),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)
	c.client = mqtt.NewClient(opts)
	return c
}

// Messages is the queue of inbound messages.
func (c *Client) Messages() <-chan Message {
	return c.messages
}

// Connect opens the connection and waits for the broker to accept it.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.wait(ctx, c.client.Connect()); err != nil {
		return &ConnectionError{Broker: c.cfg.BrokerURL(), Op: "connect", Err: err}
	}
	c.logger.Info().Str("broker", c.cfg.BrokerURL()).Msg("connected to broker")
	return nil
}

// Subscribe subscribes to everything below the reader prefix.
func (c *Client) Subscribe(ctx context.Context) error {
	filter := Filter(c.cfg.Topic)
	if err := c.wait(ctx, c.client.Subscribe(filter, c.cfg.QoS, c.handle)); err != nil {
		return &ConnectionError{Broker: c.cfg.BrokerURL(), Op: "subscribe", Err: err}
	}
	c.logger.Info().Str("filter", filter).Msg("subscribed")
	return nil
}

// Publish sends payload to prefix/sub.
func (c *Client) Publish(ctx context.Context, sub string, payload []byte) error {
	topic := Join(c.cfg.Topic, sub)
	if err := c.wait(ctx, c.client.Publish(topic, c.cfg.QoS, false, payload)); err != nil {
		return &ConnectionError{Broker: c.cfg.BrokerURL(), Op: "publish", Err: err}
	}
	return nil
}

// Deliver queues a message for the consumer without blocking. It is used by
// the subscription handler and by locally injected events.
func (c *Client) Deliver(m Message) error {
	if m.Received.IsZero() {
		m.Received = time.Now()
	}
	select {
	case c.messages <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close disconnects, letting in-flight work finish for up to 250ms.
func (c *Client) Close() {
	if c.client.IsConnected() {
		c.client.Disconnect(250)
	}
	metrics.SetBusConnected(false)
	c.logger.Info().Msg("disconnected from broker")
}

func (c *Client) handle(_ mqtt.Client, m mqtt.Message) {
	payload := append([]byte(nil), m.Payload()...)
	c.logger.Info().
		Str("topic", m.Topic()).
		Bytes("payload", payload).
		Msg("message received")

	if err := c.Deliver(Message{Topic: m.Topic(), Payload: payload}); err != nil {
		c.logger.Warn().Err(err).Str("topic", m.Topic()).Msg("dropping message")
	}
}

func (c *Client) onConnect(client mqtt.Client) {
	metrics.SetBusConnected(true)
	// Restores the subscription after automatic reconnects.
	tok := client.Subscribe(Filter(c.cfg.Topic), c.cfg.QoS, c.handle)
	go func() {
		if tok.WaitTimeout(c.cfg.ConnectTimeout) && tok.Error() != nil {
			c.logger.Error().Err(tok.Error()).Msg("resubscribe failed")
		}
	}()
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	metrics.SetBusConnected(false)
	c.logger.Warn().Err(err).Msg("connection to broker lost, reconnecting")
}

func (c *Client) wait(ctx context.Context, tok mqtt.Token) error {
	timer := time.NewTimer(c.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", c.cfg.ConnectTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
