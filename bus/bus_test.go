package bus

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotside-studios/nfc-juke/logging"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestMatch(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"rfid/reader01/#", "rfid/reader01/tag", true},
		{"rfid/reader01/#", "rfid/reader01/button1", true},
		{"rfid/reader01/#", "rfid/reader01", true},
		{"rfid/reader01/#", "rfid/reader02/tag", false},
		{"rfid/reader01/tag", "rfid/reader01/tag", true},
		{"rfid/reader01/tag", "rfid/reader01/tag/extra", false},
		{"rfid/reader01/tag", "rfid/reader01", false},
		{"rfid/+/tag", "rfid/reader07/tag", true},
		{"rfid/+/tag", "rfid/reader07/button1", false},
		{"#", "anything/at/all", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Match(tt.filter, tt.topic), "Match(%q, %q)", tt.filter, tt.topic)
	}
}

func TestTopicHelpers(t *testing.T) {
	assert.Equal(t, "rfid/reader01/#", Filter("rfid/reader01"))
	assert.Equal(t, "rfid/reader01/#", Filter("rfid/reader01/"))
	assert.Equal(t, "rfid/reader01/tag", Join("rfid/reader01", TagTopic))
	assert.True(t, HasWildcard("rfid/+"))
	assert.False(t, HasWildcard("rfid/reader01"))
}

func TestBrokerURL(t *testing.T) {
	assert.Equal(t, "tcp://homeassistant:1883", Config{Broker: "homeassistant"}.BrokerURL())
	assert.Equal(t, "tcp://10.0.0.2:1884", Config{Broker: "10.0.0.2:1884"}.BrokerURL())
	assert.Equal(t, "ssl://broker:8883", Config{Broker: "ssl://broker:8883"}.BrokerURL())
}

func TestHandleQueuesCopy(t *testing.T) {
	c := New(Config{Broker: "localhost", Topic: "rfid/reader01", QueueSize: 1})

	payload := []byte("04-a1-b2")
	c.handle(nil, fakeMessage{topic: "rfid/reader01/tag", payload: payload})
	payload[0] = 'x'

	// Queue is full: the second message is dropped, not blocked on.
	c.handle(nil, fakeMessage{topic: "rfid/reader01/tag", payload: []byte("other")})

	select {
	case m := <-c.Messages():
		assert.Equal(t, "rfid/reader01/tag", m.Topic)
		assert.Equal(t, []byte("04-a1-b2"), m.Payload)
		assert.False(t, m.Received.IsZero())
	default:
		t.Fatal("no message queued")
	}
	select {
	case m := <-c.Messages():
		t.Fatalf("unexpected message %q", m.Payload)
	default:
	}
}

func TestHandleLogsReceiptAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logging.Configure(logging.Config{Level: "info", Output: &buf})
	t.Cleanup(func() { logging.Configure(logging.Config{}) })

	c := New(Config{Broker: "localhost", Topic: "rfid/reader01"})
	c.handle(nil, fakeMessage{topic: "rfid/reader01/status", payload: []byte("online")})

	assert.Contains(t, buf.String(), "message received")
	assert.Contains(t, buf.String(), "rfid/reader01/status")
}

func TestDeliverQueueFull(t *testing.T) {
	c := New(Config{Broker: "localhost", Topic: "t", QueueSize: 1})
	require.NoError(t, c.Deliver(Message{Topic: "t/tag", Payload: []byte("a")}))
	assert.ErrorIs(t, c.Deliver(Message{Topic: "t/tag", Payload: []byte("b")}), ErrQueueFull)
}

func TestClientIDIsUnique(t *testing.T) {
	a := New(Config{Broker: "localhost"})
	b := New(Config{Broker: "localhost"})
	assert.NotEqual(t, a.cfg.ClientID, b.cfg.ClientID)
	assert.Contains(t, a.cfg.ClientID, "nfc-juke-")
}

func TestConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := New(Config{Broker: addr, Topic: "rfid/reader01", ConnectTimeout: 2 * time.Second})
	err = c.Connect(context.Background())
	require.Error(t, err)

	var ce *ConnectionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "connect", ce.Op)
	assert.Equal(t, "tcp://"+addr, ce.Broker)
}
