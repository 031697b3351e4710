package jetstream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"

	"github.com/mculink/mculink/transport"
)

func TestRegister(t *testing.T) {
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "nats-jetstream", caps.Name)
	assert.True(t, caps.SupportsOrdering)
	assert.True(t, caps.SupportsReliableDelivery())
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities()
	assert.Equal(t, transport.NATSJetStreamCapabilities, caps)
	assert.Equal(t, "nats-jetstream", caps.Name)
}

func TestTransportName(t *testing.T) {
	assert.Equal(t, "nats-jetstream", TransportName)
}

func TestConfigWithDefaults(t *testing.T) {
	t.Run("empty config gets defaults", func(t *testing.T) {
		cfg := Config{}.withDefaults()

		assert.Equal(t, nats.DefaultURL, cfg.URL)
		assert.Equal(t, "MCULINK", cfg.StreamName)
		assert.Equal(t, 3, cfg.MaxDeliver)
		assert.Equal(t, 30*time.Second, cfg.AckWait)
	})

	t.Run("explicit values are kept", func(t *testing.T) {
		cfg := Config{
			URL:        "nats://broker:4222",
			StreamName: "ROBOT",
			MaxDeliver: 7,
			AckWait:    time.Minute,
		}.withDefaults()

		assert.Equal(t, "nats://broker:4222", cfg.URL)
		assert.Equal(t, "ROBOT", cfg.StreamName)
		assert.Equal(t, 7, cfg.MaxDeliver)
		assert.Equal(t, time.Minute, cfg.AckWait)
	})
}

func TestSubjectFor(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"out/uptime", "MCULINK.out.uptime"},
		{"in/actuators", "MCULINK.in.actuators"},
		{"plain", "MCULINK.plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, subjectFor("MCULINK", tt.topic))
	}
}

func TestBuild_ConnectError(t *testing.T) {
	originalConnect := ConnectFactory
	defer func() { ConnectFactory = originalConnect }()

	ConnectFactory = func(url string) (*nats.Conn, error) {
		return nil, errors.New("no route to broker")
	}

	cfg := &mockConfig{natsURL: "nats://unreachable:4222"}
	_, err := Build(context.Background(), cfg, watermill.NopLogger{})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no route to broker")
}

func TestOutputGateDelivers(t *testing.T) {
	gate := newOutputGate()
	msg := message.NewMessage(watermill.NewUUID(), []byte("payload"))

	done := make(chan bool, 1)
	go func() {
		done <- gate.deliver(context.Background(), msg)
	}()

	received := <-gate.ch
	assert.Equal(t, msg.UUID, received.UUID)
	assert.True(t, <-done)
}

func TestOutputGateDeliverCancelledContext(t *testing.T) {
	gate := newOutputGate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// No receiver: the delivery must give up on the cancelled context.
	ok := gate.deliver(ctx, message.NewMessage(watermill.NewUUID(), nil))
	assert.False(t, ok)
}

func TestOutputGateDeliverAfterClose(t *testing.T) {
	gate := newOutputGate()
	gate.close()

	ok := gate.deliver(context.Background(), message.NewMessage(watermill.NewUUID(), nil))
	assert.False(t, ok)

	// Closing again is a no-op.
	gate.close()
}

func TestOutputGateCloseDuringBlockedDeliver(t *testing.T) {
	gate := newOutputGate()
	ctx, cancel := context.WithCancel(context.Background())

	// Mirrors shutdown: handlers are blocked delivering with no receiver
	// when the subscription context is cancelled and the gate is closed.
	// Must not panic with a send on the closed channel.
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gate.deliver(ctx, message.NewMessage(watermill.NewUUID(), nil))
		}()
	}

	time.Sleep(10 * time.Millisecond)
	cancel()
	gate.close()
	wg.Wait()

	_, open := <-gate.ch
	assert.False(t, open)
}

type mockConfig struct {
	natsURL string
}

func (m *mockConfig) GetPubSubSystem() string       { return "nats-jetstream" }
func (m *mockConfig) GetKafkaBrokers() []string     { return nil }
func (m *mockConfig) GetKafkaConsumerGroup() string { return "" }
func (m *mockConfig) GetRabbitMQURL() string        { return "" }
func (m *mockConfig) GetNATSURL() string            { return m.natsURL }
func (m *mockConfig) GetHTTPServerAddress() string  { return "" }
func (m *mockConfig) GetHTTPPublisherURL() string   { return "" }
func (m *mockConfig) GetIOFile() string             { return "" }
