// Package jetstream provides a NATS JetStream transport with at-least-once
// delivery. Unlike the core NATS transport, bridged traffic survives a host
// process restart: messages are persisted in a stream and redelivered until
// acknowledged.
package jetstream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	"github.com/mculink/mculink/internal/jsoncodec"
	"github.com/mculink/mculink/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats-jetstream"

// Config holds JetStream-specific settings.
type Config struct {
	// URL is the NATS server URL.
	URL string

	// StreamName is the JetStream stream holding bridged messages.
	StreamName string

	// MaxDeliver caps redelivery attempts per message.
	MaxDeliver int

	// AckWait is how long JetStream waits for an ack before redelivering.
	AckWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.StreamName == "" {
		c.StreamName = "MCULINK"
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = 3
	}
	if c.AckWait <= 0 {
		c.AckWait = 30 * time.Second
	}
	return c
}

// ConnectFactory allows overriding the NATS connection for testing.
var ConnectFactory = func(url string) (*nats.Conn, error) {
	return nats.Connect(url)
}

func init() {
	Register()
}

// Register registers the JetStream transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSJetStreamCapabilities)
}

// Build creates a new JetStream transport from the shared bridge config.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return BuildWithConfig(ctx, Config{URL: cfg.GetNATSURL()}, logger)
}

// BuildWithConfig creates a new JetStream transport with explicit settings.
func BuildWithConfig(ctx context.Context, jsCfg Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	jsCfg = jsCfg.withDefaults()

	nc, err := ConnectFactory(jsCfg.URL)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("jetstream: connect %s: %w", jsCfg.URL, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return transport.Transport{}, fmt.Errorf("jetstream: context: %w", err)
	}

	if err := ensureStream(js, jsCfg); err != nil {
		nc.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  &Publisher{conn: nc, js: js, cfg: jsCfg, logger: logger},
		Subscriber: &Subscriber{conn: nc, js: js, cfg: jsCfg, logger: logger},
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSJetStreamCapabilities
}

func ensureStream(js nats.JetStreamContext, cfg Config) error {
	_, err := js.StreamInfo(cfg.StreamName)
	if err == nil {
		return nil
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{cfg.StreamName + ".>"},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("jetstream: create stream %s: %w", cfg.StreamName, err)
	}
	return nil
}

// subjectFor maps a bridge channel like "out/actuators" onto a JetStream
// subject under the stream prefix. Slashes are not legal in NATS subjects.
func subjectFor(streamName, topic string) string {
	return streamName + "." + strings.ReplaceAll(topic, "/", ".")
}

// NATS canonicalizes header keys MIME-style, so metadata travels as one JSON
// blob rather than per-key headers to preserve key casing.
const (
	headerUUID     = "mculink-uuid"
	headerMetadata = "mculink-metadata"
)

// Publisher publishes messages to a JetStream stream.
type Publisher struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	cfg    Config
	logger watermill.LoggerAdapter
}

// Publish persists messages into the stream, one per bridge channel subject.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	subject := subjectFor(p.cfg.StreamName, topic)

	for _, msg := range messages {
		natsMsg := nats.NewMsg(subject)
		natsMsg.Data = msg.Payload
		natsMsg.Header.Set(headerUUID, msg.UUID)
		if len(msg.Metadata) > 0 {
			md, err := jsoncodec.Marshal(msg.Metadata)
			if err != nil {
				return fmt.Errorf("jetstream: marshal metadata: %w", err)
			}
			natsMsg.Header.Set(headerMetadata, string(md))
		}

		if _, err := p.js.PublishMsg(natsMsg); err != nil {
			return fmt.Errorf("jetstream: publish %s: %w", subject, err)
		}
	}
	return nil
}

// Close closes the underlying NATS connection.
func (p *Publisher) Close() error {
	p.conn.Close()
	return nil
}

// Subscriber consumes messages from a JetStream stream.
type Subscriber struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	cfg    Config
	logger watermill.LoggerAdapter
}

// outputGate serialises handler deliveries with channel teardown so a late
// delivery can never send on a closed channel.
type outputGate struct {
	mu     sync.Mutex
	closed bool
	ch     chan *message.Message
}

func newOutputGate() *outputGate {
	return &outputGate{ch: make(chan *message.Message)}
}

// deliver forwards msg on the output channel. It reports false when the gate
// is already closed or the context was cancelled before a receiver took the
// message.
func (g *outputGate) deliver(ctx context.Context, msg *message.Message) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	select {
	case g.ch <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// close marks the gate closed and closes the channel. The gate lock is held
// across both, so close never interleaves with a blocked deliver: a deliver
// in flight exits through its cancelled context and releases the lock first.
func (g *outputGate) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	close(g.ch)
}

// Subscribe creates a durable consumer for the topic's subject and streams
// its messages until ctx is cancelled.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	subject := subjectFor(s.cfg.StreamName, topic)
	durable := "mculink-" + strings.ReplaceAll(topic, "/", "-")
	gate := newOutputGate()

	sub, err := s.js.Subscribe(subject, func(natsMsg *nats.Msg) {
		msg := message.NewMessage(natsMsg.Header.Get(headerUUID), natsMsg.Data)
		if msg.UUID == "" {
			msg = message.NewMessage(watermill.NewUUID(), natsMsg.Data)
		}
		if raw := natsMsg.Header.Get(headerMetadata); raw != "" {
			md := map[string]string{}
			if err := jsoncodec.Unmarshal([]byte(raw), &md); err == nil {
				for k, v := range md {
					msg.Metadata[k] = v
				}
			} else {
				s.logger.Error("Failed to unmarshal message metadata", err, nil)
			}
		}

		if !gate.deliver(ctx, msg) {
			natsMsg.Nak()
			return
		}

		select {
		case <-msg.Acked():
			natsMsg.Ack()
		case <-msg.Nacked():
			natsMsg.Nak()
		case <-ctx.Done():
			natsMsg.Nak()
		}
	},
		nats.Durable(durable),
		nats.ManualAck(),
		nats.AckWait(s.cfg.AckWait),
		nats.MaxDeliver(s.cfg.MaxDeliver),
	)
	if err != nil {
		gate.close()
		return nil, fmt.Errorf("jetstream: subscribe %s: %w", subject, err)
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
		gate.close()
	}()

	return gate.ch, nil
}

// Close closes the underlying NATS connection.
func (s *Subscriber) Close() error {
	s.conn.Close()
	return nil
}
