// Package bridge wires the controller link into a Watermill router. Inbound
// frames become host messages on out/ channels; host messages on in/ channels
// become frames on the link. All runtime failures on either path are absorbed
// and reported, never propagated into the transport loop.
package bridge

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mculink/mculink/internal/clock"
	configpkg "github.com/mculink/mculink/internal/config"
	errspkg "github.com/mculink/mculink/internal/errors"
	"github.com/mculink/mculink/internal/frame"
	"github.com/mculink/mculink/internal/jsoncodec"
	"github.com/mculink/mculink/internal/link"
	loggingpkg "github.com/mculink/mculink/internal/logging"
	"github.com/mculink/mculink/internal/metrics"
	"github.com/mculink/mculink/internal/msgs"
	"github.com/mculink/mculink/internal/registry"
	transportpkg "github.com/mculink/mculink/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// Dependencies holds the optional collaborators a Bridge can use. Leave
// fields nil/zero for the defaults.
type Dependencies struct {
	// Registry overrides the topic catalogue. Defaults to the standard
	// catalogue from msgs.RegisterStandardTopics.
	Registry *registry.Registry

	// Transport supplies a prebuilt host pub/sub pair, bypassing the
	// transport registry lookup driven by Config.PubSubSystem.
	Transport *transportpkg.Transport

	// Middlewares are appended after the default middleware chain.
	Middlewares []MiddlewareRegistration

	// DisableDefaultMiddlewares skips registering the default chain.
	DisableDefaultMiddlewares bool

	// UptimeTopic identifies the frame topic that drives clock
	// synchronisation. Defaults to msgs.TopicUptime.
	UptimeTopic frame.TopicID

	// OffsetChannel is the host channel receiving freshly computed clock
	// offsets. Defaults to msgs.ChannelOutOffset.
	OffsetChannel string

	// Now overrides the wall-clock source. Tests only.
	Now func() time.Time

	// PromRegisterer receives the link counters when metrics are enabled.
	// Defaults to the Prometheus default registerer.
	PromRegisterer prometheus.Registerer
}

// Bridge owns the link, the topic registry, the clock synchronizer, and the
// Watermill router that carries the host side.
type Bridge struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router

	registry *registry.Registry
	clock    *clock.Synchronizer
	link     *link.Link
	metrics  *metrics.LinkMetrics

	uptimeTopic   frame.TopicID
	offsetChannel string
	now           func() time.Time
	promReg       prometheus.Registerer
}

// New constructs a Bridge for the supplied configuration. The topic table is
// frozen after this returns; a duplicate topic registration or invalid config
// fails here, before any I/O begins.
func New(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps Dependencies) (*Bridge, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("mculink: invalid config: %w", err)
	}

	log.Info("Creating bridge", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"link_host":     conf.LinkHost,
		"link_port":     conf.LinkPort,
	})

	reg := deps.Registry
	if reg == nil {
		reg = registry.New()
		if err := msgs.RegisterStandardTopics(reg); err != nil {
			return nil, err
		}
	}

	b := &Bridge{
		Conf:          conf,
		Logger:        log,
		registry:      reg,
		clock:         clock.NewSynchronizer(),
		uptimeTopic:   deps.UptimeTopic,
		offsetChannel: deps.OffsetChannel,
		now:           deps.Now,
	}
	if b.uptimeTopic == 0 {
		b.uptimeTopic = msgs.TopicUptime
	}
	if b.offsetChannel == "" {
		b.offsetChannel = msgs.ChannelOutOffset
	}
	if b.now == nil {
		b.now = time.Now
	}
	b.promReg = deps.PromRegisterer
	if b.promReg == nil {
		b.promReg = prometheus.DefaultRegisterer
	}
	if conf.MetricsEnabled {
		b.metrics = metrics.NewLinkMetrics(b.promReg)
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)

	if deps.Transport != nil {
		b.publisher = deps.Transport.Publisher
		b.subscriber = deps.Transport.Subscriber
	} else {
		tr, err := transportpkg.Build(ctx, conf, wmLogger)
		if err != nil {
			return nil, fmt.Errorf("mculink: build host transport: %w", err)
		}
		b.publisher = tr.Publisher
		b.subscriber = tr.Subscriber
	}

	l, err := link.New(conf.LinkHost, conf.LinkPort, b.onInboundFrame, link.Options{
		Codec:     frame.NewCodec(frame.Limits{MaxPayloadBytes: conf.MaxPayload}),
		PollSlice: conf.PollSlice,
		Logger:    log,
		Metrics:   b.metrics,
	})
	if err != nil {
		return nil, err
	}
	b.link = l

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		_ = l.Close()
		return nil, err
	}
	b.router = router
	b.router.AddPlugin(plugin.SignalsHandler)

	if err := b.registerConfiguredMiddlewares(deps); err != nil {
		_ = l.Close()
		return nil, err
	}
	if err := b.registerOutboundHandlers(); err != nil {
		_ = l.Close()
		return nil, err
	}

	return b, nil
}

// registerOutboundHandlers adds one router handler per topic with a
// subscribing host channel.
func (b *Bridge) registerOutboundHandlers() error {
	for _, entry := range b.registry.Entries() {
		if entry.Codec.SubscribeChannel == "" {
			continue
		}
		entry := entry
		b.router.AddNoPublisherHandler(
			fmt.Sprintf("mculink-send-%s", entry.Codec.Name),
			entry.Codec.SubscribeChannel,
			b.subscriber,
			func(msg *message.Message) error {
				b.onOutbound(entry, msg)
				return nil
			},
		)
	}
	return nil
}

// Start runs the link receive loop and the host router until the context is
// cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	b.link.Start(ctx)
	b.startMetricsServer()
	return routerRun(b.router, ctx)
}

// Running is closed once the router has started all handlers.
func (b *Bridge) Running() chan struct{} {
	return b.router.Running()
}

// Close tears down the router and then the link. The link close blocks until
// the receive goroutine has returned, so no dispatch callback runs after
// Close returns.
func (b *Bridge) Close() error {
	routerErr := b.router.Close()
	linkErr := b.link.Close()
	if routerErr != nil {
		return routerErr
	}
	return linkErr
}

// Link exposes the frame transport for callers that want to send raw frames.
func (b *Bridge) Link() *link.Link {
	return b.link
}

// Publisher exposes the host-side publisher, for feeding outbound channels
// or consuming bridge output from application code.
func (b *Bridge) Publisher() message.Publisher {
	return b.publisher
}

// Subscriber exposes the host-side subscriber.
func (b *Bridge) Subscriber() message.Subscriber {
	return b.subscriber
}

// ClockOffset reports the most recently observed controller clock offset.
func (b *Bridge) ClockOffset() clock.Offset {
	return b.clock.Offset()
}

// onInboundFrame is the link dispatch callback: registry lookup, payload
// decode, stamp correction, host publish. Every failure is absorbed here.
func (b *Bridge) onInboundFrame(f frame.Frame) {
	codec, ok := b.registry.Lookup(f.Topic)
	if !ok || codec.PublishChannel == "" {
		// Peer may run a newer schema than this build. Drop and move on.
		b.metrics.FrameDropped(metrics.DropUnknownTopic)
		b.Logger.Debug("dropping frame for unknown topic", loggingpkg.LogFields{"topic": f.Topic.String()})
		return
	}

	value, err := codec.Decode(f.Payload)
	if err != nil {
		b.metrics.FrameDropped(metrics.DropDecodeFailed)
		b.Logger.Error("dropping undecodable frame", err, loggingpkg.LogFields{
			"topic":   codec.Name,
			"payload": len(f.Payload),
		})
		return
	}

	b.metrics.FrameReceived(codec.Name)

	if f.Topic == b.uptimeTopic {
		if uptime, ok := value.(*msgs.Uptime); ok {
			b.onUptime(codec, uptime)
			return
		}
	}

	if carrier, ok := value.(msgs.HeaderCarrier); ok {
		if h := carrier.WireHeader(); h != nil && h.Stamp != nil {
			corrected := b.clock.Correct(*h.Stamp)
			h.Stamp = &corrected
		}
	}

	b.publish(codec.PublishChannel, codec.Name, value)
}

// onUptime feeds the clock path: a fresh offset is observed against the local
// wall clock, then the corrected uptime and the new offset are published on
// their own host channels.
func (b *Bridge) onUptime(codec registry.Codec, uptime *msgs.Uptime) {
	offset := b.clock.Observe(uptime.Stamp, clock.StampFromTime(b.now()))
	corrected := b.clock.Correct(uptime.Stamp)

	b.publish(codec.PublishChannel, codec.Name, &msgs.Uptime{Stamp: corrected})
	b.publish(b.offsetChannel, "clock_offset", offset)
}

func (b *Bridge) publish(channel, schema string, value any) {
	payload, err := jsoncodec.Marshal(value)
	if err != nil {
		b.Logger.Error("failed to marshal host payload", err, loggingpkg.LogFields{"channel": channel})
		return
	}

	msg := NewHostMessage(payload, nil)
	msg.Metadata[MetadataKeySchema] = schema

	if err := b.publisher.Publish(channel, msg); err != nil {
		b.Logger.Error("failed to publish host message", err, loggingpkg.LogFields{"channel": channel})
	}
}

// onOutbound encodes a host message and transmits it on the link. Encode and
// send failures are reported and dropped; the datagram link is best effort
// and higher-rate topics self-heal on their next publish.
func (b *Bridge) onOutbound(entry registry.Entry, msg *message.Message) {
	wire, err := entry.Codec.Encode(msg.Payload)
	if err != nil {
		b.metrics.FrameDropped(metrics.DropEncodeFailed)
		b.Logger.Error("failed to encode outbound message", err, loggingpkg.LogFields{
			"topic":        entry.Codec.Name,
			"message_uuid": msg.UUID,
		})
		return
	}

	if err := b.link.Send(entry.Topic, wire); err != nil {
		b.Logger.Error("failed to send frame", err, loggingpkg.LogFields{
			"topic":        entry.Codec.Name,
			"message_uuid": msg.UUID,
		})
		return
	}

	b.metrics.FrameSent(entry.Codec.Name)
}

func (b *Bridge) startMetricsServer() {
	if !b.Conf.MetricsEnabled || b.Conf.MetricsPort <= 0 {
		return
	}

	addr := fmt.Sprintf(":%d", b.Conf.MetricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	b.Logger.Info("Starting metrics server", loggingpkg.LogFields{"address": addr})
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			b.Logger.Error("Failed to start metrics server", err, loggingpkg.LogFields{"address": addr})
		}
	}()
}
