// Package mculink bridges a host pub/sub system to an embedded flight
// controller over an unreliable datagram link. Frames on the wire carry a
// 16-bit topic identifier, a 16-bit payload length, and a protobuf-encoded
// payload; the bridge decodes inbound frames into host messages and encodes
// subscribed host messages back into frames for the controller.
//
// Bridge hosts a Watermill router and the UDP link side by side. Inbound
// frames are looked up in a TopicRegistry, decoded, stamped with corrected
// wall-clock time, and published as JSON to the topic's host channel.
// Outbound host channels get a router handler each that encodes the message
// and sends a frame. Uptime frames additionally drive the ClockSynchronizer,
// whose current offset is republished so downstream consumers can convert
// controller uptime into host wall-clock time.
//
// A minimal setup fills Config (or reads it from MCULINK_* environment
// variables), creates a Bridge, and calls Start; see examples/loopback for a
// runnable end-to-end setup.
//
// # Transports
//
// The host side of the bridge supports 7 message transports out of the box:
//   - channel: In-memory Go channels for testing
//   - kafka: High-throughput streaming with consumer groups
//   - rabbitmq: AMQP-based durable queues
//   - nats: High-performance messaging
//   - nats-jetstream: Persistent streams with at-least-once delivery
//   - http: Request/response messaging
//   - io: File-based record and replay
//
// # Middleware
//
// The default middleware chain includes correlation ID injection, structured
// logging, OpenTelemetry tracing, Prometheus metrics, and panic recovery.
// Custom middleware can be added via BridgeDependencies.Middlewares.
//
// When you need more control, BridgeDependencies exposes well-scoped hooks:
// bring your own TopicRegistry with firmware-specific codecs, a prebuilt
// Transport, or a clock source for deterministic tests.
package mculink
