package mculink

import (
	bridgepkg "github.com/mculink/mculink/internal/bridge"
	clockpkg "github.com/mculink/mculink/internal/clock"
	configpkg "github.com/mculink/mculink/internal/config"
	errspkg "github.com/mculink/mculink/internal/errors"
	framepkg "github.com/mculink/mculink/internal/frame"
	idspkg "github.com/mculink/mculink/internal/ids"
	jsoncodec "github.com/mculink/mculink/internal/jsoncodec"
	linkpkg "github.com/mculink/mculink/internal/link"
	loggingpkg "github.com/mculink/mculink/internal/logging"
	metadatapkg "github.com/mculink/mculink/internal/metadata"
	metricspkg "github.com/mculink/mculink/internal/metrics"
	msgspkg "github.com/mculink/mculink/internal/msgs"
	registrypkg "github.com/mculink/mculink/internal/registry"
	transportpkg "github.com/mculink/mculink/transport"
)

type (
	Config             = configpkg.Config
	Bridge             = bridgepkg.Bridge
	BridgeDependencies = bridgepkg.Dependencies

	// Framing and the device link
	TopicID      = framepkg.TopicID
	Frame        = framepkg.Frame
	FrameCodec   = framepkg.Codec
	FrameLimits  = framepkg.Limits
	Link         = linkpkg.Link
	LinkOptions  = linkpkg.Options
	FrameHandler = linkpkg.Handler

	// Topic registry
	TopicCodec    = registrypkg.Codec
	TopicEntry    = registrypkg.Entry
	TopicRegistry = registrypkg.Registry

	// Clock synchronization
	Stamp             = clockpkg.Stamp
	ClockOffset       = clockpkg.Offset
	ClockSynchronizer = clockpkg.Synchronizer

	// Device message schemas
	Header    = msgspkg.Header
	Actuators = msgspkg.Actuators
	Joy       = msgspkg.Joy
	Status    = msgspkg.Status
	Uptime    = msgspkg.Uptime
	Imu       = msgspkg.Imu
	Vec3      = msgspkg.Vec3

	MiddlewareBuilder      = bridgepkg.MiddlewareBuilder
	MiddlewareRegistration = bridgepkg.MiddlewareRegistration

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	LinkMetrics = metricspkg.LinkMetrics

	ConfigValidationError = errspkg.ConfigValidationError

	// Transport capabilities
	Transport             = transportpkg.Transport
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
)

var (
	NewBridge      = bridgepkg.New
	NewConfig      = configpkg.New
	ConfigFromEnv  = configpkg.FromEnv
	ValidateConfig = configpkg.ValidateConfig

	NewFrameCodec          = framepkg.NewCodec
	DefaultFrameLimits     = framepkg.DefaultLimits
	NewLink                = linkpkg.New
	NewTopicRegistry       = registrypkg.New
	RegisterStandardTopics = msgspkg.RegisterStandardTopics
	NewClockSynchronizer   = clockpkg.NewSynchronizer
	StampFromTime          = clockpkg.StampFromTime

	NewLinkMetrics = metricspkg.NewLinkMetrics

	DefaultMiddlewares      = bridgepkg.DefaultMiddlewares
	CorrelationIDMiddleware = bridgepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = bridgepkg.LogMessagesMiddleware
	TracerMiddleware        = bridgepkg.TracerMiddleware
	MetricsMiddleware       = bridgepkg.MetricsMiddleware
	RecovererMiddleware     = bridgepkg.RecovererMiddleware

	NewHostMessage = bridgepkg.NewHostMessage

	// Modular transport registry.
	// Import individual transports via: _ "github.com/mculink/mculink/transport/kafka"
	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build
	GetCapabilities          = transportpkg.GetCapabilities

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrShortBuffer     = errspkg.ErrShortBuffer
	ErrPayloadTooLarge = errspkg.ErrPayloadTooLarge
	ErrTopicUnknown    = errspkg.ErrTopicUnknown
	ErrDecodeFailed    = errspkg.ErrDecodeFailed
	ErrSendFailed      = errspkg.ErrSendFailed
	ErrReceiveFailed   = errspkg.ErrReceiveFailed
	ErrDuplicateTopic  = errspkg.ErrDuplicateTopic
	ErrLinkClosed      = errspkg.ErrLinkClosed
	ErrConfigRequired  = errspkg.ErrConfigRequired
	ErrLoggerRequired  = errspkg.ErrLoggerRequired

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

// Standard topic IDs carried on the device link. These match the firmware's
// TinyFrame type identifiers and must not change without a firmware release.
const (
	TopicActuators = msgspkg.TopicActuators
	TopicJoy       = msgspkg.TopicJoy
	TopicStatus    = msgspkg.TopicStatus
	TopicUptime    = msgspkg.TopicUptime
	TopicImu       = msgspkg.TopicImu
)

// Host pub/sub channels the bridge publishes to and subscribes from.
const (
	ChannelInActuators  = msgspkg.ChannelInActuators
	ChannelInJoy        = msgspkg.ChannelInJoy
	ChannelInImu        = msgspkg.ChannelInImu
	ChannelOutActuators = msgspkg.ChannelOutActuators
	ChannelOutStatus    = msgspkg.ChannelOutStatus
	ChannelOutUptime    = msgspkg.ChannelOutUptime
	ChannelOutOffset    = msgspkg.ChannelOutOffset
)

// Metadata keys - use these constants for standard metadata fields.
const (
	MetadataKeyCorrelationID = bridgepkg.MetadataKeyCorrelationID
	MetadataKeySchema        = bridgepkg.MetadataKeySchema
)
