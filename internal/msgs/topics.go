package msgs

import (
	"github.com/mculink/mculink/internal/frame"
	"github.com/mculink/mculink/internal/jsoncodec"
	"github.com/mculink/mculink/internal/registry"
)

// Wire topic ids. The enumeration is closed per firmware build.
const (
	TopicActuators frame.TopicID = 0x0010
	TopicJoy       frame.TopicID = 0x0020
	TopicStatus    frame.TopicID = 0x0030
	TopicUptime    frame.TopicID = 0x0040
	TopicImu       frame.TopicID = 0x0050
)

// Host channel names. The "in/" prefix flows host to controller, "out/"
// flows controller to host.
const (
	ChannelInActuators  = "in/actuators"
	ChannelInJoy        = "in/joy"
	ChannelInImu        = "in/imu"
	ChannelOutActuators = "out/actuators"
	ChannelOutStatus    = "out/status"
	ChannelOutUptime    = "out/uptime"
	ChannelOutOffset    = "out/clock_offset"
)

func encodeVia[T any](marshal func(*T) ([]byte, error)) func([]byte) ([]byte, error) {
	return func(hostPayload []byte) ([]byte, error) {
		var m T
		if err := jsoncodec.Unmarshal(hostPayload, &m); err != nil {
			return nil, err
		}
		return marshal(&m)
	}
}

func decodeVia[T any](unmarshal func([]byte) (*T, error)) func([]byte) (any, error) {
	return func(payload []byte) (any, error) {
		return unmarshal(payload)
	}
}

// RegisterStandardTopics installs the stock topic catalogue into a registry.
// Adding a topic is a data-only change here; nothing in the dispatch path
// enumerates schemas.
func RegisterStandardTopics(reg *registry.Registry) error {
	entries := []registry.Entry{
		{
			Topic: TopicActuators,
			Codec: registry.Codec{
				Name:             "actuators",
				PublishChannel:   ChannelOutActuators,
				SubscribeChannel: ChannelInActuators,
				Decode:           decodeVia(UnmarshalActuatorsWire),
				Encode:           encodeVia((*Actuators).MarshalWire),
			},
		},
		{
			Topic: TopicJoy,
			Codec: registry.Codec{
				Name:             "joy",
				SubscribeChannel: ChannelInJoy,
				Encode:           encodeVia((*Joy).MarshalWire),
			},
		},
		{
			Topic: TopicStatus,
			Codec: registry.Codec{
				Name:           "status",
				PublishChannel: ChannelOutStatus,
				Decode:         decodeVia(UnmarshalStatusWire),
			},
		},
		{
			Topic: TopicUptime,
			Codec: registry.Codec{
				Name:           "uptime",
				PublishChannel: ChannelOutUptime,
				Decode:         decodeVia(UnmarshalUptimeWire),
			},
		},
		{
			Topic: TopicImu,
			Codec: registry.Codec{
				Name:             "imu",
				SubscribeChannel: ChannelInImu,
				Encode:           encodeVia((*Imu).MarshalWire),
			},
		},
	}

	for _, e := range entries {
		if err := reg.Register(e.Topic, e.Codec); err != nil {
			return err
		}
	}
	return nil
}
