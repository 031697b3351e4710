// Package frame implements the datagram framing shared with the controller
// firmware: a fixed header of topic id and payload length followed by the
// payload bytes. The encoding is self-delimiting so concatenated frames in a
// single receive buffer can be split apart without relying on datagram
// boundaries.
package frame

import (
	"encoding/binary"
	"fmt"

	errspkg "github.com/mculink/mculink/internal/errors"
)

// HeaderLen is the fixed wire header size: topic id and payload length,
// both big-endian uint16.
const HeaderLen = 4

// DefaultMaxPayload bounds payload allocation against corrupted length
// fields. Must match the firmware's frame buffer size.
const DefaultMaxPayload = 4096

// MaxWirePayload is the largest payload the wire format can carry: the
// length field is a uint16, so anything above this would encode a truncated
// length.
const MaxWirePayload = 65535

// TopicID identifies a payload schema. The enumeration is closed per firmware
// build; unknown ids received from a newer peer are dropped, not fatal.
type TopicID uint16

func (t TopicID) String() string {
	return fmt.Sprintf("0x%04x", uint16(t))
}

// Frame is one complete wire message.
type Frame struct {
	Topic   TopicID
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes int
}

// DefaultLimits returns the limits matching the stock firmware build.
func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: DefaultMaxPayload}
}

// Codec encodes and decodes frames under a fixed set of limits. It carries no
// other state and is safe for concurrent use.
type Codec struct {
	limits Limits
}

// NewCodec returns a codec using the supplied limits. Non-positive limits
// fall back to the defaults; limits above the wire format's uint16 length
// ceiling are clamped to MaxWirePayload.
func NewCodec(limits Limits) *Codec {
	if limits.MaxPayloadBytes <= 0 {
		limits = DefaultLimits()
	}
	if limits.MaxPayloadBytes > MaxWirePayload {
		limits.MaxPayloadBytes = MaxWirePayload
	}
	return &Codec{limits: limits}
}

// MaxPayload reports the configured payload ceiling.
func (c *Codec) MaxPayload() int {
	return c.limits.MaxPayloadBytes
}

// Encode serialises a frame into a fresh buffer.
func (c *Codec) Encode(topic TopicID, payload []byte) ([]byte, error) {
	if len(payload) > c.limits.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d > %d", errspkg.ErrPayloadTooLarge, len(payload), c.limits.MaxPayloadBytes)
	}

	buf := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(topic))
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(payload)))
	copy(buf[HeaderLen:], payload)
	return buf, nil
}

// Decode parses the first complete frame out of buf and reports how many
// bytes it consumed. A buffer holding less than one complete frame yields
// ErrShortBuffer and consumes nothing. A declared length above the configured
// maximum yields ErrPayloadTooLarge after inspecting only the header, so a
// corrupted length field can never trigger an unbounded allocation.
func (c *Codec) Decode(buf []byte) (Frame, int, error) {
	if len(buf) < HeaderLen {
		return Frame{}, 0, errspkg.ErrShortBuffer
	}

	topic := TopicID(binary.BigEndian.Uint16(buf[0:2]))
	length := int(binary.BigEndian.Uint16(buf[2:4]))

	if length > c.limits.MaxPayloadBytes {
		return Frame{}, 0, fmt.Errorf("%w: declared %d > %d", errspkg.ErrPayloadTooLarge, length, c.limits.MaxPayloadBytes)
	}
	if len(buf) < HeaderLen+length {
		return Frame{}, 0, errspkg.ErrShortBuffer
	}

	payload := make([]byte, length)
	copy(payload, buf[HeaderLen:HeaderLen+length])
	return Frame{Topic: topic, Payload: payload}, HeaderLen + length, nil
}
