package msgs

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/mculink/mculink/internal/clock"
	errspkg "github.com/mculink/mculink/internal/errors"
)

// The firmware serialises payloads as protobuf messages. The schemas are
// small and frozen, so the codecs here are written directly against protowire
// instead of generated code: field numbers below must stay in lockstep with
// the firmware's .proto definitions.
//
// Decoders skip unknown fields so a newer firmware can extend a schema
// without breaking older hosts.

func wireError(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", errspkg.ErrDecodeFailed, what, err)
}

func truncatedError(what string, n int) error {
	return wireError(what, protowire.ParseError(n))
}

// -- Stamp / Header ----------------------------------------------------------

func appendStamp(b []byte, s clock.Stamp) []byte {
	if s.Sec != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.Sec))
	}
	if s.NSec != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.NSec))
	}
	return b
}

func unmarshalStamp(b []byte) (clock.Stamp, error) {
	var s clock.Stamp
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return s, truncatedError("stamp tag", n)
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return s, truncatedError("stamp.sec", n)
			}
			s.Sec = int64(v)
			b = b[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return s, truncatedError("stamp.nanosec", n)
			}
			s.NSec = uint32(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return s, truncatedError("stamp field", n)
			}
			b = b[n:]
		}
	}
	return s, nil
}

func appendHeader(b []byte, h *Header) []byte {
	if h == nil {
		return b
	}
	var hb []byte
	if h.FrameID != "" {
		hb = protowire.AppendTag(hb, 1, protowire.BytesType)
		hb = protowire.AppendString(hb, h.FrameID)
	}
	if h.Stamp != nil {
		hb = protowire.AppendTag(hb, 2, protowire.BytesType)
		hb = protowire.AppendBytes(hb, appendStamp(nil, *h.Stamp))
	}
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	return protowire.AppendBytes(b, hb)
}

func unmarshalHeader(b []byte) (*Header, error) {
	h := &Header{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, truncatedError("header tag", n)
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, truncatedError("header.frame_id", n)
			}
			h.FrameID = string(v)
			b = b[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, truncatedError("header.stamp", n)
			}
			stamp, err := unmarshalStamp(v)
			if err != nil {
				return nil, err
			}
			h.Stamp = &stamp
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, truncatedError("header field", n)
			}
			b = b[n:]
		}
	}
	return h, nil
}

// -- repeated scalar helpers -------------------------------------------------

func appendPackedDoubles(b []byte, num protowire.Number, vals []float64) []byte {
	if len(vals) == 0 {
		return b
	}
	packed := make([]byte, 0, 8*len(vals))
	for _, v := range vals {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func consumeDoubles(dst []float64, what string, typ protowire.Type, b []byte) ([]float64, int, error) {
	switch typ {
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return dst, 0, truncatedError(what, n)
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeFixed64(packed)
			if m < 0 {
				return dst, 0, truncatedError(what, m)
			}
			dst = append(dst, math.Float64frombits(v))
			packed = packed[m:]
		}
		return dst, n, nil
	case protowire.Fixed64Type:
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return dst, 0, truncatedError(what, n)
		}
		return append(dst, math.Float64frombits(v)), n, nil
	default:
		return dst, 0, wireError(what, fmt.Errorf("unexpected wire type %d", typ))
	}
}

func appendPackedFloats(b []byte, num protowire.Number, vals []float32) []byte {
	if len(vals) == 0 {
		return b
	}
	packed := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func consumeFloats(dst []float32, what string, typ protowire.Type, b []byte) ([]float32, int, error) {
	switch typ {
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return dst, 0, truncatedError(what, n)
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeFixed32(packed)
			if m < 0 {
				return dst, 0, truncatedError(what, m)
			}
			dst = append(dst, math.Float32frombits(v))
			packed = packed[m:]
		}
		return dst, n, nil
	case protowire.Fixed32Type:
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return dst, 0, truncatedError(what, n)
		}
		return append(dst, math.Float32frombits(v)), n, nil
	default:
		return dst, 0, wireError(what, fmt.Errorf("unexpected wire type %d", typ))
	}
}

func appendPackedInt32s(b []byte, num protowire.Number, vals []int32) []byte {
	if len(vals) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vals {
		packed = protowire.AppendVarint(packed, uint64(int64(v)))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func consumeInt32s(dst []int32, what string, typ protowire.Type, b []byte) ([]int32, int, error) {
	switch typ {
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return dst, 0, truncatedError(what, n)
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeVarint(packed)
			if m < 0 {
				return dst, 0, truncatedError(what, m)
			}
			dst = append(dst, int32(v))
			packed = packed[m:]
		}
		return dst, n, nil
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return dst, 0, truncatedError(what, n)
		}
		return append(dst, int32(v)), n, nil
	default:
		return dst, 0, wireError(what, fmt.Errorf("unexpected wire type %d", typ))
	}
}

// -- Actuators ---------------------------------------------------------------

// MarshalWire serialises the actuator setpoints into firmware wire form.
func (m *Actuators) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendHeader(b, m.Header)
	b = appendPackedDoubles(b, 2, m.Position)
	b = appendPackedDoubles(b, 3, m.Velocity)
	b = appendPackedDoubles(b, 4, m.Normalized)
	return b, nil
}

// UnmarshalActuatorsWire parses firmware wire bytes into an Actuators value.
func UnmarshalActuatorsWire(b []byte) (*Actuators, error) {
	m := &Actuators{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, truncatedError("actuators tag", n)
		}
		b = b[n:]

		var err error
		switch num {
		case 1:
			if typ != protowire.BytesType {
				return nil, wireError("actuators.header", fmt.Errorf("unexpected wire type %d", typ))
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, truncatedError("actuators.header", n)
			}
			if m.Header, err = unmarshalHeader(v); err != nil {
				return nil, err
			}
			b = b[n:]
		case 2:
			m.Position, n, err = consumeDoubles(m.Position, "actuators.position", typ, b)
			if err != nil {
				return nil, err
			}
			b = b[n:]
		case 3:
			m.Velocity, n, err = consumeDoubles(m.Velocity, "actuators.velocity", typ, b)
			if err != nil {
				return nil, err
			}
			b = b[n:]
		case 4:
			m.Normalized, n, err = consumeDoubles(m.Normalized, "actuators.normalized", typ, b)
			if err != nil {
				return nil, err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, truncatedError("actuators field", n)
			}
			b = b[n:]
		}
	}
	return m, nil
}

// -- Joy ---------------------------------------------------------------------

// MarshalWire serialises operator input into firmware wire form.
func (m *Joy) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendPackedFloats(b, 1, m.Axes)
	b = appendPackedInt32s(b, 2, m.Buttons)
	return b, nil
}

// UnmarshalJoyWire parses firmware wire bytes into a Joy value.
func UnmarshalJoyWire(b []byte) (*Joy, error) {
	m := &Joy{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, truncatedError("joy tag", n)
		}
		b = b[n:]

		var err error
		switch num {
		case 1:
			m.Axes, n, err = consumeFloats(m.Axes, "joy.axes", typ, b)
			if err != nil {
				return nil, err
			}
			b = b[n:]
		case 2:
			m.Buttons, n, err = consumeInt32s(m.Buttons, "joy.buttons", typ, b)
			if err != nil {
				return nil, err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, truncatedError("joy field", n)
			}
			b = b[n:]
		}
	}
	return m, nil
}

// -- Status ------------------------------------------------------------------

// MarshalWire serialises the controller status into firmware wire form.
// Mostly used by tests and simulators; the live controller is the producer.
func (m *Status) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendHeader(b, m.Header)
	for _, f := range []struct {
		num protowire.Number
		val uint64
	}{
		{2, uint64(m.Arming)},
		{3, uint64(m.Fuel)},
		{4, uint64(m.Joy)},
		{5, uint64(m.Mode)},
		{6, uint64(m.Safety)},
	} {
		if f.val != 0 {
			b = protowire.AppendTag(b, f.num, protowire.VarintType)
			b = protowire.AppendVarint(b, f.val)
		}
	}
	if m.FuelPercentage != 0 {
		b = protowire.AppendTag(b, 7, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(m.FuelPercentage))
	}
	if m.Power != 0 {
		b = protowire.AppendTag(b, 8, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(m.Power))
	}
	if m.StatusMessage != "" {
		b = protowire.AppendTag(b, 9, protowire.BytesType)
		b = protowire.AppendString(b, m.StatusMessage)
	}
	if m.RequestSeq != 0 {
		b = protowire.AppendTag(b, 10, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.RequestSeq))
	}
	if m.RequestRejected {
		b = protowire.AppendTag(b, 11, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b, nil
}

// UnmarshalStatusWire parses firmware wire bytes into a Status value.
func UnmarshalStatusWire(b []byte) (*Status, error) {
	m := &Status{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, truncatedError("status tag", n)
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, truncatedError("status.header", n)
			}
			h, err := unmarshalHeader(v)
			if err != nil {
				return nil, err
			}
			m.Header = h
			b = b[n:]
		case num >= 2 && num <= 6 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, truncatedError("status enum", n)
			}
			switch num {
			case 2:
				m.Arming = uint32(v)
			case 3:
				m.Fuel = uint32(v)
			case 4:
				m.Joy = uint32(v)
			case 5:
				m.Mode = uint32(v)
			case 6:
				m.Safety = uint32(v)
			}
			b = b[n:]
		case num == 7 && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, truncatedError("status.fuel_percentage", n)
			}
			m.FuelPercentage = math.Float64frombits(v)
			b = b[n:]
		case num == 8 && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, truncatedError("status.power", n)
			}
			m.Power = math.Float64frombits(v)
			b = b[n:]
		case num == 9 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, truncatedError("status.status_message", n)
			}
			m.StatusMessage = string(v)
			b = b[n:]
		case num == 10 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, truncatedError("status.request_seq", n)
			}
			m.RequestSeq = uint32(v)
			b = b[n:]
		case num == 11 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, truncatedError("status.request_rejected", n)
			}
			m.RequestRejected = v != 0
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, truncatedError("status field", n)
			}
			b = b[n:]
		}
	}
	return m, nil
}

// -- Uptime ------------------------------------------------------------------

// MarshalWire serialises an uptime sample. Used by tests and simulators.
func (m *Uptime) MarshalWire() ([]byte, error) {
	return appendStamp(nil, m.Stamp), nil
}

// UnmarshalUptimeWire parses firmware wire bytes into an Uptime value.
func UnmarshalUptimeWire(b []byte) (*Uptime, error) {
	stamp, err := unmarshalStamp(b)
	if err != nil {
		return nil, err
	}
	return &Uptime{Stamp: stamp}, nil
}

// -- Imu ---------------------------------------------------------------------

func appendVec3(b []byte, num protowire.Number, v Vec3) []byte {
	var vb []byte
	for i, f := range []float64{v.X, v.Y, v.Z} {
		if f == 0 {
			continue
		}
		vb = protowire.AppendTag(vb, protowire.Number(i+1), protowire.Fixed64Type)
		vb = protowire.AppendFixed64(vb, math.Float64bits(f))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, vb)
}

func unmarshalVec3(b []byte) (Vec3, error) {
	var v Vec3
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return v, truncatedError("vec3 tag", n)
		}
		b = b[n:]

		if typ == protowire.Fixed64Type && num >= 1 && num <= 3 {
			raw, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return v, truncatedError("vec3 axis", n)
			}
			f := math.Float64frombits(raw)
			switch num {
			case 1:
				v.X = f
			case 2:
				v.Y = f
			case 3:
				v.Z = f
			}
			b = b[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return v, truncatedError("vec3 field", n)
		}
		b = b[n:]
	}
	return v, nil
}

// MarshalWire serialises the IMU reading into firmware wire form.
func (m *Imu) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendHeader(b, m.Header)
	b = appendVec3(b, 2, m.AngularVelocity)
	b = appendVec3(b, 3, m.LinearAcceleration)
	return b, nil
}

// UnmarshalImuWire parses firmware wire bytes into an Imu value.
func UnmarshalImuWire(b []byte) (*Imu, error) {
	m := &Imu{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, truncatedError("imu tag", n)
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, truncatedError("imu.header", n)
			}
			h, err := unmarshalHeader(v)
			if err != nil {
				return nil, err
			}
			m.Header = h
			b = b[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, truncatedError("imu.angular_velocity", n)
			}
			vec, err := unmarshalVec3(v)
			if err != nil {
				return nil, err
			}
			m.AngularVelocity = vec
			b = b[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, truncatedError("imu.linear_acceleration", n)
			}
			vec, err := unmarshalVec3(v)
			if err != nil {
				return nil, err
			}
			m.LinearAcceleration = vec
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, truncatedError("imu field", n)
			}
			b = b[n:]
		}
	}
	return m, nil
}
