// Package msgs defines the message schemas exchanged with the controller
// firmware. Each type carries two representations: a protobuf wire form
// (hand-rolled on protowire, field numbers fixed by the firmware build) and a
// JSON form used on the host pub/sub side.
package msgs

import "github.com/mculink/mculink/internal/clock"

// Header is carried inside timestamped payloads. Outbound stamps are the
// host's wall clock; inbound stamps are remote uptime until the bridge
// corrects them with the current clock offset.
type Header struct {
	FrameID string       `json:"frame_id"`
	Stamp   *clock.Stamp `json:"stamp,omitempty"`
}

// HeaderCarrier is implemented by messages that embed a Header. The bridge
// uses it to correct remote uptime stamps on inbound messages without knowing
// each schema.
type HeaderCarrier interface {
	WireHeader() *Header
}

// Actuators carries motor and servo setpoints. Bidirectional: the host
// commands the controller, and the controller echoes what it applied.
type Actuators struct {
	Header     *Header   `json:"header,omitempty"`
	Position   []float64 `json:"position,omitempty"`
	Velocity   []float64 `json:"velocity,omitempty"`
	Normalized []float64 `json:"normalized,omitempty"`
}

func (m *Actuators) WireHeader() *Header { return m.Header }

// Joy carries operator input to the controller.
type Joy struct {
	Axes    []float32 `json:"axes,omitempty"`
	Buttons []int32   `json:"buttons,omitempty"`
}

// Status reports the controller state machine.
type Status struct {
	Header          *Header `json:"header,omitempty"`
	Arming          uint32  `json:"arming"`
	Fuel            uint32  `json:"fuel"`
	Joy             uint32  `json:"joy"`
	Mode            uint32  `json:"mode"`
	Safety          uint32  `json:"safety"`
	FuelPercentage  float64 `json:"fuel_percentage"`
	Power           float64 `json:"power"`
	StatusMessage   string  `json:"status_message"`
	RequestSeq      uint32  `json:"request_seq"`
	RequestRejected bool    `json:"request_rejected"`
}

func (m *Status) WireHeader() *Header { return m.Header }

// Uptime is the controller's monotonic uptime, sent periodically. It drives
// the clock synchronisation path.
type Uptime struct {
	Stamp clock.Stamp `json:"stamp"`
}

// Vec3 is a three-axis reading.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Imu carries inertial measurements from a host-side sensor to the
// controller.
type Imu struct {
	Header             *Header `json:"header,omitempty"`
	AngularVelocity    Vec3    `json:"angular_velocity"`
	LinearAcceleration Vec3    `json:"linear_acceleration"`
}

func (m *Imu) WireHeader() *Header { return m.Header }
