// Package clock reconciles the controller's monotonic uptime clock with the
// host wall clock. The controller stamps its messages with uptime; the bridge
// republishes them with wall-clock stamps by adding the most recently
// observed offset.
package clock

import (
	"sync/atomic"
	"time"
)

const nanosPerSecond = int64(time.Second)

// Stamp is a split-second wall or uptime timestamp as carried in message
// headers. NSec is always in [0, 1e9).
type Stamp struct {
	Sec  int64  `json:"sec"`
	NSec uint32 `json:"nanosec"`
}

// StampFromTime converts a local wall-clock reading into a Stamp.
func StampFromTime(t time.Time) Stamp {
	return Stamp{Sec: t.Unix(), NSec: uint32(t.Nanosecond())}
}

// Nanos returns the stamp as a single nanosecond count.
func (s Stamp) Nanos() int64 {
	return s.Sec*nanosPerSecond + int64(s.NSec)
}

// Offset is the difference between local wall time and remote uptime at the
// last observation, normalised so NSec lies in [0, 1e9) with carry into Sec.
// Sec may be negative if the host clock is behind the remote epoch.
type Offset struct {
	Sec  int64 `json:"sec"`
	NSec int64 `json:"nanosec"`
}

func offsetFromNanos(nanos int64) Offset {
	sec := nanos / nanosPerSecond
	nsec := nanos - sec*nanosPerSecond
	if nsec < 0 {
		sec--
		nsec += nanosPerSecond
	}
	return Offset{Sec: sec, NSec: nsec}
}

// Synchronizer tracks the current clock offset. Observe is only ever called
// from the link's dispatch goroutine (single writer); the offset is kept
// behind an atomic pointer so host-side readers always see a consistent
// pair of fields.
type Synchronizer struct {
	offset atomic.Pointer[Offset]
}

// NewSynchronizer returns a synchronizer with a zero offset. Stamps corrected
// before the first uptime observation pass through unchanged.
func NewSynchronizer() *Synchronizer {
	s := &Synchronizer{}
	s.offset.Store(&Offset{})
	return s
}

// Observe recomputes the offset from a fresh uptime sample and the local
// wall-clock reading taken when it arrived. Each observation fully replaces
// the previous offset; no smoothing is applied, so the estimate absorbs
// one-way transport latency and callers must not treat corrected stamps as
// sub-millisecond accurate.
func (s *Synchronizer) Observe(remoteUptime, localNow Stamp) Offset {
	off := offsetFromNanos(localNow.Nanos() - remoteUptime.Nanos())
	s.offset.Store(&off)
	return off
}

// Offset returns the most recently observed offset.
func (s *Synchronizer) Offset() Offset {
	return *s.offset.Load()
}

// Correct translates a remote uptime stamp into local wall time using the
// current offset. It never updates the offset itself.
func (s *Synchronizer) Correct(remote Stamp) Stamp {
	off := s.offset.Load()

	sec := remote.Sec + off.Sec
	nsec := int64(remote.NSec) + off.NSec
	if extra := nsec / nanosPerSecond; extra > 0 {
		sec += extra
		nsec -= extra * nanosPerSecond
	}
	return Stamp{Sec: sec, NSec: uint32(nsec)}
}
