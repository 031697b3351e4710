// Package metrics exposes Prometheus counters for the link data path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons, used as label values on DroppedTotal.
const (
	DropMalformed    = "malformed"
	DropUnknownTopic = "unknown_topic"
	DropDecodeFailed = "decode_failed"
	DropEncodeFailed = "encode_failed"
)

// LinkMetrics counts frames crossing the bridge. All methods are safe on a
// nil receiver so the data path never branches on whether metrics are
// enabled.
type LinkMetrics struct {
	framesReceived *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	receiveErrors  prometheus.Counter
	sendErrors     prometheus.Counter
}

// NewLinkMetrics builds and registers the link counters on the supplied
// registerer. A nil registerer falls back to the Prometheus default.
func NewLinkMetrics(reg prometheus.Registerer) *LinkMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &LinkMetrics{
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mculink",
			Name:      "frames_received_total",
			Help:      "Frames decoded from the controller link, by topic.",
		}, []string{"topic"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mculink",
			Name:      "frames_sent_total",
			Help:      "Frames transmitted to the controller, by topic.",
		}, []string{"topic"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mculink",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped without dispatch, by reason.",
		}, []string{"reason"}),
		receiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mculink",
			Name:      "receive_errors_total",
			Help:      "Socket receive failures that were absorbed.",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mculink",
			Name:      "send_errors_total",
			Help:      "Socket send failures returned to callers.",
		}),
	}

	reg.MustRegister(m.framesReceived, m.framesSent, m.dropped, m.receiveErrors, m.sendErrors)
	return m
}

func (m *LinkMetrics) FrameReceived(topic string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(topic).Inc()
}

func (m *LinkMetrics) FrameSent(topic string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(topic).Inc()
}

func (m *LinkMetrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *LinkMetrics) ReceiveError() {
	if m == nil {
		return
	}
	m.receiveErrors.Inc()
}

func (m *LinkMetrics) SendError() {
	if m == nil {
		return
	}
	m.sendErrors.Inc()
}
