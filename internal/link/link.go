// Package link owns the datagram socket to the controller. A single
// background goroutine runs the receive loop in bounded slices so shutdown is
// observed within one slice; sends may come from any goroutine, since
// net.UDPConn serialises concurrent reads and writes internally.
package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	errspkg "github.com/mculink/mculink/internal/errors"
	"github.com/mculink/mculink/internal/frame"
	"github.com/mculink/mculink/internal/logging"
	"github.com/mculink/mculink/internal/metrics"
)

// DefaultPollSlice bounds a single receive poll when the caller does not
// override it.
const DefaultPollSlice = time.Second

// Handler consumes decoded inbound frames. Invoked synchronously from the
// receive loop, in arrival order.
type Handler func(frame.Frame)

// Options configures a Link beyond its endpoint.
type Options struct {
	Codec     *frame.Codec
	PollSlice time.Duration
	Logger    logging.ServiceLogger
	Metrics   *metrics.LinkMetrics
}

// Link is the frame transport. It exclusively owns the socket and the
// background receive goroutine.
type Link struct {
	conn    *net.UDPConn
	codec   *frame.Codec
	onFrame Handler
	slice   time.Duration
	logger  logging.ServiceLogger
	metrics *metrics.LinkMetrics

	rxBuf []byte

	mu      sync.Mutex
	started bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}
}

// New dials a connected datagram socket to host:port and wires the inbound
// dispatch handler. The handler must not be nil; it is the link's only way to
// hand frames back to its owner.
func New(host string, port int, onFrame Handler, opts Options) (*Link, error) {
	if onFrame == nil {
		return nil, errors.New("mculink: frame handler is required")
	}
	if opts.Logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	codec := opts.Codec
	if codec == nil {
		codec = frame.NewCodec(frame.DefaultLimits())
	}
	slice := opts.PollSlice
	if slice <= 0 {
		slice = DefaultPollSlice
	}

	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("mculink: resolve %s:%d: %w", host, port, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("mculink: dial %s: %w", addr, err)
	}

	return &Link{
		conn:    conn,
		codec:   codec,
		onFrame: onFrame,
		slice:   slice,
		logger:  opts.Logger.With(logging.LogFields{"component": "link", "remote": addr.String()}),
		metrics: opts.Metrics,
		rxBuf:   make([]byte, frame.HeaderLen+codec.MaxPayload()),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// LocalAddr reports the bound local endpoint. Mostly useful in tests.
func (l *Link) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

// RunFor performs one bounded receive poll: it blocks at most d waiting for a
// datagram, then decodes and dispatches every complete frame in it. Socket
// errors are logged and counted, never fatal; a timeout with no data is a
// normal idle slice.
func (l *Link) RunFor(d time.Duration) error {
	if err := l.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		return fmt.Errorf("%w: set deadline: %v", errspkg.ErrReceiveFailed, err)
	}

	n, err := l.conn.Read(l.rxBuf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil
		}
		if l.isClosed() {
			return errspkg.ErrLinkClosed
		}
		l.metrics.ReceiveError()
		l.logger.Error("datagram receive failed", err, nil)
		return fmt.Errorf("%w: %v", errspkg.ErrReceiveFailed, err)
	}
	if n == 0 {
		return nil
	}

	l.dispatch(l.rxBuf[:n])
	return nil
}

// dispatch splits a receive buffer into frames and hands each to the handler
// in order. A malformed prefix poisons the rest of the buffer (there is no
// resync sentinel), so the remainder is dropped and counted; the next
// datagram starts clean.
func (l *Link) dispatch(buf []byte) {
	for len(buf) > 0 {
		f, consumed, err := l.codec.Decode(buf)
		if err != nil {
			if errors.Is(err, errspkg.ErrShortBuffer) {
				// Trailing partial frame. A datagram transport never
				// delivers the remainder, so this is a truncation drop.
				l.metrics.FrameDropped(metrics.DropMalformed)
				l.logger.Debug("dropping truncated frame tail", logging.LogFields{"bytes": len(buf)})
				return
			}
			l.metrics.FrameDropped(metrics.DropMalformed)
			l.logger.Error("dropping malformed frame", err, logging.LogFields{"bytes": len(buf)})
			return
		}
		buf = buf[consumed:]
		l.onFrame(f)
	}
}

// Send encodes and transmits one frame synchronously. Transmit failures are
// returned as typed errors; transient loss is expected on this transport and
// must not crash the bridge.
func (l *Link) Send(topic frame.TopicID, payload []byte) error {
	if l.isClosed() {
		return errspkg.ErrLinkClosed
	}

	buf, err := l.codec.Encode(topic, payload)
	if err != nil {
		return err
	}

	if _, err := l.conn.Write(buf); err != nil {
		l.metrics.SendError()
		return fmt.Errorf("%w: topic %s: %v", errspkg.ErrSendFailed, topic, err)
	}
	return nil
}

// Start launches the background receive loop. It returns immediately; the
// loop runs until the context is cancelled or Close is called, whichever
// comes first.
func (l *Link) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started || l.closed {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	go func() {
		defer close(l.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stop:
				return
			default:
			}
			if err := l.RunFor(l.slice); errors.Is(err, errspkg.ErrLinkClosed) {
				return
			}
		}
	}()
}

func (l *Link) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close signals the receive loop to stop, waits for it to return, then
// releases the socket. After Close returns no goroutine touches the socket,
// so teardown never races the dispatch callback.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	started := l.started
	close(l.stop)
	l.mu.Unlock()

	// Unblock a poll in progress rather than waiting out its slice.
	_ = l.conn.SetReadDeadline(time.Now())

	if started {
		<-l.done
	}
	return l.conn.Close()
}
