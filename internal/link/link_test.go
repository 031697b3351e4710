package link

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	errspkg "github.com/mculink/mculink/internal/errors"
	"github.com/mculink/mculink/internal/frame"
	"github.com/mculink/mculink/internal/logging"
)

func testLogger() logging.ServiceLogger {
	return logging.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// newTestPair dials a link against a local UDP socket standing in for the
// controller, so tests can inject and observe raw datagrams.
func newTestPair(t *testing.T, onFrame Handler, opts Options) (*Link, *net.UDPConn) {
	t.Helper()

	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { peer.Close() })

	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	port := peer.LocalAddr().(*net.UDPAddr).Port
	l, err := New("127.0.0.1", port, onFrame, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })

	return l, peer
}

func encodeFrame(t *testing.T, topic frame.TopicID, payload []byte) []byte {
	t.Helper()
	buf, err := frame.NewCodec(frame.DefaultLimits()).Encode(topic, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf
}

func TestNewValidation(t *testing.T) {
	if _, err := New("127.0.0.1", 9, nil, Options{Logger: testLogger()}); err == nil {
		t.Error("expected error for nil handler")
	}
	if _, err := New("127.0.0.1", 9, func(frame.Frame) {}, Options{}); !errors.Is(err, errspkg.ErrLoggerRequired) {
		t.Errorf("expected ErrLoggerRequired, got %v", err)
	}
}

func TestSendWireBytes(t *testing.T) {
	l, peer := newTestPair(t, func(frame.Frame) {}, Options{})

	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	if err := l.Send(0x0030, payload); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	peer.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 64)
	n, _, err := peer.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}

	want := []byte{0x00, 0x30, 0x00, 0x04, 0xde, 0xad, 0xbe, 0xef}
	if n != len(want) {
		t.Fatalf("datagram length = %d, want %d", n, len(want))
	}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("byte %d = %#02x, want %#02x", i, buf[i], want[i])
		}
	}
}

func TestSendOversizedPayload(t *testing.T) {
	l, _ := newTestPair(t, func(frame.Frame) {}, Options{})

	err := l.Send(0x0030, make([]byte, frame.DefaultMaxPayload+1))
	if !errors.Is(err, errspkg.ErrPayloadTooLarge) {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestRunForDispatchesFramesInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []frame.Frame
	l, peer := newTestPair(t, func(f frame.Frame) {
		mu.Lock()
		got = append(got, f)
		mu.Unlock()
	}, Options{})

	// Two complete frames packed into one datagram must both dispatch,
	// in buffer order.
	data := append(encodeFrame(t, 0x0040, []byte{1, 2}), encodeFrame(t, 0x0030, []byte{3})...)
	if _, err := peer.WriteToUDP(data, l.LocalAddr().(*net.UDPAddr)); err != nil {
		t.Fatalf("peer write: %v", err)
	}

	if err := l.RunFor(time.Second); err != nil {
		t.Fatalf("RunFor() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("dispatched %d frames, want 2", len(got))
	}
	if got[0].Topic != 0x0040 || got[1].Topic != 0x0030 {
		t.Errorf("topics = %s, %s, want 0x0040, 0x0030", got[0].Topic, got[1].Topic)
	}
	if len(got[0].Payload) != 2 || got[0].Payload[0] != 1 {
		t.Errorf("first payload = %v, want [1 2]", got[0].Payload)
	}
}

func TestRunForDropsTruncatedTail(t *testing.T) {
	var mu sync.Mutex
	var count int
	l, peer := newTestPair(t, func(frame.Frame) {
		mu.Lock()
		count++
		mu.Unlock()
	}, Options{})

	// A full frame followed by a header that promises more payload than the
	// datagram carries. The complete frame dispatches, the tail is dropped.
	data := encodeFrame(t, 0x0050, []byte{9})
	tail := make([]byte, frame.HeaderLen+1)
	binary.BigEndian.PutUint16(tail[0:2], 0x0030)
	binary.BigEndian.PutUint16(tail[2:4], 200)
	data = append(data, tail...)

	if _, err := peer.WriteToUDP(data, l.LocalAddr().(*net.UDPAddr)); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	if err := l.RunFor(time.Second); err != nil {
		t.Fatalf("RunFor() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("dispatched %d frames, want 1", count)
	}
}

func TestRunForIdleTimeout(t *testing.T) {
	l, _ := newTestPair(t, func(frame.Frame) {}, Options{})

	start := time.Now()
	if err := l.RunFor(50 * time.Millisecond); err != nil {
		t.Errorf("idle RunFor() error = %v, want nil", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("RunFor returned after %v, want at least the deadline", elapsed)
	}
}

func TestStartAndClose(t *testing.T) {
	var mu sync.Mutex
	var got []frame.TopicID
	l, peer := newTestPair(t, func(f frame.Frame) {
		mu.Lock()
		got = append(got, f.Topic)
		mu.Unlock()
	}, Options{PollSlice: 20 * time.Millisecond})

	l.Start(context.Background())

	if _, err := peer.WriteToUDP(encodeFrame(t, 0x0040, []byte{0xaa}), l.LocalAddr().(*net.UDPAddr)); err != nil {
		t.Fatalf("peer write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("frame never dispatched by receive loop")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := l.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	// Close waits for the loop, so a second Close must be a no-op.
	if err := l.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestSendAfterClose(t *testing.T) {
	l, _ := newTestPair(t, func(frame.Frame) {}, Options{})

	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := l.Send(0x0030, []byte{1}); !errors.Is(err, errspkg.ErrLinkClosed) {
		t.Errorf("Send after Close = %v, want ErrLinkClosed", err)
	}
}

func TestStartAfterCloseIsNoop(t *testing.T) {
	l, _ := newTestPair(t, func(frame.Frame) {}, Options{})
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// Must not panic or spin up a goroutine against a closed socket.
	l.Start(context.Background())
}

func TestConcurrentSendAndReceive(t *testing.T) {
	var mu sync.Mutex
	var received int
	l, peer := newTestPair(t, func(frame.Frame) {
		mu.Lock()
		received++
		mu.Unlock()
	}, Options{PollSlice: 20 * time.Millisecond})

	l.Start(context.Background())

	// Sends from several goroutines while the receive loop is live must not
	// interfere with each other or with inbound dispatch.
	const senders = 4
	const perSender = 25
	var wg sync.WaitGroup
	for range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perSender {
				if err := l.Send(0x0010, []byte{byte(i)}); err != nil {
					t.Errorf("Send() error = %v", err)
					return
				}
			}
		}()
	}

	inbound := encodeFrame(t, 0x0040, []byte{0xaa})
	for range 10 {
		if _, err := peer.WriteToUDP(inbound, l.LocalAddr().(*net.UDPAddr)); err != nil {
			t.Fatalf("peer write: %v", err)
		}
	}
	wg.Wait()

	// Drain the peer side; every sent frame should have arrived intact over
	// loopback.
	peer.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 2048)
	sent := 0
	for {
		n, _, err := peer.ReadFromUDP(buf)
		if err != nil {
			break
		}
		if n != frame.HeaderLen+1 {
			t.Errorf("unexpected datagram size %d", n)
		}
		sent++
	}
	if sent != senders*perSender {
		t.Errorf("peer received %d frames, want %d", sent, senders*perSender)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := received
		mu.Unlock()
		if n == 10 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dispatched %d inbound frames, want 10", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestContextCancelStopsLoop(t *testing.T) {
	l, _ := newTestPair(t, func(frame.Frame) {}, Options{PollSlice: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	cancel()

	select {
	case <-l.done:
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop did not stop after context cancellation")
	}
}
