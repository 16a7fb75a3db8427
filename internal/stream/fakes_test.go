package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"vmonitor-agent/internal/config"
	"vmonitor-agent/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSample(seq uint64) *model.Sample {
	return &model.Sample{
		Sequence:  seq,
		Timestamp: time.UnixMilli(1_700_000_000_000 + int64(seq)).UTC(),
		Metrics:   model.Metrics{Uptime: seq},
	}
}

type inboundFrame struct {
	typ  websocket.MessageType
	data []byte
}

type fakeConn struct {
	inbound chan inboundFrame
	closed  chan struct{}
	writing chan struct{}
	// gate, when set, holds every Write until it is closed.
	gate     chan struct{}
	writeErr error

	mu        sync.Mutex
	writes    [][]byte
	closeCode websocket.StatusCode
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan inboundFrame, 8),
		closed:  make(chan struct{}),
		writing: make(chan struct{}, 16),
	}
}

func (c *fakeConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case f := <-c.inbound:
		return f.typ, f.data, nil
	case <-c.closed:
		return 0, nil, errors.New("connection closed")
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, _ websocket.MessageType, p []byte) error {
	select {
	case c.writing <- struct{}{}:
	default:
	}
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	c.mu.Lock()
	c.writes = append(c.writes, append([]byte(nil), p...))
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Ping(context.Context) error { return nil }

func (c *fakeConn) Close(code websocket.StatusCode, _ string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode = code
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

func (c *fakeConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

func (c *fakeConn) code() websocket.StatusCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// fakeDialer fails the first failFirst attempts (every attempt when negative) and then hands
// out connections built by newConn.
type fakeDialer struct {
	failFirst int
	newConn   func() *fakeConn

	mu       sync.Mutex
	attempts int
	conns    []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, _ config.Endpoint) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.failFirst < 0 || d.attempts <= d.failFirst {
		return nil, &TransportError{Op: "dial", Err: errors.New("connection refused")}
	}
	c := newFakeConn()
	if d.newConn != nil {
		c = d.newConn()
	}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func testEndpoint(name string, policy config.ConnectionPolicy) config.Endpoint {
	return config.Endpoint{
		Name:       name,
		Server:     "ws://collector.invalid/ws",
		Secret:     "test-secret",
		Enabled:    true,
		Connection: policy,
	}
}

func sequencesOf(frames [][]byte, secret config.Secret) []uint64 {
	var out []uint64
	for _, b := range frames {
		sample, _, err := DecodeSample(jsonFormat, b, secret)
		if err != nil {
			continue
		}
		out = append(out, sample.Sequence)
	}
	return out
}
