package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/veloramarket/velora-chat/internal/config"
	logpkg "github.com/veloramarket/velora-chat/internal/log"
	"github.com/veloramarket/velora-chat/internal/proto"
)

var errConnClosed = errors.New("connection closed")

// fakeConn is an in-memory transport the tests drive from the "service"
// side: push delivers an event to the session, nextCommand reads what the
// session sent, and Close simulates a dropped connection.
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.in:
		return data, nil
	case <-f.closed:
		return nil, errConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Write(ctx context.Context, data []byte) error {
	select {
	case <-f.closed:
		return errConnClosed
	default:
	}
	select {
	case f.out <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) push(t *testing.T, ev proto.Event) {
	t.Helper()
	data, err := proto.EncodeEvent(ev)
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	select {
	case f.in <- data:
	case <-time.After(2 * time.Second):
		t.Fatal("push timed out")
	}
}

func (f *fakeConn) nextCommand(t *testing.T) proto.Command {
	t.Helper()
	select {
	case data := <-f.out:
		cmd, err := proto.DecodeCommand(data)
		if err != nil {
			t.Fatalf("decode command %q: %v", data, err)
		}
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("no command within deadline")
		return nil
	}
}

// expectCommand reads commands until one of the wanted type arrives.
func (f *fakeConn) expectCommand(t *testing.T, cmdType string) proto.Command {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-f.out:
			cmd, err := proto.DecodeCommand(data)
			if err != nil {
				t.Fatalf("decode command %q: %v", data, err)
			}
			if cmd.CommandType() == cmdType {
				return cmd
			}
		case <-deadline:
			t.Fatalf("no %s command within deadline", cmdType)
			return nil
		}
	}
}

// fakeDialer hands out fakeConns, optionally failing the first failures
// dials to exercise the retry path, or every dial past refuseFrom to
// exercise exhaustion after an established connection drops.
type fakeDialer struct {
	mu         sync.Mutex
	conns      []*fakeConn
	failures   int
	refuseFrom int
	dials      int
}

func (d *fakeDialer) dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failures {
		return nil, errors.New("dial refused")
	}
	if d.refuseFrom > 0 && d.dials > d.refuseFrom {
		return nil, errors.New("dial refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(t *testing.T, i int) *fakeConn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		if len(d.conns) > i {
			conn := d.conns[i]
			d.mu.Unlock()
			return conn
		}
		d.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("connection %d never opened", i)
	return nil
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		ServerURL:            "ws://test/ws",
		APIBaseURL:           "http://test",
		ReconnectInterval:    20 * time.Millisecond,
		MaxReconnectAttempts: 3,
		SendRetryDelay:       30 * time.Millisecond,
		TypingQuietPeriod:    40 * time.Millisecond,
		ConnectWaitTimeout:   2 * time.Second,
	}
}

func testLogger() *zerolog.Logger {
	return logpkg.Nop()
}

func newTestSession(t *testing.T, cfg config.SessionConfig) (*Session, *fakeDialer) {
	t.Helper()
	dialer := &fakeDialer{}
	sess := NewWithDialer(cfg, dialer.dial, testLogger())
	t.Cleanup(sess.Disconnect)
	return sess, dialer
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never held: %s", what)
}
