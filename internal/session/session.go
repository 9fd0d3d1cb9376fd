// Package session implements the client side of the chat protocol: a
// managed WebSocket connection with reconnection, event subscription, and
// the chat state built on top of it (rooms, messages, presence, typing).
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/veloramarket/velora-chat/internal/config"
	"github.com/veloramarket/velora-chat/internal/proto"
)

// ConnState describes the lifecycle of the managed connection.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

var (
	ErrNotConnected = errors.New("session: not connected")
	ErrNoActiveRoom = errors.New("session: no active room")
)

// Conn is the transport the session reads frames from and writes frames to.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// DialFunc opens a transport to the given URL.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// Handler receives a decoded service event.
type Handler func(ev proto.Event)

// Session manages a single logical connection to the chat service. It
// redials dropped connections with a fixed interval up to a capped number
// of attempts, and the attempt counter resets whenever a dial succeeds.
// Calls are safe for concurrent use.
type Session struct {
	cfg  config.SessionConfig
	dial DialFunc
	log  *zerolog.Logger

	mu        sync.Mutex
	state     ConnState
	conn      Conn
	userID    string
	token     string
	attempts  int
	gen       int
	connected chan struct{}
	readStop  context.CancelFunc

	handlerMu sync.Mutex
	handlers  map[string]map[int]Handler
	nextID    int
}

// New creates a session using the WebSocket transport. The returned
// session is idle until Connect is called.
func New(cfg config.SessionConfig, logger *zerolog.Logger) *Session {
	return NewWithDialer(cfg, wsDial, logger)
}

// NewWithDialer creates a session with a custom transport dialer.
func NewWithDialer(cfg config.SessionConfig, dial DialFunc, logger *zerolog.Logger) *Session {
	return &Session{
		cfg:       cfg,
		dial:      dial,
		log:       logger,
		state:     StateDisconnected,
		connected: make(chan struct{}),
		handlers:  make(map[string]map[int]Handler),
	}
}

func wsDial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "")
}

// Connect starts the connection for the given user. It reports whether a
// new connection attempt was initiated; a session that is already
// connected or connecting is left alone. The dial itself happens in the
// background, use WaitForConnection to block until it settles.
func (s *Session) Connect(userID, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateConnected || s.state == StateConnecting {
		return false
	}

	s.userID = userID
	s.token = token
	s.attempts = 0
	s.state = StateConnecting
	s.gen++

	go s.establish(s.gen, false)
	return true
}

// establish dials until a connection opens or the attempt cap is hit.
// On a fresh Connect the first dial happens immediately; after a drop
// (redial) every dial waits the configured interval, and the full attempt
// budget applies to the redials themselves. A stale generation (Disconnect
// or a newer Connect happened) abandons the loop.
func (s *Session) establish(gen int, redial bool) {
	for {
		s.mu.Lock()
		if s.gen != gen || s.state != StateConnecting {
			s.mu.Unlock()
			return
		}
		url := s.cfg.ServerURL + "?token=" + s.token
		attempt := s.attempts
		s.mu.Unlock()

		if attempt > 0 || redial {
			s.log.Info().Int("attempt", attempt+1).Msg("reconnecting")
			time.Sleep(s.cfg.ReconnectInterval)

			s.mu.Lock()
			stale := s.gen != gen || s.state != StateConnecting
			s.mu.Unlock()
			if stale {
				return
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectWaitTimeout)
		conn, err := s.dial(ctx, url)
		cancel()

		if err == nil {
			s.onOpen(gen, conn)
			return
		}

		s.mu.Lock()
		if s.gen != gen || s.state != StateConnecting {
			s.mu.Unlock()
			if conn != nil {
				conn.Close()
			}
			return
		}
		s.attempts++
		exhausted := s.attempts >= s.cfg.MaxReconnectAttempts
		if exhausted {
			s.state = StateDisconnected
		}
		s.mu.Unlock()

		if exhausted {
			s.log.Error().Err(err).Int("attempts", s.cfg.MaxReconnectAttempts).
				Msg("giving up on connection")
			return
		}
		s.log.Warn().Err(err).Msg("dial failed")
	}
}

func (s *Session) onOpen(gen int, conn Conn) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.state = StateConnected
	s.attempts = 0
	close(s.connected)

	readCtx, cancel := context.WithCancel(context.Background())
	s.readStop = cancel
	s.mu.Unlock()

	s.log.Info().Str("user_id", s.userID).Msg("connected")
	go s.readLoop(readCtx, gen, conn)
}

func (s *Session) readLoop(ctx context.Context, gen int, conn Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			s.onClosed(gen, err)
			return
		}

		ev, err := proto.DecodeEvent(data)
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping malformed event")
			continue
		}
		s.dispatch(ev)
	}
}

// onClosed handles a read failure. An intentional Disconnect finishes
// quietly; an unexpected drop re-arms the connected signal and goes back
// to dialing.
func (s *Session) onClosed(gen int, err error) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	s.conn.Close()
	s.conn = nil
	s.state = StateConnecting
	s.attempts = 0
	s.connected = make(chan struct{})
	s.mu.Unlock()

	s.log.Warn().Err(err).Msg("connection dropped")
	go s.establish(gen, true)
}

// Disconnect tears the connection down and removes every registered
// handler. The session can be connected again afterwards.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		s.clearHandlers()
		return
	}
	s.state = StateClosing
	s.gen++
	conn := s.conn
	s.conn = nil
	if s.readStop != nil {
		s.readStop()
		s.readStop = nil
	}
	if conn != nil {
		// Re-arm for the next Connect.
		s.connected = make(chan struct{})
	}
	s.state = StateDisconnected
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.clearHandlers()
	s.log.Info().Msg("disconnected")
}

// State returns the current connection state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the session has an open connection.
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// UserID returns the user the session was connected as.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// WaitForConnection blocks until the session is connected, the configured
// wait timeout passes, or ctx is done. It observes the connection signal
// rather than polling the state.
func (s *Session) WaitForConnection(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	ready := s.connected
	s.mu.Unlock()

	timer := time.NewTimer(s.cfg.ConnectWaitTimeout)
	defer timer.Stop()

	select {
	case <-ready:
		return nil
	case <-timer.C:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a handler for an event kind and returns a function
// that removes it. Multiple handlers may listen to the same kind.
func (s *Session) Subscribe(eventType string, h Handler) func() {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()

	if s.handlers[eventType] == nil {
		s.handlers[eventType] = make(map[int]Handler)
	}
	s.nextID++
	id := s.nextID
	s.handlers[eventType][id] = h

	return func() {
		s.handlerMu.Lock()
		defer s.handlerMu.Unlock()
		if hs, ok := s.handlers[eventType]; ok {
			delete(hs, id)
			if len(hs) == 0 {
				delete(s.handlers, eventType)
			}
		}
	}
}

// HandlerCount returns the total number of registered handlers.
func (s *Session) HandlerCount() int {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()

	n := 0
	for _, hs := range s.handlers {
		n += len(hs)
	}
	return n
}

func (s *Session) clearHandlers() {
	s.handlerMu.Lock()
	s.handlers = make(map[string]map[int]Handler)
	s.handlerMu.Unlock()
}

func (s *Session) dispatch(ev proto.Event) {
	s.handlerMu.Lock()
	hs := s.handlers[ev.EventType()]
	list := make([]Handler, 0, len(hs))
	for _, h := range hs {
		list = append(list, h)
	}
	s.handlerMu.Unlock()

	for _, h := range list {
		h(ev)
	}
}

// Send writes a command to the service. If the session is not connected
// it triggers a connection attempt, waits for the retry delay, and tries
// the write exactly once more before giving up.
func (s *Session) Send(ctx context.Context, cmd proto.Command) error {
	data, err := proto.EncodeCommand(cmd)
	if err != nil {
		return err
	}

	if err := s.write(ctx, data); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotConnected) {
		return err
	}

	s.mu.Lock()
	userID, token := s.userID, s.token
	s.mu.Unlock()
	if userID == "" {
		return ErrNotConnected
	}

	s.log.Warn().Str("type", cmd.CommandType()).Msg("not connected, retrying send")
	s.Connect(userID, token)

	select {
	case <-time.After(s.cfg.SendRetryDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.write(ctx, data)
}

func (s *Session) write(ctx context.Context, data []byte) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}
	return conn.Write(ctx, data)
}
