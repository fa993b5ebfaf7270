package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

const socketName = "websocket"

type inboundFrame struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

type outboundFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// Socket is a persistent websocket transport. Run keeps it connected and
// redials after failures; every event is dispatched from the Run goroutine.
type Socket struct {
	url      string
	dialer   *websocket.Dialer
	settings settings
	limiter  *rate.Limiter
	router   *router

	state  atomic.Int32
	closed atomic.Bool

	mu         sync.Mutex
	conn       *websocket.Conn
	subscribed map[string]struct{}
}

// NewSocket returns a socket for url. It does not connect until Run is called.
func NewSocket(url string, opts ...Option) *Socket {
	cfg := applyOptions(opts)
	s := &Socket{
		url:      url,
		dialer:   websocket.DefaultDialer,
		settings: cfg,
		limiter:  rate.NewLimiter(rate.Every(cfg.reconnectInterval), 1),
	}
	s.router = newRouter(s.release)
	s.state.Store(int32(Connecting))
	return s
}

// ReadyState implements Transport.
func (s *Socket) ReadyState() ReadyState {
	return ReadyState(s.state.Load())
}

// AddListener implements Transport.
func (s *Socket) AddListener(name string, l Listener) func() {
	return s.router.add(name, l)
}

// Subscribe implements Transport.
func (s *Socket) Subscribe(topic string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.ReadyState() != Open {
		return ErrNotOpen
	}
	if _, ok := s.subscribed[topic]; ok {
		return nil
	}
	if err := s.writeLocked(outboundFrame{Action: "subscribe", Topic: topic}); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	s.subscribed[topic] = struct{}{}
	s.settings.telemetry.IncSubscribe(socketName)
	return nil
}

func (s *Socket) release(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	if _, ok := s.subscribed[topic]; !ok {
		return
	}
	delete(s.subscribed, topic)
	if err := s.writeLocked(outboundFrame{Action: "unsubscribe", Topic: topic}); err != nil {
		s.settings.logger.Warn().Err(err).Str("topic", topic).Msg("websocket: unsubscribe failed")
	}
}

func (s *Socket) writeLocked(frame outboundFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Run connects and keeps the socket connected until ctx is cancelled or
// Close is called.
func (s *Socket) Run(ctx context.Context) error {
	logger := s.settings.logger.With().Str("url", s.url).Logger()
	attempts := 0
	for {
		if s.closed.Load() {
			return ErrClosed
		}
		if err := s.limiter.Wait(ctx); err != nil {
			// Wait fails early when the deadline cannot fit another token.
			s.state.Store(int32(Closed))
			<-ctx.Done()
			return ctx.Err()
		}
		if s.closed.Load() {
			return ErrClosed
		}
		if attempts > 0 {
			s.settings.telemetry.IncReconnect(socketName)
		}
		attempts++

		s.state.Store(int32(Connecting))
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.state.Store(int32(Closed))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn().Err(err).Int("attempt", attempts).Msg("websocket: dial failed")
			continue
		}
		logger.Info().Msg("websocket: connected")
		err = s.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.closed.Load() {
			return ErrClosed
		}
		logger.Warn().Err(err).Msg("websocket: connection lost")
	}
}

func (s *Socket) serve(ctx context.Context, conn *websocket.Conn) error {
	s.mu.Lock()
	s.conn = conn
	s.subscribed = make(map[string]struct{})
	s.mu.Unlock()

	s.state.Store(int32(Open))
	s.router.dispatch(Event{Name: EventOpen})

	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	go s.keepAlive(conn, done)

	conn.SetReadLimit(s.settings.readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var readErr error
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		s.handleFrame(data)
	}
	close(done)

	s.mu.Lock()
	s.conn = nil
	s.subscribed = nil
	s.mu.Unlock()
	_ = conn.Close()

	s.state.Store(int32(Closed))
	s.router.dispatch(Event{Name: EventClose})

	if websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return readErr
}

func (s *Socket) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Socket) handleFrame(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.settings.logger.Debug().Err(err).Msg("websocket: dropping undecodable frame")
		return
	}
	if frame.Topic == "" || IsReserved(frame.Topic) {
		s.settings.logger.Debug().Str("topic", frame.Topic).Msg("websocket: dropping frame without topic")
		return
	}
	s.settings.telemetry.IncMessage(socketName)
	s.router.dispatch(Event{Name: frame.Topic, Data: frame.Data})
}

// Close shuts the socket down. Run returns ErrClosed afterwards.
func (s *Socket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.state.Store(int32(Closing))
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.state.Store(int32(Closed))
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.settings.logger.Debug().Err(err).Msg("websocket: close handshake failed")
	}
	return conn.Close()
}

// Topics returns the topics that currently have listeners.
func (s *Socket) Topics() []string {
	return s.router.topics()
}
