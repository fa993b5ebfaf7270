package transport

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/cswui/telemetry"
)

// ReadyState mirrors the lifecycle of the shared connection.
type ReadyState int32

const (
	// Connecting is the state before the first connection succeeded and while redialing.
	Connecting ReadyState = iota
	// Open means subscribe requests are accepted.
	Open
	// Closing is reported while the transport shuts down.
	Closing
	// Closed means the connection is down.
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Reserved listener names for lifecycle events. Every other name is a topic.
const (
	EventOpen  = "open"
	EventClose = "close"
)

var (
	// ErrNotOpen is returned when a subscribe request is issued while the connection is down.
	ErrNotOpen = errors.New("transport: connection not open")
	// ErrClosed is returned once the transport has been shut down.
	ErrClosed = errors.New("transport: closed")
)

// Event is delivered to listeners. Data is empty for lifecycle events.
type Event struct {
	Name string
	Data json.RawMessage
}

// Listener receives events. Listeners run on the transport's dispatch
// goroutine and must not block.
type Listener func(Event)

// Transport is the shared, multiplexed connection used by every field.
type Transport interface {
	// ReadyState reports the current connection state.
	ReadyState() ReadyState
	// AddListener registers a listener for a lifecycle event or topic and
	// returns a function removing it again.
	AddListener(name string, l Listener) (remove func())
	// Subscribe requests delivery of messages for topic. Duplicate requests
	// on the same connection are collapsed.
	Subscribe(topic string) error
}

// IsReserved reports whether name is a lifecycle event rather than a topic.
func IsReserved(name string) bool {
	return name == EventOpen || name == EventClose
}

type settings struct {
	logger            zerolog.Logger
	telemetry         telemetry.Collector
	reconnectInterval time.Duration
	readLimit         int64
	queueSize         int
}

func defaultSettings() settings {
	return settings{
		logger:            zerolog.Nop(),
		telemetry:         telemetry.Noop(),
		reconnectInterval: 2 * time.Second,
		readLimit:         1 << 20,
		queueSize:         256,
	}
}

// Option customises a transport.
type Option func(*settings)

// WithLogger sets the logger used for connection diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithTelemetry installs a telemetry collector.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(s *settings) {
		if collector == nil {
			collector = telemetry.Noop()
		}
		s.telemetry = collector
	}
}

// WithReconnectInterval sets the minimum delay between connection attempts.
func WithReconnectInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.reconnectInterval = d
		}
	}
}

// WithReadLimit bounds the size of inbound frames.
func WithReadLimit(n int64) Option {
	return func(s *settings) {
		if n > 0 {
			s.readLimit = n
		}
	}
}

// WithQueueSize sets the depth of the dispatch queue for transports that
// receive events on foreign goroutines.
func WithQueueSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

func applyOptions(opts []Option) settings {
	cfg := defaultSettings()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
