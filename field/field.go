// Package field binds page anchors to live device subscriptions.
//
// A Field parses its anchor's options, derives the canonical subscription
// address and follows the shared transport through open and close
// transitions. Widget-specific drawing is delegated to a Kind.
package field

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/timzifer/cswui/address"
	"github.com/timzifer/cswui/markup"
	"github.com/timzifer/cswui/options"
	"github.com/timzifer/cswui/telemetry"
	"github.com/timzifer/cswui/transport"
)

// Marker classes toggled on the first status element of a field.
const (
	StatusClass             = "csw-status"
	SocketClosedClass       = "csw-socket-closed"
	DeviceDisconnectedClass = "csw-device-disconnected"
)

// State is the connectivity state of a field.
type State int

const (
	// Unbound fields never subscribe. Rejected configurations stay here.
	Unbound State = iota
	TransportDown
	DeviceUnknown
	DeviceConnected
	DeviceDisconnected
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case TransportDown:
		return "transport_down"
	case DeviceUnknown:
		return "device_unknown"
	case DeviceConnected:
		return "device_connected"
	case DeviceDisconnected:
		return "device_disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TransportUp reports whether s is one of the states reached through an open transport.
func (s State) TransportUp() bool {
	return s == DeviceUnknown || s == DeviceConnected || s == DeviceDisconnected
}

// Kind draws one widget type into a field's anchor.
type Kind interface {
	// Template is the markup that replaces the anchor's content.
	Template() string
	// Bind runs once after the template has been applied.
	Bind(f *Field) error
	// Render handles a decoded topic message.
	Render(f *Field, msg Message)
}

// Status is a point-in-time view of a field.
type Status struct {
	Topic   string `json:"topic"`
	Device  string `json:"device"`
	State   string `json:"state"`
	Display string `json:"display,omitempty"`
	Units   string `json:"units,omitempty"`
	Title   string `json:"title,omitempty"`
	Label   string `json:"label,omitempty"`
	Samples int    `json:"samples,omitempty"`
}

// describer is implemented by kinds that contribute to Status.
type describer interface {
	describe(st *Status)
}

type settings struct {
	logger        zerolog.Logger
	telemetry     telemetry.Collector
	defaultScheme string
	locker        sync.Locker
}

// Option customises a field.
type Option func(*settings)

// WithLogger sets the logger; fields add device and topic context.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithTelemetry sets the metrics collector.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(s *settings) {
		if collector != nil {
			s.telemetry = collector
		}
	}
}

// WithDefaultProtocol sets the scheme used when an anchor has no protocol option.
func WithDefaultProtocol(scheme string) Option {
	return func(s *settings) {
		s.defaultScheme = scheme
	}
}

// WithLocker makes the field guard its state with l. Fields of one page
// share the page lock so a rendered document never shows half a transition.
func WithLocker(l sync.Locker) Option {
	return func(s *settings) {
		if l != nil {
			s.locker = l
		}
	}
}

// Field is a live widget bound to one anchor element.
type Field struct {
	anchor    *html.Node
	kind      Kind
	transport transport.Transport
	logger    zerolog.Logger
	telemetry telemetry.Collector

	options options.Set
	address address.Address
	topic   string

	mu       sync.Locker
	state    State
	status   *html.Node
	removers []func()
	closed   bool
}

// New binds anchor to tr. Options are read from the anchor's <div name>
// elements. A rejected configuration replaces the anchor content with an
// inline error and returns the *options.ValidationError; the transport is
// never touched in that case.
func New(anchor *html.Node, tr transport.Transport, kind Kind, opts ...Option) (*Field, error) {
	cfg := settings{
		logger:        zerolog.Nop(),
		telemetry:     telemetry.Noop(),
		defaultScheme: address.DefaultScheme,
		locker:        &sync.Mutex{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	f := &Field{
		anchor:    anchor,
		kind:      kind,
		transport: tr,
		logger:    cfg.logger,
		telemetry: cfg.telemetry,
		mu:        cfg.locker,
		state:     Unbound,
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	set, err := options.Parse(markup.Options(anchor))
	if err != nil {
		var verr *options.ValidationError
		if errors.As(err, &verr) {
			f.telemetry.IncConfigError(verr.Option)
		}
		f.logger.Warn().Err(err).Msg("field configuration rejected")
		if rerr := markup.SetInnerHTML(anchor, options.ErrorHTML(err)); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	}
	f.options = set
	f.address = address.Build(set, cfg.defaultScheme)
	f.topic = f.address.String()
	f.logger = f.logger.With().Str("device", set.Device()).Str("topic", f.topic).Logger()

	if err := markup.SetInnerHTML(anchor, kind.Template()); err != nil {
		return nil, fmt.Errorf("apply template: %w", err)
	}
	f.status = markup.FindFirst(anchor, markup.ByClass(StatusClass))
	if err := kind.Bind(f); err != nil {
		return nil, fmt.Errorf("bind %s: %w", f.topic, err)
	}

	// Listeners go in before readiness is read. An open event racing this
	// constructor is then either observed here or delivered afterwards, and
	// the state guard in onOpen keeps it to one subscription.
	f.removers = []func(){
		tr.AddListener(transport.EventOpen, f.onOpen),
		tr.AddListener(transport.EventClose, f.onClose),
		tr.AddListener(f.topic, f.onMessage),
	}
	if tr.ReadyState() == transport.Open {
		f.transportUp()
	} else {
		f.transportDown()
	}
	return f, nil
}

func (f *Field) onOpen(transport.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.state != TransportDown {
		return
	}
	f.transportUp()
}

func (f *Field) onClose(transport.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || !f.state.TransportUp() {
		return
	}
	f.transportDown()
}

func (f *Field) onMessage(ev transport.Event) {
	msg, err := decodeMessage(ev.Data)
	if err != nil {
		f.logger.Debug().Err(err).Msg("dropping malformed payload")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if !msg.Batch && f.state.TransportUp() {
		if connected, ok := msg.Samples[0].Bool("connected"); ok {
			f.deviceConnectivity(connected)
		}
	}
	f.kind.Render(f, msg)
}

func (f *Field) transportUp() {
	f.setState(DeviceUnknown)
	markup.RemoveClass(f.status, SocketClosedClass)
	if err := f.transport.Subscribe(f.topic); err != nil {
		// A failed subscribe is retried on the next open transition.
		f.logger.Warn().Err(err).Msg("subscribe failed")
	}
}

func (f *Field) transportDown() {
	f.setState(TransportDown)
	markup.AddClass(f.status, SocketClosedClass)
	markup.RemoveClass(f.status, DeviceDisconnectedClass)
}

func (f *Field) deviceConnectivity(connected bool) {
	if connected {
		f.setState(DeviceConnected)
		markup.RemoveClass(f.status, DeviceDisconnectedClass)
		return
	}
	f.setState(DeviceDisconnected)
	markup.AddClass(f.status, DeviceDisconnectedClass)
}

func (f *Field) setState(next State) {
	if f.state == next {
		return
	}
	f.logger.Debug().Stringer("from", f.state).Stringer("to", next).Msg("field transition")
	f.state = next
	f.telemetry.IncFieldTransition(next.String())
}

// Close detaches the field from the transport. The transport drops the
// upstream subscription once the last listener of the topic is gone.
func (f *Field) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	removers := f.removers
	f.removers = nil
	f.mu.Unlock()

	for _, remove := range removers {
		remove()
	}
	return nil
}

// State returns the current connectivity state.
func (f *Field) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Status returns a consistent snapshot of the field.
func (f *Field) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := Status{Topic: f.topic, Device: f.options.Device(), State: f.state.String()}
	st.Title, _ = markup.Attr(f.anchor, "title")
	if d, ok := f.kind.(describer); ok {
		d.describe(&st)
	}
	return st
}

// Topic returns the canonical subscription address.
func (f *Field) Topic() string {
	return f.topic
}

// Address returns the parsed subscription address.
func (f *Field) Address() address.Address {
	return f.address
}

// Options returns the validated option set.
func (f *Field) Options() options.Set {
	return f.options
}

// Anchor returns the element the field renders into.
func (f *Field) Anchor() *html.Node {
	return f.anchor
}

// Logger returns the field's contextual logger.
func (f *Field) Logger() zerolog.Logger {
	return f.logger
}

// Telemetry returns the field's metrics collector.
func (f *Field) Telemetry() telemetry.Collector {
	return f.telemetry
}
