// Package page turns a marked-up HTML document into a set of live fields.
package page

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/timzifer/cswui/chart"
	"github.com/timzifer/cswui/field"
	"github.com/timzifer/cswui/markup"
	"github.com/timzifer/cswui/telemetry"
	"github.com/timzifer/cswui/transport"
)

type settings struct {
	logger        zerolog.Logger
	telemetry     telemetry.Collector
	defaultScheme string
	chartFactory  chart.Factory
}

// Option customises a page.
type Option func(*settings)

// WithLogger sets the logger used by the page and its fields.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithTelemetry sets the collector shared by every field.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(s *settings) {
		if collector != nil {
			s.telemetry = collector
		}
	}
}

// WithDefaultProtocol sets the scheme for anchors without a protocol option.
func WithDefaultProtocol(scheme string) Option {
	return func(s *settings) {
		s.defaultScheme = scheme
	}
}

// WithChartFactory replaces the chart implementation of series fields.
func WithChartFactory(factory chart.Factory) Option {
	return func(s *settings) {
		s.chartFactory = factory
	}
}

// Rejection records an anchor whose configuration was refused.
type Rejection struct {
	Kind markup.Kind
	Err  error
}

// Page owns a document and the fields bound into it. All fields share the
// page lock, so Render always sees whole transitions.
type Page struct {
	doc    *html.Node
	logger zerolog.Logger

	mu       sync.Mutex
	fields   []*field.Field
	rejected []Rejection
	closed   bool
}

// Load parses r and bootstraps the document.
func Load(r io.Reader, tr transport.Transport, opts ...Option) (*Page, error) {
	doc, err := markup.Parse(r)
	if err != nil {
		return nil, err
	}
	return Bootstrap(doc, tr, opts...)
}

// Bootstrap creates one field per anchor found in doc. Anchors with invalid
// options show their inline error and are listed by Rejected; they never stop
// the remaining anchors from binding.
func Bootstrap(doc *html.Node, tr transport.Transport, opts ...Option) (*Page, error) {
	cfg := settings{logger: zerolog.Nop(), telemetry: telemetry.Noop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	p := &Page{doc: doc, logger: cfg.logger}

	fieldOpts := []field.Option{
		field.WithLogger(cfg.logger),
		field.WithTelemetry(cfg.telemetry),
		field.WithLocker(&p.mu),
	}
	if cfg.defaultScheme != "" {
		fieldOpts = append(fieldOpts, field.WithDefaultProtocol(cfg.defaultScheme))
	}

	var fields []*field.Field
	var rejected []Rejection
	for _, anchor := range markup.Scan(doc) {
		kind, err := newKind(anchor.Kind, cfg.chartFactory)
		if err != nil {
			return nil, err
		}
		f, err := field.New(anchor.Node, tr, kind, fieldOpts...)
		if err != nil {
			rejected = append(rejected, Rejection{Kind: anchor.Kind, Err: err})
			continue
		}
		fields = append(fields, f)
	}

	p.mu.Lock()
	p.fields = fields
	p.rejected = rejected
	p.mu.Unlock()

	cfg.logger.Info().Int("fields", len(fields)).Int("rejected", len(rejected)).Msg("page bootstrapped")
	return p, nil
}

func newKind(kind markup.Kind, factory chart.Factory) (field.Kind, error) {
	switch kind {
	case markup.KindValue:
		return field.NewValue(), nil
	case markup.KindSeries:
		return field.NewSeries(factory), nil
	default:
		return nil, fmt.Errorf("unknown field kind %q", kind)
	}
}

// Fields returns the bound fields in bootstrap order.
func (p *Page) Fields() []*field.Field {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*field.Field(nil), p.fields...)
}

// Rejected returns the anchors whose configuration was refused.
func (p *Page) Rejected() []Rejection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Rejection(nil), p.rejected...)
}

// Status returns a snapshot of every bound field.
func (p *Page) Status() []field.Status {
	fields := p.Fields()
	out := make([]field.Status, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.Status())
	}
	return out
}

// Render writes the current document.
func (p *Page) Render(w io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := markup.Render(w, p.doc); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}

// Close detaches every field from the transport. The document keeps its
// last rendered state.
func (p *Page) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	fields := p.fields
	p.mu.Unlock()

	var errs []error
	for _, f := range fields {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.logger.Debug().Int("fields", len(fields)).Msg("page closed")
	return errors.Join(errs...)
}
