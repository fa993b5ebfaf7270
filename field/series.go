package field

import (
	"math"
	"time"

	"github.com/timzifer/cswui/chart"
	"github.com/timzifer/cswui/markup"
	"github.com/timzifer/cswui/options"
)

const seriesTemplate = `<div class="csw-dygraph"></div><div class="csw-status"></div>`

// Series plots a scrolling strip chart of recent samples.
type Series struct {
	newChart chart.Factory
	chart    chart.Chart
	buffer   *SeriesBuffer
	opts     chart.Options
}

// NewSeries returns the kind for .csw-strip-chart anchors. A nil factory
// draws SVG charts.
func NewSeries(factory chart.Factory) *Series {
	if factory == nil {
		factory = chart.NewSVG
	}
	return &Series{newChart: factory, opts: chart.DefaultOptions()}
}

// Template implements Kind.
func (s *Series) Template() string {
	return seriesTemplate
}

// Bind implements Kind.
func (s *Series) Bind(f *Field) error {
	limit, ok := f.Options().Number(options.Buffer)
	if !ok {
		limit = math.NaN()
	}
	s.buffer = NewSeriesBuffer(limit)

	container := markup.FindFirst(f.Anchor(), markup.ByClass("csw-dygraph"))
	c, err := s.newChart(container, chart.InitialData(), s.opts)
	if err != nil {
		if c == nil {
			return err
		}
		logger := f.Logger()
		logger.Debug().Err(err).Msg("initial chart render failed")
	}
	s.chart = c
	return nil
}

// Render implements Kind. Every message redraws the chart with the whole buffer.
func (s *Series) Render(f *Field, msg Message) {
	evicted := 0
	for _, sample := range msg.Samples {
		ts, ok := sample.Number("timestamp")
		if !ok {
			continue
		}
		value, ok := sample.Number("value")
		if !ok {
			continue
		}
		if s.buffer.Push(Sample{Time: time.UnixMilli(int64(ts * 1000)), Value: value}) {
			evicted++
		}
	}
	if evicted > 0 {
		f.Telemetry().AddSamplesEvicted(f.Options().Device(), evicted)
	}

	s.opts.YLabel = s.label(f, msg)
	if err := s.chart.Update(s.buffer.Points(), s.opts); err != nil {
		logger := f.Logger()
		logger.Debug().Err(err).Msg("chart redraw failed")
	}
}

func (s *Series) label(f *Field, msg Message) string {
	label := f.Options().Device()
	last, ok := msg.Last()
	if !ok {
		return label
	}
	if name, ok := last.NonEmpty("name"); ok {
		label = name
	}
	if units, ok := last.NonEmpty("units"); ok {
		label += " [" + units + "]"
	}
	return label
}

// Buffer returns the samples currently plotted.
func (s *Series) Buffer() *SeriesBuffer {
	return s.buffer
}

// Label returns the y axis label of the last redraw.
func (s *Series) Label() string {
	return s.opts.YLabel
}

func (s *Series) describe(st *Status) {
	st.Label = s.opts.YLabel
	st.Samples = s.buffer.Len()
}
