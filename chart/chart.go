// Package chart draws strip charts for series fields.
package chart

import (
	"bytes"
	"fmt"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/net/html"

	"github.com/timzifer/cswui/markup"
)

// Point is one plotted sample.
type Point struct {
	Time  time.Time
	Value float64
}

// Options control how a chart is drawn.
type Options struct {
	Labels          []string
	YLabel          string
	YAxisLabelWidth int
	XAxisLabelWidth int
	Width           int
	Height          int
}

// DefaultOptions returns the options every strip chart starts with.
func DefaultOptions() Options {
	return Options{
		Labels:          []string{"X", "Y"},
		YAxisLabelWidth: 75,
		XAxisLabelWidth: 75,
	}
}

// InitialData is the placeholder plotted before the first sample arrives.
func InitialData() []Point {
	return []Point{{Time: time.UnixMilli(0), Value: 0}}
}

// Chart is a drawing bound to a container element.
type Chart interface {
	Update(points []Point, opts Options) error
}

// Factory creates a chart inside container and draws the initial data.
type Factory func(container *html.Node, initial []Point, opts Options) (Chart, error)

// SVG renders the chart as inline SVG replacing the container's children.
type SVG struct {
	container *html.Node
	points    []Point
	opts      Options
}

// NewSVG is a Factory producing SVG charts.
func NewSVG(container *html.Node, initial []Point, opts Options) (Chart, error) {
	s := &SVG{container: container}
	if err := s.Update(initial, opts); err != nil {
		return s, err
	}
	return s, nil
}

// Update redraws the chart with points. The previous drawing stays in place
// when rendering fails.
func (s *SVG) Update(points []Point, opts Options) error {
	s.points = append(s.points[:0], points...)
	s.opts = opts

	var buf bytes.Buffer
	if err := build(points, opts).Render(gochart.SVG, &buf); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return markup.SetInnerHTML(s.container, buf.String())
}

// Points returns the data of the last update.
func (s *SVG) Points() []Point {
	return append([]Point(nil), s.points...)
}

// Options returns the options of the last update.
func (s *SVG) Options() Options {
	return s.opts
}

func build(points []Point, opts Options) gochart.Chart {
	xs := make([]time.Time, 0, len(points)+1)
	ys := make([]float64, 0, len(points)+1)
	for _, p := range points {
		xs = append(xs, p.Time)
		ys = append(ys, p.Value)
	}
	// go-chart needs two distinct x values.
	if len(xs) == 1 || (len(xs) > 1 && xs[0].Equal(xs[len(xs)-1])) {
		xs = append(xs, xs[len(xs)-1].Add(time.Second))
		ys = append(ys, ys[len(ys)-1])
	}

	xName, yName := axisNames(opts)
	c := gochart.Chart{
		Width:  opts.Width,
		Height: opts.Height,
		Background: gochart.Style{Padding: gochart.Box{
			Left:   opts.YAxisLabelWidth / 4,
			Bottom: opts.XAxisLabelWidth / 4,
			Top:    12,
			Right:  12,
		}},
		XAxis: gochart.XAxis{Name: xName, ValueFormatter: gochart.TimeValueFormatter},
		YAxis: gochart.YAxis{Name: yName, Range: flatRange(ys)},
		Series: []gochart.Series{gochart.TimeSeries{
			Name:    yName,
			XValues: xs,
			YValues: ys,
			Style:   gochart.Style{StrokeColor: drawing.ColorBlue, StrokeWidth: 1.5},
		}},
	}
	return c
}

func axisNames(opts Options) (string, string) {
	x, y := "X", "Y"
	if len(opts.Labels) > 0 {
		x = opts.Labels[0]
	}
	if len(opts.Labels) > 1 {
		y = opts.Labels[1]
	}
	if opts.YLabel != "" {
		y = opts.YLabel
	}
	return x, y
}

// flatRange widens a constant series so the y axis has a non-zero span.
func flatRange(ys []float64) gochart.Range {
	if len(ys) == 0 {
		return nil
	}
	lo, hi := ys[0], ys[0]
	for _, v := range ys[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if lo != hi {
		return nil
	}
	return &gochart.ContinuousRange{Min: lo - 1, Max: hi + 1}
}
