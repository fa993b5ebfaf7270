package page

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/timzifer/cswui/chart"
	"github.com/timzifer/cswui/field"
	"github.com/timzifer/cswui/markup"
	"github.com/timzifer/cswui/options"
	"github.com/timzifer/cswui/transport"
)

const document = `<!DOCTYPE html>
<html><head><title>Beamline</title></head><body>
<div class="csw-readonly-field" id="current">
  <div name="device">foo</div>
  <div name="units">mA</div>
</div>
<div class="csw-readonly-field" id="broken">
  <div name="device">bar</div>
  <div name="rate">fast</div>
</div>
<div class="csw-strip-chart" id="trend">
  <div name="device">baz</div>
</div>
</body></html>`

type stubChart struct {
	container *html.Node
	updates   int
}

func (s *stubChart) Update([]chart.Point, chart.Options) error {
	s.updates++
	markup.SetText(s.container, "drawn")
	return nil
}

func stubFactory(charts *[]*stubChart) chart.Factory {
	return func(container *html.Node, initial []chart.Point, opts chart.Options) (chart.Chart, error) {
		c := &stubChart{container: container}
		*charts = append(*charts, c)
		return c, c.Update(initial, opts)
	}
}

func loadDocument(t *testing.T, tr transport.Transport, opts ...Option) *Page {
	t.Helper()
	p, err := Load(strings.NewReader(document), tr, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func render(t *testing.T, p *Page) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, p.Render(&buf))
	return buf.String()
}

func TestBootstrapBindsSeriesBeforeValues(t *testing.T) {
	tr := transport.NewMemory()
	tr.Open()
	var charts []*stubChart
	p := loadDocument(t, tr, WithChartFactory(stubFactory(&charts)))

	fields := p.Fields()
	require.Len(t, fields, 2)
	require.Equal(t, "epics://baz", fields[0].Topic())
	require.Equal(t, "epics://foo?units=mA", fields[1].Topic())
	require.Equal(t, []string{"epics://baz", "epics://foo?units=mA"}, tr.SubscribeCalls())
	require.Len(t, charts, 1)
}

func TestBootstrapKeepsGoingPastRejectedAnchors(t *testing.T) {
	tr := transport.NewMemory()
	p := loadDocument(t, tr)

	rejected := p.Rejected()
	require.Len(t, rejected, 1)
	require.Equal(t, markup.KindValue, rejected[0].Kind)
	var verr *options.ValidationError
	require.True(t, errors.As(rejected[0].Err, &verr))
	require.Equal(t, options.Rate, verr.Option)

	out := render(t, p)
	require.Contains(t, out, `The &#34;rate&#34; option must have a numeric value.`)
	require.Len(t, p.Fields(), 2)
}

func TestRenderReflectsLiveUpdates(t *testing.T) {
	tr := transport.NewMemory()
	var charts []*stubChart
	p := loadDocument(t, tr, WithChartFactory(stubFactory(&charts)))

	out := render(t, p)
	require.Contains(t, out, field.SocketClosedClass)

	tr.Open()
	_, err := tr.Publish("epics://foo?units=mA", map[string]any{"value": 12.5, "connected": true, "pvname": "SR:C01:CURRENT"})
	require.NoError(t, err)
	_, err = tr.Publish("epics://baz", []map[string]any{{"timestamp": 1, "value": 2}})
	require.NoError(t, err)

	out = render(t, p)
	require.NotContains(t, out, field.SocketClosedClass)
	require.Contains(t, out, `<span class="csw-value">12.5</span>`)
	require.Contains(t, out, `title="SR:C01:CURRENT"`)
	require.Equal(t, 2, charts[0].updates)
}

func TestStatusSnapshots(t *testing.T) {
	tr := transport.NewMemory()
	tr.Open()
	var charts []*stubChart
	p := loadDocument(t, tr, WithChartFactory(stubFactory(&charts)))

	_, err := tr.Publish("epics://foo?units=mA", map[string]any{"value": 3, "connected": false})
	require.NoError(t, err)
	_, err = tr.Publish("epics://baz", []map[string]any{{"timestamp": 1, "value": 2, "units": "V"}})
	require.NoError(t, err)

	status := p.Status()
	require.Len(t, status, 2)
	require.Equal(t, field.Status{Topic: "epics://baz", Device: "baz", State: "device_unknown", Label: "baz [V]", Samples: 1}, status[0])
	require.Equal(t, field.Status{Topic: "epics://foo?units=mA", Device: "foo", State: "device_disconnected", Display: "3", Units: "mA"}, status[1])
}

func TestDefaultProtocol(t *testing.T) {
	tr := transport.NewMemory()
	p := loadDocument(t, tr, WithDefaultProtocol("pva"))
	require.Equal(t, "pva://baz", p.Fields()[0].Topic())
}

func TestCloseReleasesSubscriptions(t *testing.T) {
	tr := transport.NewMemory()
	tr.Open()
	p, err := Load(strings.NewReader(document), tr)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	require.Empty(t, tr.Topics())
	require.ElementsMatch(t, []string{"epics://baz", "epics://foo?units=mA"}, tr.Released())
}

func TestPageWithoutAnchors(t *testing.T) {
	tr := transport.NewMemory()
	p, err := Load(strings.NewReader(`<p>static</p>`), tr)
	require.NoError(t, err)
	require.Empty(t, p.Fields())
	require.Empty(t, p.Status())
	require.Contains(t, render(t, p), "<p>static</p>")
}
