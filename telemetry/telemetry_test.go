package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func resetCounters() {
	countersMu.Lock()
	counters = make(map[string]*prometheus.CounterVec)
	countersMu.Unlock()
}

func TestNoopCollector(t *testing.T) {
	collector := Noop()
	require.NotNil(t, collector)
	collector.IncSubscribe("websocket")
	collector.AddSamplesEvicted("foo", 3)
}

func TestPrometheusCollectorRegistersAndReusesCounters(t *testing.T) {
	resetCounters()

	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.NotNil(t, collector)

	collector.IncSubscribe("websocket")

	family := findFamily(t, reg, "cswui_transport_subscribe_requests_total")
	requireCounterValue(t, family, 1)

	again, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, collector.subscribes, again.subscribes)

	again.IncSubscribe("websocket")
	family = findFamily(t, reg, "cswui_transport_subscribe_requests_total")
	requireCounterValue(t, family, 2)
}

func TestPrometheusCollectorReusesForeignRegistration(t *testing.T) {
	resetCounters()
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	resetCounters()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	collector.AddSamplesEvicted("foo", 4)
	collector.AddSamplesEvicted("foo", 0)
	requireCounterValue(t, findFamily(t, reg, "cswui_series_samples_evicted_total"), 4)
}

func TestPrometheusCollectorCountsReloads(t *testing.T) {
	resetCounters()
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	collector.IncReload("/etc/cswui/page.html")
	collector.IncReload("/etc/cswui/page.html")
	family := findFamily(t, reg, "cswui_hot_reloads_total")
	requireCounterValue(t, family, 2)
	require.Equal(t, "/etc/cswui/page.html", family.Metric[0].Label[0].GetValue())
}

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return nil
}

func requireCounterValue(t *testing.T, mf *dto.MetricFamily, value float64) {
	t.Helper()
	require.Len(t, mf.Metric, 1)
	require.NotNil(t, mf.Metric[0].Counter)
	require.Equal(t, value, mf.Metric[0].Counter.GetValue())
}
