package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by transports and fields.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. Hooks run inline with event dispatch and must not block.
type Collector interface {
	IncReconnect(transport string)
	IncSubscribe(transport string)
	IncMessage(transport string)
	IncConfigError(option string)
	IncFieldTransition(state string)
	AddSamplesEvicted(device string, count int)
	IncReload(file string)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncReconnect(string)           {}
func (noopCollector) IncSubscribe(string)           {}
func (noopCollector) IncMessage(string)             {}
func (noopCollector) IncConfigError(string)         {}
func (noopCollector) IncFieldTransition(string)     {}
func (noopCollector) AddSamplesEvicted(string, int) {}
func (noopCollector) IncReload(string)              {}

// PrometheusCollector exposes telemetry counters via Prometheus.
type PrometheusCollector struct {
	reconnects  *prometheus.CounterVec
	subscribes  *prometheus.CounterVec
	messages    *prometheus.CounterVec
	configErrs  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	evicted     *prometheus.CounterVec
	reloads     *prometheus.CounterVec
}

var (
	countersMu sync.Mutex
	counters   = make(map[string]*prometheus.CounterVec)
)

// NewPrometheusCollector registers the required metrics with the provided
// registerer. Registering twice against the same registerer reuses the
// existing vectors.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	countersMu.Lock()
	defer countersMu.Unlock()

	var err error
	c := &PrometheusCollector{}
	if c.reconnects, err = registerCounter(reg, "cswui_transport_reconnects_total",
		"Number of transport connection attempts after the first.", "transport"); err != nil {
		return nil, err
	}
	if c.subscribes, err = registerCounter(reg, "cswui_transport_subscribe_requests_total",
		"Number of subscribe requests sent upstream.", "transport"); err != nil {
		return nil, err
	}
	if c.messages, err = registerCounter(reg, "cswui_transport_messages_total",
		"Number of topic messages delivered to listeners.", "transport"); err != nil {
		return nil, err
	}
	if c.configErrs, err = registerCounter(reg, "cswui_field_config_errors_total",
		"Number of fields that failed option validation.", "option"); err != nil {
		return nil, err
	}
	if c.transitions, err = registerCounter(reg, "cswui_field_transitions_total",
		"Number of field connectivity transitions per target state.", "state"); err != nil {
		return nil, err
	}
	if c.evicted, err = registerCounter(reg, "cswui_series_samples_evicted_total",
		"Number of samples evicted from series buffers.", "device"); err != nil {
		return nil, err
	}
	if c.reloads, err = registerCounter(reg, "cswui_hot_reloads_total",
		"Number of restarts triggered by a changed configuration or page file.", "file"); err != nil {
		return nil, err
	}
	return c, nil
}

func registerCounter(reg prometheus.Registerer, name, help, label string) (*prometheus.CounterVec, error) {
	if existing, ok := counters[name]; ok {
		return existing, nil
	}
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, []string{label})
	if err := reg.Register(counter); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		counter = existing
	}
	counters[name] = counter
	return counter, nil
}

// IncReconnect records a reconnect attempt.
func (p *PrometheusCollector) IncReconnect(transport string) {
	if p == nil || p.reconnects == nil {
		return
	}
	p.reconnects.WithLabelValues(transport).Inc()
}

// IncSubscribe records an upstream subscribe request.
func (p *PrometheusCollector) IncSubscribe(transport string) {
	if p == nil || p.subscribes == nil {
		return
	}
	p.subscribes.WithLabelValues(transport).Inc()
}

// IncMessage records a delivered topic message.
func (p *PrometheusCollector) IncMessage(transport string) {
	if p == nil || p.messages == nil {
		return
	}
	p.messages.WithLabelValues(transport).Inc()
}

// IncConfigError records a field rejected during option validation.
func (p *PrometheusCollector) IncConfigError(option string) {
	if p == nil || p.configErrs == nil {
		return
	}
	p.configErrs.WithLabelValues(option).Inc()
}

// IncFieldTransition records a field entering the given state.
func (p *PrometheusCollector) IncFieldTransition(state string) {
	if p == nil || p.transitions == nil {
		return
	}
	p.transitions.WithLabelValues(state).Inc()
}

// AddSamplesEvicted records samples dropped from a series buffer.
func (p *PrometheusCollector) AddSamplesEvicted(device string, count int) {
	if p == nil || p.evicted == nil || count <= 0 {
		return
	}
	p.evicted.WithLabelValues(device).Add(float64(count))
}

// IncReload records a restart caused by a changed file.
func (p *PrometheusCollector) IncReload(file string) {
	if p == nil || p.reloads == nil {
		return
	}
	p.reloads.WithLabelValues(file).Inc()
}
