package observability

import (
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability"
)

type provider struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics observability.Metrics
}

// Instruments are the metric handles the provider hands out by key.
type Instruments struct {
	Counters   map[observability.MetricKey]observability.Counter
	Histograms map[observability.MetricKey]observability.Histogram
	Gauges     map[observability.MetricKey]observability.Gauge
}

type registeredMetrics struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
	gauges     map[observability.MetricKey]observability.Gauge
}

func (m *registeredMetrics) Counter(name observability.MetricKey) observability.Counter {
	if c, ok := m.counters[name]; ok && c != nil {
		return c
	}
	return observability.NopCounter()
}

func (m *registeredMetrics) Histogram(name observability.MetricKey) observability.Histogram {
	if h, ok := m.histograms[name]; ok && h != nil {
		return h
	}
	return observability.NopHistogram()
}

func (m *registeredMetrics) Gauge(name observability.MetricKey) observability.Gauge {
	if g, ok := m.gauges[name]; ok && g != nil {
		return g
	}
	return observability.NopGauge()
}

// New assembles an Observability provider backed by the supplied tracer,
// logger and metric instruments. Unknown metric keys resolve to no-ops.
func New(tracer observability.Tracer, logger observability.Logger, in Instruments) observability.Observability {
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	m := &registeredMetrics{
		counters:   make(map[observability.MetricKey]observability.Counter, len(in.Counters)),
		histograms: make(map[observability.MetricKey]observability.Histogram, len(in.Histograms)),
		gauges:     make(map[observability.MetricKey]observability.Gauge, len(in.Gauges)),
	}
	for k, v := range in.Counters {
		if v != nil {
			m.counters[k] = v
		}
	}
	for k, v := range in.Histograms {
		if v != nil {
			m.histograms[k] = v
		}
	}
	for k, v := range in.Gauges {
		if v != nil {
			m.gauges[k] = v
		}
	}

	return &provider{
		tracer:  tracer,
		logger:  logger,
		metrics: m,
	}
}

func (p *provider) Tracer() observability.Tracer {
	return p.tracer
}

func (p *provider) Logger() observability.Logger {
	return p.logger
}

func (p *provider) Metrics() observability.Metrics {
	if p.metrics == nil {
		return observability.NopMetrics()
	}
	return p.metrics
}
