package relaycli

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromMetrics records the same metric names as Metrics into a Prometheus
// registry. Console mode uses it so a local run can be scraped.
type PromMetrics struct {
	factory promauto.Factory
	service Service

	mu         sync.Mutex
	counters   map[MetricName]*prometheus.CounterVec
	histograms map[MetricName]*prometheus.HistogramVec
	gauges     map[MetricName]*prometheus.GaugeVec
}

func NewPromMetrics(service Service, registerer prometheus.Registerer) *PromMetrics {
	return &PromMetrics{
		factory:    promauto.With(registerer),
		service:    service,
		counters:   map[MetricName]*prometheus.CounterVec{},
		histograms: map[MetricName]*prometheus.HistogramVec{},
		gauges:     map[MetricName]*prometheus.GaugeVec{},
	}
}

// label names are fixed per metric on first use; later calls fill missing
// labels with "".
var promLabels = []DimensionName{OperationNameDimension, TargetKindDimension}

func promName(name MetricName) string {
	var b strings.Builder
	b.WriteString("relay_")
	for i, r := range string(name) {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func labelNames() []string {
	names := make([]string, len(promLabels))
	for i, l := range promLabels {
		names[i] = strings.ToLower(string(l))
	}
	return names
}

func labelValues(dimensions []map[DimensionName]string) []string {
	values := make([]string, len(promLabels))
	for _, ds := range dimensions {
		for i, l := range promLabels {
			if v, ok := ds[l]; ok {
				values[i] = v
			}
		}
	}
	return values
}

func (p *PromMetrics) counter(name MetricName) *prometheus.CounterVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c
	}
	c := p.factory.NewCounterVec(prometheus.CounterOpts{
		Name:        promName(name) + "_total",
		Help:        string(name) + " events",
		ConstLabels: prometheus.Labels{"service": p.service.Name},
	}, labelNames())
	p.counters[name] = c
	return c
}

func (p *PromMetrics) histogram(name MetricName) *prometheus.HistogramVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.histograms[name]; ok {
		return h
	}
	h := p.factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:        promName(name) + "_milliseconds",
		Help:        string(name) + " in milliseconds",
		Buckets:     []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		ConstLabels: prometheus.Labels{"service": p.service.Name},
	}, labelNames())
	p.histograms[name] = h
	return h
}

func (p *PromMetrics) gauge(name MetricName) *prometheus.GaugeVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok := p.gauges[name]; ok {
		return g
	}
	g := p.factory.NewGaugeVec(prometheus.GaugeOpts{
		Name:        promName(name),
		Help:        string(name),
		ConstLabels: prometheus.Labels{"service": p.service.Name},
	}, labelNames())
	p.gauges[name] = g
	return g
}

func (p *PromMetrics) Event(_ context.Context, name MetricName, dimensions ...map[DimensionName]string) {
	p.counter(name).WithLabelValues(labelValues(dimensions)...).Inc()
}

func (p *PromMetrics) Timing(_ context.Context, name MetricName, start time.Time, dimensions ...map[DimensionName]string) {
	p.histogram(name).WithLabelValues(labelValues(dimensions)...).Observe(float64(time.Since(start).Milliseconds()))
}

func (p *PromMetrics) Gauge(_ context.Context, name MetricName, value float64, dimensions ...map[DimensionName]string) {
	p.gauge(name).WithLabelValues(labelValues(dimensions)...).Set(value)
}
