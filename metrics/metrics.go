// Package metrics exposes the core's counters, gauges, and histograms
// through a Prometheus registry. This stands in for the spec's InfluxDB
// sink (spec.md §6): the metric *contract* (named counters/gauges/
// histograms with tags) is identical, only the wire format differs.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics the core emits, created lazily and keyed by
// name so callers never need to guard against nil (get-or-create, matching
// the teacher's metrics.Registry).
type Registry struct {
	mu         sync.RWMutex
	reg        *prometheus.Registry
	namespace  string
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewRegistry creates a Registry with runtime collectors already attached.
func NewRegistry(namespace string) *Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(prometheus.NewGoCollector())
	r.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return &Registry{
		reg:        r,
		namespace:  namespace,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Counter returns the named counter vector, creating it (with the given
// label names) on first access.
func (r *Registry) Counter(name, help string, labels ...string) *prometheus.CounterVec {
	r.mu.RLock()
	c, ok := r.counters[name]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.counters[name]; ok {
		return c
	}
	c = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      help,
	}, labels)
	r.reg.MustRegister(c)
	r.counters[name] = c
	return c
}

// Gauge returns the named gauge vector, creating it on first access.
func (r *Registry) Gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	r.mu.RLock()
	g, ok := r.gauges[name]
	r.mu.RUnlock()
	if ok {
		return g
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok = r.gauges[name]; ok {
		return g
	}
	g = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      help,
	}, labels)
	r.reg.MustRegister(g)
	r.gauges[name] = g
	return g
}

// Histogram returns the named histogram vector, creating it on first access.
func (r *Registry) Histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	r.mu.RLock()
	h, ok := r.histograms[name]
	r.mu.RUnlock()
	if ok {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok = r.histograms[name]; ok {
		return h
	}
	h = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
	r.reg.MustRegister(h)
	r.histograms[name] = h
	return h
}

// Handler returns the HTTP handler serving this registry's metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Core holds the fixed set of metrics every actor in the pipeline emits
// into, created once at startup and passed down by reference.
type Core struct {
	Registry *Registry

	CandidatesFound  *prometheus.CounterVec
	CandidatesDropped *prometheus.CounterVec
	SearchLatency    *prometheus.HistogramVec
	ProfitWei        *prometheus.HistogramVec
	RelaySubmissions *prometheus.CounterVec
	MirrorAccounts   *prometheus.GaugeVec
	PoolsDisabled    *prometheus.GaugeVec
}

// NewCore wires up the standard metric set on top of reg, so the caller can
// serve the same registry over HTTP that the pipeline's actors emit into.
func NewCore(reg *Registry) *Core {
	return &Core{
		Registry:          reg,
		CandidatesFound:   reg.Counter("candidates_found_total", "path search candidates emitted", "trigger"),
		CandidatesDropped: reg.Counter("candidates_dropped_total", "candidates dropped before broadcast, by rejecting stage", "reason"),
		SearchLatency:     reg.Histogram("search_latency_seconds", "time spent per backrun search cycle", prometheus.DefBuckets),
		ProfitWei:         reg.Histogram("candidate_profit_wei", "estimated profit of emitted candidates", prometheus.ExponentialBuckets(1e9, 10, 10)),
		RelaySubmissions:  reg.Counter("relay_submissions_total", "bundle submissions to private relays", "relay", "outcome"),
		MirrorAccounts:    reg.Gauge("mirror_accounts", "accounts tracked in the market-state mirror"),
		PoolsDisabled:     reg.Gauge("pools_disabled", "pools currently quarantined by the health monitor"),
	}
}
