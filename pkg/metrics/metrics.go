// Package metrics exports the VNF's Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/newtron-network/routevnf/pkg/routing"
)

// Metrics holds every collector on a private registry, so that a
// restarted VNF can keep reporting into the same series.
type Metrics struct {
	reg *prometheus.Registry

	events    *prometheus.CounterVec
	calls     *prometheus.CounterVec
	routes    *prometheus.CounterVec
	batchSize *prometheus.HistogramVec
	installed prometheus.Gauge
	missing   prometheus.Gauge
	nodes     prometheus.Gauge
	links     prometheus.Gauge
	restarts  prometheus.Counter
}

// New creates the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "routevnf_events_total",
			Help: "Topology events applied, by family.",
		}, []string{"family"}),
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "routevnf_controller_calls_total",
			Help: "Batched route calls sent to the controller, by action and result.",
		}, []string{"action", "result"}),
		routes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "routevnf_routes_total",
			Help: "Routes created or deleted on the controller.",
		}, []string{"action"}),
		batchSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "routevnf_batch_size",
			Help:    "Number of routes per controller call.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"action"}),
		installed: f.NewGauge(prometheus.GaugeOpts{
			Name: "routevnf_routes_installed",
			Help: "Host pairs that currently hold a route.",
		}),
		missing: f.NewGauge(prometheus.GaugeOpts{
			Name: "routevnf_routes_missing",
			Help: "Host pairs that currently have no route.",
		}),
		nodes: f.NewGauge(prometheus.GaugeOpts{
			Name: "routevnf_topology_nodes",
			Help: "Devices and hosts in the topology mirror.",
		}),
		links: f.NewGauge(prometheus.GaugeOpts{
			Name: "routevnf_topology_links",
			Help: "Directed edges in the topology mirror.",
		}),
		restarts: f.NewCounter(prometheus.CounterOpts{
			Name: "routevnf_restarts_total",
			Help: "VNF restarts after a non-fatal failure.",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(m.reg,
		promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg}))
}

// EventApplied counts one applied event.
func (m *Metrics) EventApplied(family string) {
	m.events.WithLabelValues(family).Inc()
}

// MirrorSize records the size of the topology mirror.
func (m *Metrics) MirrorSize(nodes, links int) {
	m.nodes.Set(float64(nodes))
	m.links.Set(float64(links))
}

// Restarted counts a supervisor restart.
func (m *Metrics) Restarted() {
	m.restarts.Inc()
}

// BatchFlushed implements routing.Observer.
func (m *Metrics) BatchFlushed(b routing.Batch) {
	action := b.Action.String()
	if b.Err != nil {
		m.calls.WithLabelValues(action, "error").Inc()
		return
	}
	m.calls.WithLabelValues(action, "ok").Inc()
	m.routes.WithLabelValues(action).Add(float64(len(b.Routes)))
	m.batchSize.WithLabelValues(action).Observe(float64(len(b.Routes)))
	m.installed.Set(float64(b.Installed))
	m.missing.Set(float64(b.Missing))
}

// TableSynced implements routing.Observer.
func (m *Metrics) TableSynced(entries []routing.Entry) {
	var installed, missing int
	for _, e := range entries {
		if e.Route != nil {
			installed++
		} else {
			missing++
		}
	}
	m.installed.Set(float64(installed))
	m.missing.Set(float64(missing))
}
