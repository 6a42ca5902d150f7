// Package metrics exposes delivery counters for the two streams.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"connectivity-listener/internal/subscription"
)

// Recorder implements watcher.Observer and subscription.Hooks.
type Recorder struct {
	reg       *prometheus.Registry
	delivered *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	failures  *prometheus.CounterVec
	active    *prometheus.GaugeVec
}

// New registers the collectors on a private registry.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connectivity_events_delivered_total",
			Help: "State change events delivered to subscribers.",
		}, []string{"watcher"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connectivity_events_dropped_total",
			Help: "Notifications dropped because they carried the error sentinel.",
		}, []string{"watcher"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connectivity_attach_failures_total",
			Help: "Failed attach attempts by failure kind.",
		}, []string{"stream", "kind"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "connectivity_active_subscriptions",
			Help: "1 while the stream has a subscriber.",
		}, []string{"stream"}),
	}
	r.reg.MustRegister(r.delivered, r.dropped, r.failures, r.active)
	return r
}

func (r *Recorder) Delivered(name string) { r.delivered.WithLabelValues(name).Inc() }
func (r *Recorder) Dropped(name string)   { r.dropped.WithLabelValues(name).Inc() }

func (r *Recorder) Attached(id subscription.StreamID) {
	r.active.WithLabelValues(string(id)).Set(1)
}

func (r *Recorder) Detached(id subscription.StreamID) {
	r.active.WithLabelValues(string(id)).Set(0)
}

func (r *Recorder) AttachFailed(id subscription.StreamID, kind string) {
	r.failures.WithLabelValues(string(id), kind).Inc()
}

// Registry returns the registry holding the collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
