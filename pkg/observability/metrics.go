package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/arbor/pkg/domain"
)

// Metrics bundles the engine's Prometheus collectors. Attach it to an engine
// through Hooks; the hooks run synchronously on executor goroutines, so all
// observations are cheap counter/histogram updates.
type Metrics struct {
	nodesTotal   *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	cacheOps     *prometheus.CounterVec
	retriesTotal *prometheus.CounterVec
	mergesTotal  *prometheus.CounterVec
}

// NewMetrics creates the collector set and registers it with reg.
// Pass prometheus.DefaultRegisterer for the process-global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		nodesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbor",
			Name:      "nodes_total",
			Help:      "Node invocations by final status.",
		}, []string{"status"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arbor",
			Name:      "node_duration_seconds",
			Help:      "Wall time of node invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"node"}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbor",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by outcome.",
		}, []string{"outcome"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbor",
			Name:      "retries_total",
			Help:      "Scheduled node retries by failure class.",
		}, []string{"class"}),
		mergesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbor",
			Name:      "merges_total",
			Help:      "Batch merges by strategy.",
		}, []string{"strategy"}),
	}
	reg.MustRegister(m.nodesTotal, m.nodeDuration, m.cacheOps, m.retriesTotal, m.mergesTotal)
	return m
}

// NodesTotal exposes the node counter for tests and dashboards.
func (m *Metrics) NodesTotal() *prometheus.CounterVec { return m.nodesTotal }

// Hooks returns the lifecycle hooks feeding these collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeFinish: func(_ context.Context, ev *domain.NodeEvent) {
			m.nodesTotal.WithLabelValues(string(ev.Status)).Inc()
			m.nodeDuration.WithLabelValues(ev.NodeID).Observe(ev.Duration.Seconds())
		},
		OnCache: func(_ context.Context, ev *domain.CacheEvent) {
			outcome := "miss"
			if ev.Hit {
				outcome = "hit"
			}
			m.cacheOps.WithLabelValues(outcome).Inc()
		},
		OnRetry: func(_ context.Context, ev *domain.RetryEvent) {
			m.retriesTotal.WithLabelValues(ev.Class).Inc()
		},
		OnMerge: func(_ context.Context, ev *domain.MergeEvent) {
			m.mergesTotal.WithLabelValues(ev.Strategy).Inc()
		},
	}
}
