package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
)

func TestMetricsHooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnNodeFinish(ctx, &domain.NodeEvent{
		NodeID:   "fetch",
		Status:   domain.ResultSuccess,
		Duration: 20 * time.Millisecond,
	})
	hooks.OnNodeFinish(ctx, &domain.NodeEvent{
		NodeID: "fetch",
		Status: domain.ResultFailed,
	})
	hooks.OnCache(ctx, &domain.CacheEvent{NodeID: "fetch", Hit: true})
	hooks.OnCache(ctx, &domain.CacheEvent{NodeID: "fetch", Hit: false})
	hooks.OnRetry(ctx, &domain.RetryEvent{NodeID: "fetch", Class: "transient"})
	hooks.OnMerge(ctx, &domain.MergeEvent{Strategy: "ALL_SUCCESS", BatchSize: 3})

	families, err := reg.Gather()
	assert.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["arbor_nodes_total"])
	assert.True(t, names["arbor_cache_lookups_total"])

	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.NodesTotal().WithLabelValues(string(domain.ResultSuccess))))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.NodesTotal().WithLabelValues(string(domain.ResultFailed))))
}

func TestCombineHooksFansOut(t *testing.T) {
	var first, second int
	combined := domain.CombineHooks(
		domain.LifecycleHooks{OnRetry: func(context.Context, *domain.RetryEvent) { first++ }},
		domain.LifecycleHooks{OnRetry: func(context.Context, *domain.RetryEvent) { second++ }},
	)
	combined.OnRetry(context.Background(), &domain.RetryEvent{})
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}
