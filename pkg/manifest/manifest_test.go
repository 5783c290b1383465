package manifest_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/manifest"
	"github.com/aretw0/arbor/pkg/registry"
)

const pipelineYAML = `
name: enrich
merge_strategy: ALL_SUCCESS
cache_ttl: 1h
limits:
  limit:
    requests_per_minute: 60
  safety_margin: 0.8
  concurrent_graphs: 2
nodes:
  - id: fetch
    kind: constant
    writes: [body]
    version: v2
    timeout: 10s
    calls_provider: true
    params:
      value: fetched
  - id: summarize
    kind: constant
    depends_on: [fetch]
    reads: [body]
    writes: [summary]
    params:
      value: summarized
`

func constantFactory(spec registry.Spec) (graph.Node, error) {
	var params struct {
		Value string `mapstructure:"value"`
	}
	if err := registry.DecodeParams(spec, &params); err != nil {
		return nil, err
	}
	node := graph.NewFuncNode(spec.ID, spec.DependsOn, func(ctx context.Context, ec *graph.ExecutionContext) (*domain.NodeResult, error) {
		delta := domain.GraphState{}
		for _, key := range spec.Writes {
			delta[key] = params.Value
		}
		return graph.Success(spec.ID, delta), nil
	}).WithFootprint(spec.Reads, spec.Writes).WithTimeout(spec.Timeout.Std())
	if spec.Version != "" {
		node = node.WithVersion(spec.Version)
	}
	if spec.CallsProvider {
		node = node.WithProvider()
	}
	return node, nil
}

func TestParseAndBuild(t *testing.T) {
	m, err := manifest.Parse(strings.NewReader(pipelineYAML))
	require.NoError(t, err)
	assert.Equal(t, "enrich", m.Name)
	assert.Equal(t, "ALL_SUCCESS", m.MergeStrategy)
	assert.Equal(t, time.Hour, m.CacheTTL.Std())
	assert.Equal(t, 60, m.Limits.Limit.RequestsPerMinute)
	require.Len(t, m.Nodes, 2)
	assert.Equal(t, 10*time.Second, m.Nodes[0].Timeout.Std())
	assert.True(t, m.Nodes[0].CallsProvider)

	reg := registry.NewRegistry()
	reg.Register("constant", constantFactory)

	g, err := m.BuildGraph(reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch", "summarize"}, g.NodeIDs())

	node, ok := g.Node("fetch")
	require.True(t, ok)
	assert.Equal(t, "v2", node.Version())
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := manifest.Parse(strings.NewReader("name: x\nnodez: []\n"))
	assert.Error(t, err)
}

func TestParseRejectsEmptyPipeline(t *testing.T) {
	_, err := manifest.Parse(strings.NewReader("name: empty\nnodes: []\n"))
	assert.Error(t, err)
}

func TestBuildGraphUnknownKind(t *testing.T) {
	m, err := manifest.Parse(strings.NewReader(pipelineYAML))
	require.NoError(t, err)

	_, err = m.BuildGraph(registry.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}
