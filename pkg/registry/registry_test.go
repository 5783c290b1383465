package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/registry"
)

func noopFactory(spec registry.Spec) (graph.Node, error) {
	return graph.NewFuncNode(spec.ID, spec.DependsOn, func(ctx context.Context, ec *graph.ExecutionContext) (*domain.NodeResult, error) {
		return graph.Success(spec.ID, nil), nil
	}), nil
}

func TestRegistryBuild(t *testing.T) {
	reg := registry.NewRegistry()
	reg.Register("noop", noopFactory)

	node, err := reg.Build(registry.Spec{ID: "a", Kind: "noop"})
	require.NoError(t, err)
	assert.Equal(t, "a", node.ID())

	_, err = reg.Build(registry.Spec{ID: "b", Kind: "missing"})
	assert.Error(t, err)
}

func TestRegistryFactoryErrorIsWrapped(t *testing.T) {
	sentinel := errors.New("bad params")
	reg := registry.NewRegistry()
	reg.Register("broken", func(registry.Spec) (graph.Node, error) {
		return nil, sentinel
	})

	_, err := reg.Build(registry.Spec{ID: "x", Kind: "broken"})
	assert.ErrorIs(t, err, sentinel)
}

func TestDecodeParams(t *testing.T) {
	spec := registry.Spec{
		ID:   "n",
		Kind: "k",
		Params: map[string]any{
			"endpoint": "https://api.example.com",
			"retries":  "3", // weakly typed
			"interval": "250ms",
		},
	}

	var params struct {
		Endpoint string        `mapstructure:"endpoint"`
		Retries  int           `mapstructure:"retries"`
		Interval time.Duration `mapstructure:"interval"`
	}
	require.NoError(t, registry.DecodeParams(spec, &params))
	assert.Equal(t, "https://api.example.com", params.Endpoint)
	assert.Equal(t, 3, params.Retries)
	assert.Equal(t, 250*time.Millisecond, params.Interval)
}
