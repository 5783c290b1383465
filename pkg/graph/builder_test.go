package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
)

func noop(id string, deps ...string) *graph.FuncNode {
	return graph.NewFuncNode(id, deps, func(ctx context.Context, ec *graph.ExecutionContext) (*domain.NodeResult, error) {
		return graph.Success(id, nil), nil
	})
}

func TestBuildValidDiamond(t *testing.T) {
	g, err := graph.NewBuilder("diamond").
		Add(
			noop("root"),
			noop("left", "root").WithFootprint(nil, []string{"l"}),
			noop("right", "root").WithFootprint(nil, []string{"r"}),
			noop("join", "left", "right"),
		).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "diamond", g.Name())
	assert.Equal(t, []string{"join", "left", "right", "root"}, g.NodeIDs())
	assert.Equal(t, []string{"left", "right"}, g.Dependents("root"))
}

func TestBuildRejections(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*graph.Graph, error)
	}{
		{
			name: "empty graph",
			build: func() (*graph.Graph, error) {
				return graph.NewBuilder("empty").Build()
			},
		},
		{
			name: "duplicate node",
			build: func() (*graph.Graph, error) {
				return graph.NewBuilder("dup").Add(noop("a"), noop("a")).Build()
			},
		},
		{
			name: "unknown dependency",
			build: func() (*graph.Graph, error) {
				return graph.NewBuilder("dangling").Add(noop("a", "ghost")).Build()
			},
		},
		{
			name: "cycle",
			build: func() (*graph.Graph, error) {
				return graph.NewBuilder("cycle").
					Add(noop("a", "c"), noop("b", "a"), noop("c", "b")).
					Build()
			},
		},
		{
			name: "self cycle",
			build: func() (*graph.Graph, error) {
				return graph.NewBuilder("self").Add(noop("a", "a")).Build()
			},
		},
		{
			name: "concurrent write overlap",
			build: func() (*graph.Graph, error) {
				return graph.NewBuilder("overlap").
					Add(
						noop("a").WithFootprint(nil, []string{"shared"}),
						noop("b").WithFootprint(nil, []string{"shared"}),
					).
					Build()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			assert.ErrorIs(t, err, domain.ErrGraphInvalid)
		})
	}
}

func TestOrderedNodesMayShareWrites(t *testing.T) {
	// a -> b are never in the same batch, so both may write "v".
	_, err := graph.NewBuilder("ordered").
		Add(
			noop("a").WithFootprint(nil, []string{"v"}),
			noop("b", "a").WithFootprint(nil, []string{"v"}),
		).
		Build()
	assert.NoError(t, err)
}

func TestReadyBatches(t *testing.T) {
	g, err := graph.NewBuilder("diamond").
		Add(
			noop("root"),
			noop("left", "root").WithFootprint(nil, []string{"l"}),
			noop("right", "root").WithFootprint(nil, []string{"r"}),
			noop("join", "left", "right"),
		).
		Build()
	require.NoError(t, err)

	ids := func(nodes []graph.Node) []string {
		out := make([]string, len(nodes))
		for i, n := range nodes {
			out[i] = n.ID()
		}
		return out
	}

	done := map[string]bool{}
	assert.Equal(t, []string{"root"}, ids(g.Ready(done)))

	done["root"] = true
	assert.Equal(t, []string{"left", "right"}, ids(g.Ready(done)))

	done["left"] = true
	assert.Equal(t, []string{"right"}, ids(g.Ready(done)), "join waits for both parents")

	done["right"] = true
	assert.Equal(t, []string{"join"}, ids(g.Ready(done)))

	done["join"] = true
	assert.Empty(t, g.Ready(done))
}
