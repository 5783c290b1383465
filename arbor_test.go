package arbor_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/limits"
)

func simpleGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.NewBuilder("pipeline").
		Add(
			graph.NewFuncNode("double", nil, func(ctx context.Context, ec *graph.ExecutionContext) (*domain.NodeResult, error) {
				n, err := ec.State["n"].(json.Number).Int64()
				if err != nil {
					return nil, err
				}
				return graph.Success("double", domain.GraphState{"doubled": n * 2}), nil
			}).WithFootprint([]string{"n"}, []string{"doubled"}),
			graph.NewFuncNode("report", []string{"double"}, func(ctx context.Context, ec *graph.ExecutionContext) (*domain.NodeResult, error) {
				return graph.Terminal("report", ec.State["doubled"]), nil
			}).WithFootprint([]string{"doubled"}, nil),
		).
		Build()
	require.NoError(t, err)
	return g
}

func TestEngineExecuteToCompletion(t *testing.T) {
	engine, err := arbor.New(simpleGraph(t))
	require.NoError(t, err)

	handle, err := engine.Execute(context.Background(), domain.GraphState{"n": 21})
	require.NoError(t, err)

	snap, err := handle.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, handle.Status())
	assert.Equal(t, domain.StatusCompleted, snap.Status)
	assert.NotNil(t, snap.Terminal)
}

func TestEngineResumeCompletedReturnsSameResult(t *testing.T) {
	store := memory.NewStore()
	engine, err := arbor.New(simpleGraph(t), arbor.WithStore(store))
	require.NoError(t, err)

	handle, err := engine.Execute(context.Background(), domain.GraphState{"n": 4})
	require.NoError(t, err)
	first, err := handle.Wait(context.Background())
	require.NoError(t, err)

	resumed, err := engine.Resume(context.Background(), handle.ExecutionID)
	require.NoError(t, err)
	again, err := resumed.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, again.Status)
	assert.EqualValues(t, first.Terminal, again.Terminal)
	assert.Equal(t, first.CompletedNodes, again.CompletedNodes)
}

func TestEngineResumeContinuesSuspended(t *testing.T) {
	store := memory.NewStore()

	build := func() *graph.Graph {
		g, err := graph.NewBuilder("two-step").
			Add(
				graph.NewFuncNode("first", nil, func(ctx context.Context, ec *graph.ExecutionContext) (*domain.NodeResult, error) {
					return graph.Success("first", domain.GraphState{"step": 1}), nil
				}),
				graph.NewFuncNode("second", []string{"first"}, func(ctx context.Context, ec *graph.ExecutionContext) (*domain.NodeResult, error) {
					return graph.Success("second", domain.GraphState{"step": 2}), nil
				}),
			).
			Build()
		require.NoError(t, err)
		return g
	}

	// Simulate an interrupted run: a snapshot suspended after the first node.
	snap := &domain.Snapshot{
		ExecutionID:    "interrupted-1",
		GraphName:      "two-step",
		State:          domain.GraphState{"step": 1},
		InitialState:   domain.GraphState{},
		CompletedNodes: []string{"first"},
		Status:         domain.StatusSuspended,
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.SaveSnapshot(context.Background(), snap))

	engine, err := arbor.New(build(), arbor.WithStore(store))
	require.NoError(t, err)

	handle, err := engine.Resume(context.Background(), "interrupted-1")
	require.NoError(t, err)
	final, err := handle.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, final.Status)
	assert.Equal(t, []string{"first", "second"}, final.CompletedNodes)
}

func TestEngineCancel(t *testing.T) {
	started := make(chan struct{})
	g, err := graph.NewBuilder("hang").
		Add(graph.NewFuncNode("hang", nil, func(ctx context.Context, ec *graph.ExecutionContext) (*domain.NodeResult, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})).
		Build()
	require.NoError(t, err)

	engine, err := arbor.New(g)
	require.NoError(t, err)

	handle, err := engine.Execute(context.Background(), domain.GraphState{})
	require.NoError(t, err)
	<-started
	assert.Equal(t, domain.StatusRunning, handle.Status())

	require.NoError(t, engine.Cancel(context.Background(), handle.ExecutionID))
	_, err = handle.Wait(context.Background())
	assert.ErrorIs(t, err, domain.ErrExecutionCanceled)
	assert.Equal(t, domain.StatusSuspended, handle.Status())

	// Cancelling an execution that is no longer in flight is not found.
	err = engine.Cancel(context.Background(), handle.ExecutionID)
	assert.ErrorIs(t, err, domain.ErrExecutionNotFound)
}

func TestEngineHistoryAvailableWhileRunning(t *testing.T) {
	started := make(chan struct{})
	g, err := graph.NewBuilder("long").
		Add(graph.NewFuncNode("slow", nil, func(ctx context.Context, ec *graph.ExecutionContext) (*domain.NodeResult, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})).
		Build()
	require.NoError(t, err)

	engine, err := arbor.New(g)
	require.NoError(t, err)

	handle, err := engine.Execute(context.Background(), domain.GraphState{})
	require.NoError(t, err)
	<-started

	// A monitoring read must return promptly even though the execution holds
	// its run lock.
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	rec, err := engine.History(ctx, handle.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, rec.Snapshot.Status)

	require.NoError(t, engine.Cancel(context.Background(), handle.ExecutionID))
	_, _ = handle.Wait(context.Background())
}

func TestEngineHistoryCarriesProvenance(t *testing.T) {
	engine, err := arbor.New(simpleGraph(t))
	require.NoError(t, err)

	handle, err := engine.Execute(context.Background(), domain.GraphState{"n": 2})
	require.NoError(t, err)
	_, err = handle.Wait(context.Background())
	require.NoError(t, err)

	rec, err := engine.History(context.Background(), handle.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, rec.Snapshot.Status)
	require.NotEmpty(t, rec.Provenance)
	for i := 1; i < len(rec.Provenance); i++ {
		assert.Greater(t, rec.Provenance[i].Seq, rec.Provenance[i-1].Seq)
	}
}

func TestEngineReplayMatchesOriginal(t *testing.T) {
	store := memory.NewStore()
	engine, err := arbor.New(simpleGraph(t), arbor.WithStore(store))
	require.NoError(t, err)

	handle, err := engine.Execute(context.Background(), domain.GraphState{"n": 3})
	require.NoError(t, err)
	original, err := handle.Wait(context.Background())
	require.NoError(t, err)

	replay, err := engine.Replay(context.Background(), handle.ExecutionID)
	require.NoError(t, err)
	replayed, err := replay.Wait(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, original.ExecutionID, replayed.ExecutionID)
	assert.True(t, replayed.Replay)
	assert.Equal(t, original.ExecutionID, replayed.OriginalID)
	assert.False(t, replayed.DeterminismFlagged, "deterministic nodes must replay identically")

	rec, err := engine.History(context.Background(), replayed.ExecutionID)
	require.NoError(t, err)
	assert.True(t, rec.Replay)
	assert.Equal(t, original.ExecutionID, rec.OriginalID)

	// The provenance chain itself records the lineage, not just the snapshot.
	var lineage bool
	for _, entry := range rec.Provenance {
		if entry.Kind == domain.ProvenanceReplay {
			lineage = true
			assert.Contains(t, entry.Detail, original.ExecutionID)
		}
	}
	assert.True(t, lineage, "replay must open its provenance with the origin reference")
}

func TestEngineReplayFlagsDivergence(t *testing.T) {
	store := memory.NewStore()
	counter := 0
	g, err := graph.NewBuilder("nondeterministic").
		Add(graph.NewFuncNode("tick", nil, func(ctx context.Context, ec *graph.ExecutionContext) (*domain.NodeResult, error) {
			counter++
			return graph.Success("tick", domain.GraphState{"count": counter}), nil
		})).
		Build()
	require.NoError(t, err)

	engine, err := arbor.New(g, arbor.WithStore(store))
	require.NoError(t, err)

	handle, err := engine.Execute(context.Background(), domain.GraphState{})
	require.NoError(t, err)
	_, err = handle.Wait(context.Background())
	require.NoError(t, err)

	replay, err := engine.Replay(context.Background(), handle.ExecutionID)
	require.NoError(t, err)
	_, err = replay.Wait(context.Background())
	require.NoError(t, err)

	rec, err := engine.History(context.Background(), replay.ExecutionID)
	require.NoError(t, err)
	assert.True(t, rec.DeterminismFlagged, "divergent replay must be flagged, not hidden")

	var anomaly bool
	for _, entry := range rec.Provenance {
		if entry.Kind == domain.ProvenanceAnomaly {
			anomaly = true
		}
	}
	assert.True(t, anomaly)
}

func TestEngineBudgetDefaultsConservative(t *testing.T) {
	engine, err := arbor.New(simpleGraph(t))
	require.NoError(t, err)
	assert.Equal(t, 1, engine.Budget().MaxParallelCalls, "unknown provider limit must degrade to one call at a time")

	configured, err := arbor.New(simpleGraph(t), arbor.WithLimits(limits.Config{
		Limit:            limits.ProviderRateLimit{RequestsPerMinute: 60},
		SafetyMargin:     0.8,
		ConcurrentGraphs: 2,
	}))
	require.NoError(t, err)
	assert.Equal(t, 24, configured.Budget().MaxParallelCalls)
}
