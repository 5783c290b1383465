package arbor_test

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/limits"
)

// ExampleNew demonstrates a small pipeline: two independent nodes run in
// parallel, and a third joins their output into a terminal value.
func ExampleNew() {
	// 1. Define the graph. Each node declares its dependencies and the state
	// keys it reads and writes; the builder rejects cycles and write conflicts.
	g, err := graph.NewBuilder("greeting").
		Add(
			graph.NewFuncNode("upper", nil, func(ctx context.Context, ec *graph.ExecutionContext) (*domain.NodeResult, error) {
				word := ec.State["word"].(string)
				return graph.Success("upper", domain.GraphState{"upper": strings.ToUpper(word)}), nil
			}).WithFootprint([]string{"word"}, []string{"upper"}),
			graph.NewFuncNode("count", nil, func(ctx context.Context, ec *graph.ExecutionContext) (*domain.NodeResult, error) {
				word := ec.State["word"].(string)
				return graph.Success("count", domain.GraphState{"count": len(word)}), nil
			}).WithFootprint([]string{"word"}, []string{"count"}),
			graph.NewFuncNode("join", []string{"upper", "count"}, func(ctx context.Context, ec *graph.ExecutionContext) (*domain.NodeResult, error) {
				return graph.Terminal("join", fmt.Sprintf("%v (%v letters)", ec.State["upper"], ec.State["count"])), nil
			}).WithFootprint([]string{"upper", "count"}, nil),
		).
		Build()
	if err != nil {
		log.Fatal(err)
	}

	// 2. Initialize the engine. The concurrency budget is derived from the
	// provider's rate limit; defaults are in-memory store and cache.
	engine, err := arbor.New(g,
		arbor.WithLimits(limits.Config{
			Limit: limits.ProviderRateLimit{RequestsPerMinute: 60},
		}),
	)
	if err != nil {
		log.Fatal(err)
	}

	// 3. Execute and wait. The handle tracks the run; the final snapshot
	// carries the terminal value and the durable completion record.
	ctx := context.Background()
	handle, err := engine.Execute(ctx, domain.GraphState{"word": "arbor"})
	if err != nil {
		log.Fatal(err)
	}
	snap, err := handle.Wait(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Status: %s\n", snap.Status)
	fmt.Printf("Result: %v\n", snap.Terminal)
	// Output:
	// Status: completed
	// Result: ARBOR (5 letters)
}
