/*
Package arbor is a durable, resumable execution engine for DAG pipelines whose
nodes invoke rate-limited external services.

It schedules independent nodes in parallel batches under a concurrency budget
derived from the provider's rate limit, caches node results by (identity,
inputs, version), classifies failures for retry or escalation, and persists a
snapshot plus an append-only provenance chain at every batch boundary, so an
interrupted execution resumes from its last completed node instead of starting
over.

# Concept

A pipeline is a validated DAG of nodes. Each node declares its dependencies,
the state it reads and writes, a logic version tag, and whether it calls the
external provider. The engine owns scheduling, state isolation, merging,
caching, retry, and persistence; nodes own only their domain work.

# Key Features

  - Bounded concurrency: parallel calls never exceed the budget computed from
    the provider limit, safety margin, and concurrent graph count.
  - Deterministic merging: repeated execution of an identical batch yields
    bit-identical merged output under a fixed merge strategy.
  - Durable execution: snapshots are atomic, provenance is append-only, and
    cancellation never corrupts the record.
  - Hexagonal architecture: stores, caches, lockers, and provider clients are
    ports with in-memory, Badger, and Redis adapters.

# Usage

	g, err := graph.NewBuilder("enrich").
		Add(
			graph.NewFuncNode("fetch", nil, fetchFn).
				WithFootprint(nil, []string{"body"}).
				WithProvider(),
			graph.NewFuncNode("summarize", []string{"fetch"}, summarizeFn).
				WithFootprint([]string{"body"}, []string{"summary"}),
		).
		Build()
	if err != nil {
		log.Fatal(err)
	}

	engine, err := arbor.New(g,
		arbor.WithLimits(limits.Config{
			Limit: limits.ProviderRateLimit{RequestsPerMinute: 60},
		}),
	)
	if err != nil {
		log.Fatal(err)
	}

	handle, err := engine.Execute(ctx, domain.GraphState{"url": "https://example.com"})
	if err != nil {
		log.Fatal(err)
	}
	snap, err := handle.Wait(ctx)

An interrupted execution picks up where it stopped:

	handle, err = engine.Resume(ctx, snap.ExecutionID)
*/
package arbor
