/*
Package graph defines the node contract and the validated pipeline graph.

A Node is a unit of work. It declares the subset of state it reads and writes
(its Footprint), a version tag for cache-key derivation, and an optional
timeout. Nodes must be idempotent given identical inputs: both caching and
replay depend on it. A node may fail with a classified error; it never retries
itself.

Builder validates the graph at construction time: unknown dependencies,
duplicate IDs, cycles, and overlapping write footprints between nodes that
could run in the same parallel batch are all configuration errors rejected by
Build, not runtime surprises.
*/
package graph
