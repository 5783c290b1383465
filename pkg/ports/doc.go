/*
Package ports defines the driven ports (interfaces) for the Arbor engine.

These interfaces decouple the core executor from external implementations,
allowing the engine to work with various persistence backends, result caches,
and provider clients.

# Key Interfaces

  - ExecutionStore: durable snapshots plus the ordered, append-only provenance log.
  - ResultCache: deterministic node-result cache with TTL and pattern invalidation.
  - Invoker: the single asynchronous external-call contract consumed by nodes.
  - DistributedLocker: coordination of concurrent access to one execution across replicas.

The package also exports contract test suites (RunExecutionStoreContract,
RunResultCacheContract) that adapter implementations run against themselves.
*/
package ports
