/*
Package cache implements the deterministic node-result cache.

Keys are a pure function of (node identity, serialized inputs, version tag):
identical inputs always yield the identical key, and bumping the version
always changes the key, so stale entries become unreachable without explicit
deletion. Invalidate exists for externally-triggered staleness where version
bumping is not the trigger.

Memory is the in-process implementation: LRU eviction at capacity plus
TTL-based expiry. For a cache shared across engine replicas, use the Redis
adapter in pkg/adapters/redis.
*/
package cache
