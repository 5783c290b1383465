/*
Package observability provides tools for monitoring the engine.

It exposes Prometheus collectors for node outcomes, cache effectiveness,
retries, and batch merges, delivered to the executor as lifecycle hooks.
*/
package observability
