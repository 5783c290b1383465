/*
Package limits computes and enforces the concurrency budget.

The budget is a derived value: it is recomputed from the provider rate limit,
the safety margin, and the expected number of concurrent graph executions
whenever those inputs change, and is never stored as ground truth.

Admission enforces the budget at runtime with two mechanisms: weighted
semaphores bound the number of simultaneously executing nodes (with a tighter
bound for nodes that invoke the provider), and a token-bucket rate limiter
paces the sustained call rate. Exhaustion blocks the caller; it is never
surfaced as an error.
*/
package limits
