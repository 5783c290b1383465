/*
Package retry classifies node failures and decides the retry/escalation policy.

Classification is three-way: transient failures (provider timeouts, rate-limit
rejections, upstream 5xx) retry with exponential backoff and jitter; permanent
failures (malformed input, schema violations) escalate immediately; unknown
failures get a single retry before escalating.

The package only decides; the executor applies the decision. On every retry
the executor discards the failed attempt's state mutations and restarts from
the last durable snapshot, so retries never compound partial side effects.
*/
package retry
