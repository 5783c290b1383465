/*
Package exec coordinates concurrent access to executions.

It provides per-execution locking with reference-counted garbage collection,
optionally layered over a distributed locker so that multiple engine replicas
never operate on the same execution simultaneously.
*/
package exec
