/*
Package domain contains the core data model of the Arbor engine.

It defines the state carried through a pipeline (GraphState), the outcome of a
single node invocation (NodeResult), the durable execution history
(ExecutionRecord and its provenance chain), and the sentinel errors shared by
the engine and its adapters.

The engine never inspects the fields of a GraphState. It only copies and
serializes it, so any JSON-serializable content is valid.
*/
package domain
