package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// GraphState is the opaque, serializable container of domain data carried
// through the graph. The engine copies and serializes it but never interprets
// its contents.
//
// Values must round-trip losslessly through JSON. Numbers are normalized to
// json.Number on Clone so that large integers survive the round trip.
type GraphState map[string]any

// NewGraphState returns an empty state.
func NewGraphState() GraphState {
	return make(GraphState)
}

// Clone returns a deep, isolated copy of the state.
//
// The copy goes through a JSON round trip. This is deliberate: it guarantees
// the clone shares no references with the original, and it fails loudly at
// the node boundary if a node smuggled a non-serializable value into state.
func (s GraphState) Clone() (GraphState, error) {
	if s == nil {
		return NewGraphState(), nil
	}
	raw, err := s.Marshal()
	if err != nil {
		return nil, err
	}
	return UnmarshalGraphState(raw)
}

// Marshal serializes the state to canonical JSON (sorted keys, json.Number
// preserved).
func (s GraphState) Marshal() ([]byte, error) {
	raw, err := json.Marshal(map[string]any(s))
	if err != nil {
		return nil, fmt.Errorf("marshal graph state: %w", err)
	}
	return raw, nil
}

// UnmarshalGraphState restores a state from its serialized form.
// Numbers are decoded as json.Number to avoid float64 truncation of large
// integers.
func UnmarshalGraphState(raw []byte) (GraphState, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("unmarshal graph state: %w", err)
	}
	if out == nil {
		out = make(map[string]any)
	}
	return GraphState(out), nil
}

// Merge applies a delta on top of the state, in place. A nil value in the
// delta deletes the key.
func (s GraphState) Merge(delta GraphState) {
	for k, v := range delta {
		if v == nil {
			delete(s, k)
			continue
		}
		s[k] = v
	}
}

// Subset returns the projection of the state onto the given keys. Missing
// keys are omitted. Used to derive cache keys from a node's declared read
// footprint.
func (s GraphState) Subset(keys []string) GraphState {
	out := make(GraphState, len(keys))
	for _, k := range keys {
		if v, ok := s[k]; ok {
			out[k] = v
		}
	}
	return out
}
