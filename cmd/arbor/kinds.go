package main

import (
	"bytes"
	"context"
	"text/template"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/registry"
)

// builtinKinds returns the node kinds available to manifests run from the
// CLI. Library consumers register richer kinds programmatically; these cover
// wiring state through a pipeline without writing Go.
func builtinKinds() *registry.Registry {
	reg := registry.NewRegistry()
	reg.Register("constant", constantFactory)
	reg.Register("template", templateFactory)
	reg.Register("terminal", terminalFactory)
	return reg
}

// constantParams configures the "constant" kind: fixed values written to state.
type constantParams struct {
	Values map[string]any `mapstructure:"values"`
}

func constantFactory(spec registry.Spec) (graph.Node, error) {
	var params constantParams
	if err := registry.DecodeParams(spec, &params); err != nil {
		return nil, err
	}
	return specNode(spec, func(ctx context.Context, ec *graph.ExecutionContext) (*domain.NodeResult, error) {
		return graph.Success(spec.ID, domain.GraphState(params.Values)), nil
	}), nil
}

// templateParams configures the "template" kind: a text/template rendered
// against the node's state view, written to one output key.
type templateParams struct {
	Template string `mapstructure:"template"`
	Output   string `mapstructure:"output"`
}

func templateFactory(spec registry.Spec) (graph.Node, error) {
	var params templateParams
	if err := registry.DecodeParams(spec, &params); err != nil {
		return nil, err
	}
	tmpl, err := template.New(spec.ID).Parse(params.Template)
	if err != nil {
		return nil, err
	}
	return specNode(spec, func(ctx context.Context, ec *graph.ExecutionContext) (*domain.NodeResult, error) {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, map[string]any(ec.State)); err != nil {
			return nil, err
		}
		return graph.Success(spec.ID, domain.GraphState{params.Output: buf.String()}), nil
	}), nil
}

// terminalParams configures the "terminal" kind: ends the execution with the
// value under the given state key.
type terminalParams struct {
	Key string `mapstructure:"key"`
}

func terminalFactory(spec registry.Spec) (graph.Node, error) {
	var params terminalParams
	if err := registry.DecodeParams(spec, &params); err != nil {
		return nil, err
	}
	return specNode(spec, func(ctx context.Context, ec *graph.ExecutionContext) (*domain.NodeResult, error) {
		return graph.Terminal(spec.ID, ec.State[params.Key]), nil
	}), nil
}

// specNode binds a run function to the declarative attributes of its spec.
func specNode(spec registry.Spec, fn func(ctx context.Context, ec *graph.ExecutionContext) (*domain.NodeResult, error)) graph.Node {
	n := graph.NewFuncNode(spec.ID, spec.DependsOn, fn).
		WithFootprint(spec.Reads, spec.Writes).
		WithTimeout(spec.Timeout.Std())
	if spec.Version != "" {
		n.WithVersion(spec.Version)
	}
	if spec.CallsProvider {
		n.WithProvider()
	}
	return n
}
