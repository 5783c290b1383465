// Package registry maps node kinds to factories, letting pipelines declared in
// manifests resolve to executable nodes at load time.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/arbor/pkg/graph"
)

// Duration parses "10s"-style strings from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Spec is the declarative description of one node, typically parsed from a
// manifest. Params carry kind-specific configuration.
type Spec struct {
	ID            string         `yaml:"id"`
	Kind          string         `yaml:"kind"`
	DependsOn     []string       `yaml:"depends_on"`
	Reads         []string       `yaml:"reads"`
	Writes        []string       `yaml:"writes"`
	Version       string         `yaml:"version"`
	Timeout       Duration       `yaml:"timeout"`
	CallsProvider bool           `yaml:"calls_provider"`
	Params        map[string]any `yaml:"params"`
}

// Factory builds a node from its spec.
type Factory func(spec Spec) (graph.Node, error)

// Registry manages the available node kinds.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a node kind to the registry.
// If a kind with the same name exists, it is overwritten.
func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Kinds returns the registered kind names.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	return kinds
}

// Build looks up the spec's kind and constructs the node.
// Returns an error if the kind is not registered.
func (r *Registry) Build(spec Spec) (graph.Node, error) {
	r.mu.RLock()
	factory, ok := r.factories[spec.Kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("node kind not registered: %s", spec.Kind)
	}

	node, err := factory(spec)
	if err != nil {
		return nil, fmt.Errorf("build node %s (kind %s): %w", spec.ID, spec.Kind, err)
	}
	return node, nil
}

// DecodeParams decodes a spec's params into a kind-specific config struct.
func DecodeParams(spec Spec, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(spec.Params); err != nil {
		return fmt.Errorf("decode params for node %s: %w", spec.ID, err)
	}
	return nil
}
