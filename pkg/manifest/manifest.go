// Package manifest loads declarative pipeline definitions from YAML and
// resolves them into executable graphs through a node registry.
package manifest

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/limits"
	"github.com/aretw0/arbor/pkg/registry"
)

// Manifest is one pipeline definition: the graph shape plus the execution
// policy it should run under.
type Manifest struct {
	Name          string            `yaml:"name"`
	MergeStrategy string            `yaml:"merge_strategy"`
	CacheTTL      registry.Duration `yaml:"cache_ttl"`
	Limits        limits.Config     `yaml:"limits"`
	Nodes         []registry.Spec   `yaml:"nodes"`
}

// Parse reads a manifest from YAML.
func Parse(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("parse manifest: missing pipeline name")
	}
	if len(m.Nodes) == 0 {
		return nil, fmt.Errorf("parse manifest: pipeline %q declares no nodes", m.Name)
	}
	return &m, nil
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// BuildGraph resolves every node spec through the registry and assembles the
// validated graph.
func (m *Manifest) BuildGraph(reg *registry.Registry) (*graph.Graph, error) {
	b := graph.NewBuilder(m.Name)
	for _, spec := range m.Nodes {
		node, err := reg.Build(spec)
		if err != nil {
			return nil, err
		}
		b.Add(node)
	}
	return b.Build()
}
