package graph

import (
	"fmt"
	"sort"

	"github.com/aretw0/arbor/pkg/domain"
)

// Graph is a validated, immutable DAG of nodes. Build one with Builder.
type Graph struct {
	name  string
	nodes map[string]Node
	// dependents is the reverse adjacency: node -> nodes that depend on it.
	dependents map[string][]string
}

// Name returns the graph's name.
func (g *Graph) Name() string { return g.name }

// Node returns a node by ID.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeIDs returns all node IDs in deterministic (sorted) order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dependents returns the IDs of nodes that depend on the given node, sorted.
func (g *Graph) Dependents(id string) []string {
	out := append([]string(nil), g.dependents[id]...)
	sort.Strings(out)
	return out
}

// Ready returns the nodes whose dependencies are all contained in the done
// set and that are not themselves done, in deterministic order. This is the
// next parallel batch.
func (g *Graph) Ready(done map[string]bool) []Node {
	var batch []Node
	for _, id := range g.NodeIDs() {
		if done[id] {
			continue
		}
		ok := true
		for _, dep := range g.nodes[id].Dependencies() {
			if !done[dep] {
				ok = false
				break
			}
		}
		if ok {
			batch = append(batch, g.nodes[id])
		}
	}
	return batch
}

// Builder constructs a Graph with validation. It is not safe for concurrent
// use; build the graph in a single goroutine.
type Builder struct {
	name   string
	nodes  map[string]Node
	order  []string
	errors []error
}

// NewBuilder creates a builder for a named graph.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:  name,
		nodes: make(map[string]Node),
	}
}

// Add registers a node. Duplicate IDs are recorded as build errors.
func (b *Builder) Add(nodes ...Node) *Builder {
	for _, n := range nodes {
		if n == nil {
			b.errors = append(b.errors, fmt.Errorf("%w: nil node", domain.ErrGraphInvalid))
			continue
		}
		id := n.ID()
		if id == "" {
			b.errors = append(b.errors, fmt.Errorf("%w: node with empty ID", domain.ErrGraphInvalid))
			continue
		}
		if _, exists := b.nodes[id]; exists {
			b.errors = append(b.errors, fmt.Errorf("%w: duplicate node %q", domain.ErrGraphInvalid, id))
			continue
		}
		b.nodes[id] = n
		b.order = append(b.order, id)
	}
	return b
}

// Build validates and constructs the graph. Validation covers unknown
// dependencies, cycles, and overlapping write footprints between nodes that
// could run in the same parallel batch.
func (b *Builder) Build() (*Graph, error) {
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}
	if len(b.nodes) == 0 {
		return nil, fmt.Errorf("%w: graph %q has no nodes", domain.ErrGraphInvalid, b.name)
	}

	dependents := make(map[string][]string)
	for id, n := range b.nodes {
		for _, dep := range n.Dependencies() {
			if _, ok := b.nodes[dep]; !ok {
				return nil, fmt.Errorf("%w: node %q depends on unknown node %q", domain.ErrGraphInvalid, id, dep)
			}
			dependents[dep] = append(dependents[dep], id)
		}
	}

	if err := b.detectCycles(); err != nil {
		return nil, err
	}

	if err := b.detectWriteOverlap(); err != nil {
		return nil, err
	}

	return &Graph{
		name:       b.name,
		nodes:      b.nodes,
		dependents: dependents,
	}, nil
}

// detectCycles runs a DFS over the dependency edges.
func (b *Builder) detectCycles() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	mark := make(map[string]int, len(b.nodes))
	var path []string

	var dfs func(id string) error
	dfs = func(id string) error {
		mark[id] = visiting
		path = append(path, id)
		for _, dep := range b.nodes[id].Dependencies() {
			switch mark[dep] {
			case visiting:
				return fmt.Errorf("%w: cycle through %v", domain.ErrGraphInvalid, append(path, dep))
			case unvisited:
				if err := dfs(dep); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		mark[id] = done
		return nil
	}

	for _, id := range b.order {
		if mark[id] == unvisited {
			if err := dfs(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// detectWriteOverlap rejects graphs where two nodes that could execute in the
// same parallel batch declare intersecting write footprints. Two nodes can
// run concurrently exactly when neither is an ancestor of the other.
func (b *Builder) detectWriteOverlap() error {
	reach := b.reachability()

	ids := make([]string, 0, len(b.nodes))
	for id := range b.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, c := ids[i], ids[j]
			if reach[a][c] || reach[c][a] {
				continue // ordered; cannot share a batch
			}
			if key, ok := writesIntersect(b.nodes[a].Footprint().Writes, b.nodes[c].Footprint().Writes); ok {
				return fmt.Errorf("%w: nodes %q and %q may run concurrently and both write %q", domain.ErrGraphInvalid, a, c, key)
			}
		}
	}
	return nil
}

// reachability computes, for every node, the set of its transitive
// dependencies (ancestors).
func (b *Builder) reachability() map[string]map[string]bool {
	reach := make(map[string]map[string]bool, len(b.nodes))

	var visit func(id string) map[string]bool
	visit = func(id string) map[string]bool {
		if r, ok := reach[id]; ok {
			return r
		}
		r := make(map[string]bool)
		reach[id] = r // placed before recursion; cycles are rejected separately
		for _, dep := range b.nodes[id].Dependencies() {
			r[dep] = true
			for anc := range visit(dep) {
				r[anc] = true
			}
		}
		return r
	}

	for id := range b.nodes {
		visit(id)
	}
	return reach
}

func writesIntersect(a, b []string) (string, bool) {
	set := make(map[string]bool, len(a))
	for _, k := range a {
		set[k] = true
	}
	for _, k := range b {
		if set[k] {
			return k, true
		}
	}
	return "", false
}
