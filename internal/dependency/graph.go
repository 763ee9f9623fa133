package dependency

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// NodeID is the descriptor id of a node.
type NodeID string

// Node is one executable test suite together with the ids of the suites it
// depends on.
type Node struct {
	ID        NodeID
	Label     string
	DependsOn []NodeID
}

// Graph answers dependency queries over descriptors. It is not safe for
// concurrent writes; the catalog builds a fresh graph per snapshot.
type Graph struct {
	nodes map[NodeID]*Node
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[NodeID]*Node)}
}

// AddNode adds (or replaces) a node in the graph.
func (g *Graph) AddNode(n Node) {
	if g.nodes == nil {
		g.nodes = make(map[NodeID]*Node)
	}
	copied := n
	copied.DependsOn = slices.Clone(n.DependsOn)
	g.nodes[n.ID] = &copied
}

// RemoveNode drops a node. Edges pointing at it become missing dependencies.
func (g *Graph) RemoveNode(id NodeID) {
	delete(g.nodes, id)
}

// Get returns a pointer to the stored node or nil if it does not exist.
func (g *Graph) Get(id NodeID) *Node {
	return g.nodes[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Dependencies returns a slice of immediate dependency IDs for the given node.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	if n, ok := g.nodes[id]; ok {
		return slices.Clone(n.DependsOn)
	}
	return nil
}

// Dependents returns the sorted ids of nodes that directly depend on id.
func (g *Graph) Dependents(id NodeID) []NodeID {
	var res []NodeID
	for _, n := range g.nodes {
		if slices.Contains(n.DependsOn, id) {
			res = append(res, n.ID)
		}
	}
	slices.Sort(res)
	return res
}

// Missing maps every node with unknown dependencies to those dependencies.
func (g *Graph) Missing() map[NodeID][]NodeID {
	missing := make(map[NodeID][]NodeID)
	for _, n := range g.nodes {
		for _, dep := range n.DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				missing[n.ID] = append(missing[n.ID], dep)
			}
		}
	}
	return missing
}

// CycleError reports a dependency cycle. Path starts and ends with the same id.
type CycleError struct {
	Path []NodeID
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = string(id)
	}
	return "circular dependency: " + strings.Join(parts, " -> ")
}

// MissingError reports a dependency that is not in the graph.
type MissingError struct {
	Node       NodeID
	Dependency NodeID
}

func (e *MissingError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("unknown node %q", e.Dependency)
	}
	return fmt.Sprintf("%q depends on unknown node %q", e.Node, e.Dependency)
}

// TopologicalSort returns ids together with their transitive dependencies,
// dependencies first. With no ids every node is sorted. The order is
// deterministic: roots are visited in the given order (sorted when ids is
// empty) and dependencies in declaration order.
func (g *Graph) TopologicalSort(ids ...NodeID) ([]NodeID, error) {
	if len(ids) == 0 {
		ids = make([]NodeID, 0, len(g.nodes))
		for id := range g.nodes {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}

	var (
		order   []NodeID
		visited = make(map[NodeID]bool)
		stack   []NodeID
	)
	var visit func(id, from NodeID) error
	visit = func(id, from NodeID) error {
		if i := slices.Index(stack, id); i >= 0 {
			path := append(slices.Clone(stack[i:]), id)
			return &CycleError{Path: path}
		}
		if visited[id] {
			return nil
		}
		n, ok := g.nodes[id]
		if !ok {
			return &MissingError{Node: from, Dependency: id}
		}

		stack = append(stack, id)
		for _, dep := range n.DependsOn {
			if err := visit(dep, id); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]

		visited[id] = true
		order = append(order, id)
		return nil
	}

	for _, id := range ids {
		if err := visit(id, ""); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Validate reports the first missing dependency or cycle in the graph.
func (g *Graph) Validate() error {
	_, err := g.TopologicalSort()
	return err
}
