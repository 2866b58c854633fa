package allocation

import (
	"fmt"
	"math"
	"sort"

	"github.com/mlefebvre/hydronet/core/model"
)

// NodeClass is the closed set of allocation-graph node roles.
type NodeClass int

const (
	ClassSource NodeClass = iota
	ClassBasin
	ClassUser
	ClassJunction
)

func (c NodeClass) String() string {
	switch c {
	case ClassSource:
		return "source"
	case ClassBasin:
		return "basin"
	case ClassUser:
		return "user"
	case ClassJunction:
		return "junction"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// GraphID is the handle of an allocation-graph node. Handles are dense
// integers 1..N assigned at reduction time and stable for the model lifetime.
type GraphID int

// GraphEdge carries a permitted flow direction and a capacity. Opposing
// directions between the same pair are separate edges.
type GraphEdge struct {
	From     GraphID
	To       GraphID
	Capacity float64 // in (0, +Inf]
}

// Graph is the reduced graph the LP is built over. Nodes and edges live in
// flat arenas indexed by integer handles; there are no embedded references.
type Graph struct {
	classes []NodeClass
	edges   []GraphEdge
	out     map[GraphID][]int
	in      map[GraphID][]int
}

// NewGraph returns an empty allocation graph.
func NewGraph() *Graph {
	return &Graph{out: make(map[GraphID][]int), in: make(map[GraphID][]int)}
}

// AddNode appends a node of the given class and returns its handle.
func (g *Graph) AddNode(c NodeClass) GraphID {
	g.classes = append(g.classes, c)
	return GraphID(len(g.classes))
}

// NumNodes returns the number of nodes.
func (g *Graph) NumNodes() int { return len(g.classes) }

// Class returns the class of a node.
func (g *Graph) Class(id GraphID) NodeClass {
	if id < 1 || int(id) > len(g.classes) {
		missingMapping("graph node %d out of range", id)
	}
	return g.classes[id-1]
}

// Nodes returns the handles of all nodes with the given class, ascending.
func (g *Graph) Nodes(c NodeClass) []GraphID {
	var ids []GraphID
	for i, cl := range g.classes {
		if cl == c {
			ids = append(ids, GraphID(i+1))
		}
	}
	return ids
}

// AddEdge appends a directed edge and returns its index. A nonpositive
// capacity is rejected; use +Inf for an unconstrained edge.
func (g *Graph) AddEdge(from, to GraphID, capacity float64) (int, error) {
	if capacity <= 0 {
		return 0, fmt.Errorf("allocation: edge %d->%d: capacity must be positive", from, to)
	}
	g.Class(from)
	g.Class(to)
	if g.HasEdge(from, to) {
		return 0, fmt.Errorf("allocation: duplicate edge %d->%d", from, to)
	}
	g.edges = append(g.edges, GraphEdge{From: from, To: to, Capacity: capacity})
	idx := len(g.edges) - 1
	g.out[from] = append(g.out[from], idx)
	g.in[to] = append(g.in[to], idx)
	return idx, nil
}

// HasEdge reports whether a directed edge from->to exists.
func (g *Graph) HasEdge(from, to GraphID) bool {
	for _, i := range g.out[from] {
		if g.edges[i].To == to {
			return true
		}
	}
	return false
}

// RemoveEdge deletes the edge at index i and reindexes the adjacency.
// Only used before the LP is built; edge indices shift.
func (g *Graph) RemoveEdge(i int) {
	g.edges = append(g.edges[:i], g.edges[i+1:]...)
	g.out = make(map[GraphID][]int)
	g.in = make(map[GraphID][]int)
	for idx, e := range g.edges {
		g.out[e.From] = append(g.out[e.From], idx)
		g.in[e.To] = append(g.in[e.To], idx)
	}
}

// SetCapacity replaces the capacity of the edge at index i.
func (g *Graph) SetCapacity(i int, capacity float64) {
	g.edges[i].Capacity = capacity
}

// NumEdges returns the number of edges.
func (g *Graph) NumEdges() int { return len(g.edges) }

// Edge returns the edge at index i.
func (g *Graph) Edge(i int) GraphEdge { return g.edges[i] }

// Out returns the indices of edges leaving the node, ascending.
func (g *Graph) Out(id GraphID) []int { return sortedCopy(g.out[id]) }

// In returns the indices of edges entering the node, ascending.
func (g *Graph) In(id GraphID) []int { return sortedCopy(g.in[id]) }

func sortedCopy(xs []int) []int {
	cp := make([]int, len(xs))
	copy(cp, xs)
	sort.Ints(cp)
	return cp
}

// Infinite reports whether the capacity is unconstrained.
func Infinite(capacity float64) bool { return math.IsInf(capacity, 1) }

// Mapping is the bidirectional association between physical node identities
// and allocation-graph handles. Every represented physical node has exactly
// one counterpart and vice versa.
type Mapping struct {
	toAlloc map[model.NodeID]GraphID
	toPhys  map[GraphID]model.NodeID
}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{
		toAlloc: make(map[model.NodeID]GraphID),
		toPhys:  make(map[GraphID]model.NodeID),
	}
}

// Add associates a physical node with an allocation-graph handle. Breaking
// bijectivity is an invariant violation.
func (m *Mapping) Add(phys model.NodeID, alloc GraphID) {
	if old, ok := m.toAlloc[phys]; ok {
		missingMapping("physical node %d already mapped to %d", phys, old)
	}
	if old, ok := m.toPhys[alloc]; ok {
		missingMapping("graph node %d already mapped to %d", alloc, old)
	}
	m.toAlloc[phys] = alloc
	m.toPhys[alloc] = phys
}

// Alloc returns the allocation handle of a physical node.
func (m *Mapping) Alloc(phys model.NodeID) (GraphID, bool) {
	id, ok := m.toAlloc[phys]
	return id, ok
}

// Phys returns the physical identity of an allocation-graph node, panicking
// on a broken mapping since the graph and mapping are built together.
func (m *Mapping) Phys(alloc GraphID) model.NodeID {
	id, ok := m.toPhys[alloc]
	if !ok {
		missingMapping("graph node %d has no physical counterpart", alloc)
	}
	return id
}

// Len returns the number of mapped pairs.
func (m *Mapping) Len() int { return len(m.toAlloc) }

// PhysIDs returns the mapped physical identities in ascending order.
func (m *Mapping) PhysIDs() []model.NodeID {
	ids := make([]model.NodeID, 0, len(m.toAlloc))
	for id := range m.toAlloc {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
