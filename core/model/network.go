package model

import (
	"fmt"
	"sort"
)

// Edge is an ordered pair of node identities. SourceEdge marks the designated
// allocation inflows of a subnetwork. Topology never changes once the
// allocation models are built.
type Edge struct {
	ID         EdgeID
	From       NodeID
	To         NodeID
	SourceEdge bool
}

// Network is the read-only adjacency over the physical nodes and edges,
// provided by the simulation core.
type Network struct {
	nodes map[NodeID]*Node
	edges map[EdgeID]*Edge
	out   map[NodeID][]EdgeID
	in    map[NodeID][]EdgeID
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{
		nodes: make(map[NodeID]*Node),
		edges: make(map[EdgeID]*Edge),
		out:   make(map[NodeID][]EdgeID),
		in:    make(map[NodeID][]EdgeID),
	}
}

// AddNode registers a node. Duplicate identities are rejected.
func (nw *Network) AddNode(n *Node) error {
	if n == nil {
		return fmt.Errorf("network: nil node")
	}
	if _, ok := nw.nodes[n.ID]; ok {
		return fmt.Errorf("network: duplicate node %d", n.ID)
	}
	nw.nodes[n.ID] = n
	return nil
}

// AddEdge registers an edge. Both endpoints must already exist.
func (nw *Network) AddEdge(e *Edge) error {
	if e == nil {
		return fmt.Errorf("network: nil edge")
	}
	if _, ok := nw.edges[e.ID]; ok {
		return fmt.Errorf("network: duplicate edge %d", e.ID)
	}
	if _, ok := nw.nodes[e.From]; !ok {
		return fmt.Errorf("network: edge %d references missing node %d", e.ID, e.From)
	}
	if _, ok := nw.nodes[e.To]; !ok {
		return fmt.Errorf("network: edge %d references missing node %d", e.ID, e.To)
	}
	nw.edges[e.ID] = e
	nw.out[e.From] = append(nw.out[e.From], e.ID)
	nw.in[e.To] = append(nw.in[e.To], e.ID)
	return nil
}

// Node looks up a node by identity.
func (nw *Network) Node(id NodeID) (*Node, bool) {
	n, ok := nw.nodes[id]
	return n, ok
}

// Edge looks up an edge by identity.
func (nw *Network) Edge(id EdgeID) (*Edge, bool) {
	e, ok := nw.edges[id]
	return e, ok
}

// NodeIDs returns all node identities in ascending order.
func (nw *Network) NodeIDs() []NodeID {
	ids := make([]NodeID, 0, len(nw.nodes))
	for id := range nw.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// EdgeIDs returns all edge identities in ascending order.
func (nw *Network) EdgeIDs() []EdgeID {
	ids := make([]EdgeID, 0, len(nw.edges))
	for id := range nw.edges {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OutEdges returns the edges leaving the node, ordered by edge identity.
func (nw *Network) OutEdges(id NodeID) []*Edge {
	return nw.edgeList(nw.out[id])
}

// InEdges returns the edges entering the node, ordered by edge identity.
func (nw *Network) InEdges(id NodeID) []*Edge {
	return nw.edgeList(nw.in[id])
}

func (nw *Network) edgeList(ids []EdgeID) []*Edge {
	sorted := make([]EdgeID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	edges := make([]*Edge, len(sorted))
	for i, id := range sorted {
		edges[i] = nw.edges[id]
	}
	return edges
}

// Neighbors returns the distinct nodes adjacent to id, in ascending order,
// ignoring edge direction.
func (nw *Network) Neighbors(id NodeID) []NodeID {
	seen := make(map[NodeID]bool)
	for _, eid := range nw.out[id] {
		seen[nw.edges[eid].To] = true
	}
	for _, eid := range nw.in[id] {
		seen[nw.edges[eid].From] = true
	}
	delete(seen, id)
	ids := make([]NodeID, 0, len(seen))
	for nid := range seen {
		ids = append(ids, nid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Degree is the number of distinct neighbors of the node.
func (nw *Network) Degree(id NodeID) int {
	return len(nw.Neighbors(id))
}
