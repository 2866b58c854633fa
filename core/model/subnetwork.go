package model

import "fmt"

// Subnetwork is an independently-optimized region of the physical network:
// a set of member nodes, the designated source edges feeding it, and the
// allocation interval at which it is re-solved.
type Subnetwork struct {
	ID          SubnetworkID
	Name        string
	Nodes       []NodeID
	SourceEdges []EdgeID
	// Interval is the allocation timestep in seconds.
	Interval float64
	// Primary marks the subnetwork with no upstream supplier of its own.
	Primary bool
}

// Validate checks the subnetwork definition against the network topology.
func (s Subnetwork) Validate(nw *Network) error {
	if s.ID == 0 {
		return fmt.Errorf("subnetwork %q: id must be non-zero", s.Name)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("subnetwork %q: interval must be positive", s.Name)
	}
	if len(s.Nodes) == 0 {
		return fmt.Errorf("subnetwork %q: no member nodes", s.Name)
	}
	for _, id := range s.Nodes {
		n, ok := nw.Node(id)
		if !ok {
			return fmt.Errorf("subnetwork %q: unknown node %d", s.Name, id)
		}
		if n.Subnetwork != s.ID {
			return fmt.Errorf("subnetwork %q: node %d tagged with subnetwork %d", s.Name, id, n.Subnetwork)
		}
	}
	for _, id := range s.SourceEdges {
		if _, ok := nw.Edge(id); !ok {
			return fmt.Errorf("subnetwork %q: unknown source edge %d", s.Name, id)
		}
	}
	return nil
}

// Contains reports whether the node belongs to the subnetwork.
func (s Subnetwork) Contains(id NodeID) bool {
	for _, n := range s.Nodes {
		if n == id {
			return true
		}
	}
	return false
}
