package model

import (
	"fmt"
	"math"
)

// NodeID identifies a node in the physical network.
type NodeID int

// EdgeID identifies an edge in the physical network.
type EdgeID int

// SubnetworkID identifies a subnetwork. Zero means the node belongs to no
// subnetwork.
type SubnetworkID int

// NodeType tags a physical node with its hydraulic role.
type NodeType int

const (
	Basin NodeType = iota
	UserDemand
	FlowBoundary
	LevelBoundary
	Pump
	Outlet
	LinearResistance
	ManningResistance
	TabulatedRatingCurve
	Terminal
	Junction
)

var nodeTypeNames = map[NodeType]string{
	Basin:                "basin",
	UserDemand:           "user_demand",
	FlowBoundary:         "flow_boundary",
	LevelBoundary:        "level_boundary",
	Pump:                 "pump",
	Outlet:               "outlet",
	LinearResistance:     "linear_resistance",
	ManningResistance:    "manning_resistance",
	TabulatedRatingCurve: "tabulated_rating_curve",
	Terminal:             "terminal",
	Junction:             "junction",
}

func (t NodeType) String() string {
	if s, ok := nodeTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("node_type(%d)", int(t))
}

// ParseNodeType converts a config string into a NodeType.
func ParseNodeType(s string) (NodeType, error) {
	for t, name := range nodeTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown node type %q", s)
}

// OneWay reports whether the node only passes flow in the direction of its
// physical edges. Pumps, outlets and rating curves cannot run backwards.
func (t NodeType) OneWay() bool {
	switch t {
	case Pump, Outlet, TabulatedRatingCurve:
		return true
	}
	return false
}

// DemandSeries couples a demand priority with its time-varying demand.
type DemandSeries struct {
	Priority int
	Demand   Series
}

// Node is a physical network node. The allocation engine only reads its
// static attributes; the per-priority allocated setpoints are the one piece of
// state it writes back after each solve.
type Node struct {
	ID         NodeID
	Type       NodeType
	Name       string
	Subnetwork SubnetworkID

	// MaxFlowRate caps flow through the node, +Inf when unconstrained.
	MaxFlowRate float64
	// ReturnFactor is the fraction of a user's intake sent back downstream.
	ReturnFactor float64
	// Demands holds a user's demand per priority.
	Demands []DemandSeries

	allocated map[int]float64
}

// NewNode returns a node with an unconstrained flow rate.
func NewNode(id NodeID, t NodeType) *Node {
	return &Node{ID: id, Type: t, MaxFlowRate: math.Inf(1)}
}

// DemandAt evaluates the node's demand for the given priority at time t.
// Nodes without a demand for that priority report zero.
func (n *Node) DemandAt(priority int, t float64) float64 {
	for _, d := range n.Demands {
		if d.Priority == priority {
			return d.Demand.At(t)
		}
	}
	return 0
}

// SetAllocated stores the allocated flow rate for one priority. It is the
// user's intake setpoint until the next allocation interval.
func (n *Node) SetAllocated(priority int, rate float64) {
	if n.allocated == nil {
		n.allocated = make(map[int]float64)
	}
	n.allocated[priority] = rate
}

// Allocated returns the last allocated flow rate for the priority.
func (n *Node) Allocated(priority int) float64 {
	return n.allocated[priority]
}
