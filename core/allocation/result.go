package allocation

import "github.com/mlefebvre/hydronet/core/model"

// Result is one row of the append-only allocation output stream. Basin rows
// carry priority zero.
type Result struct {
	Time       float64
	Subnetwork model.SubnetworkID
	NodeType   model.NodeType
	Node       model.NodeID
	Priority   int
	Demand     float64
	Allocated  float64
	Realized   float64
}

// Forcing carries the per-interval scalars the physical simulation hands to
// the bound updater.
type Forcing struct {
	// Time is the simulation time the interval starts at, in seconds.
	Time float64
	// SourceFlow is the measured or averaged flow per designated source edge
	// over the preceding interval.
	SourceFlow map[model.EdgeID]float64
	// BasinTarget is the net-flux-derived scalar per basin: positive values
	// are demand the basin may retain, negative values surplus it supplies.
	BasinTarget map[model.NodeID]float64
	// UserFlow is the measured intake per user over the preceding interval,
	// reported as the realized flow on the output rows.
	UserFlow map[model.NodeID]float64
}
