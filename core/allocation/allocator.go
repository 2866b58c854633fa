package allocation

import (
	"math"

	"github.com/mlefebvre/hydronet/core/logger"
	"github.com/mlefebvre/hydronet/core/model"
)

// Allocator bundles one subnetwork's allocation model: the reduced graph, the
// id mapping, the source-edge association and the LP handle. It is built once
// at simulation setup; only bound values and the LP solution are refreshed
// each interval, strictly sequentially.
type Allocator struct {
	sub     model.Subnetwork
	nw      *model.Network
	graph   *Graph
	mapping *Mapping
	sources map[GraphID]model.EdgeID
	lp      *Model
	log     logger.Logger
}

// NewAllocator reduces the subnetwork and builds its LP.
func NewAllocator(nw *model.Network, sub model.Subnetwork, priorities []int, log logger.Logger) (*Allocator, error) {
	if err := sub.Validate(nw); err != nil {
		return nil, err
	}
	graph, mapping, sources, err := Reduce(nw, sub, log)
	if err != nil {
		return nil, err
	}
	lpModel, err := BuildModel(graph, mapping, nw, sub.ID, priorities)
	if err != nil {
		return nil, err
	}
	log.Infof("subnetwork %d: allocation graph with %d nodes, %d edges, %d sources",
		sub.ID, graph.NumNodes(), graph.NumEdges(), len(sources))
	return &Allocator{
		sub:     sub,
		nw:      nw,
		graph:   graph,
		mapping: mapping,
		sources: sources,
		lp:      lpModel,
		log:     log,
	}, nil
}

// Subnetwork returns the subnetwork definition the allocator serves.
func (a *Allocator) Subnetwork() model.Subnetwork { return a.sub }

// Graph exposes the reduced graph, read-only by convention.
func (a *Allocator) Graph() *Graph { return a.graph }

// Mapping exposes the physical-to-allocation id mapping.
func (a *Allocator) Mapping() *Mapping { return a.mapping }

// SourceEdges returns the physical source edge behind each source node.
func (a *Allocator) SourceEdges() map[GraphID]model.EdgeID {
	cp := make(map[GraphID]model.EdgeID, len(a.sources))
	for k, v := range a.sources {
		cp[k] = v
	}
	return cp
}

// Run executes one allocation interval: rebind bounds from the forcing, solve,
// write the allocated setpoints back to the physical user nodes and return the
// result rows. On solver failure nothing is written back.
func (a *Allocator) Run(f Forcing) ([]Result, error) {
	a.rebind(f)
	sol, err := a.lp.Solve()
	if err != nil {
		return nil, &SolveError{Subnetwork: a.sub.ID, Time: f.Time, Err: err}
	}
	return a.extract(f, sol), nil
}

// rebind rewrites the time-varying right-hand sides: user demands at the
// current time, measured source supplies, and basin targets. Junctions carry
// no bound.
func (a *Allocator) rebind(f Forcing) {
	for _, phys := range a.mapping.PhysIDs() {
		gid, _ := a.mapping.Alloc(phys)
		switch a.graph.Class(gid) {
		case ClassUser:
			n, ok := a.nw.Node(phys)
			if !ok {
				missingMapping("user %d gone from network", phys)
			}
			for _, p := range a.lp.priorities {
				a.lp.SetDemand(gid, p, n.DemandAt(p, f.Time))
			}
		case ClassSource:
			a.lp.SetSupply(gid, f.SourceFlow[a.sources[gid]])
		case ClassBasin:
			a.lp.SetBasinTarget(gid, f.BasinTarget[phys])
		}
	}
}

// extract writes allocated setpoints into the physical user nodes and builds
// the per-interval result rows.
func (a *Allocator) extract(f Forcing, sol *Solution) []Result {
	var rows []Result
	for _, phys := range a.mapping.PhysIDs() {
		gid, _ := a.mapping.Alloc(phys)
		n, ok := a.nw.Node(phys)
		if !ok {
			missingMapping("node %d gone from network", phys)
		}
		switch a.graph.Class(gid) {
		case ClassUser:
			for _, p := range a.lp.priorities {
				alloc := sol.Allocated(gid, p)
				n.SetAllocated(p, alloc)
				rows = append(rows, Result{
					Time:       f.Time,
					Subnetwork: a.sub.ID,
					NodeType:   n.Type,
					Node:       phys,
					Priority:   p,
					Demand:     n.DemandAt(p, f.Time),
					Allocated:  alloc,
					Realized:   f.UserFlow[phys],
				})
			}
		case ClassBasin:
			rows = append(rows, Result{
				Time:       f.Time,
				Subnetwork: a.sub.ID,
				NodeType:   n.Type,
				Node:       phys,
				Demand:     math.Max(f.BasinTarget[phys], 0),
				Allocated:  sol.BasinStored(gid),
			})
		}
	}
	a.log.Debugw("allocation solved", map[string]any{
		"subnetwork": a.sub.ID,
		"time":       f.Time,
		"objective":  sol.Objective(),
		"rows":       len(rows),
	})
	return rows
}

// due reports whether the subnetwork's allocation interval elapses at time t.
// Solves only happen at multiples of the interval.
func (a *Allocator) due(t float64) bool {
	r := math.Mod(t, a.sub.Interval)
	return r < 1e-9 || a.sub.Interval-r < 1e-9
}
