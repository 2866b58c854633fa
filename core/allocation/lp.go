package allocation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/mlefebvre/hydronet/core/model"
)

// userPrio keys a user's allocation variable for one demand priority.
type userPrio struct {
	user     GraphID
	priority int
}

// Model is the per-subnetwork linear program. Its structure is fixed at build
// time; every allocation interval only right-hand sides are rewritten through
// SetDemand, SetSupply and SetBasinTarget before Solve runs the simplex.
//
// Variables, all nonnegative: one flow per graph edge, one allocation per
// (user, priority) pair, one allocation per basin. The objective maximizes
// basin allocations plus priority-weighted user allocations with weight 2^-i
// for the i-th priority, so higher priorities dominate lower ones in
// aggregate.
type Model struct {
	graph      *Graph
	priorities []int

	nVars    int
	edgeVar  []int
	userVar  map[userPrio]int
	basinVar map[GraphID]int

	obj     []float64
	eq      *mat.Dense
	eqRHS   []float64
	ineq    *mat.Dense
	ineqRHS []float64

	demandRow  map[userPrio]int
	supplyRow  map[GraphID]int
	basinRow   map[GraphID]int
	balanceRow map[GraphID]int
}

// BuildModel assembles the LP for a reduced graph. Priorities are the ordered
// demand priorities of the run; return factors come from the physical user
// nodes through the mapping.
func BuildModel(g *Graph, m *Mapping, nw *model.Network, sub model.SubnetworkID, priorities []int) (*Model, error) {
	if len(priorities) == 0 {
		return nil, fmt.Errorf("allocation: no demand priorities configured")
	}
	users := g.Nodes(ClassUser)
	basins := g.Nodes(ClassBasin)

	md := &Model{
		graph:      g,
		priorities: append([]int(nil), priorities...),
		edgeVar:    make([]int, g.NumEdges()),
		userVar:    make(map[userPrio]int),
		basinVar:   make(map[GraphID]int),
		demandRow:  make(map[userPrio]int),
		supplyRow:  make(map[GraphID]int),
		basinRow:   make(map[GraphID]int),
		balanceRow: make(map[GraphID]int),
	}

	// Column layout: edge flows, then user allocations, then basin allocations.
	col := 0
	for i := 0; i < g.NumEdges(); i++ {
		md.edgeVar[i] = col
		col++
	}
	for _, u := range users {
		for _, p := range priorities {
			md.userVar[userPrio{u, p}] = col
			col++
		}
	}
	for _, b := range basins {
		md.basinVar[b] = col
		col++
	}
	md.nVars = col
	if md.nVars == 0 {
		return nil, structErrf(sub, "reduction produced an empty allocation graph")
	}

	md.obj = make([]float64, md.nVars)
	for _, u := range users {
		for i, p := range priorities {
			md.obj[md.userVar[userPrio{u, p}]] = math.Pow(2, -float64(i))
		}
	}
	for _, b := range basins {
		md.obj[md.basinVar[b]] = 1
	}

	var eqRows, ineqRows [][]float64
	var eqRHS, ineqRHS []float64

	// Users: allocations across priorities balance the inflow, and any
	// surviving return edge carries return_factor times the intake.
	for _, u := range users {
		row := make([]float64, md.nVars)
		for _, p := range priorities {
			row[md.userVar[userPrio{u, p}]] = 1
		}
		for _, ei := range g.In(u) {
			row[md.edgeVar[ei]] = -1
		}
		eqRows = append(eqRows, row)
		eqRHS = append(eqRHS, 0)

		if out := g.Out(u); len(out) > 0 {
			phys, ok := nw.Node(m.Phys(u))
			if !ok {
				missingMapping("user %d physical node gone", u)
			}
			row := make([]float64, md.nVars)
			for _, ei := range out {
				row[md.edgeVar[ei]] = 1
			}
			for _, ei := range g.In(u) {
				row[md.edgeVar[ei]] = -phys.ReturnFactor
			}
			eqRows = append(eqRows, row)
			eqRHS = append(eqRHS, 0)
		}

		for _, p := range priorities {
			row := make([]float64, md.nVars)
			row[md.userVar[userPrio{u, p}]] = 1
			md.demandRow[userPrio{u, p}] = len(ineqRows)
			ineqRows = append(ineqRows, row)
			ineqRHS = append(ineqRHS, 0)
		}
	}

	// Finite-capacity edges.
	for i := 0; i < g.NumEdges(); i++ {
		if e := g.Edge(i); !Infinite(e.Capacity) {
			row := make([]float64, md.nVars)
			row[md.edgeVar[i]] = 1
			ineqRows = append(ineqRows, row)
			ineqRHS = append(ineqRHS, e.Capacity)
		}
	}

	// Sources: the single outflow edge is bounded by the measured supply.
	for _, s := range g.Nodes(ClassSource) {
		out := g.Out(s)
		if len(out) != 1 {
			return nil, structErrf(sub, "source node %d has %d outflow edges in LP build", s, len(out))
		}
		row := make([]float64, md.nVars)
		row[md.edgeVar[out[0]]] = 1
		md.supplyRow[s] = len(ineqRows)
		ineqRows = append(ineqRows, row)
		ineqRHS = append(ineqRHS, 0)
	}

	// Basins may store flow up to their target, and their conservation row
	// carries any surplus the simulation reports as its right-hand side.
	for _, b := range basins {
		row := make([]float64, md.nVars)
		row[md.basinVar[b]] = 1
		md.basinRow[b] = len(ineqRows)
		ineqRows = append(ineqRows, row)
		ineqRHS = append(ineqRHS, 0)

		row = make([]float64, md.nVars)
		for _, ei := range g.Out(b) {
			row[md.edgeVar[ei]] = 1
		}
		for _, ei := range g.In(b) {
			row[md.edgeVar[ei]] = -1
		}
		row[md.basinVar[b]] += 1
		md.balanceRow[b] = len(ineqRows)
		ineqRows = append(ineqRows, row)
		ineqRHS = append(ineqRHS, 0)
	}

	// Junctions only conserve: outgoing flow never exceeds incoming.
	for _, j := range g.Nodes(ClassJunction) {
		row := make([]float64, md.nVars)
		for _, ei := range g.Out(j) {
			row[md.edgeVar[ei]] = 1
		}
		for _, ei := range g.In(j) {
			row[md.edgeVar[ei]] = -1
		}
		ineqRows = append(ineqRows, row)
		ineqRHS = append(ineqRHS, 0)
	}

	// Nonnegativity. The standard-form conversion splits every variable into
	// free positive and negative parts, so x >= 0 must be stated explicitly or
	// the simplex can trade a negative allocation at one priority for an
	// oversized one at another.
	for i := 0; i < md.nVars; i++ {
		row := make([]float64, md.nVars)
		row[i] = -1
		ineqRows = append(ineqRows, row)
		ineqRHS = append(ineqRHS, 0)
	}

	md.eq = denseFromRows(eqRows, md.nVars)
	md.eqRHS = eqRHS
	md.ineq = denseFromRows(ineqRows, md.nVars)
	md.ineqRHS = ineqRHS
	return md, nil
}

func denseFromRows(rows [][]float64, cols int) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	d := mat.NewDense(len(rows), cols, nil)
	for i, r := range rows {
		d.SetRow(i, r)
	}
	return d
}

// SetDemand installs the current demand bound for one (user, priority) pair.
func (m *Model) SetDemand(user GraphID, priority int, demand float64) {
	row, ok := m.demandRow[userPrio{user, priority}]
	if !ok {
		missingMapping("no demand bound for user %d priority %d", user, priority)
	}
	m.ineqRHS[row] = math.Max(demand, 0)
}

// SetSupply installs the measured supply bound of a source node.
func (m *Model) SetSupply(source GraphID, supply float64) {
	row, ok := m.supplyRow[source]
	if !ok {
		missingMapping("no supply bound for source %d", source)
	}
	m.ineqRHS[row] = math.Max(supply, 0)
}

// SetBasinTarget installs the basin's net-flux scalar: a positive value is
// demand the basin may store, a negative value is surplus it offers others.
func (m *Model) SetBasinTarget(basin GraphID, target float64) {
	row, ok := m.basinRow[basin]
	if !ok {
		missingMapping("no target bound for basin %d", basin)
	}
	m.ineqRHS[row] = math.Max(target, 0)
	m.ineqRHS[m.balanceRow[basin]] = math.Max(-target, 0)
}

// lpSolve points to the function used to solve the LP. It can be overridden
// in tests to simulate solver failures.
var lpSolve = solveLP

// solveLP runs the simplex on the general-form program min c'x subject to
// Gx <= h and Ax = b after conversion to standard form.
func solveLP(c []float64, g *mat.Dense, h []float64, a *mat.Dense, b []float64) (float64, []float64, error) {
	var gm, am mat.Matrix
	if g != nil {
		gm = g
	}
	if a != nil {
		am = a
	}
	cStd, aStd, bStd := lp.Convert(c, gm, h, am, b)
	return lp.Simplex(cStd, aStd, bStd, 1e-7, nil)
}

// Solution holds the variable values of one solved interval.
type Solution struct {
	model     *Model
	x         []float64
	objective float64
}

// Solve runs the external simplex solver. A non-optimal outcome is an error;
// no solution values are exposed in that case.
func (m *Model) Solve() (*Solution, error) {
	c := make([]float64, m.nVars)
	for i, w := range m.obj {
		c[i] = -w
	}
	opt, sol, err := lpSolve(c, m.ineq, m.ineqRHS, m.eq, m.eqRHS)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInfeasible, err)
	}
	// Convert splits each variable into a positive and negative part; fold
	// them back. Nonnegativity is a constraint of the model, so any residual
	// negative value is solver tolerance noise.
	x := make([]float64, m.nVars)
	for i := range x {
		v := sol[i]
		if len(sol) >= 2*m.nVars {
			v -= sol[m.nVars+i]
		}
		if v < 0 {
			v = 0
		}
		x[i] = v
	}
	return &Solution{model: m, x: x, objective: -opt}, nil
}

// Objective returns the achieved objective value.
func (s *Solution) Objective() float64 { return s.objective }

// Allocated returns the solved allocation of one (user, priority) pair.
func (s *Solution) Allocated(user GraphID, priority int) float64 {
	col, ok := s.model.userVar[userPrio{user, priority}]
	if !ok {
		missingMapping("no allocation variable for user %d priority %d", user, priority)
	}
	return s.x[col]
}

// BasinStored returns the flow a basin retains this interval.
func (s *Solution) BasinStored(basin GraphID) float64 {
	col, ok := s.model.basinVar[basin]
	if !ok {
		missingMapping("no allocation variable for basin %d", basin)
	}
	return s.x[col]
}

// EdgeFlow returns the solved flow on the edge at index i.
func (s *Solution) EdgeFlow(i int) float64 {
	return s.x[s.model.edgeVar[i]]
}
