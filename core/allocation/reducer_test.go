package allocation

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlefebvre/hydronet/core/model"
	"github.com/mlefebvre/hydronet/infra/logger"
)

type nodeSpec struct {
	id   model.NodeID
	typ  model.NodeType
	sub  model.SubnetworkID
	cap  float64
	rf   float64
	dems []model.DemandSeries
}

type edgeSpec struct {
	id       model.EdgeID
	from, to model.NodeID
	source   bool
}

func testNetwork(t *testing.T, nodes []nodeSpec, edges []edgeSpec) *model.Network {
	t.Helper()
	nw := model.NewNetwork()
	for _, ns := range nodes {
		n := model.NewNode(ns.id, ns.typ)
		n.Subnetwork = ns.sub
		if ns.cap != 0 {
			n.MaxFlowRate = ns.cap
		}
		n.ReturnFactor = ns.rf
		n.Demands = ns.dems
		require.NoError(t, nw.AddNode(n))
	}
	for _, es := range edges {
		require.NoError(t, nw.AddEdge(&model.Edge{ID: es.id, From: es.from, To: es.to, SourceEdge: es.source}))
	}
	return nw
}

func demand(priority int, v float64) model.DemandSeries {
	return model.DemandSeries{Priority: priority, Demand: model.Constant(v)}
}

func subnet(id model.SubnetworkID, primary bool, nodes []model.NodeID, sources []model.EdgeID) model.Subnetwork {
	return model.Subnetwork{
		ID: id, Name: "test", Primary: primary,
		Nodes: nodes, SourceEdges: sources, Interval: 86400,
	}
}

func TestReduceChainThroughPump(t *testing.T) {
	// boundary -> basin -> pump -> user; the pump is summarized into a
	// one-way composite edge carrying its flow-rate cap.
	nw := testNetwork(t,
		[]nodeSpec{
			{id: 1, typ: model.FlowBoundary, sub: 1},
			{id: 2, typ: model.Basin, sub: 1},
			{id: 3, typ: model.Pump, sub: 1, cap: 2.5},
			{id: 4, typ: model.UserDemand, sub: 1, dems: []model.DemandSeries{demand(1, 1)}},
		},
		[]edgeSpec{
			{id: 1, from: 1, to: 2, source: true},
			{id: 2, from: 2, to: 3},
			{id: 3, from: 3, to: 4},
		},
	)
	sub := subnet(1, true, []model.NodeID{1, 2, 3, 4}, []model.EdgeID{1})

	g, m, sources, err := Reduce(nw, sub, logger.NopLogger{})
	require.NoError(t, err)

	require.Equal(t, 3, g.NumNodes(), "basin, user and promoted source")
	basin, ok := m.Alloc(2)
	require.True(t, ok)
	user, ok := m.Alloc(4)
	require.True(t, ok)
	src, ok := m.Alloc(1)
	require.True(t, ok)
	assert.Equal(t, ClassBasin, g.Class(basin))
	assert.Equal(t, ClassUser, g.Class(user))
	assert.Equal(t, ClassSource, g.Class(src))
	assert.Equal(t, model.EdgeID(1), sources[src])

	require.Equal(t, 2, g.NumEdges())
	assert.True(t, g.HasEdge(src, basin))
	assert.True(t, g.HasEdge(basin, user))
	assert.False(t, g.HasEdge(user, basin), "pump forces one-way")
	for _, i := range g.Out(basin) {
		assert.Equal(t, 2.5, g.Edge(i).Capacity, "composite capacity is the chain minimum")
	}
}

func TestReduceCapacityMonotonicity(t *testing.T) {
	build := func(pumpCap float64) *Graph {
		nw := testNetwork(t,
			[]nodeSpec{
				{id: 1, typ: model.Basin, sub: 1},
				{id: 2, typ: model.LinearResistance, sub: 1, cap: 5},
				{id: 3, typ: model.Pump, sub: 1, cap: pumpCap},
				{id: 4, typ: model.Basin, sub: 1},
			},
			[]edgeSpec{
				{id: 1, from: 1, to: 2},
				{id: 2, from: 2, to: 3},
				{id: 3, from: 3, to: 4},
			},
		)
		sub := subnet(1, true, []model.NodeID{1, 2, 3, 4}, nil)
		g, _, _, err := Reduce(nw, sub, logger.NopLogger{})
		require.NoError(t, err)
		return g
	}

	tight := build(3)
	require.Equal(t, 1, tight.NumEdges(), "pump keeps the chain one-way")
	assert.Equal(t, 3.0, tight.Edge(0).Capacity)

	loose := build(math.Inf(1))
	require.Equal(t, 1, loose.NumEdges())
	assert.Equal(t, 5.0, loose.Edge(0).Capacity,
		"relaxing one constraining node must not decrease the capacity")
}

func TestReduceBidirectionalChain(t *testing.T) {
	// No one-way node in the chain: both directions materialize with the
	// same capacity.
	nw := testNetwork(t,
		[]nodeSpec{
			{id: 1, typ: model.Basin, sub: 1},
			{id: 2, typ: model.LinearResistance, sub: 1, cap: 4},
			{id: 3, typ: model.Basin, sub: 1},
		},
		[]edgeSpec{
			{id: 1, from: 1, to: 2},
			{id: 2, from: 2, to: 3},
		},
	)
	sub := subnet(1, true, []model.NodeID{1, 2, 3}, nil)
	g, m, _, err := Reduce(nw, sub, logger.NopLogger{})
	require.NoError(t, err)

	a, _ := m.Alloc(1)
	b, _ := m.Alloc(3)
	require.Equal(t, 2, g.NumEdges())
	assert.True(t, g.HasEdge(a, b))
	assert.True(t, g.HasEdge(b, a))
	for i := 0; i < g.NumEdges(); i++ {
		assert.Equal(t, 4.0, g.Edge(i).Capacity)
	}
}

func TestReduceDiscardsDanglingChain(t *testing.T) {
	// A chain ending at a terminal never reaches a second represented node
	// and is dropped without error.
	nw := testNetwork(t,
		[]nodeSpec{
			{id: 1, typ: model.FlowBoundary, sub: 1},
			{id: 2, typ: model.Basin, sub: 1},
			{id: 3, typ: model.Outlet, sub: 1},
			{id: 4, typ: model.Terminal, sub: 1},
		},
		[]edgeSpec{
			{id: 1, from: 1, to: 2, source: true},
			{id: 2, from: 2, to: 3},
			{id: 3, from: 3, to: 4},
		},
	)
	sub := subnet(1, true, []model.NodeID{1, 2, 3, 4}, []model.EdgeID{1})
	g, _, _, err := Reduce(nw, sub, logger.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, 1, g.NumEdges(), "only the source edge survives")
}

func TestReduceSourceInvariant(t *testing.T) {
	// An edge into the source node violates "in-degree zero".
	nw := testNetwork(t,
		[]nodeSpec{
			{id: 1, typ: model.FlowBoundary, sub: 1},
			{id: 2, typ: model.Basin, sub: 1},
			{id: 5, typ: model.Basin, sub: 1},
		},
		[]edgeSpec{
			{id: 1, from: 1, to: 2, source: true},
			{id: 2, from: 5, to: 1},
		},
	)
	sub := subnet(1, true, []model.NodeID{1, 2, 5}, []model.EdgeID{1})
	_, _, _, err := Reduce(nw, sub, logger.NopLogger{})
	var serr *StructuralError
	require.ErrorAs(t, err, &serr)

	// Two outgoing source edges from one boundary violate "out-degree one".
	nw = testNetwork(t,
		[]nodeSpec{
			{id: 1, typ: model.FlowBoundary, sub: 1},
			{id: 2, typ: model.Basin, sub: 1},
			{id: 3, typ: model.Basin, sub: 1},
		},
		[]edgeSpec{
			{id: 1, from: 1, to: 2, source: true},
			{id: 2, from: 1, to: 3, source: true},
		},
	)
	sub = subnet(1, true, []model.NodeID{1, 2, 3}, []model.EdgeID{1, 2})
	_, _, _, err = Reduce(nw, sub, logger.NopLogger{})
	require.ErrorAs(t, err, &serr)
}

func TestReduceBreaksReturnCycle(t *testing.T) {
	// The user's return edge points straight back at its supplying basin:
	// keeping it would let the user feed itself.
	nw := testNetwork(t,
		[]nodeSpec{
			{id: 1, typ: model.FlowBoundary, sub: 1},
			{id: 2, typ: model.Basin, sub: 1},
			{id: 3, typ: model.UserDemand, sub: 1, rf: 0.5, dems: []model.DemandSeries{demand(1, 1)}},
		},
		[]edgeSpec{
			{id: 1, from: 1, to: 2, source: true},
			{id: 2, from: 2, to: 3},
			{id: 3, from: 3, to: 2},
		},
	)
	sub := subnet(1, true, []model.NodeID{1, 2, 3}, []model.EdgeID{1})
	g, m, _, err := Reduce(nw, sub, logger.NopLogger{})
	require.NoError(t, err)

	user, _ := m.Alloc(3)
	basin, _ := m.Alloc(2)
	assert.True(t, g.HasEdge(basin, user))
	assert.False(t, g.HasEdge(user, basin), "cyclic return edge must be dropped")
	assert.Empty(t, g.Out(user))

	// The healed model still solves.
	a, err := NewAllocator(nw, sub, []int{1}, logger.NopLogger{})
	require.NoError(t, err)
	_, err = a.Run(Forcing{SourceFlow: map[model.EdgeID]float64{1: 5}})
	require.NoError(t, err)
	n3, _ := nw.Node(3)
	assert.InDelta(t, 1, n3.Allocated(1), 1e-6)
}

func TestReduceKeepsAcyclicReturnEdge(t *testing.T) {
	nw := testNetwork(t,
		[]nodeSpec{
			{id: 1, typ: model.FlowBoundary, sub: 1},
			{id: 2, typ: model.Basin, sub: 1},
			{id: 3, typ: model.UserDemand, sub: 1, rf: 0.5, dems: []model.DemandSeries{demand(1, 1)}},
			{id: 4, typ: model.Basin, sub: 1},
		},
		[]edgeSpec{
			{id: 1, from: 1, to: 2, source: true},
			{id: 2, from: 2, to: 3},
			{id: 3, from: 3, to: 4},
		},
	)
	sub := subnet(1, true, []model.NodeID{1, 2, 3, 4}, []model.EdgeID{1})
	g, m, _, err := Reduce(nw, sub, logger.NopLogger{})
	require.NoError(t, err)

	user, _ := m.Alloc(3)
	down, _ := m.Alloc(4)
	assert.True(t, g.HasEdge(user, down), "downstream return edge survives")
}

func TestReduceMappingRoundTrip(t *testing.T) {
	nw := testNetwork(t,
		[]nodeSpec{
			{id: 1, typ: model.FlowBoundary, sub: 1},
			{id: 2, typ: model.Basin, sub: 1},
			{id: 3, typ: model.UserDemand, sub: 1, dems: []model.DemandSeries{demand(1, 1)}},
		},
		[]edgeSpec{
			{id: 1, from: 1, to: 2, source: true},
			{id: 2, from: 2, to: 3},
		},
	)
	sub := subnet(1, true, []model.NodeID{1, 2, 3}, []model.EdgeID{1})
	g, m, _, err := Reduce(nw, sub, logger.NopLogger{})
	require.NoError(t, err)

	require.Equal(t, g.NumNodes(), m.Len())
	for _, phys := range m.PhysIDs() {
		gid, ok := m.Alloc(phys)
		require.True(t, ok)
		assert.Equal(t, phys, m.Phys(gid), "forward and inverse compose to identity")
	}
	for gid := 1; gid <= g.NumNodes(); gid++ {
		phys := m.Phys(GraphID(gid))
		back, ok := m.Alloc(phys)
		require.True(t, ok)
		assert.Equal(t, GraphID(gid), back)
	}
}

func TestReduceRebuildIsIsomorphic(t *testing.T) {
	nodes := []nodeSpec{
		{id: 1, typ: model.FlowBoundary, sub: 1},
		{id: 2, typ: model.Basin, sub: 1},
		{id: 3, typ: model.Pump, sub: 1, cap: 2},
		{id: 4, typ: model.UserDemand, sub: 1, dems: []model.DemandSeries{demand(1, 1)}},
		{id: 5, typ: model.UserDemand, sub: 1, dems: []model.DemandSeries{demand(2, 1)}},
	}
	edges := []edgeSpec{
		{id: 1, from: 1, to: 2, source: true},
		{id: 2, from: 2, to: 3},
		{id: 3, from: 3, to: 4},
		{id: 4, from: 2, to: 5},
	}
	sub := subnet(1, true, []model.NodeID{1, 2, 3, 4, 5}, []model.EdgeID{1})

	type edgeKey struct {
		from, to model.NodeID
		capacity float64
	}
	snapshot := func() []edgeKey {
		nw := testNetwork(t, nodes, edges)
		g, m, _, err := Reduce(nw, sub, logger.NopLogger{})
		require.NoError(t, err)
		var keys []edgeKey
		for i := 0; i < g.NumEdges(); i++ {
			e := g.Edge(i)
			keys = append(keys, edgeKey{m.Phys(e.From), m.Phys(e.To), e.Capacity})
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].from != keys[j].from {
				return keys[i].from < keys[j].from
			}
			return keys[i].to < keys[j].to
		})
		return keys
	}

	assert.Equal(t, snapshot(), snapshot(), "rebuild from an unchanged network is isomorphic")
}
