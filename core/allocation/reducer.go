package allocation

import (
	"math"
	"strconv"

	lvlath "github.com/katalvlaran/lvlath/core"
	"github.com/katalvlaran/lvlath/dfs"

	"github.com/mlefebvre/hydronet/core/logger"
	"github.com/mlefebvre/hydronet/core/model"
)

// Reduce collapses a subnetwork's physical graph into the minimal allocation
// graph. It returns the graph, the bidirectional id mapping and the
// association from source nodes to the physical source edges they stand for.
//
// A physical node becomes a graph node when it is a user, a basin, or a branch
// point with more than two neighbors. Chains of remaining nodes between two
// represented nodes merge into composite edges carrying the minimum flow-rate
// capacity found along the chain; one-way nodes in a chain pin its direction.
func Reduce(nw *model.Network, sub model.Subnetwork, log logger.Logger) (*Graph, *Mapping, map[GraphID]model.EdgeID, error) {
	r := &reduction{
		nw:       nw,
		sub:      sub,
		log:      log,
		graph:    NewGraph(),
		mapping:  NewMapping(),
		sources:  make(map[GraphID]model.EdgeID),
		inSub:    make(map[model.NodeID]bool, len(sub.Nodes)),
		srcEdges: make(map[model.EdgeID]bool, len(sub.SourceEdges)),
		consumed: make(map[model.NodeID]bool),
	}
	for _, id := range sub.Nodes {
		r.inSub[id] = true
	}
	for _, id := range sub.SourceEdges {
		r.srcEdges[id] = true
	}

	r.classify()
	if err := r.promoteSources(); err != nil {
		return nil, nil, nil, err
	}
	r.connectDirect()
	r.mergeChains()
	if err := r.validateSources(); err != nil {
		return nil, nil, nil, err
	}
	r.breakReturnCycles()
	return r.graph, r.mapping, r.sources, nil
}

type reduction struct {
	nw       *model.Network
	sub      model.Subnetwork
	log      logger.Logger
	graph    *Graph
	mapping  *Mapping
	sources  map[GraphID]model.EdgeID
	inSub    map[model.NodeID]bool
	srcEdges map[model.EdgeID]bool
	consumed map[model.NodeID]bool
}

func classOf(t model.NodeType) NodeClass {
	switch t {
	case model.UserDemand:
		return ClassUser
	case model.Basin:
		return ClassBasin
	}
	return ClassJunction
}

// classify represents every subnetwork member that is a user, a basin, or a
// branch point that cannot be summarized as a simple chain.
func (r *reduction) classify() {
	for _, id := range r.nw.NodeIDs() {
		if !r.inSub[id] {
			continue
		}
		n, _ := r.nw.Node(id)
		if n.Type == model.UserDemand || n.Type == model.Basin || r.nw.Degree(id) > 2 {
			gid := r.graph.AddNode(classOf(n.Type))
			r.mapping.Add(id, gid)
		}
	}
}

// promoteSources represents both endpoints of every designated source edge.
// The upstream endpoint becomes a source node even when it lies outside the
// subnetwork, since a source may feed the subnetwork from outside it.
func (r *reduction) promoteSources() error {
	for _, eid := range r.sub.SourceEdges {
		e, ok := r.nw.Edge(eid)
		if !ok {
			return structErrf(r.sub.ID, "source edge %d not in network", eid)
		}
		up, ok := r.mapping.Alloc(e.From)
		if ok {
			if r.graph.Class(up) != ClassSource {
				return structErrf(r.sub.ID, "source edge %d: upstream node %d already represented as %s",
					eid, e.From, r.graph.Class(up))
			}
		} else {
			up = r.graph.AddNode(ClassSource)
			r.mapping.Add(e.From, up)
		}
		r.sources[up] = eid

		if _, ok := r.mapping.Alloc(e.To); !ok {
			down, _ := r.nw.Node(e.To)
			gid := r.graph.AddNode(classOf(down.Type))
			r.mapping.Add(e.To, gid)
		}
	}
	return nil
}

// connectDirect joins represented physical neighbors with unconstrained
// edges; no intervening node exists to constrain them. Demand bounds on edges
// into users are installed later by the bound updater.
func (r *reduction) connectDirect() {
	for _, eid := range r.nw.EdgeIDs() {
		e, _ := r.nw.Edge(eid)
		if !r.relevant(e) {
			continue
		}
		from, okF := r.mapping.Alloc(e.From)
		to, okT := r.mapping.Alloc(e.To)
		if !okF || !okT {
			continue
		}
		r.mergeEdge(from, to, math.Inf(1))
	}
}

// relevant keeps edges internal to the subnetwork plus its designated source
// edges; other cross-subnetwork edges are the coordinator's concern.
func (r *reduction) relevant(e *model.Edge) bool {
	if r.srcEdges[e.ID] {
		return true
	}
	return r.inSub[e.From] && r.inSub[e.To]
}

// mergeEdge adds a directed edge, summing capacities when a parallel path
// between the same pair already exists.
func (r *reduction) mergeEdge(from, to GraphID, capacity float64) {
	for _, i := range r.graph.Out(from) {
		e := r.graph.Edge(i)
		if e.To == to {
			if Infinite(e.Capacity) || Infinite(capacity) {
				r.graph.SetCapacity(i, math.Inf(1))
			} else {
				r.graph.SetCapacity(i, e.Capacity+capacity)
			}
			return
		}
	}
	if _, err := r.graph.AddEdge(from, to, capacity); err != nil {
		r.log.Debugf("skipping edge %d->%d: %v", from, to, err)
	}
}

// mergeChains walks every chain of unrepresented nodes hanging off a
// represented node and merges it into a composite edge, or discards it when
// it does not terminate at a second represented node.
func (r *reduction) mergeChains() {
	for _, phys := range r.mapping.PhysIDs() {
		for _, e := range r.nw.OutEdges(phys) {
			r.walkChain(phys, e, e.To)
		}
		for _, e := range r.nw.InEdges(phys) {
			r.walkChain(phys, e, e.From)
		}
	}
}

type chainWalk struct {
	minCap   float64
	allowFwd bool
	allowBwd bool
	nodes    []model.NodeID
}

// walkChain follows the chain starting at the unrepresented neighbor `first`
// of represented node `start`, reached through physical edge `via`.
func (r *reduction) walkChain(start model.NodeID, via *model.Edge, first model.NodeID) {
	if _, ok := r.mapping.Alloc(first); ok {
		return // direct neighbor, handled by connectDirect
	}
	if r.consumed[first] {
		return // chain already merged from its other end
	}

	w := chainWalk{minCap: math.Inf(1), allowFwd: true, allowBwd: true}
	cur := first
	prev := via
	seen := map[model.NodeID]bool{start: true}

	for {
		if seen[cur] {
			r.discardChain(start, w, "chain loops onto itself")
			return
		}
		seen[cur] = true
		w.nodes = append(w.nodes, cur)

		n, _ := r.nw.Node(cur)
		if n.MaxFlowRate < w.minCap {
			w.minCap = n.MaxFlowRate
		}
		if n.Type.OneWay() {
			// Entering through the node's inflow side means the traversal
			// runs with the physical orientation.
			if prev.To == cur {
				w.allowBwd = false
			} else {
				w.allowFwd = false
			}
		}

		next, ok := r.nextChainEdge(cur, prev)
		if !ok {
			r.discardChain(start, w, "chain does not terminate at a represented node")
			return
		}
		other := next.To
		if other == cur {
			other = next.From
		}
		if gid, ok := r.mapping.Alloc(other); ok {
			r.finishChain(start, gid, w)
			return
		}
		prev = next
		cur = other
	}
}

// nextChainEdge picks the single continuation edge of a chain node. Nodes
// with no continuation or with a branch cannot be summarized and end the walk.
func (r *reduction) nextChainEdge(cur model.NodeID, prev *model.Edge) (*model.Edge, bool) {
	var next *model.Edge
	count := 0
	for _, e := range r.nw.OutEdges(cur) {
		if e.ID != prev.ID {
			next = e
			count++
		}
	}
	for _, e := range r.nw.InEdges(cur) {
		if e.ID != prev.ID {
			next = e
			count++
		}
	}
	if count != 1 {
		return nil, false
	}
	return next, true
}

func (r *reduction) discardChain(start model.NodeID, w chainWalk, reason string) {
	for _, id := range w.nodes {
		r.consumed[id] = true
	}
	r.log.Debugw("discarding chain", map[string]any{
		"subnetwork": r.sub.ID,
		"start":      start,
		"length":     len(w.nodes),
		"reason":     reason,
	})
}

func (r *reduction) finishChain(start model.NodeID, endAlloc GraphID, w chainWalk) {
	for _, id := range w.nodes {
		r.consumed[id] = true
	}
	startAlloc, ok := r.mapping.Alloc(start)
	if !ok {
		missingMapping("chain start %d not mapped", start)
	}
	if startAlloc == endAlloc {
		r.discardChain(start, chainWalk{}, "chain returns to its starting node")
		return
	}
	if !w.allowFwd && !w.allowBwd {
		r.discardChain(start, chainWalk{}, "one-way nodes oppose each other")
		return
	}
	if w.minCap <= 0 {
		r.discardChain(start, chainWalk{}, "chain has zero capacity")
		return
	}
	if w.allowFwd {
		r.mergeEdge(startAlloc, endAlloc, w.minCap)
	}
	if w.allowBwd {
		r.mergeEdge(endAlloc, startAlloc, w.minCap)
	}
}

// validateSources enforces the source invariant: no inflow, exactly one
// outflow. A violation is fatal for the whole model construction.
func (r *reduction) validateSources() error {
	for src := range r.sources {
		if n := len(r.graph.In(src)); n != 0 {
			return structErrf(r.sub.ID, "source node %d (physical %d) has %d inflow edges, want 0",
				src, r.mapping.Phys(src), n)
		}
		if n := len(r.graph.Out(src)); n != 1 {
			return structErrf(r.sub.ID, "source node %d (physical %d) has %d outflow edges, want 1",
				src, r.mapping.Phys(src), n)
		}
	}
	return nil
}

// breakReturnCycles drops a user's return-flow edge when the allocation graph
// contains a path from the edge's destination back to the user. Without this
// a user's own return flow would be double-counted as its upstream supply.
func (r *reduction) breakReturnCycles() {
	for _, u := range r.graph.Nodes(ClassUser) {
		for {
			removed := false
			for _, ei := range r.graph.Out(u) {
				e := r.graph.Edge(ei)
				if r.reachable(e.To, u) {
					r.graph.RemoveEdge(ei)
					r.log.Warnf("subnetwork %d: dropping return edge %d->%d of user %d (physical %d): cycle back to user",
						r.sub.ID, e.From, e.To, u, r.mapping.Phys(u))
					removed = true
					break
				}
			}
			if !removed {
				break
			}
		}
	}
}

// reachable runs a depth-first search over the current allocation edges.
func (r *reduction) reachable(from, target GraphID) bool {
	g, err := lvlath.NewGraph(lvlath.WithDirected(true))
	if err != nil {
		missingMapping("dfs graph: %v", err)
	}
	for i := 1; i <= r.graph.NumNodes(); i++ {
		if err := g.AddVertex(strconv.Itoa(i)); err != nil {
			missingMapping("dfs vertex %d: %v", i, err)
		}
	}
	for i := 0; i < r.graph.NumEdges(); i++ {
		e := r.graph.Edge(i)
		if _, err := g.AddEdge(strconv.Itoa(int(e.From)), strconv.Itoa(int(e.To)), 0); err != nil {
			missingMapping("dfs edge %d->%d: %v", e.From, e.To, err)
		}
	}
	res, err := dfs.DFS(g, strconv.Itoa(int(from)))
	if err != nil {
		missingMapping("dfs from %d: %v", from, err)
	}
	return res.Visited[strconv.Itoa(int(target))]
}
