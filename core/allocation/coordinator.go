package allocation

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mlefebvre/hydronet/core/logger"
	"github.com/mlefebvre/hydronet/core/metrics"
	"github.com/mlefebvre/hydronet/core/model"
	"github.com/mlefebvre/hydronet/internal/eventbus"
)

// Coordinator orders and couples the solves of multiple subnetworks sharing
// one primary network as their upstream supplier. The primary solves first
// each interval; dependent subnetworks then solve in parallel since their
// models share no state.
type Coordinator struct {
	nw         *model.Network
	primary    *Allocator
	dependents []*Allocator
	links      map[model.SubnetworkID][]model.EdgeID
	log        logger.Logger
	sink       metrics.AllocationSink
	bus        eventbus.EventBus
}

// NewCoordinator builds one allocator per subnetwork and validates the
// primary-network links. At most one subnetwork may be primary, and every
// inflow into a dependent subnetwork must either originate inside it or cross
// a pump/outlet edge from the primary network.
func NewCoordinator(nw *model.Network, subs []model.Subnetwork, priorities []int,
	log logger.Logger, sink metrics.AllocationSink, bus eventbus.EventBus) (*Coordinator, error) {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	c := &Coordinator{
		nw:    nw,
		links: make(map[model.SubnetworkID][]model.EdgeID),
		log:   log,
		sink:  sink,
		bus:   bus,
	}

	var primaryID model.SubnetworkID
	for _, sub := range subs {
		if !sub.Primary {
			continue
		}
		if c.primary != nil {
			return nil, structErrf(sub.ID, "second primary subnetwork; %d is already primary", primaryID)
		}
		alloc, err := NewAllocator(nw, sub, priorities, log)
		if err != nil {
			return nil, err
		}
		c.primary = alloc
		primaryID = sub.ID
	}

	for _, sub := range subs {
		if sub.Primary {
			continue
		}
		if err := c.validateLinks(sub, primaryID); err != nil {
			return nil, err
		}
		alloc, err := NewAllocator(nw, sub, priorities, log)
		if err != nil {
			return nil, err
		}
		c.dependents = append(c.dependents, alloc)
	}
	return c, nil
}

// validateLinks checks every inflow edge of a non-primary subnetwork. Inflows
// crossing from the primary network must be pump or outlet edges and are
// recorded as that subnetwork's primary-network links.
func (c *Coordinator) validateLinks(sub model.Subnetwork, primaryID model.SubnetworkID) error {
	inSub := make(map[model.NodeID]bool, len(sub.Nodes))
	for _, id := range sub.Nodes {
		inSub[id] = true
	}
	for _, eid := range c.nw.EdgeIDs() {
		e, _ := c.nw.Edge(eid)
		if !inSub[e.To] || inSub[e.From] {
			continue
		}
		from, _ := c.nw.Node(e.From)
		if primaryID == 0 || from.Subnetwork != primaryID {
			return structErrf(sub.ID, "inflow edge %d from node %d crosses from outside the primary network", eid, e.From)
		}
		if from.Type != model.Pump && from.Type != model.Outlet {
			return structErrf(sub.ID, "primary network link %d must leave a pump or outlet, got %s", eid, from.Type)
		}
		c.links[sub.ID] = append(c.links[sub.ID], eid)
	}
	return nil
}

// PrimaryLinks returns the validated primary-network link edges feeding the
// given dependent subnetwork.
func (c *Coordinator) PrimaryLinks(sub model.SubnetworkID) []model.EdgeID {
	return append([]model.EdgeID(nil), c.links[sub]...)
}

// Allocators returns all allocators, primary first.
func (c *Coordinator) Allocators() []*Allocator {
	var all []*Allocator
	if c.primary != nil {
		all = append(all, c.primary)
	}
	return append(all, c.dependents...)
}

// RunInterval executes one allocation interval across all subnetworks:
// primary first, then dependents in parallel. A subnetwork is only solved
// when the forcing time falls on a multiple of its allocation interval. A
// failing subnetwork does not stop the others; its error is joined into the
// returned error and its setpoints stay untouched.
func (c *Coordinator) RunInterval(f Forcing) ([]Result, error) {
	batch := uuid.NewString()
	var all []Result
	var errs []error

	if c.primary != nil && c.primary.due(f.Time) {
		rows, err := c.runOne(c.primary, f, batch)
		all = append(all, rows...)
		if err != nil {
			errs = append(errs, err)
		}
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, dep := range c.dependents {
		if !dep.due(f.Time) {
			continue
		}
		wg.Add(1)
		go func(a *Allocator) {
			defer wg.Done()
			rows, err := c.runOne(a, f, batch)
			mu.Lock()
			all = append(all, rows...)
			if err != nil {
				errs = append(errs, err)
			}
			mu.Unlock()
		}(dep)
	}
	wg.Wait()

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.Subnetwork != b.Subnetwork {
			return a.Subnetwork < b.Subnetwork
		}
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		return a.Priority < b.Priority
	})
	return all, errors.Join(errs...)
}

func (c *Coordinator) runOne(a *Allocator, f Forcing, batch string) ([]Result, error) {
	start := time.Now()
	rows, err := a.Run(f)
	ev := metrics.SolveEvent{
		BatchID:    batch,
		Subnetwork: int(a.sub.ID),
		Time:       f.Time,
		Duration:   time.Since(start),
	}
	if err != nil {
		ev.Failed = true
		ev.Error = err.Error()
		c.log.Errorf("subnetwork %d: interval solve failed: %v", a.sub.ID, err)
	}
	if c.bus != nil {
		c.bus.Publish(ev)
	}
	if sinkErr := c.sink.RecordSolve(ev); sinkErr != nil {
		c.log.Warnf("solve event sink: %v", sinkErr)
	}
	if err != nil {
		return nil, err
	}
	if sinkErr := c.sink.RecordAllocation(toRecords(batch, rows)); sinkErr != nil {
		c.log.Warnf("allocation sink: %v", sinkErr)
	}
	return rows, nil
}

func toRecords(batch string, rows []Result) []metrics.AllocationRecord {
	recs := make([]metrics.AllocationRecord, len(rows))
	for i, r := range rows {
		recs[i] = metrics.AllocationRecord{
			BatchID:    batch,
			Time:       r.Time,
			Subnetwork: int(r.Subnetwork),
			NodeType:   r.NodeType.String(),
			Node:       int(r.Node),
			Priority:   r.Priority,
			Demand:     r.Demand,
			Allocated:  r.Allocated,
			Realized:   r.Realized,
		}
	}
	return recs
}
