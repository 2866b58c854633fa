package scenario

import (
	"github.com/mlefebvre/hydronet/core/allocation"
	"github.com/mlefebvre/hydronet/core/logger"
	"github.com/mlefebvre/hydronet/core/metrics"
	"github.com/mlefebvre/hydronet/internal/eventbus"
)

// Run builds the coordinator for the scenario and replays its intervals,
// returning the concatenated allocation result stream. A failed interval does
// not stop the replay; the first error is returned alongside the rows
// gathered so far.
func Run(sc *Scenario, log logger.Logger, sink metrics.AllocationSink, bus eventbus.EventBus) ([]allocation.Result, error) {
	nw, subs, err := sc.Build()
	if err != nil {
		return nil, err
	}
	coord, err := allocation.NewCoordinator(nw, subs, sc.Priorities, log, sink, bus)
	if err != nil {
		return nil, err
	}

	var all []allocation.Result
	var firstErr error
	for _, f := range sc.Forcings() {
		rows, err := coord.RunInterval(f)
		all = append(all, rows...)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return all, firstErr
}
