package metrics

import "github.com/mlefebvre/hydronet/core/factory"

var sinkRegistry = factory.NewRegistry[AllocationSink]()

// RegisterAllocationSink adds a sink factory identified by name.
func RegisterAllocationSink(name string, f factory.Factory[AllocationSink]) error {
	return sinkRegistry.Register(name, f)
}

// NewAllocationSink creates a sink from the provided configurations, fanning
// out to a MultiSink when more than one is configured.
func NewAllocationSink(cfgs []factory.ModuleConfig) (AllocationSink, error) {
	if len(cfgs) == 0 {
		return NopSink{}, nil
	}
	if len(cfgs) == 1 {
		return sinkRegistry.Create(cfgs[0])
	}
	sinks := make([]AllocationSink, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, err
		}
		sinks[i] = s
	}
	return NewMultiSink(sinks...), nil
}
