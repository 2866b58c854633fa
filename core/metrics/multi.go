package metrics

// MultiSink fans allocation records out to multiple sinks.
type MultiSink struct {
	Sinks []AllocationSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...AllocationSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAllocation forwards the records to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordAllocation(recs []AllocationRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordAllocation(recs); err != nil {
			return err
		}
	}
	return nil
}

// RecordSolve forwards the solve event to all sinks.
func (m *MultiSink) RecordSolve(ev SolveEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordSolve(ev); err != nil {
			return err
		}
	}
	return nil
}
