package metrics

import "time"

// AllocationRecord is one allocation output row as seen by sinks. It mirrors
// the engine's result stream without importing it, so sinks stay decoupled.
type AllocationRecord struct {
	BatchID    string
	Time       float64
	Subnetwork int
	NodeType   string
	Node       int
	Priority   int
	Demand     float64
	Allocated  float64
	Realized   float64
}

// SolveEvent describes the outcome of one subnetwork solve.
type SolveEvent struct {
	BatchID    string
	Subnetwork int
	Time       float64
	Duration   time.Duration
	Failed     bool
	Error      string
}

// AllocationSink consumes the allocation output stream.
type AllocationSink interface {
	RecordAllocation(recs []AllocationRecord) error
	RecordSolve(ev SolveEvent) error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RecordAllocation([]AllocationRecord) error { return nil }
func (NopSink) RecordSolve(SolveEvent) error              { return nil }
