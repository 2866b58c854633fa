package metrics

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlefebvre/hydronet/core/factory"
)

type stubSink struct {
	recs   int
	solves int
	err    error
}

func (s *stubSink) RecordAllocation(recs []AllocationRecord) error {
	s.recs += len(recs)
	return s.err
}

func (s *stubSink) RecordSolve(SolveEvent) error {
	s.solves++
	return s.err
}

func TestNewAllocationSink(t *testing.T) {
	require.NoError(t, RegisterAllocationSink("stub", func(map[string]any) (AllocationSink, error) {
		return &stubSink{}, nil
	}))

	s, err := NewAllocationSink(nil)
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s, "no configured sinks falls back to nop")

	s, err = NewAllocationSink([]factory.ModuleConfig{{Type: "stub"}})
	require.NoError(t, err)
	assert.IsType(t, &stubSink{}, s)

	s, err = NewAllocationSink([]factory.ModuleConfig{{Type: "stub"}, {Type: "stub"}})
	require.NoError(t, err)
	multi, ok := s.(*MultiSink)
	require.True(t, ok)
	assert.Len(t, multi.Sinks, 2)

	_, err = NewAllocationSink([]factory.ModuleConfig{{Type: "does-not-exist"}})
	assert.Error(t, err)
}

func TestMultiSinkFanOut(t *testing.T) {
	a, b := &stubSink{}, &stubSink{}
	m := NewMultiSink(a, b)

	require.NoError(t, m.RecordAllocation(make([]AllocationRecord, 3)))
	require.NoError(t, m.RecordSolve(SolveEvent{}))
	assert.Equal(t, 3, a.recs)
	assert.Equal(t, 3, b.recs)
	assert.Equal(t, 1, a.solves)
	assert.Equal(t, 1, b.solves)

	a.err = fmt.Errorf("sink down")
	err := m.RecordSolve(SolveEvent{})
	assert.ErrorContains(t, err, "sink down")
}

func TestRegisterDuplicate(t *testing.T) {
	f := func(map[string]any) (AllocationSink, error) { return NopSink{}, nil }
	require.NoError(t, RegisterAllocationSink("dup", f))
	assert.Error(t, RegisterAllocationSink("dup", f))
}
