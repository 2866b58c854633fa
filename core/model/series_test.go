package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeriesAt(t *testing.T) {
	s := Series{Times: []float64{0, 10, 20}, Values: []float64{1, 3, 3}}
	assert.NoError(t, s.Validate())
	assert.Equal(t, 1.0, s.At(-5), "constant before first breakpoint")
	assert.Equal(t, 1.0, s.At(0))
	assert.InDelta(t, 2.0, s.At(5), 1e-12)
	assert.Equal(t, 3.0, s.At(10))
	assert.Equal(t, 3.0, s.At(25), "constant after last breakpoint")
}

func TestSeriesEmptyAndConstant(t *testing.T) {
	var empty Series
	assert.Equal(t, 0.0, empty.At(42))
	c := Constant(7.5)
	assert.Equal(t, 7.5, c.At(-1))
	assert.Equal(t, 7.5, c.At(1e6))
}

func TestSeriesValidate(t *testing.T) {
	bad := Series{Times: []float64{0, 0}, Values: []float64{1, 2}}
	assert.Error(t, bad.Validate())
	mismatch := Series{Times: []float64{0}, Values: []float64{1, 2}}
	assert.Error(t, mismatch.Validate())
}
