package model

import "fmt"

// Series is a piecewise-linear function of simulation time. Between breakpoints
// the value is interpolated linearly; outside the covered range the nearest
// value extends as a constant.
type Series struct {
	Times  []float64
	Values []float64
}

// Constant returns a series with the same value at every time.
func Constant(v float64) Series {
	return Series{Times: []float64{0}, Values: []float64{v}}
}

// Validate checks that times and values line up and times increase.
func (s Series) Validate() error {
	if len(s.Times) != len(s.Values) {
		return fmt.Errorf("series: %d times but %d values", len(s.Times), len(s.Values))
	}
	for i := 1; i < len(s.Times); i++ {
		if s.Times[i] <= s.Times[i-1] {
			return fmt.Errorf("series: times not strictly increasing at index %d", i)
		}
	}
	return nil
}

// At evaluates the series at time t. An empty series evaluates to zero.
func (s Series) At(t float64) float64 {
	n := len(s.Times)
	if n == 0 {
		return 0
	}
	if t <= s.Times[0] {
		return s.Values[0]
	}
	if t >= s.Times[n-1] {
		return s.Values[n-1]
	}
	for i := 1; i < n; i++ {
		if t <= s.Times[i] {
			frac := (t - s.Times[i-1]) / (s.Times[i] - s.Times[i-1])
			return s.Values[i-1] + frac*(s.Values[i]-s.Values[i-1])
		}
	}
	return s.Values[n-1]
}
