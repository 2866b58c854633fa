package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mlefebvre/hydronet/core/factory"
	coremetrics "github.com/mlefebvre/hydronet/core/metrics"
)

// init registers built-in allocation sinks.
func init() {
	_ = coremetrics.RegisterAllocationSink("nop", func(map[string]any) (coremetrics.AllocationSink, error) {
		return coremetrics.NopSink{}, nil
	})

	_ = coremetrics.RegisterAllocationSink("prometheus", func(map[string]any) (coremetrics.AllocationSink, error) {
		return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
	})

	_ = coremetrics.RegisterAllocationSink("influx", func(conf map[string]any) (coremetrics.AllocationSink, error) {
		var c struct {
			URL    string `json:"url"`
			Token  string `json:"token"`
			Org    string `json:"org"`
			Bucket string `json:"bucket"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket), nil
	})
}
