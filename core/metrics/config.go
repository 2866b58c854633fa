package metrics

import "github.com/mlefebvre/hydronet/core/factory"

// Config defines settings for allocation result sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusPort serves /metrics when non-empty and a prom sink is active.
	PrometheusPort string `json:"prometheus_port"`
}
