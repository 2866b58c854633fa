package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/mlefebvre/hydronet/core/metrics"
)

// PromSink records allocation results in Prometheus metrics.
type PromSink struct {
	solves    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	allocated *prometheus.GaugeVec
	demand    *prometheus.GaugeVec
}

// NewPromSink registers allocation metrics on the default Prometheus
// registerer. The HTTP server should be started separately.
func NewPromSink() (coremetrics.AllocationSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.AllocationSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	solves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_solves_total",
		Help: "Total number of subnetwork allocation solves",
	}, []string{"subnetwork", "failed"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "allocation_solve_duration_seconds",
		Help:    "Wall time of one subnetwork allocation solve",
		Buckets: prometheus.DefBuckets,
	}, []string{"subnetwork"})
	allocated := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "allocation_allocated_flow",
		Help: "Last allocated flow rate per node and priority",
	}, []string{"subnetwork", "node_type", "node", "priority"})
	demand := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "allocation_demand_flow",
		Help: "Last demanded flow rate per node and priority",
	}, []string{"subnetwork", "node_type", "node", "priority"})

	for _, col := range []prometheus.Collector{solves, duration, allocated, demand} {
		if err := reg.Register(col); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return &PromSink{solves: solves, duration: duration, allocated: allocated, demand: demand}, nil
}

// RecordAllocation sets the per-node gauges from the result rows.
func (s *PromSink) RecordAllocation(recs []coremetrics.AllocationRecord) error {
	for _, r := range recs {
		labels := []string{
			strconv.Itoa(r.Subnetwork),
			r.NodeType,
			strconv.Itoa(r.Node),
			strconv.Itoa(r.Priority),
		}
		s.allocated.WithLabelValues(labels...).Set(r.Allocated)
		s.demand.WithLabelValues(labels...).Set(r.Demand)
	}
	return nil
}

// RecordSolve counts the solve and observes its duration.
func (s *PromSink) RecordSolve(ev coremetrics.SolveEvent) error {
	sub := strconv.Itoa(ev.Subnetwork)
	s.solves.WithLabelValues(sub, strconv.FormatBool(ev.Failed)).Inc()
	s.duration.WithLabelValues(sub).Observe(ev.Duration.Seconds())
	return nil
}
