package app

import (
	"context"
	"fmt"

	"github.com/mlefebvre/hydronet/config"
	"github.com/mlefebvre/hydronet/core/allocation"
	coremetrics "github.com/mlefebvre/hydronet/core/metrics"
	"github.com/mlefebvre/hydronet/infra/logger"
	"github.com/mlefebvre/hydronet/infra/metrics"
	"github.com/mlefebvre/hydronet/internal/eventbus"
	"github.com/mlefebvre/hydronet/scenario"
)

// Service wires configuration, logging and sinks around a scenario replay.
type Service struct {
	cfg  *config.Config
	log  logger.Logger
	sink coremetrics.AllocationSink
	bus  *eventbus.Bus
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logger.Configure(cfg.Logging.Level, cfg.Logging.Pretty)
	logg := logger.New("service")
	sink, err := coremetrics.NewAllocationSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("allocation sink: %w", err)
	}
	return &Service{cfg: cfg, log: logg, sink: sink, bus: eventbus.New()}, nil
}

// Run loads the scenario and replays it. The prometheus endpoint is served
// for the lifetime of the run when configured.
func (s *Service) Run(ctx context.Context) error {
	defer s.bus.Close()
	if port := s.cfg.Metrics.PrometheusPort; port != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, ":"+port); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	sc, err := scenario.Load(s.cfg.Scenario)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}
	s.log.Infof("running scenario %q: %d nodes, %d subnetworks, %d intervals",
		sc.Name, len(sc.Nodes), len(sc.Subnetworks), len(sc.Intervals))

	rows, err := scenario.Run(sc, s.log, s.sink, s.bus)
	if err != nil {
		return err
	}
	s.summarize(rows)
	return nil
}

func (s *Service) summarize(rows []allocation.Result) {
	var demand, allocated float64
	for _, r := range rows {
		demand += r.Demand
		allocated += r.Allocated
	}
	s.log.Infof("scenario finished: %d result rows, total demand %.4g, total allocated %.4g",
		len(rows), demand, allocated)
}
