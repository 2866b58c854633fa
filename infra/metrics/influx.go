package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/mlefebvre/hydronet/core/metrics"
	"github.com/mlefebvre/hydronet/infra/logger"
)

// InfluxSink writes the allocation result stream to an InfluxDB instance
// using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// when the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.AllocationSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordAllocation writes one point per allocation row.
func (s *InfluxSink) RecordAllocation(recs []coremetrics.AllocationRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	now := time.Now()
	for _, r := range recs {
		p := write.NewPointWithMeasurement("allocation").
			AddTag("batch_id", r.BatchID).
			AddTag("subnetwork", strconv.Itoa(r.Subnetwork)).
			AddTag("node_type", r.NodeType).
			AddTag("node", strconv.Itoa(r.Node)).
			AddTag("priority", strconv.Itoa(r.Priority)).
			AddField("sim_time", r.Time).
			AddField("demand", r.Demand).
			AddField("allocated", r.Allocated).
			AddField("realized", r.Realized).
			SetTime(now)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordSolve writes one point per subnetwork solve.
func (s *InfluxSink) RecordSolve(ev coremetrics.SolveEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("allocation_solve").
		AddTag("batch_id", ev.BatchID).
		AddTag("subnetwork", strconv.Itoa(ev.Subnetwork)).
		AddTag("failed", strconv.FormatBool(ev.Failed)).
		AddField("sim_time", ev.Time).
		AddField("duration_seconds", ev.Duration.Seconds()).
		AddField("error", ev.Error).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
