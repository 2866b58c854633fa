package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	coremetrics "github.com/mlefebvre/hydronet/core/metrics"
)

func TestInfluxSink_RecordAllocation(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()

	err := sink.RecordAllocation([]coremetrics.AllocationRecord{{
		BatchID:    "b1",
		Time:       86400,
		Subnetwork: 1,
		NodeType:   "user_demand",
		Node:       7,
		Priority:   2,
		Demand:     4,
		Allocated:  2.5,
		Realized:   2.4,
	}})
	if err != nil {
		t.Fatalf("record error: %v", err)
	}

	for _, want := range []string{
		"allocation,",
		"batch_id=b1",
		"subnetwork=1",
		"node_type=user_demand",
		"node=7",
		"priority=2",
		"demand=4",
		"allocated=2.5",
		"realized=2.4",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("line protocol missing %q: %s", want, body)
		}
	}
}

func TestInfluxSink_RecordSolve(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()

	if err := sink.RecordSolve(coremetrics.SolveEvent{
		BatchID:    "b1",
		Subnetwork: 2,
		Failed:     true,
		Error:      "infeasible",
	}); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if !strings.Contains(body, "allocation_solve,") || !strings.Contains(body, "failed=true") {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
