package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordsPipelineCounters(t *testing.T) {
	m := NewMetrics("test")

	m.RecordJob("flagged", 2*time.Second)
	m.RecordJob("flagged", time.Second)
	m.RecordJob("failed", time.Millisecond)
	m.RecordAnalysis(true, time.Second)
	m.RecordAssignment(false)
	m.SetQueueDepth(4)

	if got := testutil.ToFloat64(m.jobsTotal.WithLabelValues("flagged")); got != 2 {
		t.Fatalf("expected 2 flagged jobs, got %v", got)
	}
	if got := testutil.ToFloat64(m.analysisTotal.WithLabelValues("fallback")); got != 1 {
		t.Fatalf("expected 1 fallback, got %v", got)
	}
	if got := testutil.ToFloat64(m.assignmentsTotal.WithLabelValues("unassigned")); got != 1 {
		t.Fatalf("expected 1 unassigned, got %v", got)
	}
	if got := testutil.ToFloat64(m.queueDepth); got != 4 {
		t.Fatalf("expected depth 4, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/x", "GET", 200, time.Millisecond)
	m.RecordError("/x", "GET", "NOT_FOUND")
	m.RecordJob("completed", time.Millisecond)
	m.SetQueueDepth(1)
	m.RecordAnalysis(false, time.Millisecond)
	m.RecordAssignment(true)
	m.RecordCacheLookup(true)
	if m.Registry() != nil {
		t.Fatal("expected nil registry")
	}
}
