package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if jobsTotal == nil || recordsExtractedTotal == nil || scrapeDurationSeconds == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil || activeWorkers == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveJob("team_stats", "completed")
	if val := testutil.ToFloat64(jobsTotal.WithLabelValues("team_stats", "completed")); val != 1 {
		t.Errorf("Expected jobsTotal to be 1, got %f", val)
	}

	ObserveRecords("team_stat", 3)
	if val := testutil.ToFloat64(recordsExtractedTotal.WithLabelValues("team_stat")); val != 3 {
		t.Errorf("Expected recordsExtractedTotal to be 3, got %f", val)
	}

	// Zero record counts must not create a series.
	ObserveRecords("film_award", 0)
	if val := testutil.ToFloat64(recordsExtractedTotal.WithLabelValues("film_award")); val != 0 {
		t.Errorf("Expected recordsExtractedTotal for film_award to be 0, got %f", val)
	}

	ObserveScrape("team_stats", 1500*time.Millisecond)
	if val := testutil.CollectAndCount(scrapeDurationSeconds); val <= 0 {
		t.Errorf("Expected scrapeDurationSeconds to be observed, got %d", val)
	}
}

func TestActiveWorkersGauge(t *testing.T) {
	Init()

	before := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	IncActiveWorkers()
	if val := testutil.ToFloat64(activeWorkers); val != before+2 {
		t.Errorf("Expected activeWorkers to be %f, got %f", before+2, val)
	}
	DecActiveWorkers()
	DecActiveWorkers()
	if val := testutil.ToFloat64(activeWorkers); val != before {
		t.Errorf("Expected activeWorkers to return to %f, got %f", before, val)
	}
}

func TestHandler(t *testing.T) {
	Init()
	if Handler() == nil {
		t.Fatal("Handler() returned nil")
	}
}
