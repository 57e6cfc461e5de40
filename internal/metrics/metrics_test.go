package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordBatch(t *testing.T) {
	tests := []struct {
		name      string
		partition string
		n         int
		err       error
		failures  float64
		dropped   float64
	}{
		{"successful clean batch", "clean", 10, nil, 0, 0},
		{"failed dirty batch", "dirty", 7, errors.New("connection refused"), 1, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failures := testutil.ToFloat64(BatchFailures.WithLabelValues(tt.partition, "error"))
			dropped := testutil.ToFloat64(DroppedMessages.WithLabelValues(tt.partition))

			RecordBatch(tt.partition, tt.n, 5*time.Millisecond, tt.err)

			if got := testutil.ToFloat64(BatchFailures.WithLabelValues(tt.partition, "error")) - failures; got != tt.failures {
				t.Errorf("failures delta = %v, want %v", got, tt.failures)
			}
			if got := testutil.ToFloat64(DroppedMessages.WithLabelValues(tt.partition)) - dropped; got != tt.dropped {
				t.Errorf("dropped delta = %v, want %v", got, tt.dropped)
			}
		})
	}
}

func TestRecordBatchFailureCircuitOpen(t *testing.T) {
	before := testutil.ToFloat64(BatchFailures.WithLabelValues("clean", "circuit_open"))
	RecordBatchFailure("clean", "circuit_open", 3)
	if got := testutil.ToFloat64(BatchFailures.WithLabelValues("clean", "circuit_open")); got != before+1 {
		t.Errorf("circuit_open failures = %v, want %v", got, before+1)
	}
}
