package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCountsOnInjectedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordOrder("stored")
	r.RecordOrder("stored")
	r.RecordOrder("skipped")
	r.RecordModelLoad(true, true)

	if got := testutil.ToFloat64(r.ordersTotal.WithLabelValues("stored")); got != 2 {
		t.Fatalf("expected 2 stored orders, got %v", got)
	}
	if got := testutil.ToFloat64(r.modelLoaded); got != 1 {
		t.Fatalf("expected model_loaded=1, got %v", got)
	}

	r.RecordModelLoad(false, false)
	if got := testutil.ToFloat64(r.modelLoaded); got != 0 {
		t.Fatalf("expected model_loaded=0, got %v", got)
	}

	// A second recorder on a fresh registry must not panic on duplicate names.
	_ = New(prometheus.NewRegistry())
}
