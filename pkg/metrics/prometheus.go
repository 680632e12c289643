package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	predictions  *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	modelLoaded  prometheus.Gauge
	modelLoads   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	ordersTotal  *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
}

// New creates a Prometheus metrics recorder registered on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infer_predictions_total",
				Help: "Total number of forecast points returned",
			},
			[]string{"source"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infer_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		modelLoaded: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "infer_model_loaded",
				Help: "1 when a predictor is loaded and serving",
			},
		),
		modelLoads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infer_model_loads_total",
				Help: "Model load attempts by result",
			},
			[]string{"result"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "infer_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
		ordersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infer_orders_consumed_total",
				Help: "Order events seen by the ingestor by outcome",
			},
			[]string{"result"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infer_forecast_cache_lookups_total",
				Help: "Forecast cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// RecordPrediction records the number of forecast points served.
func (r *Recorder) RecordPrediction(source string, points int) {
	r.predictions.WithLabelValues(source).Add(float64(points))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordModelLoad records a load attempt and the resulting readiness.
func (r *Recorder) RecordModelLoad(ok bool, loaded bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	r.modelLoads.WithLabelValues(result).Inc()
	if loaded {
		r.modelLoaded.Set(1)
	} else {
		r.modelLoaded.Set(0)
	}
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordOrder records an ingested order outcome: stored, skipped or failed.
func (r *Recorder) RecordOrder(result string) {
	r.ordersTotal.WithLabelValues(result).Inc()
}

// RecordCache records a forecast cache hit or miss.
func (r *Recorder) RecordCache(hit bool) {
	if hit {
		r.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	r.cacheLookups.WithLabelValues("miss").Inc()
}
