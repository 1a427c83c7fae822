// Package observability exposes the pipeline's prometheus instrumentation.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Metrics aggregates the pipeline counters served on /metrics.
type Metrics struct {
	RunsStarted   *prometheus.CounterVec
	RunsFinished  *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Uploads       *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the collectors on reg. Tests pass a fresh
// registry so repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixora",
			Subsystem: "pipeline",
			Name:      "runs_started_total",
			Help:      "Pipeline runs started, after the quota gate.",
		}, []string{"type"}),
		RunsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixora",
			Subsystem: "pipeline",
			Name:      "runs_finished_total",
			Help:      "Pipeline runs reaching a terminal status.",
		}, []string{"type", "status"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pixora",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each remote pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"stage"}),
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixora",
			Subsystem: "pipeline",
			Name:      "artifact_uploads_total",
			Help:      "Artifact upload outcomes after retries.",
		}, []string{"outcome"}),
	}
}

// Module wires the metrics registry.
var Module = fx.Module("observability",
	fx.Provide(NewMetrics),
)
