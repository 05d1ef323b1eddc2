// Package metricsexporter publishes counters and gauges describing the
// autoscaler's own scaling decisions through controller-runtime's metrics
// server, the same endpoint the manager exposes via
// sigs.k8s.io/controller-runtime/pkg/metrics/server.
package metricsexporter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

// Exporter registers and updates the autoscaler's scaling-decision
// metrics against the controller-runtime metrics registry.
type Exporter struct {
	patchesTotal    *prometheus.CounterVec
	loopResetsTotal *prometheus.CounterVec
	currentShards   *prometheus.GaugeVec
	desiredShards   *prometheus.GaugeVec
	warmupCount     *prometheus.GaugeVec
}

// NewExporter registers the autoscaler's metrics with the process-wide
// controller-runtime metrics.Registry.
func NewExporter() *Exporter {
	e := &Exporter{
		patchesTotal: promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
			Name: "prom_autoscaler_patches_total",
			Help: "Number of spec.shards patches emitted, by direction.",
		}, []string{"namespace", "name", "direction"}),
		loopResetsTotal: promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
			Name: "prom_autoscaler_loop_resets_total",
			Help: "Number of times a per-object loop exhausted its error budget and reset.",
		}, []string{"namespace", "name"}),
		currentShards: promauto.With(metrics.Registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "prom_autoscaler_current_shards",
			Help: "spec.shards observed on the last evaluated tick.",
		}, []string{"namespace", "name"}),
		desiredShards: promauto.With(metrics.Registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "prom_autoscaler_desired_shards",
			Help: "Desired shard count computed on the last evaluated tick.",
		}, []string{"namespace", "name"}),
		warmupCount: promauto.With(metrics.Registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "prom_autoscaler_warmup_count",
			Help: "Consecutive matching evaluations observed so far toward the warmup threshold.",
		}, []string{"namespace", "name"}),
	}
	return e
}

// ObserveTick records the outcome of one evaluation.
func (e *Exporter) ObserveTick(key types.NamespacedName, current, desired, warmup int64) {
	e.currentShards.WithLabelValues(key.Namespace, key.Name).Set(float64(current))
	e.desiredShards.WithLabelValues(key.Namespace, key.Name).Set(float64(desired))
	e.warmupCount.WithLabelValues(key.Namespace, key.Name).Set(float64(warmup))
}

// ObservePatch records an emitted shards patch, direction is "scale-up" or
// "scale-down".
func (e *Exporter) ObservePatch(key types.NamespacedName, direction string) {
	e.patchesTotal.WithLabelValues(key.Namespace, key.Name, direction).Inc()
}

// ObserveLoopReset records a loop exhausting its consecutive-error budget.
func (e *Exporter) ObserveLoopReset(key types.NamespacedName) {
	e.loopResetsTotal.WithLabelValues(key.Namespace, key.Name).Inc()
}
