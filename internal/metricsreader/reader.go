// Package metricsreader queries metrics-server for the pods belonging to a
// Prometheus object and aggregates their CPU and memory usage as either an
// average or a maximum.
package metricsreader

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/zbialik/prometheus-autoscaler/internal/autoscalererrors"
	"github.com/zbialik/prometheus-autoscaler/internal/quantity"
)

// PodOperatorNameLabel is the metrics-server pod label that ties a pod back
// to the Prometheus object it belongs to.
const PodOperatorNameLabel = "operator.prometheus.io/name"

// Reader queries metrics-server (metrics.k8s.io/v1beta1 pods) for
// per-Prometheus pod usage.
type Reader struct {
	metricsClient metricsclientset.Interface
}

// NewReader builds a Reader around a typed metrics-server clientset.
func NewReader(metricsClient metricsclientset.Interface) *Reader {
	return &Reader{metricsClient: metricsClient}
}

// PodUsage aggregates CPU and memory usage across every pod labeled
// operator.prometheus.io/name=<name> in namespace, using the requested
// calculator ("avg" or "max").
func (r *Reader) PodUsage(ctx context.Context, name, namespace, calculator string) (Usage, error) {
	switch calculator {
	case "avg":
		return r.podUsageAvg(ctx, name, namespace)
	case "max":
		return r.podUsageMax(ctx, name, namespace)
	default:
		return Usage{}, fmt.Errorf("%w: current-usage-calculator must be 'max' or 'avg', got %q", autoscalererrors.ErrConfigError, calculator)
	}
}

func (r *Reader) listPodMetrics(ctx context.Context, name, namespace string) ([]podTotal, error) {
	list, err := r.metricsClient.MetricsV1beta1().PodMetricses(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", PodOperatorNameLabel, name),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing pod metrics for %s/%s: %v", autoscalererrors.ErrAPIError, namespace, name, err)
	}

	totals := make([]podTotal, 0, len(list.Items))
	for _, pod := range list.Items {
		var cpu, mem decimal.Decimal
		for _, container := range pod.Containers {
			c, err := quantity.Parse(container.Usage.Cpu().String())
			if err != nil {
				return nil, err
			}
			m, err := quantity.Parse(container.Usage.Memory().String())
			if err != nil {
				return nil, err
			}
			cpu = cpu.Add(c)
			mem = mem.Add(m)
		}
		totals = append(totals, podTotal{cpu: cpu, memory: mem})
	}
	return totals, nil
}

type podTotal struct {
	cpu    decimal.Decimal
	memory decimal.Decimal
}

// podUsageAvg computes the arithmetic mean CPU and the arithmetic mean
// memory independently over pods whose summed CPU and memory are both
// nonzero; a pod with either component at zero is treated as unavailable
// and excluded from both sums and the divisor.
func (r *Reader) podUsageAvg(ctx context.Context, name, namespace string) (Usage, error) {
	totals, err := r.listPodMetrics(ctx, name, namespace)
	if err != nil {
		return Usage{}, err
	}

	var sumCPU, sumMemory decimal.Decimal
	available := 0
	for _, t := range totals {
		if t.cpu.IsZero() || t.memory.IsZero() {
			continue
		}
		available++
		sumCPU = sumCPU.Add(t.cpu)
		sumMemory = sumMemory.Add(t.memory)
	}

	if available == 0 {
		return zeroUsage, nil
	}

	divisor := decimal.NewFromInt(int64(available))
	return Usage{
		CPU:    sumCPU.Div(divisor),
		Memory: sumMemory.Div(divisor),
	}, nil
}

// podUsageMax computes the elementwise maximum CPU and memory across all
// pods, including pods reporting zero usage.
func (r *Reader) podUsageMax(ctx context.Context, name, namespace string) (Usage, error) {
	totals, err := r.listPodMetrics(ctx, name, namespace)
	if err != nil {
		return Usage{}, err
	}

	maxCPU, maxMemory := decimal.Zero, decimal.Zero
	for _, t := range totals {
		if t.cpu.GreaterThan(maxCPU) {
			maxCPU = t.cpu
		}
		if t.memory.GreaterThan(maxMemory) {
			maxMemory = t.memory
		}
	}

	return Usage{CPU: maxCPU, Memory: maxMemory}, nil
}
