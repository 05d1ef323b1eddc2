package metricsreader

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"

	"github.com/zbialik/prometheus-autoscaler/internal/autoscalererrors"
	"github.com/zbialik/prometheus-autoscaler/internal/quantity"
)

func podMetrics(namespace, name string, cpu, mem string) *metricsv1beta1.PodMetrics {
	return &metricsv1beta1.PodMetrics{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: namespace,
			Name:      name,
			Labels:    map[string]string{PodOperatorNameLabel: "prom-a"},
		},
		Containers: []metricsv1beta1.ContainerMetrics{
			{
				Name: "prometheus",
				Usage: corev1.ResourceList{
					corev1.ResourceCPU:    resource.MustParse(cpu),
					corev1.ResourceMemory: resource.MustParse(mem),
				},
			},
		},
	}
}

func TestPodUsage_Avg_ComputesCPUAndMemoryIndependently(t *testing.T) {
	client := metricsfake.NewSimpleClientset(
		podMetrics("ns1", "pod-1", "100m", "200Mi"),
		podMetrics("ns1", "pod-2", "300m", "600Mi"),
	)
	r := NewReader(client)

	got, err := r.PodUsage(context.Background(), "prom-a", "ns1", "avg")
	require.NoError(t, err)

	require.True(t, got.CPU.Equal(mustQuantity(t, "200m")), "cpu avg: %s", got.CPU)
	require.True(t, got.Memory.Equal(mustQuantity(t, "400Mi")), "memory avg: %s", got.Memory)
}

func TestPodUsage_Avg_ExcludesZeroPods(t *testing.T) {
	client := metricsfake.NewSimpleClientset(
		podMetrics("ns1", "pod-1", "0", "0"),
		podMetrics("ns1", "pod-2", "200m", "400Mi"),
	)
	r := NewReader(client)

	got, err := r.PodUsage(context.Background(), "prom-a", "ns1", "avg")
	require.NoError(t, err)
	require.True(t, got.CPU.Equal(mustQuantity(t, "200m")))
	require.True(t, got.Memory.Equal(mustQuantity(t, "400Mi")))
}

func TestPodUsage_Avg_ExcludesPodWithOnlyOneComponentZero(t *testing.T) {
	client := metricsfake.NewSimpleClientset(
		podMetrics("ns1", "pod-1", "0", "500Mi"),   // cpu zero, memory nonzero: excluded
		podMetrics("ns1", "pod-2", "100m", "0"),    // cpu nonzero, memory zero: excluded
		podMetrics("ns1", "pod-3", "300m", "600Mi"),
	)
	r := NewReader(client)

	got, err := r.PodUsage(context.Background(), "prom-a", "ns1", "avg")
	require.NoError(t, err)
	require.True(t, got.CPU.Equal(mustQuantity(t, "300m")), "cpu avg: %s", got.CPU)
	require.True(t, got.Memory.Equal(mustQuantity(t, "600Mi")), "memory avg: %s", got.Memory)
}

func TestPodUsage_Avg_ZeroPodsYieldsZeroUsage(t *testing.T) {
	client := metricsfake.NewSimpleClientset()
	r := NewReader(client)

	got, err := r.PodUsage(context.Background(), "prom-a", "ns1", "avg")
	require.NoError(t, err)
	require.True(t, got.CPU.IsZero())
	require.True(t, got.Memory.IsZero())
}

func TestPodUsage_Max_IncludesZeroPods(t *testing.T) {
	client := metricsfake.NewSimpleClientset(
		podMetrics("ns1", "pod-1", "0", "0"),
		podMetrics("ns1", "pod-2", "200m", "100Mi"),
	)
	r := NewReader(client)

	got, err := r.PodUsage(context.Background(), "prom-a", "ns1", "max")
	require.NoError(t, err)
	require.True(t, got.CPU.Equal(mustQuantity(t, "200m")))
	require.True(t, got.Memory.Equal(mustQuantity(t, "100Mi")))
}

func TestPodUsage_UnknownCalculatorIsConfigError(t *testing.T) {
	client := metricsfake.NewSimpleClientset()
	r := NewReader(client)

	_, err := r.PodUsage(context.Background(), "prom-a", "ns1", "median")
	require.Error(t, err)
	require.True(t, errors.Is(err, autoscalererrors.ErrConfigError))
}

func mustQuantity(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := quantity.Parse(resource.MustParse(s).String())
	require.NoError(t, err)
	return d
}
