package shardcalc

import (
	"testing"

	"github.com/go-logr/logr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/zbialik/prometheus-autoscaler/internal/autoscalerconfig"
	"github.com/zbialik/prometheus-autoscaler/internal/metricsreader"
)

func baseConfig(t *testing.T) autoscalerconfig.Config {
	t.Helper()
	c, err := autoscalerconfig.LoadDefaultsFromEnv()
	require.NoError(t, err)
	return c
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculateDesired_HPA_NoScaleOnZeroMemory(t *testing.T) {
	cfg := baseConfig(t)
	cfg.DesiredShardsAlgorithm = "hpa"
	spec := Spec{Shards: 2, RequestsMemoryQuantity: "4Gi"}

	got, err := CalculateDesired(spec, metricsreader.Usage{CPU: decimal.Zero, Memory: decimal.Zero}, cfg, logr.Discard())
	require.NoError(t, err)
	require.Equal(t, int64(2), got)
}

func TestCalculateDesired_HPA_ScenarioFromSpec(t *testing.T) {
	// shards=2, requests.memory=4Gi, target-memory-util=0.75, usage 5Gi per
	// pod avg => memTarget = 3Gi, raw = ceil(2 * 5/3) = 4.
	cfg := baseConfig(t)
	cfg.DesiredShardsAlgorithm = "hpa"
	cfg.TargetMemoryUtil = dec("0.75")
	spec := Spec{Shards: 2, RequestsMemoryQuantity: "4Gi"}
	usage := metricsreader.Usage{CPU: decimal.Zero, Memory: dec("5368709120")} // 5Gi in bytes

	got, err := CalculateDesired(spec, usage, cfg, logr.Discard())
	require.NoError(t, err)
	require.Equal(t, int64(4), got)
}

func TestCalculateDesired_DoubleOrDecrement_ScaleUp(t *testing.T) {
	cfg := baseConfig(t)
	cfg.DesiredShardsAlgorithm = "double-or-decrement"
	spec := Spec{Shards: 2, RequestsMemoryQuantity: "4Gi"}
	// util = usage/4Gi > 0.75 default scale-up threshold
	usage := metricsreader.Usage{Memory: dec("3758096384")} // 3.5Gi

	got, err := CalculateDesired(spec, usage, cfg, logr.Discard())
	require.NoError(t, err)
	require.Equal(t, int64(4), got) // doubled
}

func TestCalculateDesired_DoubleOrDecrement_ScaleDownBlockedByDisable(t *testing.T) {
	// shards=4, util 0.10 (< 0.25 default scale-down threshold),
	// disable-scale-down=true => raw stays at 4.
	cfg := baseConfig(t)
	cfg.DesiredShardsAlgorithm = "double-or-decrement"
	cfg.DisableScaleDown = true
	spec := Spec{Shards: 4, RequestsMemoryQuantity: "4Gi"}
	usage := metricsreader.Usage{Memory: dec("429496730")} // ~0.1 * 4Gi

	got, err := CalculateDesired(spec, usage, cfg, logr.Discard())
	require.NoError(t, err)
	require.Equal(t, int64(4), got)
}

func TestCalculateDesired_StepBoundsDominateAlgorithm(t *testing.T) {
	// algorithm=hpa, shards=2, computed raw=10 (large usage), max-increment=3,
	// maxShards=20 => enforcement yields 2+3=5; clamp leaves 5.
	cfg := baseConfig(t)
	cfg.DesiredShardsAlgorithm = "hpa"
	cfg.MaxIncrement = 3
	cfg.MaxShards = 20
	cfg.TargetMemoryUtil = dec("0.75")
	spec := Spec{Shards: 2, RequestsMemoryQuantity: "1Gi"}
	// memTarget = 0.75Gi; desire raw = ceil(2 * usage / 0.75Gi) = 10 => usage = 3.75Gi
	usage := metricsreader.Usage{Memory: dec("4026531840")} // 3.75Gi

	got, err := CalculateDesired(spec, usage, cfg, logr.Discard())
	require.NoError(t, err)
	require.Equal(t, int64(5), got)
}

func TestCalculateDesired_ClampAtMinShardsOne(t *testing.T) {
	// shards=1, double-or-decrement, util below scale-down threshold,
	// minShards=1 => desired clamps to 1 (cannot go to 0).
	cfg := baseConfig(t)
	cfg.DesiredShardsAlgorithm = "double-or-decrement"
	cfg.MinShards = 1
	spec := Spec{Shards: 1, RequestsMemoryQuantity: "4Gi"}
	usage := metricsreader.Usage{Memory: dec("107374182")} // ~0.025 * 4Gi, below 0.25

	got, err := CalculateDesired(spec, usage, cfg, logr.Discard())
	require.NoError(t, err)
	require.Equal(t, int64(1), got)
}

func TestCalculateDesired_ClampAtMaxShards(t *testing.T) {
	// shards=maxShards, util above scale-up threshold => desired clamps to
	// maxShards rather than doubling past it.
	cfg := baseConfig(t)
	cfg.DesiredShardsAlgorithm = "double-or-decrement"
	cfg.MaxShards = 7
	spec := Spec{Shards: 7, RequestsMemoryQuantity: "4Gi"}
	usage := metricsreader.Usage{Memory: dec("4294967296")} // util=1.0 > 0.75

	got, err := CalculateDesired(spec, usage, cfg, logr.Discard())
	require.NoError(t, err)
	require.Equal(t, int64(7), got)
}

func TestCalculateDesired_UnknownAlgorithmIsConfigError(t *testing.T) {
	cfg := baseConfig(t)
	cfg.DesiredShardsAlgorithm = "magic"
	spec := Spec{Shards: 2, RequestsMemoryQuantity: "4Gi"}

	_, err := CalculateDesired(spec, metricsreader.Usage{Memory: dec("1")}, cfg, logr.Discard())
	require.Error(t, err)
}

func TestCalculateDesired_MinIncrementEnforced(t *testing.T) {
	cfg := baseConfig(t)
	cfg.DesiredShardsAlgorithm = "double-or-decrement"
	cfg.MinIncrement = 3
	cfg.MaxShards = 20
	spec := Spec{Shards: 2, RequestsMemoryQuantity: "4Gi"}
	// double-or-decrement on scale-up always doubles (step=2), less than
	// minIncrement=3, so bumped up to shards+minIncrement=5.
	usage := metricsreader.Usage{Memory: dec("4294967296")} // util=1.0

	got, err := CalculateDesired(spec, usage, cfg, logr.Discard())
	require.NoError(t, err)
	require.Equal(t, int64(5), got)
}

func TestCalculateDesired_MinDecrementEnforced(t *testing.T) {
	cfg := baseConfig(t)
	cfg.DesiredShardsAlgorithm = "double-or-decrement"
	cfg.MinDecrement = 3
	cfg.MinShards = 1
	spec := Spec{Shards: 10, RequestsMemoryQuantity: "4Gi"}
	usage := metricsreader.Usage{Memory: dec("107374182")} // util ~0.025 < 0.25, step would be -1

	got, err := CalculateDesired(spec, usage, cfg, logr.Discard())
	require.NoError(t, err)
	require.Equal(t, int64(7), got) // 10 - minDecrement(3)
}
