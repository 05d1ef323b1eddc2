package autoscalerconfig

import (
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/zbialik/prometheus-autoscaler/internal/autoscalererrors"
)

func TestResolve_EmptyAnnotationsYieldsDefaults(t *testing.T) {
	defaults, err := LoadDefaultsFromEnv()
	require.NoError(t, err)

	got, err := Resolve(map[string]string{}, "prom-shard-autoscaling.zbialikcloud.io", defaults, nil, logr.Discard())
	require.NoError(t, err)
	require.True(t, got.Equal(defaults))
	require.Equal(t, int64(1), got.MinShards)
	require.Equal(t, int64(7), got.MaxShards)
	require.Equal(t, "double-or-decrement", got.DesiredShardsAlgorithm)
	require.Equal(t, "avg", got.CurrentUsageCalculator)
}

func TestResolve_AnnotationOverride(t *testing.T) {
	defaults, err := LoadDefaultsFromEnv()
	require.NoError(t, err)

	annotations := map[string]string{
		"prom-shard-autoscaling.zbialikcloud.io/max-shards": "4",
	}
	got, err := Resolve(annotations, "prom-shard-autoscaling.zbialikcloud.io", defaults, nil, logr.Discard())
	require.NoError(t, err)
	require.Equal(t, int64(4), got.MaxShards)
}

func TestResolve_IdempotentOnSameAnnotations(t *testing.T) {
	defaults, err := LoadDefaultsFromEnv()
	require.NoError(t, err)

	first, err := Resolve(map[string]string{}, "prom-shard-autoscaling.zbialikcloud.io", defaults, nil, logr.Discard())
	require.NoError(t, err)

	second, err := Resolve(map[string]string{}, "prom-shard-autoscaling.zbialikcloud.io", defaults, &first, logr.Discard())
	require.NoError(t, err)
	require.True(t, first.Equal(second))
}

func TestResolve_InvalidBoolIsConfigError(t *testing.T) {
	defaults, err := LoadDefaultsFromEnv()
	require.NoError(t, err)

	annotations := map[string]string{
		"prom-shard-autoscaling.zbialikcloud.io/disable-scale-down": "maybe",
	}
	_, err = Resolve(annotations, "prom-shard-autoscaling.zbialikcloud.io", defaults, nil, logr.Discard())
	require.Error(t, err)
	require.True(t, errors.Is(err, autoscalererrors.ErrConfigError))
}

func TestResolve_InvalidIntIsConfigError(t *testing.T) {
	defaults, err := LoadDefaultsFromEnv()
	require.NoError(t, err)

	annotations := map[string]string{
		"prom-shard-autoscaling.zbialikcloud.io/min-shards": "not-a-number",
	}
	_, err = Resolve(annotations, "prom-shard-autoscaling.zbialikcloud.io", defaults, nil, logr.Discard())
	require.Error(t, err)
	require.True(t, errors.Is(err, autoscalererrors.ErrConfigError))
}
