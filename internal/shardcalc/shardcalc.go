// Package shardcalc computes the desired Prometheus shard count from
// observed usage, the current spec, and the resolved autoscaling
// configuration.
package shardcalc

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/shopspring/decimal"

	"github.com/zbialik/prometheus-autoscaler/internal/autoscalerconfig"
	"github.com/zbialik/prometheus-autoscaler/internal/autoscalererrors"
	"github.com/zbialik/prometheus-autoscaler/internal/metricsreader"
	"github.com/zbialik/prometheus-autoscaler/internal/quantity"
)

func init() {
	// Keep divisions exact enough that Ceil never trips over a rounding
	// artifact near an integer boundary.
	decimal.DivisionPrecision = 40
}

// Spec is the subset of a Prometheus object's spec the calculator needs.
type Spec struct {
	Shards                 int64
	RequestsMemoryQuantity string
}

// CalculateDesired returns the desired shard count under cfg's selected
// algorithm, after applying step-bound enforcement and the
// [min-shards, max-shards] clamp (clamp applied last, so bounds dominate
// step limits).
func CalculateDesired(spec Spec, usage metricsreader.Usage, cfg autoscalerconfig.Config, log logr.Logger) (int64, error) {
	switch cfg.DesiredShardsAlgorithm {
	case "hpa":
		return desiredShardsHPA(spec, usage, cfg, log)
	case "double-or-decrement":
		return desiredShardsDoubleOrDecrement(spec, usage, cfg, log)
	default:
		return 0, fmt.Errorf("%w: desired-shards-algorithm must be 'hpa' or 'double-or-decrement', got %q", autoscalererrors.ErrConfigError, cfg.DesiredShardsAlgorithm)
	}
}

func desiredShardsHPA(spec Spec, usage metricsreader.Usage, cfg autoscalerconfig.Config, log logr.Logger) (int64, error) {
	log.Info("prometheus has current shards", "shards", spec.Shards)

	if usage.Memory.IsZero() {
		log.Info("current memory usage returned 0 bytes! - is metrics api available?")
		return spec.Shards, nil
	}

	memRequest, err := quantity.Parse(spec.RequestsMemoryQuantity)
	if err != nil {
		return 0, err
	}
	memTarget := memRequest.Mul(cfg.TargetMemoryUtil)

	shardsDec := decimal.NewFromInt(spec.Shards)
	raw := shardsDec.Mul(usage.Memory).Div(memTarget).Ceil().IntPart()

	return enforceThresholds(raw, spec, cfg, log), nil
}

func desiredShardsDoubleOrDecrement(spec Spec, usage metricsreader.Usage, cfg autoscalerconfig.Config, log logr.Logger) (int64, error) {
	log.Info("prometheus has current shards", "shards", spec.Shards)

	if usage.Memory.IsZero() {
		log.Info("current memory usage returned 0 bytes! - is metrics api available?")
		return spec.Shards, nil
	}

	memRequest, err := quantity.Parse(spec.RequestsMemoryQuantity)
	if err != nil {
		return 0, err
	}
	util := usage.Memory.Div(memRequest)

	var raw int64
	switch {
	case util.GreaterThan(cfg.TargetMemoryUtilScaleUp):
		raw = spec.Shards * 2
	case util.LessThan(cfg.TargetMemoryUtilScaleDown):
		raw = spec.Shards - 1
	default:
		raw = spec.Shards
	}

	return enforceThresholds(raw, spec, cfg, log), nil
}

// enforceThresholds applies the step bounds on scale-up/scale-down, then
// the [min-shards, max-shards] clamp, in that order.
func enforceThresholds(raw int64, spec Spec, cfg autoscalerconfig.Config, log logr.Logger) int64 {
	step := raw - spec.Shards

	switch {
	case step > 0:
		if cfg.MinIncrement > 0 && step < cfg.MinIncrement {
			raw = spec.Shards + cfg.MinIncrement
		} else if cfg.MaxIncrement > 0 && step > cfg.MaxIncrement {
			raw = spec.Shards + cfg.MaxIncrement
		}
	case step < 0:
		if cfg.DisableScaleDown {
			raw = spec.Shards
		} else {
			absStep := -step
			if cfg.MinDecrement > 0 && absStep < cfg.MinDecrement {
				raw = spec.Shards - cfg.MinDecrement
			} else if cfg.MaxDecrement > 0 && absStep > cfg.MaxDecrement {
				raw = spec.Shards - cfg.MaxDecrement
			}
		}
	}

	if raw > cfg.MaxShards {
		raw = cfg.MaxShards
	} else if raw < cfg.MinShards {
		raw = cfg.MinShards
	}

	log.Info("desired shards calculated", "shards", raw)
	return raw
}
