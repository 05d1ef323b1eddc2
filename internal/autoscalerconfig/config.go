// Package autoscalerconfig resolves the live autoscaling configuration for
// one Prometheus object by merging controller-wide defaults (read once
// from PROM_AUTOSCALER_* environment variables) with per-object annotation
// overrides, re-evaluated on every reconcile tick.
package autoscalerconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/shopspring/decimal"

	"github.com/zbialik/prometheus-autoscaler/internal/autoscalererrors"
)

// Config holds one fully-resolved set of autoscaling settings. See
// fieldTable for the declared type and default of every key.
type Config struct {
	DisableScaleDown          bool
	MinShards                 int64
	MaxShards                 int64
	TargetMemoryUtil          decimal.Decimal
	TargetMemoryUtilScaleUp   decimal.Decimal
	TargetMemoryUtilScaleDown decimal.Decimal
	MinWarmupScaleUp          int64
	MinWarmupScaleDown        int64
	MinCooldown               int64
	DesiredShardsAlgorithm    string
	CurrentUsageCalculator    string
	MinIncrement              int64
	MaxIncrement              int64
	MinDecrement              int64
	MaxDecrement              int64
}

// Equal reports whether two configs hold identical values. Used for the
// "differs from previous" change-detection check instead of a generic deep
// equal, since decimal.Decimal values must compare numerically.
func (c Config) Equal(o Config) bool {
	return c.DisableScaleDown == o.DisableScaleDown &&
		c.MinShards == o.MinShards &&
		c.MaxShards == o.MaxShards &&
		c.TargetMemoryUtil.Equal(o.TargetMemoryUtil) &&
		c.TargetMemoryUtilScaleUp.Equal(o.TargetMemoryUtilScaleUp) &&
		c.TargetMemoryUtilScaleDown.Equal(o.TargetMemoryUtilScaleDown) &&
		c.MinWarmupScaleUp == o.MinWarmupScaleUp &&
		c.MinWarmupScaleDown == o.MinWarmupScaleDown &&
		c.MinCooldown == o.MinCooldown &&
		c.DesiredShardsAlgorithm == o.DesiredShardsAlgorithm &&
		c.CurrentUsageCalculator == o.CurrentUsageCalculator &&
		c.MinIncrement == o.MinIncrement &&
		c.MaxIncrement == o.MaxIncrement &&
		c.MinDecrement == o.MinDecrement &&
		c.MaxDecrement == o.MaxDecrement
}

// kind identifies how a field's annotation/env string is coerced.
type kind int

const (
	kindBool kind = iota
	kindInt
	kindDecimal
	kindEnum
)

// fieldSpec declares one configuration key: its annotation/env name, its
// coercion kind, its process-wide default, and how to read/write it on a
// Config. Driving resolution from this table rather than runtime type
// introspection of a generic map keeps coercion statically typed.
type fieldSpec struct {
	key     string // annotation suffix
	envName string // full environment variable name; not always the key upper-snake-cased
	def     string
	kind    kind
	get     func(c *Config) string
	set     func(c *Config, raw string) error
}

var fieldTable = []fieldSpec{
	{
		key: "disable-scale-down", envName: "PROM_AUTOSCALER_DISABLE_SCALE_DOWN", def: "false", kind: kindBool,
		get: func(c *Config) string { return strconv.FormatBool(c.DisableScaleDown) },
		set: func(c *Config, raw string) error {
			b, err := parseBool(raw)
			if err != nil {
				return err
			}
			c.DisableScaleDown = b
			return nil
		},
	},
	{
		key: "min-shards", envName: "PROM_AUTOSCALER_MIN_SHARDS", def: "1", kind: kindInt,
		get: func(c *Config) string { return strconv.FormatInt(c.MinShards, 10) },
		set: func(c *Config, raw string) error {
			n, err := parseInt(raw)
			if err != nil {
				return err
			}
			c.MinShards = n
			return nil
		},
	},
	{
		key: "max-shards", envName: "PROM_AUTOSCALER_MAX_SHARDS", def: "7", kind: kindInt,
		get: func(c *Config) string { return strconv.FormatInt(c.MaxShards, 10) },
		set: func(c *Config, raw string) error {
			n, err := parseInt(raw)
			if err != nil {
				return err
			}
			c.MaxShards = n
			return nil
		},
	},
	{
		key: "target-memory-util", envName: "PROM_AUTOSCALER_TARGET_MEM_UTIL", def: "0.75", kind: kindDecimal,
		get: func(c *Config) string { return c.TargetMemoryUtil.String() },
		set: func(c *Config, raw string) error {
			d, err := parseDecimal(raw)
			if err != nil {
				return err
			}
			c.TargetMemoryUtil = d
			return nil
		},
	},
	{
		key: "target-memory-util-scale-up", envName: "PROM_AUTOSCALER_TARGET_MEM_UTIL_SCALE_UP", def: "0.75", kind: kindDecimal,
		get: func(c *Config) string { return c.TargetMemoryUtilScaleUp.String() },
		set: func(c *Config, raw string) error {
			d, err := parseDecimal(raw)
			if err != nil {
				return err
			}
			c.TargetMemoryUtilScaleUp = d
			return nil
		},
	},
	{
		key: "target-memory-util-scale-down", envName: "PROM_AUTOSCALER_TARGET_MEM_UTIL_SCALE_DOWN", def: "0.25", kind: kindDecimal,
		get: func(c *Config) string { return c.TargetMemoryUtilScaleDown.String() },
		set: func(c *Config, raw string) error {
			d, err := parseDecimal(raw)
			if err != nil {
				return err
			}
			c.TargetMemoryUtilScaleDown = d
			return nil
		},
	},
	{
		key: "min-warmup-scale-up", envName: "PROM_AUTOSCALER_MIN_WARMUP_SCALE_UP", def: "60", kind: kindInt,
		get: func(c *Config) string { return strconv.FormatInt(c.MinWarmupScaleUp, 10) },
		set: func(c *Config, raw string) error {
			n, err := parseInt(raw)
			if err != nil {
				return err
			}
			c.MinWarmupScaleUp = n
			return nil
		},
	},
	{
		key: "min-warmup-scale-down", envName: "PROM_AUTOSCALER_MIN_WARMUP_SCALE_DOWN", def: "1800", kind: kindInt,
		get: func(c *Config) string { return strconv.FormatInt(c.MinWarmupScaleDown, 10) },
		set: func(c *Config, raw string) error {
			n, err := parseInt(raw)
			if err != nil {
				return err
			}
			c.MinWarmupScaleDown = n
			return nil
		},
	},
	{
		key: "min-cooldown", envName: "PROM_AUTOSCALER_MIN_COOLDOWN", def: "1800", kind: kindInt,
		get: func(c *Config) string { return strconv.FormatInt(c.MinCooldown, 10) },
		set: func(c *Config, raw string) error {
			n, err := parseInt(raw)
			if err != nil {
				return err
			}
			c.MinCooldown = n
			return nil
		},
	},
	{
		key: "desired-shards-algorithm", envName: "PROM_AUTOSCALER_DESIRED_SHARDS_ALOGORITHM", def: "double-or-decrement", kind: kindEnum,
		get: func(c *Config) string { return c.DesiredShardsAlgorithm },
		set: func(c *Config, raw string) error { c.DesiredShardsAlgorithm = raw; return nil },
	},
	{
		key: "current-usage-calculator", envName: "PROM_AUTOSCALER_CURR_USAGE_CALCULATOR", def: "avg", kind: kindEnum,
		get: func(c *Config) string { return c.CurrentUsageCalculator },
		set: func(c *Config, raw string) error { c.CurrentUsageCalculator = raw; return nil },
	},
	{
		key: "min-increment", envName: "PROM_AUTOSCALER_MIN_INCREMENT", def: "0", kind: kindInt,
		get: func(c *Config) string { return strconv.FormatInt(c.MinIncrement, 10) },
		set: func(c *Config, raw string) error {
			n, err := parseInt(raw)
			if err != nil {
				return err
			}
			c.MinIncrement = n
			return nil
		},
	},
	{
		key: "max-increment", envName: "PROM_AUTOSCALER_MAX_INCREMENT", def: "0", kind: kindInt,
		get: func(c *Config) string { return strconv.FormatInt(c.MaxIncrement, 10) },
		set: func(c *Config, raw string) error {
			n, err := parseInt(raw)
			if err != nil {
				return err
			}
			c.MaxIncrement = n
			return nil
		},
	},
	{
		key: "min-decrement", envName: "PROM_AUTOSCALER_MIN_DECREMENT", def: "0", kind: kindInt,
		get: func(c *Config) string { return strconv.FormatInt(c.MinDecrement, 10) },
		set: func(c *Config, raw string) error {
			n, err := parseInt(raw)
			if err != nil {
				return err
			}
			c.MinDecrement = n
			return nil
		},
	},
	{
		key: "max-decrement", envName: "PROM_AUTOSCALER_MAX_DECREMENT", def: "0", kind: kindInt,
		get: func(c *Config) string { return strconv.FormatInt(c.MaxDecrement, 10) },
		set: func(c *Config, raw string) error {
			n, err := parseInt(raw)
			if err != nil {
				return err
			}
			c.MaxDecrement = n
			return nil
		},
	},
}

func parseBool(raw string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "TRUE":
		return true, nil
	case "FALSE":
		return false, nil
	default:
		return false, fmt.Errorf("%w: boolString must be either TRUE or FALSE but is %q", autoscalererrors.ErrConfigError, raw)
	}
}

func parseInt(raw string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid integer %q", autoscalererrors.ErrConfigError, raw)
	}
	return n, nil
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: invalid decimal %q", autoscalererrors.ErrConfigError, raw)
	}
	return d, nil
}

// LoadDefaultsFromEnv reads every configuration key once from its
// PROM_AUTOSCALER_* environment variable, falling back to the field
// table's default when unset.
func LoadDefaultsFromEnv() (Config, error) {
	var c Config
	for _, f := range fieldTable {
		raw := os.Getenv(f.envName)
		if raw == "" {
			raw = f.def
		}
		if err := f.set(&c, raw); err != nil {
			return Config{}, fmt.Errorf("default for %s: %w", f.key, err)
		}
	}
	return c, nil
}

// Resolve merges defaults with per-object annotation overrides under
// annotationPrefix, coercing each present annotation to its declared kind.
// If the merged result differs from previous (nil on first call), a header
// line and then one log line per key (every key, not only the changed
// ones) are emitted.
func Resolve(annotations map[string]string, annotationPrefix string, defaults Config, previous *Config, log logr.Logger) (Config, error) {
	var c Config
	for _, f := range fieldTable {
		raw, ok := annotations[annotationPrefix+"/"+f.key]
		if !ok {
			raw = f.get(&defaults)
		}
		if err := f.set(&c, raw); err != nil {
			return Config{}, fmt.Errorf("annotation override for %s: %w", f.key, err)
		}
	}

	if previous == nil || !c.Equal(*previous) {
		log.Info("prometheus reloaded with following autoscaling configs")
		for _, f := range fieldTable {
			log.Info("autoscaling config", "key", f.key, "value", f.get(&c))
		}
	}

	return c, nil
}
