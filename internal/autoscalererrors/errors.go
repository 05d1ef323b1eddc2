// Package autoscalererrors defines the sentinel error kinds shared across
// the autoscaler's components, so the reconciliation loop can distinguish
// errors it tolerates from errors that count against its error budget.
package autoscalererrors

import "errors"

var (
	// ErrMetricsUnavailable means metrics-server returned no usable data for
	// a Prometheus object's pods. No component returns it: a zero memory
	// reading is handled inside shardcalc, which returns the current shard
	// count without an error, so it never counts against the loop's error
	// budget.
	ErrMetricsUnavailable = errors.New("metrics unavailable")

	// ErrConfigError means an annotation override could not be coerced to
	// its declared type, or an enum value (algorithm, calculator) is
	// unrecognized.
	ErrConfigError = errors.New("config error")

	// ErrAPIError means a Kubernetes API call (list, get, patch) failed.
	ErrAPIError = errors.New("api error")

	// ErrInvalidQuantity means a resource quantity string could not be
	// parsed.
	ErrInvalidQuantity = errors.New("invalid quantity")
)
