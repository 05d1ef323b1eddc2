package metricsreader

import "github.com/shopspring/decimal"

// Usage is the aggregated CPU and memory usage for a Prometheus object's
// pods, as produced by the configured calculator (avg or max).
type Usage struct {
	CPU    decimal.Decimal
	Memory decimal.Decimal
}

// zeroUsage is the sentinel result meaning "metrics unavailable": both
// components are exactly zero.
var zeroUsage = Usage{CPU: decimal.Zero, Memory: decimal.Zero}
