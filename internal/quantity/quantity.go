// Package quantity parses Kubernetes canonical resource quantities
// ("200Mi", "1.5G", "500m") into exact decimal values, built on
// github.com/shopspring/decimal so every arithmetic step stays exact.
package quantity

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/zbialik/prometheus-autoscaler/internal/autoscalererrors"
)

// exponents maps a one-character SI suffix to its power-of-base exponent.
var exponents = map[byte]int32{
	'n': -3, 'u': -2, 'm': -1,
	'k': 1, 'K': 1, 'M': 2, 'G': 3, 'T': 4, 'P': 5, 'E': 6,
}

// Parse converts v (a string, int, int64, float64, or decimal.Decimal) into
// an exact decimal value. A string is a number optionally followed by a
// binary suffix (Ki, Mi, Gi, Ti, Pi, Ei, base 1024) or a decimal suffix
// (n, u, m, k, K, M, G, T, P, E, base 1000); any other input is converted
// directly.
func Parse(v interface{}) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int32:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case string:
		return parseString(t)
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: unsupported quantity type %T", autoscalererrors.ErrInvalidQuantity, v)
	}
}

func parseString(s string) (decimal.Decimal, error) {
	number := s
	var suffix string

	if len(s) >= 2 && s[len(s)-1] == 'i' {
		switch s[len(s)-2] {
		case 'K', 'k', 'M', 'G', 'T', 'P', 'E':
			number = s[:len(s)-2]
			suffix = s[len(s)-2:]
		}
	} else if len(s) >= 1 {
		last := s[len(s)-1]
		if _, ok := exponents[last]; ok {
			number = s[:len(s)-1]
			suffix = s[len(s)-1:]
		}
	}

	num, err := decimal.NewFromString(number)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: invalid number format %q", autoscalererrors.ErrInvalidQuantity, number)
	}

	if suffix == "" {
		return num, nil
	}

	var base int64
	if suffix[len(suffix)-1] == 'i' {
		if suffix == "ki" {
			return decimal.Decimal{}, fmt.Errorf("%w: %q has unknown suffix", autoscalererrors.ErrInvalidQuantity, s)
		}
		base = 1024
	} else if len(suffix) == 1 {
		base = 1000
	} else {
		return decimal.Decimal{}, fmt.Errorf("%w: %q has unknown suffix", autoscalererrors.ErrInvalidQuantity, s)
	}

	exp, ok := exponents[suffix[0]]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %q has unknown suffix", autoscalererrors.ErrInvalidQuantity, s)
	}

	baseDec := decimal.NewFromInt(base)
	return num.Mul(baseDec.Pow(decimal.NewFromInt32(exp))), nil
}

// FormatBinary renders the canonical-quantity string for the numeric
// prefix d with the given SI suffix (e.g. "Mi", "G", ""). It is the
// inverse of Parse's string form: Parse(FormatBinary(d, s)) == d *
// base(s)^exponent(s), which is the round-trip law the quantity parser
// must satisfy.
func FormatBinary(d decimal.Decimal, suffix string) string {
	return d.String() + suffix
}
