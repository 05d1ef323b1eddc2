package quantity

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/zbialik/prometheus-autoscaler/internal/autoscalererrors"
)

func TestParse_NoSuffix(t *testing.T) {
	got, err := Parse("200")
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(200)), "got %s", got)
}

func TestParse_BinarySuffixes(t *testing.T) {
	cases := map[string]decimal.Decimal{
		"200Mi": decimal.NewFromInt(200).Mul(decimal.NewFromInt(1024).Pow(decimal.NewFromInt32(2))),
		"1Gi":   decimal.NewFromInt(1024).Pow(decimal.NewFromInt32(3)),
		"4Ki":   decimal.NewFromInt(4).Mul(decimal.NewFromInt(1024)),
	}
	for in, want := range cases {
		got, err := Parse(in)
		require.NoError(t, err, in)
		require.True(t, got.Equal(want), "%s: got %s want %s", in, got, want)
	}
}

func TestParse_DecimalSuffixes(t *testing.T) {
	cases := map[string]decimal.Decimal{
		"1.5G": decimal.RequireFromString("1.5").Mul(decimal.NewFromInt(1000).Pow(decimal.NewFromInt32(3))),
		"500m": decimal.RequireFromString("500").Mul(decimal.NewFromInt(1000).Pow(decimal.NewFromInt32(-1))),
		"2k":   decimal.NewFromInt(2).Mul(decimal.NewFromInt(1000)),
		"3n":   decimal.NewFromInt(3).Mul(decimal.NewFromInt(1000).Pow(decimal.NewFromInt32(-3))),
	}
	for in, want := range cases {
		got, err := Parse(in)
		require.NoError(t, err, in)
		require.True(t, got.Equal(want), "%s: got %s want %s", in, got, want)
	}
}

func TestParse_KiForbidden(t *testing.T) {
	_, err := Parse("5ki")
	require.Error(t, err)
	require.True(t, errors.Is(err, autoscalererrors.ErrInvalidQuantity))
}

func TestParse_UnknownSuffix(t *testing.T) {
	_, err := Parse("5Q")
	require.Error(t, err)
	require.True(t, errors.Is(err, autoscalererrors.ErrInvalidQuantity))
}

func TestParse_MalformedNumber(t *testing.T) {
	_, err := Parse("abcMi")
	require.Error(t, err)
	require.True(t, errors.Is(err, autoscalererrors.ErrInvalidQuantity))
}

func TestParse_NumericInputsPassThrough(t *testing.T) {
	got, err := Parse(42)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(42)))

	got, err = Parse(1.5)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromFloat(1.5)))
}

// TestParse_RoundTrip pins the round-trip law from the specification: for
// every supported suffix s and non-negative decimal d,
// parseQuantity(format(d, s)) == d * base(s)^exponent(s).
func TestParse_RoundTrip(t *testing.T) {
	cases := []struct {
		suffix string
		base   int64
		exp    int32
	}{
		{"", 1, 0}, {"n", 1000, -3}, {"u", 1000, -2}, {"m", 1000, -1},
		{"k", 1000, 1}, {"K", 1000, 1}, {"M", 1000, 2}, {"G", 1000, 3},
		{"T", 1000, 4}, {"P", 1000, 5}, {"E", 1000, 6},
		{"Ki", 1024, 1}, {"Mi", 1024, 2}, {"Gi", 1024, 3}, {"Ti", 1024, 4},
	}
	d := decimal.RequireFromString("3.25")
	for _, c := range cases {
		formatted := FormatBinary(d, c.suffix)
		got, err := Parse(formatted)
		require.NoError(t, err, c.suffix)
		want := d.Mul(decimal.NewFromInt(c.base).Pow(decimal.NewFromInt32(c.exp)))
		require.True(t, got.Equal(want), "suffix %q: got %s want %s", c.suffix, got, want)
	}
}
