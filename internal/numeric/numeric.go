// Package numeric provides the decimal rounding and string normalization
// primitives used for order prices and sizes.
//
// Every value that goes on the wire must be an exact decimal multiple of the
// instrument's increment. The rounding primitives divide as float64 only to
// select the multiple, then multiply back by the increment as a decimal, so
// the result is exact.
package numeric

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// RoundToNearest rounds input to the nearest multiple of increment,
// half away from zero.
func RoundToNearest(input, increment decimal.Decimal) decimal.Decimal {
	return increment.Mul(decimal.NewFromFloat(math.Round(divideAsFloat(input, increment))))
}

// RoundUp rounds input up to a multiple of increment.
func RoundUp(input, increment decimal.Decimal) decimal.Decimal {
	return increment.Mul(decimal.NewFromFloat(math.Ceil(divideAsFloat(input, increment))))
}

// RoundDown rounds input down to a multiple of increment.
func RoundDown(input, increment decimal.Decimal) decimal.Decimal {
	return increment.Mul(decimal.NewFromFloat(math.Floor(divideAsFloat(input, increment))))
}

// divideAsFloat computes the selector quotient. Float precision is fine
// here: the quotient is only used to pick the multiple, never as a value.
func divideAsFloat(input, increment decimal.Decimal) float64 {
	return input.InexactFloat64() / increment.InexactFloat64()
}

// NormalizeDecimalString trims trailing zeros after a decimal point, and the
// point itself when nothing remains behind it. Idempotent.
func NormalizeDecimalString(input string) string {
	if !strings.Contains(input, ".") {
		return input
	}
	out := strings.TrimRight(input, "0")
	return strings.TrimRight(out, ".")
}

// ConvertDecimalToString renders a decimal in plain (non-scientific)
// notation, optionally normalized.
func ConvertDecimalToString(input decimal.Decimal, normalize bool) string {
	out := input.String()
	if normalize {
		out = NormalizeDecimalString(out)
	}
	return out
}

// RemoveLeadingNegativeSign strips a leading '-' if present. Some venues
// report short position quantities as negative strings; the sign is carried
// separately in the data model.
func RemoveLeadingNegativeSign(input string) string {
	return strings.TrimPrefix(input, "-")
}
