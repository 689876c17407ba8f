// Package fixedpoint converts raw fixed-point integer magnitudes into
// decimal economic quantities. Raw values can exceed float64's integer
// range, so parsing goes through big.Int before handing off to
// shopspring/decimal; no float64 intermediate is involved.
package fixedpoint

import (
	"math/big"
	"strings"

	"portfolio_exporter/internal/core"

	"github.com/shopspring/decimal"
)

// DefaultAssetDecimals is assumed for any asset missing from the decimal
// table.
const DefaultAssetDecimals = 6

// ParseBigInt parses a raw integer magnitude. Empty, null-ish or
// non-numeric input yields (0, false); callers treat that as a graceful
// zero, never an error.
func ParseBigInt(raw core.RawAmount) (*big.Int, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return new(big.Int), false
	}
	// Some endpoints report integers in scientific or decimal-point
	// notation; anything that is not a plain integer is rejected here and
	// handled by Decimal below.
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int), false
	}
	return i, true
}

// Decimal interprets raw as an integer scaled by 10^exponent and returns the
// exact decimal value. Unparseable input yields zero.
func Decimal(raw core.RawAmount, exponent int) decimal.Decimal {
	if i, ok := ParseBigInt(raw); ok {
		return decimal.NewFromBigInt(i, int32(-exponent))
	}
	// Fall back to decimal parsing for non-integer raw text.
	d, err := decimal.NewFromString(strings.TrimSpace(string(raw)))
	if err != nil {
		return decimal.Zero
	}
	return d.Shift(int32(-exponent))
}

// String renders raw scaled by 10^exponent as a plain decimal string, "0"
// when the input is absent or malformed.
func String(raw core.RawAmount, exponent int) string {
	return Decimal(raw, exponent).String()
}

// FromDecimal renders an already-converted decimal value scaled by
// 10^exponent. Used when formatting accumulated sums that are no longer raw
// text.
func FromDecimal(d decimal.Decimal, exponent int) string {
	return d.Shift(int32(-exponent)).String()
}
