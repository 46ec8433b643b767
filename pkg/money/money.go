// Package money provides the fixed-precision arithmetic primitives the rest
// of the trading core builds on. Prices, quantities, and balances are always
// shopspring/decimal values carrying an explicit scale — never float64.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a fixed-precision quantity. It is a thin alias so call sites read
// naturally (money.Amount instead of decimal.Decimal) while staying a drop-in
// decimal.Decimal wherever arithmetic is needed.
type Amount = decimal.Decimal

// Zero is the additive identity, exported so callers don't need to import
// shopspring/decimal directly just to compare against zero.
var Zero = decimal.Zero

// Parse parses a decimal string (e.g. an incoming JSON field) into an Amount.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// ToTicks scales an Amount to an integer number of ticks at the given number
// of decimal places, rounding to the nearest tick (half away from zero). Used at the matching engine's
// boundary where heap/map ordering needs a comparable integer key; the
// decimal value itself remains the source of truth everywhere else.
func ToTicks(a Amount, decimals int32) int64 {
	return a.Shift(decimals).Round(0).IntPart()
}

// FromTicks is the inverse of ToTicks.
func FromTicks(ticks int64, decimals int32) Amount {
	return decimal.New(ticks, -decimals)
}

// IsPositive reports whether a > 0.
func IsPositive(a Amount) bool { return a.IsPositive() }

// IsZero reports whether a == 0.
func IsZero(a Amount) bool { return a.IsZero() }

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// DivisibleBy reports whether a is an exact integer multiple of step, i.e.
// a % step == 0, which backs the tick_size/lot_size invariants of §3.
func DivisibleBy(a, step Amount) bool {
	if step.IsZero() {
		return false
	}
	return a.Mod(step).IsZero()
}
