/*
Package pricing provides the availability and pricing engine.

PURPOSE:
  Given a stay window, an occupancy and a catalog of room products, the
  engine decides which products can be sold and at what final price. All
  computation in this package is pure: I/O happens only behind the
  collaborator interfaces in provider.go.

KEY CONCEPTS IN THIS FILE (money.go):
  - Money: an amount in integer minor currency units (cents, paise)
  - Currency: ISO-4217 style currency code

PRECISION:
  Money is never held in floating point. Stored and exposed amounts are
  int64 minor units. Every fractional intermediate (averages, percentages,
  tax, currency conversion) goes through decimal.Decimal and is rounded
  half away from zero back to a whole minor unit.

USAGE:
  rate := pricing.Money(3500)
  tax := rate.MulRate(decimal.RequireFromString("0.18")) // 630

SEE ALSO:
  - types.go: Data model built on Money
  - charges.go: Quote arithmetic
*/
package pricing

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Integer minor currency units
// =============================================================================

// Money is an amount expressed in minor currency units.
type Money int64

// Currency is an ISO-4217 style currency code such as "INR" or "USD".
type Currency string

var hundred = decimal.NewFromInt(100)

// MoneyFromDecimal rounds a decimal minor-unit amount half away from zero.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money(d.Round(0).IntPart())
}

func (m Money) Decimal() decimal.Decimal { return decimal.NewFromInt(int64(m)) }
func (m Money) Add(o Money) Money        { return m + o }
func (m Money) Sub(o Money) Money        { return m - o }
func (m Money) Times(n int) Money        { return m * Money(n) }
func (m Money) IsNegative() bool         { return m < 0 }
func (m Money) IsZero() bool             { return m == 0 }

// MulRate multiplies by a decimal factor and rounds to a whole minor unit.
func (m Money) MulRate(rate decimal.Decimal) Money {
	return MoneyFromDecimal(m.Decimal().Mul(rate))
}

// Percent returns pct percent of m, rounded.
func (m Money) Percent(pct decimal.Decimal) Money {
	return MoneyFromDecimal(m.Decimal().Mul(pct).Div(hundred))
}

func (m Money) Min(o Money) Money {
	if m < o {
		return m
	}
	return o
}

func (m Money) Max(o Money) Money {
	if m > o {
		return m
	}
	return o
}

func (m Money) String() string { return strconv.FormatInt(int64(m), 10) }

// MeanMoney returns the rounded arithmetic mean, or zero for an empty slice.
func MeanMoney(values []Money) Money {
	if len(values) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v.Decimal())
	}
	return MoneyFromDecimal(sum.Div(decimal.NewFromInt(int64(len(values)))))
}
