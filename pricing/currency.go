package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// StaticConverter converts with a fixed table of rates keyed by currency
// pair. Missing direct pairs fall back to the inverse of the reverse pair.
type StaticConverter struct {
	rates map[currencyPair]decimal.Decimal
}

type currencyPair struct {
	From Currency
	To   Currency
}

func NewStaticConverter() *StaticConverter {
	return &StaticConverter{rates: make(map[currencyPair]decimal.Decimal)}
}

// SetRate registers 1 unit of from = rate units of to. Both currencies are
// assumed to share the same minor-unit exponent.
func (c *StaticConverter) SetRate(from, to Currency, rate decimal.Decimal) *StaticConverter {
	c.rates[currencyPair{From: from, To: to}] = rate
	return c
}

// Convert implements CurrencyConverter.
func (c *StaticConverter) Convert(amount Money, from, to Currency) (Money, error) {
	if from == to || from == "" || to == "" {
		return amount, nil
	}
	if rate, ok := c.rates[currencyPair{From: from, To: to}]; ok {
		return amount.MulRate(rate), nil
	}
	if rate, ok := c.rates[currencyPair{From: to, To: from}]; ok && !rate.IsZero() {
		return MoneyFromDecimal(amount.Decimal().Div(rate)), nil
	}
	return 0, fmt.Errorf("%s -> %s: %w", from, to, ErrUnknownCurrencyPair)
}

var _ CurrencyConverter = (*StaticConverter)(nil)
