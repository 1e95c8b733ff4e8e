package pricing

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// CHARGE CALCULATOR - Nightly rates + occupancy + promo + tax => quote
// =============================================================================

// ChargeInput holds everything a quote depends on. Two equal inputs always
// produce byte-identical quotes.
type ChargeInput struct {
	ProductID      ProductID
	Currency       Currency
	NightlyRates   []NightlyRate
	Occupancy      Occupancy
	MaxOccupancy   int
	ExtraAdultRate Money // per extra adult per night
	ExtraChildRate Money // per extra child per night
	Promo          *PromoResult
	TaxRate        decimal.Decimal
}

// ChargeCalculator turns a ChargeInput into a PricingQuote.
type ChargeCalculator struct{}

func NewChargeCalculator() *ChargeCalculator { return &ChargeCalculator{} }

// Compute builds the full quote:
//
//	baseAmount        = sum(nightly) * rooms
//	extraAdultCharges = max(0, adults-maxOccupancy) * adultRate * nights * rooms
//	extraChildCharges = max(0, children-maxOccupancy) * childRate * nights * rooms
//	after discount    = max(0, base + extras - discount)
//	taxAmount         = round(after discount * taxRate)
//	totalAmount       = after discount + taxAmount
func (c *ChargeCalculator) Compute(in ChargeInput) PricingQuote {
	rooms := in.Occupancy.RoomsCount()
	nights := len(in.NightlyRates)

	var nightlySum Money
	rates := make([]NightlyRate, nights)
	for i, nr := range in.NightlyRates {
		nightlySum = nightlySum.Add(nr.Rate)
		rates[i] = nr
	}

	q := PricingQuote{
		ProductID:    in.ProductID,
		Currency:     in.Currency,
		Nights:       nights,
		RoomsCount:   rooms,
		BaseAmount:   nightlySum.Times(rooms),
		NightlyRates: rates,
		TaxRate:      in.TaxRate,
	}

	extraAdults := max(0, in.Occupancy.Adults-in.MaxOccupancy)
	extraChildren := max(0, in.Occupancy.Children-in.MaxOccupancy)
	q.ExtraAdultCharges = in.ExtraAdultRate.Times(extraAdults * nights * rooms)
	q.ExtraChildCharges = in.ExtraChildRate.Times(extraChildren * nights * rooms)

	q.Subtotal = q.BaseAmount.Add(q.ExtraAdultCharges).Add(q.ExtraChildCharges)

	if in.Promo != nil && in.Promo.Applicable {
		q.DiscountAmount = in.Promo.DiscountAmount.Min(q.Subtotal)
		q.PromoApplied = in.Promo.Code
	}

	afterDiscount := q.Subtotal.Sub(q.DiscountAmount).Max(0)
	q.TaxAmount = afterDiscount.MulRate(in.TaxRate)
	q.TotalAmount = afterDiscount.Add(q.TaxAmount)

	return q
}

// SubtotalBeforeDiscount is what a promo is evaluated against: the quote's
// base plus extra-person charges.
func (c *ChargeCalculator) SubtotalBeforeDiscount(in ChargeInput) Money {
	in.Promo = nil
	return c.Compute(in).Subtotal
}
