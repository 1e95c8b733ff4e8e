package pricing_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pentouz/rate-engine/pricing"
)

var taxRate = decimal.RequireFromString("0.18")

func money(m pricing.Money) *pricing.Money { return &m }

func twoNightInput() pricing.ChargeInput {
	return pricing.ChargeInput{
		ProductID: "deluxe",
		Currency:  "INR",
		NightlyRates: []pricing.NightlyRate{
			{Date: d(10), Rate: 3500},
			{Date: d(11), Rate: 3500},
		},
		Occupancy:      pricing.Occupancy{Adults: 2, Rooms: 1},
		MaxOccupancy:   2,
		ExtraAdultRate: 800,
		ExtraChildRate: 400,
		TaxRate:        taxRate,
	}
}

func percentPromo(value int64, maxAmount *pricing.Money) pricing.PromoCode {
	return pricing.PromoCode{
		Code:      "SAVE10",
		Type:      pricing.DiscountPercentage,
		Value:     decimal.NewFromInt(value),
		MaxAmount: maxAmount,
		IsActive:  true,
	}
}

func promoCtx(subtotal pricing.Money) pricing.PromoContext {
	return pricing.PromoContext{
		Now:      time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC),
		Subtotal: subtotal,
		Nights:   2,
		RoomType: "DLX",
	}
}

// =============================================================================
// CHARGE CALCULATOR
// =============================================================================

func TestCompute_TwoNightsNoPromo(t *testing.T) {
	// GIVEN: baseRate 3500, 2 nights, occupancy within max, tax 18%
	// WHEN: Computing the quote
	// THEN: base 7000, tax 1260, total 8260

	q := pricing.NewChargeCalculator().Compute(twoNightInput())

	assert.Equal(t, pricing.Money(7000), q.BaseAmount)
	assert.Zero(t, q.ExtraAdultCharges)
	assert.Zero(t, q.ExtraChildCharges)
	assert.Equal(t, pricing.Money(7000), q.Subtotal)
	assert.Zero(t, q.DiscountAmount)
	assert.Equal(t, pricing.Money(1260), q.TaxAmount)
	assert.Equal(t, pricing.Money(8260), q.TotalAmount)
	assert.Equal(t, 2, q.Nights)
	assert.Equal(t, 1, q.RoomsCount)
	assert.Empty(t, q.PromoApplied)
}

func TestCompute_ExtraGuestsAndRooms(t *testing.T) {
	in := twoNightInput()
	in.Occupancy = pricing.Occupancy{Adults: 3, Children: 3, Rooms: 2}

	q := pricing.NewChargeCalculator().Compute(in)

	// 1 extra adult * 800 * 2 nights * 2 rooms
	assert.Equal(t, pricing.Money(3200), q.ExtraAdultCharges)
	// 1 extra child * 400 * 2 nights * 2 rooms
	assert.Equal(t, pricing.Money(1600), q.ExtraChildCharges)
	assert.Equal(t, pricing.Money(14000), q.BaseAmount)
	assert.Equal(t, pricing.Money(18800), q.Subtotal)
	assert.Equal(t, pricing.Money(3384), q.TaxAmount)
	assert.Equal(t, pricing.Money(22184), q.TotalAmount)
}

func TestCompute_DiscountBeforeTax(t *testing.T) {
	in := twoNightInput()
	in.Promo = &pricing.PromoResult{Code: "SAVE10", Applicable: true, DiscountAmount: 700}

	q := pricing.NewChargeCalculator().Compute(in)

	assert.Equal(t, pricing.Money(700), q.DiscountAmount)
	assert.Equal(t, pricing.Money(1134), q.TaxAmount)
	assert.Equal(t, pricing.Money(7434), q.TotalAmount)
	assert.Equal(t, "SAVE10", q.PromoApplied)
}

func TestCompute_NeverNegative(t *testing.T) {
	in := twoNightInput()
	in.Promo = &pricing.PromoResult{Code: "HUGE", Applicable: true, DiscountAmount: 50000}

	q := pricing.NewChargeCalculator().Compute(in)

	assert.Equal(t, q.Subtotal, q.DiscountAmount)
	assert.Zero(t, q.TaxAmount)
	assert.Zero(t, q.TotalAmount)
}

func TestCompute_Deterministic(t *testing.T) {
	calc := pricing.NewChargeCalculator()
	in := twoNightInput()
	in.Promo = &pricing.PromoResult{Code: "SAVE10", Applicable: true, DiscountAmount: 700}

	first, err := json.Marshal(calc.Compute(in))
	require.NoError(t, err)
	second, err := json.Marshal(calc.Compute(in))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, string(first), `"taxRate":"0.18"`)
	assert.Contains(t, string(first), `"date":"2025-03-10"`)
}

// =============================================================================
// PROMO EVALUATION
// =============================================================================

func TestEvaluate_PercentageUncapped(t *testing.T) {
	res := pricing.NewPromoEvaluator().Evaluate(percentPromo(10, nil), promoCtx(7000))

	require.True(t, res.Applicable)
	assert.Equal(t, pricing.Money(700), res.DiscountAmount)
	assert.NoError(t, res.Err())
}

func TestEvaluate_PercentageCappedAtMaxAmount(t *testing.T) {
	res := pricing.NewPromoEvaluator().Evaluate(percentPromo(10, money(500)), promoCtx(7000))

	require.True(t, res.Applicable)
	assert.Equal(t, pricing.Money(500), res.DiscountAmount)
}

func TestEvaluate_FixedAmountClampedToSubtotal(t *testing.T) {
	promo := pricing.PromoCode{Code: "FLAT", Type: pricing.DiscountFixedAmount, Value: decimal.NewFromInt(9000), IsActive: true}

	res := pricing.NewPromoEvaluator().Evaluate(promo, promoCtx(7000))

	require.True(t, res.Applicable)
	assert.Equal(t, pricing.Money(7000), res.DiscountAmount)
}

func TestEvaluate_UnsupportedType(t *testing.T) {
	promo := percentPromo(10, nil)
	promo.Type = "buy_one_get_one"

	res := pricing.NewPromoEvaluator().Evaluate(promo, promoCtx(7000))

	assert.False(t, res.Applicable)
	assert.Equal(t, pricing.PromoUnsupportedType, res.Reason)
	var typeErr *pricing.UnsupportedPromoTypeError
	assert.ErrorAs(t, res.Err(), &typeErr)
}

func TestEvaluate_ReasonPerCondition(t *testing.T) {
	now := promoCtx(7000).Now

	cases := []struct {
		name   string
		modify func(p *pricing.PromoCode, pc *pricing.PromoContext)
		reason pricing.PromoRejectReason
	}{
		{"inactive", func(p *pricing.PromoCode, _ *pricing.PromoContext) { p.IsActive = false }, pricing.PromoInactive},
		{"not started", func(p *pricing.PromoCode, _ *pricing.PromoContext) {
			p.Validity.Start = pricing.DateOf(now).AddDays(1)
		}, pricing.PromoNotStarted},
		{"expired", func(p *pricing.PromoCode, _ *pricing.PromoContext) {
			p.Validity.End = pricing.DateOf(now).AddDays(-1)
		}, pricing.PromoExpired},
		{"usage exhausted", func(p *pricing.PromoCode, _ *pricing.PromoContext) {
			p.Usage = pricing.PromoUsage{TotalUsageLimit: 100, CurrentUsage: 100}
		}, pricing.PromoUsageExhausted},
		{"below min booking value", func(p *pricing.PromoCode, _ *pricing.PromoContext) {
			p.Conditions.MinBookingValue = 7001
		}, pricing.PromoBelowMinValue},
		{"stay too short", func(p *pricing.PromoCode, _ *pricing.PromoContext) { p.Conditions.MinNights = 3 }, pricing.PromoStayTooShort},
		{"stay too long", func(p *pricing.PromoCode, _ *pricing.PromoContext) { p.Conditions.MaxNights = 1 }, pricing.PromoStayTooLong},
		{"room type", func(p *pricing.PromoCode, _ *pricing.PromoContext) {
			p.Conditions.ApplicableRoomTypes = []string{"STE"}
		}, pricing.PromoRoomTypeNotEligible},
		{"first time only", func(p *pricing.PromoCode, _ *pricing.PromoContext) {
			p.Conditions.FirstTimeGuestsOnly = true
		}, pricing.PromoFirstTimeOnly},
		{"guest usage", func(p *pricing.PromoCode, pc *pricing.PromoContext) {
			p.Conditions.MaxUsagePerGuest = 1
			pc.GuestUsageCount = 1
		}, pricing.PromoGuestUsageExceeded},
		{"inactive wins over expired", func(p *pricing.PromoCode, _ *pricing.PromoContext) {
			p.IsActive = false
			p.Validity.End = pricing.DateOf(now).AddDays(-10)
		}, pricing.PromoInactive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			promo := percentPromo(10, nil)
			pc := promoCtx(7000)
			tc.modify(&promo, &pc)

			res := pricing.NewPromoEvaluator().Evaluate(promo, pc)

			assert.False(t, res.Applicable)
			assert.Zero(t, res.DiscountAmount, "never partially applied")
			assert.Equal(t, tc.reason, res.Reason)

			var promoErr *pricing.InvalidPromoError
			require.ErrorAs(t, res.Err(), &promoErr)
			assert.Equal(t, tc.reason, promoErr.Reason)
			assert.True(t, pricing.IsClientError(res.Err()))
		})
	}
}

func TestEvaluate_ValidityInclusiveOnLastDay(t *testing.T) {
	promo := percentPromo(10, nil)
	pc := promoCtx(7000)
	promo.Validity = pricing.Window{Start: pricing.DateOf(pc.Now), End: pricing.DateOf(pc.Now)}

	res := pricing.NewPromoEvaluator().Evaluate(promo, pc)
	assert.True(t, res.Applicable)
}

func TestCheckCombinable(t *testing.T) {
	a := percentPromo(10, nil)
	b := percentPromo(5, nil)
	b.Code = "OTHER"

	assert.NoError(t, pricing.CheckCombinable(nil, a))
	assert.NoError(t, pricing.CheckCombinable(&a, b), "non-combinable promo replaces the current one")

	a.Conditions.CombinableWithOtherOffers = true
	b.Conditions.CombinableWithOtherOffers = true
	assert.ErrorIs(t, pricing.CheckCombinable(&a, b), pricing.ErrPromoStackingUnsupported)
	assert.NoError(t, pricing.CheckCombinable(&a, a), "re-applying the same code is fine")
}
