package factory

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRESETS - Common promo and rate plan shapes as JSON
// =============================================================================

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func major(amount int64) *decimal.Decimal {
	v := decimal.NewFromInt(amount)
	return &v
}

// PercentageOffJSON is a percentage promo. maxAmount <= 0 means uncapped.
func PercentageOffJSON(code, name string, percent, maxAmount int64) string {
	pj := PromoJSON{
		Code:  code,
		Name:  name,
		Type:  "percentage",
		Value: decimal.NewFromInt(percent),
	}
	if maxAmount > 0 {
		pj.MaxAmount = major(maxAmount)
	}
	return mustJSON(pj)
}

// FlatDiscountJSON is a fixed-amount promo with a minimum booking value.
func FlatDiscountJSON(code, name string, amount, minBookingValue int64) string {
	pj := PromoJSON{
		Code:  code,
		Name:  name,
		Type:  "fixed_amount",
		Value: decimal.NewFromInt(amount),
	}
	if minBookingValue > 0 {
		pj.Conditions = &PromoConditionJSON{MinBookingValue: major(minBookingValue)}
	}
	return mustJSON(pj)
}

// FirstStayJSON is a percentage promo for first-time guests, once per guest.
func FirstStayJSON(code string, percent int64) string {
	return mustJSON(PromoJSON{
		Code:  code,
		Name:  "First stay " + strconv.FormatInt(percent, 10) + "% off",
		Type:  "percentage",
		Value: decimal.NewFromInt(percent),
		Conditions: &PromoConditionJSON{
			FirstTimeGuestsOnly: true,
			MaxUsagePerGuest:    1,
		},
	})
}

// LongStayJSON is a percentage promo for stays of at least minNights.
func LongStayJSON(code string, percent int64, minNights int, roomTypes ...string) string {
	return mustJSON(PromoJSON{
		Code:  code,
		Name:  "Stay " + strconv.Itoa(minNights) + "+ nights",
		Type:  "percentage",
		Value: decimal.NewFromInt(percent),
		Conditions: &PromoConditionJSON{
			MinNights: minNights,
			RoomTypes: roomTypes,
		},
	})
}

// BARPlanJSON is a best-available-rate plan pricing each room key in currency.
func BARPlanJSON(id, currency string, rates map[string]int64) string {
	rj := RatePlanJSON{ID: id, Name: "Best Available Rate", MealPlan: "EP", CancellationPolicy: "free cancellation until 48h before arrival"}
	for room, rate := range rates {
		rj.Rates = append(rj.Rates, RoomRateJSON{Room: room, Rate: decimal.NewFromInt(rate), Currency: currency})
	}
	return mustJSON(rj)
}

// NonRefundablePlanJSON is a cheaper plan that requires minNights and
// refunds nothing.
func NonRefundablePlanJSON(id, currency string, minNights int, rates map[string]int64) string {
	rj := RatePlanJSON{ID: id, Name: "Non-refundable", MealPlan: "EP", CancellationPolicy: "non-refundable", MinNights: minNights}
	for room, rate := range rates {
		rj.Rates = append(rj.Rates, RoomRateJSON{Room: room, Rate: decimal.NewFromInt(rate), Currency: currency})
	}
	return mustJSON(rj)
}
