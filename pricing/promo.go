/*
promo.go - Promo code validation and discount computation

PURPOSE:
  Decides whether a promo code applies to a booking and how much it takes
  off. A promo is applied whole or not at all.

VALIDATION ORDER (first failure wins, each with its own reason):
  1. inactive
  2. not_started / expired        (today outside validity, inclusive)
  3. usage_exhausted              (limit 0 = unlimited)
  4. below_min_booking_value
  5. stay_too_short / stay_too_long
  6. room_type_not_eligible
  7. first_time_guests_only
  8. guest_usage_exceeded

DISCOUNT:
  percentage:   subtotal * value / 100, capped at maxAmount when set
  fixed_amount: value, capped at subtotal
  A discount never exceeds the subtotal, so totals never go negative.

SEE ALSO:
  - charges.go: Consumes PromoResult.DiscountAmount
*/
package pricing

import (
	"slices"
	"time"
)

type PromoRejectReason string

const (
	PromoInactive            PromoRejectReason = "inactive"
	PromoNotStarted          PromoRejectReason = "not_started"
	PromoExpired             PromoRejectReason = "expired"
	PromoUsageExhausted      PromoRejectReason = "usage_exhausted"
	PromoBelowMinValue       PromoRejectReason = "below_min_booking_value"
	PromoStayTooShort        PromoRejectReason = "stay_too_short"
	PromoStayTooLong         PromoRejectReason = "stay_too_long"
	PromoRoomTypeNotEligible PromoRejectReason = "room_type_not_eligible"
	PromoFirstTimeOnly       PromoRejectReason = "first_time_guests_only"
	PromoGuestUsageExceeded  PromoRejectReason = "guest_usage_exceeded"
	PromoUnsupportedType     PromoRejectReason = "unsupported_type"
)

// PromoContext is the booking a promo is evaluated against.
type PromoContext struct {
	Now              time.Time `json:"-"`
	Subtotal         Money     `json:"subtotal"`
	Nights           int       `json:"nights"`
	RoomType         string    `json:"roomType"`
	IsFirstTimeGuest bool      `json:"isFirstTimeGuest"`
	GuestUsageCount  int       `json:"guestUsageCount"`
}

// PromoResult is the outcome of one evaluation.
type PromoResult struct {
	Code           string            `json:"code"`
	Type           DiscountType      `json:"type"`
	Applicable     bool              `json:"applicable"`
	DiscountAmount Money             `json:"discountAmount"`
	Reason         PromoRejectReason `json:"reason,omitempty"`
}

// Err converts a rejection into InvalidPromoError or
// UnsupportedPromoTypeError. It is nil for applicable results.
func (r PromoResult) Err() error {
	switch {
	case r.Applicable:
		return nil
	case r.Reason == PromoUnsupportedType:
		return &UnsupportedPromoTypeError{Code: r.Code, Type: r.Type}
	default:
		return &InvalidPromoError{Code: r.Code, Reason: r.Reason}
	}
}

// PromoEvaluator validates promo codes against a booking context.
type PromoEvaluator struct{}

func NewPromoEvaluator() *PromoEvaluator { return &PromoEvaluator{} }

// Evaluate runs the validation chain and, if every check passes, computes
// the discount.
func (e *PromoEvaluator) Evaluate(promo PromoCode, pc PromoContext) PromoResult {
	result := PromoResult{Code: promo.Code, Type: promo.Type}

	if reason := rejectReason(promo, pc); reason != "" {
		result.Reason = reason
		return result
	}

	discount, ok := discountFor(promo, pc.Subtotal)
	if !ok {
		result.Reason = PromoUnsupportedType
		return result
	}

	result.Applicable = true
	result.DiscountAmount = discount
	return result
}

func rejectReason(promo PromoCode, pc PromoContext) PromoRejectReason {
	cond := promo.Conditions

	if !promo.IsActive {
		return PromoInactive
	}

	now := pc.Now
	if now.IsZero() {
		now = time.Now()
	}
	today := DateOf(now.UTC())
	if !promo.Validity.Start.IsZero() && today.Before(promo.Validity.Start) {
		return PromoNotStarted
	}
	if !promo.Validity.End.IsZero() && today.After(promo.Validity.End) {
		return PromoExpired
	}

	if promo.Usage.TotalUsageLimit > 0 && promo.Usage.CurrentUsage >= promo.Usage.TotalUsageLimit {
		return PromoUsageExhausted
	}

	if pc.Subtotal < cond.MinBookingValue {
		return PromoBelowMinValue
	}

	minNights := cond.MinNights
	if minNights < 1 {
		minNights = 1
	}
	if pc.Nights < minNights {
		return PromoStayTooShort
	}
	if cond.MaxNights > 0 && pc.Nights > cond.MaxNights {
		return PromoStayTooLong
	}

	if len(cond.ApplicableRoomTypes) > 0 && !slices.Contains(cond.ApplicableRoomTypes, pc.RoomType) {
		return PromoRoomTypeNotEligible
	}

	if cond.FirstTimeGuestsOnly && !pc.IsFirstTimeGuest {
		return PromoFirstTimeOnly
	}

	if cond.MaxUsagePerGuest > 0 && pc.GuestUsageCount >= cond.MaxUsagePerGuest {
		return PromoGuestUsageExceeded
	}

	return ""
}

func discountFor(promo PromoCode, subtotal Money) (Money, bool) {
	var discount Money

	switch promo.Type {
	case DiscountPercentage:
		discount = subtotal.Percent(promo.Value)
		if promo.MaxAmount != nil {
			discount = discount.Min(*promo.MaxAmount)
		}
	case DiscountFixedAmount:
		discount = MoneyFromDecimal(promo.Value)
	default:
		return 0, false
	}

	return discount.Min(subtotal).Max(0), true
}

// CheckCombinable enforces single-promo application. Replacing a promo is
// allowed; stacking two promos that both claim to be combinable is not,
// because no stacking order has been defined.
func CheckCombinable(current *PromoCode, next PromoCode) error {
	if current == nil || NormalizeCode(current.Code) == NormalizeCode(next.Code) {
		return nil
	}
	if current.Conditions.CombinableWithOtherOffers && next.Conditions.CombinableWithOtherOffers {
		return ErrPromoStackingUnsupported
	}
	return nil
}
