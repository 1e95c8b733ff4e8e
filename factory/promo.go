/*
Package factory converts authored JSON into pricing reference data.

PURPOSE:
  Revenue managers author promo codes and rate plans as JSON with amounts in
  major currency units ("500.00"). The factory validates that JSON, applies
  defaults, and builds the engine's types, which hold minor units. The
  inverse conversion is provided so stored data can be edited and
  re-submitted.

PROMO JSON SCHEMA:
  {
    "code": "summer10",
    "name": "Summer 10%",
    "type": "percentage",            // or "fixed_amount"
    "value": "10",                   // percent, or major units for fixed_amount
    "max_amount": "500.00",          // optional cap, major units
    "active": true,                  // default true
    "valid_from": "2025-04-01",      // optional
    "valid_to": "2025-06-30",        // optional
    "usage_limit": 1000,             // 0 = unlimited
    "conditions": {
      "min_booking_value": "3000.00",
      "min_nights": 2,
      "max_nights": 0,
      "room_types": ["DLX", "STE"],
      "first_time_guests_only": false,
      "max_usage_per_guest": 1,
      "combinable": false
    }
  }

USAGE:
  f := factory.NewPromoFactory(2)
  promo, err := f.ParsePromo(factory.PercentageOffJSON("SAVE10", "Save 10%", 10, 500))
  registry.SavePromo(ctx, promo)

SEE ALSO:
  - rateplan.go: Rate plan JSON
  - presets.go: Ready-made promo and rate plan JSON
  - pricing/types.go: PromoCode definition
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pentouz/rate-engine/pricing"
)

// ErrInvalidDefinition is wrapped by every validation failure.
var ErrInvalidDefinition = errors.New("invalid definition")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDefinition, fmt.Sprintf(format, args...))
}

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PromoJSON is the authored representation of a promo code.
type PromoJSON struct {
	Code       string              `json:"code"`
	Name       string              `json:"name,omitempty"`
	Type       string              `json:"type"`
	Value      decimal.Decimal     `json:"value"`
	MaxAmount  *decimal.Decimal    `json:"max_amount,omitempty"`
	Active     *bool               `json:"active,omitempty"`
	ValidFrom  string              `json:"valid_from,omitempty"`
	ValidTo    string              `json:"valid_to,omitempty"`
	UsageLimit int                 `json:"usage_limit,omitempty"`
	UsageCount int                 `json:"usage_count,omitempty"`
	Conditions *PromoConditionJSON `json:"conditions,omitempty"`
}

// PromoConditionJSON holds the promo's eligibility rules.
type PromoConditionJSON struct {
	MinBookingValue     *decimal.Decimal `json:"min_booking_value,omitempty"`
	MinNights           int              `json:"min_nights,omitempty"`
	MaxNights           int              `json:"max_nights,omitempty"`
	RoomTypes           []string         `json:"room_types,omitempty"`
	FirstTimeGuestsOnly bool             `json:"first_time_guests_only,omitempty"`
	MaxUsagePerGuest    int              `json:"max_usage_per_guest,omitempty"`
	Combinable          bool             `json:"combinable,omitempty"`
}

// =============================================================================
// PROMO FACTORY
// =============================================================================

// PromoFactory converts promo JSON to pricing.PromoCode.
type PromoFactory struct {
	units minorUnits
}

// NewPromoFactory creates a factory for a currency with the given number of
// minor-unit digits (2 for INR, USD, EUR).
func NewPromoFactory(exponent int32) *PromoFactory {
	return &PromoFactory{units: newMinorUnits(exponent)}
}

// ParsePromo parses a JSON string into a PromoCode.
func (f *PromoFactory) ParsePromo(jsonStr string) (pricing.PromoCode, error) {
	var pj PromoJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return pricing.PromoCode{}, fmt.Errorf("failed to parse promo JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON validates pj and converts it.
func (f *PromoFactory) FromJSON(pj PromoJSON) (pricing.PromoCode, error) {
	code := pricing.NormalizeCode(pj.Code)
	if code == "" {
		return pricing.PromoCode{}, invalid("promo code is required")
	}

	promo := pricing.PromoCode{
		Code:     code,
		Name:     pj.Name,
		Type:     pricing.DiscountType(pj.Type),
		IsActive: pj.Active == nil || *pj.Active,
		Usage: pricing.PromoUsage{
			TotalUsageLimit: pj.UsageLimit,
			CurrentUsage:    pj.UsageCount,
		},
	}
	if promo.Name == "" {
		promo.Name = code
	}

	switch promo.Type {
	case pricing.DiscountPercentage:
		if !pj.Value.IsPositive() || pj.Value.GreaterThan(decimal.NewFromInt(100)) {
			return pricing.PromoCode{}, invalid("promo %s: percentage must be in (0, 100], got %s", code, pj.Value)
		}
		promo.Value = pj.Value
	case pricing.DiscountFixedAmount:
		if !pj.Value.IsPositive() {
			return pricing.PromoCode{}, invalid("promo %s: fixed amount must be positive, got %s", code, pj.Value)
		}
		promo.Value = f.units.toMoney(pj.Value).Decimal()
	default:
		return pricing.PromoCode{}, &pricing.UnsupportedPromoTypeError{Code: code, Type: promo.Type}
	}

	if pj.MaxAmount != nil {
		if pj.MaxAmount.IsNegative() {
			return pricing.PromoCode{}, invalid("promo %s: max_amount cannot be negative", code)
		}
		capAmount := f.units.toMoney(*pj.MaxAmount)
		promo.MaxAmount = &capAmount
	}

	validity, err := parseWindow(pj.ValidFrom, pj.ValidTo)
	if err != nil {
		return pricing.PromoCode{}, fmt.Errorf("promo %s: %w", code, err)
	}
	promo.Validity = validity

	if pj.UsageLimit < 0 || pj.UsageCount < 0 {
		return pricing.PromoCode{}, invalid("promo %s: usage counters cannot be negative", code)
	}

	if c := pj.Conditions; c != nil {
		if c.MinNights < 0 || c.MaxNights < 0 || (c.MaxNights > 0 && c.MinNights > c.MaxNights) {
			return pricing.PromoCode{}, invalid("promo %s: night limits %d..%d are inconsistent", code, c.MinNights, c.MaxNights)
		}
		promo.Conditions = pricing.PromoConditions{
			MinNights:                 c.MinNights,
			MaxNights:                 c.MaxNights,
			ApplicableRoomTypes:       c.RoomTypes,
			FirstTimeGuestsOnly:       c.FirstTimeGuestsOnly,
			MaxUsagePerGuest:          c.MaxUsagePerGuest,
			CombinableWithOtherOffers: c.Combinable,
		}
		if c.MinBookingValue != nil {
			promo.Conditions.MinBookingValue = f.units.toMoney(*c.MinBookingValue)
		}
	}

	return promo, nil
}

// ToJSON converts a PromoCode back to its authored form.
func (f *PromoFactory) ToJSON(promo pricing.PromoCode) PromoJSON {
	active := promo.IsActive
	pj := PromoJSON{
		Code:       promo.Code,
		Name:       promo.Name,
		Type:       string(promo.Type),
		Value:      promo.Value,
		Active:     &active,
		UsageLimit: promo.Usage.TotalUsageLimit,
		UsageCount: promo.Usage.CurrentUsage,
	}
	if promo.Type == pricing.DiscountFixedAmount {
		pj.Value = f.units.fromMoney(pricing.MoneyFromDecimal(promo.Value))
	}
	if promo.MaxAmount != nil {
		v := f.units.fromMoney(*promo.MaxAmount)
		pj.MaxAmount = &v
	}
	if !promo.Validity.Start.IsZero() {
		pj.ValidFrom = promo.Validity.Start.String()
	}
	if !promo.Validity.End.IsZero() {
		pj.ValidTo = promo.Validity.End.String()
	}

	c := promo.Conditions
	pj.Conditions = &PromoConditionJSON{
		MinNights:           c.MinNights,
		MaxNights:           c.MaxNights,
		RoomTypes:           c.ApplicableRoomTypes,
		FirstTimeGuestsOnly: c.FirstTimeGuestsOnly,
		MaxUsagePerGuest:    c.MaxUsagePerGuest,
		Combinable:          c.CombinableWithOtherOffers,
	}
	if c.MinBookingValue > 0 {
		v := f.units.fromMoney(c.MinBookingValue)
		pj.Conditions.MinBookingValue = &v
	}
	return pj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

// minorUnits converts between authored major-unit amounts and Money.
type minorUnits struct {
	factor decimal.Decimal
}

func newMinorUnits(exponent int32) minorUnits {
	return minorUnits{factor: decimal.New(1, exponent)}
}

func (u minorUnits) toMoney(major decimal.Decimal) pricing.Money {
	return pricing.MoneyFromDecimal(major.Mul(u.factor))
}

func (u minorUnits) fromMoney(m pricing.Money) decimal.Decimal {
	return m.Decimal().Div(u.factor)
}

func parseWindow(from, to string) (pricing.Window, error) {
	var w pricing.Window
	if from != "" {
		d, err := pricing.ParseDate(from)
		if err != nil {
			return w, invalid("valid_from: %v", err)
		}
		w.Start = d
	}
	if to != "" {
		d, err := pricing.ParseDate(to)
		if err != nil {
			return w, invalid("valid_to: %v", err)
		}
		w.End = d
	}
	if !w.Start.IsZero() && !w.End.IsZero() && w.End.Before(w.Start) {
		return w, invalid("valid_to %s is before valid_from %s", w.End, w.Start)
	}
	return w, nil
}
