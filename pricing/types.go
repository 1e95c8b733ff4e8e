package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REFERENCE DATA - Read-only to the engine
// =============================================================================

// ProductID identifies a sellable room product.
type ProductID string

// RoomProduct is a sellable room category, e.g. "Deluxe Room".
// Amenities are opaque tags; the engine never interprets them.
type RoomProduct struct {
	ID           ProductID `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	MaxOccupancy int       `json:"maxOccupancy"`
	BaseRate     Money     `json:"baseRate"`
	Amenities    []string  `json:"amenities,omitempty"`

	// RateKey is the occupancy/bed key rate plans price this product under.
	// Empty means Code.
	RateKey string `json:"rateKey,omitempty"`
}

// PlanKey returns the key used to look up this product in RatePlan.BaseRates.
func (p RoomProduct) PlanKey() string {
	if p.RateKey != "" {
		return p.RateKey
	}
	return p.Code
}

// InventoryRecord is the per-night inventory of one product.
type InventoryRecord struct {
	ProductID         ProductID `json:"productId"`
	Date              Date      `json:"date"`
	TotalUnits        int       `json:"totalUnits"`
	SoldUnits         int       `json:"soldUnits"`
	BlockedUnits      int       `json:"blockedUnits"`
	SellingRate       Money     `json:"sellingRate"`
	ExtraAdultRate    Money     `json:"extraAdultRate"`
	ExtraChildRate    Money     `json:"extraChildRate"`
	StopSell          bool      `json:"stopSell"`
	ClosedToArrival   bool      `json:"closedToArrival"`
	ClosedToDeparture bool      `json:"closedToDeparture"`
	MinStay           int       `json:"minStay"`
	MaxStay           int       `json:"maxStay"`
}

// AvailableUnits is total - sold - blocked, never below zero.
func (r InventoryRecord) AvailableUnits() int {
	n := r.TotalUnits - r.SoldUnits - r.BlockedUnits
	if n < 0 {
		return 0
	}
	return n
}

// PlanRate is one entry of RatePlan.BaseRates.
type PlanRate struct {
	Rate     Money    `json:"rate"`
	Currency Currency `json:"currency"`

	// Optional pre-converted rate supplied with the plan.
	ConvertedRate     *Money   `json:"convertedRate,omitempty"`
	ConvertedCurrency Currency `json:"convertedCurrency,omitempty"`
}

// RatePlan is a priced policy that can override a product's nightly rate.
type RatePlan struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	BaseRates          map[string]PlanRate `json:"baseRates"`
	MealPlan           string              `json:"mealPlan,omitempty"`
	CancellationPolicy string              `json:"cancellationPolicy,omitempty"`
	MinNights          int                 `json:"minNights,omitempty"`
	MaxNights          int                 `json:"maxNights,omitempty"`
	Validity           Window              `json:"validity"`
}

// =============================================================================
// PROMO CODE
// =============================================================================

type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// PromoConditions are the booking-context checks a promo must pass.
// Zero values mean "no restriction" (MinNights defaults to 1).
type PromoConditions struct {
	MinBookingValue           Money    `json:"minBookingValue"`
	MinNights                 int      `json:"minNights"`
	MaxNights                 int      `json:"maxNights"`
	ApplicableRoomTypes       []string `json:"applicableRoomTypes,omitempty"`
	FirstTimeGuestsOnly       bool     `json:"firstTimeGuestsOnly"`
	MaxUsagePerGuest          int      `json:"maxUsagePerGuest"`
	CombinableWithOtherOffers bool     `json:"combinableWithOtherOffers"`
}

// PromoUsage tracks redemptions. Only the external registry mutates it.
type PromoUsage struct {
	TotalUsageLimit int `json:"totalUsageLimit"` // 0 = unlimited
	CurrentUsage    int `json:"currentUsage"`
}

// PromoCode is a promotional discount definition.
//
// Value is a percent for DiscountPercentage and minor units for
// DiscountFixedAmount.
type PromoCode struct {
	Code       string          `json:"code"`
	Name       string          `json:"name,omitempty"`
	Type       DiscountType    `json:"type"`
	Value      decimal.Decimal `json:"value"`
	MaxAmount  *Money          `json:"maxAmount,omitempty"`
	IsActive   bool            `json:"isActive"`
	Conditions PromoConditions `json:"conditions"`
	Validity   Window          `json:"validity"`
	Usage      PromoUsage      `json:"usage"`
}

// NormalizeCode is the canonical registry key for a promo code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// =============================================================================
// OCCUPANCY AND QUOTE
// =============================================================================

// Occupancy is the per-room guest count and the number of rooms requested.
type Occupancy struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
	Rooms    int `json:"rooms"`
}

// RoomsCount returns Rooms, treating zero as a single room.
func (o Occupancy) RoomsCount() int {
	if o.Rooms < 1 {
		return 1
	}
	return o.Rooms
}

// NightlyRate is the authoritative rate for one night of the stay.
type NightlyRate struct {
	Date       Date   `json:"date"`
	Rate       Money  `json:"rate"`
	RatePlanID string `json:"ratePlanId,omitempty"`
}

// PricingQuote is the itemized price of one stay. It is derived data:
// recomputed in full on every input change, never patched.
type PricingQuote struct {
	ProductID         ProductID       `json:"productId,omitempty"`
	Currency          Currency        `json:"currency"`
	Nights            int             `json:"nights"`
	RoomsCount        int             `json:"roomsCount"`
	BaseAmount        Money           `json:"baseAmount"`
	ExtraAdultCharges Money           `json:"extraAdultCharges"`
	ExtraChildCharges Money           `json:"extraChildCharges"`
	Subtotal          Money           `json:"subtotal"`
	DiscountAmount    Money           `json:"discountAmount"`
	TaxRate           decimal.Decimal `json:"taxRate"`
	TaxAmount         Money           `json:"taxAmount"`
	TotalAmount       Money           `json:"totalAmount"`
	NightlyRates      []NightlyRate   `json:"nightlyRates"`
	PromoApplied      string          `json:"promoApplied,omitempty"`
}
