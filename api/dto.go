/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Engine types that are
  already part of the public contract (AvailabilityResult, PricingQuote,
  PromoResult) are returned as-is; request bodies get their own types so
  they can be validated before anything reaches the engine.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Products, inventory and quotes carry integer minor units (350000 is
  3500.00). Promo and rate plan bodies are authored in major units and go
  through the factory package.

VALIDATION:
  Request types carry go-playground/validator tags; handlers call
  decodeAndValidate before touching the engine.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/promo.go, factory/rateplan.go: Authored promo and plan JSON
*/
package api

import (
	"strings"

	"github.com/pentouz/rate-engine/booking"
	"github.com/pentouz/rate-engine/pricing"
)

// =============================================================================
// CATALOG AND INVENTORY
// =============================================================================

// CreateProductRequest is the request to create or replace a room product.
type CreateProductRequest struct {
	ID           string   `json:"id" validate:"required"`
	Code         string   `json:"code" validate:"required"`
	Name         string   `json:"name" validate:"required"`
	MaxOccupancy int      `json:"maxOccupancy" validate:"min=1"`
	BaseRate     int64    `json:"baseRate" validate:"min=0"`
	Amenities    []string `json:"amenities,omitempty"`
	RateKey      string   `json:"rateKey,omitempty"`
}

func (r CreateProductRequest) toProduct() pricing.RoomProduct {
	return pricing.RoomProduct{
		ID:           pricing.ProductID(r.ID),
		Code:         r.Code,
		Name:         r.Name,
		MaxOccupancy: r.MaxOccupancy,
		BaseRate:     pricing.Money(r.BaseRate),
		Amenities:    r.Amenities,
		RateKey:      r.RateKey,
	}
}

// InventoryRecordDTO is one product-night in an inventory upsert.
type InventoryRecordDTO struct {
	ProductID         string `json:"productId" validate:"required"`
	Date              string `json:"date" validate:"required,datetime=2006-01-02"`
	TotalUnits        int    `json:"totalUnits" validate:"min=0"`
	SoldUnits         int    `json:"soldUnits" validate:"min=0"`
	BlockedUnits      int    `json:"blockedUnits" validate:"min=0"`
	SellingRate       int64  `json:"sellingRate" validate:"min=0"`
	ExtraAdultRate    int64  `json:"extraAdultRate" validate:"min=0"`
	ExtraChildRate    int64  `json:"extraChildRate" validate:"min=0"`
	StopSell          bool   `json:"stopSell"`
	ClosedToArrival   bool   `json:"closedToArrival"`
	ClosedToDeparture bool   `json:"closedToDeparture"`
	MinStay           int    `json:"minStay" validate:"min=0"`
	MaxStay           int    `json:"maxStay" validate:"min=0"`
}

func (d InventoryRecordDTO) toRecord() (pricing.InventoryRecord, error) {
	date, err := pricing.ParseDate(d.Date)
	if err != nil {
		return pricing.InventoryRecord{}, err
	}
	return pricing.InventoryRecord{
		ProductID:         pricing.ProductID(d.ProductID),
		Date:              date,
		TotalUnits:        d.TotalUnits,
		SoldUnits:         d.SoldUnits,
		BlockedUnits:      d.BlockedUnits,
		SellingRate:       pricing.Money(d.SellingRate),
		ExtraAdultRate:    pricing.Money(d.ExtraAdultRate),
		ExtraChildRate:    pricing.Money(d.ExtraChildRate),
		StopSell:          d.StopSell,
		ClosedToArrival:   d.ClosedToArrival,
		ClosedToDeparture: d.ClosedToDeparture,
		MinStay:           d.MinStay,
		MaxStay:           d.MaxStay,
	}, nil
}

// UpsertInventoryRequest is a batch of inventory records.
type UpsertInventoryRequest struct {
	Records []InventoryRecordDTO `json:"records" validate:"required,min=1,dive"`
}

// UpsertInventoryResponse reports how many records were written.
type UpsertInventoryResponse struct {
	Saved    int      `json:"saved"`
	Products []string `json:"products"`
}

// =============================================================================
// SEARCH AND QUOTE
// =============================================================================

// StayRequest is the stay and occupancy shared by availability and quotes.
type StayRequest struct {
	CheckIn  string `json:"checkIn" validate:"required,datetime=2006-01-02"`
	CheckOut string `json:"checkOut" validate:"required,datetime=2006-01-02"`
	Adults   int    `json:"adults" validate:"min=1"`
	Children int    `json:"children" validate:"min=0"`
	Rooms    int    `json:"rooms" validate:"min=0"`
	Currency string `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
}

func (r StayRequest) criteria() (booking.SearchCriteria, error) {
	checkIn, err := pricing.ParseDate(r.CheckIn)
	if err != nil {
		return booking.SearchCriteria{}, err
	}
	checkOut, err := pricing.ParseDate(r.CheckOut)
	if err != nil {
		return booking.SearchCriteria{}, err
	}
	return booking.SearchCriteria{
		Stay:      pricing.StayRange{CheckIn: checkIn, CheckOut: checkOut},
		Occupancy: pricing.Occupancy{Adults: r.Adults, Children: r.Children, Rooms: r.Rooms},
		Currency:  pricing.Currency(strings.ToUpper(r.Currency)),
	}, nil
}

// AvailabilityRequest asks which products can host a stay.
type AvailabilityRequest struct {
	StayRequest
}

// ProductAvailabilityDTO is one product's availability for the requested
// rooms. Reason is set whenever Available is false.
type ProductAvailabilityDTO struct {
	pricing.AvailabilityResult
	Available bool `json:"available"`
}

// AvailabilityResponse lists every catalog product, available or not.
type AvailabilityResponse struct {
	Stay      pricing.StayRange        `json:"stay"`
	Nights    int                      `json:"nights"`
	Rooms     int                      `json:"rooms"`
	Currency  pricing.Currency         `json:"currency"`
	Products  []ProductAvailabilityDTO `json:"products"`
	Available int                      `json:"availableCount"`
}

// QuoteRequestDTO prices one product, optionally with a promo code.
type QuoteRequestDTO struct {
	StayRequest
	ProductID        string `json:"productId" validate:"required"`
	PromoCode        string `json:"promoCode,omitempty"`
	GuestID          string `json:"guestId,omitempty"`
	IsFirstTimeGuest bool   `json:"isFirstTimeGuest"`
}

// QuoteResponse is the itemized price.
type QuoteResponse struct {
	Quote        pricing.PricingQuote       `json:"quote"`
	Availability pricing.AvailabilityResult `json:"availability"`
	Promo        *pricing.PromoResult       `json:"promo,omitempty"`
}

// =============================================================================
// PROMOS
// =============================================================================

// EvaluatePromoRequest is the booking context to test a promo against.
type EvaluatePromoRequest struct {
	Subtotal         int64  `json:"subtotal" validate:"min=0"`
	Nights           int    `json:"nights" validate:"min=1"`
	RoomType         string `json:"roomType"`
	IsFirstTimeGuest bool   `json:"isFirstTimeGuest"`
	GuestID          string `json:"guestId,omitempty"`
}

// RedemptionRequest records a confirmed booking's use of a promo.
type RedemptionRequest struct {
	GuestID string `json:"guestId" validate:"required"`
}

// RedemptionResponse echoes the new counters.
type RedemptionResponse struct {
	Code             string `json:"code"`
	GuestID          string `json:"guestId"`
	CurrentUsage     int    `json:"currentUsage"`
	GuestRedemptions int    `json:"guestRedemptions"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// LoadScenarioResponse summarizes what was loaded.
type LoadScenarioResponse struct {
	Scenario  ScenarioDTO `json:"scenario"`
	LoadID    string      `json:"loadId"`
	Products  int         `json:"products"`
	Nights    int         `json:"nights"`
	RatePlans int         `json:"ratePlans"`
	Promos    int         `json:"promos"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Reason  string            `json:"reason,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}
