/*
inventory.go - Reduces per-night inventory into one availability verdict

PURPOSE:
  A room product is sellable for a stay only if every night of the stay has
  capacity and no night vetoes the sale. The aggregator fetches one record
  per night in [checkIn, checkOut) and folds them into an
  AvailabilityResult.

REDUCTION RULES:
  availableUnits   = min over nights of (total - sold - blocked)
  stop-sell        = OR over nights, forces availableUnits to 0
  closure          = OR of closedToArrival/closedToDeparture, forces 0
  min/max stay     = strictest positive limit over nights, forces 0 if broken
  averageRate      = mean sellingRate (display fallback only)
  nightlyRates     = sellingRate per night, date ordered (authoritative)

DEGRADATION:
  A fetch failure never aborts the surrounding search. The product is
  marked unavailable with reason no_inventory, its rates fall back to the
  product's baseRate, and the wrapped ExternalFetchError is kept on the
  result for callers that must treat it as fatal (detailed pricing).

SEE ALSO:
  - booking/engine.go: Fans Aggregate out across all candidate products
*/
package pricing

import (
	"context"
	"errors"
)

// =============================================================================
// UNAVAILABLE REASONS - Each needs a different guest-facing remedy
// =============================================================================

type UnavailableReason string

const (
	ReasonNone        UnavailableReason = ""
	ReasonNoInventory UnavailableReason = "no_inventory" // no dates available
	ReasonStopSell    UnavailableReason = "stop_sell"
	ReasonClosed      UnavailableReason = "closed_to_arrival_departure"
	ReasonMinStay     UnavailableReason = "min_stay"
	ReasonMaxStay     UnavailableReason = "max_stay"
	ReasonSoldOut     UnavailableReason = "sold_out"

	// ReasonNotEnoughUnits: some units remain, fewer than the rooms requested.
	ReasonNotEnoughUnits UnavailableReason = "not_enough_units"
)

// AvailabilityResult is the aggregated availability of one product for a stay.
type AvailabilityResult struct {
	Product               RoomProduct       `json:"product"`
	Stay                  StayRange         `json:"stay"`
	Nights                int               `json:"nights"`
	AvailableUnits        int               `json:"availableUnits"`
	HasStopSell           bool              `json:"hasStopSell"`
	HasClosureRestriction bool              `json:"hasClosureRestriction"`
	MinStay               int               `json:"minStay,omitempty"`
	MaxStay               int               `json:"maxStay,omitempty"`
	AverageRate           Money             `json:"averageRate"`
	NightlyRates          []NightlyRate     `json:"nightlyRates"`
	ExtraAdultRate        Money             `json:"extraAdultRate"`
	ExtraChildRate        Money             `json:"extraChildRate"`
	Reason                UnavailableReason `json:"reason,omitempty"`

	fetchErr error
}

// Err returns the fetch error that degraded this result, if any.
func (r AvailabilityResult) Err() error { return r.fetchErr }

// CanHost reports whether the product has capacity for the given rooms.
func (r AvailabilityResult) CanHost(rooms int) bool {
	if rooms < 1 {
		rooms = 1
	}
	return r.AvailableUnits >= rooms
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// InventoryAggregator fetches and reduces per-night inventory.
type InventoryAggregator struct {
	Inventory InventoryProvider
}

func NewInventoryAggregator(inventory InventoryProvider) *InventoryAggregator {
	return &InventoryAggregator{Inventory: inventory}
}

// Aggregate computes the availability of product for stay.
// The only returned error is InvalidRangeError; fetch failures degrade the
// result instead (see AvailabilityResult.Err).
func (a *InventoryAggregator) Aggregate(ctx context.Context, product RoomProduct, stay StayRange) (AvailabilityResult, error) {
	if err := stay.Validate(); err != nil {
		return AvailabilityResult{}, err
	}

	records, err := a.Inventory.GetInventory(ctx, product.ID, stay.CheckIn, stay.CheckOut)
	if err != nil {
		return Unavailable(product, stay, &ExternalFetchError{Op: "get inventory", ProductID: product.ID, Err: err}), nil
	}
	if err := checkCoverage(stay, records); err != nil {
		return Unavailable(product, stay, &ExternalFetchError{Op: "get inventory", ProductID: product.ID, Err: err}), nil
	}

	return AggregateRecords(product, stay, records), nil
}

// checkCoverage verifies exactly one record per night, in date order.
func checkCoverage(stay StayRange, records []InventoryRecord) error {
	nights := stay.NightDates()
	if len(records) != len(nights) {
		return ErrInventoryMismatch
	}
	for i, d := range nights {
		if !records[i].Date.Equal(d) {
			return ErrInventoryMismatch
		}
	}
	return nil
}

// AggregateRecords is the pure reduction over already fetched records.
// records must hold one entry per night of stay, in date order.
func AggregateRecords(product RoomProduct, stay StayRange, records []InventoryRecord) AvailabilityResult {
	result := AvailabilityResult{
		Product:      product,
		Stay:         stay,
		Nights:       stay.Nights(),
		NightlyRates: make([]NightlyRate, 0, len(records)),
	}
	if len(records) == 0 {
		return Unavailable(product, stay, &ExternalFetchError{Op: "get inventory", ProductID: product.ID, Err: ErrInventoryMismatch})
	}

	minUnits := records[0].AvailableUnits()
	selling := make([]Money, 0, len(records))
	adult := make([]Money, 0, len(records))
	child := make([]Money, 0, len(records))

	for _, rec := range records {
		if u := rec.AvailableUnits(); u < minUnits {
			minUnits = u
		}
		result.HasStopSell = result.HasStopSell || rec.StopSell
		result.HasClosureRestriction = result.HasClosureRestriction || rec.ClosedToArrival || rec.ClosedToDeparture

		if rec.MinStay > result.MinStay {
			result.MinStay = rec.MinStay
		}
		if rec.MaxStay > 0 && (result.MaxStay == 0 || rec.MaxStay < result.MaxStay) {
			result.MaxStay = rec.MaxStay
		}

		selling = append(selling, rec.SellingRate)
		adult = append(adult, rec.ExtraAdultRate)
		child = append(child, rec.ExtraChildRate)
		result.NightlyRates = append(result.NightlyRates, NightlyRate{Date: rec.Date, Rate: rec.SellingRate})
	}

	result.AverageRate = MeanMoney(selling)
	result.ExtraAdultRate = MeanMoney(adult)
	result.ExtraChildRate = MeanMoney(child)
	result.AvailableUnits = minUnits

	switch {
	case result.HasStopSell:
		result.Reason = ReasonStopSell
	case result.HasClosureRestriction:
		result.Reason = ReasonClosed
	case result.MinStay > 0 && result.Nights < result.MinStay:
		result.Reason = ReasonMinStay
	case result.MaxStay > 0 && result.Nights > result.MaxStay:
		result.Reason = ReasonMaxStay
	case minUnits == 0:
		result.Reason = ReasonSoldOut
	}
	if result.Reason != ReasonNone {
		result.AvailableUnits = 0
	}

	return result
}

// Unavailable builds the degraded result used when inventory could not be
// fetched: zero units and the product's base rate on every night.
func Unavailable(product RoomProduct, stay StayRange, cause error) AvailabilityResult {
	result := AvailabilityResult{
		Product:     product,
		Stay:        stay,
		Nights:      stay.Nights(),
		AverageRate: product.BaseRate,
		Reason:      ReasonNoInventory,
		fetchErr:    cause,
	}
	for _, d := range stay.NightDates() {
		result.NightlyRates = append(result.NightlyRates, NightlyRate{Date: d, Rate: product.BaseRate})
	}
	return result
}

// IsFetchFailure reports whether err came from a collaborator.
func IsFetchFailure(err error) bool {
	return errors.Is(err, ErrExternalFetch)
}
