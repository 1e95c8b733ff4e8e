package factory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pentouz/rate-engine/pricing"
)

// =============================================================================
// RATE PLAN JSON
// =============================================================================
//
//	{
//	  "id": "bar",
//	  "name": "Best Available Rate",
//	  "meal_plan": "EP",
//	  "cancellation_policy": "free until 48h before arrival",
//	  "min_nights": 1,
//	  "valid_from": "2025-01-01",
//	  "rates": [
//	    {"room": "DLX", "rate": "3500.00", "currency": "INR"},
//	    {"room": "STE", "rate": "110.00", "currency": "USD",
//	     "converted_rate": "9130.00", "converted_currency": "INR"}
//	  ]
//	}

// RatePlanJSON is the authored representation of a rate plan.
type RatePlanJSON struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	MealPlan           string         `json:"meal_plan,omitempty"`
	CancellationPolicy string         `json:"cancellation_policy,omitempty"`
	MinNights          int            `json:"min_nights,omitempty"`
	MaxNights          int            `json:"max_nights,omitempty"`
	ValidFrom          string         `json:"valid_from,omitempty"`
	ValidTo            string         `json:"valid_to,omitempty"`
	Rates              []RoomRateJSON `json:"rates"`
}

// RoomRateJSON is one rate-key entry of a plan.
type RoomRateJSON struct {
	Room              string           `json:"room"`
	Rate              decimal.Decimal  `json:"rate"`
	Currency          string           `json:"currency"`
	ConvertedRate     *decimal.Decimal `json:"converted_rate,omitempty"`
	ConvertedCurrency string           `json:"converted_currency,omitempty"`
}

// RatePlanFactory converts rate plan JSON to pricing.RatePlan.
type RatePlanFactory struct {
	units minorUnits
}

func NewRatePlanFactory(exponent int32) *RatePlanFactory {
	return &RatePlanFactory{units: newMinorUnits(exponent)}
}

// ParseRatePlan parses a JSON string into a RatePlan.
func (f *RatePlanFactory) ParseRatePlan(jsonStr string) (pricing.RatePlan, error) {
	var rj RatePlanJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return pricing.RatePlan{}, fmt.Errorf("failed to parse rate plan JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// FromJSON validates rj and converts it.
func (f *RatePlanFactory) FromJSON(rj RatePlanJSON) (pricing.RatePlan, error) {
	id := strings.TrimSpace(rj.ID)
	if id == "" {
		return pricing.RatePlan{}, invalid("rate plan id is required")
	}
	if len(rj.Rates) == 0 {
		return pricing.RatePlan{}, invalid("rate plan %s: at least one room rate is required", id)
	}
	if rj.MinNights < 0 || rj.MaxNights < 0 || (rj.MaxNights > 0 && rj.MinNights > rj.MaxNights) {
		return pricing.RatePlan{}, invalid("rate plan %s: night limits %d..%d are inconsistent", id, rj.MinNights, rj.MaxNights)
	}

	validity, err := parseWindow(rj.ValidFrom, rj.ValidTo)
	if err != nil {
		return pricing.RatePlan{}, fmt.Errorf("rate plan %s: %w", id, err)
	}

	plan := pricing.RatePlan{
		ID:                 id,
		Name:               rj.Name,
		BaseRates:          make(map[string]pricing.PlanRate, len(rj.Rates)),
		MealPlan:           rj.MealPlan,
		CancellationPolicy: rj.CancellationPolicy,
		MinNights:          rj.MinNights,
		MaxNights:          rj.MaxNights,
		Validity:           validity,
	}
	if plan.Name == "" {
		plan.Name = id
	}

	for _, r := range rj.Rates {
		room := strings.TrimSpace(r.Room)
		if room == "" {
			return pricing.RatePlan{}, invalid("rate plan %s: room rate without room key", id)
		}
		if _, dup := plan.BaseRates[room]; dup {
			return pricing.RatePlan{}, invalid("rate plan %s: duplicate rate for room %s", id, room)
		}
		if r.Rate.IsNegative() {
			return pricing.RatePlan{}, invalid("rate plan %s: negative rate for room %s", id, room)
		}

		entry := pricing.PlanRate{
			Rate:     f.units.toMoney(r.Rate),
			Currency: pricing.Currency(strings.ToUpper(r.Currency)),
		}
		if r.ConvertedRate != nil {
			if r.ConvertedCurrency == "" {
				return pricing.RatePlan{}, invalid("rate plan %s: converted_rate for room %s needs converted_currency", id, room)
			}
			converted := f.units.toMoney(*r.ConvertedRate)
			entry.ConvertedRate = &converted
			entry.ConvertedCurrency = pricing.Currency(strings.ToUpper(r.ConvertedCurrency))
		}
		plan.BaseRates[room] = entry
	}

	return plan, nil
}

// ToJSON converts a RatePlan back to its authored form. Rates are sorted by
// room key.
func (f *RatePlanFactory) ToJSON(plan pricing.RatePlan) RatePlanJSON {
	rj := RatePlanJSON{
		ID:                 plan.ID,
		Name:               plan.Name,
		MealPlan:           plan.MealPlan,
		CancellationPolicy: plan.CancellationPolicy,
		MinNights:          plan.MinNights,
		MaxNights:          plan.MaxNights,
	}
	if !plan.Validity.Start.IsZero() {
		rj.ValidFrom = plan.Validity.Start.String()
	}
	if !plan.Validity.End.IsZero() {
		rj.ValidTo = plan.Validity.End.String()
	}

	rooms := make([]string, 0, len(plan.BaseRates))
	for room := range plan.BaseRates {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)

	for _, room := range rooms {
		entry := plan.BaseRates[room]
		r := RoomRateJSON{
			Room:     room,
			Rate:     f.units.fromMoney(entry.Rate),
			Currency: string(entry.Currency),
		}
		if entry.ConvertedRate != nil {
			v := f.units.fromMoney(*entry.ConvertedRate)
			r.ConvertedRate = &v
			r.ConvertedCurrency = string(entry.ConvertedCurrency)
		}
		rj.Rates = append(rj.Rates, r)
	}
	return rj
}
