package pricing

import (
	"github.com/rs/zerolog/log"
)

// =============================================================================
// RATE PLAN RESOLVER - Best available rate for one product on one night
// =============================================================================

// ResolvedRate is the winning plan and its nightly rate in the request currency.
type ResolvedRate struct {
	Plan RatePlan
	Rate Money
}

// RatePlanResolver picks the best applicable rate plan.
// Converter may be nil when every plan is priced in the request currency.
type RatePlanResolver struct {
	Converter CurrencyConverter
}

func NewRatePlanResolver(converter CurrencyConverter) *RatePlanResolver {
	return &RatePlanResolver{Converter: converter}
}

// Resolve returns the plan with the lowest nightly rate for product on date,
// ties broken by plan ID ascending. ok is false when no plan qualifies and
// the caller must keep the inventory selling rate.
//
// A plan qualifies when it prices product.PlanKey(), its validity window
// contains date, and its rate can be expressed in currency.
func (r *RatePlanResolver) Resolve(product RoomProduct, plans []RatePlan, date Date, currency Currency) (ResolvedRate, bool) {
	var (
		best  ResolvedRate
		found bool
	)
	for _, plan := range plans {
		entry, ok := plan.BaseRates[product.PlanKey()]
		if !ok || !plan.Validity.Contains(date) {
			continue
		}
		rate, ok := r.nightlyRate(plan.ID, entry, currency)
		if !ok {
			continue
		}
		if !found || rate < best.Rate || (rate == best.Rate && plan.ID < best.Plan.ID) {
			best = ResolvedRate{Plan: plan, Rate: rate}
			found = true
		}
	}
	return best, found
}

func (r *RatePlanResolver) nightlyRate(planID string, entry PlanRate, currency Currency) (Money, bool) {
	if entry.ConvertedRate != nil && entry.ConvertedCurrency == currency {
		return *entry.ConvertedRate, true
	}
	if entry.Currency == currency || entry.Currency == "" || currency == "" {
		return entry.Rate, true
	}
	if r.Converter == nil {
		return 0, false
	}
	converted, err := r.Converter.Convert(entry.Rate, entry.Currency, currency)
	if err != nil {
		log.Debug().Err(err).Str("plan", planID).Msg("skipping rate plan: rate not convertible")
		return 0, false
	}
	return converted, true
}

// AllowsStay applies the plan's stay restrictions. Zero limits are open.
func AllowsStay(plan RatePlan, nights int) bool {
	if plan.MinNights > 0 && nights < plan.MinNights {
		return false
	}
	if plan.MaxNights > 0 && nights > plan.MaxNights {
		return false
	}
	return true
}

// FilterForStay keeps the plans whose stay restrictions allow nights.
func FilterForStay(plans []RatePlan, nights int) []RatePlan {
	out := make([]RatePlan, 0, len(plans))
	for _, p := range plans {
		if AllowsStay(p, nights) {
			out = append(out, p)
		}
	}
	return out
}
