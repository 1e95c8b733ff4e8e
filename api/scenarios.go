/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built properties that populate the store with realistic
	reference data. Each scenario creates room products, a run of nightly
	inventory starting today, rate plans and promo codes that demonstrate
	specific pricing behavior.

AVAILABLE SCENARIOS:

	city-hotel:       Three room types, weekend uplift, BAR and non-refundable plans
	sold-out-weekend: City hotel with the first weekend sold out and the suite stop-sold
	peak-season:      Three-night minimum, Saturday closed to arrival, USD package plan

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create room products
 3. Generate inventory for scenarioNights nights from the engine's today
 4. Create rate plans and promos via the factory presets
 5. Drop cached inventory for every product before and after

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "city-hotel"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create a builder: func xxxScenario(start pricing.Date) scenarioData
 3. Register it in scenarioBuilders

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - factory/presets.go: Promo and rate plan JSON presets
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/pentouz/rate-engine/factory"
	"github.com/pentouz/rate-engine/pricing"
)

const scenarioNights = 60

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "city-hotel",
		Name:        "City Hotel",
		Description: "Standard, deluxe and suite over 60 nights with weekend uplift, a BAR plan, a non-refundable plan and four promo codes",
	},
	{
		ID:          "sold-out-weekend",
		Name:        "Sold-Out Weekend",
		Description: "City hotel with standard and deluxe sold out on the first weekend and the suite stop-sold",
	},
	{
		ID:          "peak-season",
		Name:        "Peak Season",
		Description: "Three-night minimum stay, Saturdays closed to arrival, rates up 50% and a USD-priced package plan",
	},
}

// scenarioData is everything one scenario writes.
type scenarioData struct {
	products  []pricing.RoomProduct
	inventory []pricing.InventoryRecord
	ratePlans []string // authored JSON
	promos    []string // authored JSON
}

var scenarioBuilders = map[string]func(start pricing.Date) scenarioData{
	"city-hotel":       cityHotelScenario,
	"sold-out-weekend": soldOutWeekendScenario,
	"peak-season":      peakSeasonScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	build, ok := scenarioBuilders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	start := pricing.DateOf(h.Engine.Config().Clock())
	resp, err := h.loadScenario(r.Context(), build(start))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	for _, s := range scenarios {
		if s.ID == req.ScenarioID {
			resp.Scenario = s
		}
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	log.Info().
		Str("scenario", req.ScenarioID).
		Str("load_id", resp.LoadID).
		Str("start", start.String()).
		Int("products", resp.Products).
		Int("nights", resp.Nights).
		Msg("scenario loaded")

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) loadScenario(ctx context.Context, data scenarioData) (LoadScenarioResponse, error) {
	previous, err := h.Store.Products(ctx)
	if err != nil {
		return LoadScenarioResponse{}, err
	}
	if err := h.Store.Reset(ctx); err != nil {
		return LoadScenarioResponse{}, fmt.Errorf("reset store: %w", err)
	}

	for _, p := range data.products {
		if err := h.Store.SaveProduct(ctx, p); err != nil {
			return LoadScenarioResponse{}, err
		}
	}
	if err := h.Store.SaveInventory(ctx, data.inventory); err != nil {
		return LoadScenarioResponse{}, err
	}
	for _, js := range data.ratePlans {
		plan, err := h.RatePlanFactory.ParseRatePlan(js)
		if err != nil {
			return LoadScenarioResponse{}, err
		}
		if err := h.Store.SaveRatePlan(ctx, plan); err != nil {
			return LoadScenarioResponse{}, err
		}
	}
	for _, js := range data.promos {
		promo, err := h.PromoFactory.ParsePromo(js)
		if err != nil {
			return LoadScenarioResponse{}, err
		}
		if err := h.Store.SavePromo(ctx, promo); err != nil {
			return LoadScenarioResponse{}, err
		}
	}

	if h.InventoryCache != nil {
		for _, p := range append(previous, data.products...) {
			if err := h.InventoryCache.Invalidate(ctx, p.ID); err != nil {
				log.Warn().Err(err).Str("product", string(p.ID)).Msg("failed to invalidate inventory cache")
			}
		}
	}

	return LoadScenarioResponse{
		LoadID:    uuid.NewString(),
		Products:  len(data.products),
		Nights:    scenarioNights,
		RatePlans: len(data.ratePlans),
		Promos:    len(data.promos),
	}, nil
}

// =============================================================================
// SCENARIO BUILDERS
// =============================================================================

type roomSpec struct {
	product    pricing.RoomProduct
	units      int
	extraAdult pricing.Money
	extraChild pricing.Money
}

func cityHotelRooms() []roomSpec {
	return []roomSpec{
		{
			product: pricing.RoomProduct{
				ID: "standard", Code: "STD", Name: "Standard Room", MaxOccupancy: 2, BaseRate: 300000,
				Amenities: []string{"wifi", "tea-coffee"},
			},
			units: 20, extraAdult: 80000, extraChild: 40000,
		},
		{
			product: pricing.RoomProduct{
				ID: "deluxe", Code: "DLX", Name: "Deluxe Room", MaxOccupancy: 3, BaseRate: 450000,
				Amenities: []string{"wifi", "minibar", "city-view"},
			},
			units: 12, extraAdult: 120000, extraChild: 60000,
		},
		{
			product: pricing.RoomProduct{
				ID: "suite", Code: "STE", Name: "Executive Suite", MaxOccupancy: 4, BaseRate: 900000,
				Amenities: []string{"wifi", "minibar", "lounge-access", "butler"},
			},
			units: 4, extraAdult: 150000, extraChild: 75000,
		},
	}
}

// cityHotelScenario builds scenarioNights nights from start. Friday and
// Saturday sell 20% above the base rate; occupancy varies by day so some
// nights are nearly full.
func cityHotelScenario(start pricing.Date) scenarioData {
	var data scenarioData
	weekend := decimal.RequireFromString("1.2")

	for i, room := range cityHotelRooms() {
		data.products = append(data.products, room.product)
		for n := 0; n < scenarioNights; n++ {
			date := start.AddDays(n)
			rate := room.product.BaseRate
			if isWeekendNight(date) {
				rate = rate.MulRate(weekend)
			}
			data.inventory = append(data.inventory, pricing.InventoryRecord{
				ProductID:      room.product.ID,
				Date:           date,
				TotalUnits:     room.units,
				SoldUnits:      (n*7 + i*3) % room.units,
				SellingRate:    rate,
				ExtraAdultRate: room.extraAdult,
				ExtraChildRate: room.extraChild,
			})
		}
	}

	bar := factory.RatePlanJSON{
		ID:                 "bar",
		Name:               "Best Available Rate",
		MealPlan:           "CP",
		CancellationPolicy: "free cancellation until 48h before arrival",
		ValidFrom:          start.String(),
		ValidTo:            start.AddDays(29).String(),
		Rates: []factory.RoomRateJSON{
			{Room: "STD", Rate: decimal.NewFromInt(2900), Currency: "INR"},
			{Room: "DLX", Rate: decimal.NewFromInt(4300), Currency: "INR"},
			{Room: "STE", Rate: decimal.NewFromInt(8800), Currency: "INR"},
		},
	}
	data.ratePlans = []string{
		mustMarshal(bar),
		factory.NonRefundablePlanJSON("non-refundable", "INR", 2, map[string]int64{"STD": 2700, "DLX": 4000, "STE": 8200}),
	}

	data.promos = []string{
		factory.PercentageOffJSON("WELCOME10", "Welcome 10% off", 10, 1500),
		factory.FlatDiscountJSON("FLAT1000", "1000 off stays above 8000", 1000, 8000),
		factory.FirstStayJSON("FIRSTSTAY", 15),
		factory.LongStayJSON("STAY5", 20, 5, "DLX", "STE"),
	}
	return data
}

// soldOutWeekendScenario sells out the first Friday and Saturday.
func soldOutWeekendScenario(start pricing.Date) scenarioData {
	data := cityHotelScenario(start)
	friday := nextWeekday(start, time.Friday)
	saturday := friday.AddDays(1)

	for i := range data.inventory {
		rec := &data.inventory[i]
		if !rec.Date.Equal(friday) && !rec.Date.Equal(saturday) {
			continue
		}
		switch rec.ProductID {
		case "suite":
			rec.StopSell = true
		default:
			rec.SoldUnits = rec.TotalUnits
		}
	}
	return data
}

// peakSeasonScenario raises rates by half and adds stay restrictions.
func peakSeasonScenario(start pricing.Date) scenarioData {
	data := cityHotelScenario(start)
	uplift := decimal.RequireFromString("1.5")

	for i := range data.inventory {
		rec := &data.inventory[i]
		rec.SellingRate = rec.SellingRate.MulRate(uplift)
		rec.MinStay = 3
		rec.ClosedToArrival = rec.Date.Time.Weekday() == time.Saturday
	}

	converted := func(v int64) *decimal.Decimal {
		d := decimal.NewFromInt(v)
		return &d
	}
	pkg := factory.RatePlanJSON{
		ID:                 "peak-package",
		Name:               "Peak package with breakfast and transfer",
		MealPlan:           "MAP",
		CancellationPolicy: "non-refundable",
		MinNights:          3,
		Rates: []factory.RoomRateJSON{
			{Room: "STD", Rate: decimal.NewFromInt(52), Currency: "USD", ConvertedRate: converted(4300), ConvertedCurrency: "INR"},
			{Room: "DLX", Rate: decimal.NewFromInt(78), Currency: "USD", ConvertedRate: converted(6450), ConvertedCurrency: "INR"},
			{Room: "STE", Rate: decimal.NewFromInt(155), Currency: "USD", ConvertedRate: converted(12900), ConvertedCurrency: "INR"},
		},
	}
	data.ratePlans = append(data.ratePlans, mustMarshal(pkg))
	return data
}

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func isWeekendNight(d pricing.Date) bool {
	wd := d.Time.Weekday()
	return wd == time.Friday || wd == time.Saturday
}

func nextWeekday(from pricing.Date, wd time.Weekday) pricing.Date {
	offset := (int(wd) - int(from.Time.Weekday()) + 7) % 7
	return from.AddDays(offset)
}
