package pricing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pentouz/rate-engine/pricing"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type mockInventory struct {
	mock.Mock
}

func (m *mockInventory) GetInventory(ctx context.Context, productID pricing.ProductID, start, end pricing.Date) ([]pricing.InventoryRecord, error) {
	args := m.Called(ctx, productID, start, end)
	records, _ := args.Get(0).([]pricing.InventoryRecord)
	return records, args.Error(1)
}

func d(day int) pricing.Date {
	return pricing.NewDate(2025, time.March, day)
}

func deluxe() pricing.RoomProduct {
	return pricing.RoomProduct{
		ID:           "deluxe",
		Code:         "DLX",
		Name:         "Deluxe Room",
		MaxOccupancy: 2,
		BaseRate:     3500,
	}
}

// nights builds one open record per night from check-in with 5 free units.
func nights(product pricing.ProductID, from, count int, rate pricing.Money) []pricing.InventoryRecord {
	out := make([]pricing.InventoryRecord, count)
	for i := range out {
		out[i] = pricing.InventoryRecord{
			ProductID:   product,
			Date:        d(from + i),
			TotalUnits:  10,
			SoldUnits:   5,
			SellingRate: rate,
		}
	}
	return out
}

// =============================================================================
// DATES
// =============================================================================

func TestStayRange_NightsMatchCalendarDays(t *testing.T) {
	cases := []struct {
		name     string
		in, out  pricing.Date
		expected int
	}{
		{"one night", d(1), d(2), 1},
		{"across month end", pricing.NewDate(2025, time.February, 27), d(2), 3},
		{"across DST change", d(29), pricing.NewDate(2025, time.April, 2), 4},
		{"leap day", pricing.NewDate(2024, time.February, 28), pricing.NewDate(2024, time.March, 1), 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stay := pricing.StayRange{CheckIn: tc.in, CheckOut: tc.out}
			require.NoError(t, stay.Validate())
			assert.Equal(t, tc.expected, stay.Nights())
			assert.Len(t, stay.NightDates(), tc.expected)
		})
	}
}

func TestDate_JSONRoundTrip(t *testing.T) {
	parsed, err := pricing.ParseDate("2025-03-10")
	require.NoError(t, err)

	b, err := parsed.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2025-03-10"`, string(b))

	var back pricing.Date
	require.NoError(t, back.UnmarshalJSON(b))
	assert.True(t, back.Equal(d(10)))

	_, err = pricing.ParseDate("10/03/2025")
	assert.Error(t, err)
}

// =============================================================================
// INVENTORY AGGREGATION
// =============================================================================

func TestAggregate_SameDayStay_InvalidRangeWithoutFetch(t *testing.T) {
	// GIVEN: check-in equals check-out
	// WHEN: Aggregating
	// THEN: InvalidRangeError, inventory never fetched

	inv := &mockInventory{}
	agg := pricing.NewInventoryAggregator(inv)

	_, err := agg.Aggregate(context.Background(), deluxe(), pricing.StayRange{CheckIn: d(10), CheckOut: d(10)})

	var rangeErr *pricing.InvalidRangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.ErrorIs(t, err, pricing.ErrInvalidRange)
	inv.AssertNotCalled(t, "GetInventory", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAggregate_StayOverMaxNights_InvalidRangeWithoutFetch(t *testing.T) {
	// GIVEN: A stay one night longer than MaxStayNights
	// WHEN: Aggregating
	// THEN: InvalidRangeError, inventory never fetched

	inv := &mockInventory{}
	agg := pricing.NewInventoryAggregator(inv)
	stay := pricing.StayRange{CheckIn: d(10), CheckOut: d(10).AddDays(pricing.MaxStayNights + 1)}

	_, err := agg.Aggregate(context.Background(), deluxe(), stay)

	assert.ErrorIs(t, err, pricing.ErrInvalidRange)
	inv.AssertNotCalled(t, "GetInventory", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// A stay of exactly MaxStayNights is still valid
	longest := pricing.StayRange{CheckIn: d(10), CheckOut: d(10).AddDays(pricing.MaxStayNights)}
	require.NoError(t, longest.Validate())
}

func TestAggregate_StopSellOnOneNight_ForcesZero(t *testing.T) {
	// GIVEN: 3-night stay, middle night stop-sell with 5 raw units free
	// WHEN: Aggregating (twice)
	// THEN: availableUnits = 0 both times, reason stop_sell

	records := nights("deluxe", 10, 3, 4000)
	records[1].StopSell = true
	require.Equal(t, 5, records[1].AvailableUnits())

	inv := &mockInventory{}
	inv.On("GetInventory", mock.Anything, pricing.ProductID("deluxe"), d(10), d(13)).Return(records, nil)
	agg := pricing.NewInventoryAggregator(inv)
	stay := pricing.StayRange{CheckIn: d(10), CheckOut: d(13)}

	for n := 0; n < 2; n++ {
		res, err := agg.Aggregate(context.Background(), deluxe(), stay)
		require.NoError(t, err)
		assert.Equal(t, 0, res.AvailableUnits)
		assert.True(t, res.HasStopSell)
		assert.Equal(t, pricing.ReasonStopSell, res.Reason)
		assert.Equal(t, 3, res.Nights)
	}
	inv.AssertExpectations(t)
}

func TestAggregateRecords_MinUnitsAndMeanRate(t *testing.T) {
	records := nights("deluxe", 10, 3, 0)
	records[0].SellingRate, records[1].SellingRate, records[2].SellingRate = 3000, 3500, 4001
	records[1].SoldUnits = 8
	stay := pricing.StayRange{CheckIn: d(10), CheckOut: d(13)}

	res := pricing.AggregateRecords(deluxe(), stay, records)

	assert.Equal(t, 2, res.AvailableUnits)
	assert.Equal(t, pricing.Money(3500), res.AverageRate, "10501/3 rounds to 3500")
	require.Len(t, res.NightlyRates, 3)
	assert.Equal(t, pricing.Money(4001), res.NightlyRates[2].Rate)
	assert.True(t, res.NightlyRates[0].Date.Equal(d(10)))
	assert.Equal(t, pricing.ReasonNone, res.Reason)
}

func TestAggregateRecords_MonotonicInSoldUnits(t *testing.T) {
	stay := pricing.StayRange{CheckIn: d(10), CheckOut: d(13)}
	prev := -1
	for sold := 10; sold >= 0; sold-- {
		records := nights("deluxe", 10, 3, 3500)
		records[1].SoldUnits = sold
		units := pricing.AggregateRecords(deluxe(), stay, records).AvailableUnits
		if prev >= 0 {
			assert.GreaterOrEqual(t, units, prev, "fewer sold units never lowers availability")
		}
		prev = units
	}
}

func TestAggregateRecords_ReasonPrecedence(t *testing.T) {
	stay := pricing.StayRange{CheckIn: d(10), CheckOut: d(12)}

	cases := []struct {
		name   string
		modify func(r []pricing.InventoryRecord)
		reason pricing.UnavailableReason
	}{
		{"stop sell beats closure", func(r []pricing.InventoryRecord) {
			r[0].StopSell = true
			r[1].ClosedToArrival = true
		}, pricing.ReasonStopSell},
		{"closed to departure", func(r []pricing.InventoryRecord) { r[1].ClosedToDeparture = true }, pricing.ReasonClosed},
		{"closure beats sold out", func(r []pricing.InventoryRecord) {
			r[0].ClosedToArrival = true
			r[1].SoldUnits = 10
		}, pricing.ReasonClosed},
		{"min stay", func(r []pricing.InventoryRecord) { r[0].MinStay = 3 }, pricing.ReasonMinStay},
		{"max stay", func(r []pricing.InventoryRecord) { r[1].MaxStay = 1 }, pricing.ReasonMaxStay},
		{"sold out", func(r []pricing.InventoryRecord) { r[1].BlockedUnits = 5 }, pricing.ReasonSoldOut},
		{"oversold is floored at zero", func(r []pricing.InventoryRecord) { r[0].SoldUnits = 12 }, pricing.ReasonSoldOut},
		{"open", func(r []pricing.InventoryRecord) {}, pricing.ReasonNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			records := nights("deluxe", 10, 2, 3500)
			tc.modify(records)
			res := pricing.AggregateRecords(deluxe(), stay, records)
			assert.Equal(t, tc.reason, res.Reason)
			if tc.reason != pricing.ReasonNone {
				assert.Zero(t, res.AvailableUnits)
			}
		})
	}
}

func TestAggregate_FetchFailure_DegradesToBaseRate(t *testing.T) {
	// GIVEN: Provider fails
	// WHEN: Aggregating
	// THEN: No error, but product unavailable at base rate with the fetch error kept

	inv := &mockInventory{}
	inv.On("GetInventory", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("channel manager timeout"))
	agg := pricing.NewInventoryAggregator(inv)

	res, err := agg.Aggregate(context.Background(), deluxe(), pricing.StayRange{CheckIn: d(10), CheckOut: d(12)})
	require.NoError(t, err)

	assert.Equal(t, 0, res.AvailableUnits)
	assert.Equal(t, pricing.ReasonNoInventory, res.Reason)
	assert.Equal(t, pricing.Money(3500), res.AverageRate)
	require.Len(t, res.NightlyRates, 2)
	assert.Equal(t, pricing.Money(3500), res.NightlyRates[1].Rate)

	var fetchErr *pricing.ExternalFetchError
	require.ErrorAs(t, res.Err(), &fetchErr)
	assert.True(t, pricing.IsFetchFailure(res.Err()))
	assert.Contains(t, res.Err().Error(), "channel manager timeout")
}

func TestAggregate_MissingNight_IsFetchFailure(t *testing.T) {
	records := nights("deluxe", 10, 3, 3500)
	records = append(records[:1], records[2:]...)

	inv := &mockInventory{}
	inv.On("GetInventory", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(records, nil)
	agg := pricing.NewInventoryAggregator(inv)

	res, err := agg.Aggregate(context.Background(), deluxe(), pricing.StayRange{CheckIn: d(10), CheckOut: d(13)})
	require.NoError(t, err)
	assert.Equal(t, pricing.ReasonNoInventory, res.Reason)
	assert.ErrorIs(t, res.Err(), pricing.ErrInventoryMismatch)
}

// =============================================================================
// RATE PLANS
// =============================================================================

func TestResolve_LowestRateThenLowestID(t *testing.T) {
	product := deluxe()
	plans := []pricing.RatePlan{
		{ID: "rp-b", BaseRates: map[string]pricing.PlanRate{"DLX": {Rate: 3200, Currency: "INR"}}},
		{ID: "rp-a", BaseRates: map[string]pricing.PlanRate{"DLX": {Rate: 3200, Currency: "INR"}}},
		{ID: "rp-c", BaseRates: map[string]pricing.PlanRate{"DLX": {Rate: 3900, Currency: "INR"}}},
		{ID: "rp-0", BaseRates: map[string]pricing.PlanRate{"STD": {Rate: 100, Currency: "INR"}}},
	}
	resolver := pricing.NewRatePlanResolver(nil)

	best, ok := resolver.Resolve(product, plans, d(10), "INR")
	require.True(t, ok)
	assert.Equal(t, "rp-a", best.Plan.ID)
	assert.Equal(t, pricing.Money(3200), best.Rate)
}

func TestResolve_ValidityAndConversion(t *testing.T) {
	product := deluxe()
	converted := pricing.Money(40)
	plans := []pricing.RatePlan{
		// expired
		{ID: "old", Validity: pricing.Window{End: d(5)}, BaseRates: map[string]pricing.PlanRate{"DLX": {Rate: 1, Currency: "USD"}}},
		// USD, converted by the converter: 50 * 83 = 4150
		{ID: "usd", BaseRates: map[string]pricing.PlanRate{"DLX": {Rate: 50, Currency: "USD"}}},
		// carries its own converted INR rate
		{ID: "eur", BaseRates: map[string]pricing.PlanRate{"DLX": {Rate: 45, Currency: "EUR", ConvertedRate: &converted, ConvertedCurrency: "INR"}}},
		// no conversion available, skipped
		{ID: "gbp", BaseRates: map[string]pricing.PlanRate{"DLX": {Rate: 1, Currency: "GBP"}}},
	}
	conv := pricing.NewStaticConverter().SetRate("USD", "INR", decimal.NewFromInt(83))
	resolver := pricing.NewRatePlanResolver(conv)

	best, ok := resolver.Resolve(product, plans, d(10), "INR")
	require.True(t, ok)
	assert.Equal(t, "eur", best.Plan.ID)
	assert.Equal(t, pricing.Money(40), best.Rate)

	best, ok = resolver.Resolve(product, plans[:2], d(10), "INR")
	require.True(t, ok)
	assert.Equal(t, "usd", best.Plan.ID)
	assert.Equal(t, pricing.Money(4150), best.Rate)

	_, ok = resolver.Resolve(product, plans[3:], d(10), "INR")
	assert.False(t, ok, "unconvertible plan is skipped, caller keeps the selling rate")
}

func TestFilterForStay(t *testing.T) {
	plans := []pricing.RatePlan{
		{ID: "any"},
		{ID: "long", MinNights: 3},
		{ID: "short", MaxNights: 1},
	}
	ids := func(ps []pricing.RatePlan) []string {
		out := []string{}
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}
	assert.Equal(t, []string{"any", "short"}, ids(pricing.FilterForStay(plans, 1)))
	assert.Equal(t, []string{"any"}, ids(pricing.FilterForStay(plans, 2)))
	assert.Equal(t, []string{"any", "long"}, ids(pricing.FilterForStay(plans, 4)))
}

// =============================================================================
// CURRENCY
// =============================================================================

func TestStaticConverter(t *testing.T) {
	conv := pricing.NewStaticConverter().SetRate("USD", "INR", decimal.RequireFromString("83.25"))

	out, err := conv.Convert(200, "USD", "INR")
	require.NoError(t, err)
	assert.Equal(t, pricing.Money(16650), out)

	out, err = conv.Convert(8325, "INR", "USD")
	require.NoError(t, err)
	assert.Equal(t, pricing.Money(100), out, "inverse of the reverse pair")

	out, err = conv.Convert(123, "INR", "INR")
	require.NoError(t, err)
	assert.Equal(t, pricing.Money(123), out)

	_, err = conv.Convert(1, "INR", "JPY")
	assert.ErrorIs(t, err, pricing.ErrUnknownCurrencyPair)
}
