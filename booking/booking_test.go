package booking_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pentouz/rate-engine/booking"
	"github.com/pentouz/rate-engine/pricing"
	"github.com/pentouz/rate-engine/pricing/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var now = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func d(day int) pricing.Date { return pricing.NewDate(2025, time.March, day) }

type fixture struct {
	store     *store.Memory
	engine    *booking.Engine
	confirmer *fakeConfirmer
}

type fakeConfirmer struct {
	err   error
	calls []booking.ConfirmationRequest
}

func (f *fakeConfirmer) Confirm(_ context.Context, req booking.ConfirmationRequest) (string, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	return "CNF-1001", nil
}

// newFixture seeds a deluxe room open 10-15 March with 3 units at 3500 and
// a suite that is stop-sold on the 11th.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	require.NoError(t, mem.SaveProduct(ctx, pricing.RoomProduct{ID: "deluxe", Code: "DLX", Name: "Deluxe", MaxOccupancy: 2, BaseRate: 3500}))
	require.NoError(t, mem.SaveProduct(ctx, pricing.RoomProduct{ID: "suite", Code: "STE", Name: "Suite", MaxOccupancy: 3, BaseRate: 9000}))

	var records []pricing.InventoryRecord
	for day := 10; day < 15; day++ {
		records = append(records,
			pricing.InventoryRecord{ProductID: "deluxe", Date: d(day), TotalUnits: 5, SoldUnits: 2, SellingRate: 3500, ExtraAdultRate: 800},
			pricing.InventoryRecord{ProductID: "suite", Date: d(day), TotalUnits: 2, SellingRate: 9000, StopSell: day == 11},
		)
	}
	require.NoError(t, mem.SaveInventory(ctx, records))

	capAmount := pricing.Money(500)
	require.NoError(t, mem.SavePromo(ctx, pricing.PromoCode{Code: "SAVE10", Type: pricing.DiscountPercentage, Value: decimal.NewFromInt(10), IsActive: true}))
	require.NoError(t, mem.SavePromo(ctx, pricing.PromoCode{Code: "CAP500", Type: pricing.DiscountPercentage, Value: decimal.NewFromInt(10), MaxAmount: &capAmount, IsActive: true}))
	require.NoError(t, mem.SavePromo(ctx, pricing.PromoCode{Code: "LONGSTAY", Type: pricing.DiscountFixedAmount, Value: decimal.NewFromInt(1000), IsActive: true,
		Conditions: pricing.PromoConditions{MinNights: 4}}))

	confirmer := &fakeConfirmer{}
	return &fixture{
		store:     mem,
		confirmer: confirmer,
		engine:    newEngine(mem, mem, confirmer),
	}
}

func newEngine(mem *store.Memory, inv pricing.InventoryProvider, confirmer booking.Confirmer) *booking.Engine {
	return booking.NewEngine(booking.Deps{
		Catalog:   mem,
		Inventory: inv,
		RatePlans: mem,
		Promos:    mem,
		Converter: pricing.NewStaticConverter().SetRate("USD", "INR", decimal.NewFromInt(80)),
		Confirmer: confirmer,
	}, booking.Config{
		TaxRate:      decimal.RequireFromString("0.18"),
		BaseCurrency: "INR",
		Concurrency:  2,
		Clock:        func() time.Time { return now },
	})
}

func criteria(in, out int) booking.SearchCriteria {
	return booking.SearchCriteria{
		Stay:      pricing.StayRange{CheckIn: d(in), CheckOut: d(out)},
		Occupancy: pricing.Occupancy{Adults: 2, Rooms: 1},
		Currency:  "INR",
	}
}

// selected walks a fresh session to ROOM_SELECTED on the deluxe room for 10-12 March.
func selected(t *testing.T, f *fixture) booking.Session {
	t.Helper()
	ctx := context.Background()
	s, err := f.engine.Search(ctx, booking.NewSession(), criteria(10, 12))
	require.NoError(t, err)
	s, err = f.engine.SelectRoom(ctx, s, "deluxe")
	require.NoError(t, err)
	return s
}

// =============================================================================
// SEARCH
// =============================================================================

func TestSearch_ListsEveryProductWithReasons(t *testing.T) {
	f := newFixture(t)

	s, err := f.engine.Search(context.Background(), booking.NewSession(), criteria(10, 13))
	require.NoError(t, err)

	assert.Equal(t, booking.StateRoomsListed, s.State)
	require.Len(t, s.Candidates, 2)

	dlx, ok := s.Candidate("deluxe")
	require.True(t, ok)
	assert.Equal(t, 3, dlx.AvailableUnits)
	assert.Equal(t, pricing.Money(3500), dlx.AverageRate)

	ste, ok := s.Candidate("suite")
	require.True(t, ok)
	assert.Equal(t, 0, ste.AvailableUnits)
	assert.Equal(t, pricing.ReasonStopSell, ste.Reason)
}

func TestSearch_InvalidRange_SessionUnchanged(t *testing.T) {
	f := newFixture(t)
	s := booking.NewSession()

	next, err := f.engine.Search(context.Background(), s, criteria(10, 10))

	assert.ErrorIs(t, err, pricing.ErrInvalidRange)
	assert.Equal(t, booking.StateSearching, next.State)
	assert.Equal(t, s.ID, next.ID)
}

func TestSearch_NoProductFits_ReportsReasons(t *testing.T) {
	// GIVEN: 5 rooms requested, deluxe has 3, suite is stop-sold
	// WHEN: Searching
	// THEN: NoAvailabilityError with one line per product

	f := newFixture(t)
	c := criteria(10, 13)
	c.Occupancy.Rooms = 5

	_, err := f.engine.Search(context.Background(), booking.NewSession(), c)

	var noRooms *booking.NoAvailabilityError
	require.ErrorAs(t, err, &noRooms)
	assert.ErrorIs(t, err, pricing.ErrInsufficientAvailability)
	reasons := map[pricing.ProductID]pricing.UnavailableReason{}
	for _, p := range noRooms.Products {
		reasons[p.ProductID] = p.Reason
	}
	assert.Equal(t, pricing.ReasonNotEnoughUnits, reasons["deluxe"])
	assert.Equal(t, pricing.ReasonStopSell, reasons["suite"])
}

func TestSearch_MissingInventory_DegradesProduct(t *testing.T) {
	// GIVEN: No inventory loaded for the 16th
	// WHEN: Searching a stay that covers it
	// THEN: Every product is no_inventory at base rate, search reports it

	f := newFixture(t)

	_, err := f.engine.Search(context.Background(), booking.NewSession(), criteria(14, 17))

	var noRooms *booking.NoAvailabilityError
	require.ErrorAs(t, err, &noRooms)
	assert.Equal(t, pricing.ReasonNoInventory, noRooms.Reason())

	results, err := f.engine.Availability(context.Background(), criteria(14, 17))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, pricing.Money(3500), results[0].AverageRate)
	assert.True(t, pricing.IsFetchFailure(results[0].Err()))
}

func TestSearch_ConvertsToRequestedCurrency(t *testing.T) {
	f := newFixture(t)
	c := criteria(10, 12)
	c.Currency = "USD"

	results, err := f.engine.Availability(context.Background(), c)
	require.NoError(t, err)

	// 3500 INR at 80 INR/USD = 43.75 -> 44
	assert.Equal(t, pricing.Money(44), results[0].AverageRate)

	c.Currency = "JPY"
	_, err = f.engine.Availability(context.Background(), c)
	assert.ErrorIs(t, err, pricing.ErrUnknownCurrencyPair)
}

// =============================================================================
// ROOM SELECTION AND PROMOS
// =============================================================================

func TestSelectRoom_ComputesQuote(t *testing.T) {
	f := newFixture(t)

	s := selected(t, f)

	assert.Equal(t, booking.StateRoomSelected, s.State)
	require.NotNil(t, s.Quote)
	assert.Equal(t, pricing.Money(7000), s.Quote.BaseAmount)
	assert.Equal(t, pricing.Money(1260), s.Quote.TaxAmount)
	assert.Equal(t, pricing.Money(8260), s.Quote.TotalAmount)
	assert.Equal(t, pricing.ProductID("deluxe"), s.Selected.Product.ID)
}

func TestSelectRoom_StopSoldProduct_Rejected(t *testing.T) {
	f := newFixture(t)
	s, err := f.engine.Search(context.Background(), booking.NewSession(), criteria(10, 13))
	require.NoError(t, err)

	next, err := f.engine.SelectRoom(context.Background(), s, "suite")

	var capErr *pricing.InsufficientAvailabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, pricing.ReasonStopSell, capErr.Reason)
	assert.Equal(t, booking.StateRoomsListed, next.State)
	assert.Nil(t, next.Quote)
}

func TestSelectRoom_BestRatePlanReplacesSellingRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveRatePlan(ctx, pricing.RatePlan{
		ID:        "early-bird",
		BaseRates: map[string]pricing.PlanRate{"DLX": {Rate: 3000, Currency: "INR"}},
		Validity:  pricing.Window{Start: d(11), End: d(11)},
	}))

	s := selected(t, f)

	require.Len(t, s.Quote.NightlyRates, 2)
	assert.Equal(t, pricing.Money(3500), s.Quote.NightlyRates[0].Rate)
	assert.Equal(t, pricing.Money(3000), s.Quote.NightlyRates[1].Rate)
	assert.Equal(t, "early-bird", s.Quote.NightlyRates[1].RatePlanID)
	assert.Equal(t, pricing.Money(6500), s.Quote.BaseAmount)
}

func TestSelectRoom_InventoryFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	s, err := f.engine.Search(context.Background(), booking.NewSession(), criteria(10, 12))
	require.NoError(t, err)

	failing := newEngine(f.store, failingInventory{}, f.confirmer)
	next, err := failing.SelectRoom(context.Background(), s, "deluxe")

	var fetchErr *pricing.ExternalFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, booking.StateRoomsListed, next.State)
}

func TestApplyPromo_RecomputesQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := selected(t, f)

	withPromo, err := f.engine.ApplyPromo(ctx, s, "save10", booking.GuestProfile{})
	require.NoError(t, err)
	assert.Equal(t, pricing.Money(700), withPromo.Quote.DiscountAmount)
	assert.Equal(t, "SAVE10", withPromo.Quote.PromoApplied)
	assert.Equal(t, pricing.Money(7434), withPromo.Quote.TotalAmount)

	capped, err := f.engine.ApplyPromo(ctx, withPromo, "CAP500", booking.GuestProfile{})
	require.NoError(t, err)
	assert.Equal(t, pricing.Money(500), capped.Quote.DiscountAmount)

	removed, err := f.engine.RemovePromo(ctx, capped)
	require.NoError(t, err)
	assert.Zero(t, removed.Quote.DiscountAmount)
	assert.Nil(t, removed.Promo)

	// the earlier values are untouched
	assert.Equal(t, pricing.Money(700), withPromo.Quote.DiscountAmount)
	assert.Zero(t, s.Quote.DiscountAmount)
}

func TestApplyPromo_RejectedLeavesSessionIntact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := selected(t, f)

	next, err := f.engine.ApplyPromo(ctx, s, "LONGSTAY", booking.GuestProfile{})

	var promoErr *pricing.InvalidPromoError
	require.ErrorAs(t, err, &promoErr)
	assert.Equal(t, pricing.PromoStayTooShort, promoErr.Reason)
	assert.Nil(t, next.Promo)
	assert.Equal(t, s.Quote.TotalAmount, next.Quote.TotalAmount)

	_, err = f.engine.ApplyPromo(ctx, s, "NOPE", booking.GuestProfile{})
	assert.ErrorIs(t, err, pricing.ErrPromoNotFound)
}

// =============================================================================
// GUEST DETAILS, CONFIRMATION, NAVIGATION
// =============================================================================

func TestFullFlow_Confirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := selected(t, f)

	s, err := f.engine.ApplyPromo(ctx, s, "SAVE10", booking.GuestProfile{GuestID: "g-1"})
	require.NoError(t, err)
	s, err = booking.ProceedToGuestInfo(s)
	require.NoError(t, err)
	s, err = booking.SubmitGuest(s, booking.GuestInfo{FirstName: " Asha ", LastName: "Rao", Email: "asha@example.com", Phone: "+91 98450 00000"})
	require.NoError(t, err)
	assert.Equal(t, "Asha", s.Guest.FirstName)

	s, err = f.engine.Confirm(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, booking.StateConfirmed, s.State)
	assert.Equal(t, "CNF-1001", s.ConfirmationRef)

	require.Len(t, f.confirmer.calls, 1)
	assert.Equal(t, "SAVE10", f.confirmer.calls[0].PromoCode)
	assert.Equal(t, "g-1", f.confirmer.calls[0].GuestID)
	assert.Equal(t, pricing.Money(7434), f.confirmer.calls[0].Quote.TotalAmount)

	_, err = booking.Back(s, booking.StateGuestInfo)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition, "confirmed is terminal")
}

func TestSubmitGuest_NamesEveryMissingField(t *testing.T) {
	f := newFixture(t)
	s, err := booking.ProceedToGuestInfo(selected(t, f))
	require.NoError(t, err)

	next, err := booking.SubmitGuest(s, booking.GuestInfo{FirstName: "Asha", LastName: "   ", Email: "not-an-email"})

	var missing *booking.MissingGuestFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, map[string]string{"lastName": "required", "email": "email", "phone": "required"}, missing.Fields)
	assert.Equal(t, booking.StateGuestInfo, next.State)
}

func TestConfirm_FailureStaysConfirming(t *testing.T) {
	f := newFixture(t)
	f.confirmer.err = errors.New("reservation system down")
	s, err := booking.ProceedToGuestInfo(selected(t, f))
	require.NoError(t, err)
	s, err = booking.SubmitGuest(s, booking.GuestInfo{FirstName: "A", LastName: "B", Email: "a@b.co", Phone: "123"})
	require.NoError(t, err)

	next, err := f.engine.Confirm(context.Background(), s)

	assert.Error(t, err)
	assert.Equal(t, booking.StateConfirming, next.State)
	assert.Empty(t, next.ConfirmationRef)
}

func TestTransitions_GuardsLeaveStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fresh := booking.NewSession()

	_, err := f.engine.SelectRoom(ctx, fresh, "deluxe")
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	_, err = booking.ProceedToGuestInfo(fresh)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	_, err = f.engine.Confirm(ctx, fresh)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	_, err = f.engine.Search(ctx, booking.Session{}, criteria(10, 12))
	assert.ErrorIs(t, err, booking.ErrSessionNotStarted)

	listed, err := f.engine.Search(ctx, fresh, criteria(10, 12))
	require.NoError(t, err)
	_, err = f.engine.Search(ctx, listed, criteria(10, 12))
	assert.ErrorIs(t, err, booking.ErrInvalidTransition, "search again only after going back")
}

func TestBack_ToRoomsListedDropsSelection(t *testing.T) {
	f := newFixture(t)
	s, err := f.engine.ApplyPromo(context.Background(), selected(t, f), "SAVE10", booking.GuestProfile{})
	require.NoError(t, err)
	s, err = booking.ProceedToGuestInfo(s)
	require.NoError(t, err)

	back, err := booking.Back(s, booking.StateRoomsListed)
	require.NoError(t, err)

	assert.Equal(t, booking.StateRoomsListed, back.State)
	assert.Nil(t, back.Selected)
	assert.Nil(t, back.Promo)
	assert.Nil(t, back.Quote)
	assert.Len(t, back.Candidates, 2)

	_, err = booking.Back(back, booking.StateGuestInfo)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition, "cannot go forward with Back")

	again, err := booking.Back(s, booking.StateRoomSelected)
	require.NoError(t, err)
	assert.NotNil(t, again.Quote)
}

func TestBack_ToSearchingRestarts(t *testing.T) {
	f := newFixture(t)
	s := selected(t, f)

	fresh, err := booking.Back(s, booking.StateSearching)
	require.NoError(t, err)

	assert.Equal(t, booking.StateSearching, fresh.State)
	assert.Equal(t, s.ID, fresh.ID)
	assert.Empty(t, fresh.Candidates)
	assert.Nil(t, fresh.Quote)
	assert.Greater(t, fresh.Seq, s.Seq)
}

// =============================================================================
// LAST REQUEST WINS
// =============================================================================

// blockingInventory blocks its first call until the context is cancelled.
type blockingInventory struct {
	pricing.InventoryProvider
	calls   atomic.Int32
	started chan struct{}
}

func (b *blockingInventory) GetInventory(ctx context.Context, id pricing.ProductID, start, end pricing.Date) ([]pricing.InventoryRecord, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return b.InventoryProvider.GetInventory(ctx, id, start, end)
}

type failingInventory struct{}

func (failingInventory) GetInventory(context.Context, pricing.ProductID, pricing.Date, pricing.Date) ([]pricing.InventoryRecord, error) {
	return nil, errors.New("inventory service unavailable")
}

func TestSearch_NewerRequestSupersedesInFlight(t *testing.T) {
	// GIVEN: A search blocked on inventory
	// WHEN: A second search starts on the same session
	// THEN: The first is cancelled and discarded, the second applies

	f := newFixture(t)
	inv := &blockingInventory{InventoryProvider: f.store, started: make(chan struct{})}
	engine := newEngine(f.store, inv, f.confirmer)
	s := booking.NewSession()
	ctx := context.Background()

	firstErr := make(chan error, 1)
	go func() {
		_, err := engine.Search(ctx, s, criteria(10, 12))
		firstErr <- err
	}()
	<-inv.started

	second, err := engine.Search(ctx, s, criteria(12, 14))
	require.NoError(t, err)
	assert.True(t, second.Criteria.Stay.CheckIn.Equal(d(12)))

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, booking.ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("first search never returned")
	}
}

func TestRestart_DiscardsInFlightSearch(t *testing.T) {
	f := newFixture(t)
	inv := &blockingInventory{InventoryProvider: f.store, started: make(chan struct{})}
	engine := newEngine(f.store, inv, f.confirmer)
	s := booking.NewSession()

	done := make(chan error, 1)
	go func() {
		_, err := engine.Search(context.Background(), s, criteria(10, 12))
		done <- err
	}()
	<-inv.started

	fresh := booking.Restart(s)
	assert.Equal(t, booking.StateSearching, fresh.State)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, booking.ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("search never returned")
	}
}

// =============================================================================
// STATELESS QUOTES
// =============================================================================

func TestQuote_ZeroTaxRate_IsTaxExempt(t *testing.T) {
	f := newFixture(t)

	// GIVEN: A property configured without tax
	engine := booking.NewEngine(booking.Deps{
		Catalog:   f.store,
		Inventory: f.store,
		RatePlans: f.store,
		Promos:    f.store,
	}, booking.Config{
		TaxRate:      decimal.Zero,
		BaseCurrency: "INR",
		Clock:        func() time.Time { return now },
	})

	// WHEN: Quoting two deluxe nights
	priced, err := engine.Quote(context.Background(), booking.QuoteRequest{Criteria: criteria(10, 12), ProductID: "deluxe"})
	require.NoError(t, err)

	// THEN: No tax is charged
	assert.True(t, priced.Quote.TaxRate.IsZero())
	assert.Equal(t, pricing.Money(0), priced.Quote.TaxAmount)
	assert.Equal(t, pricing.Money(7000), priced.Quote.TotalAmount)
}

func TestQuote_WithPromo(t *testing.T) {
	f := newFixture(t)

	priced, err := f.engine.Quote(context.Background(), booking.QuoteRequest{
		Criteria:  criteria(10, 12),
		ProductID: "deluxe",
		PromoCode: "cap500",
	})
	require.NoError(t, err)

	assert.Equal(t, pricing.Money(500), priced.Quote.DiscountAmount)
	require.NotNil(t, priced.Promo)
	assert.True(t, priced.Promo.Applicable)

	_, err = f.engine.Quote(context.Background(), booking.QuoteRequest{Criteria: criteria(10, 12), ProductID: "penthouse"})
	assert.ErrorIs(t, err, pricing.ErrProductNotFound)
}
