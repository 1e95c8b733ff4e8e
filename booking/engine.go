/*
engine.go - Orchestrates availability, rate plans, promos and charges

PURPOSE:
  The Engine drives the collaborator-backed transitions of a booking
  session. It owns no data: products, inventory, rate plans and promo codes
  are read through the pricing provider interfaces, and confirmations go to
  an external Confirmer.

SEARCH:
  1. List the catalog (a failure here is fatal)
  2. Fan Aggregate out over every product, bounded by Config.Concurrency
  3. Barrier; a product whose fetch failed is kept, degraded to no_inventory
  4. Convert rates from the base currency into the requested one

DETAILED PRICING (room selection, promo changes):
  inventory (fatal on fetch error) -> per-night rate plans -> best rate
  replaces the selling rate -> subtotal -> promo evaluation -> quote

LAST REQUEST WINS:
  Every search and pricing request goes through the session's Sequencer.
  A newer request cancels the older one, and a result computed for a stale
  sequence number is dropped with ErrSuperseded.

SEE ALSO:
  - session.go: Pure transitions (guest info, back, restart)
  - pricing/: The components this engine composes
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/pentouz/rate-engine/pricing"
)

// Confirmer books the stay with the property's reservation system and
// returns its confirmation reference.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmationRequest) (string, error)
}

// ConfirmationRequest is everything the reservation system needs.
type ConfirmationRequest struct {
	SessionID string               `json:"sessionId"`
	ProductID pricing.ProductID    `json:"productId"`
	Stay      pricing.StayRange    `json:"stay"`
	Occupancy pricing.Occupancy    `json:"occupancy"`
	Guest     GuestInfo            `json:"guest"`
	GuestID   string               `json:"guestId,omitempty"`
	PromoCode string               `json:"promoCode,omitempty"`
	Quote     pricing.PricingQuote `json:"quote"`
}

// Config holds the engine's tunables.
type Config struct {
	TaxRate       decimal.Decimal // applied as given, zero means tax exempt
	BaseCurrency  pricing.Currency // currency of inventory rates and product base rates
	Concurrency   int              // max parallel product lookups, <= 0 means unbounded
	SearchTimeout time.Duration    // 0 disables
	Clock         func() time.Time
}

// Deps are the engine's collaborators. RatePlans, Promos, Converter and
// Confirmer are optional.
type Deps struct {
	Catalog   pricing.Catalog
	Inventory pricing.InventoryProvider
	RatePlans pricing.RatePlanProvider
	Promos    pricing.PromoRegistry
	Converter pricing.CurrencyConverter
	Confirmer Confirmer
}

// Engine runs searches and prices stays.
type Engine struct {
	catalog    pricing.Catalog
	aggregator *pricing.InventoryAggregator
	ratePlans  pricing.RatePlanProvider
	resolver   *pricing.RatePlanResolver
	promos     pricing.PromoRegistry
	evaluator  *pricing.PromoEvaluator
	calculator *pricing.ChargeCalculator
	converter  pricing.CurrencyConverter
	confirmer  Confirmer
	cfg        Config
}

func NewEngine(deps Deps, cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Engine{
		catalog:    deps.Catalog,
		aggregator: pricing.NewInventoryAggregator(deps.Inventory),
		ratePlans:  deps.RatePlans,
		resolver:   pricing.NewRatePlanResolver(deps.Converter),
		promos:     deps.Promos,
		evaluator:  pricing.NewPromoEvaluator(),
		calculator: pricing.NewChargeCalculator(),
		converter:  deps.Converter,
		confirmer:  deps.Confirmer,
		cfg:        cfg,
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) currency(c pricing.Currency) pricing.Currency {
	if c == "" {
		return e.cfg.BaseCurrency
	}
	return c
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// Availability computes every catalog product's availability for criteria,
// in catalog order. It fails only on an invalid range, an unconvertible
// currency, a catalog failure or cancellation. A product whose inventory
// could not be fetched is returned degraded.
func (e *Engine) Availability(ctx context.Context, criteria SearchCriteria) ([]pricing.AvailabilityResult, error) {
	if err := criteria.Stay.Validate(); err != nil {
		return nil, err
	}
	currency := e.currency(criteria.Currency)
	if err := e.checkCurrency(currency); err != nil {
		return nil, err
	}

	if e.cfg.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.SearchTimeout)
		defer cancel()
	}

	products, err := e.catalog.Products(ctx)
	if err != nil {
		return nil, &pricing.ExternalFetchError{Op: "list products", Err: err}
	}

	results := make([]pricing.AvailabilityResult, len(products))
	g, gctx := errgroup.WithContext(ctx)
	if e.cfg.Concurrency > 0 {
		g.SetLimit(e.cfg.Concurrency)
	}
	for i, product := range products {
		i, product := i, product
		g.Go(func() error {
			res, err := e.aggregator.Aggregate(gctx, product, criteria.Stay)
			if err != nil {
				return err
			}
			if ferr := res.Err(); ferr != nil {
				log.Warn().Err(ferr).Str("product", string(product.ID)).Msg("inventory unavailable, product degraded")
			}
			results[i] = e.convertResult(res, currency)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// a cancelled search must not be mistaken for a fully degraded one
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

func (e *Engine) checkCurrency(currency pricing.Currency) error {
	if currency == e.cfg.BaseCurrency || e.cfg.BaseCurrency == "" {
		return nil
	}
	if e.converter == nil {
		return fmt.Errorf("convert %s to %s: %w", e.cfg.BaseCurrency, currency, pricing.ErrUnknownCurrencyPair)
	}
	if _, err := e.converter.Convert(1, e.cfg.BaseCurrency, currency); err != nil {
		return err
	}
	return nil
}

// convertResult expresses a result's rates in currency. checkCurrency has
// already proven the pair convertible.
func (e *Engine) convertResult(res pricing.AvailabilityResult, currency pricing.Currency) pricing.AvailabilityResult {
	if currency == e.cfg.BaseCurrency || e.cfg.BaseCurrency == "" {
		return res
	}
	conv := func(m pricing.Money) pricing.Money {
		out, err := e.converter.Convert(m, e.cfg.BaseCurrency, currency)
		if err != nil {
			return m
		}
		return out
	}

	res.AverageRate = conv(res.AverageRate)
	res.ExtraAdultRate = conv(res.ExtraAdultRate)
	res.ExtraChildRate = conv(res.ExtraChildRate)
	res.Product.BaseRate = conv(res.Product.BaseRate)
	nightly := make([]pricing.NightlyRate, len(res.NightlyRates))
	for i, nr := range res.NightlyRates {
		nr.Rate = conv(nr.Rate)
		nightly[i] = nr
	}
	res.NightlyRates = nightly
	return res
}

// =============================================================================
// SESSION TRANSITIONS
// =============================================================================

// Search runs availability for criteria and moves SEARCHING to
// ROOMS_LISTED. At least one product must be able to host the requested
// rooms, otherwise a NoAvailabilityError lists every product's reason.
func (e *Engine) Search(ctx context.Context, s Session, criteria SearchCriteria) (Session, error) {
	if err := s.require("search", StateSearching); err != nil {
		return s, err
	}
	criteria.Currency = e.currency(criteria.Currency)

	ctx, seq, release := s.seq.Begin(ctx)
	defer release()

	results, err := e.Availability(ctx, criteria)
	if !s.seq.IsCurrent(seq) {
		return s, ErrSuperseded
	}
	if err != nil {
		return s, fmt.Errorf("search: %w", err)
	}

	rooms := criteria.Occupancy.RoomsCount()
	if noRooms := noAvailability(criteria, rooms, results); noRooms != nil {
		return s, noRooms
	}

	next := s.clone()
	next.Seq = seq
	next.State = StateRoomsListed
	next.Criteria = criteria
	next.Candidates = results
	return next, nil
}

func noAvailability(criteria SearchCriteria, rooms int, results []pricing.AvailabilityResult) *NoAvailabilityError {
	noRooms := &NoAvailabilityError{Stay: criteria.Stay, Rooms: rooms}
	for _, r := range results {
		if r.CanHost(rooms) {
			return nil
		}
		reason := r.Reason
		if reason == pricing.ReasonNone {
			reason = pricing.ReasonNotEnoughUnits
		}
		noRooms.Products = append(noRooms.Products, ProductAvailability{
			ProductID:      r.Product.ID,
			AvailableUnits: r.AvailableUnits,
			Reason:         reason,
		})
	}
	return noRooms
}

// SelectRoom prices productID in detail and moves ROOMS_LISTED to
// ROOM_SELECTED.
func (e *Engine) SelectRoom(ctx context.Context, s Session, productID pricing.ProductID) (Session, error) {
	if err := s.require("select a room", StateRoomsListed); err != nil {
		return s, err
	}
	candidate, ok := s.Candidate(productID)
	if !ok {
		return s, fmt.Errorf("select room %s: %w", productID, pricing.ErrProductNotFound)
	}
	rooms := s.Criteria.Occupancy.RoomsCount()
	if !candidate.CanHost(rooms) {
		return s, &pricing.InsufficientAvailabilityError{
			ProductID: productID,
			Requested: rooms,
			Available: candidate.AvailableUnits,
			Reason:    candidate.Reason,
		}
	}

	ctx, seq, release := s.seq.Begin(ctx)
	defer release()

	priced, err := e.price(ctx, s.Criteria, candidate.Product, nil, s.GuestProfile)
	if !s.seq.IsCurrent(seq) {
		return s, ErrSuperseded
	}
	if err != nil {
		return s, fmt.Errorf("select room %s: %w", productID, err)
	}

	next := s.clone()
	next.Seq = seq
	next.State = StateRoomSelected
	next.Selected = &priced.Availability
	next.Promo = nil
	next.PromoResult = nil
	next.Quote = &priced.Quote
	return next, nil
}

// ApplyPromo looks up code, evaluates it against the selected room and
// recomputes the quote with the discount. A rejected promo leaves the
// session untouched and returns InvalidPromoError with the failing check.
func (e *Engine) ApplyPromo(ctx context.Context, s Session, code string, profile GuestProfile) (Session, error) {
	if err := s.require("apply a promo code", StateRoomSelected, StateGuestInfo); err != nil {
		return s, err
	}
	if s.Selected == nil {
		return s, ErrQuoteMissing
	}

	ctx, seq, release := s.seq.Begin(ctx)
	defer release()

	promo, err := e.lookupPromo(ctx, code)
	if err == nil {
		err = pricing.CheckCombinable(s.Promo, promo)
	}
	var priced Priced
	if err == nil {
		priced, err = e.price(ctx, s.Criteria, s.Selected.Product, &promo, profile)
	}
	if !s.seq.IsCurrent(seq) {
		return s, ErrSuperseded
	}
	if err != nil {
		return s, fmt.Errorf("apply promo %s: %w", pricing.NormalizeCode(code), err)
	}

	next := s.clone()
	next.Seq = seq
	next.Selected = &priced.Availability
	next.Promo = &promo
	next.PromoResult = priced.Promo
	next.GuestProfile = profile
	next.Quote = &priced.Quote
	return next, nil
}

// RemovePromo drops the applied promo and recomputes the quote.
func (e *Engine) RemovePromo(ctx context.Context, s Session) (Session, error) {
	if err := s.require("remove a promo code", StateRoomSelected, StateGuestInfo); err != nil {
		return s, err
	}
	if s.Selected == nil {
		return s, ErrQuoteMissing
	}

	ctx, seq, release := s.seq.Begin(ctx)
	defer release()

	priced, err := e.price(ctx, s.Criteria, s.Selected.Product, nil, s.GuestProfile)
	if !s.seq.IsCurrent(seq) {
		return s, ErrSuperseded
	}
	if err != nil {
		return s, fmt.Errorf("remove promo: %w", err)
	}

	next := s.clone()
	next.Seq = seq
	next.Selected = &priced.Availability
	next.Promo = nil
	next.PromoResult = nil
	next.Quote = &priced.Quote
	return next, nil
}

// Confirm hands the booking to the Confirmer and moves CONFIRMING to
// CONFIRMED. A failed confirmation leaves the session in CONFIRMING.
func (e *Engine) Confirm(ctx context.Context, s Session) (Session, error) {
	if err := s.require("confirm", StateConfirming); err != nil {
		return s, err
	}
	if e.confirmer == nil {
		return s, ErrNoConfirmer
	}
	if s.Selected == nil || s.Quote == nil {
		return s, ErrQuoteMissing
	}

	req := ConfirmationRequest{
		SessionID: s.ID,
		ProductID: s.Selected.Product.ID,
		Stay:      s.Criteria.Stay,
		Occupancy: s.Criteria.Occupancy,
		Guest:     s.Guest,
		GuestID:   s.GuestProfile.GuestID,
		Quote:     *s.Quote,
	}
	if s.PromoResult != nil && s.PromoResult.Applicable {
		req.PromoCode = s.PromoResult.Code
	}

	ref, err := e.confirmer.Confirm(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("session", s.ID).Msg("booking confirmation failed")
		return s, fmt.Errorf("confirm booking: %w", err)
	}

	next := s.clone()
	next.State = StateConfirmed
	next.ConfirmationRef = ref
	log.Info().Str("session", s.ID).Str("ref", ref).Int64("total", int64(s.Quote.TotalAmount)).Msg("booking confirmed")
	return next, nil
}

// =============================================================================
// STATELESS PRICING
// =============================================================================

// QuoteRequest prices one product outside a session.
type QuoteRequest struct {
	Criteria  SearchCriteria
	ProductID pricing.ProductID
	PromoCode string
	Profile   GuestProfile
}

// Priced is the outcome of detailed pricing.
type Priced struct {
	Availability pricing.AvailabilityResult
	Quote        pricing.PricingQuote
	Promo        *pricing.PromoResult
}

// Quote prices a product without a session, as the API's quote endpoint
// does. The same rules as SelectRoom plus ApplyPromo apply.
func (e *Engine) Quote(ctx context.Context, req QuoteRequest) (Priced, error) {
	if err := req.Criteria.Stay.Validate(); err != nil {
		return Priced{}, err
	}
	req.Criteria.Currency = e.currency(req.Criteria.Currency)
	if err := e.checkCurrency(req.Criteria.Currency); err != nil {
		return Priced{}, err
	}

	product, err := e.findProduct(ctx, req.ProductID)
	if err != nil {
		return Priced{}, err
	}

	var promo *pricing.PromoCode
	if req.PromoCode != "" {
		p, err := e.lookupPromo(ctx, req.PromoCode)
		if err != nil {
			return Priced{}, err
		}
		promo = &p
	}
	return e.price(ctx, req.Criteria, product, promo, req.Profile)
}

// EvaluatePromo looks code up and evaluates it against pc.
func (e *Engine) EvaluatePromo(ctx context.Context, code string, pc pricing.PromoContext) (pricing.PromoResult, error) {
	promo, err := e.lookupPromo(ctx, code)
	if err != nil {
		return pricing.PromoResult{}, err
	}
	if pc.Now.IsZero() {
		pc.Now = e.cfg.Clock()
	}
	return e.evaluator.Evaluate(promo, pc), nil
}

func (e *Engine) findProduct(ctx context.Context, id pricing.ProductID) (pricing.RoomProduct, error) {
	products, err := e.catalog.Products(ctx)
	if err != nil {
		return pricing.RoomProduct{}, &pricing.ExternalFetchError{Op: "list products", Err: err}
	}
	for _, p := range products {
		if p.ID == id {
			return p, nil
		}
	}
	return pricing.RoomProduct{}, fmt.Errorf("product %s: %w", id, pricing.ErrProductNotFound)
}

func (e *Engine) lookupPromo(ctx context.Context, code string) (pricing.PromoCode, error) {
	if e.promos == nil {
		return pricing.PromoCode{}, fmt.Errorf("promo %s: %w", pricing.NormalizeCode(code), pricing.ErrPromoNotFound)
	}
	promo, err := e.promos.Lookup(ctx, pricing.NormalizeCode(code))
	switch {
	case err == nil:
		return promo, nil
	case errors.Is(err, pricing.ErrPromoNotFound):
		return pricing.PromoCode{}, err
	default:
		return pricing.PromoCode{}, &pricing.ExternalFetchError{Op: "lookup promo", Err: err}
	}
}

// price runs detailed pricing for one product. Unlike a search, any fetch
// failure is fatal here.
func (e *Engine) price(ctx context.Context, criteria SearchCriteria, product pricing.RoomProduct, promo *pricing.PromoCode, profile GuestProfile) (Priced, error) {
	currency := e.currency(criteria.Currency)
	rooms := criteria.Occupancy.RoomsCount()

	res, err := e.aggregator.Aggregate(ctx, product, criteria.Stay)
	if err != nil {
		return Priced{}, err
	}
	if ferr := res.Err(); ferr != nil {
		return Priced{}, ferr
	}
	if !res.CanHost(rooms) {
		return Priced{}, &pricing.InsufficientAvailabilityError{
			ProductID: product.ID,
			Requested: rooms,
			Available: res.AvailableUnits,
			Reason:    res.Reason,
		}
	}
	res = e.convertResult(res, currency)

	nightly, err := e.resolveNightly(ctx, product, res.NightlyRates, currency)
	if err != nil {
		return Priced{}, err
	}
	res.NightlyRates = nightly

	in := pricing.ChargeInput{
		ProductID:      product.ID,
		Currency:       currency,
		NightlyRates:   nightly,
		Occupancy:      criteria.Occupancy,
		MaxOccupancy:   product.MaxOccupancy,
		ExtraAdultRate: res.ExtraAdultRate,
		ExtraChildRate: res.ExtraChildRate,
		TaxRate:        e.cfg.TaxRate,
	}

	var promoResult *pricing.PromoResult
	if promo != nil {
		pr := e.evaluator.Evaluate(*promo, pricing.PromoContext{
			Now:              e.cfg.Clock(),
			Subtotal:         e.calculator.SubtotalBeforeDiscount(in),
			Nights:           criteria.Stay.Nights(),
			RoomType:         product.Code,
			IsFirstTimeGuest: profile.IsFirstTimeGuest,
			GuestUsageCount:  profile.UsageCount,
		})
		if err := pr.Err(); err != nil {
			return Priced{}, err
		}
		promoResult = &pr
		in.Promo = promoResult
	}

	return Priced{
		Availability: res,
		Quote:        e.calculator.Compute(in),
		Promo:        promoResult,
	}, nil
}

// resolveNightly replaces each night's selling rate with the best rate
// plan rate, when one applies.
func (e *Engine) resolveNightly(ctx context.Context, product pricing.RoomProduct, selling []pricing.NightlyRate, currency pricing.Currency) ([]pricing.NightlyRate, error) {
	nightly := make([]pricing.NightlyRate, len(selling))
	copy(nightly, selling)
	if e.ratePlans == nil {
		return nightly, nil
	}

	nights := len(selling)
	for i, nr := range selling {
		plans, err := e.ratePlans.GetRatePlans(ctx, product.ID, nr.Date, currency)
		if err != nil {
			return nil, &pricing.ExternalFetchError{Op: "get rate plans", ProductID: product.ID, Err: err}
		}
		best, ok := e.resolver.Resolve(product, pricing.FilterForStay(plans, nights), nr.Date, currency)
		if !ok {
			continue
		}
		nightly[i] = pricing.NightlyRate{Date: nr.Date, Rate: best.Rate, RatePlanID: best.Plan.ID}
	}
	return nightly, nil
}
