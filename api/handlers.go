/*
handlers.go - HTTP API handlers for the availability and pricing engine

PURPOSE:
  Exposes the pricing engine and its reference data over REST. Handles HTTP
  request/response, JSON serialization, and delegates to the engine. The API
  is stateless: booking sessions live with the caller, every request carries
  the full stay and occupancy.

ENDPOINTS:
  Catalog:
    GET    /api/products                   List room products
    POST   /api/products                   Create or replace a product
    DELETE /api/products/{id}              Delete a product and its inventory
    PUT    /api/inventory                  Batch upsert per-night inventory

  Rate plans:
    GET    /api/rate-plans                 List plans (authored JSON)
    POST   /api/rate-plans                 Create or replace a plan

  Promos:
    GET    /api/promos                     List promos (authored JSON)
    GET    /api/promos/{code}              Get a promo (authored JSON)
    POST   /api/promos                     Create or replace a promo
    POST   /api/promos/{code}/evaluate     Evaluate against a booking context
    POST   /api/promos/{code}/redemptions  Record a confirmed redemption

  Pricing:
    POST   /api/availability               Availability of every product
    POST   /api/quotes                     Itemized quote for one product

  Scenarios:
    GET    /api/scenarios                  List demo scenarios
    POST   /api/scenarios/load             Load a demo scenario

REQUEST FLOW:
  1. Decode the body
  2. Validate it (go-playground/validator)
  3. Call the engine or the store
  4. Serialize response
  5. Map errors to a status and a machine-readable reason

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid dates, unknown currency
  - 404: Product or promo not found
  - 409: Not enough rooms for the stay
  - 422: Promo not applicable (reason names the failed condition)
  - 502: A collaborator failed
  - 504: Search timed out
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. Write endpoints are meant for a
  trusted back office.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/pentouz/rate-engine/booking"
	"github.com/pentouz/rate-engine/factory"
	"github.com/pentouz/rate-engine/logger"
	"github.com/pentouz/rate-engine/pricing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the reference data the API reads and writes. Both the in-memory
// and the SQLite stores satisfy it.
type Store interface {
	pricing.Catalog
	pricing.InventoryProvider
	pricing.RatePlanProvider
	pricing.PromoRegistry

	SaveProduct(ctx context.Context, p pricing.RoomProduct) error
	DeleteProduct(ctx context.Context, id pricing.ProductID) error
	SaveInventory(ctx context.Context, records []pricing.InventoryRecord) error
	SaveRatePlan(ctx context.Context, plan pricing.RatePlan) error
	ListRatePlans(ctx context.Context) ([]pricing.RatePlan, error)
	SavePromo(ctx context.Context, promo pricing.PromoCode) error
	ListPromos(ctx context.Context) ([]pricing.PromoCode, error)
	RedemptionCount(ctx context.Context, code string, guestID string) (int, error)
	Reset(ctx context.Context) error
}

// InventoryInvalidator drops cached inventory after a write.
type InventoryInvalidator interface {
	Invalidate(ctx context.Context, productID pricing.ProductID) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store           Store
	Engine          *booking.Engine
	PromoFactory    *factory.PromoFactory
	RatePlanFactory *factory.RatePlanFactory
	InventoryCache  InventoryInvalidator // optional
	validate        *validator.Validate

	mu              sync.RWMutex
	currentScenario string
}

// NewHandler creates a new handler. currencyExponent is the number of minor
// digits authored amounts are converted with.
func NewHandler(store Store, engine *booking.Engine, currencyExponent int32) *Handler {
	return &Handler{
		Store:           store,
		Engine:          engine,
		PromoFactory:    factory.NewPromoFactory(currencyExponent),
		RatePlanFactory: factory.NewRatePlanFactory(currencyExponent),
		validate:        newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Liveness reports the process is up.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListProducts returns all room products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Store.Products(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list products", err)
		return
	}
	if products == nil {
		products = []pricing.RoomProduct{}
	}
	writeJSON(w, http.StatusOK, products)
}

// CreateProduct creates or replaces a room product.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	product := req.toProduct()
	if err := h.Store.SaveProduct(r.Context(), product); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save product", err)
		return
	}

	log.Info().Str("product", string(product.ID)).Str("code", product.Code).Msg("product saved")
	writeJSON(w, http.StatusCreated, product)
}

// DeleteProduct removes a product and its inventory.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := pricing.ProductID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteProduct(ctx, id); err != nil {
		writeEngineError(w, err)
		return
	}
	if h.InventoryCache != nil {
		if err := h.InventoryCache.Invalidate(ctx, id); err != nil {
			log.Warn().Err(err).Str("product", string(id)).Msg("failed to invalidate inventory cache")
		}
	}

	log.Info().Str("product", string(id)).Msg("product deleted")
	w.WriteHeader(http.StatusNoContent)
}

// UpsertInventory writes a batch of per-night records and drops the cached
// ranges of every product touched.
func (h *Handler) UpsertInventory(w http.ResponseWriter, r *http.Request) {
	var req UpsertInventoryRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	records := make([]pricing.InventoryRecord, 0, len(req.Records))
	touched := make(map[pricing.ProductID]struct{})
	for i, dto := range req.Records {
		rec, err := dto.toRecord()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid record %d", i), err)
			return
		}
		records = append(records, rec)
		touched[rec.ProductID] = struct{}{}
	}

	ctx := r.Context()
	if err := h.Store.SaveInventory(ctx, records); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save inventory", err)
		return
	}

	products := make([]string, 0, len(touched))
	for id := range touched {
		products = append(products, string(id))
		if h.InventoryCache != nil {
			if err := h.InventoryCache.Invalidate(ctx, id); err != nil {
				log.Warn().Err(err).Str("product", string(id)).Msg("failed to invalidate inventory cache")
			}
		}
	}
	sort.Strings(products)

	writeJSON(w, http.StatusOK, UpsertInventoryResponse{Saved: len(records), Products: products})
}

// =============================================================================
// RATE PLAN HANDLERS
// =============================================================================

// ListRatePlans returns all rate plans as authored JSON.
func (h *Handler) ListRatePlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Store.ListRatePlans(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rate plans", err)
		return
	}

	dtos := make([]factory.RatePlanJSON, len(plans))
	for i, p := range plans {
		dtos[i] = h.RatePlanFactory.ToJSON(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRatePlan parses an authored plan and stores it.
func (h *Handler) CreateRatePlan(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	plan, err := h.RatePlanFactory.ParseRatePlan(string(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rate plan", err)
		return
	}
	if err := h.Store.SaveRatePlan(r.Context(), plan); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rate plan", err)
		return
	}

	log.Info().Str("rate_plan", plan.ID).Int("rooms", len(plan.BaseRates)).Msg("rate plan saved")
	writeJSON(w, http.StatusCreated, h.RatePlanFactory.ToJSON(plan))
}

// =============================================================================
// PROMO HANDLERS
// =============================================================================

// ListPromos returns every promo as authored JSON.
func (h *Handler) ListPromos(w http.ResponseWriter, r *http.Request) {
	promos, err := h.Store.ListPromos(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list promos", err)
		return
	}

	dtos := make([]factory.PromoJSON, len(promos))
	for i, p := range promos {
		dtos[i] = h.PromoFactory.ToJSON(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPromo returns one promo as authored JSON, with its live usage count.
func (h *Handler) GetPromo(w http.ResponseWriter, r *http.Request) {
	promo, err := h.Store.Lookup(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.PromoFactory.ToJSON(promo))
}

// CreatePromo parses an authored promo and stores it.
func (h *Handler) CreatePromo(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	promo, err := h.PromoFactory.ParsePromo(string(body))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := h.Store.SavePromo(r.Context(), promo); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save promo", err)
		return
	}

	log.Info().Str("promo", promo.Code).Str("type", string(promo.Type)).Msg("promo saved")
	writeJSON(w, http.StatusCreated, h.PromoFactory.ToJSON(promo))
}

// EvaluatePromo tests a promo against a booking context. A rejected promo
// is a 200 with applicable=false; only lookup failures are errors.
func (h *Handler) EvaluatePromo(w http.ResponseWriter, r *http.Request) {
	var req EvaluatePromoRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	code := chi.URLParam(r, "code")
	usage, err := h.guestUsage(ctx, code, req.GuestID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	result, err := h.Engine.EvaluatePromo(ctx, code, pricing.PromoContext{
		Subtotal:         pricing.Money(req.Subtotal),
		Nights:           req.Nights,
		RoomType:         req.RoomType,
		IsFirstTimeGuest: req.IsFirstTimeGuest,
		GuestUsageCount:  usage,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RecordRedemption is called by the reservation system after a booking
// that used the promo is confirmed.
func (h *Handler) RecordRedemption(w http.ResponseWriter, r *http.Request) {
	var req RedemptionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	code := pricing.NormalizeCode(chi.URLParam(r, "code"))
	if err := h.Store.RecordRedemption(ctx, code, req.GuestID); err != nil {
		writeEngineError(w, err)
		return
	}

	promo, err := h.Store.Lookup(ctx, code)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	count, err := h.Store.RedemptionCount(ctx, code, req.GuestID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count redemptions", err)
		return
	}

	log.Info().Str("promo", code).Str("guest", req.GuestID).Int("usage", promo.Usage.CurrentUsage).Msg("promo redeemed")
	writeJSON(w, http.StatusCreated, RedemptionResponse{
		Code:             code,
		GuestID:          req.GuestID,
		CurrentUsage:     promo.Usage.CurrentUsage,
		GuestRedemptions: count,
	})
}

func (h *Handler) guestUsage(ctx context.Context, code, guestID string) (int, error) {
	if guestID == "" || code == "" {
		return 0, nil
	}
	n, err := h.Store.RedemptionCount(ctx, code, guestID)
	if err != nil {
		return 0, &pricing.ExternalFetchError{Op: "count redemptions", Err: err}
	}
	return n, nil
}

// =============================================================================
// PRICING HANDLERS
// =============================================================================

// Availability lists every product with its availability for the stay.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	criteria, err := req.criteria()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	results, err := h.Engine.Availability(r.Context(), criteria)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	rooms := criteria.Occupancy.RoomsCount()
	resp := AvailabilityResponse{
		Stay:     criteria.Stay,
		Nights:   criteria.Stay.Nights(),
		Rooms:    rooms,
		Currency: criteria.Currency,
		Products: make([]ProductAvailabilityDTO, len(results)),
	}
	if resp.Currency == "" {
		resp.Currency = h.Engine.Config().BaseCurrency
	}
	for i, res := range results {
		ok := res.CanHost(rooms)
		if !ok && res.Reason == pricing.ReasonNone {
			res.Reason = pricing.ReasonNotEnoughUnits
		}
		if ok {
			resp.Available++
		}
		resp.Products[i] = ProductAvailabilityDTO{AvailabilityResult: res, Available: ok}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Quote prices one product for the stay, optionally with a promo code.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequestDTO
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	criteria, err := req.criteria()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	ctx := r.Context()
	usage, err := h.guestUsage(ctx, req.PromoCode, req.GuestID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	priced, err := h.Engine.Quote(ctx, booking.QuoteRequest{
		Criteria:  criteria,
		ProductID: pricing.ProductID(req.ProductID),
		PromoCode: req.PromoCode,
		Profile: booking.GuestProfile{
			GuestID:          req.GuestID,
			IsFirstTimeGuest: req.IsFirstTimeGuest,
			UsageCount:       usage,
		},
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, QuoteResponse{
		Quote:        priced.Quote,
		Availability: priced.Availability,
		Promo:        priced.Promo,
	})
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// decodeAndValidate decodes the JSON body into dst and validates it,
// writing a 400 and returning false on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}

	err := h.validate.Struct(dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe.Namespace())] = fe.Tag()
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:  "Validation failed",
		Reason: "validation_failed",
		Fields: fields,
	})
	return false
}

// fieldPath turns a validator namespace into the JSON path of the field:
// the root struct and the embedded StayRequest are not part of the body.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}
	return strings.TrimPrefix(ns, "StayRequest.")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine and store errors to a status and reason.
func writeEngineError(w http.ResponseWriter, err error) {
	var (
		rangeErr       *pricing.InvalidRangeError
		availErr       *pricing.InsufficientAvailabilityError
		promoErr       *pricing.InvalidPromoError
		unsupportedErr *pricing.UnsupportedPromoTypeError
		fetchErr       *pricing.ExternalFetchError
	)

	resp := ErrorResponse{Details: err.Error()}
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &rangeErr), errors.Is(err, pricing.ErrInvalidRange):
		status, resp.Error, resp.Reason = http.StatusBadRequest, "Invalid stay range", "invalid_range"
	case errors.Is(err, pricing.ErrUnknownCurrencyPair):
		status, resp.Error, resp.Reason = http.StatusBadRequest, "Unsupported currency", "unknown_currency_pair"
	case errors.Is(err, factory.ErrInvalidDefinition):
		status, resp.Error, resp.Reason = http.StatusBadRequest, "Invalid definition", "invalid_definition"
	case errors.Is(err, pricing.ErrProductNotFound):
		status, resp.Error, resp.Reason = http.StatusNotFound, "Product not found", "product_not_found"
	case errors.Is(err, pricing.ErrPromoNotFound):
		status, resp.Error, resp.Reason = http.StatusNotFound, "Promo code not found", "promo_not_found"
	case errors.As(err, &availErr):
		status, resp.Error, resp.Reason = http.StatusConflict, "Insufficient availability", string(availErr.Reason)
		if resp.Reason == "" {
			resp.Reason = string(pricing.ReasonNotEnoughUnits)
		}
	case errors.As(err, &unsupportedErr):
		status, resp.Error, resp.Reason = http.StatusUnprocessableEntity, "Unsupported promo type", string(pricing.PromoUnsupportedType)
	case errors.As(err, &promoErr):
		status, resp.Error, resp.Reason = http.StatusUnprocessableEntity, "Promo code not applicable", string(promoErr.Reason)
	case errors.Is(err, pricing.ErrPromoStackingUnsupported):
		status, resp.Error, resp.Reason = http.StatusUnprocessableEntity, "Promo codes cannot be combined", "stacking_unsupported"
	case errors.Is(err, context.DeadlineExceeded):
		status, resp.Error, resp.Reason = http.StatusGatewayTimeout, "Search timed out", "timeout"
	case errors.As(err, &fetchErr):
		status, resp.Error, resp.Reason = http.StatusBadGateway, "Upstream data unavailable", "external_fetch"
	default:
		resp.Error = "Internal error"
		logger.ErrorWithStack(err)
	}

	writeJSON(w, status, resp)
}
