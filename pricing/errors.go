/*
errors.go - Error taxonomy of the pricing engine

PURPOSE:
  All engine error types in one place. Sentinels work with errors.Is,
  structured errors carry the detail a caller needs to explain the failure
  to a guest (which promo condition failed, why a room is unavailable).

ERROR CATEGORIES:
  1. Validation errors - bad dates, rejected promo. Recovered locally.
  2. Capacity errors - not enough units for the requested rooms.
  3. Fetch errors - a collaborator failed. Degrades one product during a
     search, fatal when pricing a selected product.

SEE ALSO:
  - booking/errors.go: Session-level errors (guest fields, transitions)
*/
package pricing

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidRange             = errors.New("invalid stay range")
	ErrInsufficientAvailability = errors.New("insufficient availability")
	ErrInvalidPromo             = errors.New("promo code not applicable")
	ErrUnsupportedPromoType     = errors.New("unsupported promo type")
	ErrExternalFetch            = errors.New("external fetch failed")
	ErrPromoNotFound            = errors.New("promo code not found")
	ErrProductNotFound          = errors.New("room product not found")
	ErrInventoryMismatch        = errors.New("inventory does not cover every night of the stay")
	ErrUnknownCurrencyPair      = errors.New("no conversion rate for currency pair")

	// ErrPromoStackingUnsupported is returned when two combinable promos
	// would have to be stacked. Stacking order is not defined yet.
	ErrPromoStackingUnsupported = errors.New("stacking multiple promo codes is not supported")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRangeError is returned when checkout is not strictly after check-in
// or the stay is longer than MaxStayNights.
type InvalidRangeError struct {
	CheckIn  Date
	CheckOut Date
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid stay range: check-in %s, check-out %s (need 1 to %d nights)",
		e.CheckIn, e.CheckOut, MaxStayNights)
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// InsufficientAvailabilityError reports a product that cannot host the
// requested number of rooms.
type InsufficientAvailabilityError struct {
	ProductID ProductID
	Requested int
	Available int
	Reason    UnavailableReason
}

func (e *InsufficientAvailabilityError) Error() string {
	msg := fmt.Sprintf("product %s: requested %d rooms, %d available", e.ProductID, e.Requested, e.Available)
	if e.Reason != "" {
		msg += " (" + string(e.Reason) + ")"
	}
	return msg
}

func (e *InsufficientAvailabilityError) Unwrap() error { return ErrInsufficientAvailability }

// InvalidPromoError names the exact condition a promo failed.
type InvalidPromoError struct {
	Code   string
	Reason PromoRejectReason
}

func (e *InvalidPromoError) Error() string {
	return fmt.Sprintf("promo %s rejected: %s", e.Code, e.Reason)
}

func (e *InvalidPromoError) Unwrap() error { return ErrInvalidPromo }

// UnsupportedPromoTypeError is returned for discount types other than
// percentage and fixed_amount.
type UnsupportedPromoTypeError struct {
	Code string
	Type DiscountType
}

func (e *UnsupportedPromoTypeError) Error() string {
	return fmt.Sprintf("promo %s: unsupported discount type %q", e.Code, e.Type)
}

func (e *UnsupportedPromoTypeError) Unwrap() error { return ErrUnsupportedPromoType }

// ExternalFetchError wraps a collaborator failure. It matches both
// ErrExternalFetch and the underlying cause.
type ExternalFetchError struct {
	Op        string
	ProductID ProductID
	Err       error
}

func (e *ExternalFetchError) Error() string {
	var b strings.Builder
	b.WriteString("external fetch failed: ")
	b.WriteString(e.Op)
	if e.ProductID != "" {
		b.WriteString(" for product ")
		b.WriteString(string(e.ProductID))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ExternalFetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExternalFetch}
	}
	return []error{ErrExternalFetch, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's input and
// can be shown to the guest as-is.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInsufficientAvailability) ||
		errors.Is(err, ErrInvalidPromo) ||
		errors.Is(err, ErrUnsupportedPromoType) ||
		errors.Is(err, ErrPromoStackingUnsupported)
}

// IsNotFound returns true if the error indicates missing reference data.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPromoNotFound) || errors.Is(err, ErrProductNotFound)
}
