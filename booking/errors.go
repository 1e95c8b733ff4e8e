package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pentouz/rate-engine/pricing"
)

var (
	// ErrSuperseded is returned when a newer request on the same session
	// started while this one was in flight. Its results were discarded.
	ErrSuperseded = errors.New("request superseded by a newer one")

	ErrInvalidTransition = errors.New("invalid state transition")
	ErrMissingGuestField = errors.New("missing or invalid guest field")
	ErrSessionNotStarted = errors.New("session not started: use NewSession")
	ErrQuoteMissing      = errors.New("no quote computed for the selected room")
	ErrNoConfirmer       = errors.New("no booking confirmer configured")
)

// InvalidTransitionError is returned when an operation is not allowed in
// the session's current state.
type InvalidTransitionError struct {
	Op   string
	From State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s in state %s", e.Op, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// MissingGuestFieldError lists every guest field that is empty or malformed.
type MissingGuestFieldError struct {
	Fields map[string]string // field -> problem ("required", "email")
}

func (e *MissingGuestFieldError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f, problem := range e.Fields {
		names = append(names, f+" ("+problem+")")
	}
	sort.Strings(names)
	return "guest details incomplete: " + strings.Join(names, ", ")
}

func (e *MissingGuestFieldError) Unwrap() error { return ErrMissingGuestField }

// ProductAvailability is one product's line in a NoAvailabilityError.
type ProductAvailability struct {
	ProductID      pricing.ProductID         `json:"productId"`
	AvailableUnits int                       `json:"availableUnits"`
	Reason         pricing.UnavailableReason `json:"reason"`
}

// NoAvailabilityError is returned by a search where no product can host
// the requested rooms. It keeps each product's reason so the guest can be
// told whether the dates are closed, sold out or simply not loaded.
type NoAvailabilityError struct {
	Stay     pricing.StayRange
	Rooms    int
	Products []ProductAvailability
}

func (e *NoAvailabilityError) Error() string {
	return fmt.Sprintf("no room product available for %d room(s) over %s (%s)", e.Rooms, e.Stay, e.Reason())
}

func (e *NoAvailabilityError) Unwrap() error { return pricing.ErrInsufficientAvailability }

// Reason summarizes the products' reasons: the shared reason when every
// product failed the same way, the most frequent one otherwise.
func (e *NoAvailabilityError) Reason() pricing.UnavailableReason {
	if len(e.Products) == 0 {
		return pricing.ReasonNoInventory
	}
	counts := make(map[pricing.UnavailableReason]int)
	for _, p := range e.Products {
		counts[p.Reason]++
	}
	var (
		best  pricing.UnavailableReason
		bestN int
	)
	for r, n := range counts {
		if n > bestN || (n == bestN && r < best) {
			best, bestN = r, n
		}
	}
	return best
}
