/*
session.go - The booking session value and its pure transitions

PURPOSE:
  A Session is the state of one guest's booking flow. It is a value: every
  transition returns a new Session or an error, and the input session is
  never modified. Callers keep whichever value they want to continue from.

TRANSITIONS:
  SEARCHING -> ROOMS_LISTED -> ROOM_SELECTED -> GUEST_INFO -> CONFIRMING -> CONFIRMED

  Transitions that need collaborators (search, room selection, promo,
  confirmation) live on Engine. The ones here only look at the session.

SEE ALSO:
  - engine.go: Search, SelectRoom, ApplyPromo, RemovePromo, Confirm
  - sequencer.go: Last-request-wins bookkeeping shared between copies
*/
package booking

import (
	"slices"

	"github.com/google/uuid"

	"github.com/pentouz/rate-engine/pricing"
)

// SearchCriteria is what the guest searched for.
type SearchCriteria struct {
	Stay      pricing.StayRange `json:"stay"`
	Occupancy pricing.Occupancy `json:"occupancy"`
	Currency  pricing.Currency  `json:"currency"`
}

// Session is one booking flow.
type Session struct {
	ID              string                       `json:"id"`
	Seq             uint64                       `json:"seq"`
	State           State                        `json:"state"`
	Criteria        SearchCriteria               `json:"criteria"`
	Candidates      []pricing.AvailabilityResult `json:"candidates,omitempty"`
	Selected        *pricing.AvailabilityResult  `json:"selected,omitempty"`
	Promo           *pricing.PromoCode           `json:"promo,omitempty"`
	PromoResult     *pricing.PromoResult         `json:"promoResult,omitempty"`
	GuestProfile    GuestProfile                 `json:"guestProfile"`
	Guest           GuestInfo                    `json:"guest"`
	Quote           *pricing.PricingQuote        `json:"quote,omitempty"`
	ConfirmationRef string                       `json:"confirmationRef,omitempty"`

	// shared by every value derived from the same session
	seq *Sequencer
}

// NewSession starts a flow in SEARCHING.
func NewSession() Session {
	return Session{
		ID:    uuid.NewString(),
		State: StateSearching,
		seq:   NewSequencer(),
	}
}

// Started reports whether s was created by NewSession.
func (s Session) Started() bool { return s.seq != nil }

// clone copies everything a transition may change so the original stays
// untouched.
func (s Session) clone() Session {
	next := s
	next.Candidates = slices.Clone(s.Candidates)
	if s.Selected != nil {
		sel := *s.Selected
		sel.NightlyRates = slices.Clone(sel.NightlyRates)
		next.Selected = &sel
	}
	if s.Promo != nil {
		p := *s.Promo
		p.Conditions.ApplicableRoomTypes = slices.Clone(p.Conditions.ApplicableRoomTypes)
		next.Promo = &p
	}
	if s.PromoResult != nil {
		r := *s.PromoResult
		next.PromoResult = &r
	}
	if s.Quote != nil {
		q := *s.Quote
		q.NightlyRates = slices.Clone(q.NightlyRates)
		next.Quote = &q
	}
	return next
}

// Candidate returns the listed result for productID.
func (s Session) Candidate(productID pricing.ProductID) (pricing.AvailabilityResult, bool) {
	for _, c := range s.Candidates {
		if c.Product.ID == productID {
			return c, true
		}
	}
	return pricing.AvailabilityResult{}, false
}

func (s Session) require(op string, allowed ...State) error {
	if !s.Started() {
		return ErrSessionNotStarted
	}
	if slices.Contains(allowed, s.State) {
		return nil
	}
	return &InvalidTransitionError{Op: op, From: s.State}
}

// ProceedToGuestInfo moves ROOM_SELECTED to GUEST_INFO once a quote exists
// for the selected room.
func ProceedToGuestInfo(s Session) (Session, error) {
	if err := s.require("proceed to guest info", StateRoomSelected); err != nil {
		return s, err
	}
	if s.Selected == nil || s.Quote == nil || s.Quote.ProductID != s.Selected.Product.ID {
		return s, ErrQuoteMissing
	}

	next := s.clone()
	next.State = StateGuestInfo
	return next, nil
}

// SubmitGuest validates the guest details and moves GUEST_INFO to
// CONFIRMING. On failure the session is returned unchanged together with a
// MissingGuestFieldError naming every offending field.
func SubmitGuest(s Session, guest GuestInfo) (Session, error) {
	if err := s.require("submit guest details", StateGuestInfo); err != nil {
		return s, err
	}
	if err := guest.Validate(); err != nil {
		return s, err
	}

	next := s.clone()
	next.Guest = guest.normalized()
	next.State = StateConfirming
	return next, nil
}

// Back returns to an earlier state. Going back to ROOMS_LISTED drops the
// selection, the promo and the quote; going back to SEARCHING restarts.
func Back(s Session, target State) (Session, error) {
	if !s.Started() {
		return s, ErrSessionNotStarted
	}
	if s.State.IsTerminal() || !target.Valid() || !target.Before(s.State) {
		return s, &InvalidTransitionError{Op: "go back to " + string(target), From: s.State}
	}

	switch target {
	case StateSearching:
		return Restart(s), nil
	case StateRoomsListed:
		// the pricing request for the dropped selection, if any, must not land
		s.seq.Invalidate()
		next := s.clone()
		next.State = StateRoomsListed
		next.Selected = nil
		next.Promo = nil
		next.PromoResult = nil
		next.Quote = nil
		return next, nil
	default:
		next := s.clone()
		next.State = target
		return next, nil
	}
}

// Restart returns a fresh SEARCHING session with the same id. Requests
// still in flight for s are cancelled and their results discarded.
func Restart(s Session) Session {
	if s.seq == nil {
		return NewSession()
	}
	s.seq.Invalidate()
	return Session{
		ID:    s.ID,
		Seq:   s.seq.Current(),
		State: StateSearching,
		seq:   s.seq,
	}
}
