package booking

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

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

// GuestInfo is the contact data collected in GUEST_INFO.
type GuestInfo struct {
	FirstName       string `json:"firstName" validate:"required"`
	LastName        string `json:"lastName" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"required"`
	SpecialRequests string `json:"specialRequests,omitempty"`
}

func (g GuestInfo) normalized() GuestInfo {
	g.FirstName = strings.TrimSpace(g.FirstName)
	g.LastName = strings.TrimSpace(g.LastName)
	g.Email = strings.TrimSpace(g.Email)
	g.Phone = strings.TrimSpace(g.Phone)
	return g
}

// Validate returns MissingGuestFieldError naming every empty or malformed
// required field. Whitespace-only values count as empty.
func (g GuestInfo) Validate() error {
	g = g.normalized()
	err := validate.Struct(g)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	missing := &MissingGuestFieldError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		missing.Fields[fe.Field()] = fe.Tag()
	}
	return missing
}

// GuestProfile is what the promo evaluator needs to know about the guest.
type GuestProfile struct {
	GuestID          string `json:"guestId,omitempty"`
	IsFirstTimeGuest bool   `json:"isFirstTimeGuest"`
	UsageCount       int    `json:"usageCount"` // prior redemptions of the promo being applied
}
