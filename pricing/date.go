package pricing

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar date (stays are priced per night, not per instant)
// =============================================================================

const dateLayout = "2006-01-02"

// Date is a calendar date normalized to UTC midnight.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the clock part of t, keeping t's calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) Before(o Date) bool        { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool         { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool         { return d.Time.Equal(o.Time) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.Before(o) }
func (d Date) IsZero() bool              { return d.Time.IsZero() }
func (d Date) AddDays(n int) Date        { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) String() string            { return d.Time.Format(dateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a YYYY-MM-DD string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysBetween returns the calendar day difference to - from.
func DaysBetween(from, to Date) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}

// =============================================================================
// STAY RANGE - Half-open night set [CheckIn, CheckOut)
// =============================================================================

// StayRange is the stay window. The checkout day is not a night of the stay.
type StayRange struct {
	CheckIn  Date `json:"checkIn"`
	CheckOut Date `json:"checkOut"`
}

// Nights is the calendar day difference between check-in and check-out.
func (s StayRange) Nights() int {
	return DaysBetween(s.CheckIn, s.CheckOut)
}

// MaxStayNights is the longest stay Validate accepts.
const MaxStayNights = 365

// Validate fails with InvalidRangeError unless the stay has between one and
// MaxStayNights nights.
func (s StayRange) Validate() error {
	if s.CheckIn.IsZero() || s.CheckOut.IsZero() {
		return &InvalidRangeError{CheckIn: s.CheckIn, CheckOut: s.CheckOut}
	}
	if n := s.Nights(); n < 1 || n > MaxStayNights {
		return &InvalidRangeError{CheckIn: s.CheckIn, CheckOut: s.CheckOut}
	}
	return nil
}

// NightDates lists every night of the stay in order, checkout excluded.
func (s StayRange) NightDates() []Date {
	n := s.Nights()
	if n < 1 {
		return nil
	}
	dates := make([]Date, 0, n)
	for d := s.CheckIn; d.Before(s.CheckOut); d = d.AddDays(1) {
		dates = append(dates, d)
	}
	return dates
}

func (s StayRange) String() string {
	return "[" + s.CheckIn.String() + ", " + s.CheckOut.String() + ")"
}

// Window is an inclusive validity window. A zero bound is open.
type Window struct {
	Start Date `json:"startDate"`
	End   Date `json:"endDate"`
}

// Contains reports whether d lies in [Start, End].
func (w Window) Contains(d Date) bool {
	if !w.Start.IsZero() && d.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && d.After(w.End) {
		return false
	}
	return true
}
