package model

import (
	"fmt"
	"time"

	"hotel-core-backend/internal/apperr"
)

// DateLayout is the wire format of stay dates.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, apperr.Validation("model.ParseDay", "invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// DateRange is a half-open stay interval [CheckIn, CheckOut): the checkout
// date itself is not occupied, so one stay may end on the day the next begins.
type DateRange struct {
	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
}

// NewDateRange builds a range from two instants, keeping only their dates.
func NewDateRange(checkIn, checkOut time.Time) DateRange {
	return DateRange{CheckIn: Day(checkIn), CheckOut: Day(checkOut)}
}

// ParseDateRange parses two YYYY-MM-DD dates and validates the result.
func ParseDateRange(checkIn, checkOut string) (DateRange, error) {
	in, err := ParseDay(checkIn)
	if err != nil {
		return DateRange{}, err
	}
	out, err := ParseDay(checkOut)
	if err != nil {
		return DateRange{}, err
	}
	r := NewDateRange(in, out)
	return r, r.Validate()
}

// Validate rejects empty and inverted ranges.
func (r DateRange) Validate() error {
	if r.CheckIn.IsZero() || r.CheckOut.IsZero() {
		return apperr.Validation("model.DateRange", "check-in and check-out dates are required")
	}
	if !r.CheckOut.After(r.CheckIn) {
		return apperr.Validation("model.DateRange", "check-out %s must be after check-in %s",
			r.CheckOut.Format(DateLayout), r.CheckIn.Format(DateLayout))
	}
	return nil
}

// Nights is the number of nights in the stay.
func (r DateRange) Nights() int {
	return int(Day(r.CheckOut).Sub(Day(r.CheckIn)).Hours() / 24)
}

// Overlaps reports whether [a1,a2) and [b1,b2) intersect: a1 < b2 && b1 < a2.
func (r DateRange) Overlaps(o DateRange) bool {
	return r.CheckIn.Before(o.CheckOut) && o.CheckIn.Before(r.CheckOut)
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.CheckIn.Format(DateLayout), r.CheckOut.Format(DateLayout))
}
