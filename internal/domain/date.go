package domain

import (
	"fmt"
	"time"
)

// DateLayout is the textual form of a Date, which also sorts chronologically
const DateLayout = "2006-01-02"

// Date is a calendar day without time of day or zone
type Date struct {
	t time.Time
}

// NewDate creates a Date
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD. A bare year (YYYY) means January 1st.
func ParseDate(s string) (Date, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return Date{t: t}, nil
	}
	if t, err := time.Parse("2006", s); err == nil {
		return Date{t: t}, nil
	}
	return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
}

// MustDate parses s and panics on error. Intended for literals.
func MustDate(s string) *Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

// String formats the date as YYYY-MM-DD
func (d Date) String() string {
	return d.t.Format(DateLayout)
}

// Time returns midnight UTC of the date
func (d Date) Time() time.Time {
	return d.t
}

// Before reports whether d is earlier than other
func (d Date) Before(other Date) bool {
	return d.t.Before(other.t)
}

// MarshalText implements encoding.TextMarshaler
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DatePtrString formats an optional date, returning "" for nil
func DatePtrString(d *Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}
