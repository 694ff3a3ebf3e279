package domain

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// DateLayout is the ISO calendar form used for simulated dates everywhere
const DateLayout = "2006-01-02"

// Supported simulated years. DateLayout cannot round-trip anything outside.
const (
	MinYear = 1
	MaxYear = 9999
)

// maxDaySpan bounds day offsets so AddDays cannot overflow before the
// range check runs
const maxDaySpan = (MaxYear - MinYear + 1) * 366

// Date is a simulated calendar day with no time-of-day component
type Date struct {
	t time.Time
}

// NewDate builds a Date from its calendar parts
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a wall-clock time to its calendar day
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// Today returns the real current date. Only used to seed a fresh clock.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a string like "2025-01-05" into a Date
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return Date{t: t}, nil
}

// MustParseDate is ParseDate for fixtures and tests
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String returns the canonical YYYY-MM-DD form
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

// IsZero reports whether the date is unset
func (d Date) IsZero() bool {
	return d.t.IsZero()
}

// Time returns midnight UTC of the day
func (d Date) Time() time.Time {
	return d.t
}

// AddDays returns the date n calendar days later (earlier for negative n)
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// Shift is AddDays for untrusted offsets: it fails with ErrInvalidOperation
// when the result would leave the supported year range
func (d Date) Shift(n int) (Date, error) {
	if n > maxDaySpan || n < -maxDaySpan {
		return d, fmt.Errorf("%w: offset of %d days is out of range", ErrInvalidOperation, n)
	}
	shifted := d.AddDays(n)
	if err := shifted.Validate(); err != nil {
		return d, err
	}
	return shifted, nil
}

// Validate reports dates that cannot be stored and read back
func (d Date) Validate() error {
	if y := d.t.Year(); y < MinYear || y > MaxYear {
		return fmt.Errorf("%w: date %s is outside years %04d-%04d", ErrInvalidOperation, d.t.Format(DateLayout), MinYear, MaxYear)
	}
	return nil
}

// DaysSince returns the number of calendar days from other to d
func (d Date) DaysSince(other Date) int {
	return int((d.t.Unix() - other.t.Unix()) / 86400)
}

func (d Date) Before(other Date) bool { return d.t.Before(other.t) }
func (d Date) After(other Date) bool  { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool  { return d.t.Equal(other.t) }

// Compare returns -1, 0 or +1
func (d Date) Compare(other Date) int {
	return d.t.Compare(other.t)
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.t.Day()
}

// MarshalText implements encoding.TextMarshaler
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer so dates are stored as sortable TEXT.
// Out-of-range dates are refused so a row can always be scanned back.
func (d Date) Value() (driver.Value, error) {
	if !d.IsZero() {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	return d.String(), nil
}

// Scan implements sql.Scanner
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case string:
		return d.UnmarshalText([]byte(v))
	case []byte:
		return d.UnmarshalText(v)
	case time.Time:
		*d = DateOf(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}
