package calendar

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ISOLayout is the wire and storage representation of a Date.
const ISOLayout = "2006-01-02"

// DisplayLayout is the dd/MM/yyyy form shown to customers.
const DisplayLayout = "02/01/2006"

var ErrInvalidDate = errors.New("invalid calendar date")

// Date is a calendar day with no time of day and no location attached.
// The zero value means "unset".
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// New builds a Date and rejects days that do not exist (e.g. 2024-02-30).
func New(year int, month time.Month, day int) (Date, error) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return Date{}, fmt.Errorf("%w: %04d-%02d-%02d", ErrInvalidDate, year, int(month), day)
	}
	return Date{Year: year, Month: month, Day: day}, nil
}

// MustNew is New for literals in tests and defaults.
func MustNew(year int, month time.Month, day int) Date {
	d, err := New(year, month, day)
	if err != nil {
		panic(err)
	}
	return d
}

// Parse reads "YYYY-MM-DD". A trailing time part ("T12:00:00Z") is ignored
// so datetimes stored by older clients still land on their calendar day.
func Parse(s string) (Date, error) {
	raw := strings.TrimSpace(s)
	if i := strings.IndexByte(raw, 'T'); i >= 0 {
		raw = raw[:i]
	}
	parts := strings.Split(raw, "-")
	if len(parts) != 3 || len(parts[0]) != 4 {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) > 2 {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	day, err := strconv.Atoi(parts[2])
	if err != nil || len(parts[2]) > 2 {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return New(year, time.Month(month), day)
}

// FromTime takes the calendar day of t in t's own location.
func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the current calendar day in loc (UTC when nil).
func Today(now time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return FromTime(now.In(loc))
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// epochDay is the number of days since 1970-01-01.
func (d Date) epochDay() int64 {
	return d.Time().Unix() / 86400
}

// Sub returns d - o in whole days.
func (d Date) Sub(o Date) int {
	return int(d.epochDay() - o.epochDay())
}

func (d Date) AddDays(n int) Date {
	return FromTime(d.Time().AddDate(0, 0, n))
}

func (d Date) Before(o Date) bool { return d.Sub(o) < 0 }
func (d Date) After(o Date) bool  { return d.Sub(o) > 0 }

func (d Date) Format(layout string) string {
	return d.Time().Format(layout)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(ISOLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(b))
	}
	if s == nil || *s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := Parse(*s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scan accepts what postgres (time.Time) and sqlite (string, []byte or time.Time) hand back.
func (d *Date) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = FromTime(v)
		return nil
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("%w: unsupported scan type %T", ErrInvalidDate, value)
	}
}

func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}
