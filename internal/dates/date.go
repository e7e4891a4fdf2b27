// Package dates provides a civil-date value type for the simulation engine.
// All scheduling, series alignment, and reporting work on whole calendar
// days; a Date carries no time-of-day and no timezone.
package dates

import (
	"encoding/json"
	"fmt"
	"time"
)

// Layout is the wire format for dates.
const Layout = "2006-01-02"

// Date is a calendar day. The zero value is treated as "unset".
type Date struct {
	y int
	m time.Month
	d int
}

// New builds a Date from year, month, day. Out-of-range components are
// normalized the way time.Date normalizes them.
func New(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{t.Year(), t.Month(), t.Day()}
}

// FromTime truncates a time.Time to its calendar day in UTC.
func FromTime(t time.Time) Date {
	u := t.UTC()
	return Date{u.Year(), u.Month(), u.Day()}
}

// Today returns the current UTC calendar day.
func Today() Date {
	return FromTime(time.Now())
}

// Parse reads a Date in "2006-01-02" form.
func Parse(s string) (Date, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("dates: invalid date %q: %w", s, err)
	}
	return FromTime(t), nil
}

// MustParse is Parse for test fixtures and static tables; it panics on error.
func MustParse(s string) Date {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Time returns the date at midnight UTC.
func (d Date) Time() time.Time {
	return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC)
}

func (d Date) Year() int        { return d.y }
func (d Date) Month() time.Month { return d.m }
func (d Date) Day() int         { return d.d }

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.y == 0 && d.m == 0 && d.d == 0
}

func (d Date) String() string {
	return d.Time().Format(Layout)
}

// AddDays returns the date n days later (earlier for negative n).
func (d Date) AddDays(n int) Date {
	return FromTime(d.Time().AddDate(0, 0, n))
}

// AddMonths returns the date n months later with the day-of-month clamped
// to the target month's length: Jan 31 + 1 month is Feb 28 (or 29), never
// Mar 2. This differs from time.AddDate, which normalizes the overflow.
func (d Date) AddMonths(n int) Date {
	months := int(d.m) - 1 + n
	y := d.y + months/12
	m := time.Month(months%12 + 1)
	if months < 0 && months%12 != 0 {
		y--
		m = time.Month(months%12 + 13)
	}
	day := d.d
	if last := daysIn(y, m); day > last {
		day = last
	}
	return Date{y, m, day}
}

// daysIn returns the number of days in a month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }
func (d Date) Equal(o Date) bool  { return d == o }

// Compare orders two dates: -1, 0, or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.y != o.y:
		return sign(d.y - o.y)
	case d.m != o.m:
		return sign(int(d.m) - int(o.m))
	default:
		return sign(d.d - o.d)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// DaysUntil returns the number of calendar days from d to o (negative when
// o precedes d).
func (d Date) DaysUntil(o Date) int {
	return int(o.Time().Sub(d.Time()) / (24 * time.Hour))
}

// Weekday returns the day of week.
func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

// IsBusinessDay reports whether the date falls on Monday through Friday.
// Exchange holidays are not modeled; the calendar matches the coverage
// heuristics used in reporting.
func (d Date) IsBusinessDay() bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// BusinessDays lists every business day in [from, to] inclusive.
func BusinessDays(from, to Date) []Date {
	if to.Before(from) {
		return nil
	}
	var out []Date
	for d := from; !d.After(to); d = d.AddDays(1) {
		if d.IsBusinessDay() {
			out = append(out, d)
		}
	}
	return out
}

// MarshalJSON encodes the date as "2006-01-02".
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "2006-01-02"; an empty string decodes to the zero
// Date so optional fields round-trip cleanly.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Min returns the earlier of two dates.
func Min(a, b Date) Date {
	if b.Before(a) {
		return b
	}
	return a
}

// Max returns the later of two dates.
func Max(a, b Date) Date {
	if b.After(a) {
		return b
	}
	return a
}
