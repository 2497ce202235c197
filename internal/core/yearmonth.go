package core

import (
	"fmt"
	"strings"
	"time"
)

// YearMonth identifies a calendar month. Its canonical string form is
// "YYYY-MM", the key under which month records are stored.
type YearMonth struct {
	Year  int
	Month time.Month
}

const yearMonthLayout = "2006-01"

// ParseYearMonth parses a "YYYY-MM" key.
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse(yearMonthLayout, strings.TrimSpace(s))
	if err != nil {
		return YearMonth{}, fmt.Errorf("%w: %q is not YYYY-MM", ErrInvalidDate, s)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

// YearMonthOf returns the month containing t.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

func (m YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m YearMonth) Validate() error {
	if m.Year < 1 || m.Month < time.January || m.Month > time.December {
		return fmt.Errorf("%w: %q", ErrInvalidDate, m.String())
	}
	return nil
}

// FirstDay returns the first calendar day of the month.
func (m YearMonth) FirstDay() Date {
	return NewDate(m.Year, int(m.Month), 1)
}

// LastDay returns the last calendar day of the month. Day zero of the next
// month normalizes to it.
func (m YearMonth) LastDay() Date {
	return Date{Time: time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC)}
}

// Days returns the number of days in the month.
func (m YearMonth) Days() int {
	return m.LastDay().Day()
}

// Contains reports whether the date falls inside the month.
func (m YearMonth) Contains(d Date) bool {
	return d.Year() == m.Year && d.Time.Month() == m.Month
}

// MarshalJSON encodes the month as its "YYYY-MM" key.
func (m YearMonth) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *YearMonth) UnmarshalJSON(b []byte) error {
	parsed, err := ParseYearMonth(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
