// Package core holds the domain model of the budgeting engine.
//
// All monetary values are integer minor currency units (cents). Nothing in
// this package, or anywhere downstream of it, computes money in floating
// point.
package core

import "fmt"

// periodsPerYear maps each billing period to how many occurrences a full
// year carries. Used to derive the monthly-equivalent contribution of
// non-monthly templates for summary display.
var periodsPerYear = map[BillingPeriod]int64{
	Monthly:      12,
	BiWeekly:     26,
	Weekly:       52,
	SemiAnnually: 2,
}

// MonthlyEquivalent converts a per-occurrence amount into its average
// monthly contribution: amount * occurrences-per-year / 12, rounded
// half-up. Callers sum the rounded line items and must never round the
// aggregate, so displayed subtotals always match the sum of their lines.
func MonthlyEquivalent(cents int64, period BillingPeriod) (int64, error) {
	per, ok := periodsPerYear[period]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, string(period))
	}
	return divRoundHalfUp(cents*per, 12), nil
}

// divRoundHalfUp divides n by d (d > 0) rounding half away from zero.
func divRoundHalfUp(n, d int64) int64 {
	if n >= 0 {
		return (n + d/2) / d
	}
	return -((-n + d/2) / d)
}

// FormatCents renders cents as a plain decimal string for logs, e.g. 1234
// becomes "12.34". Display formatting, not arithmetic.
func FormatCents(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := fmt.Sprintf("%d.%02d", cents/100, cents%100)
	if neg {
		return "-" + s
	}
	return s
}
