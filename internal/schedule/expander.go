// Package schedule expands recurring templates into dated per-month
// occurrences. Each billing period has its own strategy that encapsulates
// the stepping algorithm; all of them are pure and deterministic.
package schedule

import (
	"fmt"

	"bilancio/internal/core"
)

// Expander is the strategy interface for one billing period.
type Expander interface {
	// Expand returns the occurrence dates falling inside month, ascending.
	Expand(anchor *core.Date, month core.YearMonth) ([]core.Date, error)
}

// MonthlyExpander yields exactly one occurrence per month: the anchor's day
// clamped to the month's length, or the 1st when no anchor is set.
type MonthlyExpander struct{}

func (MonthlyExpander) Expand(anchor *core.Date, month core.YearMonth) ([]core.Date, error) {
	day := 1
	if anchor != nil {
		day = anchor.Day()
		if last := month.Days(); day > last {
			day = last
		}
	}
	return []core.Date{core.NewDate(month.Year, int(month.Month), day)}, nil
}

// SteppingExpander walks forward and backward from the anchor in fixed
// day-sized steps, keeping every date inside the target month. Covers the
// weekly (7) and bi-weekly (14) periods.
type SteppingExpander struct {
	StepDays int
}

func (e SteppingExpander) Expand(anchor *core.Date, month core.YearMonth) ([]core.Date, error) {
	if anchor == nil {
		return nil, core.ErrAnchorRequired
	}

	start := month.FirstDay().Time
	end := month.LastDay().Time

	// Jump near the month in one step count, then fine-tune: integer
	// division truncates toward zero, so the loop settles the boundary.
	steps := int(start.Sub(anchor.Time).Hours()) / 24 / e.StepDays
	cur := anchor.AddDate(0, 0, steps*e.StepDays)
	for cur.After(start) {
		cur = cur.AddDate(0, 0, -e.StepDays)
	}
	for cur.Before(start) {
		cur = cur.AddDate(0, 0, e.StepDays)
	}

	var out []core.Date
	for !cur.After(end) {
		out = append(out, core.DateOf(cur))
		cur = cur.AddDate(0, 0, e.StepDays)
	}
	return out, nil
}

// SemiAnnualExpander steps in 6-calendar-month increments from the anchor,
// in both directions. A month yields one occurrence when its distance from
// the anchor month is a multiple of six, zero otherwise; the anchor's day
// is clamped to the month's length.
type SemiAnnualExpander struct{}

func (SemiAnnualExpander) Expand(anchor *core.Date, month core.YearMonth) ([]core.Date, error) {
	if anchor == nil {
		return nil, core.ErrAnchorRequired
	}

	delta := (month.Year-anchor.Year())*12 + int(month.Month) - anchor.Month()
	if ((delta%6)+6)%6 != 0 {
		return nil, nil
	}

	day := anchor.Day()
	if last := month.Days(); day > last {
		day = last
	}
	return []core.Date{core.NewDate(month.Year, int(month.Month), day)}, nil
}

// expanders maps billing periods to their strategies. The registry makes
// lookup O(1) and keeps the period set closed in one place.
var expanders = map[core.BillingPeriod]Expander{
	core.Monthly:      MonthlyExpander{},
	core.BiWeekly:     SteppingExpander{StepDays: 14},
	core.Weekly:       SteppingExpander{StepDays: 7},
	core.SemiAnnually: SemiAnnualExpander{},
}

// Expand resolves the strategy for the period and runs it. Missing anchors
// for non-monthly periods and unknown periods are validation errors.
func Expand(anchor *core.Date, period core.BillingPeriod, month core.YearMonth) ([]core.Date, error) {
	exp, ok := expanders[period]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidPeriod, string(period))
	}
	return exp.Expand(anchor, month)
}
