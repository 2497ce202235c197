package services

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// Leftover derives the month's leftover figure from current storage state.
// It never caches: the figure is recomputed from scratch on every call and
// is never a source of truth.
type Leftover struct {
	store storage.Store
}

func NewLeftover(store storage.Store) *Leftover {
	return &Leftover{store: store}
}

// Summary is the month's leftover broken into its terms, all integer cents.
type Summary struct {
	Month              core.YearMonth `json:"month"`
	PositiveBalances   int64          `json:"positive_balances"`
	DebtBalances       int64          `json:"debt_balances"` // positive magnitude
	IncomeInstances    int64          `json:"income_instances"`
	BillInstances      int64          `json:"bill_instances"`
	VariableExpenses   int64          `json:"variable_expenses"`
	FreeFlowExpenses   int64          `json:"free_flow_expenses"`
	Leftover           int64          `json:"leftover"`
	MonthlyEquivBills  int64          `json:"monthly_equivalent_bills"`
	MonthlyEquivIncome int64          `json:"monthly_equivalent_incomes"`
}

// ComputeLeftover returns the signed leftover for the month:
//
//	positive balances − debt magnitudes + incomes − bills
//	− variable expenses − free-flowing expenses
//
// A month with no record contributes zero instance and expense terms;
// balances always count.
func (l *Leftover) ComputeLeftover(ctx context.Context, month core.YearMonth) (int64, error) {
	s, err := l.MonthSummary(ctx, month)
	if err != nil {
		return 0, err
	}
	return s.Leftover, nil
}

// MonthSummary computes the leftover along with every term it is built
// from, so displayed subtotals always reconcile with the total to the cent.
func (l *Leftover) MonthSummary(ctx context.Context, month core.YearMonth) (Summary, error) {
	if err := month.Validate(); err != nil {
		return Summary{}, err
	}

	s := Summary{Month: month}

	sources, err := l.store.LoadPaymentSources(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load payment sources: %w", err)
	}
	for _, src := range sources {
		if src.Balance.Cents > 0 {
			s.PositiveBalances += src.Balance.Cents
		} else {
			s.DebtBalances += -src.Balance.Cents
		}
	}

	rec, err := l.store.LoadMonth(ctx, month)
	if err != nil && !core.IsNotFound(err) {
		return Summary{}, fmt.Errorf("load month %s: %w", month, err)
	}
	if rec != nil {
		for _, in := range rec.Instances {
			if in.Kind == core.KindIncome {
				s.IncomeInstances += in.Amount.Cents
			} else {
				s.BillInstances += in.Amount.Cents
			}
		}
		for _, e := range rec.Expenses {
			if e.Class == core.Variable {
				s.VariableExpenses += e.Amount.Cents
			} else {
				s.FreeFlowExpenses += e.Amount.Cents
			}
		}
	}

	s.Leftover = s.PositiveBalances - s.DebtBalances +
		s.IncomeInstances - s.BillInstances -
		s.VariableExpenses - s.FreeFlowExpenses

	if err := l.addMonthlyEquivalents(ctx, &s); err != nil {
		return Summary{}, err
	}

	slog.DebugContext(ctx, "Leftover computed",
		"month", month.String(),
		"leftover_cents", s.Leftover)
	return s, nil
}

// addMonthlyEquivalents sums each active template's monthly-equivalent
// contribution. Line items are rounded half-up independently and then
// summed; the aggregate itself is never rounded.
func (l *Leftover) addMonthlyEquivalents(ctx context.Context, s *Summary) error {
	for _, kind := range []core.TemplateKind{core.KindBill, core.KindIncome} {
		templates, err := l.store.LoadTemplates(ctx, kind)
		if err != nil {
			return fmt.Errorf("load %s templates: %w", kind, err)
		}
		var sum int64
		for _, t := range templates {
			if !t.Active {
				continue
			}
			eq, err := core.MonthlyEquivalent(t.Amount.Cents, t.Period)
			if err != nil {
				return fmt.Errorf("template %d: %w", t.ID, err)
			}
			sum += eq
		}
		if kind == core.KindBill {
			s.MonthlyEquivBills = sum
		} else {
			s.MonthlyEquivIncome = sum
		}
	}
	return nil
}
