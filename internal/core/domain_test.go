package core

import (
	"errors"
	"testing"
	"time"
)

func TestTemplate_Validate(t *testing.T) {
	anchor := NewDate(2025, 1, 3)
	valid := Template{
		Kind:   KindBill,
		Name:   "Rent",
		Amount: Money{Cents: 150000},
		Period: Monthly,
	}

	tests := []struct {
		name    string
		mutate  func(*Template)
		wantErr error
	}{
		{
			name:   "valid monthly without anchor",
			mutate: func(*Template) {},
		},
		{
			name: "valid bi-weekly with anchor",
			mutate: func(tpl *Template) {
				tpl.Period = BiWeekly
				tpl.Anchor = &anchor
			},
		},
		{
			name:    "unknown kind",
			mutate:  func(tpl *Template) { tpl.Kind = "subscription" },
			wantErr: ErrInvalidKind,
		},
		{
			name:    "blank name",
			mutate:  func(tpl *Template) { tpl.Name = "   " },
			wantErr: ErrEmptyName,
		},
		{
			name:    "zero amount",
			mutate:  func(tpl *Template) { tpl.Amount = Money{} },
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			mutate:  func(tpl *Template) { tpl.Amount = Money{Cents: -100} },
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "unknown period",
			mutate:  func(tpl *Template) { tpl.Period = "quarterly" },
			wantErr: ErrInvalidPeriod,
		},
		{
			name:    "non-monthly without anchor",
			mutate:  func(tpl *Template) { tpl.Period = Weekly },
			wantErr: ErrAnchorRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := valid
			tt.mutate(&tpl)
			err := tpl.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPaymentSource_Validate(t *testing.T) {
	tests := []struct {
		name    string
		source  PaymentSource
		wantErr error
	}{
		{
			name:   "bank account",
			source: PaymentSource{Name: "Checking", Type: BankAccount, Balance: Money{Cents: 50000}},
		},
		{
			name:   "credit card with payoff flag",
			source: PaymentSource{Name: "Visa", Type: CreditCard, Balance: Money{Cents: 50000}, PayOffMonthly: true},
		},
		{
			name:   "negative balance is debt, not invalid",
			source: PaymentSource{Name: "Loan", Type: BankAccount, Balance: Money{Cents: -250000}},
		},
		{
			name:    "blank name",
			source:  PaymentSource{Name: "", Type: Cash},
			wantErr: ErrEmptyName,
		},
		{
			name:    "unknown type",
			source:  PaymentSource{Name: "X", Type: "crypto"},
			wantErr: ErrInvalidType,
		},
		{
			name:    "payoff flag on non-card",
			source:  PaymentSource{Name: "Checking", Type: BankAccount, PayOffMonthly: true},
			wantErr: ErrInvalidType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.source.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpense_Validate(t *testing.T) {
	valid := Expense{
		Class:  Variable,
		Date:   NewDate(2025, 2, 10),
		Amount: Money{Cents: 2500},
		Name:   "Groceries",
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}

	bad := valid
	bad.Class = "impulse"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidClass) {
		t.Errorf("Validate() error = %v, want ErrInvalidClass", err)
	}
}

func TestInstanceID(t *testing.T) {
	got := InstanceID(42, NewDate(2025, 2, 14))
	if got != "42@2025-02-14" {
		t.Errorf("InstanceID() = %q, want %q", got, "42@2025-02-14")
	}
}

func TestMonthRecord_InstanceHelpers(t *testing.T) {
	month := YearMonth{Year: 2025, Month: time.February}
	rec := NewMonthRecord(month)
	rec.Instances = []Instance{
		{ID: "1@2025-02-14", TemplateID: 1, Kind: KindBill, Month: month, Date: NewDate(2025, 2, 14), Amount: Money{Cents: 10000}, Name: "Gym"},
		{ID: "1@2025-02-28", TemplateID: 1, Kind: KindBill, Month: month, Date: NewDate(2025, 2, 28), Amount: Money{Cents: 10000}, Name: "Gym"},
		{ID: "2@2025-02-01", TemplateID: 2, Kind: KindIncome, Month: month, Date: NewDate(2025, 2, 1), Amount: Money{Cents: 300000}, Name: "Salary"},
	}

	if !rec.HasInstanceForTemplate(1) {
		t.Error("HasInstanceForTemplate(1) = false, want true")
	}
	if rec.HasInstanceForTemplate(9) {
		t.Error("HasInstanceForTemplate(9) = true, want false")
	}

	if in := rec.FindInstance("1@2025-02-28"); in == nil || in.Date.Day() != 28 {
		t.Errorf("FindInstance() = %v, want the Feb 28 occurrence", in)
	}
	if in := rec.FindInstance("missing"); in != nil {
		t.Errorf("FindInstance(missing) = %v, want nil", in)
	}

	if !rec.RemoveInstance("1@2025-02-14") {
		t.Error("RemoveInstance() = false, want true")
	}
	if len(rec.Instances) != 2 {
		t.Errorf("len(Instances) = %d after removal, want 2", len(rec.Instances))
	}
	// Removing one occurrence must not hide the template from the merge check.
	if !rec.HasInstanceForTemplate(1) {
		t.Error("HasInstanceForTemplate(1) = false after partial removal, want true")
	}
	if rec.RemoveInstance("1@2025-02-14") {
		t.Error("RemoveInstance() = true on second removal, want false")
	}
}

func TestMonthRecord_ExpenseHelpers(t *testing.T) {
	month := YearMonth{Year: 2025, Month: time.February}
	rec := NewMonthRecord(month)
	if rec.NextExpenseID != 1 {
		t.Errorf("NextExpenseID = %d on new record, want 1", rec.NextExpenseID)
	}

	rec.Expenses = []Expense{
		{ID: 1, Class: Variable, Month: month, Date: NewDate(2025, 2, 3), Amount: Money{Cents: 2000}, Name: "Fuel"},
		{ID: 2, Class: FreeFlow, Month: month, Date: NewDate(2025, 2, 5), Amount: Money{Cents: 1500}, Name: "Coffee"},
	}

	if e := rec.FindExpense(2); e == nil || e.Name != "Coffee" {
		t.Errorf("FindExpense(2) = %v, want Coffee", e)
	}
	if !rec.RemoveExpense(1) {
		t.Error("RemoveExpense(1) = false, want true")
	}
	if rec.RemoveExpense(1) {
		t.Error("RemoveExpense(1) = true on second removal, want false")
	}
}

func TestMonthRecord_Clone(t *testing.T) {
	month := YearMonth{Year: 2025, Month: time.February}
	rec := NewMonthRecord(month)
	rec.Instances = append(rec.Instances, Instance{ID: "1@2025-02-14", TemplateID: 1, Kind: KindBill, Amount: Money{Cents: 100}, Name: "A", Date: NewDate(2025, 2, 14)})
	rec.NextExpenseID = 7

	clone := rec.Clone()
	clone.Instances[0].Amount.Cents = 999
	clone.NextExpenseID = 1

	if rec.Instances[0].Amount.Cents != 100 {
		t.Error("Clone() shares instance backing array with original")
	}
	if rec.NextExpenseID != 7 {
		t.Error("Clone() shares counter with original")
	}
}
