package core

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	Monthly      BillingPeriod = "monthly"
	BiWeekly     BillingPeriod = "bi_weekly"
	Weekly       BillingPeriod = "weekly"
	SemiAnnually BillingPeriod = "semi_annually"
)

const (
	KindBill   TemplateKind = "bill"
	KindIncome TemplateKind = "income"
)

const (
	BankAccount SourceType = "bank_account"
	CreditCard  SourceType = "credit_card"
	Cash        SourceType = "cash"
)

const (
	Variable ExpenseClass = "variable"
	FreeFlow ExpenseClass = "free_flow"
)

type (
	BillingPeriod string
	TemplateKind  string
	SourceType    string
	ExpenseClass  string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Template is a recurring bill or income definition. It is never tied to
	// a specific month; the generator expands it into dated instances.
	Template struct {
		ID              int64         `json:"id"`
		Kind            TemplateKind  `json:"kind"`
		Name            string        `json:"name"`
		Amount          Money         `json:"amount"`
		Period          BillingPeriod `json:"billing_period"`
		Anchor          *Date         `json:"anchor_date,omitempty"`
		PaymentSourceID int64         `json:"payment_source_id"`
		Category        string        `json:"category,omitempty"`
		Active          bool          `json:"is_active"`
	}

	// Instance is one dated occurrence of a template within a month.
	// Once created it is a snapshot: template edits never touch it, and
	// user customizations must survive re-generation of the month.
	Instance struct {
		ID              string       `json:"id"`
		TemplateID      int64        `json:"template_id"`
		Kind            TemplateKind `json:"kind"`
		Month           YearMonth    `json:"month"`
		Date            Date         `json:"occurrence_date"`
		Amount          Money        `json:"amount"`
		Settled         bool         `json:"settled"`
		Name            string       `json:"name"`
		Category        string       `json:"category,omitempty"`
		PaymentSourceID int64        `json:"payment_source_id"`
	}

	// Expense is a user-entered ad-hoc expense. Never generated, never
	// carried across months.
	Expense struct {
		ID              int64        `json:"id"`
		Class           ExpenseClass `json:"class"`
		Month           YearMonth    `json:"month"`
		Date            Date         `json:"date"`
		Amount          Money        `json:"amount"`
		Name            string       `json:"name"`
		PaymentSourceID int64        `json:"payment_source_id"`
	}

	PaymentSource struct {
		ID            int64      `json:"id"`
		Name          string     `json:"name"`
		Type          SourceType `json:"type"`
		Balance       Money      `json:"balance"` // signed; negative means debt
		PayOffMonthly bool       `json:"pay_off_monthly"`
	}

	// MonthRecord is the per-month container for instances and ad-hoc
	// expenses, keyed uniquely by YYYY-MM. Created on first generation,
	// never implicitly deleted.
	MonthRecord struct {
		Month         YearMonth  `json:"month"`
		Instances     []Instance `json:"instances"`
		Expenses      []Expense  `json:"expenses"`
		NextExpenseID int64      `json:"next_expense_id"`
	}
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidPeriod  = errors.New("invalid billing period")
	ErrInvalidKind    = errors.New("invalid template kind")
	ErrInvalidType    = errors.New("invalid payment source type")
	ErrInvalidClass   = errors.New("invalid expense class")
	ErrEmptyName      = errors.New("empty name")
	ErrAnchorRequired = errors.New("anchor date required for non-monthly period")
	ErrInvalidDate    = errors.New("invalid date")
)

// NewDate creates a Date from year, month, day at UTC midnight.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf normalizes an arbitrary time to a UTC calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

const dateLayout = "2006-01-02"

func (d Date) String() string {
	return d.Format(dateLayout)
}

// MarshalJSON encodes the date as "YYYY-MM-DD". Month documents and undo
// pre-images depend on this encoding being stable.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	d.Time = t
	return nil
}

// MarshalJSON encodes money as a bare cent count. Amounts cross the API and
// land in month documents as signed integers, never as objects.
func (m Money) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, m.Cents, 10), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	cents, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, b)
	}
	m.Cents = cents
	return nil
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month as 1-12.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year.
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: zero date", ErrInvalidDate)
	}
	return nil
}

func (p BillingPeriod) Validate() error {
	switch p {
	case Monthly, BiWeekly, Weekly, SemiAnnually:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPeriod, string(p))
	}
}

func (k TemplateKind) Validate() error {
	switch k {
	case KindBill, KindIncome:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, string(k))
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Template) Validate() error {
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Name)) == 0 {
		return ErrEmptyName
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Period.Validate(); err != nil {
		return err
	}
	if t.Period != Monthly && t.Anchor == nil {
		return ErrAnchorRequired
	}
	if t.Anchor != nil {
		if err := t.Anchor.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (i Instance) Validate() error {
	if err := i.Kind.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(i.Name)) == 0 {
		return ErrEmptyName
	}
	if err := i.Amount.Validate(); err != nil {
		return err
	}
	return i.Date.Validate()
}

func (e Expense) Validate() error {
	switch e.Class {
	case Variable, FreeFlow:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidClass, string(e.Class))
	}
	if len(strings.TrimSpace(e.Name)) == 0 {
		return ErrEmptyName
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	return e.Date.Validate()
}

func (s PaymentSource) Validate() error {
	if len(strings.TrimSpace(s.Name)) == 0 {
		return ErrEmptyName
	}
	switch s.Type {
	case BankAccount, CreditCard, Cash:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidType, string(s.Type))
	}
	if s.PayOffMonthly && s.Type != CreditCard {
		return fmt.Errorf("%w: pay_off_monthly is only valid for credit cards", ErrInvalidType)
	}
	return nil
}

// InstanceID builds the deterministic identity of an instance. Uniqueness
// per (template, occurrence date) is a property of the key itself.
func InstanceID(templateID int64, date Date) string {
	return fmt.Sprintf("%d@%s", templateID, date.String())
}

// NewMonthRecord returns an empty record for the given month.
func NewMonthRecord(month YearMonth) *MonthRecord {
	return &MonthRecord{Month: month, NextExpenseID: 1}
}

// HasInstanceForTemplate reports whether at least one instance of the
// template exists in this month. Generation leaves such templates alone.
func (r *MonthRecord) HasInstanceForTemplate(templateID int64) bool {
	for i := range r.Instances {
		if r.Instances[i].TemplateID == templateID {
			return true
		}
	}
	return false
}

// FindInstance returns the instance with the given id, or nil.
func (r *MonthRecord) FindInstance(id string) *Instance {
	for i := range r.Instances {
		if r.Instances[i].ID == id {
			return &r.Instances[i]
		}
	}
	return nil
}

// RemoveInstance deletes the instance with the given id, reporting whether
// it was present.
func (r *MonthRecord) RemoveInstance(id string) bool {
	for i := range r.Instances {
		if r.Instances[i].ID == id {
			r.Instances = append(r.Instances[:i], r.Instances[i+1:]...)
			return true
		}
	}
	return false
}

// FindExpense returns the ad-hoc expense with the given id, or nil.
func (r *MonthRecord) FindExpense(id int64) *Expense {
	for i := range r.Expenses {
		if r.Expenses[i].ID == id {
			return &r.Expenses[i]
		}
	}
	return nil
}

// RemoveExpense deletes the expense with the given id, reporting whether it
// was present.
func (r *MonthRecord) RemoveExpense(id int64) bool {
	for i := range r.Expenses {
		if r.Expenses[i].ID == id {
			r.Expenses = append(r.Expenses[:i], r.Expenses[i+1:]...)
			return true
		}
	}
	return false
}

// Normalize sorts instances and expenses into canonical order, occurrence
// date then id. Stores apply it before persisting so that logically equal
// records always encode to the same document, whatever order mutations and
// their undos touched the slices in.
func (r *MonthRecord) Normalize() {
	sort.Slice(r.Instances, func(i, j int) bool {
		a, b := &r.Instances[i], &r.Instances[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.Before(b.Date.Time)
		}
		return a.ID < b.ID
	})
	sort.Slice(r.Expenses, func(i, j int) bool {
		a, b := &r.Expenses[i], &r.Expenses[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.Before(b.Date.Time)
		}
		return a.ID < b.ID
	})
}

// Clone returns a deep copy of the record.
func (r *MonthRecord) Clone() *MonthRecord {
	out := &MonthRecord{Month: r.Month, NextExpenseID: r.NextExpenseID}
	out.Instances = append([]Instance(nil), r.Instances...)
	out.Expenses = append([]Expense(nil), r.Expenses...)
	return out
}
