package core

import (
	"encoding/json"
	"fmt"
)

// Entity types the undo log spans. The set is closed: replay logic is a
// total switch over these values, never a runtime type check.
const (
	EntityBillTemplate   EntityType = "bill_template"
	EntityIncomeTemplate EntityType = "income_template"
	EntityBillInstance   EntityType = "bill_instance"
	EntityIncomeInstance EntityType = "income_instance"
	EntityExpense        EntityType = "expense"
	EntityPaymentSource  EntityType = "payment_source"
)

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

type (
	EntityType string
	Operation  string

	// UndoEntry records one reversible mutation: the entity's full prior
	// state (null for a create) and enough identity to replay the inverse.
	UndoEntry struct {
		EntityType EntityType      `json:"entity_type"`
		Operation  Operation       `json:"operation"`
		EntityID   string          `json:"entity_id"`
		Month      *YearMonth      `json:"month,omitempty"` // set for month-scoped entities
		PreImage   json.RawMessage `json:"pre_image"`
	}
)

func (t EntityType) Validate() error {
	switch t {
	case EntityBillTemplate, EntityIncomeTemplate, EntityBillInstance,
		EntityIncomeInstance, EntityExpense, EntityPaymentSource:
		return nil
	default:
		return fmt.Errorf("%w: unknown entity type %q", ErrInvalidKind, string(t))
	}
}

func (o Operation) Validate() error {
	switch o {
	case OpCreate, OpUpdate, OpDelete:
		return nil
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidKind, string(o))
	}
}

// MonthScoped reports whether the entity lives inside a month record
// (instances and ad-hoc expenses) rather than in its own store.
func (t EntityType) MonthScoped() bool {
	switch t {
	case EntityBillInstance, EntityIncomeInstance, EntityExpense:
		return true
	default:
		return false
	}
}

// TemplateKindOf maps template entity types to the template kind they hold.
func (t EntityType) TemplateKindOf() (TemplateKind, bool) {
	switch t {
	case EntityBillTemplate:
		return KindBill, true
	case EntityIncomeTemplate:
		return KindIncome, true
	default:
		return "", false
	}
}
