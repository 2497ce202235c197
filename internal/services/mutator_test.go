package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

func newMutator(store storage.Store) *Mutator {
	return NewMutator(store, NewUndoLog(), nil)
}

func billTemplate() core.Template {
	anchor := core.NewDate(2025, 1, 3)
	return core.Template{
		Kind:            core.KindBill,
		Name:            "Cleaner",
		Amount:          core.Money{Cents: 10000},
		Period:          core.BiWeekly,
		Anchor:          &anchor,
		PaymentSourceID: 1,
		Category:        "home",
		Active:          true,
	}
}

func TestMutator_TemplateCreateAndUndo(t *testing.T) {
	store := storage.NewMemoryStore()
	m := newMutator(store)
	ctx := context.Background()

	tpl := billTemplate()
	res, err := m.Mutate(ctx, MutationRequest{
		EntityType: core.EntityBillTemplate,
		Operation:  core.OpCreate,
		Template:   &tpl,
	})
	if err != nil {
		t.Fatalf("Mutate(create) error = %v", err)
	}
	if res.EntityID != "1" || !res.Undoable {
		t.Errorf("result = %+v, want undoable create of id 1", res)
	}

	if _, err := store.LoadTemplate(ctx, 1); err != nil {
		t.Fatalf("template absent after create: %v", err)
	}

	entry, err := m.Undo(ctx)
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if entry.Operation != core.OpCreate {
		t.Errorf("undone operation = %s, want create", entry.Operation)
	}
	if _, err := store.LoadTemplate(ctx, 1); !core.IsNotFound(err) {
		t.Errorf("LoadTemplate() after undo error = %v, want not found", err)
	}
}

func TestMutator_TemplateDeleteAndUndoRestoresEverything(t *testing.T) {
	store := storage.NewMemoryStore()
	m := newMutator(store)
	ctx := context.Background()

	original := billTemplate()
	id, err := store.SaveTemplate(ctx, &original)
	if err != nil {
		t.Fatalf("SaveTemplate() error = %v", err)
	}

	if _, err := m.Mutate(ctx, MutationRequest{
		EntityType: core.EntityBillTemplate,
		Operation:  core.OpDelete,
		EntityID:   "1",
	}); err != nil {
		t.Fatalf("Mutate(delete) error = %v", err)
	}
	if _, err := store.LoadTemplate(ctx, id); !core.IsNotFound(err) {
		t.Fatalf("template still present after delete: %v", err)
	}

	if _, err := m.Undo(ctx); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}

	restored, err := store.LoadTemplate(ctx, id)
	if err != nil {
		t.Fatalf("LoadTemplate() after undo error = %v", err)
	}
	if restored.ID != id {
		t.Errorf("restored id = %d, want original %d", restored.ID, id)
	}
	if restored.Name != original.Name ||
		restored.Amount != original.Amount ||
		restored.Period != original.Period ||
		restored.Category != original.Category ||
		restored.PaymentSourceID != original.PaymentSourceID ||
		restored.Active != original.Active {
		t.Errorf("restored = %+v, want every field of %+v", restored, original)
	}
	if restored.Anchor == nil || restored.Anchor.String() != "2025-01-03" {
		t.Errorf("restored anchor = %v, want 2025-01-03", restored.Anchor)
	}
}

func TestMutator_UpdateUndoRestoresPreImage(t *testing.T) {
	store := storage.NewMemoryStore()
	m := newMutator(store)
	ctx := context.Background()

	original := billTemplate()
	if _, err := store.SaveTemplate(ctx, &original); err != nil {
		t.Fatalf("SaveTemplate() error = %v", err)
	}

	edited := billTemplate()
	edited.Name = "Deep clean"
	edited.Amount = core.Money{Cents: 15000}
	if _, err := m.Mutate(ctx, MutationRequest{
		EntityType: core.EntityBillTemplate,
		Operation:  core.OpUpdate,
		EntityID:   "1",
		Template:   &edited,
	}); err != nil {
		t.Fatalf("Mutate(update) error = %v", err)
	}

	updated, _ := store.LoadTemplate(ctx, 1)
	if updated.Name != "Deep clean" || updated.Amount.Cents != 15000 {
		t.Fatalf("update not applied: %+v", updated)
	}

	if _, err := m.Undo(ctx); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	restored, _ := store.LoadTemplate(ctx, 1)
	if restored.Name != original.Name || restored.Amount != original.Amount {
		t.Errorf("restored = %+v, want pre-image %+v", restored, original)
	}
}

func TestMutator_SingleSlot(t *testing.T) {
	store := storage.NewMemoryStore()
	m := newMutator(store)
	ctx := context.Background()

	first := billTemplate()
	if _, err := m.Mutate(ctx, MutationRequest{
		EntityType: core.EntityBillTemplate, Operation: core.OpCreate, Template: &first,
	}); err != nil {
		t.Fatalf("first create error = %v", err)
	}
	second := billTemplate()
	second.Name = "Gardener"
	if _, err := m.Mutate(ctx, MutationRequest{
		EntityType: core.EntityBillTemplate, Operation: core.OpCreate, Template: &second,
	}); err != nil {
		t.Fatalf("second create error = %v", err)
	}

	// Only the latest mutation is reversible.
	entry, err := m.Undo(ctx)
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if entry.EntityID != "2" {
		t.Errorf("undone entity = %s, want 2", entry.EntityID)
	}
	if _, err := store.LoadTemplate(ctx, 1); err != nil {
		t.Errorf("first template gone after undoing second: %v", err)
	}

	if _, err := m.Undo(ctx); !errors.Is(err, core.ErrNothingToUndo) {
		t.Errorf("second Undo() error = %v, want ErrNothingToUndo", err)
	}
}

func TestMutator_InstanceLifecycle(t *testing.T) {
	store := storage.NewMemoryStore()
	m := newMutator(store)
	ctx := context.Background()
	month := feb2025()

	in := core.Instance{
		TemplateID: 7,
		Date:       core.NewDate(2025, 2, 14),
		Amount:     core.Money{Cents: 10000},
		Name:       "Cleaner",
	}
	res, err := m.Mutate(ctx, MutationRequest{
		EntityType: core.EntityBillInstance,
		Operation:  core.OpCreate,
		Month:      &month,
		Instance:   &in,
	})
	if err != nil {
		t.Fatalf("Mutate(create instance) error = %v", err)
	}
	if res.EntityID != "7@2025-02-14" {
		t.Errorf("instance id = %s, want 7@2025-02-14", res.EntityID)
	}

	t.Run("duplicate create conflicts", func(t *testing.T) {
		dup := in
		_, err := m.Mutate(ctx, MutationRequest{
			EntityType: core.EntityBillInstance,
			Operation:  core.OpCreate,
			Month:      &month,
			Instance:   &dup,
		})
		if !errors.Is(err, core.ErrConflict) {
			t.Errorf("duplicate create error = %v, want ErrConflict", err)
		}
	})

	t.Run("update then undo", func(t *testing.T) {
		edited := in
		edited.Amount = core.Money{Cents: 12000}
		if _, err := m.Mutate(ctx, MutationRequest{
			EntityType: core.EntityBillInstance,
			Operation:  core.OpUpdate,
			Month:      &month,
			EntityID:   "7@2025-02-14",
			Instance:   &edited,
		}); err != nil {
			t.Fatalf("Mutate(update) error = %v", err)
		}

		if _, err := m.Undo(ctx); err != nil {
			t.Fatalf("Undo() error = %v", err)
		}
		rec, _ := store.LoadMonth(ctx, month)
		if got := rec.FindInstance("7@2025-02-14").Amount.Cents; got != 10000 {
			t.Errorf("amount = %d after undo, want 10000", got)
		}
	})

	t.Run("delete then undo", func(t *testing.T) {
		if _, err := m.Mutate(ctx, MutationRequest{
			EntityType: core.EntityBillInstance,
			Operation:  core.OpDelete,
			Month:      &month,
			EntityID:   "7@2025-02-14",
		}); err != nil {
			t.Fatalf("Mutate(delete) error = %v", err)
		}
		rec, _ := store.LoadMonth(ctx, month)
		if rec.FindInstance("7@2025-02-14") != nil {
			t.Fatal("instance still present after delete")
		}

		if _, err := m.Undo(ctx); err != nil {
			t.Fatalf("Undo() error = %v", err)
		}
		rec, _ = store.LoadMonth(ctx, month)
		restored := rec.FindInstance("7@2025-02-14")
		if restored == nil {
			t.Fatal("instance not restored by undo")
		}
		if restored.Amount.Cents != 10000 || restored.Name != "Cleaner" {
			t.Errorf("restored = %+v, want original fields", restored)
		}
	})

	t.Run("update cannot move the occurrence date", func(t *testing.T) {
		moved := in
		moved.Date = core.NewDate(2025, 2, 21)
		_, err := m.Mutate(ctx, MutationRequest{
			EntityType: core.EntityBillInstance,
			Operation:  core.OpUpdate,
			Month:      &month,
			EntityID:   "7@2025-02-14",
			Instance:   &moved,
		})
		if !errors.Is(err, core.ErrInvalidDate) {
			t.Errorf("date-moving update error = %v, want ErrInvalidDate", err)
		}

		rec, _ := store.LoadMonth(ctx, month)
		if got := rec.FindInstance("7@2025-02-14").Date.String(); got != "2025-02-14" {
			t.Errorf("occurrence date = %s after rejected update, want 2025-02-14", got)
		}
	})

	t.Run("date outside month rejected", func(t *testing.T) {
		bad := in
		bad.Date = core.NewDate(2025, 3, 1)
		_, err := m.Mutate(ctx, MutationRequest{
			EntityType: core.EntityBillInstance,
			Operation:  core.OpCreate,
			Month:      &month,
			Instance:   &bad,
		})
		if !errors.Is(err, core.ErrInvalidDate) {
			t.Errorf("out-of-month create error = %v, want ErrInvalidDate", err)
		}
	})
}

func TestMutator_InstanceDeleteUndoRestoresDocument(t *testing.T) {
	store := storage.NewMemoryStore()
	m := newMutator(store)
	ctx := context.Background()
	month := feb2025()

	rec := core.NewMonthRecord(month)
	rec.Instances = []core.Instance{
		{
			ID: "1@2025-02-10", TemplateID: 1, Kind: core.KindBill, Month: month,
			Date: core.NewDate(2025, 2, 10), Amount: core.Money{Cents: 10000}, Name: "Cleaner",
		},
		{
			ID: "2@2025-02-20", TemplateID: 2, Kind: core.KindBill, Month: month,
			Date: core.NewDate(2025, 2, 20), Amount: core.Money{Cents: 90000}, Name: "Rent",
		},
	}
	if err := store.SaveMonth(ctx, rec); err != nil {
		t.Fatalf("SaveMonth() error = %v", err)
	}

	loaded, err := store.LoadMonth(ctx, month)
	if err != nil {
		t.Fatalf("LoadMonth() error = %v", err)
	}
	before, err := json.Marshal(loaded)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	// Delete the first instance, not the last: undo must put it back in
	// place, not at the tail of the slice.
	if _, err := m.Mutate(ctx, MutationRequest{
		EntityType: core.EntityBillInstance,
		Operation:  core.OpDelete,
		Month:      &month,
		EntityID:   "1@2025-02-10",
	}); err != nil {
		t.Fatalf("Mutate(delete) error = %v", err)
	}
	if _, err := m.Undo(ctx); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}

	loaded, err = store.LoadMonth(ctx, month)
	if err != nil {
		t.Fatalf("LoadMonth() after undo error = %v", err)
	}
	after, err := json.Marshal(loaded)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Errorf("month document after delete+undo = %s, want unchanged %s", after, before)
	}
}

func TestMutator_ExpenseDeleteNotUndoable(t *testing.T) {
	store := storage.NewMemoryStore()
	m := newMutator(store)
	ctx := context.Background()
	month := feb2025()

	exp := core.Expense{
		Class:  core.Variable,
		Date:   core.NewDate(2025, 2, 10),
		Amount: core.Money{Cents: 2500},
		Name:   "Groceries",
	}
	created, err := m.Mutate(ctx, MutationRequest{
		EntityType: core.EntityExpense,
		Operation:  core.OpCreate,
		Month:      &month,
		Expense:    &exp,
	})
	if err != nil {
		t.Fatalf("Mutate(create expense) error = %v", err)
	}
	if created.EntityID != "1" || !created.Undoable {
		t.Errorf("create result = %+v, want undoable id 1", created)
	}

	deleted, err := m.Mutate(ctx, MutationRequest{
		EntityType: core.EntityExpense,
		Operation:  core.OpDelete,
		Month:      &month,
		EntityID:   "1",
	})
	if err != nil {
		t.Fatalf("Mutate(delete expense) error = %v", err)
	}
	if deleted.Undoable {
		t.Error("expense delete reported undoable, want not undoable")
	}

	rec, _ := store.LoadMonth(ctx, month)
	if rec.FindExpense(1) != nil {
		t.Error("expense still present; delete must apply even though not undoable")
	}

	// The log still holds the create: undoing now reverses the create, not
	// the delete.
	entry, err := m.Undo(ctx)
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if entry.Operation != core.OpCreate || entry.EntityType != core.EntityExpense {
		t.Errorf("undone entry = %+v, want the earlier expense create", entry)
	}
}

func TestMutator_ExpenseIDsAdvance(t *testing.T) {
	store := storage.NewMemoryStore()
	m := newMutator(store)
	ctx := context.Background()
	month := feb2025()

	for i := 0; i < 2; i++ {
		exp := core.Expense{
			Class:  core.FreeFlow,
			Date:   core.NewDate(2025, 2, 10),
			Amount: core.Money{Cents: 1000},
			Name:   "Coffee",
		}
		if _, err := m.Mutate(ctx, MutationRequest{
			EntityType: core.EntityExpense,
			Operation:  core.OpCreate,
			Month:      &month,
			Expense:    &exp,
		}); err != nil {
			t.Fatalf("Mutate(create) #%d error = %v", i+1, err)
		}
	}

	rec, _ := store.LoadMonth(ctx, month)
	if len(rec.Expenses) != 2 || rec.Expenses[0].ID == rec.Expenses[1].ID {
		t.Errorf("expenses = %+v, want two distinct ids", rec.Expenses)
	}
	if rec.NextExpenseID != 3 {
		t.Errorf("NextExpenseID = %d, want 3", rec.NextExpenseID)
	}
}

func TestMutator_SourceLifecycle(t *testing.T) {
	store := storage.NewMemoryStore()
	m := newMutator(store)
	ctx := context.Background()

	src := core.PaymentSource{Name: "Visa", Type: core.CreditCard, Balance: core.Money{Cents: -50000}, PayOffMonthly: true}
	res, err := m.Mutate(ctx, MutationRequest{
		EntityType: core.EntityPaymentSource,
		Operation:  core.OpCreate,
		Source:     &src,
	})
	if err != nil {
		t.Fatalf("Mutate(create source) error = %v", err)
	}

	if _, err := m.Mutate(ctx, MutationRequest{
		EntityType: core.EntityPaymentSource,
		Operation:  core.OpDelete,
		EntityID:   res.EntityID,
	}); err != nil {
		t.Fatalf("Mutate(delete source) error = %v", err)
	}

	if _, err := m.Undo(ctx); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	restored, err := store.LoadPaymentSource(ctx, 1)
	if err != nil {
		t.Fatalf("LoadPaymentSource() after undo error = %v", err)
	}
	if restored.Balance.Cents != -50000 || !restored.PayOffMonthly {
		t.Errorf("restored = %+v, want original balance and flags", restored)
	}
}

func TestMutator_Validation(t *testing.T) {
	store := storage.NewMemoryStore()
	m := newMutator(store)
	ctx := context.Background()
	month := feb2025()

	tests := []struct {
		name    string
		req     MutationRequest
		wantErr error
	}{
		{
			name:    "unknown entity type",
			req:     MutationRequest{EntityType: "wallet", Operation: core.OpCreate},
			wantErr: core.ErrInvalidKind,
		},
		{
			name:    "unknown operation",
			req:     MutationRequest{EntityType: core.EntityBillTemplate, Operation: "upsert"},
			wantErr: core.ErrInvalidKind,
		},
		{
			name:    "month-scoped entity without month",
			req:     MutationRequest{EntityType: core.EntityExpense, Operation: core.OpCreate},
			wantErr: core.ErrInvalidDate,
		},
		{
			name:    "missing payload",
			req:     MutationRequest{EntityType: core.EntityBillTemplate, Operation: core.OpCreate},
			wantErr: core.ErrInvalidKind,
		},
		{
			name: "invalid template payload",
			req: MutationRequest{
				EntityType: core.EntityBillTemplate,
				Operation:  core.OpCreate,
				Template:   &core.Template{Name: "x", Amount: core.Money{Cents: -1}, Period: core.Monthly},
			},
			wantErr: core.ErrInvalidAmount,
		},
		{
			name: "update of absent entity",
			req: MutationRequest{
				EntityType: core.EntityExpense,
				Operation:  core.OpUpdate,
				Month:      &month,
				EntityID:   "99",
				Expense:    &core.Expense{Class: core.Variable, Date: core.NewDate(2025, 2, 1), Amount: core.Money{Cents: 100}, Name: "x"},
			},
			wantErr: core.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Mutate(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Mutate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// A rejected mutation must leave the undo log untouched.
	if _, err := m.Undo(ctx); !errors.Is(err, core.ErrNothingToUndo) {
		t.Errorf("Undo() after rejected mutations error = %v, want ErrNothingToUndo", err)
	}
}
