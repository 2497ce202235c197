package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// MutationRequest is the tagged payload of a mutate_entity call. Exactly
// one of the payload fields matching EntityType must be set for create and
// update operations; delete needs only the identity.
type MutationRequest struct {
	EntityType core.EntityType `json:"entity_type"`
	Operation  core.Operation  `json:"operation"`
	Month      *core.YearMonth `json:"month,omitempty"` // required for month-scoped entities
	EntityID   string          `json:"entity_id,omitempty"`

	Template *core.Template      `json:"template,omitempty"`
	Instance *core.Instance      `json:"instance,omitempty"`
	Expense  *core.Expense       `json:"expense,omitempty"`
	Source   *core.PaymentSource `json:"payment_source,omitempty"`
}

// EntityResult reports what a mutation did and whether undo can reverse it.
type EntityResult struct {
	EntityType core.EntityType `json:"entity_type"`
	Operation  core.Operation  `json:"operation"`
	EntityID   string          `json:"entity_id"`
	Undoable   bool            `json:"undoable"`
}

// Mutator applies entity mutations, records their pre-images in the undo
// log, and replays inverses. Validation happens before any write; a failed
// validation never partially applies.
type Mutator struct {
	store  storage.Store
	undo   *UndoLog
	events EventPublisher
}

func NewMutator(store storage.Store, undo *UndoLog, events EventPublisher) *Mutator {
	return &Mutator{store: store, undo: undo, events: events}
}

// Mutate performs one create/update/delete. Every mutation is undoable
// except ad-hoc expense deletes, which are applied but never pushed to the
// log.
func (m *Mutator) Mutate(ctx context.Context, req MutationRequest) (EntityResult, error) {
	if err := req.EntityType.Validate(); err != nil {
		return EntityResult{}, err
	}
	if err := req.Operation.Validate(); err != nil {
		return EntityResult{}, err
	}
	if req.EntityType.MonthScoped() && req.Month == nil {
		return EntityResult{}, fmt.Errorf("%w: month is required for %s", core.ErrInvalidDate, req.EntityType)
	}

	var (
		res EntityResult
		err error
	)
	switch req.EntityType {
	case core.EntityBillTemplate, core.EntityIncomeTemplate:
		res, err = m.mutateTemplate(ctx, req)
	case core.EntityPaymentSource:
		res, err = m.mutateSource(ctx, req)
	case core.EntityBillInstance, core.EntityIncomeInstance:
		res, err = m.mutateInstance(ctx, req)
	case core.EntityExpense:
		res, err = m.mutateExpense(ctx, req)
	}
	if err != nil {
		return EntityResult{}, err
	}

	slog.InfoContext(ctx, "Entity mutated",
		"entity_type", res.EntityType,
		"operation", res.Operation,
		"entity_id", res.EntityID,
		"undoable", res.Undoable)

	if m.events != nil {
		if err := m.events.PublishEntityMutated(ctx, string(res.EntityType), string(res.Operation), res.EntityID); err != nil {
			slog.ErrorContext(ctx, "Failed to publish mutation event",
				"entity_type", res.EntityType, "entity_id", res.EntityID, "error", err)
		}
	}
	return res, nil
}

func (m *Mutator) mutateTemplate(ctx context.Context, req MutationRequest) (EntityResult, error) {
	kind, _ := req.EntityType.TemplateKindOf()

	switch req.Operation {
	case core.OpCreate:
		t, err := templatePayload(req, kind)
		if err != nil {
			return EntityResult{}, err
		}
		t.ID = 0
		id, err := m.store.SaveTemplate(ctx, t)
		if err != nil {
			return EntityResult{}, err
		}
		return m.record(req, strconv.FormatInt(id, 10), nil), nil

	case core.OpUpdate:
		id, err := parseNumericID(req.EntityID)
		if err != nil {
			return EntityResult{}, err
		}
		prior, err := m.store.LoadTemplate(ctx, id)
		if err != nil {
			return EntityResult{}, err
		}
		t, err := templatePayload(req, kind)
		if err != nil {
			return EntityResult{}, err
		}
		t.ID = id
		if _, err := m.store.SaveTemplate(ctx, t); err != nil {
			return EntityResult{}, err
		}
		return m.record(req, req.EntityID, prior), nil

	case core.OpDelete:
		id, err := parseNumericID(req.EntityID)
		if err != nil {
			return EntityResult{}, err
		}
		prior, err := m.store.LoadTemplate(ctx, id)
		if err != nil {
			return EntityResult{}, err
		}
		if err := m.store.DeleteTemplate(ctx, id); err != nil {
			return EntityResult{}, err
		}
		return m.record(req, req.EntityID, prior), nil
	}
	return EntityResult{}, fmt.Errorf("%w: %s", core.ErrInvalidKind, req.Operation)
}

func (m *Mutator) mutateSource(ctx context.Context, req MutationRequest) (EntityResult, error) {
	switch req.Operation {
	case core.OpCreate:
		if req.Source == nil {
			return EntityResult{}, fmt.Errorf("%w: missing payment_source payload", core.ErrInvalidType)
		}
		s := *req.Source
		if err := s.Validate(); err != nil {
			return EntityResult{}, err
		}
		s.ID = 0
		id, err := m.store.SavePaymentSource(ctx, &s)
		if err != nil {
			return EntityResult{}, err
		}
		return m.record(req, strconv.FormatInt(id, 10), nil), nil

	case core.OpUpdate:
		id, err := parseNumericID(req.EntityID)
		if err != nil {
			return EntityResult{}, err
		}
		prior, err := m.store.LoadPaymentSource(ctx, id)
		if err != nil {
			return EntityResult{}, err
		}
		if req.Source == nil {
			return EntityResult{}, fmt.Errorf("%w: missing payment_source payload", core.ErrInvalidType)
		}
		s := *req.Source
		if err := s.Validate(); err != nil {
			return EntityResult{}, err
		}
		s.ID = id
		if _, err := m.store.SavePaymentSource(ctx, &s); err != nil {
			return EntityResult{}, err
		}
		return m.record(req, req.EntityID, prior), nil

	case core.OpDelete:
		id, err := parseNumericID(req.EntityID)
		if err != nil {
			return EntityResult{}, err
		}
		prior, err := m.store.LoadPaymentSource(ctx, id)
		if err != nil {
			return EntityResult{}, err
		}
		if err := m.store.DeletePaymentSource(ctx, id); err != nil {
			return EntityResult{}, err
		}
		return m.record(req, req.EntityID, prior), nil
	}
	return EntityResult{}, fmt.Errorf("%w: %s", core.ErrInvalidKind, req.Operation)
}

func (m *Mutator) mutateInstance(ctx context.Context, req MutationRequest) (EntityResult, error) {
	kind := core.KindBill
	if req.EntityType == core.EntityIncomeInstance {
		kind = core.KindIncome
	}

	rec, err := m.loadOrCreateMonth(ctx, *req.Month, req.Operation == core.OpCreate)
	if err != nil {
		return EntityResult{}, err
	}

	switch req.Operation {
	case core.OpCreate:
		in, err := instancePayload(req, kind)
		if err != nil {
			return EntityResult{}, err
		}
		if in.ID == "" {
			in.ID = core.InstanceID(in.TemplateID, in.Date)
		}
		if rec.FindInstance(in.ID) != nil {
			return EntityResult{}, fmt.Errorf("instance %s: %w", in.ID, core.ErrConflict)
		}
		rec.Instances = append(rec.Instances, *in)
		if err := m.store.SaveMonth(ctx, rec); err != nil {
			return EntityResult{}, err
		}
		return m.record(req, in.ID, nil), nil

	case core.OpUpdate:
		existing := rec.FindInstance(req.EntityID)
		if existing == nil {
			return EntityResult{}, fmt.Errorf("instance %s: %w", req.EntityID, core.ErrNotFound)
		}
		in, err := instancePayload(req, kind)
		if err != nil {
			return EntityResult{}, err
		}
		// The id encodes (template, occurrence date); letting an update move
		// the date would desync it from the key it was derived from.
		if !in.Date.Equal(existing.Date.Time) {
			return EntityResult{}, fmt.Errorf("%w: occurrence date is fixed by instance id %s, delete and recreate to move it",
				core.ErrInvalidDate, req.EntityID)
		}
		prior := *existing
		in.ID = req.EntityID
		*existing = *in
		if err := m.store.SaveMonth(ctx, rec); err != nil {
			return EntityResult{}, err
		}
		return m.record(req, req.EntityID, prior), nil

	case core.OpDelete:
		existing := rec.FindInstance(req.EntityID)
		if existing == nil {
			return EntityResult{}, fmt.Errorf("instance %s: %w", req.EntityID, core.ErrNotFound)
		}
		prior := *existing
		rec.RemoveInstance(req.EntityID)
		if err := m.store.SaveMonth(ctx, rec); err != nil {
			return EntityResult{}, err
		}
		return m.record(req, req.EntityID, prior), nil
	}
	return EntityResult{}, fmt.Errorf("%w: %s", core.ErrInvalidKind, req.Operation)
}

func (m *Mutator) mutateExpense(ctx context.Context, req MutationRequest) (EntityResult, error) {
	rec, err := m.loadOrCreateMonth(ctx, *req.Month, req.Operation == core.OpCreate)
	if err != nil {
		return EntityResult{}, err
	}

	switch req.Operation {
	case core.OpCreate:
		e, err := expensePayload(req)
		if err != nil {
			return EntityResult{}, err
		}
		e.ID = rec.NextExpenseID
		rec.NextExpenseID++
		rec.Expenses = append(rec.Expenses, *e)
		if err := m.store.SaveMonth(ctx, rec); err != nil {
			return EntityResult{}, err
		}
		return m.record(req, strconv.FormatInt(e.ID, 10), nil), nil

	case core.OpUpdate:
		id, err := parseNumericID(req.EntityID)
		if err != nil {
			return EntityResult{}, err
		}
		existing := rec.FindExpense(id)
		if existing == nil {
			return EntityResult{}, fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
		}
		e, err := expensePayload(req)
		if err != nil {
			return EntityResult{}, err
		}
		prior := *existing
		e.ID = id
		*existing = *e
		if err := m.store.SaveMonth(ctx, rec); err != nil {
			return EntityResult{}, err
		}
		return m.record(req, req.EntityID, prior), nil

	case core.OpDelete:
		id, err := parseNumericID(req.EntityID)
		if err != nil {
			return EntityResult{}, err
		}
		if !rec.RemoveExpense(id) {
			return EntityResult{}, fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
		}
		if err := m.store.SaveMonth(ctx, rec); err != nil {
			return EntityResult{}, err
		}
		// Ad-hoc expense deletes are not undoable: applied, never pushed.
		// Whatever the log held before stays held.
		return EntityResult{
			EntityType: req.EntityType,
			Operation:  req.Operation,
			EntityID:   req.EntityID,
			Undoable:   false,
		}, nil
	}
	return EntityResult{}, fmt.Errorf("%w: %s", core.ErrInvalidKind, req.Operation)
}

// record pushes the undo entry for an applied mutation and builds its
// result. prior is the pre-image value (nil for creates).
func (m *Mutator) record(req MutationRequest, entityID string, prior any) EntityResult {
	entry := core.UndoEntry{
		EntityType: req.EntityType,
		Operation:  req.Operation,
		EntityID:   entityID,
		Month:      req.Month,
	}
	if prior != nil {
		// Marshal of domain structs cannot fail; the pre-image stays nil
		// JSON for creates.
		pre, _ := json.Marshal(prior)
		entry.PreImage = pre
	}
	m.undo.Push(entry)

	return EntityResult{
		EntityType: req.EntityType,
		Operation:  req.Operation,
		EntityID:   entityID,
		Undoable:   true,
	}
}

// Undo pops the held entry and replays its inverse: delete the created
// entity, overwrite with the pre-image, or recreate the deleted entity
// under its original id. The replay switch is total over the entity enum.
func (m *Mutator) Undo(ctx context.Context) (*core.UndoEntry, error) {
	entry, err := m.undo.Pop()
	if err != nil {
		return nil, err
	}

	switch entry.EntityType {
	case core.EntityBillTemplate, core.EntityIncomeTemplate:
		err = m.undoTemplate(ctx, entry)
	case core.EntityPaymentSource:
		err = m.undoSource(ctx, entry)
	case core.EntityBillInstance, core.EntityIncomeInstance:
		err = m.undoInstance(ctx, entry)
	case core.EntityExpense:
		err = m.undoExpense(ctx, entry)
	default:
		err = fmt.Errorf("%w: %q", core.ErrInvalidKind, entry.EntityType)
	}
	if err != nil {
		return nil, fmt.Errorf("undo %s %s %s: %w", entry.Operation, entry.EntityType, entry.EntityID, err)
	}

	slog.InfoContext(ctx, "Mutation undone",
		"entity_type", entry.EntityType,
		"operation", entry.Operation,
		"entity_id", entry.EntityID)
	return entry, nil
}

func (m *Mutator) undoTemplate(ctx context.Context, entry *core.UndoEntry) error {
	id, err := parseNumericID(entry.EntityID)
	if err != nil {
		return err
	}
	if entry.Operation == core.OpCreate {
		return m.store.DeleteTemplate(ctx, id)
	}
	var t core.Template
	if err := json.Unmarshal(entry.PreImage, &t); err != nil {
		return fmt.Errorf("decode pre-image: %w", err)
	}
	_, err = m.store.SaveTemplate(ctx, &t)
	return err
}

func (m *Mutator) undoSource(ctx context.Context, entry *core.UndoEntry) error {
	id, err := parseNumericID(entry.EntityID)
	if err != nil {
		return err
	}
	if entry.Operation == core.OpCreate {
		return m.store.DeletePaymentSource(ctx, id)
	}
	var s core.PaymentSource
	if err := json.Unmarshal(entry.PreImage, &s); err != nil {
		return fmt.Errorf("decode pre-image: %w", err)
	}
	_, err = m.store.SavePaymentSource(ctx, &s)
	return err
}

func (m *Mutator) undoInstance(ctx context.Context, entry *core.UndoEntry) error {
	rec, err := m.store.LoadMonth(ctx, *entry.Month)
	if err != nil {
		return err
	}

	switch entry.Operation {
	case core.OpCreate:
		if !rec.RemoveInstance(entry.EntityID) {
			return fmt.Errorf("instance %s: %w", entry.EntityID, core.ErrNotFound)
		}
	case core.OpUpdate:
		existing := rec.FindInstance(entry.EntityID)
		if existing == nil {
			return fmt.Errorf("instance %s: %w", entry.EntityID, core.ErrNotFound)
		}
		var in core.Instance
		if err := json.Unmarshal(entry.PreImage, &in); err != nil {
			return fmt.Errorf("decode pre-image: %w", err)
		}
		*existing = in
	case core.OpDelete:
		var in core.Instance
		if err := json.Unmarshal(entry.PreImage, &in); err != nil {
			return fmt.Errorf("decode pre-image: %w", err)
		}
		rec.Instances = append(rec.Instances, in)
	}
	return m.store.SaveMonth(ctx, rec)
}

func (m *Mutator) undoExpense(ctx context.Context, entry *core.UndoEntry) error {
	rec, err := m.store.LoadMonth(ctx, *entry.Month)
	if err != nil {
		return err
	}

	switch entry.Operation {
	case core.OpCreate:
		id, err := parseNumericID(entry.EntityID)
		if err != nil {
			return err
		}
		if !rec.RemoveExpense(id) {
			return fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
		}
	case core.OpUpdate:
		id, err := parseNumericID(entry.EntityID)
		if err != nil {
			return err
		}
		existing := rec.FindExpense(id)
		if existing == nil {
			return fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
		}
		var e core.Expense
		if err := json.Unmarshal(entry.PreImage, &e); err != nil {
			return fmt.Errorf("decode pre-image: %w", err)
		}
		*existing = e
	case core.OpDelete:
		// Unreachable while expense deletes are excluded from the log;
		// kept so the replay switch stays total.
		var e core.Expense
		if err := json.Unmarshal(entry.PreImage, &e); err != nil {
			return fmt.Errorf("decode pre-image: %w", err)
		}
		rec.Expenses = append(rec.Expenses, e)
	}
	return m.store.SaveMonth(ctx, rec)
}

func (m *Mutator) loadOrCreateMonth(ctx context.Context, month core.YearMonth, allowCreate bool) (*core.MonthRecord, error) {
	rec, err := m.store.LoadMonth(ctx, month)
	if err == nil {
		return rec, nil
	}
	if core.IsNotFound(err) && allowCreate {
		return core.NewMonthRecord(month), nil
	}
	return nil, err
}

func templatePayload(req MutationRequest, kind core.TemplateKind) (*core.Template, error) {
	if req.Template == nil {
		return nil, fmt.Errorf("%w: missing template payload", core.ErrInvalidKind)
	}
	t := *req.Template
	t.Kind = kind
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func instancePayload(req MutationRequest, kind core.TemplateKind) (*core.Instance, error) {
	if req.Instance == nil {
		return nil, fmt.Errorf("%w: missing instance payload", core.ErrInvalidKind)
	}
	in := *req.Instance
	in.Kind = kind
	in.Month = *req.Month
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if !req.Month.Contains(in.Date) {
		return nil, fmt.Errorf("%w: occurrence date %s outside month %s", core.ErrInvalidDate, in.Date, req.Month)
	}
	return &in, nil
}

func expensePayload(req MutationRequest) (*core.Expense, error) {
	if req.Expense == nil {
		return nil, fmt.Errorf("%w: missing expense payload", core.ErrInvalidClass)
	}
	e := *req.Expense
	e.Month = *req.Month
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if !req.Month.Contains(e.Date) {
		return nil, fmt.Errorf("%w: date %s outside month %s", core.ErrInvalidDate, e.Date, req.Month)
	}
	return &e, nil
}

func parseNumericID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: entity id %q", core.ErrInvalidKind, s)
	}
	return id, nil
}
