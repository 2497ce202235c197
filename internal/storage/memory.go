package storage

import (
	"context"
	"fmt"
	"sync"

	"bilancio/internal/core"
)

// MemoryStore is the in-memory Store used by the memory backend and by unit
// tests. Entities are deep-copied on the way in and out so callers can never
// alias internal state.
type MemoryStore struct {
	mu        sync.Mutex
	templates map[int64]core.Template
	months    map[string]*core.MonthRecord
	sources   map[int64]core.PaymentSource
	nextTmpl  int64
	nextSrc   int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: make(map[int64]core.Template),
		months:    make(map[string]*core.MonthRecord),
		sources:   make(map[int64]core.PaymentSource),
		nextTmpl:  1,
		nextSrc:   1,
	}
}

func (m *MemoryStore) LoadTemplates(_ context.Context, kind core.TemplateKind) ([]core.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []core.Template
	for id := int64(1); id < m.nextTmpl; id++ {
		t, ok := m.templates[id]
		if ok && t.Kind == kind {
			out = append(out, copyTemplate(t))
		}
	}
	return out, nil
}

func (m *MemoryStore) LoadTemplate(_ context.Context, id int64) (*core.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %d: %w", id, core.ErrNotFound)
	}
	c := copyTemplate(t)
	return &c, nil
}

func (m *MemoryStore) SaveTemplate(_ context.Context, t *core.Template) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := copyTemplate(*t)
	if c.ID == 0 {
		c.ID = m.nextTmpl
		m.nextTmpl++
	} else if c.ID >= m.nextTmpl {
		m.nextTmpl = c.ID + 1
	}
	m.templates[c.ID] = c
	return c.ID, nil
}

func (m *MemoryStore) DeleteTemplate(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.templates[id]; !ok {
		return fmt.Errorf("template %d: %w", id, core.ErrNotFound)
	}
	delete(m.templates, id)
	return nil
}

func (m *MemoryStore) LoadMonth(_ context.Context, month core.YearMonth) (*core.MonthRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.months[month.String()]
	if !ok {
		return nil, fmt.Errorf("month %s: %w", month, core.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) SaveMonth(_ context.Context, rec *core.MonthRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := rec.Clone()
	c.Normalize()
	m.months[rec.Month.String()] = c
	return nil
}

func (m *MemoryStore) LoadPaymentSources(_ context.Context) ([]core.PaymentSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []core.PaymentSource
	for id := int64(1); id < m.nextSrc; id++ {
		if s, ok := m.sources[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) LoadPaymentSource(_ context.Context, id int64) (*core.PaymentSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sources[id]
	if !ok {
		return nil, fmt.Errorf("payment source %d: %w", id, core.ErrNotFound)
	}
	return &s, nil
}

func (m *MemoryStore) SavePaymentSource(_ context.Context, s *core.PaymentSource) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *s
	if c.ID == 0 {
		c.ID = m.nextSrc
		m.nextSrc++
	} else if c.ID >= m.nextSrc {
		m.nextSrc = c.ID + 1
	}
	m.sources[c.ID] = c
	return c.ID, nil
}

func (m *MemoryStore) DeletePaymentSource(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sources[id]; !ok {
		return fmt.Errorf("payment source %d: %w", id, core.ErrNotFound)
	}
	delete(m.sources, id)
	return nil
}

func copyTemplate(t core.Template) core.Template {
	if t.Anchor != nil {
		a := *t.Anchor
		t.Anchor = &a
	}
	return t
}
