package services

import (
	"sync"

	"bilancio/internal/core"
)

// UndoLog holds at most one pending undo entry. It is constructor-injected
// state, never a package global, so tests and independent engine instances
// each get their own. Process-scoped only: it resets on restart.
type UndoLog struct {
	mu    sync.Mutex
	entry *core.UndoEntry
}

func NewUndoLog() *UndoLog {
	return &UndoLog{}
}

// Push replaces whatever entry was previously held. Single-level undo.
func (l *UndoLog) Push(e core.UndoEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry = &e
}

// Pop removes and returns the held entry, or core.ErrNothingToUndo.
func (l *UndoLog) Pop() (*core.UndoEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.entry == nil {
		return nil, core.ErrNothingToUndo
	}
	e := l.entry
	l.entry = nil
	return e, nil
}
