package objectstore

import "errors"

var (
	// ErrSessionClosed is returned when a session is used after Undo, Squash
	// or Push.
	ErrSessionClosed = errors.New("undo session already closed")

	// ErrSessionNotTop is returned when a session is closed while a session
	// started after it is still open.
	ErrSessionNotTop = errors.New("undo session is not the innermost session")

	// ErrNothingToUndo is returned by Store.Undo with an empty history.
	ErrNothingToUndo = errors.New("no undo history")

	// ErrSessionOpen is returned by Store.Undo while a session is open.
	ErrSessionOpen = errors.New("an undo session is still open")
)

// undoState is one revision of history: the inverse of every mutation made
// while it was open, in the order they happened.
type undoState struct {
	revision int64
	open     bool
	reverts  []func()
}

func (u *undoState) revert() {
	for i := len(u.reverts) - 1; i >= 0; i-- {
		u.reverts[i]()
	}
	u.reverts = nil
}

// record appends an inverse to the innermost open session. Mutations made
// with no open session are permanent.
func (s *Store) record(revert func()) {
	if len(s.stack) == 0 {
		return
	}
	top := s.stack[len(s.stack)-1]
	if !top.open {
		return
	}
	top.reverts = append(top.reverts, revert)
}

// Session is an open revision on the undo stack. Exactly one of Undo, Squash
// or Push closes it.
type Session struct {
	store *Store
	state *undoState
}

// StartUndoSession opens a new revision nested inside any open one.
func (s *Store) StartUndoSession() *Session {
	s.revision++
	st := &undoState{revision: s.revision, open: true}
	s.stack = append(s.stack, st)
	return &Session{store: s, state: st}
}

// Revision returns the revision of the newest state on the undo stack, or
// the last committed revision when the stack is empty.
func (s *Store) Revision() int64 { return s.revision }

// UndoDepth returns how many revisions can still be undone.
func (s *Store) UndoDepth() int { return len(s.stack) }

func (ss *Session) checkTop() error {
	if ss.state == nil {
		return ErrSessionClosed
	}
	stack := ss.store.stack
	if len(stack) == 0 || stack[len(stack)-1] != ss.state {
		return ErrSessionNotTop
	}
	return nil
}

// Undo reverts every mutation made in the session, restoring records, index
// positions and id counters.
func (ss *Session) Undo() error {
	if err := ss.checkTop(); err != nil {
		return err
	}
	s := ss.store
	ss.state.revert()
	s.stack = s.stack[:len(s.stack)-1]
	s.revision--
	ss.state = nil
	return nil
}

// Squash merges the session into the enclosing one, so undoing the parent
// also undoes this session's work. Without an enclosing open session the
// history is dropped and the changes become permanent.
func (ss *Session) Squash() error {
	if err := ss.checkTop(); err != nil {
		return err
	}
	s := ss.store
	s.stack = s.stack[:len(s.stack)-1]
	s.revision--
	if n := len(s.stack); n > 0 && s.stack[n-1].open {
		parent := s.stack[n-1]
		parent.reverts = append(parent.reverts, ss.state.reverts...)
	}
	ss.state = nil
	return nil
}

// Push closes the session but keeps its history on the stack, where
// Store.Undo can revert it later.
func (ss *Session) Push() error {
	if err := ss.checkTop(); err != nil {
		return err
	}
	ss.state.open = false
	ss.state = nil
	return nil
}

// Undo reverts the newest pushed revision.
func (s *Store) Undo() error {
	n := len(s.stack)
	if n == 0 {
		return ErrNothingToUndo
	}
	top := s.stack[n-1]
	if top.open {
		return ErrSessionOpen
	}
	top.revert()
	s.stack = s.stack[:n-1]
	s.revision--
	return nil
}

// Commit discards history for every closed revision up to and including
// revision. Committed changes can no longer be undone.
func (s *Store) Commit(revision int64) {
	i := 0
	for i < len(s.stack) && s.stack[i].revision <= revision && !s.stack[i].open {
		s.stack[i] = nil
		i++
	}
	s.stack = s.stack[i:]
}
