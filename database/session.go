package database

// Session is a scoped handle owning one undo frame on every registered
// index's stack. Go has no destructors, so callers must arrange cleanup
// themselves — the idiomatic pattern is:
//
//	sess := db.StartUndoSession(true)
//	defer sess.Drop()
//	... mutate ...
//	sess.Push() // keep the changes instead of reverting on Drop
//
// Drop is a no-op once Push or an earlier Drop has already run, so the
// deferred call is always safe to make unconditionally.
type Session struct {
	db       *Database
	revision uint64
	enabled  bool
	done     bool
}

// StartUndoSession begins a new frame on every registered index's undo
// stack when enabled is true. When enabled is false, the returned session
// is a permanent no-op, matching the source's disabled-session path.
func (db *Database) StartUndoSession(enabled bool) *Session {
	if !enabled {
		return &Session{done: true}
	}

	db.mu.Lock()
	db.revision++
	rev := db.revision
	indices := make([]registeredIndex, 0, len(db.indices))
	for _, idx := range db.indices {
		indices = append(indices, idx)
	}
	db.mu.Unlock()

	for _, idx := range indices {
		idx.BeginSession(rev)
	}
	return &Session{db: db, revision: rev, enabled: true}
}

// Push transfers ownership of this session's frame to the stack,
// suppressing Drop's undo behavior. If an outer session is still active
// on an index's stack, that index's frame is squashed into the outer
// one immediately rather than left waiting for a later observation.
func (s *Session) Push() {
	if s.done {
		return
	}
	s.done = true
	for _, idx := range s.db.indexList() {
		if idx.StackDepth() > 1 {
			idx.EndSessionSquash()
		}
	}
}

// Drop reverts this session's frame on every index, unless Push already
// ran. Safe to call multiple times.
func (s *Session) Drop() {
	if s.done {
		return
	}
	s.done = true
	for _, idx := range s.db.indexList() {
		idx.EndSessionUndo()
	}
	s.db.syncAll()
}

// Revision returns the revision number assigned to this session.
func (s *Session) Revision() uint64 { return s.revision }

func (db *Database) indexList() []registeredIndex {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]registeredIndex, 0, len(db.indices))
	for _, idx := range db.indices {
		out = append(out, idx)
	}
	return out
}

func (db *Database) syncAll() {
	for _, idx := range db.indexList() {
		db.syncIndex(idx)
	}
}

// Undo reverts the most recently pushed undo state on every registered
// index. A no-op on any index whose stack is already empty.
func (db *Database) Undo() {
	for _, idx := range db.indexList() {
		if idx.StackDepth() > 0 {
			idx.EndSessionUndo()
		}
	}
	db.syncAll()
}

// UndoAll repeatedly undoes until every index's stack is empty.
func (db *Database) UndoAll() {
	for {
		any := false
		for _, idx := range db.indexList() {
			if idx.StackDepth() > 0 {
				idx.EndSessionUndo()
				any = true
			}
		}
		if !any {
			break
		}
	}
	db.syncAll()
}

// Commit discards every undo state at or below revision across every
// registered index, bounding memory at the cost of reversibility.
func (db *Database) Commit(revision uint64) {
	for _, idx := range db.indexList() {
		idx.Commit(revision)
	}
}

// Revision returns the most recently issued session revision number.
func (db *Database) Revision() uint64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.revision
}
