package dynamic

// Session is a scoped handle owning one undo frame on every table
// currently registered on a Dynamic Database, advancing and reverting
// together under one shared revision number — the realization of "one
// shared undo stack across all its tables" without a composite-key
// rewrite of the generic undo machinery: each table still keeps its own
// independent stack, fanned out in lockstep from here.
type Session struct {
	db       *Database
	revision uint64
	enabled  bool
	done     bool
}

// StartUndoSession begins a new frame on every registered table's undo
// stack when enabled is true.
func (db *Database) StartUndoSession(enabled bool) *Session {
	if !enabled {
		return &Session{done: true}
	}

	db.mu.Lock()
	db.revision++
	rev := db.revision
	tables := make([]registeredTable, 0, len(db.tables))
	for _, t := range db.tables {
		tables = append(tables, t)
	}
	db.mu.Unlock()

	for _, t := range tables {
		t.BeginSession(rev)
	}
	return &Session{db: db, revision: rev, enabled: true}
}

// Push transfers ownership of this session's frame to the stack on every
// table, squashing into an outer frame immediately where one exists.
func (s *Session) Push() {
	if s.done {
		return
	}
	s.done = true
	for _, t := range s.db.tableList() {
		if t.StackDepth() > 1 {
			t.EndSessionSquash()
		}
	}
}

// Drop reverts this session's frame on every table, unless Push already
// ran. Safe to call multiple times.
func (s *Session) Drop() {
	if s.done {
		return
	}
	s.done = true
	for _, t := range s.db.tableList() {
		t.EndSessionUndo()
	}
	s.db.syncAll()
}

// Revision returns the revision number assigned to this session.
func (s *Session) Revision() uint64 { return s.revision }

// Undo reverts the most recently pushed undo state on every table. A
// table created after the frame was pushed (e.g. inside the session that
// is being undone) has no matching frame and is left untouched by this
// step; CreateTable/RemoveTable are not themselves undoable.
func (db *Database) Undo() {
	for _, t := range db.tableList() {
		if t.StackDepth() > 0 {
			t.EndSessionUndo()
		}
	}
	db.syncAll()
}

// UndoAll repeatedly undoes until every table's stack is empty.
func (db *Database) UndoAll() {
	for {
		any := false
		for _, t := range db.tableList() {
			if t.StackDepth() > 0 {
				t.EndSessionUndo()
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
// table, bounding memory at the cost of reversibility.
func (db *Database) Commit(revision uint64) {
	for _, t := range db.tableList() {
		t.Commit(revision)
	}
}
