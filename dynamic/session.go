package dynamic

// BeginSession pushes a fresh undo state onto this table's own stack.
func (t *Table) BeginSession(revision uint64) { t.idx.BeginSession(revision) }

// EndSessionUndo reverts this table to the state it was in when the top
// undo state was pushed, then drops every cached record since any of
// them may no longer be live.
func (t *Table) EndSessionUndo() {
	t.idx.EndSessionUndo()
	t.invalidateAll()
}

// EndSessionSquash merges the top undo state into the one beneath it.
func (t *Table) EndSessionSquash() { t.idx.EndSessionSquash() }

// Commit discards every undo state at or below revision.
func (t *Table) Commit(revision uint64) {
	t.idx.Commit(revision)
	t.invalidateAll()
}

// StackDepth reports how many undo states are currently pushed.
func (t *Table) StackDepth() int { return t.idx.StackDepth() }
