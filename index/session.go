package index

import "github.com/Unhackables/chainbase/undo"

// BeginSession pushes a fresh undo state onto this index's stack, per the
// database façade's start_undo_session fanning out to every registered
// index regardless of whether that index is touched during the session.
func (x *Index[T]) BeginSession(revision uint64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return
	}
	x.stack.StartUndo(x.nextID, revision)
}

// EndSessionUndo pops the top undo state and reverts this index to the
// state it was in when that state was pushed.
func (x *Index[T]) EndSessionUndo() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return
	}
	st := x.stack.Pop()
	if st == nil {
		return
	}
	x.applyUndoLocked(st)
	_ = x.persistLocked()
}

// EndSessionSquash merges the top undo state into the one beneath it,
// used when an inner session ends with push() while an outer session is
// still active.
func (x *Index[T]) EndSessionSquash() {
	x.stack.Squash()
}

// Commit discards every undo state at or below revision, bounding the
// stack's memory and making those mutations irreversible.
func (x *Index[T]) Commit(revision uint64) {
	x.stack.Commit(revision)
}

// applyUndoLocked implements the revert order from the source: new
// objects go first, then old_values snapshots replace live objects,
// then removed_values snapshots are reinserted, then next_id is restored.
func (x *Index[T]) applyUndoLocked(st *undo.State[T]) {
	for _, id := range st.NewIDs {
		x.dropObjectLocked(id)
	}
	for id, snap := range st.OldValues {
		x.dropObjectLocked(id)
		obj := snap
		if off, err := x.storeObjectLocked(&obj); err == nil {
			x.insertLive(id, off, obj)
		}
	}
	for id, snap := range st.RemovedValues {
		obj := snap
		if off, err := x.storeObjectLocked(&obj); err == nil {
			x.insertLive(id, off, obj)
		}
	}
	x.nextID = st.OldNextID
}

func (x *Index[T]) dropObjectLocked(id uint64) {
	if _, present := x.live[id]; !present {
		return
	}
	x.removeLive(id)
	if off, ok := x.objOff[id]; ok {
		x.freeObjectLocked(off)
		delete(x.objOff, id)
	}
}
