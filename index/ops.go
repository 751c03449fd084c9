package index

import (
	"github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/Unhackables/chainbase/errs"
)

// Create allocates the next id, builds the object via init, inserts it
// into every ordering, and persists it. On success the new id is recorded
// against the active session (if any) for later undo.
func (x *Index[T]) Create(init func(obj *T)) (*T, uint64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil, 0, errs.ErrClosed
	}

	id := x.nextID
	var obj T
	init(&obj)

	if err := x.checkUniqueLocked(&obj, nil); err != nil {
		return nil, 0, err
	}

	off, err := x.storeObjectLocked(&obj)
	if err != nil {
		return nil, 0, err
	}

	x.insertLive(id, off, obj)
	x.nextID++
	if err := x.persistLocked(); err != nil {
		return nil, 0, err
	}

	if top := x.stack.Top(); top != nil {
		top.RecordNew(id)
	}
	return x.live[id], id, nil
}

// Modify snapshots obj (if an active session needs it), applies mutator
// in place, and re-indexes. If re-indexing violates a uniqueness
// constraint, the object is removed instead of left inconsistent and the
// call fails with ErrUniqueness.
func (x *Index[T]) Modify(id uint64, mutator func(obj *T)) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return errs.ErrClosed
	}

	obj, ok := x.live[id]
	if !ok {
		return errs.ErrOutOfRange
	}

	if top := x.stack.Top(); top != nil && top.NeedsSnapshot(id) {
		top.OldValues[id] = x.cloneLocked(obj)
	}

	before := x.cloneLocked(obj)
	x.removeFromOrderingsLocked(id, &before)
	mutator(obj)

	if err := x.checkUniqueLocked(obj, &id); err != nil {
		x.primary.Delete(idEntry{id: id})
		delete(x.live, id)
		if off, ok := x.objOff[id]; ok {
			x.freeObjectLocked(off)
			delete(x.objOff, id)
		}
		_ = x.persistLocked()
		return err
	}

	off, err := x.storeObjectLocked(obj)
	if err != nil {
		return err
	}
	if old, ok := x.objOff[id]; ok {
		x.freeObjectLocked(old)
	}
	x.objOff[id] = off
	x.insertIntoOrderingsLocked(id, obj)

	return x.persistLocked()
}

// Remove deletes obj from every ordering. If an active session exists and
// the id was not created during it, a full snapshot moves into
// removed_values; otherwise it is simply dropped from new_ids.
func (x *Index[T]) Remove(id uint64) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return errs.ErrClosed
	}

	obj, ok := x.live[id]
	if !ok {
		return errs.ErrOutOfRange
	}

	if top := x.stack.Top(); top != nil {
		if top.IsNew(id) {
			top.DropNew(id)
		} else if top.NeedsSnapshot(id) {
			top.RemovedValues[id] = x.cloneLocked(obj)
		}
	}

	x.removeLive(id)
	if off, ok := x.objOff[id]; ok {
		x.freeObjectLocked(off)
		delete(x.objOff, id)
	}
	return x.persistLocked()
}

// Get returns the object for id or ErrOutOfRange on miss.
func (x *Index[T]) Get(id uint64) (*T, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, errs.ErrClosed
	}
	obj, ok := x.live[id]
	if !ok {
		return nil, errs.ErrOutOfRange
	}
	return obj, nil
}

// Find returns the object for id, or ok=false on miss.
func (x *Index[T]) Find(id uint64) (obj *T, ok bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, false
	}
	obj, ok = x.live[id]
	return obj, ok
}

// FindBy looks up by the named secondary key's encoded value, returning
// the first matching object in key order.
func (x *Index[T]) FindBy(secondaryName string, key []byte) (*T, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return nil, false
	}

	idx := x.secondaryIndexLocked(secondaryName)
	if idx < 0 {
		return nil, false
	}
	var found secEntry
	hit := false
	x.secIdx[idx].AscendGreaterOrEqual(secEntry{key: key, id: 0}, func(i btree.Item) bool {
		found = i.(secEntry)
		hit = true
		return false
	})
	if !hit || !bytesEqual(found.key, key) {
		return nil, false
	}
	return x.live[found.id], true
}

// Ascend walks every live object in primary (id) order, stopping early if
// fn returns false.
func (x *Index[T]) Ascend(fn func(id uint64, obj *T) bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return
	}
	x.primary.Ascend(func(item btree.Item) bool {
		e := item.(idEntry)
		return fn(e.id, x.live[e.id])
	})
}

// AscendBy walks every live object in the named secondary key's order.
func (x *Index[T]) AscendBy(secondaryName string, fn func(obj *T) bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return
	}
	i := x.secondaryIndexLocked(secondaryName)
	if i < 0 {
		return
	}
	x.secIdx[i].Ascend(func(item btree.Item) bool {
		e := item.(secEntry)
		return fn(x.live[e.id])
	})
}

// FindByPrefix looks up the first object whose named secondary key starts
// with prefix — used by composite orderings (e.g. a (field, tiebreak)
// key) to search on a leading component alone.
func (x *Index[T]) FindByPrefix(secondaryName string, prefix []byte) (*T, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return nil, false
	}

	i := x.secondaryIndexLocked(secondaryName)
	if i < 0 {
		return nil, false
	}
	var found secEntry
	hit := false
	x.secIdx[i].AscendGreaterOrEqual(secEntry{key: prefix, id: 0}, func(item btree.Item) bool {
		found = item.(secEntry)
		hit = true
		return false
	})
	if !hit || !bytesHasPrefix(found.key, prefix) {
		return nil, false
	}
	return x.live[found.id], true
}

func bytesHasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	return bytesEqual(b[:len(prefix)], prefix)
}

func (x *Index[T]) secondaryIndexLocked(name string) int {
	for i, sk := range x.secondaries {
		if sk.Name == name {
			return i
		}
	}
	return -1
}

func (x *Index[T]) checkUniqueLocked(obj *T, skipID *uint64) error {
	for i, sk := range x.secondaries {
		if !sk.Unique {
			continue
		}
		key := sk.KeyOf(obj)
		clash := false
		x.secIdx[i].AscendGreaterOrEqual(secEntry{key: key, id: 0}, func(item btree.Item) bool {
			e := item.(secEntry)
			if !bytesEqual(e.key, key) {
				return false
			}
			if skipID != nil && e.id == *skipID {
				return true
			}
			clash = true
			return false
		})
		if clash {
			return errors.Wrapf(errs.ErrUniqueness, "secondary key %q", sk.Name)
		}
	}
	return nil
}

func (x *Index[T]) removeFromOrderingsLocked(id uint64, obj *T) {
	for i, sk := range x.secondaries {
		x.secIdx[i].Delete(secEntry{key: sk.KeyOf(obj), id: id})
	}
}

func (x *Index[T]) insertIntoOrderingsLocked(id uint64, obj *T) {
	for i, sk := range x.secondaries {
		x.secIdx[i].ReplaceOrInsert(secEntry{key: sk.KeyOf(obj), id: id})
	}
}

func (x *Index[T]) cloneLocked(obj *T) T {
	raw, err := x.codec.Encode(obj)
	if err != nil {
		// Encode is expected to be infallible for well-formed objects the
		// index itself produced; surface a zero value rather than panic.
		var zero T
		return zero
	}
	clone, err := x.codec.Decode(raw)
	if err != nil {
		var zero T
		return zero
	}
	return clone
}

func (x *Index[T]) storeObjectLocked(obj *T) (uint64, error) {
	raw, err := x.codec.Encode(obj)
	if err != nil {
		return 0, errors.Wrap(err, "encoding object")
	}
	off, err := x.seg.Alloc(uint64(len(raw)))
	if err != nil {
		return 0, errors.Wrap(err, "allocating object block")
	}
	if err := x.seg.WriteAt(off, raw); err != nil {
		return 0, errors.Wrap(err, "writing object block")
	}
	return off, nil
}

func (x *Index[T]) freeObjectLocked(off uint64) {
	x.seg.Free(off)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
