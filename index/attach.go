package index

import (
	"bytes"
	"encoding/gob"

	"github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/Unhackables/chainbase/errs"
	"github.com/Unhackables/chainbase/segment"
)

// Attach materializes this index against seg. off is the offset of a
// previously persisted metadata blob, or 0 to create a fresh index (which
// requires a read-write segment).
func (x *Index[T]) Attach(seg *segment.Manager, off uint64) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.closed = false
	x.seg = seg
	x.primary = btree.New(32)
	x.secIdx = make([]*btree.BTree, len(x.secondaries))
	for i := range x.secIdx {
		x.secIdx[i] = btree.New(32)
	}
	x.live = make(map[uint64]*T)
	x.objOff = make(map[uint64]uint64)

	if off == 0 {
		if seg.Mode() != segment.ReadWrite {
			return errs.ErrNotWritable
		}
		x.nextID = x.startID
		return x.persistLocked()
	}

	m, err := x.loadMeta(off)
	if err != nil {
		return errors.Wrapf(err, "loading index %q metadata", x.name)
	}
	x.metaOff = off
	x.nextID = m.NextID

	for id, objOff := range m.Objects {
		raw := seg.ReadAt(objOff, seg.BlockLen(objOff))
		obj, err := x.codec.Decode(raw)
		if err != nil {
			return errors.Wrapf(err, "decoding object %d in index %q", id, x.name)
		}
		x.insertLive(id, objOff, obj)
	}
	return nil
}

// Detach drops this index's in-memory structures and marks it closed.
// The segment and any persisted bytes are untouched, but every method
// that would otherwise touch the now-nil structures fails with
// ErrClosed instead of panicking.
func (x *Index[T]) Detach() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	x.seg = nil
	x.live = nil
	x.objOff = nil
	x.primary = nil
	x.secIdx = nil
}

func (x *Index[T]) loadMeta(off uint64) (meta, error) {
	raw := x.seg.ReadAt(off, x.seg.BlockLen(off))
	var m meta
	dec := gob.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&m); err != nil {
		return meta{}, err
	}
	return m, nil
}

// persistLocked re-encodes this index's metadata blob and writes it to a
// fresh segment block, freeing the previous one. Assumes x.mu held and
// seg in ReadWrite mode.
func (x *Index[T]) persistLocked() error {
	m := meta{Name: x.name, NextID: x.nextID, Objects: x.objOff}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&m); err != nil {
		return errors.Wrap(err, "encoding index metadata")
	}

	newOff, err := x.seg.Alloc(uint64(buf.Len()))
	if err != nil {
		return errors.Wrap(err, "allocating index metadata block")
	}
	if err := x.seg.WriteAt(newOff, buf.Bytes()); err != nil {
		return errors.Wrap(err, "writing index metadata block")
	}

	old := x.metaOff
	x.metaOff = newOff
	if old != 0 {
		x.seg.Free(old)
	}
	return nil
}

func (x *Index[T]) insertLive(id, objOff uint64, obj T) {
	ptr := &obj
	x.live[id] = ptr
	x.objOff[id] = objOff
	x.primary.ReplaceOrInsert(idEntry{id: id})
	for i, sk := range x.secondaries {
		x.secIdx[i].ReplaceOrInsert(secEntry{key: sk.KeyOf(ptr), id: id})
	}
}

func (x *Index[T]) removeLive(id uint64) {
	obj, ok := x.live[id]
	if !ok {
		return
	}
	x.primary.Delete(idEntry{id: id})
	for i, sk := range x.secondaries {
		x.secIdx[i].Delete(secEntry{key: sk.KeyOf(obj), id: id})
	}
	delete(x.live, id)
	delete(x.objOff, id)
}
