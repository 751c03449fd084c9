package database

import (
	"bytes"
	"encoding/gob"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/Unhackables/chainbase/config"
	"github.com/Unhackables/chainbase/errs"
	"github.com/Unhackables/chainbase/index"
	"github.com/Unhackables/chainbase/rwlock"
	"github.com/Unhackables/chainbase/segment"
)

// Open attaches a database directory: its primary segment and its lock
// bank. AddIndex must still be called once per attach for every type this
// process intends to use, per the source's per-attach materialization
// rule — registering a Go type at init time does not by itself create
// its in-segment collection.
func Open(dir string, mode segment.Mode, size int64, lockCount int) (*Database, error) {
	seg, err := segment.Open(dir, mode, size)
	if err != nil {
		return nil, err
	}
	locks, err := rwlock.Open(dir, lockCount, mode)
	if err != nil {
		seg.Close()
		return nil, err
	}
	if mode == segment.ReadWrite {
		locks.RecordAttach()
	}

	db := &Database{
		dir:     dir,
		seg:     seg,
		locks:   locks,
		indices: make(map[uint32]registeredIndex),
	}
	if err := db.loadRoot(); err != nil {
		locks.Close()
		seg.Close()
		return nil, err
	}
	return db, nil
}

// OpenDefault opens dir with the package-wide default segment size and
// lock bank size from config.
func OpenDefault(dir string, mode segment.Mode) (*Database, error) {
	cfg := config.Load()
	return Open(dir, mode, cfg.SegmentSize, cfg.LockCount)
}

func (db *Database) loadRoot() error {
	off := db.seg.Root()
	if off == 0 {
		db.rootTag = make(map[uint32]uint64)
		return nil
	}
	raw := db.seg.ReadAt(off, db.seg.BlockLen(off))
	var m map[uint32]uint64
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&m); err != nil {
		return errors.Wrap(err, "decoding database root table")
	}
	db.rootTag = m
	return nil
}

func (db *Database) persistRootLocked() error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(db.rootTag); err != nil {
		return errors.Wrap(err, "encoding database root table")
	}
	newOff, err := db.seg.Alloc(uint64(buf.Len()))
	if err != nil {
		return errors.Wrap(err, "allocating database root table")
	}
	if err := db.seg.WriteAt(newOff, buf.Bytes()); err != nil {
		return errors.Wrap(err, "writing database root table")
	}
	old := db.seg.Root()
	if err := db.seg.SetRoot(newOff); err != nil {
		return err
	}
	if old != 0 {
		db.seg.Free(old)
	}
	return nil
}

// AddIndex registers idx's type against db, materializing its in-segment
// collection on first call for this directory and rebuilding its
// in-memory orderings on every later attach.
func AddIndex[T any](db *Database, idx *index.Index[T]) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return errs.ErrClosed
	}
	if _, exists := db.indices[idx.Tag()]; exists {
		return errors.Wrapf(errs.ErrAlreadyRegistered, "index tag %d", idx.Tag())
	}

	off := db.rootTag[idx.Tag()]
	if err := idx.Attach(db.seg, off); err != nil {
		return err
	}
	db.indices[idx.Tag()] = idx
	db.rootTag[idx.Tag()] = idx.MetaOffset()
	return db.persistRootLocked()
}

// syncIndex re-records idx's current metadata offset in the root table
// after a mutation moved it, and persists the table. Called by every
// generic mutating helper and, through syncAll, by Session.Drop, Undo and
// UndoAll.
func (db *Database) syncIndex(idx registeredIndex) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.seg.Mode() != segment.ReadWrite {
		return
	}
	db.rootTag[idx.Tag()] = idx.MetaOffset()
	_ = db.persistRootLocked()
}

// Create creates an object in idx and keeps db's root table in sync.
func Create[T any](db *Database, idx *index.Index[T], init func(obj *T)) (*T, uint64, error) {
	if db.isClosed() {
		return nil, 0, errs.ErrClosed
	}
	obj, id, err := idx.Create(init)
	db.syncIndex(idx)
	return obj, id, err
}

// Modify mutates the object identified by id in idx and keeps db's root
// table in sync.
func Modify[T any](db *Database, idx *index.Index[T], id uint64, mutator func(obj *T)) error {
	if db.isClosed() {
		return errs.ErrClosed
	}
	err := idx.Modify(id, mutator)
	db.syncIndex(idx)
	return err
}

// Remove deletes the object identified by id from idx and keeps db's root
// table in sync.
func Remove[T any](db *Database, idx *index.Index[T], id uint64) error {
	if db.isClosed() {
		return errs.ErrClosed
	}
	err := idx.Remove(id)
	db.syncIndex(idx)
	return err
}

func (db *Database) isClosed() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.closed
}

// WithReadLock and WithWriteLock delegate to the lock bank, defaulting
// the timeout from config when wait is zero.
func (db *Database) WithReadLock(fn func() error, wait time.Duration) error {
	if db.isClosed() {
		return errs.ErrClosed
	}
	if wait == 0 {
		wait = config.Load().LockWait
	}
	return db.locks.WithReadLock(fn, wait)
}

func (db *Database) WithWriteLock(fn func() error, wait time.Duration) error {
	if db.isClosed() {
		return errs.ErrClosed
	}
	if wait == 0 {
		wait = config.Load().LockWait
	}
	return db.locks.WithWriteLock(fn, wait)
}

// CurrentLock reports the lock bank's shared rotation cursor.
func (db *Database) CurrentLock() int { return db.locks.CurrentLock() }

// Dir returns the store directory this Database was opened against.
func (db *Database) Dir() string { return db.dir }

// Close releases the segment and lock bank mappings.
func (db *Database) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	for _, idx := range db.indices {
		idx.Detach()
	}
	db.mu.Unlock()

	lerr := db.locks.Close()
	serr := db.seg.Close()
	if serr != nil {
		return serr
	}
	return lerr
}

// Wipe closes db (if non-nil) and removes both backing files under dir.
func Wipe(dir string, db *Database) error {
	if db != nil {
		if err := db.Close(); err != nil {
			return err
		}
	}
	if err := rwlock.Wipe(dir); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := segment.Wipe(dir); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
