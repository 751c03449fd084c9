package dynamic

import (
	"bytes"
	"encoding/gob"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Unhackables/chainbase/config"
	"github.com/Unhackables/chainbase/errs"
	"github.com/Unhackables/chainbase/rwlock"
	"github.com/Unhackables/chainbase/segment"
)

// registeredTable is the subset of Table's methods the database needs,
// mirroring package database's registeredIndex for the schema-less case.
type registeredTable interface {
	Name() string
	MetaOffset() uint64
	Detach()
	BeginSession(revision uint64)
	EndSessionUndo()
	EndSessionSquash()
	Commit(revision uint64)
	StackDepth() int
}

// tableRoot is the persisted per-table entry in the database's root
// table: where its metadata blob lives and the comparison modes needed
// to reattach it without the caller having to remember them.
type tableRoot struct {
	Offset        uint64
	PrimaryMode   CompareMode
	SecondaryMode CompareMode
}

// Database owns one store directory for the schema-less variant: its
// segment, its lock bank, and a set of named Tables sharing one undo
// session across all of them: every table advances and reverts together
// under a single revision counter, the same fan-out the static façade
// uses across its indices.
type Database struct {
	mu     sync.Mutex
	closed bool

	dir   string
	seg   *segment.Manager
	locks *rwlock.Manager

	tables   map[string]registeredTable
	rootName map[string]tableRoot
	revision uint64
}

// Open attaches a schema-less store directory, reattaching every table
// recorded in its root table so callers see the same set of tables a
// prior write-attach left behind.
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
		dir:    dir,
		seg:    seg,
		locks:  locks,
		tables: make(map[string]registeredTable),
	}
	if err := db.loadRoot(); err != nil {
		locks.Close()
		seg.Close()
		return nil, err
	}
	for name, root := range db.rootName {
		t := NewTable(name, root.PrimaryMode, root.SecondaryMode)
		if err := t.Attach(seg, root.Offset); err != nil {
			locks.Close()
			seg.Close()
			return nil, errors.Wrapf(err, "reattaching table %q", name)
		}
		db.tables[name] = t
	}
	return db, nil
}

// OpenDefault opens dir with the package-wide defaults from config.
func OpenDefault(dir string, mode segment.Mode) (*Database, error) {
	cfg := config.Load()
	return Open(dir, mode, cfg.SegmentSize, cfg.LockCount)
}

func (db *Database) loadRoot() error {
	off := db.seg.Root()
	if off == 0 {
		db.rootName = make(map[string]tableRoot)
		return nil
	}
	raw := db.seg.ReadAt(off, db.seg.BlockLen(off))
	var m map[string]tableRoot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&m); err != nil {
		return errors.Wrap(err, "decoding dynamic database root table")
	}
	db.rootName = m
	return nil
}

func (db *Database) persistRootLocked() error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(db.rootName); err != nil {
		return errors.Wrap(err, "encoding dynamic database root table")
	}
	newOff, err := db.seg.Alloc(uint64(buf.Len()))
	if err != nil {
		return errors.Wrap(err, "allocating dynamic database root table")
	}
	if err := db.seg.WriteAt(newOff, buf.Bytes()); err != nil {
		return errors.Wrap(err, "writing dynamic database root table")
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

// CreateTable registers a brand-new table under name, failing with
// ErrAlreadyExists if one is already registered.
func (db *Database) CreateTable(name string, primaryMode, secondaryMode CompareMode) (*Table, error) {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil, errs.ErrClosed
	}
	if _, exists := db.tables[name]; exists {
		db.mu.Unlock()
		return nil, errors.Wrapf(errs.ErrAlreadyExists, "table %q", name)
	}
	db.mu.Unlock()

	t := NewTable(name, primaryMode, secondaryMode)
	if err := t.Attach(db.seg, 0); err != nil {
		return nil, err
	}

	db.mu.Lock()
	db.tables[name] = t
	db.rootName[name] = tableRoot{Offset: t.MetaOffset(), PrimaryMode: primaryMode, SecondaryMode: secondaryMode}
	err := db.persistRootLocked()
	db.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTable returns the table registered under name, failing with
// ErrNotFound on miss.
func (db *Database) GetTable(name string) (*Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, errs.ErrClosed
	}
	t, ok := db.tables[name]
	if !ok {
		return nil, errors.Wrapf(errs.ErrNotFound, "table %q", name)
	}
	return t.(*Table), nil
}

// FindTable returns the table registered under name, or ok=false on miss.
func (db *Database) FindTable(name string) (*Table, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, false
	}
	t, ok := db.tables[name]
	if !ok {
		return nil, false
	}
	return t.(*Table), true
}

// RemoveTable detaches and drops the table registered under name from
// this database's root table. The underlying segment blocks backing its
// records and metadata are not reclaimed, matching the source's lack of
// compaction/GC (see Non-goals).
func (db *Database) RemoveTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errs.ErrClosed
	}
	t, ok := db.tables[name]
	if !ok {
		return errors.Wrapf(errs.ErrNotFound, "table %q", name)
	}
	t.Detach()
	delete(db.tables, name)
	delete(db.rootName, name)
	return db.persistRootLocked()
}

func (db *Database) syncTable(t registeredTable) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.seg.Mode() != segment.ReadWrite {
		return
	}
	root, ok := db.rootName[t.Name()]
	if !ok {
		return
	}
	root.Offset = t.MetaOffset()
	db.rootName[t.Name()] = root
	_ = db.persistRootLocked()
}

func (db *Database) tableList() []registeredTable {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]registeredTable, 0, len(db.tables))
	for _, t := range db.tables {
		out = append(out, t)
	}
	return out
}

func (db *Database) syncAll() {
	for _, t := range db.tableList() {
		db.syncTable(t)
	}
}

// WithReadLock and WithWriteLock delegate to the lock bank.
func (db *Database) WithReadLock(fn func() error, wait time.Duration) error {
	if db.isClosed() {
		return errs.ErrClosed
	}
	return db.locks.WithReadLock(fn, wait)
}

func (db *Database) WithWriteLock(fn func() error, wait time.Duration) error {
	if db.isClosed() {
		return errs.ErrClosed
	}
	return db.locks.WithWriteLock(fn, wait)
}

func (db *Database) isClosed() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.closed
}

// CurrentLock reports the lock bank's shared rotation cursor.
func (db *Database) CurrentLock() int { return db.locks.CurrentLock() }

// Dir returns the store directory this Database was opened against.
func (db *Database) Dir() string { return db.dir }

// Revision returns the most recently issued session revision number.
func (db *Database) Revision() uint64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.revision
}

// Close records every table's current metadata offset in the root table,
// then releases the segment and lock bank mappings.
func (db *Database) Close() error {
	if !db.isClosed() {
		db.syncAll()
	}
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	for _, t := range db.tables {
		t.Detach()
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
