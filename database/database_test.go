package database

import (
	"encoding/binary"
	"errors"
	"os"
	"testing"

	"github.com/Unhackables/chainbase/errs"
	"github.com/Unhackables/chainbase/index"
	"github.com/Unhackables/chainbase/segment"
)

type book struct {
	A int
	B int
}

func bookCodec() index.Codec[book] {
	return index.Codec[book]{
		Encode: func(b *book) ([]byte, error) {
			buf := make([]byte, 16)
			binary.LittleEndian.PutUint64(buf[0:8], uint64(b.A))
			binary.LittleEndian.PutUint64(buf[8:16], uint64(b.B))
			return buf, nil
		},
		Decode: func(data []byte) (book, error) {
			return book{
				A: int(binary.LittleEndian.Uint64(data[0:8])),
				B: int(binary.LittleEndian.Uint64(data[8:16])),
			}, nil
		},
	}
}

// TestUndoScenarios walks scenarios S1-S3 literally: undo of a modify,
// undo of a create, and push-then-outer-undo.
func TestUndoScenarios(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, segment.ReadWrite, 8<<20, 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	books := index.New[book]("book", 1, 0, bookCodec(), nil)
	if err := AddIndex(db, books); err != nil {
		t.Fatalf("add index: %v", err)
	}

	// S1: create a=3,b=4 -> id 0; modify to a=5,b=6; session; modify to
	// a=7,b=8; drop without push. Expect a=5,b=6.
	_, id, err := Create(db, books, func(b *book) { b.A, b.B = 3, 4 })
	if err != nil || id != 0 {
		t.Fatalf("create: id=%d err=%v", id, err)
	}
	if err := Modify(db, books, 0, func(b *book) { b.A, b.B = 5, 6 }); err != nil {
		t.Fatalf("modify: %v", err)
	}

	sess := db.StartUndoSession(true)
	if err := Modify(db, books, 0, func(b *book) { b.A, b.B = 7, 8 }); err != nil {
		t.Fatalf("modify in session: %v", err)
	}
	sess.Drop()

	got, err := books.Get(0)
	if err != nil || got.A != 5 || got.B != 6 {
		t.Fatalf("S1: expected a=5,b=6, got %+v err=%v", got, err)
	}

	// S2: session; create a=9,b=10 -> id 1; drop without push. Expect
	// get(0) unchanged, get(1) out of range.
	sess = db.StartUndoSession(true)
	_, id1, err := Create(db, books, func(b *book) { b.A, b.B = 9, 10 })
	if err != nil || id1 != 1 {
		t.Fatalf("S2 create: id=%d err=%v", id1, err)
	}
	sess.Drop()

	got, err = books.Get(0)
	if err != nil || got.A != 5 || got.B != 6 {
		t.Fatalf("S2: expected id 0 unchanged, got %+v err=%v", got, err)
	}
	if _, err := books.Get(1); err != errs.ErrOutOfRange {
		t.Fatalf("S2: expected out of range for id 1, got %v", err)
	}

	// S3: session; modify id 0 to a=7,b=8; push(); then db.Undo(). Expect
	// a=5,b=6 (push leaves the state on the stack for the outer Undo to
	// revert, since this session is itself the outermost).
	sess = db.StartUndoSession(true)
	if err := Modify(db, books, 0, func(b *book) { b.A, b.B = 7, 8 }); err != nil {
		t.Fatalf("S3 modify: %v", err)
	}
	sess.Push()
	db.Undo()

	got, err = books.Get(0)
	if err != nil || got.A != 5 || got.B != 6 {
		t.Fatalf("S3: expected a=5,b=6 after outer undo, got %+v err=%v", got, err)
	}
}

func TestReadOnlyAttachFailsWithoutExistingIndex(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, segment.ReadWrite, 8<<20, 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ro, err := Open(dir, segment.ReadOnly, 0, 4)
	if err != nil {
		t.Fatalf("reopen read-only: %v", err)
	}
	defer ro.Close()

	books := index.New[book]("book", 1, 0, bookCodec(), nil)
	if err := AddIndex(ro, books); err != errs.ErrNotWritable {
		t.Fatalf("expected ErrNotWritable registering an absent index read-only, got %v", err)
	}
}

// TestReadOnlyAttachFailsOnMissingLockBank reproduces the read-only
// attach contract directly: a segment file that exists but whose lock
// bank file is missing must still fail the attach, not silently create
// shared_memory.meta on a reader's behalf.
func TestReadOnlyAttachFailsOnMissingLockBank(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, segment.ReadWrite, 8<<20, 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := os.Remove(dir + "/shared_memory.meta"); err != nil {
		t.Fatalf("remove lock bank: %v", err)
	}

	if _, err := Open(dir, segment.ReadOnly, 0, 4); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound read-opening a directory missing its lock bank, got %v", err)
	}
	if _, err := os.Stat(dir + "/shared_memory.meta"); !os.IsNotExist(err) {
		t.Fatalf("expected read-only attach not to recreate shared_memory.meta, stat err=%v", err)
	}
}

// TestOperationsFailAfterCloseWithErrClosed ensures a closed handle
// rejects further mutation instead of panicking on its now-nil segment.
func TestOperationsFailAfterCloseWithErrClosed(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, segment.ReadWrite, 8<<20, 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	books := index.New[book]("book", 1, 0, bookCodec(), nil)
	if err := AddIndex(db, books); err != nil {
		t.Fatalf("add index: %v", err)
	}
	_, id, err := Create(db, books, func(b *book) { b.A, b.B = 1, 2 })
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, _, err := Create(db, books, func(b *book) { b.A, b.B = 3, 4 }); err != errs.ErrClosed {
		t.Fatalf("expected ErrClosed on create after close, got %v", err)
	}
	if err := Modify(db, books, id, func(b *book) { b.A = 9 }); err != errs.ErrClosed {
		t.Fatalf("expected ErrClosed on modify after close, got %v", err)
	}
	if err := Remove(db, books, id); err != errs.ErrClosed {
		t.Fatalf("expected ErrClosed on remove after close, got %v", err)
	}
	if err := AddIndex(db, index.New[book]("other", 2, 0, bookCodec(), nil)); err != errs.ErrClosed {
		t.Fatalf("expected ErrClosed on add index after close, got %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("expected a second close to be a harmless no-op, got %v", err)
	}
}

func TestIndexSurvivesReattach(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, segment.ReadWrite, 8<<20, 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	books := index.New[book]("book", 1, 0, bookCodec(), nil)
	if err := AddIndex(db, books); err != nil {
		t.Fatalf("add index: %v", err)
	}
	if _, _, err := Create(db, books, func(b *book) { b.A, b.B = 1, 2 }); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := Open(dir, segment.ReadWrite, 8<<20, 4)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	books2 := index.New[book]("book", 1, 0, bookCodec(), nil)
	if err := AddIndex(db2, books2); err != nil {
		t.Fatalf("add index after reattach: %v", err)
	}
	got, err := books2.Get(0)
	if err != nil || got.A != 1 || got.B != 2 {
		t.Fatalf("expected object to survive reattach, got %+v err=%v", got, err)
	}
}
