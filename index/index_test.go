package index

import (
	"encoding/binary"
	"testing"

	"github.com/Unhackables/chainbase/errs"
	"github.com/Unhackables/chainbase/segment"
)

type book struct {
	A int
	B int
}

func bookCodec() Codec[book] {
	return Codec[book]{
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

func aKey(b *book) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(b.A))
	return buf
}

func newBookIndex(t *testing.T) (*Index[book], *segment.Manager) {
	t.Helper()
	dir := t.TempDir()
	seg, err := segment.Open(dir, segment.ReadWrite, 64*1024)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}
	idx := New[book]("book", 1, 0, bookCodec(), []SecondaryKey[book]{
		{Name: "by_a", Unique: true, KeyOf: aKey},
	})
	if err := idx.Attach(seg, 0); err != nil {
		t.Fatalf("attach: %v", err)
	}
	return idx, seg
}

func TestCreateGetModify(t *testing.T) {
	idx, seg := newBookIndex(t)
	defer seg.Close()

	_, id, err := idx.Create(func(b *book) { b.A, b.B = 3, 4 })
	if err != nil || id != 0 {
		t.Fatalf("create: id=%d err=%v", id, err)
	}

	got, err := idx.Get(0)
	if err != nil || got.A != 3 || got.B != 4 {
		t.Fatalf("get: %+v err=%v", got, err)
	}

	if err := idx.Modify(0, func(b *book) { b.A, b.B = 5, 6 }); err != nil {
		t.Fatalf("modify: %v", err)
	}
	got, _ = idx.Get(0)
	if got.A != 5 || got.B != 6 {
		t.Fatalf("expected a=5,b=6 after modify, got %+v", got)
	}

	if found, ok := idx.FindBy("by_a", encodeInt(5)); !ok || found.B != 6 {
		t.Fatalf("expected secondary lookup to find modified object, ok=%v found=%+v", ok, found)
	}
}

func encodeInt(v int) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return buf
}

func TestUniqueSecondaryRejectsDuplicate(t *testing.T) {
	idx, seg := newBookIndex(t)
	defer seg.Close()

	if _, _, err := idx.Create(func(b *book) { b.A, b.B = 1, 1 }); err != nil {
		t.Fatalf("create first: %v", err)
	}
	if _, _, err := idx.Create(func(b *book) { b.A, b.B = 1, 2 }); err == nil {
		t.Fatalf("expected uniqueness violation on duplicate secondary key")
	}
}

func TestSessionUndoOfModify(t *testing.T) {
	idx, seg := newBookIndex(t)
	defer seg.Close()

	idx.Create(func(b *book) { b.A, b.B = 3, 4 })
	idx.Modify(0, func(b *book) { b.A, b.B = 5, 6 })

	idx.BeginSession(1)
	idx.Modify(0, func(b *book) { b.A, b.B = 7, 8 })
	idx.EndSessionUndo()

	got, err := idx.Get(0)
	if err != nil || got.A != 5 || got.B != 6 {
		t.Fatalf("expected undo to restore a=5,b=6, got %+v err=%v", got, err)
	}
}

func TestSessionUndoOfCreate(t *testing.T) {
	idx, seg := newBookIndex(t)
	defer seg.Close()

	idx.Create(func(b *book) { b.A, b.B = 3, 4 })

	idx.BeginSession(1)
	_, id, err := idx.Create(func(b *book) { b.A, b.B = 9, 10 })
	if err != nil || id != 1 {
		t.Fatalf("create: id=%d err=%v", id, err)
	}
	idx.EndSessionUndo()

	if _, err := idx.Get(0); err != nil {
		t.Fatalf("expected id 0 to survive: %v", err)
	}
	if _, err := idx.Get(1); err == nil {
		t.Fatalf("expected id 1 to be gone after undo")
	}
}

func TestOperationsFailAfterDetachWithErrClosed(t *testing.T) {
	idx, seg := newBookIndex(t)
	defer seg.Close()

	_, id, err := idx.Create(func(b *book) { b.A, b.B = 1, 2 })
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	idx.Detach()

	if _, _, err := idx.Create(func(b *book) { b.A, b.B = 3, 4 }); err != errs.ErrClosed {
		t.Fatalf("expected ErrClosed on create after detach, got %v", err)
	}
	if err := idx.Modify(id, func(b *book) { b.A = 9 }); err != errs.ErrClosed {
		t.Fatalf("expected ErrClosed on modify after detach, got %v", err)
	}
	if err := idx.Remove(id); err != errs.ErrClosed {
		t.Fatalf("expected ErrClosed on remove after detach, got %v", err)
	}
	if _, err := idx.Get(id); err != errs.ErrClosed {
		t.Fatalf("expected ErrClosed on get after detach, got %v", err)
	}
}

func TestReattachRebuildsOrderings(t *testing.T) {
	dir := t.TempDir()
	seg1, err := segment.Open(dir, segment.ReadWrite, 64*1024)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	idx1 := New[book]("book", 1, 0, bookCodec(), []SecondaryKey[book]{{Name: "by_a", Unique: true, KeyOf: aKey}})
	if err := idx1.Attach(seg1, 0); err != nil {
		t.Fatalf("attach: %v", err)
	}
	_, _, err = idx1.Create(func(b *book) { b.A, b.B = 11, 12 })
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	metaOff := idx1.MetaOffset()
	if err := seg1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	seg2, err := segment.Open(dir, segment.ReadWrite, 64*1024)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer seg2.Close()
	idx2 := New[book]("book", 1, 0, bookCodec(), []SecondaryKey[book]{{Name: "by_a", Unique: true, KeyOf: aKey}})
	if err := idx2.Attach(seg2, metaOff); err != nil {
		t.Fatalf("reattach: %v", err)
	}
	got, err := idx2.Get(0)
	if err != nil || got.A != 11 || got.B != 12 {
		t.Fatalf("expected rebuilt object a=11,b=12, got %+v err=%v", got, err)
	}
	if found, ok := idx2.FindBy("by_a", encodeInt(11)); !ok || found.B != 12 {
		t.Fatalf("expected secondary ordering rebuilt, ok=%v found=%+v", ok, found)
	}
}
