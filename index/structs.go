// Package index implements the typed, multi-indexed collection described
// for the store: one object type per Index, a unique ordering on id plus
// any number of secondary orderings, backed by the segment's allocator
// and protected by a per-index undo stack.
//
// Object bytes live in the mapped segment so the working set survives a
// process restart; the orderings themselves (google/btree trees keyed by
// an order-preserving byte encoding of each field) are rebuilt in memory
// on every attach from a small persisted id->offset directory, rather
// than being serialized node-by-node. Go has no direct equivalent of a
// templated Boost multi_index container whose tree nodes can be placed
// directly in a mapped region, and rebuilding from a flat directory is
// both simpler and easier to reason about under crash recovery.
package index

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"github.com/Unhackables/chainbase/segment"
	"github.com/Unhackables/chainbase/undo"
)

// Codec converts between an object of type T and its wire encoding. Every
// typed index needs one so objects can be written into the segment and
// reconstructed on attach.
type Codec[T any] struct {
	Encode func(obj *T) ([]byte, error)
	Decode func(data []byte) (T, error)
}

// SecondaryKey describes one additional ordering on an index besides the
// mandatory ordering on id. KeyOf must return an order-preserving byte
// encoding so that comparing keys with bytes.Compare matches the domain
// ordering.
type SecondaryKey[T any] struct {
	Name   string
	Unique bool
	KeyOf  func(obj *T) []byte
}

// idEntry and secEntry are the btree.Item values stored in the orderings.
// google/btree's stable, non-generic Item interface (the version actually
// pinned by the example pack) boxes these in an interface{}-like Item,
// unlike the newer generic BTreeG — a deliberate choice to stay on the
// API this module's dependency graph has actually exercised elsewhere.
type idEntry struct {
	id uint64
}

func (a idEntry) Less(than btree.Item) bool {
	return a.id < than.(idEntry).id
}

type secEntry struct {
	key []byte
	id  uint64
}

func (a secEntry) Less(than btree.Item) bool {
	b := than.(secEntry)
	if c := bytes.Compare(a.key, b.key); c != 0 {
		return c < 0
	}
	return a.id < b.id
}

// meta is the gob-encoded metadata blob persisted in the segment for one
// index: its name, id counter, and the directory mapping every live id to
// the segment offset holding its encoded bytes.
type meta struct {
	Name    string
	NextID  uint64
	Objects map[uint64]uint64
}

// Index is one registered object type's collection: live decoded objects,
// their persisted directory, the in-memory orderings rebuilt from it, and
// this index's own undo stack.
type Index[T any] struct {
	mu sync.RWMutex

	name        string
	tag         uint32
	codec       Codec[T]
	secondaries []SecondaryKey[T]
	startID     uint64

	seg     *segment.Manager
	metaOff uint64

	nextID  uint64
	objOff  map[uint64]uint64
	live    map[uint64]*T
	primary *btree.BTree
	secIdx  []*btree.BTree
	closed  bool

	stack undo.Stack[T]
}

// New constructs an unattached Index whose id counter begins at startID
// when Attach creates a fresh index (0 for the static façade's objects;
// the dynamic record store passes 1, per its own starting-id rule). Call
// Attach before using it.
func New[T any](name string, tag uint32, startID uint64, codec Codec[T], secondaries []SecondaryKey[T]) *Index[T] {
	return &Index[T]{
		name:        name,
		tag:         tag,
		codec:       codec,
		secondaries: secondaries,
		startID:     startID,
	}
}

// Name returns the index's registered name.
func (x *Index[T]) Name() string { return x.name }

// Tag returns the small integer tag this index type was registered under.
func (x *Index[T]) Tag() uint32 { return x.tag }

// MetaOffset returns the segment offset of this index's persisted
// metadata blob, used by the database façade's root table.
func (x *Index[T]) MetaOffset() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.metaOff
}

// StackDepth reports how many undo states are currently pushed on this
// index's stack.
func (x *Index[T]) StackDepth() int { return x.stack.Depth() }
