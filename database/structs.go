// Package database implements the static database façade: registers
// typed indices against one segment, fans mutations out to each index's
// undo stack, and exposes the session/commit/lock surface every caller
// goes through instead of touching an index or the lock bank directly.
package database

import (
	"sync"

	"github.com/Unhackables/chainbase/rwlock"
	"github.com/Unhackables/chainbase/segment"
)

// registeredIndex is the subset of index.Index[T]'s methods the façade
// needs without committing to a concrete T, letting one Database hold
// many differently-typed indices in a single map.
type registeredIndex interface {
	Tag() uint32
	Name() string
	MetaOffset() uint64
	Detach()
	BeginSession(revision uint64)
	EndSessionUndo()
	EndSessionSquash()
	Commit(revision uint64)
	StackDepth() int
}

// Database owns one store directory: its segment, its lock bank, and the
// set of typed indices registered against it.
type Database struct {
	mu     sync.Mutex
	closed bool

	dir   string
	seg   *segment.Manager
	locks *rwlock.Manager

	indices  map[uint32]registeredIndex
	rootTag  map[uint32]uint64
	revision uint64
}
