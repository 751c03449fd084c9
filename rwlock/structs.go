//go:build !windows

// Package rwlock implements the bank of N named, cross-process read/write
// locks described for the store: state lives in the meta mapping
// (shared_memory.meta) rather than the primary segment, so a crash while
// writing data never corrupts lock bookkeeping. Because every attacher —
// including a read-only one — must be able to update a slot's shared
// reader count, the meta mapping is always opened for read/write
// regardless of the store's own open mode.
package rwlock

import (
	"os"
	"sync"
)

const metaFileName = "shared_memory.meta"

// writerActive is the sentinel slot-state value meaning "held exclusively".
// Any other value is the current shared-reader count.
const writerActive = ^uint32(0)

// attachTokenSize is the diagnostic record written by the current write
// attacher: a UUID, a PID and a short hostname. It is never read for
// correctness, only surfaced for debugging "who's holding the store open".
const attachTokenSize = 16 + 4 + 1 + 47

// headerSize is the 8-byte shared cursor at the base of the mapping.
const headerSize = 8

// Manager owns a handle onto the lock bank's own mapping. The rotation
// cursor itself lives inside that mapping, shared by every attacher to the
// same directory, not in this struct.
type Manager struct {
	mu sync.Mutex

	file  *os.File
	data  []byte
	count int
}
