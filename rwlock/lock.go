//go:build !windows

package rwlock

import (
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/Unhackables/chainbase/errs"
	"github.com/Unhackables/chainbase/logging"
	"go.uber.org/zap"
)

// pollInterval bounds how finely a blocked acquirer re-checks lock state.
// Short enough that a wait_micros in the low milliseconds still behaves
// like a timeout rather than always succeeding on the first poll.
const pollInterval = 50 * time.Microsecond

func (m *Manager) cursorPtr() *uint64 {
	return (*uint64)(unsafe.Pointer(&m.data[0]))
}

func (m *Manager) slotPtr(slot int) *uint32 {
	off := headerSize + slot*4
	return (*uint32)(unsafe.Pointer(&m.data[off]))
}

// CurrentLock returns the bank's shared rotation cursor, visible
// identically across every attacher of the same directory because it
// lives in the mmap'd meta file rather than process memory.
func (m *Manager) CurrentLock() int {
	return int(atomic.LoadUint64(m.cursorPtr()) % uint64(m.count))
}

// advanceCursor moves the shared cursor to (current+1) mod N, racing
// safely against any other attacher doing the same via a CAS loop.
func (m *Manager) advanceCursor() {
	ptr := m.cursorPtr()
	for {
		old := atomic.LoadUint64(ptr)
		next := (old + 1) % uint64(m.count)
		if atomic.CompareAndSwapUint64(ptr, old, next) {
			return
		}
	}
}

// WithReadLock acquires the current slot in shared mode, runs fn, and
// releases the slot on every exit path. It never advances the cursor —
// only a successful write acquisition does that.
func (m *Manager) WithReadLock(fn func() error, wait time.Duration) error {
	slot := m.CurrentLock()
	ptr := m.slotPtr(slot)

	if !acquireRead(ptr, wait) {
		return errs.ErrTimeout
	}
	defer releaseRead(ptr)

	return fn()
}

// WithWriteLock acquires the current slot exclusively, runs fn, advances
// the shared cursor while still holding the slot, then releases it.
func (m *Manager) WithWriteLock(fn func() error, wait time.Duration) error {
	slot := m.CurrentLock()
	ptr := m.slotPtr(slot)

	if !acquireWrite(ptr, wait) {
		return errs.ErrTimeout
	}

	err := fn()
	m.advanceCursor()
	releaseWrite(ptr)

	logging.L().Debug("write lock cycle", zap.Int("slot", slot), zap.Error(err))
	return err
}

// acquireRead spins on the shared reader-count word, incrementing it as
// soon as no writer holds the slot. Bounded by wait.
func acquireRead(ptr *uint32, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for {
		cur := atomic.LoadUint32(ptr)
		if cur != writerActive {
			if atomic.CompareAndSwapUint32(ptr, cur, cur+1) {
				return true
			}
			continue
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

func releaseRead(ptr *uint32) {
	for {
		cur := atomic.LoadUint32(ptr)
		if atomic.CompareAndSwapUint32(ptr, cur, cur-1) {
			return
		}
	}
}

// acquireWrite spins until the slot is fully free (no readers, no writer)
// then claims it exclusively. Bounded by wait.
func acquireWrite(ptr *uint32, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for {
		if atomic.CompareAndSwapUint32(ptr, 0, writerActive) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

func releaseWrite(ptr *uint32) {
	atomic.StoreUint32(ptr, 0)
}
