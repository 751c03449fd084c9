//go:build !windows

package segment

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/Unhackables/chainbase/errs"
)

// align8 rounds n up to the next multiple of 8 so every block header
// starts on an 8-byte boundary, which keeps the binary.LittleEndian
// accesses simple and matches the word-size assumption baked into the
// fingerprint.
func align8(n uint64) uint64 {
	return (n + 7) &^ 7
}

// Alloc reserves n bytes inside the segment and returns the offset of the
// payload (not the block header) from the segment base. It first tries to
// reuse a same-or-larger block from the free list (first fit, no
// splitting — this store never compacts or background-GCs its segment,
// so a little internal fragmentation from reused blocks is the accepted
// trade-off) and otherwise bumps the allocator's high-water mark, growing
// the backing file if the mapped region is too small.
func (m *Manager) Alloc(n uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mode != ReadWrite {
		return 0, errs.ErrNotWritable
	}
	n = align8(n)

	if off, ok := m.takeFromFreeList(n); ok {
		return off, nil
	}

	bump := binary.LittleEndian.Uint64(m.data[0:8])
	need := bump + blockHeaderSize + n
	if need > uint64(len(m.data)) {
		grown := uint64(len(m.data)) * 2
		if grown < need {
			grown = need
		}
		if err := m.growLocked(int64(grown)); err != nil {
			return 0, err
		}
	}

	binary.LittleEndian.PutUint64(m.data[bump:bump+8], n)
	binary.LittleEndian.PutUint64(m.data[bump+8:bump+16], 0)
	payload := bump + blockHeaderSize

	binary.LittleEndian.PutUint64(m.data[0:8], payload+n)
	return payload, nil
}

// Free returns a previously allocated block to the free list for reuse by
// a later Alloc of the same or smaller size.
func (m *Manager) Free(offset uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	head := binary.LittleEndian.Uint64(m.data[8:16])
	binary.LittleEndian.PutUint64(m.data[offset-8:offset], head)
	binary.LittleEndian.PutUint64(m.data[8:16], offset)
}

// takeFromFreeList walks the singly linked free list looking for the
// first block whose payload is at least n bytes. Assumes m.mu held.
func (m *Manager) takeFromFreeList(n uint64) (uint64, bool) {
	headOff := uint64(8)
	cur := binary.LittleEndian.Uint64(m.data[8:16])
	var prevOff uint64
	hasPrev := false

	for cur != 0 {
		size := binary.LittleEndian.Uint64(m.data[cur-16 : cur-8])
		next := binary.LittleEndian.Uint64(m.data[cur-8 : cur])
		if size >= n {
			if hasPrev {
				binary.LittleEndian.PutUint64(m.data[prevOff-8:prevOff], next)
			} else {
				binary.LittleEndian.PutUint64(m.data[headOff:headOff+8], next)
			}
			return cur, true
		}
		prevOff = cur
		hasPrev = true
		cur = next
	}
	return 0, false
}

// ReadAt returns a zero-copy view of n bytes at offset within the mapped
// segment. The returned slice aliases the mapping; callers must not hold
// onto it past a Close/Grow, which may unmap and remap the region.
func (m *Manager) ReadAt(offset, n uint64) []byte {
	return m.data[offset : offset+n]
}

// WriteAt copies buf into the segment at offset.
func (m *Manager) WriteAt(offset uint64, buf []byte) error {
	if m.mode != ReadWrite {
		return errs.ErrNotWritable
	}
	if offset+uint64(len(buf)) > uint64(len(m.data)) {
		return errors.New("write exceeds mapped region")
	}
	copy(m.data[offset:], buf)
	return nil
}

// Len reports the current size of the mapped region.
func (m *Manager) Len() uint64 { return uint64(len(m.data)) }

// BlockLen returns the aligned payload size recorded in the block header
// preceding offset, i.e. how many bytes ReadAt(offset, ...) can safely
// return for a block returned by Alloc.
func (m *Manager) BlockLen(offset uint64) uint64 {
	return binary.LittleEndian.Uint64(m.data[offset-16 : offset-8])
}
