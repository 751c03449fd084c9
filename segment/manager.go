//go:build !windows

package segment

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/Unhackables/chainbase/errs"
	"github.com/Unhackables/chainbase/fingerprint"
	"github.com/Unhackables/chainbase/logging"
)

// Open attaches the primary segment under dir, creating or growing
// shared_memory.bin when mode is ReadWrite and size exceeds the file's
// current size. Shrinking is never performed. A fresh create writes the
// current process's fingerprint; a reattach verifies it byte-for-byte.
func Open(dir string, mode Mode, size int64) (*Manager, error) {
	if mode == ReadOnly {
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			return nil, errors.Wrapf(errs.ErrNotFound, "segment directory %q", dir)
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating segment directory")
	}

	path := filepath.Join(dir, binFileName)

	flags := os.O_RDWR
	if mode == ReadOnly {
		flags = os.O_RDONLY
	} else {
		flags |= os.O_CREATE
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if mode == ReadOnly {
			return nil, errors.Wrapf(errs.ErrNotFound, "opening %q", path)
		}
		return nil, errors.Wrapf(err, "opening %q", path)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "statting segment file")
	}

	fresh := st.Size() == 0
	if mode == ReadOnly && fresh {
		f.Close()
		return nil, errors.Wrapf(errs.ErrNotFound, "segment %q is empty", path)
	}

	m := &Manager{dir: dir, mode: mode, file: f, fresh: fresh}

	if mode == ReadWrite {
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			f.Close()
			return nil, errors.Wrapf(errs.ErrAlreadyInUse, "segment %q", path)
		}
		m.flock = true

		target := size
		if headerSize > target {
			target = headerSize
		}
		if target > st.Size() {
			if err := f.Truncate(target); err != nil {
				m.unlock()
				f.Close()
				return nil, errors.Wrapf(errs.ErrGrowFailed, "growing %q to %s: %v", path, humanize.Bytes(uint64(target)), err)
			}
			st, _ = f.Stat()
		}
	}

	if err := m.mapFile(st.Size()); err != nil {
		m.unlock()
		f.Close()
		return nil, err
	}

	if fresh {
		m.initHeader()
		fp := fingerprint.Current().Encode()
		copy(m.data[16:16+fingerprintSize], fp[:])
		logging.L().Info("created segment", zap.String("dir", dir), zap.Int64("size", st.Size()))
	} else if err := m.verifyFingerprint(); err != nil {
		m.Close()
		return nil, err
	}

	return m, nil
}

func (m *Manager) initHeader() {
	binary.LittleEndian.PutUint64(m.data[0:8], uint64(headerSize))
	binary.LittleEndian.PutUint64(m.data[8:16], 0)
	binary.LittleEndian.PutUint64(m.data[rootFieldOffset:rootFieldOffset+8], 0)
}

// Root returns the offset the index/database layer has recorded as the
// location of its own root metadata block, or 0 if none has been set yet.
func (m *Manager) Root() uint64 {
	return binary.LittleEndian.Uint64(m.data[rootFieldOffset : rootFieldOffset+8])
}

// SetRoot records offset as the root metadata block location.
func (m *Manager) SetRoot(offset uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != ReadWrite {
		return errs.ErrNotWritable
	}
	binary.LittleEndian.PutUint64(m.data[rootFieldOffset:rootFieldOffset+8], offset)
	return nil
}

func (m *Manager) verifyFingerprint() error {
	stored, ok := fingerprint.Decode(m.data[16 : 16+fingerprintSize])
	if !ok {
		return errors.Wrap(errs.ErrIncompatibleBuild, "fingerprint checksum mismatch")
	}
	if !fingerprint.Current().Matches(stored) {
		return errors.Wrap(errs.ErrIncompatibleBuild, "fingerprint does not match current process")
	}
	return nil
}

func (m *Manager) mapFile(size int64) error {
	prot := unix.PROT_READ
	if m.mode == ReadWrite {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(int(m.file.Fd()), 0, int(size), prot, unix.MAP_SHARED)
	if err != nil {
		return errors.Wrap(err, "mmap segment")
	}
	m.data = data
	return nil
}

// Grow extends the segment to at least newSize, remapping afterward. It is
// only valid on a ReadWrite attach and never shrinks the file.
func (m *Manager) Grow(newSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.growLocked(newSize)
}

// growLocked is Grow's body, callable by Alloc while m.mu is already held.
func (m *Manager) growLocked(newSize int64) error {
	if m.mode != ReadWrite {
		return errs.ErrNotWritable
	}
	st, err := m.file.Stat()
	if err != nil {
		return errors.Wrap(err, "statting segment file")
	}
	if newSize <= st.Size() {
		return nil
	}
	if err := m.file.Truncate(newSize); err != nil {
		return errors.Wrapf(errs.ErrGrowFailed, "growing to %s: %v", humanize.Bytes(uint64(newSize)), err)
	}
	if err := unix.Munmap(m.data); err != nil {
		return errors.Wrap(err, "unmapping segment before grow")
	}
	if err := m.mapFile(newSize); err != nil {
		return err
	}
	logging.L().Info("grew segment", zap.String("dir", m.dir), zap.Int64("size", newSize))
	return nil
}

// Close unmaps and releases the segment, including the write-attach lock
// if this Manager holds one.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.data != nil {
		err = unix.Munmap(m.data)
		m.data = nil
	}
	m.unlock()
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func (m *Manager) unlock() {
	if m.flock {
		_ = unix.Flock(int(m.file.Fd()), unix.LOCK_UN)
		m.flock = false
	}
}

// Mode reports whether this attach is ReadOnly or ReadWrite.
func (m *Manager) Mode() Mode { return m.mode }

// Dir returns the store directory this segment was opened under.
func (m *Manager) Dir() string { return m.dir }

// Fresh reports whether this Open created the backing file rather than
// reattaching to an existing one.
func (m *Manager) Fresh() bool { return m.fresh }

// Wipe removes a store directory's primary segment file entirely. Callers
// must ensure no Manager has it open.
func Wipe(dir string) error {
	return os.Remove(filepath.Join(dir, binFileName))
}
