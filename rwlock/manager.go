//go:build !windows

package rwlock

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/Unhackables/chainbase/errs"
	"github.com/Unhackables/chainbase/segment"
)

// Open attaches to the lock bank for dir, sized for count named locks plus
// headroom for the shared cursor and the diagnostic attach token. A
// ReadWrite mode creates dir and the lock bank file if missing; a
// ReadOnly mode requires the file already exist at the expected size and
// fails with ErrNotFound otherwise — matching the read-only attach
// contract that a reader may never materialize store files on its own.
// The mapping itself is still opened read-write even for a ReadOnly
// attach: every attacher, readers included, updates a slot's shared
// reader count in this mapping via atomic CAS, so it can never be a
// read-only mmap regardless of the segment's own open mode.
func Open(dir string, count int, mode segment.Mode) (*Manager, error) {
	path := filepath.Join(dir, metaFileName)
	want := int64(headerSize + count*4 + attachTokenSize)

	var f *os.File
	var err error
	if mode == segment.ReadWrite {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "creating lock bank directory")
		}
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %q", path)
		}
	} else {
		f, err = os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.Wrapf(errs.ErrNotFound, "lock bank %q", path)
			}
			return nil, errors.Wrapf(err, "opening %q", path)
		}
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "statting lock bank")
	}
	if st.Size() < want {
		if mode != segment.ReadWrite {
			f.Close()
			return nil, errors.Wrapf(errs.ErrNotFound, "lock bank %q too small for read-only attach", path)
		}
		if err := f.Truncate(want); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "sizing lock bank")
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(want), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "mmap lock bank")
	}

	return &Manager{file: f, data: data, count: count}, nil
}

// Close unmaps and closes the lock bank handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.data != nil {
		err = unix.Munmap(m.data)
		m.data = nil
	}
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// RecordAttach writes a diagnostic token (UUID, PID, short hostname)
// identifying the current write attacher. Never consulted for correctness
// — purely an aid for "who has this store open" debugging.
func (m *Manager) RecordAttach() {
	off := headerSize + m.count*4
	id := uuid.New()
	copy(m.data[off:off+16], id[:])

	pid := uint32(os.Getpid())
	m.data[off+16] = byte(pid)
	m.data[off+17] = byte(pid >> 8)
	m.data[off+18] = byte(pid >> 16)
	m.data[off+19] = byte(pid >> 24)

	host, _ := os.Hostname()
	if len(host) > 47 {
		host = host[:47]
	}
	m.data[off+20] = byte(len(host))
	copy(m.data[off+21:], host)
}

// Wipe removes a store directory's lock bank file entirely. Callers must
// ensure no Manager has it open.
func Wipe(dir string) error {
	return os.Remove(filepath.Join(dir, metaFileName))
}
