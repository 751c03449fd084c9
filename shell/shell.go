// Package shell implements the multi-database front end for the
// schema-less store: a named set of Dynamic Databases, each its own
// attach directory, created/looked-up/removed by name and mutated
// through one convenience call that always goes through that database's
// shared undo stack instead of letting a caller forget to start or close
// a session.
package shell

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/Unhackables/chainbase/config"
	"github.com/Unhackables/chainbase/dynamic"
	"github.com/Unhackables/chainbase/errs"
	"github.com/Unhackables/chainbase/segment"
)

// Shell owns a root directory under which every named database gets its
// own subdirectory, mirroring the segment/lock-bank-per-attach-directory
// convention the rest of the store uses.
type Shell struct {
	mu   sync.Mutex
	root string
	cfg  config.Config

	databases map[string]*dynamic.Database
}

// Open returns a Shell rooted at dir, creating dir if it does not exist.
func Open(dir string) (*Shell, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating shell root")
	}
	return &Shell{
		root:      dir,
		cfg:       config.Load(),
		databases: make(map[string]*dynamic.Database),
	}, nil
}

func (s *Shell) dbDir(name string) string {
	return filepath.Join(s.root, name)
}

// CreateDatabase creates and opens a new Dynamic Database under name,
// failing with ErrAlreadyExists if one is already registered in this
// shell instance.
func (s *Shell) CreateDatabase(name string) (*dynamic.Database, error) {
	s.mu.Lock()
	if _, exists := s.databases[name]; exists {
		s.mu.Unlock()
		return nil, errors.Wrapf(errs.ErrAlreadyExists, "database %q", name)
	}
	s.mu.Unlock()

	db, err := dynamic.Open(s.dbDir(name), segment.ReadWrite, s.cfg.SegmentSize, s.cfg.LockCount)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.databases[name] = db
	s.mu.Unlock()
	return db, nil
}

// GetDatabase returns the database registered under name, failing with
// ErrNotFound on miss.
func (s *Shell) GetDatabase(name string) (*dynamic.Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.databases[name]
	if !ok {
		return nil, errors.Wrapf(errs.ErrNotFound, "database %q", name)
	}
	return db, nil
}

// FindDatabase returns the database registered under name, or ok=false
// on miss.
func (s *Shell) FindDatabase(name string) (*dynamic.Database, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.databases[name]
	return db, ok
}

// RemoveDatabase closes and wipes the database registered under name.
func (s *Shell) RemoveDatabase(name string) error {
	s.mu.Lock()
	db, ok := s.databases[name]
	if !ok {
		s.mu.Unlock()
		return errors.Wrapf(errs.ErrNotFound, "database %q", name)
	}
	delete(s.databases, name)
	s.mu.Unlock()

	return dynamic.Wipe(s.dbDir(name), db)
}

// Modify runs mutator against db inside a fresh undo session shared by
// every table currently registered on db, pushing the session on success
// and dropping (reverting) it if mutator returns an error.
func (s *Shell) Modify(db *dynamic.Database, mutator func(db *dynamic.Database) error) error {
	sess := db.StartUndoSession(true)
	if err := mutator(db); err != nil {
		sess.Drop()
		return err
	}
	sess.Push()
	return nil
}

// Close closes every database currently registered in this shell.
func (s *Shell) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for name, db := range s.databases {
		if err := db.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "closing database %q", name)
		}
	}
	s.databases = make(map[string]*dynamic.Database)
	return first
}
