// Package errs holds the sentinel error kinds surfaced by the store across
// the segment, lock, index and undo layers. Callers compare against these
// with errors.Is; every wrap done on top of them uses pkg/errors so a log
// line also carries a stack trace back to the originating call site.
package errs

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrIncompatibleBuild = errors.New("incompatible build")
	ErrUniqueness        = errors.New("uniqueness constraint violated")
	ErrOutOfRange        = errors.New("out of range")
	ErrTimeout           = errors.New("timeout")
	ErrNotWritable       = errors.New("not writable")
	ErrGrowFailed        = errors.New("grow failed")
	ErrAlreadyInUse      = errors.New("already in use")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrClosed            = errors.New("store closed")
)
