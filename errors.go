package evloop

import (
	"strconv"

	"github.com/nikandfor/errors"
)

// ProgrammingError is returned when the engine API is misused:
// out of range descriptors, wrong loop ownership, double init or close.
// The host decides whether it's fatal.
type ProgrammingError struct {
	Op  string
	Fd  int // -1 if not related to a descriptor
	Err error
}

// Reasons of ProgrammingError.
var (
	ErrOutOfRange     = errors.New("descriptor out of range")
	ErrNotOwned       = errors.New("descriptor not owned by the loop")
	ErrAlreadyActive  = errors.New("descriptor already active")
	ErrNilCallback    = errors.New("nil callback")
	ErrClosed         = errors.New("closed")
	ErrInitialized    = errors.New("already initialized")
	ErrNotInitialized = errors.New("not initialized")
)

func (e *ProgrammingError) Error() string {
	if e.Fd < 0 {
		return e.Op + ": " + e.Err.Error()
	}

	return e.Op + " fd " + strconv.Itoa(e.Fd) + ": " + e.Err.Error()
}

func (e *ProgrammingError) Unwrap() error { return e.Err }

// IsProgrammingError reports whether err is a *ProgrammingError.
func IsProgrammingError(err error) bool {
	_, ok := err.(*ProgrammingError)
	return ok
}

func misuse(op string, fd int, reason error) error {
	return &ProgrammingError{Op: op, Fd: fd, Err: reason}
}
