package evloop

import (
	"strconv"
	"syscall"
	"time"

	"github.com/nikandfor/errors"
)

type (
	// Events is a set of readiness flags.
	Events int

	// Callback is called by Loop.RunOnce for every ready or expired descriptor.
	// ev is Read, Write, Read|Write or Timeout, never Timeout mixed with the others.
	Callback func(l *Loop, fd int, ev Events, arg interface{})

	// Op tells Backend.Update why the watch changes.
	Op int

	// ReadyFunc is handed to Backend.Poll to dispatch native notifications.
	// It reports whether fd is still watched by the polling loop.
	ReadyFunc func(fd int, ev Events) (watched bool)

	// Backend translates watch requests into native calls of one OS facility.
	// It's owned by exactly one Loop and called only from its goroutine.
	Backend interface {
		Name() string

		// Update reconciles native state of fd from old to ev.
		// Update with old == ev and OpMod is a no-op.
		Update(fd int, old, ev Events, op Op) error

		// Poll blocks up to wait and reports ready descriptors to ready.
		Poll(wait time.Duration, ready ReadyFunc) error

		Close() error
	}
)

const (
	Read Events = 1 << iota
	Write
	Timeout

	ReadWrite = Read | Write
)

const (
	OpAdd Op = iota
	OpMod
	OpDel
)

var (
	ErrNoEvents    = errors.New("no events")
	ErrUnsupported = errors.New("unsupported")
	ErrInterrupted = errors.New("interrupted")
	ErrCapacity    = errors.New("capacity exceeded")
)

func (ev Events) String() string {
	switch ev {
	case 0:
		return "none"
	case Read:
		return "read"
	case Write:
		return "write"
	case ReadWrite:
		return "read|write"
	case Timeout:
		return "timeout"
	}

	var b []byte

	for _, f := range []struct {
		e Events
		n string
	}{{Read, "read"}, {Write, "write"}, {Timeout, "timeout"}} {
		if ev&f.e == 0 {
			continue
		}

		if b != nil {
			b = append(b, '|')
		}

		b = append(b, f.n...)
	}

	if rest := ev &^ (ReadWrite | Timeout); rest != 0 {
		if b != nil {
			b = append(b, '|')
		}

		b = append(b, "0x"...)
		b = strconv.AppendUint(b, uint64(rest), 16)
	}

	return string(b)
}

func (op Op) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpMod:
		return "mod"
	case OpDel:
		return "del"
	default:
		return "op(" + strconv.Itoa(int(op)) + ")"
	}
}

// Fd extracts the descriptor out of os.File, net.Conn, net.Listener and alike.
func Fd(f interface{}) (fd int, err error) {
	if fl, ok := f.(interface {
		Fd() uintptr
	}); ok {
		return int(fl.Fd()), nil
	}

	if fl, ok := f.(interface {
		Fd() int
	}); ok {
		return fl.Fd(), nil
	}

	if sc, ok := f.(interface {
		SyscallConn() (syscall.RawConn, error)
	}); ok {
		rc, err := sc.SyscallConn()
		if err != nil {
			return -1, err
		}

		err = rc.Control(func(f uintptr) {
			fd = int(f)
		})

		return fd, err
	}

	return -1, ErrUnsupported
}

func waitErr(err error, call string) error {
	switch err {
	case nil:
		return nil
	case syscall.EINTR:
		return ErrInterrupted
	default:
		return errors.Wrap(err, "%v", call)
	}
}
