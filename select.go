package evloop

import (
	"io"
	"time"

	"github.com/nikandfor/errors"
)

// Select waits until one of rs is ready for reading and returns it.
//
// If to is negative it blocks until some reader is ready.
// If to is 0 it returns immediately.
// Otherwise it's a maximum time to wait.
// ErrNoEvents is returned if nothing got ready or the wait was interrupted.
func Select(rs []io.Reader, to time.Duration, opts ...Option) (r io.Reader, err error) {
	fds := make([]int, len(rs))
	capacity := 1

	for i, r := range rs {
		fd, err := Fd(r)
		if err != nil {
			return nil, errors.Wrap(err, "fd %d", i)
		}

		fds[i] = fd

		if fd >= capacity {
			capacity = fd + 1
		}
	}

	e, err := New(capacity, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "new engine")
	}

	defer func() {
		e := e.Close()
		if err == nil {
			err = errors.Wrap(e, "close engine")
		}
	}()

	span := to
	if span <= 0 {
		span = 10 * time.Second
	}

	l, err := e.NewLoop(span)
	if err != nil {
		return nil, errors.Wrap(err, "new loop")
	}

	defer func() {
		for _, fd := range fds {
			if !l.IsActive(fd) {
				continue
			}

			e := l.Del(fd)
			if err == nil {
				err = errors.Wrap(e, "del %d", fd)
			}
		}

		e := l.Close()
		if err == nil {
			err = errors.Wrap(e, "close loop")
		}
	}()

	cb := func(l *Loop, fd int, ev Events, arg interface{}) {
		if r == nil {
			r = arg.(io.Reader)
		}
	}

	for i, fd := range fds {
		err = l.Add(fd, Read, 0, cb, rs[i])
		if err != nil {
			return nil, errors.Wrap(err, "add %d", i)
		}
	}

	start := time.Now()

	for {
		wait := time.Duration(-1)

		if to >= 0 {
			wait = to - time.Since(start)
			if wait < 0 {
				wait = 0
			}
		}

		err = l.RunOnce(wait)
		if err == ErrInterrupted {
			return nil, ErrNoEvents
		}
		if err != nil {
			return nil, err
		}

		if r != nil {
			return r, nil
		}

		if to >= 0 && time.Since(start) >= to {
			return nil, ErrNoEvents
		}
	}
}
