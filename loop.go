package evloop

import (
	"time"

	"github.com/nikandfor/errors"
	"github.com/nikandfor/tlog"
)

// Loop is one poll/dispatch sequence over a partition of the engine descriptors.
// Loop is not safe for concurrent use.
type Loop struct {
	e *Engine

	id uint32

	b Backend
	w *wheel

	clock Clock
	log   *tlog.Logger

	now time.Duration

	closed bool
}

// ID is a non-zero loop identifier, unique within the process.
func (l *Loop) ID() uint32 { return l.id }

// Resolution is the time span of one timeout bucket.
// RunOnce never waits longer than that.
func (l *Loop) Resolution() time.Duration { return l.w.res }

// Backend returns the loop backend.
func (l *Loop) Backend() Backend { return l.b }

// Engine returns the registry the loop belongs to.
func (l *Loop) Engine() *Engine { return l.e }

// Close releases the backend.
// Descriptors still owned by the loop stay owned: Del them first.
func (l *Loop) Close() (err error) {
	if l.closed {
		return misuse("destroy loop", -1, ErrClosed)
	}

	err = l.b.Close()
	if err != nil {
		return errors.Wrap(err, "close backend")
	}

	l.closed = true

	if l.log != nil {
		l.log.Printw("loop closed", "loop", l.id)
	}

	return nil
}

// Add claims fd for the loop, watches ev and arms timeout if it's not zero.
func (l *Loop) Add(fd int, ev Events, timeout time.Duration, cb Callback, arg interface{}) (err error) {
	st, err := l.slot("add", fd)
	if err != nil {
		return err
	}

	if st.loop != 0 {
		return misuse("add", fd, ErrAlreadyActive)
	}

	if cb == nil {
		return misuse("add", fd, ErrNilCallback)
	}

	ev &= ReadWrite

	st.loop = l.id
	st.events = 0
	st.timeout = noTimeout

	err = l.b.Update(fd, 0, ev, OpAdd)
	if err != nil {
		st.loop = 0

		return errors.Wrap(err, "add %d", fd)
	}

	st.events = ev
	st.cb = cb
	st.arg = arg

	l.setTimeout(fd, st, timeout)

	return nil
}

// Del releases fd.
//
// Timeout and ownership are cleared even if the backend fails to remove the watch,
// in which case the backend error is returned and the native state may be stale.
func (l *Loop) Del(fd int) (err error) {
	st, err := l.owned("del", fd)
	if err != nil {
		return err
	}

	err = l.b.Update(fd, st.events, 0, OpDel)

	l.setTimeout(fd, st, 0)
	*st = fdState{timeout: noTimeout}

	if err != nil {
		return errors.Wrap(err, "del %d", fd)
	}

	return nil
}

// SetEvents changes the watched events. Setting the same events again is a no-op.
func (l *Loop) SetEvents(fd int, ev Events) (err error) {
	st, err := l.owned("set events", fd)
	if err != nil {
		return err
	}

	ev &= ReadWrite

	if ev == st.events {
		return nil
	}

	err = l.b.Update(fd, st.events, ev, OpMod)
	if err != nil {
		return errors.Wrap(err, "set events %d", fd)
	}

	st.events = ev

	return nil
}

// Events returns the watched events.
func (l *Loop) Events(fd int) (Events, error) {
	st, err := l.owned("get events", fd)
	if err != nil {
		return 0, err
	}

	return st.events, nil
}

// SetTimeout rearms fd timeout, relative to the time cached by the last RunOnce.
// Zero disarms it.
func (l *Loop) SetTimeout(fd int, timeout time.Duration) error {
	st, err := l.owned("set timeout", fd)
	if err != nil {
		return err
	}

	l.setTimeout(fd, st, timeout)

	return nil
}

// SetCallback replaces fd callback and its argument.
func (l *Loop) SetCallback(fd int, cb Callback, arg interface{}) error {
	st, err := l.owned("set callback", fd)
	if err != nil {
		return err
	}

	if cb == nil {
		return misuse("set callback", fd, ErrNilCallback)
	}

	st.cb = cb
	st.arg = arg

	return nil
}

// Callback returns fd callback and its argument.
func (l *Loop) Callback(fd int) (Callback, interface{}, error) {
	st, err := l.owned("get callback", fd)
	if err != nil {
		return nil, nil, err
	}

	return st.cb, st.arg, nil
}

// IsActive reports whether fd is owned by the loop.
func (l *Loop) IsActive(fd int) bool {
	if fd < 0 || fd >= len(l.e.fds) {
		return false
	}

	return l.e.fds[fd].loop == l.id
}

// NextFd returns the first descriptor after cursor owned by the loop, or -1.
// Start iteration with cursor -1.
// Adding or deleting descriptors during the iteration gives undefined results.
func (l *Loop) NextFd(cursor int) int {
	if cursor < -1 {
		cursor = -1
	}

	for fd := cursor + 1; fd < len(l.e.fds); fd++ {
		if l.e.fds[fd].loop == l.id {
			return fd
		}
	}

	return -1
}

// RunOnce waits for readiness up to wait, limited by Resolution,
// dispatches ready descriptors and then expired timeouts.
// Negative wait means Resolution.
//
// ErrInterrupted is returned as is: nothing was dispatched, just call again.
func (l *Loop) RunOnce(wait time.Duration) (err error) {
	if l.closed || l.e.closed {
		return misuse("run", -1, ErrClosed)
	}

	if wait < 0 || wait > l.w.res {
		wait = l.w.res
	}

	l.now = l.clock.Now()

	err = l.b.Poll(wait, l.ready)
	if err == ErrInterrupted {
		return err
	}
	if err != nil {
		if l.log != nil {
			l.log.Printw("poll failed", "loop", l.id, "backend", l.b.Name(), "err", err)
		}

		return errors.Wrap(err, "poll")
	}

	if wait != 0 {
		l.now = l.clock.Now()
	}

	l.w.expire(l.now, l.expired)

	return nil
}

func (l *Loop) ready(fd int, ev Events) bool {
	if fd < 0 || fd >= len(l.e.fds) {
		return false
	}

	st := &l.e.fds[fd]

	if st.loop != l.id || st.events == 0 {
		return false
	}

	ev &= st.events
	if ev == 0 {
		return true
	}

	st.cb(l, fd, ev, st.arg)

	return true
}

func (l *Loop) expired(fd int) {
	st := &l.e.fds[fd]

	st.timeout = noTimeout

	st.cb(l, fd, Timeout, st.arg)
}

func (l *Loop) setTimeout(fd int, st *fdState, timeout time.Duration) {
	if st.timeout != noTimeout {
		l.w.clear(fd, st.timeout)
		st.timeout = noTimeout
	}

	if timeout <= 0 {
		return
	}

	st.timeout = l.w.bucket(l.now, timeout)
	l.w.set(fd, st.timeout)
}

func (l *Loop) slot(op string, fd int) (*fdState, error) {
	if l.closed || l.e.closed {
		return nil, misuse(op, fd, ErrClosed)
	}

	if fd < 0 || fd >= len(l.e.fds) {
		return nil, misuse(op, fd, ErrOutOfRange)
	}

	return &l.e.fds[fd], nil
}

func (l *Loop) owned(op string, fd int) (*fdState, error) {
	st, err := l.slot(op, fd)
	if err != nil {
		return nil, err
	}

	if st.loop != l.id {
		return nil, misuse(op, fd, ErrNotOwned)
	}

	return st, nil
}
