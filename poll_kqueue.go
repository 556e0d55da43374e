//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package evloop

import (
	"time"

	"github.com/eapache/queue"
	"github.com/nikandfor/errors"
	"golang.org/x/sys/unix"
)

type (
	// Kqueue is a kernel event queue backend.
	//
	// Changes are collected between polls and submitted in batches,
	// the last batch together with the wait call.
	// Deletes are submitted immediately.
	Kqueue struct {
		fd int

		pending *queue.Queue // of int, changed descriptors in change order
		dirty   map[int]kqChange

		changes []unix.Kevent_t
		evs     [1024]unix.Kevent_t
	}

	kqChange struct {
		old Events // as submitted to the kernel
		ev  Events
	}
)

const kqChangesSize = 256

var _ Backend = &Kqueue{}

func NewKqueue() (*Kqueue, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, errors.Wrap(err, "kqueue")
	}

	unix.CloseOnExec(fd)

	return &Kqueue{
		fd:      fd,
		pending: queue.New(),
		dirty:   make(map[int]kqChange),
		changes: make([]unix.Kevent_t, 0, kqChangesSize),
	}, nil
}

func (p *Kqueue) Name() string { return "kqueue" }

func (p *Kqueue) Close() error {
	return errors.Wrap(unix.Close(p.fd), "close kqueue")
}

func (p *Kqueue) Update(fd int, old, ev Events, op Op) error {
	ev &= ReadWrite

	c, queued := p.dirty[fd]

	if !queued {
		if ev == old {
			return nil
		}

		c.old = old
		p.pending.Add(fd)
	}

	c.ev = ev
	p.dirty[fd] = c

	if op == OpDel {
		return p.flush(true)
	}

	return nil
}

func (p *Kqueue) Poll(wait time.Duration, ready ReadyFunc) (err error) {
	err = p.flush(false)
	if err != nil {
		return err
	}

	ts := unix.NsecToTimespec(int64(wait))

	n, err := unix.Kevent(p.fd, p.changes, p.evs[:], &ts)
	p.changes = p.changes[:0] // applied even if interrupted
	if err = waitErr(err, "kevent"); err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		e := &p.evs[i]

		if e.Flags&unix.EV_ERROR != 0 {
			if err == nil {
				err = changeErr(e)
			}

			continue
		}

		var ev Events

		switch e.Filter {
		case unix.EVFILT_READ:
			ev = Read
		case unix.EVFILT_WRITE:
			ev = Write
		default:
			continue
		}

		ready(int(e.Ident), ev)
	}

	return err
}

// flush moves pending changes to the changelist, submitting it whenever it fills up.
// If all is set the rest is submitted as well.
func (p *Kqueue) flush(all bool) (err error) {
	for p.pending.Length() != 0 {
		fd := p.pending.Remove().(int)

		c := p.dirty[fd]
		delete(p.dirty, fd)

		if c.old == c.ev {
			continue
		}

		if len(p.changes)+4 > cap(p.changes) {
			err = p.submit()
			if err != nil {
				return err
			}
		}

		p.changes = appendKevents(p.changes, fd, c.old&^c.ev, unix.EV_DISABLE)
		p.changes = appendKevents(p.changes, fd, c.ev&^c.old, unix.EV_ADD|unix.EV_ENABLE)
	}

	if all && len(p.changes) != 0 {
		return p.submit()
	}

	return nil
}

// submit applies the changelist without waiting.
// Change errors are received into evs, so one failed change doesn't abort the rest.
// Readiness reported along the way is dropped, it's reported again by the next Poll.
func (p *Kqueue) submit() (err error) {
	var ts unix.Timespec

	n, err := unix.Kevent(p.fd, p.changes, p.evs[:len(p.changes)], &ts)
	p.changes = p.changes[:0]
	if err != nil {
		return errors.Wrap(err, "kevent submit")
	}

	for i := 0; i < n; i++ {
		if p.evs[i].Flags&unix.EV_ERROR == 0 {
			continue
		}

		if err == nil {
			err = changeErr(&p.evs[i])
		}
	}

	return err
}

// changeErr reports a failed change.
// EV_ADD never fails with ENOENT, so ENOENT is a disable of a filter
// the kernel dropped when the descriptor was closed and its number reused.
// The change flags can't tell it: some systems replace them with EV_ERROR.
func changeErr(e *unix.Kevent_t) error {
	errno := unix.Errno(e.Data)

	if errno == 0 || errno == unix.ENOENT {
		return nil
	}

	return errors.Wrap(errno, "kevent change %d", e.Ident)
}

func appendKevents(b []unix.Kevent_t, fd int, ev Events, flags int) []unix.Kevent_t {
	var k unix.Kevent_t

	if ev&Read != 0 {
		unix.SetKevent(&k, fd, unix.EVFILT_READ, flags)
		b = append(b, k)
	}

	if ev&Write != 0 {
		unix.SetKevent(&k, fd, unix.EVFILT_WRITE, flags)
		b = append(b, k)
	}

	return b
}
