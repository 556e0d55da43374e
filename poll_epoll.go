//go:build linux

package evloop

import (
	"time"

	"github.com/nikandfor/errors"
	"golang.org/x/sys/unix"
)

// Epoll is a readiness list backend.
//
// With deferred deletes Del leaves the descriptor in the native set
// and it's removed only when epoll reports it while unwatched.
// Descriptors removed and added back soon cost one epoll_ctl call instead of two.
type Epoll struct {
	fd int

	deferDel bool

	evs [1024]unix.EpollEvent
}

var _ Backend = &Epoll{}

func NewEpoll(deferDeletes bool) (*Epoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll_create")
	}

	return &Epoll{
		fd:       fd,
		deferDel: deferDeletes,
	}, nil
}

func (p *Epoll) Name() string {
	if p.deferDel {
		return "epoll"
	}

	return "epoll-immediate"
}

func (p *Epoll) Close() error {
	return errors.Wrap(unix.Close(p.fd), "close epoll")
}

func (p *Epoll) Update(fd int, old, ev Events, op Op) (err error) {
	ev &= ReadWrite

	if op != OpDel && ev == old {
		return nil
	}

	if p.deferDel {
		switch {
		case op == OpDel:
			return nil
		case ev == 0:
			return p.del(fd)
		}

		err = p.ctl(unix.EPOLL_CTL_MOD, fd, ev)
		if err == unix.ENOENT {
			err = p.ctl(unix.EPOLL_CTL_ADD, fd, ev)
		}

		return errors.Wrap(err, "epoll_ctl %d", fd)
	}

	switch {
	case ev == 0:
		if old == 0 {
			return nil
		}

		return p.del(fd)
	case old == 0:
		err = p.ctl(unix.EPOLL_CTL_ADD, fd, ev)
		if err == unix.EEXIST {
			err = p.ctl(unix.EPOLL_CTL_MOD, fd, ev)
		}
	default:
		err = p.ctl(unix.EPOLL_CTL_MOD, fd, ev)
	}

	return errors.Wrap(err, "epoll_ctl %d", fd)
}

func (p *Epoll) Poll(wait time.Duration, ready ReadyFunc) (err error) {
	n, err := unix.EpollWait(p.fd, p.evs[:], msec(wait))
	if err = waitErr(err, "epoll_wait"); err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		fd := int(p.evs[i].Fd)

		if ready(fd, epollToEvents(p.evs[i].Events)) || !p.deferDel {
			continue
		}

		if e := p.del(fd); err == nil {
			err = e
		}
	}

	return err
}

func (p *Epoll) ctl(op, fd int, ev Events) error {
	e := &unix.EpollEvent{
		Fd: int32(fd),
	}

	if ev&Read != 0 {
		e.Events |= unix.EPOLLIN
	}

	if ev&Write != 0 {
		e.Events |= unix.EPOLLOUT
	}

	return unix.EpollCtl(p.fd, op, fd, e)
}

// del treats an already removed or closed descriptor as success.
func (p *Epoll) del(fd int) error {
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})

	switch err {
	case nil, unix.ENOENT, unix.EBADF:
		return nil
	default:
		return errors.Wrap(err, "epoll_ctl del %d", fd)
	}
}

func epollToEvents(e uint32) (ev Events) {
	if e&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
		ev |= Read
	}

	if e&unix.EPOLLOUT != 0 {
		ev |= Write
	}

	// errors and hangups wake up whatever is watched
	if e&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		ev |= ReadWrite
	}

	return ev
}

func msec(d time.Duration) int {
	if d <= 0 {
		return 0
	}

	return int((d + time.Millisecond - 1) / time.Millisecond)
}
