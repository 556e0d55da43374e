//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package evloop

import (
	"time"
	"unsafe"

	"github.com/nikandfor/errors"
	"golang.org/x/sys/unix"
)

// Selector is a descriptor set scanning backend.
// It has no native object: sets are rebuilt from the watch table on each Poll
// and every watched descriptor is checked after the wait.
// Descriptors are limited by FD_SETSIZE.
type Selector struct {
	watch []Events
	max   int

	r, w unix.FdSet
}

// FdSetSize is the select descriptor limit.
const FdSetSize = int(unsafe.Sizeof(unix.FdSet{})) * 8

var _ Backend = &Selector{}

func NewSelector() (*Selector, error) {
	return &Selector{max: -1}, nil
}

func (p *Selector) Name() string { return "select" }

func (p *Selector) Close() error { return nil }

func (p *Selector) Update(fd int, old, ev Events, op Op) error {
	ev &= ReadWrite

	if fd < 0 || fd >= FdSetSize {
		if ev == 0 {
			return nil
		}

		return errors.Wrap(ErrUnsupported, "fd %d exceeds FD_SETSIZE %d", fd, FdSetSize)
	}

	if fd >= len(p.watch) {
		if ev == 0 {
			return nil
		}

		p.watch = append(p.watch, make([]Events, fd+1-len(p.watch))...)
	}

	p.watch[fd] = ev

	switch {
	case ev != 0 && fd > p.max:
		p.max = fd
	case ev == 0 && fd == p.max:
		for p.max >= 0 && p.watch[p.max] == 0 {
			p.max--
		}
	}

	return nil
}

func (p *Selector) Poll(wait time.Duration, ready ReadyFunc) error {
	p.r.Zero()
	p.w.Zero()

	max := p.max

	for fd := 0; fd <= max; fd++ {
		if p.watch[fd]&Read != 0 {
			p.r.Set(fd)
		}

		if p.watch[fd]&Write != 0 {
			p.w.Set(fd)
		}
	}

	tv := unix.NsecToTimeval(int64(wait))

	n, err := unix.Select(max+1, &p.r, &p.w, nil, &tv)
	if err = waitErr(err, "select"); err != nil {
		return err
	}

	if n == 0 {
		return nil
	}

	for fd := 0; fd <= max; fd++ {
		var ev Events

		if p.r.IsSet(fd) {
			ev |= Read
		}

		if p.w.IsSet(fd) {
			ev |= Write
		}

		if ev != 0 {
			ready(fd, ev)
		}
	}

	return nil
}
