package evloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type (
	fakeBackend struct {
		updates []fakeUpdate
		waits   []time.Duration

		ready   []fakeEvent
		watched []bool

		updateErr error
		pollErr   error
		closeErr  error

		closed bool
	}

	fakeUpdate struct {
		fd      int
		old, ev Events
		op      Op
	}

	fakeEvent struct {
		fd int
		ev Events
	}

	manualClock struct {
		now time.Duration
	}

	record struct {
		fd int
		ev Events
		at time.Duration
	}
)

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Close() error {
	if b.closeErr != nil {
		return b.closeErr
	}

	b.closed = true

	return nil
}

func (b *fakeBackend) Update(fd int, old, ev Events, op Op) error {
	if b.updateErr != nil {
		return b.updateErr
	}

	if op != OpDel && old == ev {
		return nil
	}

	b.updates = append(b.updates, fakeUpdate{fd: fd, old: old, ev: ev, op: op})

	return nil
}

func (b *fakeBackend) Poll(wait time.Duration, ready ReadyFunc) error {
	b.waits = append(b.waits, wait)

	if b.pollErr != nil {
		return b.pollErr
	}

	evs := b.ready
	b.ready = nil

	for _, e := range evs {
		b.watched = append(b.watched, ready(e.fd, e.ev))
	}

	return nil
}

func (c *manualClock) Now() time.Duration { return c.now }

func newFakeLoop(t testing.TB, e *Engine, maxTimeout time.Duration) (*Loop, *fakeBackend, *manualClock) {
	t.Helper()

	b := &fakeBackend{}
	c := &manualClock{now: time.Hour} // arbitrary origin

	l, err := e.NewLoop(maxTimeout,
		WithBackend(func() (Backend, error) { return b, nil }),
		WithClock(c),
	)
	require.NoError(t, err)

	return l, b, c
}

func recorder(recs *[]record) Callback {
	return func(l *Loop, fd int, ev Events, arg interface{}) {
		*recs = append(*recs, record{fd: fd, ev: ev, at: l.now})
	}
}

func requireMisuse(t testing.TB, err, reason error) {
	t.Helper()

	require.Error(t, err)

	perr, ok := err.(*ProgrammingError)
	require.True(t, ok, "not a programming error: %v", err)
	require.Equal(t, reason, perr.Err)
}
