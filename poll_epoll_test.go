//go:build linux

package evloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestEpollDeferredDel(t *testing.T) {
	_, l := newRealLoop(t, "epoll")
	_, w := pipe(t)

	p := l.Backend().(*Epoll)

	var recs []record

	require.NoError(t, l.Add(w, Write, 0, recorder(&recs), nil))
	require.NoError(t, l.Del(w))

	assert.True(t, epollHas(p, w), "deferred delete must keep the native watch")

	require.NoError(t, l.RunOnce(l.Resolution()))
	assert.Len(t, recs, 0)

	assert.False(t, epollHas(p, w), "stale watch must be dropped once reported")
}

func TestEpollImmediateDel(t *testing.T) {
	_, l := newRealLoop(t, "epoll-immediate")
	_, w := pipe(t)

	p := l.Backend().(*Epoll)

	var recs []record

	require.NoError(t, l.Add(w, Write, 0, recorder(&recs), nil))
	assert.True(t, epollHas(p, w))

	require.NoError(t, l.Del(w))
	assert.False(t, epollHas(p, w))
}

func TestEpollUpdateNoop(t *testing.T) {
	p, err := NewEpoll(false)
	require.NoError(t, err)

	defer func() {
		assert.NoError(t, p.Close())
	}()

	_, w := pipe(t)

	// no-op updates never reach the kernel
	assert.NoError(t, p.Update(w, Write, Write, OpMod))
	assert.NoError(t, p.Update(w, 0, 0, OpAdd))
	assert.NoError(t, p.Update(w, 0, 0, OpDel))

	assert.NoError(t, p.Update(w, 0, Write, OpAdd))
	assert.NoError(t, p.Update(w, 0, Write, OpAdd), "EEXIST falls back to MOD")
	assert.NoError(t, p.Update(w, Write, 0, OpDel))
	assert.NoError(t, p.Update(w, Write, 0, OpDel), "ENOENT on delete is benign")

	assert.Error(t, p.Update(w, Write, Read, OpMod), "MOD of a missing watch")
}

func TestEpollToEvents(t *testing.T) {
	assert.Equal(t, Read, epollToEvents(unix.EPOLLIN))
	assert.Equal(t, Read, epollToEvents(unix.EPOLLRDHUP))
	assert.Equal(t, Write, epollToEvents(unix.EPOLLOUT))
	assert.Equal(t, ReadWrite, epollToEvents(unix.EPOLLIN|unix.EPOLLOUT))
	assert.Equal(t, ReadWrite, epollToEvents(unix.EPOLLHUP))
	assert.Equal(t, ReadWrite, epollToEvents(unix.EPOLLERR))
	assert.Equal(t, Events(0), epollToEvents(0))
}

func TestMsec(t *testing.T) {
	assert.Equal(t, 0, msec(0))
	assert.Equal(t, 0, msec(-1))
	assert.Equal(t, 1, msec(1))
	assert.Equal(t, 63, msec(62500000))
	assert.Equal(t, 1000, msec(1000000000))
}

func epollHas(p *Epoll, fd int) bool {
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: unix.EPOLLOUT, Fd: int32(fd)})

	return err == nil
}
