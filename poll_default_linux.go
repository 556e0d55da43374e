//go:build linux

package evloop

func init() {
	backends["epoll"] = func() (Backend, error) { return NewEpoll(true) }
	backends["epoll-immediate"] = func() (Backend, error) { return NewEpoll(false) }
	backends["select"] = func() (Backend, error) { return NewSelector() }
}

func newDefaultBackend() (Backend, error) {
	return NewEpoll(true)
}
