//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package evloop

func init() {
	backends["kqueue"] = func() (Backend, error) { return NewKqueue() }
	backends["select"] = func() (Backend, error) { return NewSelector() }
}

func newDefaultBackend() (Backend, error) {
	return NewKqueue()
}
