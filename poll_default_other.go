//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package evloop

func newDefaultBackend() (Backend, error) {
	return nil, ErrUnsupported
}
