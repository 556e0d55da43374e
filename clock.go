package evloop

import "time"

type (
	// Clock is a monotonic time source.
	// Now returns time elapsed since an arbitrary fixed point.
	Clock interface {
		Now() time.Duration
	}

	monoClock struct {
		start time.Time
	}
)

func newMonoClock() monoClock {
	return monoClock{start: time.Now()}
}

func (c monoClock) Now() time.Duration {
	return time.Since(c.start)
}
