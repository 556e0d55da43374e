package evloop

import (
	"sort"

	"github.com/nikandfor/errors"
	"github.com/nikandfor/tlog"
)

type (
	// Option configures an Engine or a Loop.
	// Options given to New become defaults for every loop of the engine.
	Option func(o *options)

	// BackendFactory creates a Backend for a new loop.
	BackendFactory func() (Backend, error)

	options struct {
		log        *tlog.Logger
		clock      Clock
		newBackend BackendFactory

		err error
	}
)

// backends is filled in by build-tagged files.
var backends = map[string]BackendFactory{}

// WithLogger sets the logger. nil disables logging.
func WithLogger(l *tlog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithClock replaces the monotonic clock. Mostly for tests.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithBackend sets the backend constructor used for new loops.
func WithBackend(f BackendFactory) Option {
	return func(o *options) {
		o.newBackend = f
	}
}

// WithBackendName selects a backend by name. See Backends for the available ones.
func WithBackendName(name string) Option {
	return func(o *options) {
		f, ok := backends[name]
		if !ok {
			o.err = errors.Wrap(ErrUnsupported, "backend %q", name)
			return
		}

		o.newBackend = f
	}
}

// Backends lists backend names available on this platform.
func Backends() []string {
	r := make([]string, 0, len(backends))

	for n := range backends {
		r = append(r, n)
	}

	sort.Strings(r)

	return r
}

func (o options) apply(opts []Option) options {
	for _, opt := range opts {
		if opt == nil {
			continue
		}

		opt(&o)
	}

	return o
}
