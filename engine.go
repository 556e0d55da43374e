package evloop

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nikandfor/errors"
)

type (
	// Engine is the descriptor registry shared by all of its loops.
	// Each descriptor belongs to at most one loop at a time.
	//
	// Engine does no locking. Every descriptor must be touched only
	// by the goroutine driving the loop owning it.
	Engine struct {
		fds []fdState

		opts options

		closed bool
	}

	fdState struct {
		cb  Callback
		arg interface{}

		loop    uint32 // 0 is unowned
		events  Events
		timeout int // bucket index or noTimeout
	}
)

// MaxCapacity is the largest descriptor table New accepts.
const MaxCapacity = 1 << 24

var (
	lastLoopID uint32

	defmu  sync.Mutex
	defeng *Engine
)

// New allocates a registry for descriptors in [0, capacity).
func New(capacity int, opts ...Option) (*Engine, error) {
	if capacity <= 0 || capacity > MaxCapacity {
		return nil, errors.Wrap(ErrCapacity, "capacity %d", capacity)
	}

	e := &Engine{
		fds:  make([]fdState, capacity),
		opts: options{}.apply(opts),
	}

	if e.opts.err != nil {
		return nil, e.opts.err
	}

	for i := range e.fds {
		e.fds[i].timeout = noTimeout
	}

	if l := e.opts.log; l != nil {
		l.Printw("engine initialized", "capacity", capacity)
	}

	return e, nil
}

// Close releases the registry.
// Loops must be closed and descriptors deleted before that.
func (e *Engine) Close() error {
	if e.closed {
		return misuse("deinit", -1, ErrClosed)
	}

	e.closed = true
	e.fds = nil

	if l := e.opts.log; l != nil {
		l.Printw("engine closed")
	}

	return nil
}

// Capacity is the number of descriptors the registry tracks.
func (e *Engine) Capacity() int {
	return len(e.fds)
}

// IsActive reports whether fd is owned by any loop.
func (e *Engine) IsActive(fd int) bool {
	if fd < 0 || fd >= len(e.fds) {
		return false
	}

	return e.fds[fd].loop != 0
}

// NewLoop creates a loop with its own backend and timeout wheel.
// maxTimeout is the longest timeout the wheel represents exactly,
// longer ones expire after about maxTimeout.
func (e *Engine) NewLoop(maxTimeout time.Duration, opts ...Option) (l *Loop, err error) {
	if e.closed {
		return nil, misuse("create loop", -1, ErrClosed)
	}

	if maxTimeout <= 0 {
		return nil, errors.Wrap(ErrCapacity, "max timeout %v", maxTimeout)
	}

	o := e.opts.apply(opts)
	if o.err != nil {
		return nil, o.err
	}

	if o.clock == nil {
		o.clock = newMonoClock()
	}

	if o.newBackend == nil {
		o.newBackend = newDefaultBackend
	}

	id := atomic.AddUint32(&lastLoopID, 1)
	if id == 0 {
		return nil, errors.Wrap(ErrCapacity, "too many loops")
	}

	b, err := o.newBackend()
	if err != nil {
		return nil, errors.Wrap(err, "new backend")
	}

	now := o.clock.Now()

	l = &Loop{
		e:     e,
		id:    id,
		b:     b,
		w:     newWheel(len(e.fds), maxTimeout, now),
		clock: o.clock,
		log:   o.log,
		now:   now,
	}

	if o.log != nil {
		o.log.Printw("loop created", "loop", id, "backend", b.Name(), "resolution", l.w.res)
	}

	return l, nil
}

// Init initializes the process default engine.
func Init(capacity int, opts ...Option) error {
	defmu.Lock()
	defer defmu.Unlock()

	if defeng != nil {
		return misuse("init", -1, ErrInitialized)
	}

	e, err := New(capacity, opts...)
	if err != nil {
		return err
	}

	defeng = e

	return nil
}

// Deinit releases the process default engine.
func Deinit() error {
	defmu.Lock()
	defer defmu.Unlock()

	if defeng == nil {
		return misuse("deinit", -1, ErrNotInitialized)
	}

	err := defeng.Close()
	defeng = nil

	return err
}

// Default returns the process default engine or nil if Init wasn't called.
func Default() *Engine {
	defmu.Lock()
	defer defmu.Unlock()

	return defeng
}

// CreateLoop creates a loop on the process default engine.
func CreateLoop(maxTimeout time.Duration, opts ...Option) (*Loop, error) {
	e := Default()
	if e == nil {
		return nil, misuse("create loop", -1, ErrNotInitialized)
	}

	return e.NewLoop(maxTimeout, opts...)
}
