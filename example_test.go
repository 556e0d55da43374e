//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package evloop_test

import (
	"fmt"
	"os"
	"time"

	"github.com/nikandfor/evloop"
)

func Example() {
	e, err := evloop.New(1024)
	if err != nil {
		panic(err)
	}

	defer e.Close()

	l, err := e.NewLoop(time.Second)
	if err != nil {
		panic(err)
	}

	defer l.Close()

	r, w, err := os.Pipe()
	if err != nil {
		panic(err)
	}

	defer r.Close()
	defer w.Close()

	fd, err := evloop.Fd(r)
	if err != nil {
		panic(err)
	}

	done := false

	err = l.Add(fd, evloop.Read, 100*time.Millisecond, func(l *evloop.Loop, fd int, ev evloop.Events, arg interface{}) {
		fmt.Printf("%s: %v\n", arg, ev)

		if ev&evloop.Timeout != 0 {
			_, _ = w.Write([]byte("x"))

			_ = l.SetTimeout(fd, 0)

			return
		}

		done = true

		_ = l.Del(fd)
	}, "pipe")
	if err != nil {
		panic(err)
	}

	for !done {
		err = l.RunOnce(-1)
		if err != nil {
			panic(err)
		}
	}

	// Output:
	// pipe: timeout
	// pipe: read
}
