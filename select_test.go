//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package evloop

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	for _, name := range Backends() {
		name := name

		t.Run(name, func(t *testing.T) {
			r, w, err := os.Pipe()
			require.NoError(t, err)

			defer func() {
				_ = r.Close()
				_ = w.Close()
			}()

			s, err := Select([]io.Reader{r}, 0, WithBackendName(name))
			assert.Equal(t, ErrNoEvents, err)
			assert.Nil(t, s)

			s, err = Select([]io.Reader{r}, time.Millisecond, WithBackendName(name))
			assert.Equal(t, ErrNoEvents, err)
			assert.Nil(t, s)

			go func() {
				time.Sleep(10 * time.Millisecond)

				_, err := w.Write([]byte("data"))
				assert.NoError(t, err)
			}()

			s, err = Select([]io.Reader{r}, -1, WithBackendName(name))
			assert.NoError(t, err)
			assert.True(t, s == r, "bad file returned")
		})
	}
}

func TestSelectMany(t *testing.T) {
	r1, _ := pipeFiles(t)
	r2, w2 := pipeFiles(t)

	_, err := w2.Write([]byte("data"))
	require.NoError(t, err)

	s, err := Select([]io.Reader{r1, r2}, time.Second)
	assert.NoError(t, err)
	assert.True(t, s == r2, "bad file returned")
}

func TestSelectNotFile(t *testing.T) {
	_, err := Select([]io.Reader{os.Stdin, struct{ io.Reader }{}}, 0)
	assert.Error(t, err)
}
