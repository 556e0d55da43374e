package evloop

import (
	"math/bits"
	"time"
)

const (
	wheelSize = 128
	wordBits  = 64

	noTimeout = -1

	minResolution = time.Millisecond
)

// wheel is a ring of wheelSize buckets, each one a bitmap over descriptors.
// sum is the second level: bit i of sum word j is set iff vec word j*64+i is non-zero.
// Bucket base starts at baseTime and each one spans res.
type wheel struct {
	vec []uint64 // wheelSize * vecSize
	sum []uint64 // wheelSize * sumSize

	vecSize int
	sumSize int

	base     int
	baseTime time.Duration
	res      time.Duration

	armed int
}

func newWheel(capacity int, maxTimeout, now time.Duration) *wheel {
	vecSize := (capacity + wordBits - 1) / wordBits
	sumSize := (vecSize + wordBits - 1) / wordBits

	res := (maxTimeout + wheelSize - 1) / wheelSize
	if res < minResolution {
		res = minResolution
	}

	return &wheel{
		vec:      make([]uint64, wheelSize*vecSize),
		sum:      make([]uint64, wheelSize*sumSize),
		vecSize:  vecSize,
		sumSize:  sumSize,
		baseTime: now,
		res:      res,
	}
}

func (w *wheel) words(idx int) (vec, sum []uint64) {
	return w.vec[idx*w.vecSize : (idx+1)*w.vecSize], w.sum[idx*w.sumSize : (idx+1)*w.sumSize]
}

// bucket picks the bucket for a timeout d armed at now.
// Timeouts beyond the wheel span land in the last bucket.
// Precision assumes expire is called at least once per resolution:
// after a longer stall a timeout armed before catching up may land in a bucket
// the same expire call is about to reach.
func (w *wheel) bucket(now, d time.Duration) int {
	delta := (now + d - w.baseTime) / w.res

	if delta >= wheelSize {
		delta = wheelSize - 1
	}

	if delta < 0 {
		delta = 0
	}

	return (w.base + int(delta)) % wheelSize
}

func (w *wheel) set(fd, idx int) {
	vec, sum := w.words(idx)
	vi := fd / wordBits

	vec[vi] |= 1 << uint(fd%wordBits)
	sum[vi/wordBits] |= 1 << uint(vi%wordBits)

	w.armed++
}

func (w *wheel) clear(fd, idx int) {
	vec, sum := w.words(idx)
	vi := fd / wordBits

	vec[vi] &^= 1 << uint(fd%wordBits)
	if vec[vi] == 0 {
		sum[vi/wordBits] &^= 1 << uint(vi%wordBits)
	}

	w.armed--
}

func (w *wheel) isSet(fd, idx int) bool {
	vec, _ := w.words(idx)

	return vec[fd/wordBits]&(1<<uint(fd%wordBits)) != 0
}

// first returns the lowest descriptor in bucket idx or -1.
func (w *wheel) first(idx int) int {
	vec, sum := w.words(idx)

	for i, s := range sum {
		if s == 0 {
			continue
		}

		vi := i*wordBits + bits.TrailingZeros64(s)

		return vi*wordBits + bits.TrailingZeros64(vec[vi])
	}

	return -1
}

// expire calls fire for each descriptor of every bucket that ended by now,
// oldest bucket first, ascending descriptors within a bucket.
// The descriptor is removed from the wheel before fire is called.
// Live bitmaps are re-read after each call, so fire may clear or set
// timeouts of any descriptor.
func (w *wheel) expire(now time.Duration, fire func(fd int)) {
	for w.baseTime <= now-w.res {
		if w.armed == 0 {
			n := (now - w.baseTime) / w.res

			w.base = (w.base + int(n%wheelSize)) % wheelSize
			w.baseTime += n * w.res

			return
		}

		for fd := w.first(w.base); fd >= 0; fd = w.first(w.base) {
			w.clear(fd, w.base)
			fire(fd)
		}

		w.base = (w.base + 1) % wheelSize
		w.baseTime += w.res
	}
}
