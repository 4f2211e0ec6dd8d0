// Package bufpool provides size-bucketed byte buffer reuse. Its user is the
// command server's binary websocket frame encoding.
package bufpool

import "sync"

// bucketSizes mirrors the working-set sizes a single audio Packet at
// typical sample rates and channel counts actually needs, smallest first.
var bucketSizes = []int{4 * 1024, 16 * 1024, 64 * 1024, 256 * 1024}

var pools = makePools()

func makePools() []*sync.Pool {
	pools := make([]*sync.Pool, len(bucketSizes))
	for i, size := range bucketSizes {
		size := size
		pools[i] = &sync.Pool{
			New: func() any {
				return make([]byte, size)
			},
		}
	}
	return pools
}

// Get returns a []byte of at least n bytes, possibly larger (rounded up
// to the smallest covering bucket), or a freshly allocated slice if n
// exceeds every bucket.
func Get(n int) []byte {
	for i, size := range bucketSizes {
		if n <= size {
			buf := pools[i].Get().([]byte)
			return buf[:n]
		}
	}
	return make([]byte, n)
}

// Put returns buf to its bucket pool for reuse. Buffers larger than the
// biggest bucket are simply dropped.
func Put(buf []byte) {
	c := cap(buf)
	for i, size := range bucketSizes {
		if c == size {
			pools[i].Put(buf[:size])
			return
		}
	}
}
