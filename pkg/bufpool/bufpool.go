// Package bufpool pools the fixed-size copy buffers used to stream file
// payloads between disk and a client connection.
//
// Every session that transfers a file borrows one buffer for the duration of
// the copy and returns it afterwards, so steady-state transfers do not
// allocate.
//
//	buf := pool.Get()
//	defer pool.Put(buf)
//	io.CopyBuffer(dst, src, *buf)
package bufpool

import (
	"sync"
	"sync/atomic"
)

// DefaultSize is the buffer size used when a Pool is created with size <= 0.
const DefaultSize = 64 << 10

// Pool hands out byte slices of a single size.
type Pool struct {
	size   int
	pool   sync.Pool
	allocs atomic.Int64
}

// New creates a pool of buffers of the given size.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	p := &Pool{size: size}
	p.pool.New = func() any {
		p.allocs.Add(1)
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// Size returns the length of the buffers handed out by Get.
func (p *Pool) Size() int {
	return p.size
}

// Get returns a buffer of exactly Size bytes. Contents are unspecified.
func (p *Pool) Get() *[]byte {
	buf := p.pool.Get().(*[]byte)
	*buf = (*buf)[:p.size]
	return buf
}

// Put returns buf to the pool. Buffers of a foreign capacity are dropped.
func (p *Pool) Put(buf *[]byte) {
	if buf == nil || cap(*buf) != p.size {
		return
	}
	p.pool.Put(buf)
}

// Allocations reports how many buffers the pool has allocated so far.
func (p *Pool) Allocations() int64 {
	return p.allocs.Load()
}
