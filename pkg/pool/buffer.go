// Package pool provides sync.Pool-backed byte-buffer reuse for the
// copier's hot copy loop, avoiding a fresh allocation per file.
package pool

import "sync"

// FixedBufferPool hands out byte slices of exactly one size.
type FixedBufferPool struct {
	size int
	pool sync.Pool
}

// NewFixedBuffer builds a pool of buffers of the given size.
func NewFixedBuffer(size int) *FixedBufferPool {
	return &FixedBufferPool{
		size: size,
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, size)
				return &b
			},
		},
	}
}

// Get returns a buffer of the pool's configured size.
func (p *FixedBufferPool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool. Buffers of the wrong capacity are
// dropped rather than pooled, so a caller can't accidentally poison the
// pool with a mis-sized slice.
func (p *FixedBufferPool) Put(b *[]byte) {
	if b == nil || cap(*b) != p.size {
		return
	}
	*b = (*b)[:p.size]
	p.pool.Put(b)
}
