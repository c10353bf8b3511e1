package block

import "sync"

// Pool recycles fixed-size buffers for blocks filled from I/O.
type Pool struct {
	size int
	p    sync.Pool
}

// NewPool creates a pool of buffers of the given size.
func NewPool(size int) *Pool {
	pool := &Pool{size: size}
	pool.p.New = func() any {
		return &buffer{data: make([]byte, size), pool: pool}
	}
	return pool
}

// Alloc returns a block of n bytes together with its writable memory. The
// memory must be filled before the block is handed to a pipe. Requests
// larger than the pool size get a dedicated buffer.
func (p *Pool) Alloc(n int) (*Ref, []byte) {
	var buf *buffer
	if n > p.size {
		buf = &buffer{data: make([]byte, n)}
	} else {
		buf = p.p.Get().(*buffer)
	}
	buf.refs.Store(1)
	r := &Ref{segs: []segment{{buf: buf, n: n}}, size: n}
	return r, buf.data[:n]
}

func (p *Pool) put(b *buffer) {
	p.p.Put(b)
}
