// Package block implements reference-counted binary buffers ("block refs")
// that carry payload between pipes. A Ref is a read-only view over one or
// more memory segments; once handed to a pipe it must not be written to.
package block

import (
	"errors"
	"iter"
	"sync/atomic"
)

// ErrOutOfRange is returned when a read or peek falls outside the block.
var ErrOutOfRange = errors.New("block: out of range")

// buffer is a shared memory area. Refs hold counted references on it.
type buffer struct {
	data []byte
	refs atomic.Int32
	pool *Pool
}

func (b *buffer) retain() {
	b.refs.Add(1)
}

func (b *buffer) release() {
	if b.refs.Add(-1) == 0 && b.pool != nil {
		b.pool.put(b)
	}
}

type segment struct {
	buf *buffer
	off int
	n   int
}

func (s segment) bytes() []byte {
	return s.buf.data[s.off : s.off+s.n]
}

// Ref is a handle on an immutable byte sequence. Each Ref must be released
// exactly once; Dup and Slice return new handles that are released
// independently.
type Ref struct {
	segs     []segment
	size     int
	released bool
}

// New wraps b in a Ref. The caller gives up ownership of b.
func New(b []byte) *Ref {
	buf := &buffer{data: b}
	buf.refs.Store(1)
	return &Ref{
		segs: []segment{{buf: buf, n: len(b)}},
		size: len(b),
	}
}

// Size returns the number of bytes in the block.
func (r *Ref) Size() int {
	return r.size
}

// Peek returns n bytes starting at offset. If the range lies within a single
// segment the returned slice aliases the block memory and must not be
// modified; otherwise the bytes are copied into buf, which must hold at
// least n bytes.
func (r *Ref) Peek(offset, n int, buf []byte) ([]byte, error) {
	if offset < 0 || n < 0 || offset+n > r.size {
		return nil, ErrOutOfRange
	}
	pos := 0
	for _, s := range r.segs {
		if offset < pos+s.n {
			start := offset - pos
			if start+n <= s.n {
				return s.bytes()[start : start+n], nil
			}
			break
		}
		pos += s.n
	}
	if len(buf) < n {
		return nil, ErrOutOfRange
	}
	if err := r.Read(offset, buf[:n]); err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Read copies len(dst) bytes starting at offset into dst.
func (r *Ref) Read(offset int, dst []byte) error {
	if offset < 0 || offset+len(dst) > r.size {
		return ErrOutOfRange
	}
	pos := 0
	copied := 0
	for _, s := range r.segs {
		if copied == len(dst) {
			break
		}
		if offset+copied >= pos+s.n {
			pos += s.n
			continue
		}
		start := offset + copied - pos
		copied += copy(dst[copied:], s.bytes()[start:])
		pos += s.n
	}
	return nil
}

// Bytes returns the full content of the block. For single-segment blocks the
// result aliases the block memory.
func (r *Ref) Bytes() []byte {
	if len(r.segs) == 1 {
		return r.segs[0].bytes()
	}
	out := make([]byte, r.size)
	_ = r.Read(0, out)
	return out
}

// Chunks iterates over the contiguous memory segments of the block.
func (r *Ref) Chunks() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for _, s := range r.segs {
			if !yield(s.bytes()) {
				return
			}
		}
	}
}

// Slice returns a new Ref over n bytes starting at offset, sharing memory
// with r.
func (r *Ref) Slice(offset, n int) (*Ref, error) {
	if offset < 0 || n < 0 || offset+n > r.size {
		return nil, ErrOutOfRange
	}
	out := &Ref{size: n}
	pos := 0
	for _, s := range r.segs {
		if n == 0 {
			break
		}
		if offset >= pos+s.n {
			pos += s.n
			continue
		}
		start := offset - pos
		take := min(s.n-start, n)
		s.buf.retain()
		out.segs = append(out.segs, segment{buf: s.buf, off: s.off + start, n: take})
		offset += take
		n -= take
		pos += s.n
	}
	return out, nil
}

// Append moves the content of other to the end of r. other is consumed and
// must not be used afterwards.
func (r *Ref) Append(other *Ref) {
	r.segs = append(r.segs, other.segs...)
	r.size += other.size
	other.segs = nil
	other.size = 0
	other.released = true
}

// Dup returns a second handle on the same memory.
func (r *Ref) Dup() *Ref {
	out := &Ref{segs: make([]segment, len(r.segs)), size: r.size}
	for i, s := range r.segs {
		s.buf.retain()
		out.segs[i] = s
	}
	return out
}

// Release drops the handle. Releasing a handle twice panics.
func (r *Ref) Release() {
	if r.released {
		panic("block: release of released ref")
	}
	r.released = true
	for _, s := range r.segs {
		s.buf.release()
	}
	r.segs = nil
}

// Released reports whether the handle has been released.
func (r *Ref) Released() bool {
	return r.released
}

// Equal reports whether a and b hold the same bytes.
func Equal(a, b *Ref) bool {
	if a.size != b.size {
		return false
	}
	if len(a.segs) == 1 && len(b.segs) == 1 {
		return string(a.segs[0].bytes()) == string(b.segs[0].bytes())
	}
	return string(a.Bytes()) == string(b.Bytes())
}
