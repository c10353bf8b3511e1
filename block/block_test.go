package block

import (
	"bytes"
	"errors"
	"testing"
)

func segmented() *Ref {
	r := New([]byte{0, 1, 2, 3})
	r.Append(New([]byte{4, 5}))
	r.Append(New([]byte{6, 7, 8}))
	return r
}

func TestPeekContiguousAliases(t *testing.T) {
	t.Parallel()
	data := []byte{1, 2, 3, 4, 5}
	r := New(data)
	defer r.Release()

	got, err := r.Peek(1, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{2, 3, 4}) {
		t.Fatalf("peek = %v, want [2 3 4]", got)
	}
	if &got[0] != &data[1] {
		t.Error("contiguous peek should alias block memory")
	}
}

func TestPeekAcrossSegmentsCopies(t *testing.T) {
	t.Parallel()
	r := segmented()
	defer r.Release()

	buf := make([]byte, 4)
	got, err := r.Peek(3, 4, buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{3, 4, 5, 6}) {
		t.Fatalf("peek = %v, want [3 4 5 6]", got)
	}

	if _, err := r.Peek(3, 4, make([]byte, 2)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("short buffer: err = %v, want ErrOutOfRange", err)
	}
}

func TestPeekOutOfRange(t *testing.T) {
	t.Parallel()
	r := New([]byte{1, 2, 3})
	defer r.Release()

	if _, err := r.Peek(2, 2, make([]byte, 2)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
	if _, err := r.Peek(-1, 1, nil); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("negative offset: err = %v, want ErrOutOfRange", err)
	}
}

func TestSliceAndBytes(t *testing.T) {
	t.Parallel()
	r := segmented()
	s, err := r.Slice(2, 5)
	if err != nil {
		t.Fatal(err)
	}
	r.Release()

	if s.Size() != 5 {
		t.Fatalf("size = %d, want 5", s.Size())
	}
	if !bytes.Equal(s.Bytes(), []byte{2, 3, 4, 5, 6}) {
		t.Fatalf("bytes = %v", s.Bytes())
	}
	n := 0
	for range s.Chunks() {
		n++
	}
	if n != 3 {
		t.Errorf("chunks = %d, want 3", n)
	}
	s.Release()
}

func TestEqual(t *testing.T) {
	t.Parallel()
	a := segmented()
	b := New([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8})
	c := New([]byte{0, 1, 2, 3, 4, 5, 6, 7, 9})
	defer a.Release()
	defer b.Release()
	defer c.Release()

	if !Equal(a, b) {
		t.Error("segmented and flat blocks with same bytes should be equal")
	}
	if Equal(b, c) {
		t.Error("blocks differing in last byte should not be equal")
	}
}

func TestDoubleReleasePanics(t *testing.T) {
	t.Parallel()
	r := New([]byte{1})
	d := r.Dup()
	r.Release()
	d.Release()

	defer func() {
		if recover() == nil {
			t.Error("second release should panic")
		}
	}()
	r.Release()
}

func TestPoolRecycles(t *testing.T) {
	t.Parallel()
	p := NewPool(16)
	r, mem := p.Alloc(8)
	copy(mem, "abcdefgh")
	if string(r.Bytes()) != "abcdefgh" {
		t.Fatalf("bytes = %q", r.Bytes())
	}
	s, _ := r.Slice(0, 4)
	r.Release()
	if string(s.Bytes()) != "abcd" {
		t.Fatalf("slice outlived parent release: %q", s.Bytes())
	}
	s.Release()

	big, mem := p.Alloc(32)
	if len(mem) != 32 || big.Size() != 32 {
		t.Errorf("oversized alloc = %d bytes, want 32", len(mem))
	}
	big.Release()
}

func TestReleased(t *testing.T) {
	t.Parallel()
	r := New([]byte{1, 2, 3})
	d := r.Dup()
	r.Release()
	if !r.Released() || d.Released() {
		t.Fatalf("Released() = %v/%v, want true/false", r.Released(), d.Released())
	}
	d.Release()
}
