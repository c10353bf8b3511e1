package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/zsiec/siflow/block"
	"github.com/zsiec/siflow/pipe"
)

// ReadSize is the size of a single read: ten SRT payloads of seven
// packets each.
const ReadSize = 1316 * 10

// Pump reads r into pooled blocks and feeds them to p until r is exhausted
// or ctx is done, returning the number of bytes read. A clean end of input
// is not an error. p is only touched from the calling goroutine.
func Pump(ctx context.Context, r io.Reader, p pipe.Pipe, pool *block.Pool) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		ref, buf := pool.Alloc(ReadSize)
		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if n < len(buf) {
				short, serr := ref.Slice(0, n)
				ref.Release()
				if serr != nil {
					return total, serr
				}
				ref = short
			}
			p.Input(ref)
		} else {
			ref.Release()
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return total, nil
			}
			return total, fmt.Errorf("ingest: read: %w", err)
		}
	}
}
