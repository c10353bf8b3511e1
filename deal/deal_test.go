package deal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func granted(t *Ticket) bool {
	select {
	case <-t.Granted():
		return true
	case <-time.After(20 * time.Millisecond):
		return false
	}
}

func TestGrabIsExclusive(t *testing.T) {
	t.Parallel()
	d := New()
	require.True(t, d.Grab())
	assert.False(t, d.Grab())
	d.Release()
	assert.True(t, d.Grab())
	d.Release()
}

func TestRequestGrantedWhenFree(t *testing.T) {
	t.Parallel()
	d := New()
	tk := d.Request()
	select {
	case <-tk.Granted():
	case <-time.After(time.Second):
		t.Fatal("ticket on a free deal should be granted")
	}
	assert.False(t, d.Grab(), "granted ticket holds the resource")
	tk.Yield()
	assert.True(t, d.Grab())
	d.Release()
}

func TestTicketsServedInOrder(t *testing.T) {
	t.Parallel()
	d := New()
	require.True(t, d.Grab())

	first := d.Request()
	second := d.Request()
	assert.False(t, granted(first), "resource still grabbed")

	d.Release()
	require.True(t, granted(first))
	assert.False(t, granted(second), "second ticket must wait for the first to yield")

	first.Yield()
	require.True(t, granted(second))
	second.Yield()
}

func TestAbortPendingTicket(t *testing.T) {
	t.Parallel()
	d := New()
	require.True(t, d.Grab())

	aborted := d.Request()
	next := d.Request()
	assert.True(t, aborted.Abort())

	d.Release()
	require.True(t, granted(next), "aborted ticket is skipped")
	assert.False(t, granted(aborted))
	next.Yield()
}

func TestAbortAfterGrant(t *testing.T) {
	t.Parallel()
	d := New()
	tk := d.Request()
	require.True(t, granted(tk))
	assert.False(t, tk.Abort(), "granted ticket cannot be aborted")
	tk.Yield()
	tk.Yield()
	assert.True(t, d.Grab(), "double yield releases once")
	d.Release()
}

func TestWaitCancelled(t *testing.T) {
	t.Parallel()
	d := New()
	require.True(t, d.Grab())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := d.Request().Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	d.Release()
	tk := d.Request()
	require.NoError(t, tk.Wait(context.Background()))
	tk.Yield()
}
