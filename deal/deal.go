// Package deal arbitrates exclusive access to a non-reentrant resource
// between independent event loops.
//
// A loop either grabs the resource on the spot or requests a [Ticket] and
// keeps running until the ticket's Granted channel fires. Waiting tickets
// are served in request order. A granted ticket is handed back with Yield;
// a ticket that is no longer wanted is withdrawn with Abort.
package deal

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Default guards resources shared process-wide, such as connection setup
// on libraries that cannot dial concurrently.
var Default = New()

// Deal is a single-slot resource with a FIFO queue of tickets.
type Deal struct {
	sem *semaphore.Weighted

	mu      sync.Mutex
	queue   []*Ticket
	serving bool
}

// New returns a free Deal.
func New() *Deal {
	return &Deal{sem: semaphore.NewWeighted(1)}
}

// Grab takes the resource if it is free. A successful Grab is paired with
// Release.
func (d *Deal) Grab() bool {
	return d.sem.TryAcquire(1)
}

// Release frees a resource obtained with Grab.
func (d *Deal) Release() {
	d.sem.Release(1)
}

// Request queues a ticket for the resource.
func (d *Deal) Request() *Ticket {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Ticket{
		d:       d,
		ctx:     ctx,
		cancel:  cancel,
		granted: make(chan struct{}),
	}
	d.mu.Lock()
	d.queue = append(d.queue, t)
	if !d.serving {
		d.serving = true
		go d.serve()
	}
	d.mu.Unlock()
	return t
}

// serve grants queued tickets one at a time, in order.
func (d *Deal) serve() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.serving = false
			d.mu.Unlock()
			return
		}
		t := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		if err := d.sem.Acquire(t.ctx, 1); err != nil {
			continue
		}
		if !t.state.CompareAndSwap(statePending, stateGranted) {
			d.sem.Release(1)
			continue
		}
		close(t.granted)
	}
}

const (
	statePending int32 = iota
	stateGranted
	stateDone
)

// Ticket is a pending or granted claim on a Deal.
type Ticket struct {
	d       *Deal
	ctx     context.Context
	cancel  context.CancelFunc
	granted chan struct{}
	state   atomic.Int32
}

// Granted is closed once the resource belongs to the ticket holder.
func (t *Ticket) Granted() <-chan struct{} {
	return t.granted
}

// Yield hands a granted resource back. It is a no-op on a ticket that was
// never granted or already yielded.
func (t *Ticket) Yield() {
	if t.state.CompareAndSwap(stateGranted, stateDone) {
		t.d.sem.Release(1)
	}
	t.cancel()
}

// Abort withdraws a pending ticket. It returns false when the resource was
// already granted, in which case the holder must Yield it.
func (t *Ticket) Abort() bool {
	if !t.state.CompareAndSwap(statePending, stateDone) {
		return false
	}
	t.cancel()
	return true
}

// Wait blocks until the ticket is granted or ctx is done. On cancellation
// the ticket is withdrawn and ctx.Err() is returned.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.granted:
		return nil
	case <-ctx.Done():
		if !t.Abort() {
			<-t.granted
			t.Yield()
		}
		return ctx.Err()
	}
}
