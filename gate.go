package casseq

import (
	"container/list"
	"context"
	"sync"
)

// gate is a fair counting semaphore bounding concurrent mutating backend
// calls. Waiters are served strictly first-come, first-served: a freed
// permit is handed to the oldest waiter directly, so a late arrival can
// never barge past the queue.
type gate struct {
	mu      sync.Mutex
	size    int
	permits int
	waiters list.List // of chan struct{}
}

func newGate(size int) *gate {
	if size < 1 {
		size = 1
	}
	return &gate{size: size, permits: size}
}

// Acquire takes a permit, blocking until one is handed over. The wait
// cannot be interrupted; use AcquireContext on caller-facing paths.
func (g *gate) Acquire() {
	if ready := g.enqueue(); ready != nil {
		<-ready
	}
}

// AcquireContext takes a permit like Acquire but abandons the wait when
// ctx ends. A permit handed over in the instant of cancellation is passed
// on to the next waiter, never lost.
func (g *gate) AcquireContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ready := g.enqueue()
	if ready == nil {
		return nil
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
	}

	g.mu.Lock()
	select {
	case <-ready:
		// Handed a permit while cancelling. We no longer want it.
		g.mu.Unlock()
		g.Release()
	default:
		for e := g.waiters.Front(); e != nil; e = e.Next() {
			if e.Value.(chan struct{}) == ready {
				g.waiters.Remove(e)
				break
			}
		}
		g.mu.Unlock()
	}
	return ctx.Err()
}

// enqueue grabs a free permit immediately (nil return) or joins the wait
// queue and returns the channel that closes on handover.
func (g *gate) enqueue() chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.permits > 0 && g.waiters.Len() == 0 {
		g.permits--
		return nil
	}
	ready := make(chan struct{})
	g.waiters.PushBack(ready)
	return ready
}

// Release returns a permit. With waiters queued the permit transfers to
// the oldest one; otherwise the free count grows back. Releasing more than
// was acquired is a bug and panics.
func (g *gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if front := g.waiters.Front(); front != nil {
		g.waiters.Remove(front)
		close(front.Value.(chan struct{}))
		return
	}
	if g.permits == g.size {
		panic("casseq: gate released more times than acquired")
	}
	g.permits++
}
