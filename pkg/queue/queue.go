// Package queue provides the thread-safe FIFOs the connection manager uses
// to hand commands between application producers/consumers and its read
// and write loops.
package queue

import (
	"context"
	"sync"

	"github.com/nevisneutrinos/cmdlink/pkg/protocol"
)

// Queue is a bounded-by-convention FIFO of commands. A single blocking
// consumer and any number of concurrent producers may share one Queue
// safely. Shutdown wakes all blocked readers exactly once; after shutdown,
// PopBlocking returns immediately.
//
// This replaces the source's "zero-valued command is the shutdown
// sentinel" convention with an explicit ok flag, matching the Redesign
// Flags in spec.md §9: callers distinguish data from control by checking
// the returned bool, never by comparing a command to a magic value.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []protocol.Command
	shutdown bool
}

// New returns an empty, open Queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends c and wakes one waiter, if any.
func (q *Queue) Push(c protocol.Command) {
	q.mu.Lock()
	if q.shutdown {
		q.mu.Unlock()
		return
	}
	c.Arguments = append([]int32(nil), c.Arguments...)
	q.items = append(q.items, c)
	q.mu.Unlock()
	q.cond.Signal()
}

// TryPop removes and returns the head of the queue without blocking. ok is
// false if the queue is currently empty.
func (q *Queue) TryPop() (protocol.Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// PopBlocking waits until an item is available, the queue is shut down, or
// ctx is canceled. ok is false in the latter two cases.
func (q *Queue) PopBlocking(ctx context.Context) (protocol.Command, bool) {
	// Wake cond.Wait on context cancellation. Cheap: one goroutine per
	// blocking call, torn down as soon as either side resolves.
	done := make(chan struct{})
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				q.cond.Broadcast()
			case <-done:
			}
		}()
	}
	defer close(done)

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.shutdown {
		if ctx != nil && ctx.Err() != nil {
			return protocol.Command{}, false
		}
		q.cond.Wait()
	}
	if q.shutdown {
		return protocol.Command{}, false
	}
	c, ok := q.popLocked()
	return c, ok
}

func (q *Queue) popLocked() (protocol.Command, bool) {
	if len(q.items) == 0 {
		return protocol.Command{}, false
	}
	c := q.items[0]
	q.items[0] = protocol.Command{}
	q.items = q.items[1:]
	return c, true
}

// Drain pops up to n items without blocking for more than are already
// present.
func (q *Queue) Drain(n int) []protocol.Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.items) {
		n = len(q.items)
	}
	out := make([]protocol.Command, n)
	copy(out, q.items[:n])
	q.items = q.items[n:]
	return out
}

// Len reports the number of items currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear discards all queued items.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

// Shutdown marks the queue closed and wakes every blocked waiter exactly
// once. Subsequent PopBlocking calls return immediately with ok == false.
// Shutdown is idempotent.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.shutdown = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Reopen clears the shutdown flag, for reuse across reconnects.
func (q *Queue) Reopen() {
	q.mu.Lock()
	q.shutdown = false
	q.mu.Unlock()
}
