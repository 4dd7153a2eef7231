// Package ringchan provides a bounded channel with overwrite-oldest semantics.
//
// Producers never block: when the buffer is full the oldest queued value is
// discarded to make room. Consumers read from C() like any other channel.
//
//	rc := ringchan.New[int](3)
//	for i := 0; i < 10; i++ {
//	    rc.Send(i)
//	}
//	rc.Close()
//	for v := range rc.C() {
//	    fmt.Println(v) // 7, 8, 9
//	}
package ringchan

import (
	"sync"
	"sync/atomic"
)

// Channel is safe for concurrent producers and consumers.
type Channel[T any] struct {
	mu     sync.Mutex
	ch     chan T
	closed bool

	written     atomic.Uint64
	overwritten atomic.Uint64
}

// Metrics is a snapshot of the channel counters
type Metrics struct {
	Written     uint64
	Overwritten uint64
	Buffered    int
}

// New creates a channel holding at most capacity values; capacity < 1 is treated as 1.
func New[T any](capacity int) *Channel[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Channel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. It is closed by Close.
func (rc *Channel[T]) C() <-chan T {
	return rc.ch
}

// Send queues v, discarding the oldest value when full.
// It reports whether a value was discarded. Sending after Close is a no-op.
func (rc *Channel[T]) Send(v T) (dropped bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return false
	}

	for {
		select {
		case rc.ch <- v:
			rc.written.Add(1)
			return dropped
		default:
		}

		// full: make room, unless a consumer already did
		select {
		case <-rc.ch:
			rc.overwritten.Add(1)
			dropped = true
		default:
		}
	}
}

// Close closes the receive side. Values already queued remain readable.
func (rc *Channel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return
	}
	rc.closed = true
	close(rc.ch)
}

// Len returns the number of queued values
func (rc *Channel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity
func (rc *Channel[T]) Cap() int {
	return cap(rc.ch)
}

// Metrics returns a snapshot of the counters.
func (rc *Channel[T]) Metrics() Metrics {
	return Metrics{
		Written:     rc.written.Load(),
		Overwritten: rc.overwritten.Load(),
		Buffered:    len(rc.ch),
	}
}
