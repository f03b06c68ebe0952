package fabric

import (
	"context"
	"time"

	"github.com/SunastanS/glaphica/protocol"
)

// ReliableChannel is a bounded SPSC queue that never silently drops a
// message. Push blocks (with a caller-supplied timeout and exponential
// backoff between attempts) when the channel is full, rather than
// dropping or overwriting.
type ReliableChannel[T any] struct {
	ch chan T
}

// NewReliableChannel constructs a reliable channel with the given bounded
// capacity.
func NewReliableChannel[T any](capacity int) *ReliableChannel[T] {
	return &ReliableChannel[T]{ch: make(chan T, capacity)}
}

// Push attempts to enqueue v, retrying with exponential backoff (starting
// at 1ms, capped at 64ms) until ctx is done. Returns an error (never a
// silent drop) if the deadline elapses first.
func (c *ReliableChannel[T]) Push(ctx context.Context, v T) error {
	backoff := time.Millisecond
	const maxBackoff = 64 * time.Millisecond
	for {
		select {
		case c.ch <- v:
			return nil
		default:
		}

		timer := time.NewTimer(backoff)
		select {
		case c.ch <- v:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if backoff < maxBackoff {
				backoff *= 2
			}
		}
	}
}

// TryPush enqueues v without blocking, reporting false if the channel is
// full. The engine loop uses this to stop producing commands mid-tick
// under backpressure instead of growing an unbounded backlog.
func (c *ReliableChannel[T]) TryPush(v T) bool {
	select {
	case c.ch <- v:
		return true
	default:
		return false
	}
}

// Pop blocks until a value is available or ctx is done.
func (c *ReliableChannel[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-c.ch:
		if !ok {
			return zero, errChannelClosed
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// TryPop pops without blocking, reporting ok=false if no value is
// currently queued.
func (c *ReliableChannel[T]) TryPop() (T, bool) {
	select {
	case v, ok := <-c.ch:
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Close closes the underlying channel; subsequent Pop calls observe a
// closed channel once drained.
func (c *ReliableChannel[T]) Close() {
	close(c.ch)
}

// Len reports the number of values currently queued.
func (c *ReliableChannel[T]) Len() int {
	return len(c.ch)
}

var errChannelClosed = &protocol.FabricError{Kind: protocol.FabricChannelClosed}

// LossyChannel is a bounded SPSC queue that evicts the oldest queued value
// when full rather than blocking the producer. Used for the high-rate
// input_ring where losing the oldest pointer sample under backpressure is
// preferable to stalling input.
type LossyChannel[T any] struct {
	ch chan T
}

// NewLossyChannel constructs a lossy channel with the given bounded
// capacity.
func NewLossyChannel[T any](capacity int) *LossyChannel[T] {
	return &LossyChannel[T]{ch: make(chan T, capacity)}
}

// Push enqueues v, discarding the oldest queued value first if the channel
// is full.
func (c *LossyChannel[T]) Push(v T) {
	for {
		select {
		case c.ch <- v:
			return
		default:
		}
		select {
		case <-c.ch:
		default:
		}
	}
}

// TryPop pops without blocking.
func (c *LossyChannel[T]) TryPop() (T, bool) {
	select {
	case v, ok := <-c.ch:
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Len reports the number of values currently queued.
func (c *LossyChannel[T]) Len() int {
	return len(c.ch)
}
