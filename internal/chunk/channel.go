package chunk

import (
	"context"
	"sync"
)

// Capacity is the fixed bound on the frame channel, per spec §4.1.
const Capacity = 1024

// Channel is a single-producer/single-consumer bounded queue of Frame
// values. The producer blocks (or observes context cancellation) when full;
// the consumer blocks when empty. Close is idempotent; reads after Close
// drain any buffered frames before reporting end-of-stream, matching the
// teacher's ChunkIterator.Close/Next contract.
type Channel struct {
	frames chan Frame
	done   chan struct{}
	once   sync.Once
}

// New returns a Channel at the fixed capacity.
func New() *Channel {
	return &Channel{
		frames: make(chan Frame, Capacity),
		done:   make(chan struct{}),
	}
}

// Send enqueues f, blocking until space is available, the channel is
// closed, or ctx is cancelled. Producers must stop sending after a
// terminal frame (EndFrame or ErrorFrame); Send does not enforce this
// itself (the ordering invariant is the protocol strategy's job), but a
// send after Close always returns context.Canceled without enqueueing f.
func (c *Channel) Send(ctx context.Context, f Frame) error {
	select {
	case <-c.done:
		return context.Canceled
	default:
	}
	select {
	case c.frames <- f:
		return nil
	case <-c.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv returns the next frame, or ok=false once the channel is closed and
// drained. Recv never blocks past Close once the buffer is empty.
func (c *Channel) Recv() (Frame, bool) {
	select {
	case f, ok := <-c.frames:
		return f, ok
	case <-c.done:
		select {
		case f, ok := <-c.frames:
			return f, ok
		default:
			return nil, false
		}
	}
}

// Close is idempotent. It signals the producer (via Done) to stop and
// unblocks any consumer waiting in Recv once the buffer drains.
func (c *Channel) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// Done returns a channel that is closed once Close has been called; a
// producer blocked in Send observes this and performs protocol-appropriate
// shutdown (§4.1, §5 Cancellation).
func (c *Channel) Done() <-chan struct{} {
	return c.done
}
