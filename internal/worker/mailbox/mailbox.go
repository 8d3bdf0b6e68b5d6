package mailbox

import (
	"context"
	"errors"
)

// ErrClosed is returned when sending to or awaiting a worker whose mailbox
// loop has already exited.
var ErrClosed = errors.New("mailbox closed")

// DefaultCapacity is the request queue depth every worker mailbox is
// created with.
const DefaultCapacity = 64

// Mailbox is a bounded multi-producer single-consumer request queue owned
// by exactly one worker goroutine. The owning loop receives from Chan and
// calls Close on exit; senders observe the exit through Done instead of a
// panic on a closed channel.
type Mailbox[T any] struct {
	ch   chan T
	done chan struct{}
}

// New creates a mailbox with the given capacity.
func New[T any](capacity int) *Mailbox[T] {
	return &Mailbox[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// Chan is the receive side, for the owning worker loop only.
func (m *Mailbox[T]) Chan() <-chan T {
	return m.ch
}

// Done is closed when the owning worker loop has exited.
func (m *Mailbox[T]) Done() <-chan struct{} {
	return m.done
}

// Close marks the mailbox dead. Called by the owning loop on exit, exactly
// once.
func (m *Mailbox[T]) Close() {
	close(m.done)
}

// Send enqueues a request. It fails with ErrClosed if the owning loop has
// exited, or with the context error if ctx ends first.
func (m *Mailbox[T]) Send(ctx context.Context, req T) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	select {
	case m.ch <- req:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewReply creates a one-shot reply slot. Capacity one so the responding
// worker never blocks on a caller that gave up.
func NewReply[T any]() chan T {
	return make(chan T, 1)
}

// Await blocks until the reply slot yields a response, the responder's
// mailbox dies, or ctx ends.
func Await[T any](ctx context.Context, reply <-chan T, done <-chan struct{}) (T, error) {
	var zero T
	select {
	case resp := <-reply:
		return resp, nil
	case <-done:
		// The responder may have replied right before exiting.
		select {
		case resp := <-reply:
			return resp, nil
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
