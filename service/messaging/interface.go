package messaging

import (
	"context"
	"errors"
)

// ErrClosed is returned by queues that no longer accept or deliver messages.
var ErrClosed = errors.New("queue closed")

// Queue carries payloads of type T between producers and consumers.
type Queue[T any] interface {
	// Publish enqueues a copy of t.
	Publish(ctx context.Context, t *T) error

	// Consume blocks until a message is available, the context ends or the
	// queue is closed.
	Consume(ctx context.Context) (Message[T], error)
}

// Message is one delivery of a payload. Exactly one of Ack or Nack settles it.
type Message[T any] interface {
	T() *T
	Ack() error
	// Nack settles a failed delivery; the queue may redeliver it.
	Nack(err error) error
}
