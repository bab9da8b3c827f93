package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/exegol/service/messaging"
)

// Config controls redelivery of nacked messages.
type Config struct {
	MaxRetries int
	RetryDelay time.Duration
	DeadLetter bool
	Buffer     int
}

// DefaultConfig returns the queue defaults.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, RetryDelay: 100 * time.Millisecond, DeadLetter: true, Buffer: 100}
}

// DeadLetter is a message that exhausted its retries.
type DeadLetter[T any] struct {
	ID       string
	Payload  T
	Attempts int
	Err      error
}

// Message is an in-memory delivery.
type Message[T any] struct {
	id       string
	payload  T
	attempts int
	queue    *Queue[T]
	mu       sync.Mutex
	settled  bool
}

// ID returns the message id, stable across redeliveries.
func (m *Message[T]) ID() string { return m.id }

// Attempts returns how many deliveries preceded this one.
func (m *Message[T]) Attempts() int { return m.attempts }

func (m *Message[T]) T() *T { return &m.payload }

func (m *Message[T]) Ack() error {
	return m.settle()
}

func (m *Message[T]) Nack(err error) error {
	if settleErr := m.settle(); settleErr != nil {
		return settleErr
	}
	attempts := m.attempts + 1
	if attempts <= m.queue.config.MaxRetries {
		m.queue.redeliver(&Message[T]{id: m.id, payload: m.payload, attempts: attempts, queue: m.queue})
		return nil
	}
	if m.queue.config.DeadLetter {
		m.queue.mu.Lock()
		m.queue.dead = append(m.queue.dead, &DeadLetter[T]{ID: m.id, Payload: m.payload, Attempts: attempts, Err: err})
		m.queue.mu.Unlock()
	}
	return nil
}

func (m *Message[T]) settle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled {
		return fmt.Errorf("message %s already settled", m.id)
	}
	m.settled = true
	return nil
}

// Queue is a buffered in-memory messaging.Queue with retry and a dead letter list.
type Queue[T any] struct {
	config   Config
	messages chan *Message[T]
	done     chan struct{}
	once     sync.Once
	mu       sync.Mutex
	dead     []*DeadLetter[T]
	pending  sync.WaitGroup
}

// NewQueue creates a queue.
func NewQueue[T any](config Config) *Queue[T] {
	if config.Buffer <= 0 {
		config.Buffer = DefaultConfig().Buffer
	}
	return &Queue[T]{
		config:   config,
		messages: make(chan *Message[T], config.Buffer),
		done:     make(chan struct{}),
	}
}

func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if t == nil {
		return fmt.Errorf("payload was nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &Message[T]{id: uuid.New().String(), payload: *t, queue: q}
	select {
	case <-q.done:
		return messaging.ErrClosed
	default:
	}
	select {
	case q.messages <- msg:
		return nil
	case <-q.done:
		return messaging.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-q.done:
		return nil, messaging.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue[T]) redeliver(msg *Message[T]) {
	q.pending.Add(1)
	go func() {
		defer q.pending.Done()
		timer := time.NewTimer(q.config.RetryDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-q.done:
			return
		}
		select {
		case q.messages <- msg:
		case <-q.done:
		}
	}()
}

// Size returns the number of buffered messages.
func (q *Queue[T]) Size() int { return len(q.messages) }

// DeadLetters returns messages that exhausted their retries.
func (q *Queue[T]) DeadLetters() []*DeadLetter[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*DeadLetter[T](nil), q.dead...)
}

// Close stops delivery and waits for pending redeliveries to give up.
func (q *Queue[T]) Close() error {
	q.once.Do(func() { close(q.done) })
	q.pending.Wait()
	return nil
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
