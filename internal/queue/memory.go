package queue

import (
	"context"
	"fmt"
	"sync"
)

// MemoryQueue is an in-process queue backed by a buffered channel. Payloads
// travel encoded so consumers go through the same parse path as a broker.
type MemoryQueue struct {
	mu        sync.RWMutex
	ch        chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closed    bool
}

// NewMemoryQueue creates a queue holding at most size pending messages.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	return &MemoryQueue{ch: make(chan []byte, size), done: make(chan struct{})}
}

var (
	_ Client        = (*MemoryQueue)(nil)
	_ WaitingClient = (*MemoryQueue)(nil)
)

// Send enqueues msg without blocking.
func (q *MemoryQueue) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- payload:
		return nil
	default:
		return ErrQueueFull
	}
}

// SendWait enqueues msg, blocking while the queue is full until a slot
// frees up, the queue is closed, or ctx is done.
func (q *MemoryQueue) SendWait(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- payload:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a payload is available, the queue is closed, or ctx
// is done. ok is false when no further payloads will arrive.
func (q *MemoryQueue) Receive(ctx context.Context) (payload []byte, ok bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case payload, ok = <-q.ch:
		return payload, ok
	}
}

// Len reports the number of pending payloads.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// Close stops accepting messages. Pending payloads can still be received.
func (q *MemoryQueue) Close() {
	// Wake blocked SendWait callers so they release the read lock.
	q.closeOnce.Do(func() { close(q.done) })
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
