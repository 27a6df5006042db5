package queue

import (
	"context"
	"errors"
)

// ErrQueueFull is returned by Send when the backlog is at capacity.
var ErrQueueFull = errors.New("queue full")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("queue closed")

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// WaitingClient is implemented by backends that can block a sender until
// there is room, instead of failing with ErrQueueFull.
type WaitingClient interface {
	SendWait(ctx context.Context, msg Message) error
}
