package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryQueueSendReportsFull(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Send(context.Background(), NewMessage("job-1", "", time.Now())); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := q.Send(context.Background(), NewMessage("job-2", "", time.Now())); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestMemoryQueueSendWaitBlocksUntilRoom(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Send(context.Background(), NewMessage("job-1", "", time.Now())); err != nil {
		t.Fatalf("send: %v", err)
	}
	sent := make(chan error, 1)
	go func() { sent <- q.SendWait(context.Background(), NewMessage("job-2", "", time.Now())) }()

	select {
	case err := <-sent:
		t.Fatalf("SendWait returned %v while the queue was full", err)
	case <-time.After(20 * time.Millisecond):
	}
	if _, ok := q.Receive(context.Background()); !ok {
		t.Fatalf("receive failed")
	}
	select {
	case err := <-sent:
		if err != nil {
			t.Fatalf("send wait: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("SendWait did not complete after a slot freed up")
	}
	payload, _ := q.Receive(context.Background())
	if msg, _, err := ParseMessage(payload); err != nil || msg.JobID != "job-2" {
		t.Fatalf("expected job-2, got %+v (%v)", msg, err)
	}
}

func TestMemoryQueueSendWaitStopsOnCloseAndCancel(t *testing.T) {
	q := NewMemoryQueue(1)
	_ = q.Send(context.Background(), NewMessage("job-1", "", time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.SendWait(ctx, NewMessage("job-2", "", time.Now())); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	sent := make(chan error, 1)
	go func() { sent <- q.SendWait(context.Background(), NewMessage("job-3", "", time.Now())) }()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case err := <-sent:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Close did not release a blocked sender")
	}
}
