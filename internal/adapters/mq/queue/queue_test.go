package queue

import (
	"context"
	"testing"
	"time"

	"github.com/okian/guildboard/internal/domain/model"
)

func task(id string) model.FinishTask {
	return model.FinishTask{EventID: id, FireAt: time.Unix(1, 0)}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if !q.Enqueue(ctx, task("ev-1")) {
		t.Fatal("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.EventID != "ev-1" {
		t.Errorf("expected ev-1, got %v", got.EventID)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if q.Capacity() != 2 {
		t.Fatalf("expected capacity 2, got %d", q.Capacity())
	}
	if !q.Enqueue(ctx, task("a")) || !q.Enqueue(ctx, task("b")) {
		t.Fatal("expected first two enqueues to succeed")
	}
	if q.Enqueue(ctx, task("c")) {
		t.Error("expected enqueue to fail when full")
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	q.Enqueue(ctx, task("a"))
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}
	if q.Enqueue(ctx, task("b")) {
		t.Error("expected enqueue on closed queue to fail")
	}

	var drained []string
	for tk := range q.Dequeue(ctx) {
		drained = append(drained, tk.EventID)
	}
	if len(drained) != 1 || drained[0] != "a" {
		t.Errorf("expected to drain [a], got %v", drained)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, task("a")) {
		t.Error("expected enqueue with cancelled context to fail")
	}

	ch := q.Dequeue(ctx)
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected no task from cancelled dequeue")
		}
	case <-time.After(time.Second):
		t.Error("dequeue channel did not close after cancellation")
	}
}
