package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/googly1030/intern-platform/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func job(id string) Job {
	return Job{SubmissionID: id, EnqueuedAt: time.Unix(1_700_000_000, 0).UTC()}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, job("sub-1")) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	j := <-q.Dequeue(ctx)
	if j.SubmissionID != "sub-1" {
		t.Errorf("expected sub-1, got %v", j.SubmissionID)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, job("sub-1")) || !q.Enqueue(ctx, job("sub-2")) {
		t.Fatal("expected enqueue to succeed")
	}

	// Backpressure: a full queue rejects without blocking.
	if q.Enqueue(ctx, job("sub-3")) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	producers, perProducer := 10, 100

	done := make(chan struct{}, producers)
	for i := 0; i < producers; i++ {
		go func(id int) {
			for n := 0; n < perProducer; n++ {
				for !q.Enqueue(ctx, job(fmt.Sprintf("sub-%d-%d", id, n))) {
					time.Sleep(time.Millisecond)
				}
			}
			done <- struct{}{}
		}(i)
	}

	consumed := make(chan string, producers*perProducer)
	for i := 0; i < producers; i++ {
		go func() {
			for j := range q.Dequeue(ctx) {
				consumed <- j.SubmissionID
			}
		}()
	}

	for i := 0; i < producers; i++ {
		<-done
	}

	seen := make(map[string]bool)
	timeout := time.After(2 * time.Second)
	for len(seen) < producers*perProducer {
		select {
		case id := <-consumed:
			if seen[id] {
				t.Fatalf("job %s delivered twice", id)
			}
			seen[id] = true
		case <-timeout:
			t.Fatalf("consumed %d of %d jobs", len(seen), producers*perProducer)
		}
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, job("sub-1")) || !q.Enqueue(ctx, job("sub-2")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if q.Enqueue(ctx, job("sub-3")) {
		t.Error("expected enqueue to fail after closing")
	}

	// Buffered jobs drain before the channel closes.
	var drained []string
	timeout := time.After(time.Second)
	ch := q.Dequeue(ctx)
	for {
		select {
		case j, ok := <-ch:
			if !ok {
				if len(drained) != 2 {
					t.Errorf("drained %v, want 2 jobs", drained)
				}
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			drained = append(drained, j.SubmissionID)
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
}

func TestJobCodec(t *testing.T) {
	in := Job{SubmissionID: "sub-9", BatchID: "b-1", Attempt: 2, Receipt: "dropped"}
	b, err := encodeJob(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decodeJob(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.SubmissionID != "sub-9" || out.BatchID != "b-1" || out.Attempt != 2 || out.Receipt != nil {
		t.Errorf("unexpected round trip: %+v", out)
	}
	if _, err := decodeJob([]byte(`{"batch_id":"b"}`)); err == nil {
		t.Error("expected missing submission id to fail")
	}
}
