package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeSink struct {
	mu       sync.Mutex
	received [][]Event
	failN    int
}

func (f *fakeSink) Persist(ctx context.Context, events []Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return context.DeadlineExceeded
	}
	cp := make([]Event, len(events))
	copy(cp, events)
	f.received = append(f.received, cp)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, batch := range f.received {
		n += len(batch)
	}
	return n
}

func TestRetryQueueDeliversEnqueuedEvents(t *testing.T) {
	sink := &fakeSink{}
	q := NewRetryQueue(sink, 10, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue(Event{Kind: "trade", Timestamp: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("expected 1 delivered event, got %d", sink.count())
	}
}

func TestRetryQueueDropsOldestAtCapacity(t *testing.T) {
	sink := &fakeSink{}
	q := NewRetryQueue(sink, 2, zap.NewNop())

	q.Enqueue(Event{Kind: "a"})
	q.Enqueue(Event{Kind: "b"})
	q.Enqueue(Event{Kind: "c"})

	if q.Depth() != 2 {
		t.Fatalf("depth = %d, want 2 (bounded capacity)", q.Depth())
	}
}

func TestRetryQueueRetainsEventsAcrossFailure(t *testing.T) {
	sink := &fakeSink{failN: 1}
	q := NewRetryQueue(sink, 10, zap.NewNop())
	q.retryBase = 10 * time.Millisecond
	q.retryCap = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue(Event{Kind: "trade"})

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("expected the event to eventually be delivered after one failure, got count=%d", sink.count())
	}
}
