package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one telemetry record destined for the persistence endpoint: a
// trade, an ack, a risk alert, or a session status transition.
type Event struct {
	Kind      string
	Payload   any
	Timestamp time.Time
}

// Sink persists a batch of events to the downstream telemetry endpoint.
// Implementations may fail transiently (network, endpoint down); the
// RetryQueue is what makes that failure survivable.
type Sink interface {
	Persist(ctx context.Context, events []Event) error
}

// RetryQueue buffers events in a bounded in-memory slice and retries delivery to a
// Sink with backoff. Persistence failures never block the caller: once the
// queue is at capacity, the oldest pending events are dropped and counted
// (§6: "persistence failures must never block trading").
type RetryQueue struct {
	sink     Sink
	log      *zap.Logger
	capacity int

	mu      sync.Mutex
	pending []Event

	flush     chan struct{}
	retryBase time.Duration
	retryCap  time.Duration
}

// DefaultCapacity is the retry queue's default bound (§6).
const DefaultCapacity = 1000

// NewRetryQueue builds a RetryQueue with the given capacity (DefaultCapacity
// if capacity <= 0).
func NewRetryQueue(sink Sink, capacity int, log *zap.Logger) *RetryQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RetryQueue{
		sink:      sink,
		log:       log,
		capacity:  capacity,
		flush:     make(chan struct{}, 1),
		retryBase: time.Second,
		retryCap:  30 * time.Second,
	}
}

// Enqueue adds ev to the pending queue, dropping the oldest entry if the
// queue is already at capacity.
func (q *RetryQueue) Enqueue(ev Event) {
	q.mu.Lock()
	if len(q.pending) >= q.capacity {
		q.pending = q.pending[1:]
		retryQueueDropped.Inc()
	}
	q.pending = append(q.pending, ev)
	depth := len(q.pending)
	q.mu.Unlock()

	retryQueueDepth.Set(float64(depth))

	select {
	case q.flush <- struct{}{}:
	default:
	}
}

// Run drains the queue to the sink until ctx is cancelled, retrying with
// exponential backoff on persistent failure. Intended to run in its own
// goroutine for the process lifetime.
func (q *RetryQueue) Run(ctx context.Context) {
	backoff := q.retryBase
	ticker := time.NewTicker(q.retryBase)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.flush:
		case <-ticker.C:
		}

		batch := q.drain()
		if len(batch) == 0 {
			backoff = q.retryBase
			continue
		}

		if err := q.sink.Persist(ctx, batch); err != nil {
			if q.log != nil {
				q.log.Warn("telemetry persist failed, re-queueing", zap.Error(err), zap.Int("count", len(batch)))
			}
			q.requeue(batch)
			backoff = minDuration(backoff*2, q.retryCap)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}
		backoff = q.retryBase
	}
}

func (q *RetryQueue) drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	batch := q.pending
	q.pending = nil
	retryQueueDepth.Set(0)
	return batch
}

func (q *RetryQueue) requeue(batch []Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(batch, q.pending...)
	if len(q.pending) > q.capacity {
		dropped := len(q.pending) - q.capacity
		q.pending = q.pending[dropped:]
		retryQueueDropped.Add(float64(dropped))
	}
	retryQueueDepth.Set(float64(len(q.pending)))
}

// Depth returns the number of events currently pending delivery.
func (q *RetryQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
