// Package workers runs one long-lived goroutine per trading symbol task
// (§5: "single-writer per-symbol pipeline"), giving every task a bounded,
// observable shutdown instead of a bare `go func(){}()`.
package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work submitted to the pool. In this system a Task is
// almost always a symbol's bar-processing loop, run once and held open for
// the task's lifetime rather than a short-lived job.
type Task interface {
	Execute() error
}

// TaskFunc adapts a plain function to the Task interface.
type TaskFunc func() error

func (f TaskFunc) Execute() error { return f() }

// Pool runs submitted tasks on dedicated goroutines and coordinates their
// shutdown within a bounded grace period (§5 default 10s shutdown grace).
type Pool struct {
	logger *zap.Logger
	config *PoolConfig

	taskQueue chan Task
	wg        sync.WaitGroup

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	metrics *PoolMetrics
}

// PoolConfig configures the pool.
type PoolConfig struct {
	Name            string        // Pool name for logging
	NumWorkers      int           // Number of worker goroutines (one per concurrent symbol task)
	QueueSize       int           // Buffered submissions awaiting a free worker
	ShutdownTimeout time.Duration // Grace period before forcing shutdown (§5 default 10s)
	PanicRecovery   bool
}

// DefaultPoolConfig sizes the pool for numSymbols concurrent symbol tasks.
func DefaultPoolConfig(name string, numSymbols int) *PoolConfig {
	if numSymbols <= 0 {
		numSymbols = 1
	}
	return &PoolConfig{
		Name:            name,
		NumWorkers:      numSymbols,
		QueueSize:       numSymbols,
		ShutdownTimeout: 10 * time.Second,
		PanicRecovery:   true,
	}
}

// PoolMetrics tracks the pool's lifetime counters.
type PoolMetrics struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
	PanicRecovered int64
}

// PoolStats is an atomic snapshot of PoolMetrics.
type PoolStats struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
	PanicRecovered int64
}

type worker struct {
	id     int
	pool   *Pool
	logger *zap.Logger
}

// NewPool builds a Pool. A nil config uses DefaultPoolConfig("default", 1).
func NewPool(logger *zap.Logger, config *PoolConfig) *Pool {
	if config == nil {
		config = DefaultPoolConfig("default", 1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		logger:    logger,
		config:    config,
		taskQueue: make(chan Task, config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		metrics:   &PoolMetrics{},
	}
}

// Start launches the pool's worker goroutines. Idempotent.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}
	p.logger.Info("starting worker pool",
		zap.String("name", p.config.Name),
		zap.Int("workers", p.config.NumWorkers))

	for i := 0; i < p.config.NumWorkers; i++ {
		w := &worker{id: i, pool: p, logger: p.logger.With(zap.Int("worker_id", i))}
		p.wg.Add(1)
		go w.run()
	}
}

func (w *worker) run() {
	defer w.pool.wg.Done()
	for {
		select {
		case <-w.pool.ctx.Done():
			return
		case task, ok := <-w.pool.taskQueue:
			if !ok {
				return
			}
			w.executeTask(task)
		}
	}
}

func (w *worker) executeTask(task Task) {
	defer func() {
		if w.pool.config.PanicRecovery {
			if r := recover(); r != nil {
				atomic.AddInt64(&w.pool.metrics.PanicRecovered, 1)
				w.logger.Error("worker recovered from panic", zap.Any("panic", r))
			}
		}
	}()

	if err := task.Execute(); err != nil {
		atomic.AddInt64(&w.pool.metrics.TasksFailed, 1)
		w.logger.Warn("symbol task exited with error", zap.Error(err))
		return
	}
	atomic.AddInt64(&w.pool.metrics.TasksCompleted, 1)
}

// Submit enqueues task. Returns ErrPoolStopped if the pool isn't running,
// ErrQueueFull if every worker is busy and the queue is at capacity.
func (p *Pool) Submit(task Task) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}
	select {
	case p.taskQueue <- task:
		atomic.AddInt64(&p.metrics.TasksSubmitted, 1)
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitFunc submits fn as a task.
func (p *Pool) SubmitFunc(fn func() error) error {
	return p.Submit(TaskFunc(fn))
}

// Stop signals every running task's context to cancel and waits up to
// ShutdownTimeout for them to exit.
func (p *Pool) Stop() error {
	if !p.running.Swap(false) {
		return nil
	}
	p.logger.Info("stopping worker pool", zap.String("name", p.config.Name))
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully", zap.String("name", p.config.Name))
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out",
			zap.String("name", p.config.Name),
			zap.Duration("timeout", p.config.ShutdownTimeout))
		return ErrShutdownTimeout
	}
}

// Context returns the pool's lifetime context, cancelled by Stop. Tasks
// should select on this to notice shutdown (§5 cancellation tokens).
func (p *Pool) Context() context.Context { return p.ctx }

// QueueLength returns the number of queued, not-yet-started tasks.
func (p *Pool) QueueLength() int { return len(p.taskQueue) }

// IsRunning reports whether the pool is accepting submissions.
func (p *Pool) IsRunning() bool { return p.running.Load() }

// Stats returns a snapshot of the pool's lifetime counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		TasksSubmitted: atomic.LoadInt64(&p.metrics.TasksSubmitted),
		TasksCompleted: atomic.LoadInt64(&p.metrics.TasksCompleted),
		TasksFailed:    atomic.LoadInt64(&p.metrics.TasksFailed),
		PanicRecovered: atomic.LoadInt64(&p.metrics.PanicRecovered),
	}
}

var (
	ErrPoolStopped     = &PoolError{Message: "pool is stopped"}
	ErrQueueFull       = &PoolError{Message: "task queue is full"}
	ErrShutdownTimeout = &PoolError{Message: "shutdown timed out"}
)

// PoolError is a sentinel pool error.
type PoolError struct{ Message string }

func (e *PoolError) Error() string { return e.Message }
