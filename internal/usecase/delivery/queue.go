package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"protalk/internal/domain/entity"
)

// Defaults applied by NewQueue to zero-valued Config fields.
const (
	DefaultBatchSize     = 10
	DefaultFlushInterval = time.Second
	DefaultMaxRetries    = 3
)

// Task is one pending notification owned by the queue from enqueue to
// success or drop.
type Task struct {
	ID         string
	Message    entity.Message
	Kind       entity.PushType
	EnqueuedAt time.Time
	RetryCount int
}

// NewTask wraps a rendered message in a task with a fresh id.
func NewTask(msg entity.Message) Task {
	return Task{
		ID:         uuid.NewString(),
		Message:    msg,
		Kind:       msg.Kind,
		EnqueuedAt: time.Now(),
	}
}

// ProcessFunc delivers one batch. A non-nil error fails the whole batch.
type ProcessFunc func(ctx context.Context, batch []Task) error

// Config holds queue tuning.
type Config struct {
	Name          string
	BatchSize     int
	FlushInterval time.Duration
	// MaxRetries is the number of retries after the first failed attempt.
	// Zero uses DefaultMaxRetries; a negative value disables retries.
	MaxRetries int
}

// Status is a point-in-time view of the queue.
type Status struct {
	Size      int
	Processed int64
	Retried   int64
	Dropped   int64
	Flushing  bool
	Running   bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithOnDrop registers a callback invoked for each permanently failed task.
func WithOnDrop(fn func(Task, error)) Option {
	return func(q *Queue) { q.onDrop = fn }
}

// WithLogger sets the queue logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// Queue buffers tasks and flushes them in FIFO batches.
// Flushes never overlap: a flush requested while one is running is suppressed.
type Queue struct {
	cfg     Config
	process ProcessFunc
	onDrop  func(Task, error)
	logger  *slog.Logger

	mu      sync.Mutex
	buf     []Task
	stopped bool

	flushing atomic.Bool
	running  atomic.Bool

	processed atomic.Int64
	retried   atomic.Int64
	dropped   atomic.Int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewQueue creates a queue that delivers batches through process.
func NewQueue(cfg Config, process ProcessFunc, opts ...Option) *Queue {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	q := &Queue{
		cfg:     cfg,
		process: process,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Config returns the effective configuration.
func (q *Queue) Config() Config {
	return q.cfg
}

// Enqueue appends a task to the tail of the buffer.
// Missing ids and timestamps are filled in.
func (q *Queue) Enqueue(task Task) error {
	return q.EnqueueBatch([]Task{task})
}

// EnqueueBatch appends tasks in order.
func (q *Queue) EnqueueBatch(tasks []Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return ErrQueueStopped
	}
	now := time.Now()
	for _, t := range tasks {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.EnqueuedAt.IsZero() {
			t.EnqueuedAt = now
		}
		if t.Kind == "" {
			t.Kind = t.Message.Kind
		}
		q.buf = append(q.buf, t)
	}
	recordQueueSize(q.cfg.Name, len(q.buf))
	return nil
}

// Size returns the number of buffered tasks.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Status returns counters and flags.
func (q *Queue) Status() Status {
	return Status{
		Size:      q.Size(),
		Processed: q.processed.Load(),
		Retried:   q.retried.Load(),
		Dropped:   q.dropped.Load(),
		Flushing:  q.flushing.Load(),
		Running:   q.running.Load(),
	}
}

// Start runs the flush timer until ctx is cancelled or Stop is called.
func (q *Queue) Start(ctx context.Context) {
	if !q.running.CompareAndSwap(false, true) {
		return
	}
	q.stopCh = make(chan struct{})
	q.doneCh = make(chan struct{})

	go func() {
		defer close(q.doneCh)
		ticker := time.NewTicker(q.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.stopCh:
				return
			case <-ticker.C:
				q.Flush(ctx)
			}
		}
	}()
}

// Stop halts the timer, rejects further enqueues and drains the buffer.
// Draining stops early when ctx is done.
func (q *Queue) Stop(ctx context.Context) {
	if q.running.CompareAndSwap(true, false) {
		close(q.stopCh)
		<-q.doneCh
	}

	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()

	for q.Size() > 0 && ctx.Err() == nil {
		q.Flush(ctx)
	}
	if n := q.Size(); n > 0 {
		q.logger.Warn("delivery queue stopped with pending tasks",
			slog.String("queue", q.cfg.Name),
			slog.Int("pending", n))
	}
}

// Flush processes one batch from the head of the buffer.
// It returns false when suppressed because another flush is in progress.
func (q *Queue) Flush(ctx context.Context) bool {
	if !q.flushing.CompareAndSwap(false, true) {
		return false
	}
	defer q.flushing.Store(false)

	batch := q.take()
	if len(batch) == 0 {
		return true
	}

	start := time.Now()
	err := q.process(ctx, batch)
	recordFlush(q.cfg.Name, time.Since(start), err)

	if err == nil {
		q.processed.Add(int64(len(batch)))
		recordTasks(q.cfg.Name, "processed", len(batch))
		return true
	}

	q.logger.Warn("delivery batch failed",
		slog.String("queue", q.cfg.Name),
		slog.Int("batch_size", len(batch)),
		slog.Any("error", err))
	q.requeue(batch, err)
	return true
}

func (q *Queue) take() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := min(q.cfg.BatchSize, len(q.buf))
	if n == 0 {
		return nil
	}
	batch := make([]Task, n)
	copy(batch, q.buf[:n])
	q.buf = q.buf[n:]
	recordQueueSize(q.cfg.Name, len(q.buf))
	return batch
}

func (q *Queue) requeue(batch []Task, cause error) {
	var retry, drop []Task
	for _, t := range batch {
		t.RetryCount++
		if t.RetryCount > q.cfg.MaxRetries {
			drop = append(drop, t)
			continue
		}
		retry = append(retry, t)
	}

	q.mu.Lock()
	q.buf = append(q.buf, retry...)
	recordQueueSize(q.cfg.Name, len(q.buf))
	q.mu.Unlock()

	q.retried.Add(int64(len(retry)))
	recordTasks(q.cfg.Name, "retried", len(retry))

	for _, t := range drop {
		q.dropped.Add(1)
		recordTasks(q.cfg.Name, "dropped", 1)
		dropErr := fmt.Errorf("%w: %w", ErrPermanentFailure, cause)
		q.logger.Error("dropping delivery task",
			slog.String("queue", q.cfg.Name),
			slog.String("task_id", t.ID),
			slog.String("review_id", t.Message.ReviewID),
			slog.String("kind", string(t.Kind)),
			slog.Int("retry_count", t.RetryCount),
			slog.Any("error", dropErr))
		if q.onDrop != nil {
			q.onDrop(t, dropErr)
		}
	}
}
