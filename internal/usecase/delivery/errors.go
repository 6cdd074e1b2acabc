// Package delivery implements the batching delivery queue that sits between
// notification producers and a transport. Tasks are flushed in FIFO batches on
// a timer and retried a bounded number of times before being dropped.
package delivery

import "errors"

var (
	// ErrPermanentFailure marks a task that exhausted its retries and was dropped.
	ErrPermanentFailure = errors.New("delivery: task exceeded max retries")

	// ErrQueueStopped is returned by Enqueue after Stop.
	ErrQueueStopped = errors.New("delivery: queue stopped")
)
