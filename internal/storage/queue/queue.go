// Package queue implements the bounded operation queue consumed by the
// async storage engine's drain worker.
package queue

import (
	"sync"
	"sync/atomic"
	"time"

	errs "github.com/xtxerr/strata/internal/errors"
	"github.com/xtxerr/strata/internal/storage/types"
)

// Kind identifies what a queued operation does when drained.
type Kind int

const (
	// KindWrite persists a single value.
	KindWrite Kind = iota

	// KindDelete removes a key from every tier.
	KindDelete

	// KindBatch persists several values under one operation ID.
	KindBatch
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindWrite:
		return "write"
	case KindDelete:
		return "delete"
	case KindBatch:
		return "batch"
	default:
		return "unknown"
	}
}

// BatchItem is one key-value pair inside a batch operation.
type BatchItem struct {
	Key   string
	Value any
}

// Operation is a queued storage operation. It lives in the queue until
// terminal resolution: success, or exhausted retries. Done is buffered
// so the drain worker never blocks on an abandoned caller.
type Operation struct {
	ID         string
	Kind       Kind
	Key        string
	Payload    any
	Batch      []BatchItem
	Options    types.Options
	EnqueuedAt time.Time

	// RetryCount is the number of attempts already made.
	RetryCount int

	// MaxRetries is the attempt budget; the operation fails terminally
	// once RetryCount reaches it.
	MaxRetries int

	// Done receives exactly one Result at terminal resolution.
	Done chan types.Result
}

// Queue is a thread-safe bounded FIFO of operations. PushBack rejects
// synchronously when full; PushFront re-inserts a popped operation for
// retry and is exempt from the bound, since the slot was freed by the
// pop that preceded it.
type Queue struct {
	mu       sync.Mutex
	ops      []*Operation
	capacity int

	pushed   atomic.Int64
	popped   atomic.Int64
	rejected atomic.Int64
	requeued atomic.Int64
}

// New creates a queue with the given capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Queue{capacity: capacity}
}

// PushBack appends an operation. Returns ErrQueueFull when the queue is
// at capacity; the caller must treat this as a synchronous rejection.
func (q *Queue) PushBack(op *Operation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) >= q.capacity {
		q.rejected.Add(1)
		return errs.ErrQueueFull
	}

	q.ops = append(q.ops, op)
	q.pushed.Add(1)
	return nil
}

// PushFront re-inserts a failed operation at the head so it is retried
// before newer work, bounding worst-case staleness.
func (q *Queue) PushFront(op *Operation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ops = append([]*Operation{op}, q.ops...)
	q.requeued.Add(1)
}

// PopFront removes and returns up to n oldest operations.
func (q *Queue) PopFront(n int) []*Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) == 0 || n <= 0 {
		return nil
	}

	if n > len(q.ops) {
		n = len(q.ops)
	}

	popped := make([]*Operation, n)
	copy(popped, q.ops[:n])

	remaining := len(q.ops) - n
	copy(q.ops, q.ops[n:])
	for i := remaining; i < len(q.ops); i++ {
		q.ops[i] = nil // clear for GC
	}
	q.ops = q.ops[:remaining]

	q.popped.Add(int64(n))
	return popped
}

// Len returns the current number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return q.capacity
}

// UsageRatio returns the current fill level (0.0 - 1.0, may briefly
// exceed 1.0 after retry re-insertion).
func (q *Queue) UsageRatio() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return float64(len(q.ops)) / float64(q.capacity)
}

// Stats returns queue statistics.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	count := len(q.ops)
	q.mu.Unlock()

	return QueueStats{
		Capacity:   q.capacity,
		Count:      count,
		UsageRatio: float64(count) / float64(q.capacity),
		Pushed:     q.pushed.Load(),
		Popped:     q.popped.Load(),
		Rejected:   q.rejected.Load(),
		Requeued:   q.requeued.Load(),
	}
}

// QueueStats holds queue statistics.
type QueueStats struct {
	Capacity   int
	Count      int
	UsageRatio float64
	Pushed     int64
	Popped     int64
	Rejected   int64
	Requeued   int64
}
