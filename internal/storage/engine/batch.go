package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	errs "github.com/xtxerr/strata/internal/errors"
	"github.com/xtxerr/strata/internal/storage/queue"
	"github.com/xtxerr/strata/internal/storage/types"
)

// GetBatch reads several keys with the same optimistic discipline as
// Get. Results are returned in key order.
func (e *Engine) GetBatch(ctx context.Context, keys []string, opts types.Options) []types.Result {
	results := make([]types.Result, len(keys))
	for i, key := range keys {
		results[i] = e.Get(ctx, key, opts)
	}
	return results
}

// SetBatch queues a single batch operation covering every item. All
// items share one operation ID so their optimistic entries are cleared
// atomically on commit. A full queue rejects the whole batch
// synchronously with no optimistic mutation.
func (e *Engine) SetBatch(_ context.Context, items []queue.BatchItem, opts types.Options) (<-chan types.Result, error) {
	if !e.running.Load() {
		return nil, errs.ErrEngineStopped
	}
	if len(items) == 0 {
		return nil, errs.Wrap(errs.ErrInvalidRequest, "empty batch")
	}

	op := &queue.Operation{
		ID:         uuid.NewString(),
		Kind:       queue.KindBatch,
		Batch:      items,
		Options:    opts,
		EnqueuedAt: time.Now(),
		MaxRetries: e.retryBudget(opts),
		Done:       make(chan types.Result, 1),
	}

	if err := e.queue.PushBack(op); err != nil {
		e.stats.rejected.Add(1)
		return nil, err
	}

	if opts.Priority != types.PriorityLow {
		for _, item := range items {
			e.applyOptimistic(item.Key, item.Value, op.ID, opts)
		}
	}

	if opts.Priority == types.PriorityHigh {
		e.requestDrain()
	}

	e.stats.enqueued.Add(1)
	return op.Done, nil
}
