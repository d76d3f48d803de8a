package engine

import (
	"context"
	"time"

	errs "github.com/xtxerr/strata/internal/errors"
	"github.com/xtxerr/strata/internal/storage/queue"
	"github.com/xtxerr/strata/internal/storage/types"
)

// drainWorker is the single consumer of the operation queue. Draining
// from exactly one goroutine keeps optimistic-state bookkeeping ordered
// without per-key locks; drainMu extends the guarantee to Flush.
func (e *Engine) drainWorker() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Engine.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.drainOnce(e.ctx)
		case <-e.drainCh:
			e.drainOnce(e.ctx)
		}
	}
}

// requestDrain asks the worker for an immediate drain. Coalesces when
// one is already pending.
func (e *Engine) requestDrain() {
	select {
	case e.drainCh <- struct{}{}:
	default:
	}
}

// drainOnce pops up to one batch and processes it.
func (e *Engine) drainOnce(ctx context.Context) {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	ops := e.queue.PopFront(e.cfg.Engine.BatchSize)
	if len(ops) == 0 {
		return
	}
	e.process(ctx, ops)
}

// Flush forces a drain of the entire queue. Used before suspend or
// teardown so no accepted operation is lost.
func (e *Engine) Flush(ctx context.Context) {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	e.drainAllLocked(ctx)
}

// drainAll drains the whole queue, taking the drain lock.
func (e *Engine) drainAll(ctx context.Context) {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()
	e.drainAllLocked(ctx)
}

// drainAllLocked drains until the queue stays empty. Retried operations
// re-enter at the front and are picked up by the next iteration, so a
// persistently failing tier cannot loop forever: each operation fails
// terminally once its attempt budget is spent.
func (e *Engine) drainAllLocked(ctx context.Context) {
	for {
		ops := e.queue.PopFront(e.cfg.Engine.BatchSize)
		if len(ops) == 0 {
			return
		}
		e.process(ctx, ops)
	}
}

// process partitions one batch by kind and executes each partition
// sequentially against the orchestrator.
func (e *Engine) process(ctx context.Context, ops []*queue.Operation) {
	var writes, deletes, batches []*queue.Operation
	for _, op := range ops {
		switch op.Kind {
		case queue.KindWrite:
			writes = append(writes, op)
		case queue.KindDelete:
			deletes = append(deletes, op)
		case queue.KindBatch:
			batches = append(batches, op)
		}
	}

	for _, op := range writes {
		e.processWrite(ctx, op)
	}
	for _, op := range deletes {
		e.processDelete(ctx, op)
	}
	for _, op := range batches {
		e.processBatch(ctx, op)
	}
}

func (e *Engine) processWrite(ctx context.Context, op *queue.Operation) {
	op.RetryCount++
	res := e.orch.Set(ctx, op.Key, op.Payload, op.Options)

	if res.OK {
		e.clearOptimistic(op.Key, op.ID)
		e.stats.committed.Add(1)
		res.Meta.OperationID = op.ID
		op.Done <- res
		return
	}

	e.retryOrFail(op, res)
}

func (e *Engine) processDelete(ctx context.Context, op *queue.Operation) {
	op.RetryCount++
	res := e.orch.Delete(ctx, op.Key, op.Options)

	// A key absent everywhere is a satisfied delete, not a failure
	// worth retrying.
	if res.OK || errs.IsNotFound(res.Err) {
		e.stats.committed.Add(1)
		res.Meta.OperationID = op.ID
		op.Done <- res
		return
	}

	e.retryOrFail(op, res)
}

func (e *Engine) processBatch(ctx context.Context, op *queue.Operation) {
	op.RetryCount++

	for _, item := range op.Batch {
		res := e.orch.Set(ctx, item.Key, item.Value, op.Options)
		if !res.OK {
			e.retryOrFail(op, res)
			return
		}
	}

	// Commit clears every key's optimistic entry atomically under the
	// shared operation ID.
	for _, item := range op.Batch {
		e.clearOptimistic(item.Key, op.ID)
	}
	e.stats.committed.Add(1)
	op.Done <- types.SuccessMeta(nil, types.Metadata{OperationID: op.ID})
}

// retryOrFail re-queues a failed operation at the front while its
// attempt budget lasts, otherwise resolves it terminally and rolls back
// the optimistic state.
func (e *Engine) retryOrFail(op *queue.Operation, res types.Result) {
	if op.RetryCount < op.MaxRetries && errs.IsRetryable(res.Err) {
		e.stats.retried.Add(1)
		e.queue.PushFront(op)
		return
	}

	e.stats.exhausted.Add(1)
	e.log.Error("operation failed terminally",
		"id", op.ID, "kind", op.Kind, "key", op.Key,
		"attempts", op.RetryCount, "error", res.Err)

	switch op.Kind {
	case queue.KindBatch:
		for _, item := range op.Batch {
			e.rollbackOptimistic(item.Key, op.ID)
		}
	default:
		e.rollbackOptimistic(op.Key, op.ID)
	}

	err := res.Err
	if op.RetryCount >= op.MaxRetries {
		err = errs.Wrap(errs.ErrOperationExhausted, "%d attempts: %v", op.RetryCount, res.Err)
	}
	res.Err = err
	res.OK = false
	res.Meta.OperationID = op.ID
	op.Done <- res
}
