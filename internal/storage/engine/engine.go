// Package engine implements the async storage engine: the only entry
// point application code uses. Writes apply optimistically and resolve
// later through a bounded operation queue drained by a single worker;
// reads see the most recent optimistic value while the real write is in
// flight.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/xtxerr/strata/internal/cache"
	errs "github.com/xtxerr/strata/internal/errors"
	"github.com/xtxerr/strata/internal/logging"
	"github.com/xtxerr/strata/internal/storage/config"
	"github.com/xtxerr/strata/internal/storage/health"
	"github.com/xtxerr/strata/internal/storage/queue"
	"github.com/xtxerr/strata/internal/storage/tiered"
	"github.com/xtxerr/strata/internal/storage/types"
)

// optimisticEntry is a speculative projection of a still-in-flight
// write. At most one exists per key; a newer write supersedes it.
type optimisticEntry struct {
	value       any
	writtenAt   time.Time
	operationID string
}

// Engine wraps the orchestrator with optimistic updates, a bounded
// operation queue, batch draining, retries and health reporting.
type Engine struct {
	cfg    *config.Config
	orch   *tiered.Orchestrator
	cache  *cache.Cache
	queue  *queue.Queue
	health *health.Controller

	mu         sync.Mutex
	optimistic map[string]*optimisticEntry

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// drainCh requests an out-of-band drain; drainMu ensures drains
	// never overlap even when Flush runs concurrently with the worker.
	drainCh chan struct{}
	drainMu sync.Mutex

	stats engineStats
	log   *slog.Logger
}

type engineStats struct {
	enqueued   atomic.Int64
	committed  atomic.Int64
	retried    atomic.Int64
	exhausted  atomic.Int64
	rejected   atomic.Int64
	optimistic atomic.Int64 // reads served from optimistic state
}

// New creates an engine over the orchestrator. Call Start before use.
func New(cfg *config.Config, orch *tiered.Orchestrator) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:        cfg,
		orch:       orch,
		cache:      orch.Cache(),
		queue:      queue.New(cfg.Engine.MaxQueueSize),
		health:     health.New(cfg.Health),
		optimistic: make(map[string]*optimisticEntry),
		ctx:        ctx,
		cancel:     cancel,
		drainCh:    make(chan struct{}, 1),
		log:        logging.Component("engine"),
	}
}

// Start launches the drain worker and the cache janitor.
func (e *Engine) Start() error {
	if !e.running.CompareAndSwap(false, true) {
		return errs.Wrap(errs.ErrInvalidRequest, "engine already running")
	}

	e.cache.StartJanitor(e.ctx, e.cfg.Cache.JanitorInterval)

	e.wg.Add(1)
	go e.drainWorker()

	return nil
}

// Stop drains the remaining queue and shuts the worker down. Operations
// enqueued after Stop are rejected.
func (e *Engine) Stop() error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}

	e.cancel()
	e.wg.Wait()

	// Final drain so no accepted operation is lost.
	e.drainAll(context.Background())
	return nil
}

// Close stops the engine and releases every backend.
func (e *Engine) Close() error {
	if err := e.Stop(); err != nil {
		return err
	}
	return e.orch.Close()
}

// Get returns the most recent optimistic value for key if one is
// outstanding and unexpired, otherwise delegates to the orchestrator.
func (e *Engine) Get(ctx context.Context, key string, opts types.Options) types.Result {
	e.mu.Lock()
	if oe, ok := e.optimistic[key]; ok {
		if time.Since(oe.writtenAt) < e.cfg.Engine.OptimisticTimeout {
			value, operationID := oe.value, oe.operationID
			e.mu.Unlock()
			e.stats.optimistic.Add(1)
			return types.SuccessMeta(value, types.Metadata{
				Optimistic:  true,
				OperationID: operationID,
			})
		}
		// Stale speculation: fall through to the real tiers.
		delete(e.optimistic, key)
	}
	e.mu.Unlock()

	return e.orch.Get(ctx, key, opts)
}

// Set applies an optimistic update and queues the real write. The
// returned channel receives exactly one Result at terminal resolution.
// A full queue rejects synchronously with ErrQueueFull and performs no
// optimistic mutation.
func (e *Engine) Set(_ context.Context, key string, value any, opts types.Options) (<-chan types.Result, error) {
	if !e.running.Load() {
		return nil, errs.ErrEngineStopped
	}

	op := &queue.Operation{
		ID:         uuid.NewString(),
		Kind:       queue.KindWrite,
		Key:        key,
		Payload:    value,
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
		e.applyOptimistic(key, value, op.ID, opts)
	}

	if opts.Priority == types.PriorityHigh {
		e.requestDrain()
	}

	e.stats.enqueued.Add(1)
	return op.Done, nil
}

// Delete clears the optimistic and cached state for key immediately and
// queues the real delete.
func (e *Engine) Delete(_ context.Context, key string, opts types.Options) (<-chan types.Result, error) {
	if !e.running.Load() {
		return nil, errs.ErrEngineStopped
	}

	op := &queue.Operation{
		ID:         uuid.NewString(),
		Kind:       queue.KindDelete,
		Key:        key,
		Options:    opts,
		EnqueuedAt: time.Now(),
		MaxRetries: e.retryBudget(opts),
		Done:       make(chan types.Result, 1),
	}

	if err := e.queue.PushBack(op); err != nil {
		e.stats.rejected.Add(1)
		return nil, err
	}

	e.mu.Lock()
	delete(e.optimistic, key)
	e.mu.Unlock()
	e.cache.Invalidate(key)

	if opts.Priority == types.PriorityHigh {
		e.requestDrain()
	}

	e.stats.enqueued.Add(1)
	return op.Done, nil
}

// Exists reports whether key is visible, optimistically or in a tier.
func (e *Engine) Exists(ctx context.Context, key string, opts types.Options) (bool, error) {
	e.mu.Lock()
	if oe, ok := e.optimistic[key]; ok && time.Since(oe.writtenAt) < e.cfg.Engine.OptimisticTimeout {
		e.mu.Unlock()
		return true, nil
	}
	e.mu.Unlock()

	return e.orch.Exists(ctx, key, opts)
}

// Clear drops all optimistic state and cache entries. Durable tiers are
// untouched; use Delete for real removal.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.optimistic = make(map[string]*optimisticEntry)
	e.mu.Unlock()
	e.cache.Clear()
}

// GetKeys returns the keys visible in the local layer: cached entries
// plus outstanding optimistic writes.
func (e *Engine) GetKeys() []string {
	seen := make(map[string]struct{})

	for _, key := range e.cache.Keys() {
		seen[key] = struct{}{}
	}

	e.mu.Lock()
	for key := range e.optimistic {
		seen[key] = struct{}{}
	}
	e.mu.Unlock()

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	return keys
}

// GetSize returns the number of locally visible keys.
func (e *Engine) GetSize() int {
	return len(e.GetKeys())
}

// GetPendingCount returns the number of queued, unresolved operations.
func (e *Engine) GetPendingCount() int {
	return e.queue.Len()
}

// Promote exposes explicit tier promotion on the engine surface.
func (e *Engine) Promote(ctx context.Context, key string, from types.Tier) types.Result {
	return e.orch.Promote(ctx, key, from)
}

// Demote exposes explicit tier demotion on the engine surface.
func (e *Engine) Demote(ctx context.Context, key string, from types.Tier) types.Result {
	return e.orch.Demote(ctx, key, from)
}

// retryBudget resolves the attempt budget for an operation.
func (e *Engine) retryBudget(opts types.Options) int {
	if opts.Retries > 0 {
		return opts.Retries
	}
	return e.cfg.Engine.MaxRetries
}

// applyOptimistic records the speculative value and writes it through
// to the cache with a dependency on its own key, so the committed write
// evicts it via dependency invalidation.
func (e *Engine) applyOptimistic(key string, value any, operationID string, opts types.Options) {
	e.mu.Lock()
	e.optimistic[key] = &optimisticEntry{
		value:       value,
		writtenAt:   time.Now(),
		operationID: operationID,
	}
	e.mu.Unlock()

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = e.cfg.Cache.DefaultTTL
	}
	e.cache.Set(key, value, ttl, []string{key})
}

// clearOptimistic removes the optimistic entry for key only when it
// still belongs to the given operation; a newer write for the same key
// carries a different ID and is never clobbered.
func (e *Engine) clearOptimistic(key, operationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if oe, ok := e.optimistic[key]; ok && oe.operationID == operationID {
		delete(e.optimistic, key)
	}
}

// rollbackOptimistic removes the optimistic entry and its cache copy
// after a terminal failure, so the UI's speculative value disappears.
func (e *Engine) rollbackOptimistic(key, operationID string) {
	e.mu.Lock()
	oe, ok := e.optimistic[key]
	if ok && oe.operationID == operationID {
		delete(e.optimistic, key)
	}
	e.mu.Unlock()

	if ok && oe.operationID == operationID {
		e.cache.Invalidate(key)
	}
}
