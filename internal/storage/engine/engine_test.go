package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xtxerr/strata/internal/cache"
	errs "github.com/xtxerr/strata/internal/errors"
	"github.com/xtxerr/strata/internal/storage/backend"
	"github.com/xtxerr/strata/internal/storage/codec"
	"github.com/xtxerr/strata/internal/storage/config"
	"github.com/xtxerr/strata/internal/storage/health"
	"github.com/xtxerr/strata/internal/storage/queue"
	"github.com/xtxerr/strata/internal/storage/tiered"
	"github.com/xtxerr/strata/internal/storage/types"
)

// failingBackend rejects every write, counting the attempts.
type failingBackend struct {
	tier        types.Tier
	setAttempts atomic.Int32
}

func (f *failingBackend) Tier() types.Tier { return f.tier }

func (f *failingBackend) Get(context.Context, string) (types.Envelope, bool, error) {
	return types.Envelope{}, false, nil
}

func (f *failingBackend) Set(context.Context, string, types.Envelope) error {
	f.setAttempts.Add(1)
	return errs.ErrTierUnavailable
}

func (f *failingBackend) Delete(context.Context, string) (bool, error) {
	return false, errs.ErrTierUnavailable
}

func (f *failingBackend) Exists(context.Context, string) (bool, error) {
	return false, nil
}

func (f *failingBackend) Close() error { return nil }

// engineConfig returns a config whose drain timer never fires on its
// own, so tests control draining through Flush and requestDrain.
func engineConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Tiers.Structured.Enabled = false
	cfg.Engine.BatchInterval = time.Hour
	cfg.Placement.CascadeMaxValueBytes = 0
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, backends ...backend.Backend) *Engine {
	t.Helper()

	if len(backends) == 0 {
		local, err := backend.NewLocal(t.TempDir())
		if err != nil {
			t.Fatalf("create local backend: %v", err)
		}
		backends = []backend.Backend{backend.NewMemory(0, 0), local}
	}

	orch, err := tiered.New(cfg, cache.New(time.Minute), backends, codec.Identity{})
	if err != nil {
		t.Fatalf("create orchestrator: %v", err)
	}

	e := New(cfg, orch)
	if err := e.Start(); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(func() { e.Stop() })
	return e
}

func awaitResult(t *testing.T, done <-chan types.Result) types.Result {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("no terminal result within 5s")
		return types.Result{}
	}
}

func TestSet_ReadYourWrite(t *testing.T) {
	e := newTestEngine(t, engineConfig())
	ctx := context.Background()

	done, err := e.Set(ctx, "word_progress_de", map[string]any{"haus": 10}, types.Options{})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if done == nil {
		t.Fatal("nil done channel")
	}

	// The write has not drained, yet the value is already visible.
	res := e.Get(ctx, "word_progress_de", types.Options{})
	if !res.OK {
		t.Fatalf("get: %v", res.Err)
	}
	if !res.Meta.Optimistic {
		t.Error("pre-drain read not marked optimistic")
	}
	if res.Meta.OperationID == "" {
		t.Error("optimistic read missing operation ID")
	}
	m, ok := res.Data.(map[string]any)
	if !ok || m["haus"] != 10 {
		t.Errorf("unexpected value: %v", res.Data)
	}

	if e.GetPendingCount() != 1 {
		t.Errorf("pending: expected 1, got %d", e.GetPendingCount())
	}
}

func TestFlush_CommitsAndSettlesReads(t *testing.T) {
	e := newTestEngine(t, engineConfig())
	ctx := context.Background()

	done, err := e.Set(ctx, "k", "v", types.Options{})
	if err != nil {
		t.Fatalf("set: %v", err)
	}

	e.Flush(ctx)

	res := awaitResult(t, done)
	if !res.OK {
		t.Fatalf("terminal result: %v", res.Err)
	}
	if res.Meta.Tier != "local" {
		t.Errorf("expected committed tier local, got %s", res.Meta.Tier)
	}
	if res.Meta.OperationID == "" {
		t.Error("terminal result missing operation ID")
	}

	// Post-drain reads come from the real tiers, not speculation.
	got := e.Get(ctx, "k", types.Options{})
	if !got.OK || got.Data != "v" {
		t.Fatalf("get after flush: %v (%v)", got.Data, got.Err)
	}
	if got.Meta.Optimistic {
		t.Error("post-drain read still optimistic")
	}
	if got.Meta.Tier != "local" {
		t.Errorf("expected read tier local, got %s", got.Meta.Tier)
	}

	if e.GetPendingCount() != 0 {
		t.Errorf("pending after flush: %d", e.GetPendingCount())
	}
	if s := e.Stats(); s.Committed != 1 {
		t.Errorf("committed: expected 1, got %d", s.Committed)
	}
}

func TestSet_QueueFullRejectsSynchronously(t *testing.T) {
	cfg := engineConfig()
	cfg.Engine.MaxQueueSize = 2
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := e.Set(ctx, fmt.Sprintf("k%d", i), "v", types.Options{}); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}

	done, err := e.Set(ctx, "overflow", "v", types.Options{})
	if !errs.IsQueueFull(err) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if done != nil {
		t.Error("rejected set returned a channel")
	}

	// Rejection is clean: no optimistic state for the rejected key.
	res := e.Get(ctx, "overflow", types.Options{})
	if res.OK || res.Meta.Optimistic {
		t.Errorf("rejected write left visible state: %+v", res)
	}

	if s := e.Stats(); s.Rejected != 1 {
		t.Errorf("rejected: expected 1, got %d", s.Rejected)
	}
}

func TestSet_PriorityLowSkipsOptimistic(t *testing.T) {
	e := newTestEngine(t, engineConfig())
	ctx := context.Background()

	if _, err := e.Set(ctx, "k", "v", types.Options{Priority: types.PriorityLow}); err != nil {
		t.Fatalf("set: %v", err)
	}

	res := e.Get(ctx, "k", types.Options{})
	if res.OK {
		t.Error("low-priority write visible before drain")
	}

	e.Flush(ctx)
	if res := e.Get(ctx, "k", types.Options{}); !res.OK {
		t.Errorf("low-priority write missing after drain: %v", res.Err)
	}
}

func TestSet_NewerWriteSupersedes(t *testing.T) {
	e := newTestEngine(t, engineConfig())
	ctx := context.Background()

	first, _ := e.Set(ctx, "k", "v1", types.Options{})
	second, _ := e.Set(ctx, "k", "v2", types.Options{})

	res := e.Get(ctx, "k", types.Options{})
	if !res.OK || res.Data != "v2" {
		t.Fatalf("expected newest optimistic value, got %v", res.Data)
	}

	e.Flush(ctx)
	awaitResult(t, first)
	awaitResult(t, second)

	got := e.Get(ctx, "k", types.Options{})
	if !got.OK || got.Data != "v2" {
		t.Errorf("expected v2 after drain, got %v (%v)", got.Data, got.Err)
	}
}

func TestRetry_ExhaustsBudgetAndRollsBack(t *testing.T) {
	cfg := engineConfig()
	cfg.Tiers.Memory.Enabled = false
	cfg.Engine.MaxRetries = 3

	failing := &failingBackend{tier: types.TierLocal}
	e := newTestEngine(t, cfg, failing)
	ctx := context.Background()

	done, err := e.Set(ctx, "k", "v", types.Options{})
	if err != nil {
		t.Fatalf("set: %v", err)
	}

	if res := e.Get(ctx, "k", types.Options{}); !res.Meta.Optimistic {
		t.Fatal("expected optimistic value before drain")
	}

	e.Flush(ctx)

	res := awaitResult(t, done)
	if res.OK {
		t.Fatal("expected terminal failure")
	}
	if !errors.Is(res.Err, errs.ErrOperationExhausted) {
		t.Errorf("expected ErrOperationExhausted, got %v", res.Err)
	}

	// Exactly the budgeted number of attempts, then stop.
	if attempts := failing.setAttempts.Load(); attempts != 3 {
		t.Errorf("attempts: expected 3, got %d", attempts)
	}

	// The speculative value is gone after the rollback.
	if res := e.Get(ctx, "k", types.Options{}); res.OK {
		t.Errorf("rolled-back value still visible: %v", res.Data)
	}

	s := e.Stats()
	if s.Retried != 2 {
		t.Errorf("retried: expected 2, got %d", s.Retried)
	}
	if s.Exhausted != 1 {
		t.Errorf("exhausted: expected 1, got %d", s.Exhausted)
	}
}

func TestSet_RetriesOverride(t *testing.T) {
	cfg := engineConfig()
	cfg.Tiers.Memory.Enabled = false
	cfg.Engine.MaxRetries = 3

	failing := &failingBackend{tier: types.TierLocal}
	e := newTestEngine(t, cfg, failing)
	ctx := context.Background()

	done, err := e.Set(ctx, "k", "v", types.Options{Retries: 1})
	if err != nil {
		t.Fatalf("set: %v", err)
	}

	e.Flush(ctx)
	awaitResult(t, done)

	if attempts := failing.setAttempts.Load(); attempts != 1 {
		t.Errorf("attempts: expected 1, got %d", attempts)
	}
}

func TestDelete_ClearsOptimisticImmediately(t *testing.T) {
	e := newTestEngine(t, engineConfig())
	ctx := context.Background()

	e.Set(ctx, "k", "v", types.Options{})
	done, err := e.Delete(ctx, "k", types.Options{})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	// The delete hides the key even before the queue drains.
	if res := e.Get(ctx, "k", types.Options{}); res.OK {
		t.Errorf("deleted key still visible: %v", res.Data)
	}

	e.Flush(ctx)
	res := awaitResult(t, done)
	if !res.OK {
		t.Fatalf("terminal delete result: %v", res.Err)
	}
	if res.Meta.SuccessfulDeletions == 0 {
		t.Error("no tier confirmed the deletion")
	}
}

func TestDelete_AbsentKeyResolves(t *testing.T) {
	e := newTestEngine(t, engineConfig())
	ctx := context.Background()

	done, err := e.Delete(ctx, "never-written", types.Options{})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	e.Flush(ctx)

	// Absent everywhere is a satisfied delete; it must not burn retries.
	res := awaitResult(t, done)
	if res.OK {
		t.Error("expected NotFound result for absent key")
	}
	if !errs.IsNotFound(res.Err) {
		t.Errorf("expected ErrNotFound, got %v", res.Err)
	}
	if s := e.Stats(); s.Exhausted != 0 || s.Retried != 0 {
		t.Errorf("absent delete consumed retries: %+v", s)
	}
}

func TestHighPriority_DrainsWithoutFlush(t *testing.T) {
	e := newTestEngine(t, engineConfig())
	ctx := context.Background()

	done, err := e.Set(ctx, "k", "v", types.Options{Priority: types.PriorityHigh})
	if err != nil {
		t.Fatalf("set: %v", err)
	}

	// No Flush: the priority drain request wakes the worker.
	res := awaitResult(t, done)
	if !res.OK {
		t.Fatalf("terminal result: %v", res.Err)
	}
}

func TestOptimisticExpiry(t *testing.T) {
	cfg := engineConfig()
	cfg.Engine.OptimisticTimeout = 20 * time.Millisecond
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	e.Set(ctx, "k", "v", types.Options{})
	time.Sleep(40 * time.Millisecond)

	// The stale speculation is no longer trusted; the read goes through
	// the orchestrator (which may still serve its own cache layer).
	res := e.Get(ctx, "k", types.Options{})
	if res.Meta.Optimistic {
		t.Error("expired optimistic value still trusted")
	}
}

func TestSetBatch(t *testing.T) {
	e := newTestEngine(t, engineConfig())
	ctx := context.Background()

	items := []queue.BatchItem{
		{Key: "b1", Value: "v1"},
		{Key: "b2", Value: "v2"},
		{Key: "b3", Value: "v3"},
	}
	done, err := e.SetBatch(ctx, items, types.Options{})
	if err != nil {
		t.Fatalf("set batch: %v", err)
	}

	// Every item is optimistically visible under the shared operation.
	var opID string
	for _, item := range items {
		res := e.Get(ctx, item.Key, types.Options{})
		if !res.OK || !res.Meta.Optimistic {
			t.Fatalf("%s not optimistically visible: %+v", item.Key, res)
		}
		if opID == "" {
			opID = res.Meta.OperationID
		} else if res.Meta.OperationID != opID {
			t.Errorf("%s carries a different operation ID", item.Key)
		}
	}

	e.Flush(ctx)
	res := awaitResult(t, done)
	if !res.OK {
		t.Fatalf("terminal batch result: %v", res.Err)
	}
	if res.Meta.OperationID != opID {
		t.Errorf("terminal operation ID mismatch: %s vs %s", res.Meta.OperationID, opID)
	}

	for _, item := range items {
		got := e.Get(ctx, item.Key, types.Options{})
		if !got.OK || got.Data != item.Value {
			t.Errorf("%s after drain: %v (%v)", item.Key, got.Data, got.Err)
		}
		if got.Meta.Optimistic {
			t.Errorf("%s still optimistic after commit", item.Key)
		}
	}
}

func TestSetBatch_Empty(t *testing.T) {
	e := newTestEngine(t, engineConfig())

	if _, err := e.SetBatch(context.Background(), nil, types.Options{}); !errors.Is(err, errs.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestSetBatch_RollbackOnExhaustion(t *testing.T) {
	cfg := engineConfig()
	cfg.Tiers.Memory.Enabled = false
	cfg.Engine.MaxRetries = 2

	failing := &failingBackend{tier: types.TierLocal}
	e := newTestEngine(t, cfg, failing)
	ctx := context.Background()

	items := []queue.BatchItem{{Key: "b1", Value: "v1"}, {Key: "b2", Value: "v2"}}
	done, err := e.SetBatch(ctx, items, types.Options{})
	if err != nil {
		t.Fatalf("set batch: %v", err)
	}

	e.Flush(ctx)

	res := awaitResult(t, done)
	if res.OK || !errors.Is(res.Err, errs.ErrOperationExhausted) {
		t.Fatalf("expected exhaustion, got %+v", res)
	}

	for _, item := range items {
		if res := e.Get(ctx, item.Key, types.Options{}); res.OK {
			t.Errorf("%s still visible after batch rollback", item.Key)
		}
	}
}

func TestGetBatch(t *testing.T) {
	e := newTestEngine(t, engineConfig())
	ctx := context.Background()

	e.Set(ctx, "a", "1", types.Options{})
	e.Set(ctx, "b", "2", types.Options{})

	results := e.GetBatch(ctx, []string{"a", "b", "missing"}, types.Options{})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].OK || results[0].Data != "1" {
		t.Errorf("a: %+v", results[0])
	}
	if !results[1].OK || results[1].Data != "2" {
		t.Errorf("b: %+v", results[1])
	}
	if results[2].OK {
		t.Errorf("missing key returned a value: %+v", results[2])
	}
}

func TestExists(t *testing.T) {
	e := newTestEngine(t, engineConfig())
	ctx := context.Background()

	e.Set(ctx, "k", "v", types.Options{})

	// Optimistic state satisfies existence before the drain.
	if ok, err := e.Exists(ctx, "k", types.Options{}); !ok || err != nil {
		t.Errorf("pre-drain exists: %v, %v", ok, err)
	}
	if ok, _ := e.Exists(ctx, "absent", types.Options{}); ok {
		t.Error("absent key reported as existing")
	}

	e.Flush(ctx)
	if ok, err := e.Exists(ctx, "k", types.Options{}); !ok || err != nil {
		t.Errorf("post-drain exists: %v, %v", ok, err)
	}
}

func TestGetKeysAndSize(t *testing.T) {
	e := newTestEngine(t, engineConfig())
	ctx := context.Background()

	e.Set(ctx, "a", "1", types.Options{})
	e.Set(ctx, "b", "2", types.Options{})

	keys := e.GetKeys()
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("expected a and b in keys, got %v", keys)
	}
	if e.GetSize() != len(keys) {
		t.Errorf("size %d does not match keys %d", e.GetSize(), len(keys))
	}
}

func TestClear(t *testing.T) {
	e := newTestEngine(t, engineConfig())
	ctx := context.Background()

	e.Set(ctx, "k", "v", types.Options{})
	e.Flush(ctx)
	e.Set(ctx, "k2", "v2", types.Options{})

	e.Clear()

	// Optimistic and cached state are gone; durable tiers are not.
	if res := e.Get(ctx, "k2", types.Options{}); res.Meta.Optimistic {
		t.Error("optimistic state survived Clear")
	}
	if res := e.Get(ctx, "k", types.Options{}); !res.OK {
		t.Errorf("durable value lost by Clear: %v", res.Err)
	}
}

func TestHealthCheck(t *testing.T) {
	cfg := engineConfig()
	cfg.Engine.MaxQueueSize = 5
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	if h := e.HealthCheck(); h.Status != health.LevelHealthy {
		t.Errorf("empty queue: expected healthy, got %s", h.Status)
	}

	for i := 0; i < 4; i++ {
		e.Set(ctx, fmt.Sprintf("k%d", i), "v", types.Options{})
	}
	h := e.HealthCheck()
	if h.Status != health.LevelDegraded {
		t.Errorf("4/5 queue: expected degraded, got %s", h.Status)
	}
	if h.QueueSize != 4 || h.QueueCapacity != 5 {
		t.Errorf("unexpected queue accounting: %+v", h)
	}
	if h.OptimisticKeys != 4 {
		t.Errorf("optimistic keys: expected 4, got %d", h.OptimisticKeys)
	}

	e.Set(ctx, "k4", "v", types.Options{})
	if h := e.HealthCheck(); h.Status != health.LevelUnhealthy {
		t.Errorf("full queue: expected unhealthy, got %s", h.Status)
	}
}

func TestEngineStopped(t *testing.T) {
	e := newTestEngine(t, engineConfig())
	e.Stop()

	if _, err := e.Set(context.Background(), "k", "v", types.Options{}); !errors.Is(err, errs.ErrEngineStopped) {
		t.Errorf("set after stop: expected ErrEngineStopped, got %v", err)
	}
	if _, err := e.Delete(context.Background(), "k", types.Options{}); !errors.Is(err, errs.ErrEngineStopped) {
		t.Errorf("delete after stop: expected ErrEngineStopped, got %v", err)
	}
}

func TestStop_DrainsAcceptedWork(t *testing.T) {
	e := newTestEngine(t, engineConfig())
	ctx := context.Background()

	done, err := e.Set(ctx, "k", "v", types.Options{})
	if err != nil {
		t.Fatalf("set: %v", err)
	}

	e.Stop()

	res := awaitResult(t, done)
	if !res.OK {
		t.Errorf("accepted write lost at shutdown: %v", res.Err)
	}
}

func TestBurstThenDrain(t *testing.T) {
	e := newTestEngine(t, engineConfig())
	ctx := context.Background()

	const n = 20
	dones := make([]<-chan types.Result, 0, n)
	for i := 0; i < n; i++ {
		done, err := e.Set(ctx, fmt.Sprintf("word%d", i), map[string]any{"xp": i}, types.Options{})
		if err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
		dones = append(dones, done)
	}

	// Every write is readable before the drain.
	for i := 0; i < n; i++ {
		if res := e.Get(ctx, fmt.Sprintf("word%d", i), types.Options{}); !res.OK {
			t.Fatalf("pre-drain read %d: %v", i, res.Err)
		}
	}

	e.Flush(ctx)

	for i, done := range dones {
		if res := awaitResult(t, done); !res.OK {
			t.Errorf("write %d failed: %v", i, res.Err)
		}
	}
	if s := e.Stats(); s.Committed != n {
		t.Errorf("committed: expected %d, got %d", n, s.Committed)
	}
	if e.GetPendingCount() != 0 {
		t.Errorf("pending after drain: %d", e.GetPendingCount())
	}
}
