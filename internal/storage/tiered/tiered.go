// Package tiered implements the storage orchestrator: a single logical
// key-value store over N physical tiers, with priority-ordered fallback
// reads, promotion on hit, tier-selection heuristics for writes, and
// fan-out deletes. Every tier call runs inside its own error boundary;
// the orchestrator never panics to its caller and always returns a
// Result.
package tiered

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/strata/internal/cache"
	errs "github.com/xtxerr/strata/internal/errors"
	"github.com/xtxerr/strata/internal/logging"
	"github.com/xtxerr/strata/internal/storage/backend"
	"github.com/xtxerr/strata/internal/storage/codec"
	"github.com/xtxerr/strata/internal/storage/config"
	"github.com/xtxerr/strata/internal/storage/types"
)

// tierLocationPrefix namespaces the cached key-to-tier mapping.
const tierLocationPrefix = "tierloc:"

// Orchestrator composes the cache, the tier backends and the codec.
type Orchestrator struct {
	cfg      *config.Config
	cache    *cache.Cache
	backends map[types.Tier]backend.Backend
	order    []types.Tier // enabled tiers, descending priority
	codec    codec.Codec

	group singleflight.Group
	log   *slog.Logger

	stats stats
}

// New creates an orchestrator over the given backends. Backends whose
// tier is disabled in the configuration are ignored for reads and
// writes but still closed on Close.
func New(cfg *config.Config, c *cache.Cache, backends []backend.Backend, cd codec.Codec) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	o := &Orchestrator{
		cfg:      cfg,
		cache:    c,
		backends: make(map[types.Tier]backend.Backend, len(backends)),
		codec:    cd,
		log:      logging.Component("tiered"),
	}

	for _, b := range backends {
		o.backends[b.Tier()] = b
		if cfg.Tiers.For(b.Tier()).Enabled {
			o.order = append(o.order, b.Tier())
		}
	}

	sort.Slice(o.order, func(i, j int) bool {
		return o.priority(o.order[i]) > o.priority(o.order[j])
	})

	if err := o.stats.init(); err != nil {
		return nil, err
	}

	return o, nil
}

func (o *Orchestrator) priority(t types.Tier) int {
	if p := o.cfg.Tiers.For(t).Priority; p != 0 {
		return p
	}
	return t.DefaultPriority()
}

// Tiers returns the enabled tiers in descending priority order.
func (o *Orchestrator) Tiers() []types.Tier {
	out := make([]types.Tier, len(o.order))
	copy(out, o.order)
	return out
}

// callCtx bounds a single tier call.
func (o *Orchestrator) callCtx(ctx context.Context, opts types.Options) (context.Context, context.CancelFunc) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = o.cfg.Engine.DefaultTimeout
	}
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// Get serves a read through the fallback chain. Concurrent reads of the
// same key are collapsed into one probe.
func (o *Orchestrator) Get(ctx context.Context, key string, opts types.Options) types.Result {
	start := time.Now()

	v, _, _ := o.group.Do(key, func() (any, error) {
		return o.lookup(ctx, key, opts), nil
	})
	res := v.(types.Result)

	res.Meta.RetrievalTime = time.Since(start)
	o.stats.recordGet(res)
	return res
}

// lookup probes tiers in descending priority order. A cached tier
// location is probed first when present; tier failures count as misses.
func (o *Orchestrator) lookup(ctx context.Context, key string, opts types.Options) types.Result {
	// The cache layer answers before any tier is touched.
	if v, ok := o.cache.Get(key); ok {
		return types.SuccessMeta(v, types.Metadata{Cached: true, Tier: "cache"})
	}

	probeOrder := o.order
	if loc, ok := o.cache.Get(tierLocationPrefix + key); ok {
		if tier, err := types.ParseTier(loc.(string)); err == nil {
			probeOrder = o.reorderFor(tier)
		}
	}

	offline := false
	for _, tier := range probeOrder {
		b := o.backends[tier]

		tctx, cancel := o.callCtx(ctx, opts)
		env, found, err := b.Get(tctx, key)
		cancel()

		if err != nil {
			if errs.IsOffline(err) {
				offline = true
			}
			o.stats.tierErrors.Add(1)
			o.log.Warn("tier read failed", "tier", tier, "key", key, "error", err)
			continue
		}
		if !found {
			continue
		}

		value, compressed, err := o.decode(env)
		if err != nil {
			o.log.Error("stored value undecodable", "tier", tier, "key", key, "error", err)
			return types.FailureMeta(err, types.Metadata{Tier: tier.String()})
		}

		if !tier.IsHighest() {
			o.promoteEnvelope(ctx, key, env, tier, opts)
		}

		o.stats.recordTierHit(tier)
		return types.SuccessMeta(value, types.Metadata{
			Tier:       tier.String(),
			Compressed: compressed,
		})
	}

	return types.FailureMeta(errs.ErrNotFound, types.Metadata{Offline: offline})
}

// reorderFor moves a known tier to the front of the probe order.
func (o *Orchestrator) reorderFor(first types.Tier) []types.Tier {
	order := make([]types.Tier, 0, len(o.order))
	order = append(order, first)
	for _, t := range o.order {
		if t != first {
			order = append(order, t)
		}
	}
	return order
}

// promoteEnvelope copies a hit into every strictly-higher enabled tier.
// Promotion failures never fail the read.
func (o *Orchestrator) promoteEnvelope(ctx context.Context, key string, env types.Envelope, hitTier types.Tier, opts types.Options) {
	for _, tier := range o.order {
		if tier == hitTier {
			break
		}

		tctx, cancel := o.callCtx(ctx, opts)
		err := o.backends[tier].Set(tctx, key, env)
		cancel()

		if err != nil {
			o.stats.tierErrors.Add(1)
			o.log.Warn("promotion failed", "from", hitTier, "to", tier, "key", key, "error", err)
			continue
		}
		o.stats.promotions.Add(1)
		o.log.Debug("promoted", "from", hitTier, "to", tier, "key", key)
	}
}

// decode unwraps an envelope back into a caller value.
func (o *Orchestrator) decode(env types.Envelope) (any, bool, error) {
	data := env.Data
	compressed := env.IsCompressed()

	if compressed {
		if o.codec == nil {
			return nil, false, errs.Wrap(errs.ErrCompressionFailure, "compressed value but no codec configured")
		}
		raw, err := o.codec.Decompress(codec.Blob{
			Data:           env.Data,
			Algorithm:      env.Algorithm,
			OriginalSize:   env.OriginalSize,
			CompressedSize: env.CompressedSize,
		})
		if err != nil {
			return nil, false, err
		}
		data = raw
	}

	value, err := types.DecodeValue(data)
	if err != nil {
		return nil, false, errs.Wrap(errs.ErrInvalidRequest, "decode value: %v", err)
	}
	return value, compressed, nil
}

// Set persists a value to the tier chosen by the placement heuristic,
// warms the memory tier for small values, records the key's tier
// location, and invalidates every cache entry that depends on the key.
func (o *Orchestrator) Set(ctx context.Context, key string, value any, opts types.Options) types.Result {
	data, err := types.EncodeValue(value)
	if err != nil {
		return types.Failure(errs.Wrap(errs.ErrInvalidRequest, "encode value: %v", err))
	}

	env := types.NewRawEnvelope(data)
	compressed := false
	if opts.Compress && o.codec != nil && o.codec.Algorithm() != "none" && len(data) >= o.cfg.Compression.MinSize {
		blob, cerr := o.codec.Compress(data)
		if cerr != nil {
			// No partial write: the value never reaches a tier.
			return types.Failure(errs.Wrap(errs.ErrCompressionFailure, "%v", cerr))
		}
		env = types.NewCompressedEnvelope(blob.Data, blob.Algorithm, blob.OriginalSize, blob.CompressedSize)
		compressed = true
	}

	target := o.determineOptimalTier(key, len(data), opts)
	written, ok := o.writeWithFallback(ctx, key, env, target, opts)
	if !ok {
		return types.FailureMeta(errs.Wrap(errs.ErrTierUnavailable, "no tier accepted write for %s", key), types.Metadata{Tier: target.String()})
	}

	o.cascadeWarm(ctx, key, env, written, len(data), opts)

	o.cache.Set(tierLocationPrefix+key, written.String(), o.cfg.Cache.TierLocationTTL, nil)
	o.cache.InvalidateByDependency(key)

	o.stats.sets.Add(1)
	return types.SuccessMeta(nil, types.Metadata{Tier: written.String(), Compressed: compressed})
}

// determineOptimalTier picks a write target: small high-priority values
// go to memory, everything else to the fastest durable tier.
func (o *Orchestrator) determineOptimalTier(_ string, size int, opts types.Options) types.Tier {
	if opts.Priority == types.PriorityHigh &&
		int64(size) <= o.cfg.Placement.MemoryMaxValueBytes &&
		o.enabled(types.TierMemory) {
		return types.TierMemory
	}

	if o.enabled(types.TierLocal) {
		return types.TierLocal
	}

	// Fall back to the fastest enabled non-memory tier.
	for _, tier := range o.order {
		if tier != types.TierMemory {
			return tier
		}
	}
	if len(o.order) > 0 {
		return o.order[0]
	}
	return types.TierLocal
}

func (o *Orchestrator) enabled(t types.Tier) bool {
	_, ok := o.backends[t]
	return ok && o.cfg.Tiers.For(t).Enabled
}

// writeWithFallback tries the target tier first, then the remaining
// enabled tiers in priority order. Returns the tier that accepted the
// write.
func (o *Orchestrator) writeWithFallback(ctx context.Context, key string, env types.Envelope, target types.Tier, opts types.Options) (types.Tier, bool) {
	for _, tier := range o.reorderFor(target) {
		if !o.enabled(tier) {
			continue
		}

		tctx, cancel := o.callCtx(ctx, opts)
		err := o.backends[tier].Set(tctx, key, env)
		cancel()

		if err != nil {
			o.stats.tierErrors.Add(1)
			o.log.Warn("tier write failed", "tier", tier, "key", key, "error", err)
			continue
		}
		return tier, true
	}
	return target, false
}

// cascadeWarm opportunistically copies a small freshly-written value
// into the memory tier so the next read is cheap.
func (o *Orchestrator) cascadeWarm(ctx context.Context, key string, env types.Envelope, written types.Tier, size int, opts types.Options) {
	if written == types.TierMemory || !o.enabled(types.TierMemory) {
		return
	}
	if o.cfg.Placement.CascadeMaxValueBytes <= 0 || int64(size) > o.cfg.Placement.CascadeMaxValueBytes {
		return
	}

	tctx, cancel := o.callCtx(ctx, opts)
	defer cancel()
	if err := o.backends[types.TierMemory].Set(tctx, key, env); err != nil {
		o.log.Warn("cascade warm failed", "key", key, "error", err)
	}
}

// Delete fans out to every enabled tier. The call succeeds when at
// least one tier confirmed deletion; partial failures surface only in
// the metadata.
func (o *Orchestrator) Delete(ctx context.Context, key string, opts types.Options) types.Result {
	meta := types.Metadata{TotalTiers: len(o.order)}

	for _, tier := range o.order {
		tctx, cancel := o.callCtx(ctx, opts)
		deleted, err := o.backends[tier].Delete(tctx, key)
		cancel()

		if err != nil {
			o.stats.tierErrors.Add(1)
			o.log.Warn("tier delete failed", "tier", tier, "key", key, "error", err)
			continue
		}
		if deleted {
			meta.DeletedFromTiers = append(meta.DeletedFromTiers, tier.String())
			meta.SuccessfulDeletions++
		}
	}

	o.cache.Invalidate(key)
	o.cache.Invalidate(tierLocationPrefix + key)
	o.cache.InvalidateByDependency(key)

	if meta.SuccessfulDeletions == 0 {
		return types.FailureMeta(errs.ErrNotFound, meta)
	}

	o.stats.deletes.Add(1)
	return types.SuccessMeta(nil, meta)
}

// Exists reports whether any enabled tier holds the key.
func (o *Orchestrator) Exists(ctx context.Context, key string, opts types.Options) (bool, error) {
	if _, ok := o.cache.Get(key); ok {
		return true, nil
	}

	var lastErr error
	for _, tier := range o.order {
		tctx, cancel := o.callCtx(ctx, opts)
		found, err := o.backends[tier].Exists(tctx, key)
		cancel()

		if err != nil {
			lastErr = err
			o.log.Warn("tier exists failed", "tier", tier, "key", key, "error", err)
			continue
		}
		if found {
			return true, nil
		}
	}
	return false, lastErr
}

// Promote copies a key from the named tier into the adjacent higher
// tier. Fails when the key is already at the highest enabled tier.
func (o *Orchestrator) Promote(ctx context.Context, key string, from types.Tier) types.Result {
	return o.migrate(ctx, key, from, true)
}

// Demote copies a key from the named tier into the adjacent lower tier
// and removes it from the source after the write is confirmed.
func (o *Orchestrator) Demote(ctx context.Context, key string, from types.Tier) types.Result {
	return o.migrate(ctx, key, from, false)
}

func (o *Orchestrator) migrate(ctx context.Context, key string, from types.Tier, up bool) types.Result {
	idx := -1
	for i, tier := range o.order {
		if tier == from {
			idx = i
			break
		}
	}
	if idx < 0 {
		return types.Failure(errs.Wrap(errs.ErrInvalidRequest, "tier %s not enabled", from))
	}

	var target types.Tier
	if up {
		if idx == 0 {
			return types.Failure(errs.ErrAlreadyHighestTier)
		}
		target = o.order[idx-1]
	} else {
		if idx == len(o.order)-1 {
			return types.Failure(errs.ErrAlreadyLowestTier)
		}
		target = o.order[idx+1]
	}

	opts := types.Options{}

	tctx, cancel := o.callCtx(ctx, opts)
	env, found, err := o.backends[from].Get(tctx, key)
	cancel()
	if err != nil {
		return types.Failure(errs.Wrap(errs.ErrTierUnavailable, "read %s from %s: %v", key, from, err))
	}
	if !found {
		return types.Failure(errs.ErrNotFound)
	}

	tctx, cancel = o.callCtx(ctx, opts)
	err = o.backends[target].Set(tctx, key, env)
	cancel()
	if err != nil {
		return types.Failure(errs.Wrap(errs.ErrTierUnavailable, "write %s to %s: %v", key, target, err))
	}

	if !up {
		// Remove from the source only after the slower copy is durable.
		tctx, cancel = o.callCtx(ctx, opts)
		if _, derr := o.backends[from].Delete(tctx, key); derr != nil {
			o.log.Warn("demote source delete failed", "tier", from, "key", key, "error", derr)
		}
		cancel()
		o.stats.demotions.Add(1)
	} else {
		o.stats.promotions.Add(1)
	}

	o.cache.Set(tierLocationPrefix+key, target.String(), o.cfg.Cache.TierLocationTTL, nil)
	return types.SuccessMeta(nil, types.Metadata{Tier: target.String()})
}

// Cache exposes the cache layer to the engine above.
func (o *Orchestrator) Cache() *cache.Cache {
	return o.cache
}

// Close closes every backend, keeping the first error.
func (o *Orchestrator) Close() error {
	var first error
	for _, b := range o.backends {
		if err := b.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
