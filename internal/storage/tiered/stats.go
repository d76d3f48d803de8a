package tiered

import (
	"sync"
	"sync/atomic"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/strata/internal/storage/types"
)

// stats tracks orchestrator counters and a retrieval-latency sketch.
type stats struct {
	gets       atomic.Int64
	cacheHits  atomic.Int64
	notFound   atomic.Int64
	sets       atomic.Int64
	deletes    atomic.Int64
	promotions atomic.Int64
	demotions  atomic.Int64
	tierErrors atomic.Int64

	tierHits [types.TierArchive + 1]atomic.Int64

	sketchMu sync.Mutex
	sketch   *ddsketch.DDSketch
}

func (s *stats) init() error {
	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		return err
	}
	s.sketch = sketch
	return nil
}

func (s *stats) recordGet(res types.Result) {
	s.gets.Add(1)

	s.sketchMu.Lock()
	// Add cannot fail for non-negative values with the default mapping.
	s.sketch.Add(float64(res.Meta.RetrievalTime.Microseconds()) / 1000.0)
	s.sketchMu.Unlock()

	switch {
	case !res.OK:
		s.notFound.Add(1)
	case res.Meta.Cached:
		s.cacheHits.Add(1)
	}
}

func (s *stats) recordTierHit(tier types.Tier) {
	if tier >= 0 && int(tier) < len(s.tierHits) {
		s.tierHits[tier].Add(1)
	}
}

// Stats is a point-in-time snapshot of orchestrator activity.
type Stats struct {
	Gets       int64
	CacheHits  int64
	NotFound   int64
	Sets       int64
	Deletes    int64
	Promotions int64
	Demotions  int64
	TierErrors int64

	// TierHits maps tier name to read hits served by that tier.
	TierHits map[string]int64

	// Retrieval latency percentiles in milliseconds.
	RetrievalP50Ms float64
	RetrievalP95Ms float64
	RetrievalP99Ms float64
}

// Stats returns a snapshot of orchestrator statistics.
func (o *Orchestrator) Stats() Stats {
	s := Stats{
		Gets:       o.stats.gets.Load(),
		CacheHits:  o.stats.cacheHits.Load(),
		NotFound:   o.stats.notFound.Load(),
		Sets:       o.stats.sets.Load(),
		Deletes:    o.stats.deletes.Load(),
		Promotions: o.stats.promotions.Load(),
		Demotions:  o.stats.demotions.Load(),
		TierErrors: o.stats.tierErrors.Load(),
		TierHits:   make(map[string]int64),
	}

	for tier := types.TierMemory; tier <= types.TierArchive; tier++ {
		if hits := o.stats.tierHits[tier].Load(); hits > 0 {
			s.TierHits[tier.String()] = hits
		}
	}

	o.stats.sketchMu.Lock()
	defer o.stats.sketchMu.Unlock()
	if o.stats.sketch.GetCount() > 0 {
		if v, err := o.stats.sketch.GetValueAtQuantile(0.50); err == nil {
			s.RetrievalP50Ms = v
		}
		if v, err := o.stats.sketch.GetValueAtQuantile(0.95); err == nil {
			s.RetrievalP95Ms = v
		}
		if v, err := o.stats.sketch.GetValueAtQuantile(0.99); err == nil {
			s.RetrievalP99Ms = v
		}
	}

	return s
}
