package engine

import "github.com/xtxerr/strata/internal/storage/health"

// Health is an advisory snapshot of engine load. It never alters engine
// behavior; backpressure is enforced only by the queue bound itself.
type Health struct {
	Status         health.Level
	QueueSize      int
	QueueCapacity  int
	QueueUsage     float64
	OptimisticKeys int
}

// HealthCheck reports the current health level: unhealthy when the
// queue is full, degraded when it is over the degraded threshold,
// healthy otherwise.
func (e *Engine) HealthCheck() Health {
	size := e.queue.Len()
	usage := float64(size) / float64(e.queue.Cap())

	e.mu.Lock()
	optimistic := len(e.optimistic)
	e.mu.Unlock()

	return Health{
		Status:         e.health.Evaluate(usage),
		QueueSize:      size,
		QueueCapacity:  e.queue.Cap(),
		QueueUsage:     usage,
		OptimisticKeys: optimistic,
	}
}

// Stats is a point-in-time snapshot of engine activity.
type Stats struct {
	Enqueued       int64
	Committed      int64
	Retried        int64
	Exhausted      int64
	Rejected       int64
	OptimisticHits int64
	Pending        int
}

// Stats returns engine statistics.
func (e *Engine) Stats() Stats {
	return Stats{
		Enqueued:       e.stats.enqueued.Load(),
		Committed:      e.stats.committed.Load(),
		Retried:        e.stats.retried.Load(),
		Exhausted:      e.stats.exhausted.Load(),
		Rejected:       e.stats.rejected.Load(),
		OptimisticHits: e.stats.optimistic.Load(),
		Pending:        e.queue.Len(),
	}
}
