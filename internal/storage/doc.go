// Package storage wires the strata tiered key-value engine together.
//
// Architecture:
//
//	┌─────────────┐     ┌──────────────┐     ┌─────────────┐
//	│    Async    │────▶│  Operation   │────▶│   Tiered    │
//	│   Engine    │     │    Queue     │     │ Orchestrator│
//	└─────────────┘     └──────────────┘     └─────────────┘
//	       │                                        │
//	       ▼                                        ▼
//	┌─────────────┐      memory → local → structured → remote → archive
//	│    Cache    │
//	└─────────────┘
//
// The storage system provides:
//   - Optimistic writes with read-your-write consistency
//   - A bounded operation queue drained in batches by one worker
//   - Priority-ordered fallback reads with promotion on hit
//   - Dependency-aware cache invalidation
//   - Transparent compression through a pluggable codec
//   - Advisory health reporting from queue utilization
package storage
