package policy

import (
	"io"

	"github.com/cachesim/cachesim/internal/stats"
)

// Policy is the common interface every cache-replacement/admission engine
// implements. Process is a total, deterministic function of (state,
// request): no goroutines, no channels, no timers, and no clock besides the
// Request's own Time field — wall-clock time always comes from the trace,
// never the host.
type Policy interface {
	// Process applies one Request and returns ProcMiss on a miss, or 1 on
	// a hit; every engine here returns 1 for a hit (the shadow engines
	// record reuse distances in their hit-rate curve instead of returning
	// them).
	Process(r *Request, warmup bool) uint64

	// BytesCached returns the policy's current total resident size.
	BytesCached() uint64

	// Stats returns the shared counters this policy has been updating.
	Stats() *stats.Tracker

	// DumpStats writes the human-readable per-policy report.
	DumpStats(w io.Writer)
}
