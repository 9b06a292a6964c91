// Package stats collects the per-policy counters every engine in package
// policy reports through, and the reuse-distance histogram the shadow
// policies (ShadowLRU, ShadowSLAB, PartSlab) use to emit a hit-rate curve.
package stats

import (
	"fmt"
	"io"
	"sort"
)

// Tracker accumulates the counters a Policy updates while replaying a trace.
// It mirrors the `stats` struct threaded through every policy constructor in
// the original simulator: the same Tracker is shared by value-semantics
// embedding, policy engines only ever increment fields on it.
type Tracker struct {
	Policy string

	Accesses uint64
	Hits     uint64
	HitsDRAM uint64
	HitsFlash uint64

	BytesCached   uint64
	EvictedItems  uint64
	EvictedBytes  uint64
	MissedBytes   uint64

	WritesFlash       uint64
	FlashBytesWritten uint64

	CreditLimitEvents uint64
	ShadowQHits       uint64

	// ReAdmissions counts post-warmup misses (including resized re-accesses)
	// whose key a cuckoo-filter doorkeeper reports as admitted before; filter
	// false positives are counted too. Diagnostic only.
	ReAdmissions uint64

	// PackRuns/PackUtilization are SegmentUtil-specific: how many offline
	// packing runs have executed, and the achieved page-utilization
	// fraction of the most recent one.
	PackRuns        uint64
	PackUtilization float64

	// CleanedExtFragBytes/CleanedGeneratedSegs are LSM-specific: bytes lost
	// to unfilled destination-segment tails, and how many destination
	// segments a cleaning pass produced, across all cleans so far.
	CleanedExtFragBytes uint64
	CleanedGeneratedSegs uint64

	nextTick float64
	tickEvery float64
}

// New returns a zeroed Tracker for the named policy.
func New(policy string) *Tracker {
	return &Tracker{Policy: policy, tickEvery: 3600}
}

// HitRate returns Hits/Accesses, or 0 if no accesses were recorded.
func (t *Tracker) HitRate() float64 {
	if t.Accesses == 0 {
		return 0
	}
	return float64(t.Hits) / float64(t.Accesses)
}

// Tick is called once per processed request with the trace's own virtual
// clock. It is a no-op unless simTime has crossed the next 3600s boundary,
// matching slab_multi's periodic per-app stats dump cadence — driven purely
// by trace time, never the host clock.
func (t *Tracker) Tick(simTime float64, onBoundary func(simTime float64)) {
	if simTime < t.nextTick {
		return
	}
	t.nextTick = simTime + t.tickEvery
	if onBoundary != nil {
		onBoundary(simTime)
	}
}

// Dump writes the human-readable "key value" report described in the trace
// format documentation: one stat per line, last line is the overall hit rate.
func (t *Tracker) Dump(w io.Writer) {
	fmt.Fprintf(w, "policy %s\n", t.Policy)
	fmt.Fprintf(w, "#accesses %d\n", t.Accesses)
	fmt.Fprintf(w, "#hits %d\n", t.Hits)
	fmt.Fprintf(w, "#dram_hits %d\n", t.HitsDRAM)
	fmt.Fprintf(w, "#flash_hits %d\n", t.HitsFlash)
	fmt.Fprintf(w, "bytes_cached %d\n", t.BytesCached)
	fmt.Fprintf(w, "#evicted_items %d\n", t.EvictedItems)
	fmt.Fprintf(w, "evicted_bytes %d\n", t.EvictedBytes)
	fmt.Fprintf(w, "missed_bytes %d\n", t.MissedBytes)
	fmt.Fprintf(w, "#writes_flash %d\n", t.WritesFlash)
	fmt.Fprintf(w, "flash_bytes_written %d\n", t.FlashBytesWritten)
	fmt.Fprintf(w, "#credit_limit_events %d\n", t.CreditLimitEvents)
	fmt.Fprintf(w, "#shadow_q_hits %d\n", t.ShadowQHits)
	fmt.Fprintf(w, "#re_admissions %d\n", t.ReAdmissions)
	fmt.Fprintf(w, "#pack_runs %d\n", t.PackRuns)
	fmt.Fprintf(w, "pack_utilization %f\n", t.PackUtilization)
	fmt.Fprintf(w, "cleaned_ext_frag_bytes %d\n", t.CleanedExtFragBytes)
	fmt.Fprintf(w, "#cleaned_generated_segs %d\n", t.CleanedGeneratedSegs)
	fmt.Fprintf(w, "hit_rate %f\n", t.HitRate())
}

// TooBigDistance is the reuse-distance overflow threshold (1 GiB): any hit
// whose stack distance reaches it is folded into TooBig instead of its own
// histogram bucket, matching hit_rate_curve's "distance >= 1 GiB" overflow.
const TooBigDistance = 1 << 30

// HitRateCurve accumulates a histogram of reuse distances (in bytes) for the
// shadow policies, and dumps it as a cumulative-fraction-vs-distance curve.
// Misses are counted but never bucketed — they only widen the CDF's
// denominator, matching "f = (sum hits) / (total hits + misses)".
type HitRateCurve struct {
	buckets map[uint64]uint64
	hits    uint64
	misses  uint64
	tooBig  uint64
}

// NewHitRateCurve returns an empty curve.
func NewHitRateCurve() *HitRateCurve {
	return &HitRateCurve{buckets: make(map[uint64]uint64)}
}

// Observe records one reuse at the given stack/reuse distance in bytes,
// folding it into TooBig instead of its own bucket once distance reaches
// TooBigDistance.
func (c *HitRateCurve) Observe(distance uint64) {
	if distance >= TooBigDistance {
		c.tooBig++
		c.hits++
		return
	}
	c.buckets[distance]++
	c.hits++
}

// Miss records a compulsory miss — it counts toward the CDF denominator but
// contributes no distance bucket.
func (c *HitRateCurve) Miss() {
	c.misses++
}

// TooBig returns the count of hits whose reuse distance overflowed
// TooBigDistance.
func (c *HitRateCurve) TooBig() uint64 { return c.tooBig }

// DumpCDF writes "distance cumfrac" rows, ascending by distance, matching
// the CDF file format: each row is the fraction of all accesses (hits plus
// misses) whose reuse distance is at or below that distance.
func (c *HitRateCurve) DumpCDF(w io.Writer) {
	total := c.hits + c.misses
	if total == 0 {
		return
	}
	fmt.Fprintf(w, "distance cumfrac\n")
	dists := make([]uint64, 0, len(c.buckets))
	for d := range c.buckets {
		dists = append(dists, d)
	}
	sort.Slice(dists, func(i, j int) bool { return dists[i] < dists[j] })
	var cum uint64
	for _, d := range dists {
		cum += c.buckets[d]
		fmt.Fprintf(w, "%d %f\n", d, float64(cum)/float64(total))
	}
}
