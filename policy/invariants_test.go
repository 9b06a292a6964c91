package policy_test

import (
	"testing"

	"github.com/cachesim/cachesim/policy"
)

// repeatAccessHits checks property 10: N same-key, same-size accesses beyond
// warmup yield at least N-1 hits. It does not check evictions or
// second-tier writes.
func repeatAccessHits(t *testing.T, name string, p policy.Policy, kid uint64, size int32, n int) {
	t.Helper()
	r := &policy.Request{Kid: kid, ValSz: size}
	var hits int
	for i := 0; i < n; i++ {
		r.Time = float64(i)
		out := p.Process(r, false)
		if out != policy.ProcMiss {
			hits++
		}
	}
	if hits < n-1 {
		t.Fatalf("%s: got %d hits over %d repeated accesses, want >= %d", name, hits, n, n-1)
	}
}

func TestRepeatedAccessIsMostlyHits(t *testing.T) {
	const n = 10

	cases := []struct {
		name string
		p    policy.Policy
	}{
		{"LRU", policy.NewLRU(1024)},
		{"CLOCK", policy.NewClock(1024, 15, 0)},
		{"LRU-K", policy.NewLRUK(4, 256)},
		{"FlashCache", policy.NewFlashCache(1024, 1024, 1<<20, 1, 1)},
		{"VictimCache", policy.NewVictimCache(1024, 1024)},
		{"RamShield", policy.NewRamShield(1024, 1024, 256, 1.0)},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			repeatAccessHits(t, c.name, c.p, 42, 16, n)
		})
	}
}

// TestEvictionByteAccountingNeverNegative exercises LRU, CLOCK and LRU-K with
// a flood of distinct keys well beyond capacity and checks BytesCached()
// never exceeds the configured capacity (invariant 2/5) and never panics on
// an unsigned underflow.
func TestEvictionByteAccountingNeverNegative(t *testing.T) {
	const capacity = 256

	newLRU := policy.NewLRU(capacity)
	newClock := policy.NewClock(capacity, 15, 0)
	newLRUK := policy.NewLRUK(4, capacity/4)

	for i := uint64(0); i < 2000; i++ {
		r := &policy.Request{Time: float64(i), Kid: i, ValSz: 8}
		newLRU.Process(r, false)
		newClock.Process(r, false)
		newLRUK.Process(r, false)

		if got := newLRU.BytesCached(); got > capacity {
			t.Fatalf("LRU BytesCached()=%d exceeds capacity %d", got, capacity)
		}
		if got := newClock.BytesCached(); got > capacity {
			t.Fatalf("CLOCK BytesCached()=%d exceeds capacity %d", got, capacity)
		}
		if got := newLRUK.BytesCached(); got > capacity {
			t.Fatalf("LRU-K BytesCached()=%d exceeds capacity %d", got, capacity)
		}
	}
}

// TestFlashCacheTierBudgets checks invariant 3 for a two-tier policy at the
// level the public API exposes: the combined resident bytes never exceed
// the DRAM plus flash capacity. Per-tier sizes are not checked.
func TestFlashCacheTierBudgets(t *testing.T) {
	const dramCap, flashCap = 512, 512
	f := policy.NewFlashCache(dramCap, flashCap, 64, 1, 2)

	for i := uint64(0); i < 5000; i++ {
		r := &policy.Request{Time: float64(i), Kid: i % 97, ValSz: 4}
		f.Process(r, false)
		if got := f.BytesCached(); got > dramCap+flashCap {
			t.Fatalf("FlashCache BytesCached()=%d exceeds dram+flash budget %d", got, dramCap+flashCap)
		}
	}
}

// TestEvictedBytesMonotonic checks property 8: evicted_bytes never decreases
// across requests.
func TestEvictedBytesMonotonic(t *testing.T) {
	l := policy.NewLRU(64)
	var last uint64
	for i := uint64(0); i < 500; i++ {
		l.Process(&policy.Request{Time: float64(i), Kid: i, ValSz: 8}, false)
		cur := l.Stats().EvictedBytes
		if cur < last {
			t.Fatalf("EvictedBytes decreased: %d -> %d at step %d", last, cur, i)
		}
		last = cur
	}
}

// TestUpdateInPlaceIsNotAHit checks the spec's "update-in-place is uniformly
// handled as erase-then-admit; the access does NOT count as a hit" rule.
func TestUpdateInPlaceIsNotAHit(t *testing.T) {
	l := policy.NewLRU(1024)
	l.Process(&policy.Request{Time: 0, Kid: 1, ValSz: 10}, false)
	out := l.Process(&policy.Request{Time: 1, Kid: 1, ValSz: 20}, false)
	if out != policy.ProcMiss {
		t.Fatalf("resized re-access of the same key returned a hit, want MISS")
	}
	if l.Stats().Hits != 0 {
		t.Fatalf("resized re-access counted as a hit: Hits=%d", l.Stats().Hits)
	}
}
