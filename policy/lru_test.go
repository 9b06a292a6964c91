package policy

import "testing"

// TestLRUWouldHit checks that WouldHit reports residency without mutating
// recency order or stats.
func TestLRUWouldHit(t *testing.T) {
	l := NewLRU(64)
	l.Process(&Request{Time: 0, Kid: 1, ValSz: 8}, false)

	if !l.WouldHit(&Request{Kid: 1}) {
		t.Fatalf("expected WouldHit(1) to be true after admission")
	}
	if l.WouldHit(&Request{Kid: 2}) {
		t.Fatalf("expected WouldHit(2) to be false, key never admitted")
	}
	if l.stat.Accesses != 0 || l.stat.Hits != 0 {
		t.Fatalf("WouldHit must not touch stats: accesses=%d hits=%d", l.stat.Accesses, l.stat.Hits)
	}
}

// TestLRUTryAddTail checks that TryAddTail admits at the cold end without
// evicting, and fails once there's no room rather than displacing a
// resident.
func TestLRUTryAddTail(t *testing.T) {
	l := NewLRU(16)

	if !l.TryAddTail(&Request{Kid: 1, ValSz: 8}) {
		t.Fatalf("expected first TryAddTail to succeed")
	}
	if !l.TryAddTail(&Request{Kid: 2, ValSz: 8}) {
		t.Fatalf("expected second TryAddTail to fill remaining capacity")
	}
	if l.BytesCached() != 16 {
		t.Fatalf("BytesCached()=%d, want 16", l.BytesCached())
	}

	if l.TryAddTail(&Request{Kid: 3, ValSz: 1}) {
		t.Fatalf("expected TryAddTail to fail once capacity is exhausted")
	}
	if !l.WouldHit(&Request{Kid: 1}) || !l.WouldHit(&Request{Kid: 2}) {
		t.Fatalf("a failed TryAddTail must not have evicted either resident")
	}
	if l.WouldHit(&Request{Kid: 3}) {
		t.Fatalf("a failed TryAddTail must not have admitted the new key")
	}

	// Each TryAddTail lands behind the previous one, so key 2 (pushed to
	// the tail second) ends up as the true chain tail and is the one a
	// normal Process-driven eviction claims first.
	l2 := NewLRU(16)
	l2.TryAddTail(&Request{Kid: 1, ValSz: 8})
	l2.TryAddTail(&Request{Kid: 2, ValSz: 8})
	l2.Process(&Request{Time: 0, Kid: 3, ValSz: 8}, false)
	if l2.WouldHit(&Request{Kid: 2}) {
		t.Fatalf("expected key 2 (the true chain tail) to be evicted first")
	}
	if !l2.WouldHit(&Request{Kid: 1}) {
		t.Fatalf("expected key 1 to survive")
	}
}
