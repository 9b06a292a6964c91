package policy

import "testing"

// TestFlashCacheLRUKNonGatedWritesFlash checks that the default (non
// credit-gated) variant still migrates a queue-0 overflow into flash,
// subject only to flash capacity, rather than discarding it outright.
func TestFlashCacheLRUKNonGatedWritesFlash(t *testing.T) {
	// k=1 so every admission lands in (and overflows out of) queue 0
	// immediately; dramCap equal to queueSize keeps the single-queue
	// bound tight.
	f := NewFlashCacheLRUK(1, 8, 8, 64, 0, false)

	ti := 0.0
	for kid := uint64(1); kid <= 4; kid++ {
		f.Process(&Request{Time: ti, Kid: kid, ValSz: 8}, false)
		ti++
	}

	if f.Stats().WritesFlash == 0 {
		t.Fatalf("expected the non-gated variant to write at least one overflowed item to flash")
	}
}

// TestFlashCacheLRUKQueueZeroUsesDramCap checks that queue 0's admission
// bound tracks the overall dramCap budget, not the smaller per-queue
// queueSize used by queues 1..k-1.
func TestFlashCacheLRUKQueueZeroUsesDramCap(t *testing.T) {
	// k=2, queueSize=4 (per upper queue), dramCap=16 (overall budget for
	// queue 0). If queue 0 were wrongly capped at queueSize (4), two
	// 8-byte admissions would already overflow it; with the dramCap fix,
	// queue 0 holds both without overflowing.
	f := NewFlashCacheLRUK(2, 4, 16, 64, 0, false)

	f.Process(&Request{Time: 0, Kid: 1, ValSz: 8}, false)
	f.Process(&Request{Time: 1, Kid: 2, ValSz: 8}, false)

	if f.queueSz[0] != 16 {
		t.Fatalf("queue 0 size = %d, want 16 (both items retained under dramCap)", f.queueSz[0])
	}
	if f.Stats().EvictedItems != 0 || f.Stats().WritesFlash != 0 {
		t.Fatalf("expected no overflow yet: evicted=%d writesFlash=%d", f.Stats().EvictedItems, f.Stats().WritesFlash)
	}
}
