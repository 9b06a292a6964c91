package policy

import "testing"

// TestSegmentUtilPackUtilizationWithinBounds drives a small packer past its
// flush bound and checks the reported utilization never exceeds 1.0 (it can
// never place more bytes than the page array holds) and is positive once a
// pack has run, since every 3-byte item fits in an empty page.
func TestSegmentUtilPackUtilizationWithinBounds(t *testing.T) {
	s := NewSegmentUtil(64 /* bound */, 8 /* pageSize */, 4 /* numHashFuncs */)

	ti := 0.0
	for kid := uint64(1); kid <= 40; kid++ {
		s.Process(&Request{Time: ti, Kid: kid, ValSz: 3}, false)
		ti++
		if u := s.stat.PackUtilization; u < 0 || u > 1 {
			t.Fatalf("PackUtilization=%v out of [0,1] at kid=%d", u, kid)
		}
	}
	if s.stat.PackRuns == 0 {
		t.Fatalf("expected at least one pack run")
	}
	if s.stat.PackUtilization <= 0 {
		t.Fatalf("PackUtilization=%v, want > 0 after a pack run", s.stat.PackUtilization)
	}
}

// TestSegmentUtilHeadAndTailPagesShareBytes checks that tryPlace allows an
// item's head and tail pages to carry bytes from a previous item, as long
// as the shares fit, while the strictly-interior pages of a multi-page item
// must be left completely empty.
func TestSegmentUtilHeadAndTailPagesShareBytes(t *testing.T) {
	const pageSize = 8

	fill := make([]uint64, 4)
	// First item: 5 bytes, lands at page 0, leaving 3 bytes of headroom.
	if !tryPlace(fill, pageSize, 0, 5) {
		t.Fatalf("expected first placement to succeed")
	}
	if fill[0] != 5 {
		t.Fatalf("page 0 fill = %d, want 5", fill[0])
	}

	// Second item: 3 bytes, should fit in page 0's remaining headroom
	// without touching page 1.
	if !tryPlace(fill, pageSize, 0, 3) {
		t.Fatalf("expected second placement to reuse page 0's headroom")
	}
	if fill[0] != pageSize {
		t.Fatalf("page 0 fill = %d, want %d (full)", fill[0], pageSize)
	}
	if fill[1] != 0 {
		t.Fatalf("page 1 fill = %d, want 0 (untouched)", fill[1])
	}

	// Third item: page 0 is now completely full, so a probe landing there
	// must be rejected outright regardless of item size.
	if tryPlace(fill, pageSize, 0, 1) {
		t.Fatalf("expected placement against a full head page to fail")
	}

	// Fourth item: 10 bytes starting at empty page 1 fills page 1 entirely
	// (its head) and spills a 2-byte tail into page 2.
	if !tryPlace(fill, pageSize, 1, 10) {
		t.Fatalf("expected multi-page placement to succeed")
	}
	if fill[1] != pageSize {
		t.Fatalf("page 1 fill = %d, want %d (full head)", fill[1], pageSize)
	}
	if fill[2] != 2 {
		t.Fatalf("page 2 fill = %d, want 2 (tail)", fill[2])
	}

	// A second item landing on page 2 should still be able to use its
	// remaining headroom (6 bytes) without disturbing page 3.
	if !tryPlace(fill, pageSize, 2, 6) {
		t.Fatalf("expected placement to reuse page 2's remaining headroom")
	}
	if fill[3] != 0 {
		t.Fatalf("page 3 fill = %d, want 0 (untouched)", fill[3])
	}
}

// TestSegmentUtilInteriorPageMustBeEmpty checks that a multi-page placement
// is rejected if any strictly-interior page already has any fill at all,
// even if the head and tail could otherwise both fit.
func TestSegmentUtilInteriorPageMustBeEmpty(t *testing.T) {
	const pageSize = 8

	fill := make([]uint64, 3)
	fill[1] = 1 // page 1 is only barely touched, but no longer "completely empty"

	// A 17-byte item starting at empty page 0 takes 8 bytes there, needs
	// page 1 as a full interior page, and puts a 1-byte tail on page 2, so
	// page 1's single byte of fill must reject it.
	if tryPlace(fill, pageSize, 0, 17) {
		t.Fatalf("expected placement to fail: page 1 is not completely empty")
	}
}
