package policy

import "testing"

// reqAt is a minimal internal-package counterpart to the black-box req()
// helper in scenarios_suite_test.go (package policy_test), used by white-box
// tests that need access to unexported fields.
func reqAt(kid uint64, size int32, t float64) *Request {
	return &Request{Time: t, Kid: kid, ValSz: size}
}

// TestRIPQVirtualNeverColderThanPhysical drives a RIPQ with repeated hits on
// a hot subset of keys and checks, after every request, that every live
// item's virtual section id is <= its physical section id (E6 / invariant 6:
// a re-accessed item's logical placement only ever moves toward section 0
// ahead of its actual flash location, never behind it).
func TestRIPQVirtualNeverColderThanPhysical(t *testing.T) {
	r := NewRIPQ(4 /* blockSize */, 3 /* numSections */, 24 /* flashSize */)

	check := func(label string) {
		for kid, h := range r.index {
			m := r.metaOf(h)
			if m.virtualBlock.section.id > m.physicalBlock.section.id {
				t.Fatalf("%s: key %d virtual section %d > physical section %d",
					label, kid, m.virtualBlock.section.id, m.physicalBlock.section.id)
			}
		}
	}

	kids := []uint64{1, 2, 3, 4, 5, 6}
	ti := 0.0
	for _, k := range kids {
		r.Process(reqAt(k, 4, ti), false)
		ti++
		check("after admission")
	}

	// Re-access a hot subset repeatedly, promoting their virtual placement.
	for i := 0; i < 20; i++ {
		for _, k := range []uint64{1, 2} {
			r.Process(reqAt(k, 4, ti), false)
			ti++
			check("after hit")
		}
	}
}
