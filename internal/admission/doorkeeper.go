// Package admission provides a probabilistic "seen before" doorkeeper built
// on a cuckoo filter, the teacher's own dependency for exactly this kind of
// compact approximate-membership structure. FlashCache uses it only to
// count misses on keys it has probably admitted before (a diagnostic
// counter); the result never feeds into its admission decision. A key the
// doorkeeper reports as unseen is guaranteed to be a first touch, and no
// second exact hash set is needed to know that.
package admission

import (
	"encoding/binary"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// Doorkeeper tracks approximate key membership with a bounded
// false-positive rate and no false negatives: Seen never reports a recorded
// key as unseen, but may report a first-touch key as seen.
type Doorkeeper struct {
	filter *cuckoo.Filter
}

// New returns a doorkeeper sized for roughly capacity distinct keys.
func New(capacity uint) *Doorkeeper {
	return &Doorkeeper{filter: cuckoo.NewFilter(capacity)}
}

func keyBytes(key uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)
	return buf[:]
}

// Seen reports whether key has been recorded before, then records it.
func (d *Doorkeeper) Seen(key uint64) bool {
	b := keyBytes(key)
	wasSeen := d.filter.Lookup(b)
	if !wasSeen {
		d.filter.InsertUnique(b)
	}
	return wasSeen
}

// Reset clears all recorded keys, replacing the filter with a fresh one
// sized for roughly capacity distinct keys.
func (d *Doorkeeper) Reset(capacity uint) {
	d.filter = cuckoo.NewFilter(capacity)
}
