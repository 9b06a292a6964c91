// Package slabclass exposes the two slab-class size tables the slab family
// of policies (Slab, SlabMulti, PartitionedLRU's backing allocators) choose
// an object's backing chunk size from: a memcached-style geometric table
// built at a chosen growth factor, and memcachier's fixed table of
// powers-of-two classes.
package slabclass

const (
	// MinChunk is the smallest chunk size memcached ever allocates, per
	// the "minimum chunk 48" design note.
	MinChunk = 48
	// MaxItemSize bounds how large a single cached object can be.
	MaxItemSize = 1024 * 1024
	// chunkAlign rounds every chunk boundary up to this many bytes.
	chunkAlign = 8
	// maxClasses bounds how many classes Memcached builds; MemcachierCount
	// is memcachier's fixed table size.
	maxClasses     = 64
	MemcachierCount = 15
)

// Table is an ordered, ascending list of chunk sizes: class i holds objects
// up to Table[i] bytes.
type Table []uint32

// Memcached builds the geometric class table memcached itself computes at
// startup for growth factor g: start at MinChunk, multiply by g and round up
// to the alignment boundary each step, stopping once the next size would
// exceed MaxItemSize/g, then appending MaxItemSize as the final class.
func Memcached(g float64) Table {
	t := make(Table, 0, maxClasses)
	size := float64(MinChunk)
	for size <= float64(MaxItemSize)/g && len(t) < maxClasses-1 {
		rounded := uint32(size)
		if rem := rounded % chunkAlign; rem != 0 {
			rounded += chunkAlign - rem
		}
		t = append(t, rounded)
		size *= g
	}
	t = append(t, MaxItemSize)
	return t
}

// Memcachier is the fixed 2^6..2^20 table: 64B, 128B, ..., 1MB (15 classes).
func Memcachier() Table {
	t := make(Table, 0, MemcachierCount)
	size := uint32(64)
	for i := 0; i < MemcachierCount; i++ {
		t = append(t, size)
		size <<= 1
	}
	return t
}

// ClassOf returns the index of the smallest class able to hold size bytes,
// and that class's rounded size. ok is false if size exceeds every class.
func (t Table) ClassOf(size uint32) (class int, roundedSize uint32, ok bool) {
	for i, c := range t {
		if size <= c {
			return i, c, true
		}
	}
	return 0, 0, false
}

// ClassOfStrict is memcachier's own boundary rule (size < class, not <=),
// used only by the memcachier table: it doubles from 64B and stops the
// first time the candidate class size exceeds the request strictly.
func (t Table) ClassOfStrict(size uint32) (class int, roundedSize uint32, ok bool) {
	for i, c := range t {
		if size < c {
			return i, c, true
		}
	}
	return 0, 0, false
}
