package policy

import (
	"io"
	"sort"

	"github.com/cachesim/cachesim/internal/hashkey"
	"github.com/cachesim/cachesim/internal/stats"
)

// segItem is one buffered request awaiting the next offline pack.
type segItem struct {
	kid  uint64
	size uint32
}

// SegmentUtil is a one-shot offline packer, not an online cache: it
// accumulates requests until their total size reaches bound, then sorts
// them by size descending and probes numHashFuncs MurmurHash3-family
// offsets (via internal/hashkey.Rehash, per spec.md's Hashing substitution
// note) into a fixed page array for each one in turn. Pages carry a
// running byte-fill, not a boolean occupied flag: an item's head page and
// tail page may already hold bytes from other items, as long as the item's
// share still fits; only the pages strictly between head and tail must be
// completely empty. A probe is rejected outright if its head page is
// already entirely full. The first successful probe wins; an item that
// exhausts its probes, or that can't fit anywhere in the array, is simply
// left unpacked. The measurement is the fraction of placed-item bytes over
// total page-array capacity.
type SegmentUtil struct {
	bound        uint64
	pageSize     uint64
	numPages     int
	numHashFuncs int

	buffer   []segItem
	bufBytes uint64

	stat *stats.Tracker
}

// NewSegmentUtil constructs a packer that flushes every time buffered input
// reaches bound bytes, with a page array of bound/pageSize pages and
// numHashFuncs probe attempts per item.
func NewSegmentUtil(bound, pageSize uint64, numHashFuncs int) *SegmentUtil {
	return &SegmentUtil{
		bound:        bound,
		pageSize:     pageSize,
		numPages:     int(bound / pageSize),
		numHashFuncs: numHashFuncs,
		stat:         stats.New("segment_util"),
	}
}

func (s *SegmentUtil) Stats() *stats.Tracker { return s.stat }
func (s *SegmentUtil) BytesCached() uint64   { return 0 }

// pageSpan reports how many pages an item of size bytes occupies when its
// head lands on a page with headRoom free bytes still available: it either
// fits entirely in the head page, or consumes the rest of the head page,
// some number of strictly-interior pages completely, and a final tail page
// partially.
func pageSpan(size, pageSize, headRoom uint64) (pages, fullPages int, tailBytes uint64) {
	if size <= headRoom {
		return 1, 0, 0
	}
	remaining := size - headRoom
	fullPages = int(remaining / pageSize)
	tailBytes = remaining % pageSize
	pages = 1 + fullPages
	if tailBytes > 0 {
		pages++
	}
	return pages, fullPages, tailBytes
}

// tryPlace attempts to land an item of size bytes with its head page at
// start, committing the page-fill updates only on success.
func tryPlace(fill []uint64, pageSize uint64, start int, size uint64) bool {
	if start >= len(fill) || fill[start] >= pageSize {
		return false
	}
	headRoom := pageSize - fill[start]
	pages, fullPages, tailBytes := pageSpan(size, pageSize, headRoom)
	if start+pages > len(fill) {
		return false
	}
	for i := 1; i <= fullPages; i++ {
		if fill[start+i] != 0 {
			return false
		}
	}
	tailIdx := start + pages - 1
	if tailBytes > 0 && fill[tailIdx]+tailBytes > pageSize {
		return false
	}

	if pages == 1 {
		fill[start] += size
		return true
	}
	fill[start] = pageSize
	for i := 1; i <= fullPages; i++ {
		fill[start+i] = pageSize
	}
	if tailBytes > 0 {
		fill[tailIdx] += tailBytes
	}
	return true
}

// pack runs one offline packing pass over the buffered items and records
// the achieved utilization, then clears the buffer.
func (s *SegmentUtil) pack(warmup bool) {
	items := append([]segItem(nil), s.buffer...)
	sort.Slice(items, func(i, j int) bool { return items[i].size > items[j].size })

	fill := make([]uint64, s.numPages)
	var usedBytes uint64

	for _, it := range items {
		seed := hashkey.Rehash(it.kid)
		for attempt := 0; attempt < s.numHashFuncs; attempt++ {
			start := int(seed % uint64(len(fill)))
			if tryPlace(fill, s.pageSize, start, uint64(it.size)) {
				usedBytes += uint64(it.size)
				break
			}
			seed = hashkey.Rehash(seed)
		}
	}

	if !warmup {
		s.stat.PackRuns++
		s.stat.PackUtilization = float64(usedBytes) / float64(uint64(s.numPages)*s.pageSize)
	}
	s.buffer = s.buffer[:0]
	s.bufBytes = 0
}

// Process buffers the request and triggers a pack once the buffer reaches
// bound bytes. SegmentUtil never serves a cached value, so every call
// reports a miss.
func (s *SegmentUtil) Process(r *Request, warmup bool) uint64 {
	if !warmup {
		s.stat.Accesses++
		s.stat.MissedBytes += uint64(r.Size())
	}
	s.buffer = append(s.buffer, segItem{kid: r.Kid, size: uint32(r.Size())})
	s.bufBytes += uint64(r.Size())
	if s.bufBytes >= s.bound {
		s.pack(warmup)
	}
	return ProcMiss
}

// DumpStats flushes any partially-filled buffer into one final pack before
// reporting counters, matching dump_stats being called once on shutdown.
func (s *SegmentUtil) DumpStats(w io.Writer) {
	if len(s.buffer) > 0 {
		s.pack(false)
	}
	s.stat.Dump(w)
}
