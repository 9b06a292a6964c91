package policy

import (
	"io"

	"github.com/cachesim/cachesim/internal/slabclass"
	"github.com/cachesim/cachesim/internal/stats"
)

// Slab partitions its backing storage into fixed-size-class LRUs, memcached
// style: an object is rounded up to its class's chunk size and placed in
// that class's own LRU chain, so objects of wildly different sizes never
// compete for the same eviction decisions. Each class grows its own capacity
// by a fixed page size (pageSize) on demand, up to the shared global
// memory budget, and never shrinks — mirroring slab.cpp's
// "would_cause_eviction -> expand" growth-only allocator.
type Slab struct {
	table      slabclass.Table
	memcachier bool
	classes    []*LRU
	classOf    map[uint64]int
	globalMem  uint64
	memInUse   uint64
	pageSize   uint64
	stat       *stats.Tracker
}

// NewSlab constructs a Slab allocator. If memcachier is true it uses the
// fixed powers-of-two table (15 classes); otherwise it builds the memcached
// geometric table at growth factor gfactor. globalMem bounds how much total
// capacity every class's LRU may grow to combined; pageSize is how much a
// single class grows by each time it needs room (1MiB in the original).
func NewSlab(memcachier bool, gfactor float64, globalMem, pageSize uint64) *Slab {
	var table slabclass.Table
	if memcachier {
		table = slabclass.Memcachier()
	} else {
		table = slabclass.Memcached(gfactor)
	}
	s := &Slab{
		table:      table,
		memcachier: memcachier,
		classes:    make([]*LRU, len(table)),
		classOf:    make(map[uint64]int),
		globalMem:  globalMem,
		pageSize:   pageSize,
		stat:       stats.New("slab"),
	}
	for i := range s.classes {
		s.classes[i] = NewLRU(0)
	}
	return s
}

func (s *Slab) Stats() *stats.Tracker { return s.stat }
func (s *Slab) BytesCached() uint64 {
	var b uint64
	for _, c := range s.classes {
		b += c.stat.BytesCached
	}
	return b
}

func (s *Slab) classFor(size uint32) (class int, classSize uint32, ok bool) {
	if s.memcachier {
		return s.table.ClassOfStrict(size)
	}
	return s.table.ClassOf(size)
}

// Process mirrors slab::process_request: find the request's slab class;
// reclassify (evict from the old class outright) if a resize moved it to a
// different class; grow the target class by pageSize pages until it no
// longer needs to evict to admit this request (capped at globalMem total);
// then hand the resized request to that class's own LRU.
func (s *Slab) Process(r *Request, warmup bool) uint64 {
	if !warmup {
		s.stat.Accesses++
	}
	class, classSize, ok := s.classFor(uint32(r.Size()))
	if !ok {
		return ProcMiss
	}

	if prevClass, had := s.classOf[r.Kid]; had && prevClass != class {
		s.classes[prevClass].Remove(r)
		delete(s.classOf, r.Kid)
	}

	target := s.classes[class]
	copyReq := *r
	copyReq.KeySz = 0
	copyReq.ValSz = int32(classSize)
	copyReq.FragSz = int32(classSize) - r.Size()

	for s.memInUse < s.globalMem && target.WouldCauseEviction(&copyReq) {
		target.Expand(s.pageSize)
		s.memInUse += s.pageSize
	}

	outcome := target.Process(&copyReq, warmup)
	s.classOf[r.Kid] = class

	if outcome == ProcMiss {
		return ProcMiss
	}
	if !warmup {
		s.stat.Hits++
	}
	return 1
}

func (s *Slab) DumpStats(w io.Writer) { s.stat.Dump(w) }
