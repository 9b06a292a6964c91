package policy

import (
	"io"

	"github.com/cachesim/cachesim/internal/item"
	"github.com/cachesim/cachesim/internal/slabclass"
	"github.com/cachesim/cachesim/internal/stats"
)

// shadowLane is the unbounded recency list every shadow policy's
// reuse-distance walk runs over: never evicted, a hit's distance is the sum
// of sizes of every item strictly in front of it before it's moved to the
// front itself.
type shadowLane struct {
	arena *item.Arena
	list  *item.List
	index map[uint64]item.Handle
}

func newShadowLane() *shadowLane {
	return &shadowLane{arena: item.New(1024), list: item.NewList(), index: make(map[uint64]item.Handle)}
}

// access walks the lane for kid, returning the byte distance to it (0 if
// it's already at the front) and whether it was found at all. A found item
// is moved to the front and has its recorded size refreshed to size; a
// fresh kid is inserted at the front and reported as a miss.
func (l *shadowLane) access(kid uint64, size uint32) (distance uint64, hit bool) {
	if h, ok := l.index[kid]; ok {
		for cur := l.list.Front(); cur != h; cur = l.list.Next(cur) {
			distance += uint64(l.arena.Get(cur).Size)
		}
		l.arena.Get(h).Size = size
		l.list.MoveToFront(h)
		return distance, true
	}
	h := l.arena.Alloc(kid, size)
	l.index[kid] = h
	l.list.PushFront(h)
	return 0, false
}

// ShadowLRU traces reuse distance without ever caching or evicting
// anything: every access walks its single unbounded recency list, recording
// the byte distance of a hit (or a compulsory miss) into a hit_rate_curve.
type ShadowLRU struct {
	lane  *shadowLane
	curve *stats.HitRateCurve
	stat  *stats.Tracker
}

func NewShadowLRU() *ShadowLRU {
	return &ShadowLRU{lane: newShadowLane(), curve: stats.NewHitRateCurve(), stat: stats.New("shadow_lru")}
}

func (s *ShadowLRU) Stats() *stats.Tracker { return s.stat }
func (s *ShadowLRU) BytesCached() uint64   { return 0 }

func (s *ShadowLRU) Process(r *Request, warmup bool) uint64 {
	if !warmup {
		s.stat.Accesses++
	}
	dist, hit := s.lane.access(r.Kid, uint32(r.Size()))
	if hit {
		if !warmup {
			s.stat.Hits++
			s.curve.Observe(dist)
		}
		return 1
	}
	if !warmup {
		s.stat.MissedBytes += uint64(r.Size())
		s.curve.Miss()
	}
	return ProcMiss
}

func (s *ShadowLRU) DumpStats(w io.Writer) {
	s.stat.Dump(w)
	s.curve.DumpCDF(w)
}

// shadowSlabSize is the per-class distance range ("SLABSIZE") ShadowSLAB
// folds each class's local reuse distance into before offsetting by class
// index, chosen as slabclass.MaxItemSize since no class can ever produce a
// raw in-class distance anywhere near the full object-size ceiling for
// traces of the scale this simulator targets.
const shadowSlabSize = uint64(slabclass.MaxItemSize)

// ShadowSLAB runs ShadowLRU's walk independently per slab class, then
// folds each class's local distance and class index into one approximate
// global distance: class*SLABSIZE + (dist mod SLABSIZE).
type ShadowSLAB struct {
	table slabclass.Table
	lanes map[int]*shadowLane
	curve *stats.HitRateCurve
	stat  *stats.Tracker
}

func NewShadowSLAB(table slabclass.Table) *ShadowSLAB {
	return &ShadowSLAB{
		table: table,
		lanes: make(map[int]*shadowLane),
		curve: stats.NewHitRateCurve(),
		stat:  stats.New("shadow_slab"),
	}
}

func (s *ShadowSLAB) Stats() *stats.Tracker { return s.stat }
func (s *ShadowSLAB) BytesCached() uint64   { return 0 }

func (s *ShadowSLAB) laneFor(class int) *shadowLane {
	l, ok := s.lanes[class]
	if !ok {
		l = newShadowLane()
		s.lanes[class] = l
	}
	return l
}

func (s *ShadowSLAB) Process(r *Request, warmup bool) uint64 {
	if !warmup {
		s.stat.Accesses++
	}
	class, _, ok := s.table.ClassOf(uint32(r.Size()))
	if !ok {
		if !warmup {
			s.stat.MissedBytes += uint64(r.Size())
			s.curve.Miss()
		}
		return ProcMiss
	}
	dist, hit := s.laneFor(class).access(r.Kid, uint32(r.Size()))
	if hit {
		global := uint64(class)*shadowSlabSize + dist%shadowSlabSize
		if !warmup {
			s.stat.Hits++
			s.curve.Observe(global)
		}
		return 1
	}
	if !warmup {
		s.stat.MissedBytes += uint64(r.Size())
		s.curve.Miss()
	}
	return ProcMiss
}

func (s *ShadowSLAB) DumpStats(w io.Writer) {
	s.stat.Dump(w)
	s.curve.DumpCDF(w)
}

// PartSlab is ShadowSLAB's hash-sharded sibling: instead of slab class, an
// item's lane is its hash-partition, and the approximate global distance is
// partition_dist*numPartitions + partition_id.
type PartSlab struct {
	numPartitions int
	lanes         []*shadowLane
	curve         *stats.HitRateCurve
	stat          *stats.Tracker
}

func NewPartSlab(numPartitions int) *PartSlab {
	lanes := make([]*shadowLane, numPartitions)
	for i := range lanes {
		lanes[i] = newShadowLane()
	}
	return &PartSlab{
		numPartitions: numPartitions,
		lanes:         lanes,
		curve:         stats.NewHitRateCurve(),
		stat:          stats.New("part_slab"),
	}
}

func (p *PartSlab) Stats() *stats.Tracker { return p.stat }
func (p *PartSlab) BytesCached() uint64   { return 0 }

func (p *PartSlab) Process(r *Request, warmup bool) uint64 {
	if !warmup {
		p.stat.Accesses++
	}
	part := r.HashKey(p.numPartitions)
	dist, hit := p.lanes[part].access(r.Kid, uint32(r.Size()))
	if hit {
		global := dist*uint64(p.numPartitions) + uint64(part)
		if !warmup {
			p.stat.Hits++
			p.curve.Observe(global)
		}
		return 1
	}
	if !warmup {
		p.stat.MissedBytes += uint64(r.Size())
		p.curve.Miss()
	}
	return ProcMiss
}

func (p *PartSlab) DumpStats(w io.Writer) {
	p.stat.Dump(w)
	p.curve.DumpCDF(w)
}
