package policy

import (
	"io"
	"math/rand"
	"sort"

	"github.com/cachesim/cachesim/internal/item"
	"github.com/cachesim/cachesim/internal/policyerr"
	"github.com/cachesim/cachesim/internal/stats"
)

// CleaningPolicy selects which segments an LSM cleaning pass reclaims from.
type CleaningPolicy int

const (
	CleanRandom CleaningPolicy = iota
	CleanOldestItem
	CleanRoundRobin
	CleanRumble
)

// lsmMeta is an item's log-structured bookkeeping: its own request copy
// (refreshed on every promotion so relocation during cleaning always has
// an up-to-date size/time) and the segment it currently lives in.
type lsmMeta struct {
	req   Request
	segID int
}

// lsmSegment is one fixed-size append-only log segment: items are pushed
// to the front on admission or promotion, so the queue's front-to-back
// order is always most- to least-recently-touched within the segment.
type lsmSegment struct {
	lowTimestamp float64
	filledBytes  uint64
	accessCount  uint64
	queue        *item.List
}

// LSM is a log-structured-merge-style cache: capacity is divided into
// fixed-size segments; new (and resized) items land in the single open
// ("head") segment, while a same-size hit only moves the item to the front
// of the segment it already lives in; once the head segment is full a fresh one is
// rolled in, and once free segments run low a cleaning pass picks
// cleaningWidth victim segments (by one of four policies), merges their
// still-live items by recency into fresh destination segments, and evicts
// whatever doesn't fit. It is a diagnostic/shadow structure in the sense
// that BytesCached always reports 0 — its segments' occupancy is internal
// bookkeeping, not a reported cache size, per spec.md §9 Open Question 3.
type LSM struct {
	segmentSize   uint64
	cleaningWidth int
	cleaner       CleaningPolicy

	arena    *item.Arena
	segments []*lsmSegment
	free     int
	head     int
	index    map[uint64]item.Handle

	rng            *rand.Rand
	roundRobinNext int

	stat *stats.Tracker
}

// NewLSM constructs an LSM cache of globalMem bytes divided into
// globalMem/segmentSize fixed segments, reclaiming cleaningWidth segments
// at a time under the given cleaning policy. Per spec.md §5, the cleaning
// PRNG is seeded to 0 for reproducibility.
func NewLSM(globalMem, segmentSize uint64, cleaningWidth int, cleaner CleaningPolicy) *LSM {
	numSegments := int(globalMem / segmentSize)
	l := &LSM{
		segmentSize:   segmentSize,
		cleaningWidth: cleaningWidth,
		cleaner:       cleaner,
		arena:         item.New(1024),
		segments:      make([]*lsmSegment, numSegments),
		free:          numSegments,
		head:          -1,
		index:         make(map[uint64]item.Handle),
		rng:           rand.New(rand.NewSource(0)),
		stat:          stats.New("lsm"),
	}
	l.rollover(0)
	return l
}

func (l *LSM) Stats() *stats.Tracker { return l.stat }

// BytesCached always reports 0: LSM is a shadow/diagnostic structure, not
// a real cache, per spec.md §9 Open Question 3.
func (l *LSM) BytesCached() uint64 { return 0 }

func (l *LSM) metaOf(h item.Handle) *lsmMeta { return l.arena.Get(h).Meta.(*lsmMeta) }

func (l *LSM) fatal(invariant string, req *Request) {
	if req == nil {
		panic(policyerr.Wrap("lsm", invariant, 0, 0))
	}
	panic(policyerr.Wrap("lsm", invariant, req.Time, req.Kid))
}

// rollover instantiates the next free segment as the new open ("head")
// segment, triggering a cleaning pass first if that leaves too few free
// segments in reserve.
func (l *LSM) rollover(timestamp float64) {
	for i, seg := range l.segments {
		if seg != nil {
			continue
		}
		l.segments[i] = &lsmSegment{lowTimestamp: timestamp, queue: item.NewList()}
		l.free--
		l.head = i
		if l.free < l.cleaningWidth {
			l.clean()
		}
		return
	}
	l.fatal("rollover found no free segment", nil)
}

func (l *LSM) liveNonHead() []int {
	ids := make([]int, 0, len(l.segments))
	for i, seg := range l.segments {
		if seg == nil || i == l.head {
			continue
		}
		ids = append(ids, i)
	}
	return ids
}

func (l *LSM) resetAccessCounts() {
	for _, seg := range l.segments {
		if seg != nil {
			seg.accessCount = 0
		}
	}
}

func (l *LSM) chooseCleaningSources() []int {
	switch l.cleaner {
	case CleanOldestItem:
		return l.sourcesOldestItem()
	case CleanRoundRobin:
		return l.sourcesRoundRobin()
	case CleanRumble:
		return l.sourcesRumble()
	default:
		return l.sourcesRandom()
	}
}

func (l *LSM) sourcesRandom() []int {
	ids := l.liveNonHead()
	if len(ids) < l.cleaningWidth {
		l.fatal("not enough segments available for random cleaning", nil)
	}
	l.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids[:l.cleaningWidth]
}

func (l *LSM) sourcesOldestItem() []int {
	ids := l.liveNonHead()
	if len(ids) < l.cleaningWidth {
		l.fatal("not enough segments available for oldest-item cleaning", nil)
	}
	sort.Slice(ids, func(i, j int) bool {
		return l.segments[ids[i]].lowTimestamp < l.segments[ids[j]].lowTimestamp
	})
	srcs := ids[:l.cleaningWidth]
	l.resetAccessCounts()
	return srcs
}

func (l *LSM) sourcesRumble() []int {
	ids := l.liveNonHead()
	if len(ids) < l.cleaningWidth {
		l.fatal("not enough segments available for rumble cleaning", nil)
	}
	sort.Slice(ids, func(i, j int) bool {
		return l.segments[ids[i]].accessCount < l.segments[ids[j]].accessCount
	})
	srcs := ids[:l.cleaningWidth]
	l.resetAccessCounts()
	return srcs
}

func (l *LSM) sourcesRoundRobin() []int {
	srcs := make([]int, 0, l.cleaningWidth)
	n := len(l.segments)
	for tries := 0; len(srcs) < l.cleaningWidth; tries++ {
		if tries > n*4 {
			l.fatal("round-robin cleaning could not find enough segments", nil)
		}
		idx := l.roundRobinNext
		seg := l.segments[idx]
		l.roundRobinNext = (idx + 1) % n
		if seg == nil || idx == l.head {
			continue
		}
		srcs = append(srcs, idx)
	}
	return srcs
}

func (l *LSM) chooseCleaningDestination() int {
	for i, seg := range l.segments {
		if seg != nil {
			continue
		}
		l.segments[i] = &lsmSegment{queue: item.NewList()}
		l.free--
		return i
	}
	l.fatal("no free segment available as cleaning destination", nil)
	return -1
}

// clean reclaims cleaningWidth victim segments: their still-live items are
// merged, newest first, into a chain of fresh destination segments (one
// more is opened whenever the current one fills), and anything left over
// once the destination chain is exhausted is evicted outright.
func (l *LSM) clean() {
	srcs := l.chooseCleaningSources()
	cursors := make([]item.Handle, len(srcs))
	for i, s := range srcs {
		cursors[i] = l.segments[s].queue.Front()
	}

	dstID := l.chooseCleaningDestination()
	dstOpened := 1
	lastCounted := false

	for {
		best := -1
		var bestH item.Handle
		var bestTime float64
		for i, h := range cursors {
			if h == item.NilHandle {
				continue
			}
			t := l.metaOf(h).req.Time
			if best == -1 || t > bestTime {
				best, bestH, bestTime = i, h, t
			}
		}
		if best == -1 {
			break
		}

		m := l.metaOf(bestH)
		next := l.segments[srcs[best]].queue.Next(bestH)
		cursors[best] = next

		curH, live := l.index[m.req.Kid]
		if !live || curH != bestH {
			continue
		}

		dst := l.segments[dstID]
		if dst.filledBytes+uint64(m.req.Size()) > l.segmentSize {
			l.stat.CleanedExtFragBytes += l.segmentSize - dst.filledBytes
			l.stat.CleanedGeneratedSegs++
			if dstOpened == l.cleaningWidth-1 {
				lastCounted = true
				break
			}
			dstID = l.chooseCleaningDestination()
			dst = l.segments[dstID]
			dstOpened++
		}

		nh := l.arena.Alloc(m.req.Kid, uint32(m.req.Size()))
		l.arena.Get(nh).Meta = &lsmMeta{req: m.req, segID: dstID}
		dst.queue.PushBack(nh)
		l.index[m.req.Kid] = nh
		dst.filledBytes += uint64(m.req.Size())
		dst.lowTimestamp = m.req.Time
	}
	if !lastCounted {
		last := l.segments[dstID]
		l.stat.CleanedExtFragBytes += l.segmentSize - last.filledBytes
		l.stat.CleanedGeneratedSegs++
	}

	for _, s := range srcs {
		seg := l.segments[s]
		for h := seg.queue.Front(); h != item.NilHandle; h = seg.queue.Next(h) {
			m := l.metaOf(h)
			if curH, ok := l.index[m.req.Kid]; ok && curH == h {
				delete(l.index, m.req.Kid)
				l.stat.EvictedItems++
				l.stat.EvictedBytes += uint64(m.req.Size())
			}
		}
	}

	for _, s := range srcs {
		seg := l.segments[s]
		for h := seg.queue.Front(); h != item.NilHandle; {
			next := seg.queue.Next(h)
			l.arena.Free(h)
			h = next
		}
		l.segments[s] = nil
		l.free++
	}
}

// Process mirrors lsm::process_request: a same-size hit promotes the item
// to the front of its own segment; a resized hit is still counted as a
// hit but re-admits the item into the head segment (its stale copy is
// swept, uncounted, the next time its old segment is cleaned); a genuine
// miss rolls the head segment over first if the new item wouldn't fit.
func (l *LSM) Process(r *Request, warmup bool) uint64 {
	if !warmup {
		l.stat.Accesses++
	}

	resized := false
	if h, ok := l.index[r.Kid]; ok {
		m := l.metaOf(h)
		oldSeg := l.segments[m.segID]
		if m.req.Size() == r.Size() {
			if !warmup {
				l.stat.Hits++
			}
			oldSeg.queue.Remove(h)
			oldSeg.queue.PushFront(h)
			m.req = *r
			oldSeg.accessCount++
			return 1
		}
		if !warmup {
			l.stat.Hits++
		}
		resized = true
	}

	if l.head == -1 || l.segments[l.head].filledBytes+uint64(r.Size()) > l.segmentSize {
		l.rollover(r.Time)
	}
	headSeg := l.segments[l.head]
	h := l.arena.Alloc(r.Kid, uint32(r.Size()))
	l.arena.Get(h).Meta = &lsmMeta{req: *r, segID: l.head}
	headSeg.queue.PushFront(h)
	l.index[r.Kid] = h
	headSeg.filledBytes += uint64(r.Size())
	headSeg.accessCount++

	if resized {
		return 1
	}
	if !warmup {
		l.stat.MissedBytes += uint64(r.Size())
	}
	return ProcMiss
}

func (l *LSM) DumpStats(w io.Writer) { l.stat.Dump(w) }
