package policy

import (
	"io"

	"github.com/cachesim/cachesim/internal/item"
	"github.com/cachesim/cachesim/internal/stats"
)

// fclcMeta is FlashCacheLRUKClock's per-item state: which DRAM queue (if
// resident in DRAM), and the clockJumpStatus reference value the global
// second-chance scan uses to pick an eviction victim across both tiers.
type fclcMeta struct {
	inDram          bool
	queue           uint32
	clockJumpStatus uint32
}

// FlashCacheLRUKClock is FlashCacheLRUK (§4.5) with two changes: eviction
// to make room is driven by a single CLOCK ring spanning every cached item
// in both tiers instead of a recency list, and flash admission is
// restricted to items that have been promoted at least to queue
// minQueueToMove — an item that has not reached that floor is never
// considered for flash, it's simply dropped from DRAM via the clock sweep
// instead. Items are never demoted between queues: a queue that overflows
// on promotion evicts its own tail outright (see promote). A
// hit bumps the item's clockJumpStatus by clockJump (saturating at
// clockMax); a fresh admission seeds it at clockStart.
type FlashCacheLRUKClock struct {
	k              uint32
	queueSize      uint64
	flashCap       uint64
	flashRate      float64
	minQueueToMove uint32
	clockMax       uint32
	clockJump      uint32
	clockStart     uint32

	arena     *item.Arena
	queues    []*item.List
	queueSz   []uint64
	flash     *item.List
	clockRing *item.List // every live item, both tiers, in admission order
	hand      item.Handle
	index     map[uint64]item.Handle
	meta      map[item.Handle]*fclcMeta

	flashSize     uint64
	credits       float64
	lastCreditUpd float64
	stat          *stats.Tracker
}

// NewFlashCacheLRUKClock constructs the clock-governed variant. minQueueToMove
// is the DRAM queue index (0-based) an item must have reached before it's
// eligible for flash admission at all (default 6, MIN_QUEUE_TO_MOVE_TO_FLASH).
func NewFlashCacheLRUKClock(k uint32, queueSize, flashCap uint64, flashRate float64, minQueueToMove, clockMax, clockJump, clockStart uint32) *FlashCacheLRUKClock {
	f := &FlashCacheLRUKClock{
		k:              k,
		queueSize:      queueSize,
		flashCap:       flashCap,
		flashRate:      flashRate,
		minQueueToMove: minQueueToMove,
		clockMax:       clockMax,
		clockJump:      clockJump,
		clockStart:     clockStart,
		arena:          item.New(1024),
		queues:         make([]*item.List, k),
		queueSz:        make([]uint64, k),
		flash:          item.NewList(),
		clockRing:      item.NewList(),
		index:          make(map[uint64]item.Handle),
		meta:           make(map[item.Handle]*fclcMeta),
		stat:           stats.New("flash_cache_lruk_clock"),
	}
	for i := range f.queues {
		f.queues[i] = item.NewList()
	}
	return f
}

func (f *FlashCacheLRUKClock) Stats() *stats.Tracker { return f.stat }
func (f *FlashCacheLRUKClock) BytesCached() uint64 {
	var b uint64
	for _, s := range f.queueSz {
		b += s
	}
	return b + f.flashSize
}

func (f *FlashCacheLRUKClock) updateCredits(now float64) {
	f.credits += (now - f.lastCreditUpd) * f.flashRate
	f.lastCreditUpd = now
}

func (f *FlashCacheLRUKClock) advanceHand() {
	f.hand = f.clockRing.Next(f.hand)
	if f.hand == item.NilHandle {
		f.hand = f.clockRing.Front()
	}
}

// clockEvict runs one standard second-chance sweep starting at the hand,
// decrementing every entry it passes and reclaiming the first one found at
// clockJumpStatus==0, forcing eviction at the hand if a full lap finds none.
func (f *FlashCacheLRUKClock) clockEvict() item.Handle {
	if f.clockRing.Len() == 0 {
		return item.NilHandle
	}
	start := f.hand
	for {
		if f.meta[f.hand].clockJumpStatus == 0 {
			victim := f.hand
			f.advanceHand()
			return victim
		}
		f.meta[f.hand].clockJumpStatus--
		f.advanceHand()
		if f.hand == start {
			victim := f.hand
			f.advanceHand()
			return victim
		}
	}
}

func (f *FlashCacheLRUKClock) unlinkAll(h item.Handle) {
	it := f.arena.Get(h)
	m := f.meta[h]
	if f.hand == h {
		f.advanceHand()
	}
	f.clockRing.Remove(h)
	if m.inDram {
		f.queues[m.queue].Remove(h)
		f.queueSz[m.queue] -= uint64(it.Size)
	} else {
		f.flash.Remove(h)
		f.flashSize -= uint64(it.Size)
	}
	delete(f.index, it.Key)
	delete(f.meta, h)
	f.arena.Free(h)
}

func (f *FlashCacheLRUKClock) evict(h item.Handle, warmup bool) {
	size := uint64(f.arena.Get(h).Size)
	f.unlinkAll(h)
	if !warmup {
		f.stat.EvictedItems++
		f.stat.EvictedBytes += size
	}
}

// flashCandidate returns the head of the highest-indexed non-empty DRAM
// queue at or above minQueueToMove, or NilHandle if none qualifies.
func (f *FlashCacheLRUKClock) flashCandidate() item.Handle {
	for q := int(f.k) - 1; q >= int(f.minQueueToMove); q-- {
		if h := f.queues[q].Front(); h != item.NilHandle {
			return h
		}
	}
	return item.NilHandle
}

// makeRoom admits size bytes of new DRAM item by evicting via the clock
// sweep, first preferring to migrate an eligible hot DRAM item into flash
// (spending write credit, clock-evicting flash's own contents if full)
// rather than dropping it, and only falling back to an unconditional
// clock-driven drop once no eligible candidate exists.
func (f *FlashCacheLRUKClock) makeRoom(size uint64, warmup bool) {
	total := func() uint64 {
		var b uint64
		for _, s := range f.queueSz {
			b += s
		}
		return b + f.flashSize
	}
	budget := f.flashCap + f.queueSize*uint64(f.k)
	for total()+size > budget {
		cand := f.flashCandidate()
		if cand == item.NilHandle {
			victim := f.clockEvict()
			if victim == item.NilHandle {
				return
			}
			f.evict(victim, warmup)
			continue
		}
		csize := uint64(f.arena.Get(cand).Size)
		if f.credits < float64(csize) {
			if !warmup {
				f.stat.CreditLimitEvents++
			}
			f.evict(cand, warmup)
			continue
		}
		for f.flashSize+csize > f.flashCap {
			victim := f.clockEvict()
			if victim == item.NilHandle || victim == cand {
				break
			}
			f.evict(victim, warmup)
		}
		if f.flashSize+csize > f.flashCap {
			f.evict(cand, warmup)
			continue
		}
		m := f.meta[cand]
		f.queues[m.queue].Remove(cand)
		f.queueSz[m.queue] -= csize
		m.inDram = false
		f.flash.PushFront(cand)
		f.flashSize += csize
		f.credits -= float64(csize)
		if !warmup {
			f.stat.WritesFlash++
			f.stat.FlashBytesWritten += csize
		}
	}
}

// promote removes h from its current DRAM queue and reinserts it one level
// up (or at the same top level), evicting its destination queue's own tail
// via the clock sweep if that queue is over budget — this is a pure
// same-tier reshuffle, it never touches flash.
func (f *FlashCacheLRUKClock) promote(h item.Handle, warmup bool) {
	it := f.arena.Get(h)
	m := f.meta[h]
	f.queues[m.queue].Remove(h)
	f.queueSz[m.queue] -= uint64(it.Size)
	if m.queue+1 < f.k {
		m.queue++
	}
	for f.queueSz[m.queue]+uint64(it.Size) > f.queueSize && f.queues[m.queue].Len() > 0 {
		victim := f.queues[m.queue].Back()
		f.evict(victim, warmup)
	}
	f.queues[m.queue].PushFront(h)
	f.queueSz[m.queue] += uint64(it.Size)
}

func (f *FlashCacheLRUKClock) bump(m *fclcMeta) {
	m.clockJumpStatus += f.clockJump
	if m.clockJumpStatus > f.clockMax {
		m.clockJumpStatus = f.clockMax
	}
}

// Process mirrors FlashCacheLrukClk::process_request: a hit bumps the
// item's clock status and, if DRAM-resident, promotes it one queue; a
// resized hit or a miss discards any stale entry, clock-evicts (preferring
// to migrate an eligible hot DRAM item into flash over dropping it) until
// there's room, then admits fresh at queue 0.
func (f *FlashCacheLRUKClock) Process(r *Request, warmup bool) uint64 {
	if !warmup {
		f.stat.Accesses++
	}
	f.updateCredits(r.Time)

	if h, ok := f.index[r.Kid]; ok {
		it := f.arena.Get(h)
		m := f.meta[h]
		if it.Size == uint32(r.Size()) {
			if !warmup {
				f.stat.Hits++
			}
			f.bump(m)
			if m.inDram {
				if !warmup {
					f.stat.HitsDRAM++
				}
				f.promote(h, warmup)
			} else if !warmup {
				f.stat.HitsFlash++
			}
			return 1
		}
		f.unlinkAll(h)
	}

	f.makeRoom(uint64(r.Size()), warmup)

	h := f.arena.Alloc(r.Kid, uint32(r.Size()))
	m := &fclcMeta{inDram: true, clockJumpStatus: f.clockStart}
	f.meta[h] = m
	f.index[r.Kid] = h
	if f.clockRing.Len() == 0 {
		f.clockRing.PushFront(h)
		f.hand = h
	} else {
		f.clockRing.InsertBefore(h, f.hand)
	}
	f.queues[0].PushFront(h)
	f.queueSz[0] += uint64(r.Size())
	if !warmup {
		f.stat.MissedBytes += uint64(r.Size())
	}
	return ProcMiss
}

func (f *FlashCacheLRUKClock) DumpStats(w io.Writer) { f.stat.Dump(w) }
