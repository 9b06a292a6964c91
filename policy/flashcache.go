package policy

import (
	"io"
	"math"

	"github.com/cachesim/cachesim/internal/admission"
	"github.com/cachesim/cachesim/internal/item"
	"github.com/cachesim/cachesim/internal/stats"
)

// flashMeta is the per-item bookkeeping FlashCache's arena slots carry in
// Item.Meta: the flashiness score and which of the four intrusive lists the
// item currently sits in.
type flashMeta struct {
	flashiness   float64
	inDram       bool
	dramHandle   item.Handle // position in the flashiness-sorted dram list
	dramLruH     item.Handle // position in the dram recency list
	flashH       item.Handle // position in the flash list
	globalH      item.Handle // position in the global recency list
	lastAccessed uint64      // logical trace-time (counter) of last access
}

// FlashCache is a two-tier DRAM+flash cache. DRAM items are kept in both a
// recency list (dramLru) and a flashiness-sorted list (dram, ascending);
// eviction from DRAM first tries to promote the single most "flash-worthy"
// item (dram's tail) into flash, spending flash-write credit accrued at a
// fixed FLASH_RATE bytes/sec of trace time; only once credit is exhausted
// does it fall back to evicting DRAM's true LRU tail. Flash itself never
// moves items once written — it only drops them, via the global recency
// list, when space is needed.
type FlashCache struct {
	dramCap, flashCap uint64
	flashRate         float64
	initialCredit     float64
	k                 float64 // flashiness decay time constant
	arena             *item.Arena
	dram              *item.List // ascending flashiness
	dramLru           *item.List
	flash             *item.List
	globalLru         *item.List
	index             map[uint64]item.Handle
	meta              map[item.Handle]*flashMeta
	credits           float64
	lastCreditUpdate  float64
	dramSize          uint64
	flashSize         uint64
	counter           uint64
	stat              *stats.Tracker
	seen              *admission.Doorkeeper
}

// NewFlashCache constructs a FlashCache with the given DRAM/flash
// capacities, flash write rate (bytes/sec of trace time), initial per-item
// credit, and flashiness decay constant K (defaults: dram=flash=51209600,
// flashRate=1MiB/s, initialCredit=1, k=1).
func NewFlashCache(dramCap, flashCap uint64, flashRate, initialCredit, k float64) *FlashCache {
	return &FlashCache{
		dramCap:       dramCap,
		flashCap:      flashCap,
		flashRate:     flashRate,
		initialCredit: initialCredit,
		k:             k,
		arena:         item.New(1024),
		dram:          item.NewList(),
		dramLru:       item.NewList(),
		flash:         item.NewList(),
		globalLru:     item.NewList(),
		index:         make(map[uint64]item.Handle),
		meta:          make(map[item.Handle]*flashMeta),
		stat:          stats.New("flash_cache"),
		seen:          admission.New(uint(dramCap + flashCap)),
	}
}

func (f *FlashCache) Stats() *stats.Tracker { return f.stat }
func (f *FlashCache) BytesCached() uint64   { return f.dramSize + f.flashSize }

func (f *FlashCache) updateCredits(now float64) {
	f.credits += (now - f.lastCreditUpdate) * f.flashRate
}

// updateDramFlashiness decays every DRAM item's flashiness score toward
// zero by a fixed per-request factor, same cost (a full scan) the original
// pays on every process_request call.
func (f *FlashCache) updateDramFlashiness() {
	mul := math.Exp(-1 / f.k)
	for h := f.dram.Front(); h != item.NilHandle; h = f.dram.Next(h) {
		f.meta[h].flashiness *= mul
	}
}

func (f *FlashCache) hitCredit(m *flashMeta) float64 {
	diff := float64(f.counter) - float64(m.lastAccessed)
	if diff <= 0 {
		diff = 1
	}
	mul := math.Exp(-diff / f.k)
	return (1 - mul) * (1 / diff)
}

// dramInsert walks the flashiness-sorted list from the front looking for
// the first entry with a strictly greater score, and splices h in just
// before it (or at the tail if h's score is the largest seen).
func (f *FlashCache) dramInsert(h item.Handle, score float64) {
	for cur := f.dram.Front(); cur != item.NilHandle; cur = f.dram.Next(cur) {
		if score < f.meta[cur].flashiness {
			f.dram.InsertBefore(h, cur)
			return
		}
	}
	f.dram.PushBack(h)
}

// Process mirrors FlashCache::process_request: credit accrual and
// flashiness decay happen unconditionally on every request, then a hit
// refreshes the global/DRAM recency position (and DRAM flashiness), while a
// miss (or a resized hit) loops inserting into DRAM, promoting the hottest
// DRAM item into flash, and evicting to make room, until the new item fits.
func (f *FlashCache) Process(r *Request, warmup bool) uint64 {
	if !warmup {
		f.stat.Accesses++
	}
	f.counter++
	now := r.Time
	f.updateCredits(now)
	f.updateDramFlashiness()

	if h, ok := f.index[r.Kid]; ok {
		m := f.meta[h]
		it := f.arena.Get(h)
		if it.Size == uint32(r.Size()) {
			if !warmup {
				f.stat.Hits++
			}
			f.globalLru.MoveToFront(h)
			if m.inDram {
				if !warmup {
					f.stat.HitsDRAM++
				}
				f.dramLru.MoveToFront(h)
				m.flashiness += f.hitCredit(m)
				f.dram.Remove(h)
				f.dramInsert(h, m.flashiness)
			} else if !warmup {
				f.stat.HitsFlash++
			}
			m.lastAccessed = f.counter
			f.lastCreditUpdate = now
			return 1
		}
		f.removeAll(h)
	}

	h := f.arena.Alloc(r.Kid, uint32(r.Size()))
	if !warmup && f.seen.Seen(r.Kid) {
		// Key has (probably) been admitted before: diagnostic only,
		// per the original's commented-out RecItem accounting (§9 open
		// question 2) — never feeds back into the flashiness formula.
		f.stat.ReAdmissions++
	}
	m := &flashMeta{flashiness: f.initialCredit, inDram: true, lastAccessed: f.counter}
	f.meta[h] = m
	f.index[r.Kid] = h

	for {
		if uint64(r.Size())+f.dramSize <= f.dramCap {
			f.dramInsert(h, m.flashiness)
			f.dramLru.PushFront(h)
			f.globalLru.PushFront(h)
			f.dramSize += uint64(r.Size())
			f.lastCreditUpdate = now
			if !warmup {
				f.stat.MissedBytes += uint64(r.Size())
			}
			return ProcMiss
		}

		mfu := f.dram.Back()
		mfuMeta := f.meta[mfu]
		mfuSize := uint64(f.arena.Get(mfu).Size)

		if f.credits < float64(mfuSize) {
			if !warmup {
				f.stat.CreditLimitEvents++
			}
			for uint64(r.Size())+f.dramSize > f.dramCap {
				victim := f.dramLru.Back()
				if victim == item.NilHandle {
					break
				}
				f.evictDramVictim(victim)
			}
			continue
		}

		if f.flashSize+mfuSize <= f.flashCap {
			mfuMeta.inDram = false
			f.dram.Remove(mfu)
			f.dramLru.Remove(mfu)
			f.flash.PushFront(mfu)
			f.credits -= float64(mfuSize)
			f.dramSize -= mfuSize
			f.flashSize += mfuSize
			if !warmup {
				f.stat.WritesFlash++
				f.stat.FlashBytesWritten += mfuSize
			}
		} else {
			victim := f.globalLru.Back()
			if victim == item.NilHandle {
				break
			}
			f.evictGlobalVictim(victim)
		}
	}

	if !warmup {
		f.stat.MissedBytes += uint64(r.Size())
	}
	return ProcMiss
}

func (f *FlashCache) evictDramVictim(h item.Handle) {
	it := f.arena.Get(h)
	f.dram.Remove(h)
	f.dramLru.Remove(h)
	f.globalLru.Remove(h)
	f.dramSize -= uint64(it.Size)
	delete(f.index, it.Key)
	delete(f.meta, h)
	f.arena.Free(h)
}

func (f *FlashCache) evictGlobalVictim(h item.Handle) {
	it := f.arena.Get(h)
	m := f.meta[h]
	f.globalLru.Remove(h)
	if m.inDram {
		f.dram.Remove(h)
		f.dramLru.Remove(h)
		f.dramSize -= uint64(it.Size)
	} else {
		f.flash.Remove(h)
		f.flashSize -= uint64(it.Size)
	}
	delete(f.index, it.Key)
	delete(f.meta, h)
	f.arena.Free(h)
}

// removeAll drops h (a stale, resized entry) from every list it belongs to.
func (f *FlashCache) removeAll(h item.Handle) {
	it := f.arena.Get(h)
	m := f.meta[h]
	f.globalLru.Remove(h)
	if m.inDram {
		f.dram.Remove(h)
		f.dramLru.Remove(h)
		f.dramSize -= uint64(it.Size)
	} else {
		f.flash.Remove(h)
		f.flashSize -= uint64(it.Size)
	}
	delete(f.index, it.Key)
	delete(f.meta, h)
	f.arena.Free(h)
}

func (f *FlashCache) DumpStats(w io.Writer) { f.stat.Dump(w) }
