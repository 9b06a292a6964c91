package policy

import (
	"io"

	"github.com/cachesim/cachesim/internal/item"
	"github.com/cachesim/cachesim/internal/stats"
)

// vcMeta is the per-item state VictimCache tracks: which tier it's resident
// in and its size in bytes.
type vcMeta struct {
	inDram bool
	size   uint32
}

// VictimCache is a two-tier DRAM+flash cache with no flashiness scoring at
// all: DRAM is a plain LRU, and whenever DRAM overflows its true LRU tail is
// demoted straight into flash (itself a plain LRU), evicting flash's own LRU
// tail outright if flash has no room. Unlike FlashCache there is no credit
// gate on flash writes; a hit in either tier moves the item back to DRAM's
// head.
type VictimCache struct {
	dramCap, flashCap uint64
	arena             *item.Arena
	dram              *item.List
	flash             *item.List
	index             map[uint64]item.Handle
	meta              map[item.Handle]*vcMeta
	dramSize          uint64
	flashSize         uint64
	stat              *stats.Tracker
}

// NewVictimCache constructs a VictimCache with the given DRAM and flash
// capacities (defaults in the original: dram=flash=51209600 bytes).
func NewVictimCache(dramCap, flashCap uint64) *VictimCache {
	return &VictimCache{
		dramCap:  dramCap,
		flashCap: flashCap,
		arena:    item.New(1024),
		dram:     item.NewList(),
		flash:    item.NewList(),
		index:    make(map[uint64]item.Handle),
		meta:     make(map[item.Handle]*vcMeta),
		stat:     stats.New("victim_cache"),
	}
}

func (v *VictimCache) Stats() *stats.Tracker { return v.stat }
func (v *VictimCache) BytesCached() uint64   { return v.dramSize + v.flashSize }

// Process mirrors VictimCache::process_request: a same-size hit (from either
// tier) re-promotes the item straight to DRAM's head via insertToDram; a
// resized hit or a miss discards any stale entry and inserts the fresh item
// into DRAM the same way.
func (v *VictimCache) Process(r *Request, warmup bool) uint64 {
	if !warmup {
		v.stat.Accesses++
	}
	hitFlash := false
	if h, ok := v.index[r.Kid]; ok {
		m := v.meta[h]
		if m.inDram {
			v.dram.Remove(h)
			v.dramSize -= uint64(m.size)
		} else {
			v.flash.Remove(h)
			v.flashSize -= uint64(m.size)
			hitFlash = true
		}
		if m.size == uint32(r.Size()) {
			if !warmup {
				v.stat.Hits++
				if hitFlash {
					v.stat.HitsFlash++
				} else {
					v.stat.HitsDRAM++
				}
			}
			v.insertToDram(h, warmup)
			return 1
		}
		delete(v.index, r.Kid)
		delete(v.meta, h)
		v.arena.Free(h)
	}

	h := v.arena.Alloc(r.Kid, uint32(r.Size()))
	m := &vcMeta{size: uint32(r.Size())}
	v.meta[h] = m
	v.index[r.Kid] = h
	v.insertToDram(h, warmup)
	if !warmup {
		v.stat.MissedBytes += uint64(r.Size())
	}
	return ProcMiss
}

// insertToDram makes room in DRAM (demoting DRAM's true LRU tail into flash,
// evicting flash's own LRU tail if flash itself is full) then pushes h to
// DRAM's head.
func (v *VictimCache) insertToDram(h item.Handle, warmup bool) {
	m := v.meta[h]
	for uint64(m.size)+v.dramSize > v.dramCap {
		victim := v.dram.Back()
		if victim == item.NilHandle {
			break
		}
		vm := v.meta[victim]
		v.dram.Remove(victim)
		v.dramSize -= uint64(vm.size)

		for uint64(vm.size)+v.flashSize > v.flashCap {
			fvictim := v.flash.Back()
			if fvictim == item.NilHandle {
				break
			}
			fm := v.meta[fvictim]
			v.flash.Remove(fvictim)
			v.flashSize -= uint64(fm.size)
			key := v.arena.Get(fvictim).Key
			delete(v.index, key)
			delete(v.meta, fvictim)
			v.arena.Free(fvictim)
			if !warmup {
				v.stat.EvictedItems++
				v.stat.EvictedBytes += uint64(fm.size)
			}
		}

		v.flash.PushFront(victim)
		vm.inDram = false
		v.flashSize += uint64(vm.size)
		if !warmup {
			v.stat.WritesFlash++
			v.stat.FlashBytesWritten += uint64(vm.size)
		}
	}
	v.dram.PushFront(h)
	m.inDram = true
	v.dramSize += uint64(m.size)
}

func (v *VictimCache) DumpStats(w io.Writer) { v.stat.Dump(w) }
