package policy

import (
	"io"

	"github.com/cachesim/cachesim/internal/item"
	"github.com/cachesim/cachesim/internal/stats"
)

// LRU is plain least-recently-used replacement over a single capacity pool.
// Grounded on lru.cpp: a hash index from key to its position in an
// intrusive recency chain, promote-to-front on hit, evict-from-tail to make
// room before every insert.
type LRU struct {
	capacity uint64
	arena    *item.Arena
	chain    *item.List
	index    map[uint64]item.Handle
	stat     *stats.Tracker
}

// NewLRU constructs an LRU policy with the given byte capacity.
func NewLRU(capacity uint64) *LRU {
	return &LRU{
		capacity: capacity,
		arena:    item.New(1024),
		chain:    item.NewList(),
		index:    make(map[uint64]item.Handle),
		stat:     stats.New("lru"),
	}
}

func (l *LRU) Stats() *stats.Tracker { return l.stat }
func (l *LRU) BytesCached() uint64   { return l.stat.BytesCached }

// Process looks up r.Kid: a hit with matching size promotes to the front of
// the chain; a hit with a changed size removes the stale entry and falls
// through to insertion; a miss evicts from the tail until there's room,
// then inserts at the front.
func (l *LRU) Process(r *Request, warmup bool) uint64 {
	if !warmup {
		l.stat.Accesses++
	}
	if h, ok := l.index[r.Kid]; ok {
		it := l.arena.Get(h)
		if it.Size == uint32(r.Size()) {
			l.chain.MoveToFront(h)
			if !warmup {
				l.stat.Hits++
			}
			return 1
		}
		l.removeHandle(h)
	}
	l.insert(r, warmup)
	if !warmup {
		l.stat.MissedBytes += uint64(r.Size())
	}
	return ProcMiss
}

func (l *LRU) removeHandle(h item.Handle) {
	it := l.arena.Get(h)
	l.stat.BytesCached -= uint64(it.Size)
	l.chain.Remove(h)
	delete(l.index, it.Key)
	l.arena.Free(h)
}

func (l *LRU) insert(r *Request, warmup bool) {
	for l.stat.BytesCached+uint64(r.Size()) > l.capacity && l.chain.Len() > 0 {
		victim := l.chain.Back()
		it := l.arena.Get(victim)
		l.stat.BytesCached -= uint64(it.Size)
		if !warmup {
			l.stat.EvictedBytes += uint64(it.Size)
			l.stat.EvictedItems++
		}
		l.chain.Remove(victim)
		delete(l.index, it.Key)
		l.arena.Free(victim)
	}
	if l.stat.BytesCached+uint64(r.Size()) <= l.capacity {
		h := l.arena.Alloc(r.Kid, uint32(r.Size()))
		it := l.arena.Get(h)
		it.AppID = r.AppID
		it.FragSz = uint32(r.FragSz)
		l.chain.PushFront(h)
		l.index[r.Kid] = h
		l.stat.BytesCached += uint64(r.Size())
	}
}

// PerAppBytesInUse sums resident bytes (including slab fragmentation) by the
// AppID recorded on each item, used by multi-tenant slab allocators to
// attribute shared per-class LRUs back to individual applications.
func (l *LRU) PerAppBytesInUse() map[uint32]uint64 {
	out := make(map[uint32]uint64)
	for h := l.chain.Front(); h != item.NilHandle; h = l.chain.Next(h) {
		it := l.arena.Get(h)
		out[it.AppID] += uint64(it.Size)
	}
	return out
}

// WouldCauseEviction reports whether admitting r would require evicting at
// least one resident item, used by the slab allocator to decide whether to
// grow a class's backing LRU instead.
func (l *LRU) WouldCauseEviction(r *Request) bool {
	_, resident := l.index[r.Kid]
	return !resident && l.stat.BytesCached+uint64(r.Size()) > l.capacity
}

// Expand grows capacity by delta bytes, mirroring LRU::expand used by the
// slab allocator to grant a class another 1MiB page.
func (l *LRU) Expand(delta uint64) { l.capacity += delta }

// WouldHit reports whether r.Kid is currently resident, without touching
// recency order or stats — a peek used by callers probing placement before
// committing to a Process call.
func (l *LRU) WouldHit(r *Request) bool {
	_, resident := l.index[r.Kid]
	return resident
}

// TryAddTail admits r at the cold end of the chain without evicting
// anything, failing if there isn't already room for it. Used when an item
// is demoted into this LRU from a hotter tier and should not displace any
// of this tier's own residents.
func (l *LRU) TryAddTail(r *Request) bool {
	if _, resident := l.index[r.Kid]; resident {
		return false
	}
	if l.stat.BytesCached+uint64(r.Size()) > l.capacity {
		return false
	}
	h := l.arena.Alloc(r.Kid, uint32(r.Size()))
	it := l.arena.Get(h)
	it.AppID = r.AppID
	it.FragSz = uint32(r.FragSz)
	l.chain.PushBack(h)
	l.index[r.Kid] = h
	l.stat.BytesCached += uint64(r.Size())
	return true
}

// Remove evicts r.Kid outright (used when reclassifying a key into a
// different slab) and returns its stack distance — the summed size of
// every item ahead of it in the chain — or -1 if absent.
func (l *LRU) Remove(r *Request) int64 {
	h, ok := l.index[r.Kid]
	if !ok {
		return -1
	}
	var dist int64
	for cur := l.chain.Front(); cur != h; cur = l.chain.Next(cur) {
		dist += int64(l.arena.Get(cur).Size)
	}
	l.removeHandle(h)
	return dist
}

func (l *LRU) DumpStats(w io.Writer) { l.stat.Dump(w) }
