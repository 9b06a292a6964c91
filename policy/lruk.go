package policy

import (
	"io"

	"github.com/cachesim/cachesim/internal/item"
	"github.com/cachesim/cachesim/internal/stats"
)

// LRUK implements the cascading multi-queue replacement scheme: K
// fixed-size LRU queues ranked 0 (coldest) to K-1 (hottest). A fresh miss
// enters queue 0; every hit promotes the item one queue up (or just to the
// front of the top queue, if it's already there). When a queue overflows,
// its tail item demotes into the queue below instead of being evicted
// outright — only overflow out of queue 0 is a true eviction.
type LRUK struct {
	k         uint32
	queueSize uint64
	arena     *item.Arena
	queues    []*item.List
	queueSz   []uint64
	index     map[uint64]item.Handle
	queueOf   map[item.Handle]uint32
	hits      []uint64
	writes    []uint64
	stat      *stats.Tracker
}

// NewLRUK constructs an LRU-K policy with k queues, each capped at
// queueSize bytes (defaults in the original: K=8, queue size 1MiB).
func NewLRUK(k uint32, queueSize uint64) *LRUK {
	l := &LRUK{
		k:         k,
		queueSize: queueSize,
		arena:     item.New(1024),
		queues:    make([]*item.List, k),
		queueSz:   make([]uint64, k),
		index:     make(map[uint64]item.Handle),
		queueOf:   make(map[item.Handle]uint32),
		hits:      make([]uint64, k),
		writes:    make([]uint64, k),
		stat:      stats.New("lruk"),
	}
	for i := range l.queues {
		l.queues[i] = item.NewList()
	}
	return l
}

func (l *LRUK) Stats() *stats.Tracker { return l.stat }
func (l *LRUK) BytesCached() uint64 {
	var sum uint64
	for _, s := range l.queueSz {
		sum += s
	}
	return sum
}

// Process looks up r.Kid: on a same-size hit it removes the item from its
// current queue and re-inserts it one queue higher (insert cascades
// overflow down); on a changed-size hit or a miss it discards the stale
// entry (if any) and inserts fresh at queue 0.
func (l *LRUK) Process(r *Request, warmup bool) uint64 {
	if !warmup {
		l.stat.Accesses++
	}
	if h, ok := l.index[r.Kid]; ok {
		q := l.queueOf[h]
		it := l.arena.Get(h)
		l.queues[q].Remove(h)
		l.queueSz[q] -= uint64(it.Size)
		if it.Size == uint32(r.Size()) {
			if !warmup {
				l.stat.Hits++
				l.hits[q]++
			}
			updateWrites := true
			next := q
			if q+1 != l.k {
				next = q + 1
			} else {
				updateWrites = false
			}
			l.arena.Free(h) // re-alloc fresh handle for the re-insert below
			delete(l.index, r.Kid)
			delete(l.queueOf, h)
			l.insert([]uint64{r.Kid}, []uint32{uint32(r.Size())}, uint64(r.Size()), next, updateWrites, warmup)
			return 1
		}
		delete(l.index, it.Key)
		delete(l.queueOf, h)
		l.arena.Free(h)
	}
	l.insert([]uint64{r.Kid}, []uint32{uint32(r.Size())}, uint64(r.Size()), 0, true, warmup)
	if !warmup {
		l.stat.MissedBytes += uint64(r.Size())
	}
	return ProcMiss
}

// insert places the given keys/sizes into queue q, evicting/demoting from
// the tail until sum+queueSz[q] fits, then recursing the demoted set into
// q-1 (or discarding them for good if q==0).
func (l *LRUK) insert(keys []uint64, sizes []uint32, sum uint64, q uint32, updateWrites, warmup bool) {
	var demotedKeys []uint64
	var demotedSizes []uint32
	var demotedSum uint64
	for sum+l.queueSz[q] > l.queueSize && l.queues[q].Len() > 0 {
		victim := l.queues[q].PopBack()
		vit := l.arena.Get(victim)
		l.queueSz[q] -= uint64(vit.Size)
		if q > 0 {
			demotedKeys = append(demotedKeys, vit.Key)
			demotedSizes = append(demotedSizes, vit.Size)
			demotedSum += uint64(vit.Size)
		} else if !warmup {
			l.stat.EvictedBytes += uint64(vit.Size)
			l.stat.EvictedItems++
		}
		delete(l.index, vit.Key)
		delete(l.queueOf, victim)
		l.arena.Free(victim)
	}
	for i, k := range keys {
		h := l.arena.Alloc(k, sizes[i])
		l.queues[q].PushFront(h)
		l.index[k] = h
		l.queueOf[h] = q
		l.queueSz[q] += uint64(sizes[i])
		if !warmup && updateWrites {
			l.writes[q] += uint64(sizes[i])
		}
	}
	if q > 0 && len(demotedKeys) > 0 {
		l.insert(demotedKeys, demotedSizes, demotedSum, q-1, true, warmup)
	}
}

func (l *LRUK) DumpStats(w io.Writer) {
	l.stat.Dump(w)
}
