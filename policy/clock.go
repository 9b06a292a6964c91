package policy

import (
	"io"

	"github.com/cachesim/cachesim/internal/item"
	"github.com/cachesim/cachesim/internal/stats"
)

// Clock implements the second-chance/CLOCK replacement algorithm: items sit
// in an insertion-ordered ring, each carrying a reference counter seeded at
// startVal until the first eviction and at maxValue from then on, and reset
// to maxValue on every hit; eviction sweeps
// the ring decrementing counters and reclaiming the first item found at
// zero, resuming the sweep where it left off on the next miss.
type Clock struct {
	capacity   uint64
	maxValue   uint32
	startVal   uint32
	arena      *item.Arena
	ring       *item.List
	index      map[uint64]item.Handle
	counter    map[item.Handle]uint32
	hand       item.Handle
	bytesUsed  uint64
	firstEvict bool
	noZeros    uint64
	stat       *stats.Tracker
}

// NewClock constructs a Clock policy with the given capacity and reference
// counter parameters (maxValue defaults to 15, the original's CLOCK_MAX_VALUE;
// cmd/cachesim passes startVal=0 for plain CLOCK).
func NewClock(capacity uint64, maxValue, startVal uint32) *Clock {
	return &Clock{
		capacity: capacity,
		maxValue: maxValue,
		startVal: startVal,
		arena:    item.New(1024),
		ring:     item.NewList(),
		index:    make(map[uint64]item.Handle),
		counter:  make(map[item.Handle]uint32),
		stat:     stats.New("clock"),
	}
}

func (c *Clock) Stats() *stats.Tracker { return c.stat }
func (c *Clock) BytesCached() uint64   { return c.bytesUsed }

func (c *Clock) advanceHand() {
	c.hand = c.ring.Next(c.hand)
	if c.hand == item.NilHandle {
		c.hand = c.ring.Front()
	}
}

func (c *Clock) deleteHandle(h item.Handle) {
	it := c.arena.Get(h)
	c.bytesUsed -= uint64(it.Size)
	delete(c.index, it.Key)
	delete(c.counter, h)
	c.ring.Remove(h)
	c.arena.Free(h)
}

// Process looks up r.Kid: a same-size hit refreshes its counter to
// maxValue; a size-changed hit removes the stale entry (advancing the hand
// first if it pointed at the victim) and falls through to insertion.
func (c *Clock) Process(r *Request, warmup bool) uint64 {
	if !warmup {
		c.stat.Accesses++
	}
	if h, ok := c.index[r.Kid]; ok {
		it := c.arena.Get(h)
		if it.Size == uint32(r.Size()) {
			c.counter[h] = c.maxValue
			if !warmup {
				c.stat.Hits++
			}
			return 1
		}
		if c.hand == h {
			c.advanceHand()
		}
		c.deleteHandle(h)
	}

	for c.bytesUsed+uint64(r.Size()) > c.capacity && c.ring.Len() > 0 {
		c.firstEvict = true
		deleted := false
		start := c.hand
		for pass := 0; pass < 2 && !deleted; pass++ {
			for {
				if c.ring.Len() == 0 {
					break
				}
				if c.counter[c.hand] == 0 {
					victim := c.hand
					c.advanceHand()
					if !warmup {
						c.stat.EvictedBytes += uint64(c.arena.Get(victim).Size)
						c.stat.EvictedItems++
					}
					c.deleteHandle(victim)
					deleted = true
					break
				}
				c.counter[c.hand]--
				c.advanceHand()
				if c.hand == start {
					break
				}
			}
		}
		if !deleted && c.ring.Len() > 0 {
			if !warmup {
				c.noZeros++
			}
			victim := c.hand
			c.advanceHand()
			if !warmup {
				c.stat.EvictedBytes += uint64(c.arena.Get(victim).Size)
				c.stat.EvictedItems++
			}
			c.deleteHandle(victim)
		}
	}

	h := c.arena.Alloc(r.Kid, uint32(r.Size()))
	if c.firstEvict {
		c.counter[h] = c.maxValue
	} else {
		c.counter[h] = c.startVal
	}
	if c.ring.Len() == 0 {
		c.ring.PushFront(h)
		c.hand = h
	} else {
		// Insert immediately before the hand, so the hand continues to
		// point at the same logical successor it did before insertion.
		c.ring.InsertBefore(h, c.hand)
	}
	c.index[r.Kid] = h
	c.bytesUsed += uint64(r.Size())
	if !warmup {
		c.stat.MissedBytes += uint64(r.Size())
	}
	return ProcMiss
}

func (c *Clock) DumpStats(w io.Writer) { c.stat.Dump(w) }
