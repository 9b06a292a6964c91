package policy

import (
	"container/list"
	"io"

	"github.com/cachesim/cachesim/internal/item"
	"github.com/cachesim/cachesim/internal/stats"
)

// rsBlock is one physical flash block: a fixed-capacity bin of item handles.
// Flash never rewrites a block in place — an item that becomes stale while
// resident in a sealed block is merely flagged a ghost; the block is only
// reclaimed (and its live survivors migrated back to DRAM) once its live
// utilization falls below the GC threshold.
type rsBlock struct {
	size  uint64
	items *item.List
}

// rsMeta is the per-item state RamShield's arena slots carry: which list
// the item is linked into, its flashiness score (while resident in DRAM),
// and whether it's a flash ghost awaiting GC.
type rsMeta struct {
	size       uint32
	inDram     bool
	isGhost    bool
	flashiness float64
	dramH      item.Handle
	globalH    item.Handle
	blockElem  *list.Element
}

// RamShield is a block-structured DRAM+flash cache: DRAM is a
// flashiness-ranked tier like FlashCache's, except that flashiness here is
// a plain hit count (+1 per DRAM hit, no time decay), and flash is organized into
// fixed-size blocks instead of an unordered pool. Evicting a flash item
// marks it a ghost rather than physically removing it; a block is only
// garbage-collected — migrating its surviving live items back to DRAM and
// freeing the block — once ghosts have dragged its live utilization below
// the GC threshold. A fresh block is populated by pulling the
// flashiness-hottest DRAM items until it's full or above the allocation
// threshold. Total resident bytes (DRAM+flash) are capped at
// DRAMCap+FlashCap*Threshold, an over-provisioning budget distinct from
// per-block GC/allocation watermarks, which both reuse the same Threshold
// knob as the original simulator does.
type RamShield struct {
	dramCap, flashCap uint64
	blockSize         uint64
	threshold         float64

	arena     *item.Arena
	dram      *item.List // ascending flashiness
	globalLru *item.List
	blocks    *list.List // of *rsBlock, front = most recently allocated

	index map[uint64]item.Handle
	meta  map[item.Handle]*rsMeta

	maxBlocks, numBlocks int
	dramSize, flashSize  uint64
	counter              uint64
	stat                 *stats.Tracker

	variant rsVariant
}

// rsVariant selects one of three block-reclamation strategies, collapsing
// the original's three Policy subclasses (RamShield, RamShield_sel,
// RamShield_fifo) — which differ only in how/when a flash block is
// reclaimed, never in the DRAM or admission path — into one type.
type rsVariant int

const (
	// RSVariantThreshold GCs a block the instant an eviction drops its
	// live utilization below Threshold (the base RamShield).
	RSVariantThreshold rsVariant = iota
	// RSVariantSelect never GCs opportunistically; once every block slot
	// is in use it instead selects the single least-utilized block and
	// GCs that one (RamShield_sel).
	RSVariantSelect
	// RSVariantFIFO never GCs opportunistically either; once every block
	// slot is in use it reclaims the oldest-allocated block regardless
	// of utilization (RamShield_fifo).
	RSVariantFIFO
)

// NewRamShield constructs a RamShield with the given DRAM/flash capacities,
// block size, and over-provisioning/GC-watermark threshold (default 1.0:
// no slack budget, GC at full block size).
func NewRamShield(dramCap, flashCap, blockSize uint64, threshold float64) *RamShield {
	return newRamShield(dramCap, flashCap, blockSize, threshold, RSVariantThreshold)
}

// NewRamShieldSel constructs the select-victim-block variant.
func NewRamShieldSel(dramCap, flashCap, blockSize uint64, threshold float64) *RamShield {
	return newRamShield(dramCap, flashCap, blockSize, threshold, RSVariantSelect)
}

// NewRamShieldFIFO constructs the FIFO-block-reclamation variant.
func NewRamShieldFIFO(dramCap, flashCap, blockSize uint64, threshold float64) *RamShield {
	return newRamShield(dramCap, flashCap, blockSize, threshold, RSVariantFIFO)
}

func newRamShield(dramCap, flashCap, blockSize uint64, threshold float64, variant rsVariant) *RamShield {
	return &RamShield{
		dramCap:   dramCap,
		flashCap:  flashCap,
		blockSize: blockSize,
		threshold: threshold,
		variant:   variant,
		maxBlocks: int(flashCap / blockSize),
		arena:     item.New(1024),
		dram:      item.NewList(),
		globalLru: item.NewList(),
		blocks:    list.New(),
		index:     make(map[uint64]item.Handle),
		meta:      make(map[item.Handle]*rsMeta),
		stat:      stats.New("ram_shield"),
	}
}

func (rs *RamShield) Stats() *stats.Tracker { return rs.stat }
func (rs *RamShield) BytesCached() uint64   { return rs.dramSize + rs.flashSize }

func (rs *RamShield) budget() uint64 {
	return rs.dramCap + uint64(float64(rs.flashCap)*rs.threshold)
}

func (rs *RamShield) dramInsert(h item.Handle, score float64) {
	for cur := rs.dram.Front(); cur != item.NilHandle; cur = rs.dram.Next(cur) {
		if score < rs.meta[cur].flashiness {
			rs.dram.InsertBefore(h, cur)
			return
		}
	}
	rs.dram.PushBack(h)
}

// Process mirrors RamShield::proc.
func (rs *RamShield) Process(r *Request, warmup bool) uint64 {
	if !warmup {
		rs.stat.Accesses++
	}
	rs.counter++

	if h, ok := rs.index[r.Kid]; ok {
		m := rs.meta[h]
		if m.size == uint32(r.Size()) {
			if !warmup {
				rs.stat.Hits++
			}
			if !m.isGhost {
				rs.globalLru.Remove(h)
			}
			rs.globalLru.PushFront(h)

			if m.inDram {
				if !warmup {
					rs.stat.HitsDRAM++
				}
				m.flashiness++
				rs.dram.Remove(h)
				rs.dramInsert(h, m.flashiness)
			} else {
				if !warmup {
					rs.stat.HitsFlash++
				}
				if m.isGhost {
					m.isGhost = false
					blk := m.blockElem.Value.(*rsBlock)
					blk.size += uint64(m.size)
					rs.flashSize += uint64(m.size)
					for rs.dramSize+rs.flashSize > rs.budget() {
						victim := rs.globalLru.Back()
						if victim == item.NilHandle {
							break
						}
						rs.evictItem(victim, warmup)
					}
				}
			}
			return 1
		}
		if !m.inDram {
			blk := m.blockElem.Value.(*rsBlock)
			blk.items.Remove(h)
		}
		if !m.isGhost {
			rs.evictItem(h, warmup)
		}
		if !m.inDram {
			delete(rs.index, r.Kid)
			delete(rs.meta, h)
			rs.arena.Free(h)
		}
	}

	// MISS: insert fresh into DRAM, making room as needed.
	h := rs.arena.Alloc(r.Kid, uint32(r.Size()))
	m := &rsMeta{size: uint32(r.Size()), inDram: true, flashiness: 1}
	rs.meta[h] = m
	rs.index[r.Kid] = h

	for {
		if uint64(r.Size())+rs.dramSize <= rs.dramCap &&
			rs.dramSize+rs.flashSize+uint64(r.Size()) <= rs.budget() {
			rs.dramInsert(h, m.flashiness)
			rs.globalLru.PushFront(h)
			m.globalH = h
			rs.dramSize += uint64(r.Size())
			if !warmup {
				rs.stat.MissedBytes += uint64(r.Size())
			}
			return ProcMiss
		}

		if rs.dramSize+rs.flashSize+uint64(r.Size()) > rs.budget() {
			victim := rs.globalLru.Back()
			if victim == item.NilHandle {
				break
			}
			rs.evictItem(victim, warmup)
			continue
		}
		if rs.numBlocks < rs.maxBlocks {
			rs.allocateBlock(warmup)
			continue
		}
		if rs.variant != RSVariantThreshold {
			// Every block slot is full and DRAM has no room: reclaim one
			// existing block instead of waiting for opportunistic GC.
			rs.gcBlock(rs.chooseBlockToReclaim())
			rs.allocateBlock(warmup)
			continue
		}
		break
	}
	if !warmup {
		rs.stat.MissedBytes += uint64(r.Size())
	}
	return ProcMiss
}

// evictItem drops a DRAM item outright, or marks a flash item a ghost and
// GCs its block if that pushes the block below the utilization watermark.
func (rs *RamShield) evictItem(h item.Handle, warmup bool) {
	m := rs.meta[h]
	rs.globalLru.Remove(h)
	if m.inDram {
		rs.dram.Remove(h)
		rs.dramSize -= uint64(m.size)
		delete(rs.index, rs.keyOf(h))
		delete(rs.meta, h)
		rs.arena.Free(h)
		return
	}
	m.isGhost = true
	blk := m.blockElem.Value.(*rsBlock)
	blk.size -= uint64(m.size)
	rs.flashSize -= uint64(m.size)
	if !warmup {
		rs.stat.EvictedItems++
		rs.stat.EvictedBytes += uint64(m.size)
	}
	if rs.variant == RSVariantThreshold && float64(blk.size)/float64(rs.blockSize) < rs.threshold {
		rs.gcBlock(m.blockElem)
		rs.allocateBlock(warmup)
	}
}

// chooseBlockToReclaim picks the block RSVariantSelect/RSVariantFIFO give up
// when every block slot is full and DRAM still has no room: RSVariantSelect
// scans for the least-utilized block (minimizing live-item loss), FIFO just
// takes the oldest-allocated one regardless of utilization.
func (rs *RamShield) chooseBlockToReclaim() *list.Element {
	if rs.variant == RSVariantFIFO {
		return rs.blocks.Back()
	}
	best := rs.blocks.Back()
	bestSize := best.Value.(*rsBlock).size
	for e := rs.blocks.Front(); e != nil; e = e.Next() {
		if s := e.Value.(*rsBlock).size; s < bestSize {
			best, bestSize = e, s
		}
	}
	return best
}

func (rs *RamShield) keyOf(h item.Handle) uint64 {
	return rs.arena.Get(h).Key
}

// gcBlock migrates every still-live item in victim back to DRAM (with
// fresh flashiness) and deletes ghosted ones outright, then frees the block.
func (rs *RamShield) gcBlock(elem *list.Element) {
	blk := elem.Value.(*rsBlock)
	for h := blk.items.Front(); h != item.NilHandle; {
		next := blk.items.Next(h)
		m := rs.meta[h]
		if m.isGhost {
			delete(rs.index, rs.keyOf(h))
			delete(rs.meta, h)
			rs.arena.Free(h)
		} else {
			m.inDram = true
			m.blockElem = nil
			m.flashiness = 1
			rs.dramInsert(h, m.flashiness)
			rs.dramSize += uint64(m.size)
		}
		h = next
	}
	rs.flashSize -= blk.size
	rs.blocks.Remove(elem)
	rs.numBlocks--
}

// allocateBlock opens a fresh block and pulls flashiness-hottest DRAM items
// (dram's tail) into it until it's full or already above the allocation
// threshold.
func (rs *RamShield) allocateBlock(warmup bool) {
	blk := &rsBlock{items: item.NewList()}
	elem := rs.blocks.PushFront(blk)
	rs.numBlocks++

	cur := rs.dram.Back()
	for cur != item.NilHandle {
		h := cur
		cur = rs.dram.Prev(h) // advance the cursor before any mutation/skip
		m := rs.meta[h]
		if blk.size+uint64(m.size) > rs.blockSize {
			if float64(blk.size)/float64(rs.blockSize) > rs.threshold {
				break
			}
			continue
		}
		rs.dram.Remove(h)
		rs.dramSize -= uint64(m.size)
		m.inDram = false
		m.blockElem = elem
		blk.items.PushFront(h)
		blk.size += uint64(m.size)
	}
	rs.flashSize += blk.size
	if !warmup {
		rs.stat.WritesFlash++
		rs.stat.FlashBytesWritten += rs.blockSize
	}
}

func (rs *RamShield) DumpStats(w io.Writer) { rs.stat.Dump(w) }
