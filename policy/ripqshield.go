package policy

import (
	"io"

	"github.com/cachesim/cachesim/internal/item"
	"github.com/cachesim/cachesim/internal/stats"
)

// dsMeta is a DRAM-resident item's RIPQShield bookkeeping: its size (RIPQ's
// own ripqMeta.req already carries this for flash-resident items) and the
// DRAM section it currently occupies.
type dsMeta struct {
	req     Request
	section int
}

// RIPQShield adds a DRAM tier ahead of a plain RIPQ (§4.9): the DRAM side is
// itself a sectioned queue of numDSections fixed-byte-budget tiers, section
// 0 closest to flash. New items enter the DRAM tail section
// (numDSections-1); a hit in section 0 graduates the item straight into
// flash's coldest section; a hit anywhere else in DRAM promotes it one
// section toward 0. Capacity pressure in DRAM cascades the opposite way
// from promotion — section i's overflow spills into section i+1 — and an
// item that overflows out of the tail section graduates into flash exactly
// as a section-0 hit would, rather than being dropped; DRAM never drops an
// item outright, it only ever forwards it on to flash.
//
// On the flash side, RIPQShield installs a drop hook on the embedded RIPQ
// so that an item a block-eviction would otherwise discard (virtual block
// == physical block, not a ghost) is instead given a second chance: it's
// reinserted into DRAM section 0, per spec.md §4.10.
type RIPQShield struct {
	flash *RIPQ

	numD         int
	dsectionSize uint64
	dramArena    *item.Arena
	dsections    []*item.List
	dsectionSz   []uint64
	dramIndex    map[uint64]item.Handle
	dramMeta     map[item.Handle]*dsMeta

	warmup bool
	stat   *stats.Tracker
}

// NewRIPQShield constructs a RIPQShield with the given flash block size,
// flash section count, total flash capacity, DRAM section count, and
// per-DRAM-section byte budget.
func NewRIPQShield(blockSize uint64, numSections int, flashSize uint64, numDSections int, dsectionSize uint64) *RIPQShield {
	rs := &RIPQShield{
		flash:        NewRIPQ(blockSize, numSections, flashSize),
		numD:         numDSections,
		dsectionSize: dsectionSize,
		dramArena:    item.New(1024),
		dsections:    make([]*item.List, numDSections),
		dsectionSz:   make([]uint64, numDSections),
		dramIndex:    make(map[uint64]item.Handle),
		dramMeta:     make(map[item.Handle]*dsMeta),
		stat:         stats.New("ripq_shield"),
	}
	for i := range rs.dsections {
		rs.dsections[i] = item.NewList()
	}
	rs.flash.dropHook = rs.rescue
	return rs
}

func (rs *RIPQShield) Stats() *stats.Tracker { return rs.stat }
func (rs *RIPQShield) BytesCached() uint64 {
	var b uint64
	for _, s := range rs.dsectionSz {
		b += s
	}
	return b + rs.flash.BytesCached()
}

// rescue is installed as the embedded RIPQ's dropHook: instead of letting a
// block-evicted, non-ghost item vanish, it re-enters DRAM at section 0.
func (rs *RIPQShield) rescue(req *Request) bool {
	rs.admitDram(req, 0, rs.warmup)
	return true
}

func (rs *RIPQShield) dramRemoveHandle(h item.Handle) {
	m := rs.dramMeta[h]
	rs.dsections[m.section].Remove(h)
	rs.dsectionSz[m.section] -= uint64(m.req.Size())
	delete(rs.dramIndex, m.req.Kid)
	delete(rs.dramMeta, h)
	rs.dramArena.Free(h)
}

// admitDram inserts req fresh into DRAM section sectionID (front), then
// balances every section from sectionID upward so none exceeds its budget,
// and finally drains the tail section into flash if it's still over
// budget after balancing.
func (rs *RIPQShield) admitDram(req *Request, sectionID int, warmup bool) {
	h := rs.dramArena.Alloc(req.Kid, uint32(req.Size()))
	rs.dramMeta[h] = &dsMeta{req: *req, section: sectionID}
	rs.dramIndex[req.Kid] = h
	rs.dsections[sectionID].PushFront(h)
	rs.dsectionSz[sectionID] += uint64(req.Size())

	rs.balanceDram(sectionID)
	rs.drainDramTail(warmup)
}

// balanceDram cascades overflow from section start upward: whenever a
// section exceeds its budget, its tail item spills into the front of the
// next (colder) section.
func (rs *RIPQShield) balanceDram(start int) {
	for i := start; i < rs.numD-1; i++ {
		for rs.dsectionSz[i] > rs.dsectionSize {
			h := rs.dsections[i].PopBack()
			if h == item.NilHandle {
				break
			}
			m := rs.dramMeta[h]
			rs.dsectionSz[i] -= uint64(m.req.Size())
			m.section = i + 1
			rs.dsections[i+1].PushFront(h)
			rs.dsectionSz[i+1] += uint64(m.req.Size())
		}
	}
}

// drainDramTail graduates items out of the coldest DRAM section into
// flash's coldest section whenever that section is still over budget once
// balancing has run.
func (rs *RIPQShield) drainDramTail(warmup bool) {
	last := rs.numD - 1
	for rs.dsectionSz[last] > rs.dsectionSize {
		h := rs.dsections[last].PopBack()
		if h == item.NilHandle {
			break
		}
		m := rs.dramMeta[h]
		req := m.req
		rs.dsectionSz[last] -= uint64(req.Size())
		delete(rs.dramIndex, req.Kid)
		delete(rs.dramMeta, h)
		rs.dramArena.Free(h)
		rs.flash.stat.BytesCached += uint64(req.Size())
		rs.flash.add(&req, rs.flash.numSections-1)
	}
}

// promoteDramHit moves h one DRAM section toward 0, or — if it's already in
// section 0 — graduates it into flash's coldest section entirely.
func (rs *RIPQShield) promoteDramHit(h item.Handle, warmup bool) {
	m := rs.dramMeta[h]
	if m.section == 0 {
		req := m.req
		rs.dsections[0].Remove(h)
		rs.dsectionSz[0] -= uint64(req.Size())
		delete(rs.dramIndex, req.Kid)
		delete(rs.dramMeta, h)
		rs.dramArena.Free(h)
		rs.flash.stat.BytesCached += uint64(req.Size())
		rs.flash.add(&req, rs.flash.numSections-1)
		return
	}
	next := m.section - 1
	rs.dsections[m.section].Remove(h)
	rs.dsectionSz[m.section] -= uint64(m.req.Size())
	m.section = next
	rs.dsections[next].PushFront(h)
	rs.dsectionSz[next] += uint64(m.req.Size())
	rs.balanceDram(next)
	rs.drainDramTail(warmup)
}

// Process dispatches to whichever tier currently holds the key (flash's own
// index takes precedence since a key is never resident in both at once),
// replays RIPQ's own hit/ghost logic for a flash hit, this type's DRAM
// promotion logic for a DRAM hit, and — for a resize or a genuine miss —
// discards any stale entry and admits fresh into DRAM's tail section,
// mirroring "new items enter the DRAM tail section" regardless of which
// tier (if any) the stale key had been in.
func (rs *RIPQShield) Process(req *Request, warmup bool) uint64 {
	rs.warmup = warmup
	rs.flash.warmup = warmup
	if !warmup {
		rs.stat.Accesses++
	}

	if h, ok := rs.flash.index[req.Kid]; ok {
		m := rs.flash.metaOf(h)
		if m.req.Size() == req.Size() {
			if !warmup {
				rs.stat.Hits++
				rs.stat.HitsFlash++
			}
			rs.flash.promoteHit(req, h, m)
			return 1
		}
		rs.flash.blockRemove(m.virtualBlock, h, uint64(m.req.Size()))
		m.virtualBlock = m.physicalBlock
		m.isGhost = true
		delete(rs.flash.index, req.Kid)
		rs.flash.stat.BytesCached -= uint64(m.req.Size())
	} else if h, ok := rs.dramIndex[req.Kid]; ok {
		m := rs.dramMeta[h]
		if m.req.Size() == req.Size() {
			if !warmup {
				rs.stat.Hits++
				rs.stat.HitsDRAM++
			}
			rs.promoteDramHit(h, warmup)
			return 1
		}
		rs.dramRemoveHandle(h)
	}

	rs.admitDram(req, rs.numD-1, warmup)
	if !warmup {
		rs.stat.MissedBytes += uint64(req.Size())
	}
	return ProcMiss
}

func (rs *RIPQShield) DumpStats(w io.Writer) { rs.stat.Dump(w) }
