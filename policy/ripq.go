package policy

import (
	"container/list"
	"io"

	"github.com/cachesim/cachesim/internal/item"
	"github.com/cachesim/cachesim/internal/stats"
)

// ripqBlock is one physical or virtual block of flash. A physical block
// holds the bytes actually written to flash; a virtual block tracks where a
// re-access currently thinks an item should live, which may drift ahead of
// (closer to section 0 than) its physical location until the item's data is
// physically rewritten during an eviction-triggered reallocation.
type ripqBlock struct {
	section   *ripqSection
	isVirtual bool
	active    bool
	filled    uint64
	numItems  int
	items     *item.List
	elem      *list.Element // position in section.blocks once sealed
}

// ripqSection is one capacity-bounded tier of the flash cache. Sections form
// a chain from hot (id 0) to cold (id numSections-1); a section that
// overflows its budget migrates its oldest sealed block down to the next
// section (balance), and the coldest section's oldest block is what
// ultimately gets evicted.
type ripqSection struct {
	id         int
	filled     uint64 // sum of sealed blocks' filled bytes (active blocks excluded until sealed)
	activePhy  *ripqBlock
	activeVir  *ripqBlock
	blocks     *list.List // of *ripqBlock, PushFront on seal; Back() is oldest
}

func newRipqSection(id int) *ripqSection {
	s := &ripqSection{id: id, blocks: list.New()}
	s.activePhy = &ripqBlock{section: s, active: true, items: item.NewList()}
	s.activeVir = &ripqBlock{section: s, active: true, isVirtual: true, items: item.NewList()}
	return s
}

func (s *ripqSection) sealPhy() {
	s.activePhy.active = false
	s.filled += s.activePhy.filled
	s.blocks.PushFront(s.activePhy)
	s.activePhy.elem = s.blocks.Front()
	s.activePhy = &ripqBlock{section: s, active: true, items: item.NewList()}
}

func (s *ripqSection) sealVir() {
	s.activeVir.active = false
	s.filled += s.activeVir.filled
	s.blocks.PushFront(s.activeVir)
	s.activeVir.elem = s.blocks.Front()
	s.activeVir = &ripqBlock{section: s, active: true, isVirtual: true, items: item.NewList()}
}

func (s *ripqSection) evictBlock() *ripqBlock {
	elem := s.blocks.Back()
	if elem == nil {
		return nil
	}
	blk := elem.Value.(*ripqBlock)
	s.filled -= blk.filled
	s.blocks.Remove(elem)
	return blk
}

func (s *ripqSection) addBlock(blk *ripqBlock) {
	s.filled += blk.filled
	blk.section = s
	elem := s.blocks.PushFront(blk)
	blk.elem = elem
}

// ripqMeta is an item's RIPQ-specific state: its original request (kept so
// a reallocation during eviction can re-run add() exactly as a fresh
// insert), ghost flag, and which block it currently sits in virtually vs.
// physically.
type ripqMeta struct {
	req           Request
	isGhost       bool
	virtualBlock  *ripqBlock
	physicalBlock *ripqBlock
}

// RIPQ is a sectioned flash cache: capacity is divided into numSections
// fixed-size tiers, each with an "active" (still being filled, DRAM-side)
// physical block and virtual block. A hit moves the item's virtual
// placement one section hotter without touching flash; only when the
// item's block is later evicted does a virtual/physical mismatch trigger an
// actual flash rewrite into the hotter section. Eviction always targets the
// coldest section's oldest sealed block.
type RIPQ struct {
	blockSize   uint64
	numSections int
	sectionSize uint64
	arena       *item.Arena
	sections    []*ripqSection
	index       map[uint64]item.Handle
	stat        *stats.Tracker
	warmup      bool

	// dropHook, when set, is offered every item that would otherwise be
	// permanently dropped during evict() (virtual block == physical block,
	// not a ghost). Returning true means the hook took ownership of the
	// item (e.g. RIPQShield reinserting it into DRAM as a second chance)
	// and it must not be counted as an eviction.
	dropHook func(req *Request) bool
}

// NewRIPQ constructs a RIPQ cache with the given physical block size,
// section count, and total flash capacity (divided evenly across sections).
func NewRIPQ(blockSize uint64, numSections int, flashSize uint64) *RIPQ {
	r := &RIPQ{
		blockSize:   blockSize,
		numSections: numSections,
		sectionSize: flashSize / uint64(numSections),
		arena:       item.New(1024),
		sections:    make([]*ripqSection, numSections),
		index:       make(map[uint64]item.Handle),
		stat:        stats.New("ripq"),
	}
	for i := range r.sections {
		r.sections[i] = newRipqSection(i)
	}
	return r
}

func (r *RIPQ) Stats() *stats.Tracker { return r.stat }
func (r *RIPQ) BytesCached() uint64   { return r.stat.BytesCached }

// add writes req into sectionID's active physical block, sealing (and
// cascading a balance/evict pass) whenever the active block would overflow.
func (r *RIPQ) add(req *Request, sectionID int) item.Handle {
	target := r.sections[sectionID]
	for target.activePhy.filled+uint64(req.Size()) > r.blockSize {
		if !r.warmup {
			r.stat.FlashBytesWritten += r.blockSize
		}
		target.sealPhy()
		target.sealVir()
		r.balance(sectionID)
		r.drainTail()
	}
	h := r.arena.Alloc(req.Kid, uint32(req.Size()))
	m := &ripqMeta{req: *req, physicalBlock: target.activePhy, virtualBlock: target.activePhy}
	r.arena.Get(h).Meta = m
	target.activePhy.items.PushFront(h)
	target.activePhy.filled += uint64(req.Size())
	target.activePhy.numItems++
	r.index[req.Kid] = h
	return h
}

// addVirtual re-homes h's virtual placement into sectionID's active virtual
// block without touching its physical location yet.
func (r *RIPQ) addVirtual(h item.Handle, m *ripqMeta, sectionID int) {
	target := r.sections[sectionID]
	size := uint64(m.req.Size())
	target.activeVir.items.PushFront(h)
	target.activeVir.filled += size
	target.activeVir.numItems++
	m.virtualBlock = target.activeVir

	for target.activeVir.filled > r.blockSize {
		target.sealVir()
		r.balance(sectionID)
		r.drainTail()
	}
}

// balance migrates every section's oldest sealed block down a tier whenever
// that section exceeds its own budget, starting from section start.
func (r *RIPQ) balance(start int) {
	for i := start; i < r.numSections-1; i++ {
		for r.sections[i].filled > r.sectionSize {
			blk := r.sections[i].evictBlock()
			if blk == nil {
				break
			}
			r.sections[i+1].addBlock(blk)
		}
	}
}

// drainTail evicts from the coldest section until it's back within budget.
func (r *RIPQ) drainTail() {
	last := r.sections[r.numSections-1]
	for last.filled > r.sectionSize {
		r.evict()
	}
}

func (r *RIPQ) metaOf(h item.Handle) *ripqMeta {
	return r.arena.Get(h).Meta.(*ripqMeta)
}

// blockRemove unlinks h from blk (only actually erasing it from the item
// list when blk is virtual, matching ripq::block::remove — physical block
// membership is otherwise only ever drained via eviction's pop-from-back),
// and credits blk's filled-byte count back to its section if blk is sealed.
func (r *RIPQ) blockRemove(blk *ripqBlock, h item.Handle, size uint64) {
	blk.filled -= size
	blk.numItems--
	if blk.isVirtual {
		blk.items.Remove(h)
	}
	if !blk.active {
		blk.section.filled -= size
	}
}

// evict reclaims the coldest section's oldest sealed block. A stale
// virtual/physical mismatch on any surviving item triggers a reallocation:
// the item is rewritten into the section its virtual block currently names.
func (r *RIPQ) evict() {
	tail := r.sections[r.numSections-1]
	blk := tail.evictBlock()
	if blk == nil {
		return
	}
	r.stat.BytesCached -= blk.filled

	for h := blk.items.Front(); h != item.NilHandle; h = blk.items.Next(h) {
		m := r.metaOf(h)
		if m.virtualBlock != m.physicalBlock {
			r.blockRemove(m.virtualBlock, h, uint64(m.req.Size()))
		}
	}

	for !blk.isVirtual && blk.items.Len() > 0 {
		h := blk.items.Back()
		m := r.metaOf(h)
		size := uint64(m.req.Size())
		blk.items.Remove(h)
		blk.numItems--
		blk.filled -= size

		if !m.isGhost {
			delete(r.index, m.req.Kid)
		}
		if m.virtualBlock != m.physicalBlock {
			r.add(&m.req, m.virtualBlock.section.id)
		} else if !m.isGhost && r.dropHook != nil && r.dropHook(&m.req) {
			// Rescued by the hook (RIPQShield: second-chance into DRAM)
			// instead of being counted as a genuine eviction.
		} else if !r.warmup {
			r.stat.EvictedItems++
			r.stat.EvictedBytes += size
		}
		r.arena.Free(h)
	}
	r.balance(0)
}

// promoteHit moves h's virtual placement one section hotter, rewriting it
// into flash immediately if its physical block is still the open DRAM-side
// active block (so reads of a just-written, not-yet-sealed item see the
// rewrite at once), or otherwise just shifting its virtual block.
func (r *RIPQ) promoteHit(req *Request, h item.Handle, m *ripqMeta) {
	newSectionID := m.virtualBlock.section.id
	if newSectionID > 0 {
		newSectionID--
	}
	r.blockRemove(m.virtualBlock, h, uint64(req.Size()))

	if m.physicalBlock.active {
		m.physicalBlock.items.Remove(h)
		m.physicalBlock.numItems--
		m.physicalBlock.filled -= uint64(req.Size())
		delete(r.index, req.Kid)
		r.arena.Free(h)
		r.add(req, newSectionID)
	} else {
		r.addVirtual(h, m, newSectionID)
	}
}

// Process mirrors ripq::process_request: a same-size hit promotes the
// item's virtual placement one section hotter; a resized hit turns the
// stale item into a ghost; a miss inserts fresh into the coldest section
// (a segmented-LRU admission point).
func (r *RIPQ) Process(req *Request, warmup bool) uint64 {
	r.warmup = warmup
	if !warmup {
		r.stat.Accesses++
	}

	if h, ok := r.index[req.Kid]; ok {
		m := r.metaOf(h)
		if m.req.Size() == req.Size() {
			if !warmup {
				r.stat.Hits++
			}
			r.promoteHit(req, h, m)
			return 1
		}

		r.blockRemove(m.virtualBlock, h, uint64(m.req.Size()))
		m.virtualBlock = m.physicalBlock
		m.isGhost = true
		delete(r.index, req.Kid)
		r.stat.BytesCached -= uint64(m.req.Size())
	}

	r.stat.BytesCached += uint64(req.Size())
	if !warmup {
		r.stat.MissedBytes += uint64(req.Size())
	}
	r.add(req, r.numSections-1)
	return ProcMiss
}

func (r *RIPQ) DumpStats(w io.Writer) { r.stat.Dump(w) }
