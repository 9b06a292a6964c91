package policy

import (
	"io"

	"github.com/cachesim/cachesim/internal/slabclass"
	"github.com/cachesim/cachesim/internal/stats"
	"github.com/cachesim/cachesim/internal/xlog"
)

// SlabApp is the per-tenant bookkeeping SlabMulti keeps alongside the shared
// slab classes: a target memory share, a minimum floor it can never be
// starved below, and a credit balance other apps can lend to (or borrow
// from) it via TryStealFrom.
type SlabApp struct {
	AppID       uint32
	MinMemPct   uint64
	TargetMem   uint64
	CreditBytes int64

	BytesInUse    uint64
	Accesses      uint64
	Hits          uint64
	EvictedItems  uint64
	EvictedBytes  uint64
}

// BytesLimit is the app's current effective budget: its target share plus
// whatever credit it has accrued (or minus whatever it has lent out).
func (a *SlabApp) BytesLimit() uint64 {
	limit := int64(a.TargetMem) + a.CreditBytes
	if limit < 0 {
		return 0
	}
	return uint64(limit)
}

func (a *SlabApp) minMem() uint64 {
	return a.TargetMem * a.MinMemPct / 100
}

// TryStealFrom moves bytes of budget from other into a, failing (and
// changing nothing) if other can't spare them without dropping below its own
// floor. Mirrors application::try_steal_from; SlabMulti itself never calls
// this automatically — it's exposed for a driver-level rebalancing policy to
// invoke between dump intervals.
func (a *SlabApp) TryStealFrom(other *SlabApp, bytes uint64) bool {
	if other == a || other.BytesLimit() < bytes {
		return false
	}
	if other.BytesLimit()-bytes < other.minMem() {
		return false
	}
	other.CreditBytes -= int64(bytes)
	a.CreditBytes += int64(bytes)
	return true
}

// SlabMulti is Slab extended to a multi-tenant workload: the same shared
// slab-class LRUs back every application, but each app's resident bytes are
// attributed separately (by summing PerAppBytesInUse across every class) so
// per-app hit rate and footprint can be reported independently, and apps can
// lend each other spare budget via SlabApp.TryStealFrom.
type SlabMulti struct {
	table      slabclass.Table
	memcachier bool
	classes    []*LRU
	classOf    map[uint64]int
	apps       map[uint32]*SlabApp
	globalMem  uint64
	memInUse   uint64
	pageSize   uint64
	lastDump   float64
	stat       *stats.Tracker
}

// NewSlabMulti constructs a SlabMulti allocator with the same class-table
// choice as Slab.
func NewSlabMulti(memcachier bool, gfactor float64, globalMem, pageSize uint64) *SlabMulti {
	var table slabclass.Table
	if memcachier {
		table = slabclass.Memcachier()
	} else {
		table = slabclass.Memcached(gfactor)
	}
	s := &SlabMulti{
		table:      table,
		memcachier: memcachier,
		classes:    make([]*LRU, len(table)),
		classOf:    make(map[uint64]int),
		apps:       make(map[uint32]*SlabApp),
		globalMem:  globalMem,
		pageSize:   pageSize,
		stat:       stats.New("slab_multi"),
	}
	for i := range s.classes {
		s.classes[i] = NewLRU(0)
	}
	return s
}

// AddApp registers a tenant with its target memory share and minimum
// guaranteed percentage of that share, mirroring slab_multi::add_app.
func (s *SlabMulti) AddApp(appID uint32, minMemPct, targetMem uint64) {
	s.apps[appID] = &SlabApp{AppID: appID, MinMemPct: minMemPct, TargetMem: targetMem}
}

// App returns the tracked state for appID, or nil if it was never added.
func (s *SlabMulti) App(appID uint32) *SlabApp { return s.apps[appID] }

func (s *SlabMulti) Stats() *stats.Tracker { return s.stat }
func (s *SlabMulti) BytesCached() uint64 {
	var b uint64
	for _, c := range s.classes {
		b += c.stat.BytesCached
	}
	return b
}

func (s *SlabMulti) classFor(size uint32) (class int, classSize uint32, ok bool) {
	if s.memcachier {
		return s.table.ClassOfStrict(size)
	}
	return s.table.ClassOf(size)
}

// RefreshAppUsage recomputes BytesInUse for every registered app by summing
// PerAppBytesInUse across every slab class, mirroring
// slab_multi::dump_app_stats's on-demand accounting (cheaper to recompute
// than to track incrementally across class reassignment/eviction).
func (s *SlabMulti) RefreshAppUsage() {
	for _, app := range s.apps {
		app.BytesInUse = 0
	}
	for _, class := range s.classes {
		for appID, bytes := range class.PerAppBytesInUse() {
			if app, ok := s.apps[appID]; ok {
				app.BytesInUse += bytes
			}
		}
	}
}

// Process mirrors slab_multi::process_request: the same class-routing and
// grow-then-insert logic as Slab, plus per-app access/hit counters and a
// periodic (every 3600s of trace time) app-usage refresh.
func (s *SlabMulti) Process(r *Request, warmup bool) uint64 {
	if r.Size() > slabclass.MaxItemSize {
		xlog.Errorf("oversize request (kid=%d size=%d > %d), treating as a hit", r.Kid, r.Size(), slabclass.MaxItemSize)
		return 1
	}

	if !warmup && (s.lastDump == 0 || r.Time > s.lastDump) {
		s.RefreshAppUsage()
		if s.lastDump == 0 {
			s.lastDump = r.Time
		}
		s.lastDump += 3600
	}

	app := s.apps[r.AppID]
	if !warmup {
		s.stat.Accesses++
		if app != nil {
			app.Accesses++
		}
	}

	class, classSize, ok := s.classFor(uint32(r.Size()))
	if !ok {
		return ProcMiss
	}

	if prevClass, had := s.classOf[r.Kid]; had && prevClass != class {
		s.classes[prevClass].Remove(r)
		delete(s.classOf, r.Kid)
	}

	target := s.classes[class]
	copyReq := *r
	copyReq.KeySz = 0
	copyReq.ValSz = int32(classSize)
	copyReq.FragSz = int32(classSize) - r.Size()

	for s.memInUse < s.globalMem && target.WouldCauseEviction(&copyReq) {
		target.Expand(s.pageSize)
		s.memInUse += s.pageSize
	}

	outcome := target.Process(&copyReq, warmup)
	s.classOf[r.Kid] = class

	if outcome == ProcMiss {
		return ProcMiss
	}
	if !warmup {
		s.stat.Hits++
		if app != nil {
			app.Hits++
		}
	}
	return 1
}

func (s *SlabMulti) DumpStats(w io.Writer) { s.stat.Dump(w) }
