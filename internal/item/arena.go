// Package item implements the intrusive handle-addressed object arena shared
// by every cache policy: a growable slab of Item records, indexed by a stable
// integer Handle rather than a pointer, so an Item can sit in several
// intrusive lists (an LRU chain, a ghost directory, a per-section block) at
// once without any of them invalidating the others.
package item

// Handle identifies a slot in an Arena. The zero Handle is reserved (NilHandle)
// so a freshly zeroed field reads as "absent" without an extra bool.
type Handle uint32

// NilHandle marks the absence of an item. Arena never hands this value out.
const NilHandle Handle = 0

// Item is the payload carried by a single cached object. Size is the only
// field every policy needs; Meta is free-form per-policy state (flashiness
// score, ghost flag, slab class, queue number, ...) so engines don't need a
// parallel side-map keyed by kid.
type Item struct {
	Key     uint64
	Size    uint32
	FragSz  uint32
	AppID   uint32
	Ghost   bool
	inUse   bool
	Meta    interface{}
}

// Arena is a slab of Items addressed by Handle. Freed slots are recycled via
// a free list so long-running replay never grows the backing slice past the
// working-set's high-water mark.
type Arena struct {
	slots []Item
	free  []Handle
}

// New returns an empty arena with room for n items preallocated.
func New(n int) *Arena {
	a := &Arena{slots: make([]Item, 1, n+1)} // slot 0 reserved for NilHandle
	return a
}

// Alloc returns a handle to a fresh, zeroed Item.
func (a *Arena) Alloc(key uint64, size uint32) Handle {
	var h Handle
	if n := len(a.free); n > 0 {
		h = a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[h] = Item{}
	} else {
		h = Handle(len(a.slots))
		a.slots = append(a.slots, Item{})
	}
	it := &a.slots[h]
	it.Key = key
	it.Size = size
	it.inUse = true
	return h
}

// Free releases a handle back to the arena. The caller must have already
// unlinked it from every intrusive list it belonged to.
func (a *Arena) Free(h Handle) {
	a.slots[h].inUse = false
	a.slots[h].Meta = nil
	a.free = append(a.free, h)
}

// Get returns a pointer to the Item addressed by h. The pointer is only
// valid until the next Alloc/Free call that triggers a slice grow; policies
// should re-resolve a Handle rather than hold the pointer across mutations.
func (a *Arena) Get(h Handle) *Item {
	return &a.slots[h]
}

// Valid reports whether h currently addresses a live item.
func (a *Arena) Valid(h Handle) bool {
	return h != NilHandle && int(h) < len(a.slots) && a.slots[h].inUse
}

// Len returns the number of live (allocated, unfreed) items.
func (a *Arena) Len() int {
	return len(a.slots) - 1 - len(a.free)
}
