package item

// List is an intrusive doubly linked list of Handles threaded through
// maps owned by the list itself (next/prev), never by the Item. A handle
// can therefore belong to this list and to another list (or to none)
// simultaneously without conflict — exactly the property RIPQ's virtual vs.
// physical block membership and FlashCache's dram/globalLru dual membership
// both rely on.
type List struct {
	next, prev map[Handle]Handle
	head, tail Handle
	size       int
}

// NewList returns an empty intrusive list.
func NewList() *List {
	return &List{
		next: make(map[Handle]Handle),
		prev: make(map[Handle]Handle),
	}
}

// Len returns the number of handles currently linked into the list.
func (l *List) Len() int { return l.size }

// Front returns the head handle, or NilHandle if the list is empty.
func (l *List) Front() Handle { return l.head }

// Back returns the tail handle, or NilHandle if the list is empty.
func (l *List) Back() Handle { return l.tail }

// Next returns the handle following h, or NilHandle at the tail.
func (l *List) Next(h Handle) Handle { return l.next[h] }

// Prev returns the handle preceding h, or NilHandle at the head.
func (l *List) Prev(h Handle) Handle { return l.prev[h] }

// PushFront links h at the head of the list.
func (l *List) PushFront(h Handle) {
	if l.head == NilHandle {
		l.head, l.tail = h, h
		l.next[h], l.prev[h] = NilHandle, NilHandle
	} else {
		l.next[h] = l.head
		l.prev[h] = NilHandle
		l.prev[l.head] = h
		l.head = h
	}
	l.size++
}

// PushBack links h at the tail of the list.
func (l *List) PushBack(h Handle) {
	if l.tail == NilHandle {
		l.PushFront(h)
		return
	}
	l.prev[h] = l.tail
	l.next[h] = NilHandle
	l.next[l.tail] = h
	l.tail = h
	l.size++
}

// Remove unlinks h from the list. h must currently be a member; removing a
// handle that isn't linked corrupts the list silently, same tradeoff the
// teacher's own intrusive lists make in lru.go.
func (l *List) Remove(h Handle) {
	p, n := l.prev[h], l.next[h]
	if p != NilHandle {
		l.next[p] = n
	} else {
		l.head = n
	}
	if n != NilHandle {
		l.prev[n] = p
	} else {
		l.tail = p
	}
	delete(l.next, h)
	delete(l.prev, h)
	l.size--
}

// InsertBefore links h immediately before at. If at is NilHandle, h is
// pushed to the back instead — used by CLOCK to insert a fresh item right
// at the sweep hand's current position.
func (l *List) InsertBefore(h, at Handle) {
	if at == NilHandle {
		l.PushBack(h)
		return
	}
	p := l.prev[at]
	l.next[h] = at
	l.prev[h] = p
	l.prev[at] = h
	if p != NilHandle {
		l.next[p] = h
	} else {
		l.head = h
	}
	l.size++
}

// MoveToFront unlinks h and relinks it at the head in one step.
func (l *List) MoveToFront(h Handle) {
	l.Remove(h)
	l.PushFront(h)
}

// PopBack unlinks and returns the tail handle, or NilHandle if empty.
func (l *List) PopBack() Handle {
	h := l.tail
	if h != NilHandle {
		l.Remove(h)
	}
	return h
}
