package storage

type listNode struct {
	prev, next *listNode
	value      string
}

// List is a doubly linked list of text elements. Pushes at either end are
// O(1); Range walks from whichever end is closer to the requested window.
//
// List is not safe for concurrent use on its own. Inside a BoundedStore it is
// only touched under the store lock.
type List struct {
	head   *listNode
	tail   *listNode
	length int
}

// NewList returns an empty list.
func NewList(values ...string) *List {
	l := &List{}
	l.PushBack(values...)
	return l
}

// Len returns the number of elements.
func (l *List) Len() int { return l.length }

// PushFront pushes each value onto the front in argument order, so
// PushFront("a", "b") leaves "b" first. Returns the new length.
func (l *List) PushFront(values ...string) int {
	for _, v := range values {
		n := &listNode{value: v, next: l.head}
		if l.head != nil {
			l.head.prev = n
		} else {
			l.tail = n
		}
		l.head = n
		l.length++
	}
	return l.length
}

// PushBack appends values to the tail in argument order. Returns the new length.
func (l *List) PushBack(values ...string) int {
	for _, v := range values {
		n := &listNode{value: v, prev: l.tail}
		if l.tail != nil {
			l.tail.next = n
		} else {
			l.head = n
		}
		l.tail = n
		l.length++
	}
	return l.length
}

// Range returns the elements at inclusive positions [start, end]. Negative
// indices count from the end and end == -1 means "through the last element".
// Out-of-range or empty windows yield an empty, non-nil slice.
func (l *List) Range(start, end int) []string {
	lo, hi, ok := Bounds(start, end, l.length)
	if !ok {
		return []string{}
	}
	out := make([]string, hi-lo)

	if lo <= l.length-hi {
		n := l.head
		for i := 0; i < lo; i++ {
			n = n.next
		}
		for i := range out {
			out[i] = n.value
			n = n.next
		}
		return out
	}

	n := l.tail
	for i := l.length - 1; i >= hi; i-- {
		n = n.prev
	}
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = n.value
		n = n.prev
	}
	return out
}

// Values returns every element front to back.
func (l *List) Values() []string {
	return l.Range(0, -1)
}

// Bounds converts an inclusive [start, end] request with Python-style
// negative indexing into a half-open window [lo, hi) over n elements.
// ok is false when the window is empty.
func Bounds(start, end, n int) (lo, hi int, ok bool) {
	lo = start
	if lo < 0 {
		lo += n
	}
	lo = clamp(lo, 0, n)

	switch {
	case end == -1:
		hi = n
	case end < -1:
		hi = end + 1 + n
	default:
		hi = end + 1
	}
	hi = clamp(hi, 0, n)

	return lo, hi, lo < hi
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
