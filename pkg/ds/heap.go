package ds

// AddressableMaxHeap is a binary max-heap over ids 0..n-1 with int64 keys.
// Ids are addressable: keys can be raised or lowered after insertion. Ties
// are broken by smaller id so that heap order is a total order.
type AddressableMaxHeap struct {
	heap []int
	pos  []int
	keys []int64
}

// NewAddressableMaxHeap creates a heap that can hold ids 0..n-1.
func NewAddressableMaxHeap(n int) *AddressableMaxHeap {
	pos := make([]int, n)
	for i := range pos {
		pos[i] = -1
	}
	return &AddressableMaxHeap{
		heap: make([]int, 0, n),
		pos:  pos,
		keys: make([]int64, n),
	}
}

func (h *AddressableMaxHeap) Len() int   { return len(h.heap) }
func (h *AddressableMaxHeap) Empty() bool { return len(h.heap) == 0 }

func (h *AddressableMaxHeap) Contains(id int) bool { return h.pos[id] >= 0 }

// Key returns the current key of id. Only valid while Contains(id).
func (h *AddressableMaxHeap) Key(id int) int64 { return h.keys[id] }

// PeekID returns the id with the maximum key.
func (h *AddressableMaxHeap) PeekID() int { return h.heap[0] }

// PeekKey returns the maximum key.
func (h *AddressableMaxHeap) PeekKey() int64 { return h.keys[h.heap[0]] }

// Push inserts id with the given key.
func (h *AddressableMaxHeap) Push(id int, key int64) {
	h.keys[id] = key
	h.pos[id] = len(h.heap)
	h.heap = append(h.heap, id)
	h.siftUp(len(h.heap) - 1)
}

// Pop removes and returns the id with the maximum key.
func (h *AddressableMaxHeap) Pop() int {
	top := h.heap[0]
	last := len(h.heap) - 1
	h.swap(0, last)
	h.heap = h.heap[:last]
	h.pos[top] = -1
	if last > 0 {
		h.siftDown(0)
	}
	return top
}

// Update changes the key of id, restoring heap order in either direction.
func (h *AddressableMaxHeap) Update(id int, key int64) {
	old := h.keys[id]
	h.keys[id] = key
	if key > old {
		h.siftUp(h.pos[id])
	} else if key < old {
		h.siftDown(h.pos[id])
	}
}

// IncreaseBy adds delta to the key of id.
func (h *AddressableMaxHeap) IncreaseBy(id int, delta int64) {
	h.Update(id, h.keys[id]+delta)
}

// Clear removes all entries.
func (h *AddressableMaxHeap) Clear() {
	for _, id := range h.heap {
		h.pos[id] = -1
	}
	h.heap = h.heap[:0]
}

func (h *AddressableMaxHeap) less(a, b int) bool {
	if h.keys[a] != h.keys[b] {
		return h.keys[a] > h.keys[b]
	}
	return a < b
}

func (h *AddressableMaxHeap) swap(i, j int) {
	h.heap[i], h.heap[j] = h.heap[j], h.heap[i]
	h.pos[h.heap[i]] = i
	h.pos[h.heap[j]] = j
}

func (h *AddressableMaxHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(h.heap[i], h.heap[parent]) {
			break
		}
		h.swap(i, parent)
		i = parent
	}
}

func (h *AddressableMaxHeap) siftDown(i int) {
	n := len(h.heap)
	for {
		best := i
		if l := 2*i + 1; l < n && h.less(h.heap[l], h.heap[best]) {
			best = l
		}
		if r := 2*i + 2; r < n && h.less(h.heap[r], h.heap[best]) {
			best = r
		}
		if best == i {
			return
		}
		h.swap(i, best)
		i = best
	}
}

// AddressableMinHeap is the min-ordered counterpart, used where the smallest
// key must be extracted first (greedy graph growing keys nodes by negative
// gain).
type AddressableMinHeap struct {
	inner AddressableMaxHeap
}

// NewAddressableMinHeap creates a min-heap that can hold ids 0..n-1.
func NewAddressableMinHeap(n int) *AddressableMinHeap {
	return &AddressableMinHeap{inner: *NewAddressableMaxHeap(n)}
}

func (h *AddressableMinHeap) Len() int            { return h.inner.Len() }
func (h *AddressableMinHeap) Empty() bool         { return h.inner.Empty() }
func (h *AddressableMinHeap) Contains(id int) bool { return h.inner.Contains(id) }
func (h *AddressableMinHeap) Key(id int) int64    { return -h.inner.Key(id) }
func (h *AddressableMinHeap) PeekID() int         { return h.inner.PeekID() }
func (h *AddressableMinHeap) PeekKey() int64      { return -h.inner.PeekKey() }

func (h *AddressableMinHeap) Push(id int, key int64)   { h.inner.Push(id, -key) }
func (h *AddressableMinHeap) Pop() int                 { return h.inner.Pop() }
func (h *AddressableMinHeap) Update(id int, key int64) { h.inner.Update(id, -key) }
func (h *AddressableMinHeap) Clear()                   { h.inner.Clear() }
