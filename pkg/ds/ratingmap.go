package ds

// RatingMap accumulates int64 ratings for a small, fixed id universe
// (typically blocks 0..k-1). It keeps a dense array plus the list of touched
// ids so that Clear runs in O(touched) instead of O(k).
type RatingMap struct {
	values  []int64
	present []bool
	touched []int
}

// NewRatingMap creates a rating map for ids 0..k-1.
func NewRatingMap(k int) *RatingMap {
	return &RatingMap{
		values:  make([]int64, k),
		present: make([]bool, k),
		touched: make([]int, 0, k),
	}
}

// Add accumulates delta onto id.
func (m *RatingMap) Add(id int, delta int64) {
	if !m.present[id] {
		m.present[id] = true
		m.touched = append(m.touched, id)
	}
	m.values[id] += delta
}

// Get returns the accumulated rating for id.
func (m *RatingMap) Get(id int) int64 { return m.values[id] }

// Entries calls fn for every touched id. Ids whose rating returned to zero
// are still reported.
func (m *RatingMap) Entries(fn func(id int, value int64)) {
	for _, id := range m.touched {
		fn(id, m.values[id])
	}
}

// Size returns the number of touched ids.
func (m *RatingMap) Size() int { return len(m.touched) }

// Clear resets all touched entries.
func (m *RatingMap) Clear() {
	for _, id := range m.touched {
		m.values[id] = 0
		m.present[id] = false
	}
	m.touched = m.touched[:0]
}
