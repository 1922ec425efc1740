package gains

import "github.com/gilchrisn/graph-partition-service/pkg/partition"

// Delta overlays a base cache with uncommitted move deltas so that
// speculative search (FM) can evaluate gains without mutating shared state.
// Not safe for concurrent use; each search owns its overlay.
type Delta struct {
	base   *Dense
	deltas map[int]int64
	p      *partition.Partition
}

// NewDelta creates an empty overlay over base.
func NewDelta(base *Dense, p *partition.Partition) *Delta {
	return &Delta{
		base:   base,
		deltas: make(map[int]int64),
		p:      p,
	}
}

// Conn returns base conn plus the overlay delta.
func (d *Delta) Conn(u, b int) int64 {
	return d.base.Conn(u, b) + d.deltas[d.base.index(u, b)]
}

// Gain returns conn(u, to) - conn(u, from) under the overlay.
func (d *Delta) Gain(u, from, to int) int64 {
	return d.Conn(u, to) - d.Conn(u, from)
}

// Move records the neighbor-row updates of a speculative move in the
// overlay only.
func (d *Delta) Move(u, from, to int) {
	g := d.p.Graph()
	g.Neighbors(u, func(e, v int) bool {
		w := g.EdgeWeight(e)
		d.deltas[d.base.index(v, from)] -= w
		d.deltas[d.base.index(v, to)] += w
		return true
	})
}

// Clear drops all uncommitted deltas.
func (d *Delta) Clear() {
	clear(d.deltas)
}
