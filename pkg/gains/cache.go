// Package gains maintains the weighted connection strengths conn(u, b)
// between nodes and blocks that refiners use to evaluate moves.
package gains

import (
	"github.com/gilchrisn/graph-partition-service/pkg/ds"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
)

// Cache is the capability set shared by the dense and on-the-fly variants.
// Gain follows the sign convention positive = cut decreases.
type Cache interface {
	Initialize(p *partition.Partition)
	Gain(u, from, to int) int64
	Conn(u, b int) int64
	Move(u, from, to int)
	IsBorderNode(u int) bool
	Validate(p *partition.Partition) error
}

// MaxGainer describes the best move target of a node.
type MaxGainer struct {
	Block     int
	IntDegree int64 // connection into the node's own block
	ExtDegree int64 // connection into the best foreign block
}

// AbsoluteGain is ExtDegree - IntDegree.
func (m MaxGainer) AbsoluteGain() int64 { return m.ExtDegree - m.IntDegree }

// ComputeMaxGainer finds the foreign block with the strongest connection to
// u among blocks that can still take u's weight. Ties break toward the
// smaller block id so the result is a total order. The rating map is caller
// scratch sized to k. When no foreign block is eligible, Block is u's block.
func ComputeMaxGainer(p *partition.Partition, ctx *partition.Context, u int, rm *ds.RatingMap) MaxGainer {
	g := p.Graph()
	from := p.Block(u)
	w := g.NodeWeight(u)

	rm.Clear()
	g.Neighbors(u, func(e, v int) bool {
		rm.Add(p.Block(v), g.EdgeWeight(e))
		return true
	})

	best := MaxGainer{Block: from, IntDegree: rm.Get(from)}
	rm.Entries(func(b int, conn int64) {
		if b == from || conn == 0 {
			return
		}
		if p.BlockWeight(b)+w > ctx.MaxBlockWeight(b) {
			return
		}
		if best.Block == from || conn > best.ExtDegree || (conn == best.ExtDegree && b < best.Block) {
			best.Block = b
			best.ExtDegree = conn
		}
	})
	return best
}
