package partition

import (
	"sync/atomic"

	"github.com/gilchrisn/graph-partition-service/pkg/parallel"
)

// EdgeCut returns the total weight of cut edges, counting each undirected
// edge once.
func EdgeCut(p *Partition) int64 {
	g := p.Graph()
	var cut int64
	parallel.For(g.N(), 0, func(start, end int) {
		var local int64
		for u := start; u < end; u++ {
			bu := p.Block(u)
			g.Neighbors(u, func(e, v int) bool {
				if p.Block(v) != bu {
					local += g.EdgeWeight(e)
				}
				return true
			})
		}
		atomic.AddInt64(&cut, local)
	})
	return cut / 2
}

// Imbalance returns max_b blockWeight(b) / ceil(W/k) - 1.
func Imbalance(p *Partition, ctx *Context) float64 {
	var max int64
	for b := 0; b < p.K(); b++ {
		if w := p.BlockWeight(b); w > max {
			max = w
		}
	}
	return float64(max)/float64(ctx.PerfectBalance()) - 1.0
}

// IsFeasible reports whether every block satisfies its weight cap.
func IsFeasible(p *Partition, ctx *Context) bool {
	for b := 0; b < p.K(); b++ {
		if p.BlockWeight(b) > ctx.MaxBlockWeight(b) {
			return false
		}
	}
	return true
}

// TotalOverload sums the weight exceeding each block's cap.
func TotalOverload(p *Partition, ctx *Context) int64 {
	var overload int64
	for b := 0; b < p.K(); b++ {
		if w := p.BlockWeight(b); w > ctx.MaxBlockWeight(b) {
			overload += w - ctx.MaxBlockWeight(b)
		}
	}
	return overload
}

// BlockOverload returns how far block b exceeds its cap, or 0.
func BlockOverload(p *Partition, ctx *Context, b int) int64 {
	if w := p.BlockWeight(b); w > ctx.MaxBlockWeight(b) {
		return w - ctx.MaxBlockWeight(b)
	}
	return 0
}
