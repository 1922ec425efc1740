// Package partition holds the block assignment produced by the partitioner
// together with the balance constraint it must satisfy.
package partition

import (
	"fmt"
	"sync/atomic"

	"github.com/gilchrisn/graph-partition-service/pkg/graph"
)

// Context fixes the partition parameters: block count k, imbalance factor
// epsilon, and the derived per-block weight cap.
type Context struct {
	K       int
	Epsilon float64

	perfectBalance int64
	maxBlockWeight int64
}

// NewContext derives the balance constraint for partitioning g into k blocks
// with tolerance eps: every block must weigh at most (1+eps)*ceil(W/k). The
// cap never drops below the perfectly balanced weight.
func NewContext(g graph.Graph, k int, eps float64) *Context {
	return NewContextForWeight(g.TotalNodeWeight(), k, eps)
}

// NewContextForWeight is NewContext for a known total node weight.
func NewContextForWeight(totalNodeWeight int64, k int, eps float64) *Context {
	perfect := ceilDiv(totalNodeWeight, int64(k))
	max := int64(float64(perfect) * (1.0 + eps))
	if max < perfect {
		max = perfect
	}
	return &Context{
		K:              k,
		Epsilon:        eps,
		perfectBalance: perfect,
		maxBlockWeight: max,
	}
}

// PerfectBalance returns ceil(W/k).
func (c *Context) PerfectBalance() int64 { return c.perfectBalance }

// MaxBlockWeight returns the weight cap of block b.
func (c *Context) MaxBlockWeight(b int) int64 { return c.maxBlockWeight }

func ceilDiv(a, b int64) int64 { return (a + b - 1) / b }

// Partition maps every node of a graph to a block and tracks block weights.
// The graph reference is non-owning: when the hierarchy pops a level, the
// owner re-seats it via SetGraph.
type Partition struct {
	g            graph.Graph
	k            int
	blocks       []int
	blockWeights []int64
}

// New creates a partition with every node in block 0.
func New(g graph.Graph, k int) *Partition {
	p := &Partition{
		g:            g,
		k:            k,
		blocks:       make([]int, g.N()),
		blockWeights: make([]int64, k),
	}
	p.blockWeights[0] = g.TotalNodeWeight()
	return p
}

// FromBlocks creates a partition from an existing block array, which is
// taken over by the partition.
func FromBlocks(g graph.Graph, k int, blocks []int) *Partition {
	p := &Partition{
		g:            g,
		k:            k,
		blocks:       blocks,
		blockWeights: make([]int64, k),
	}
	p.RecomputeBlockWeights()
	return p
}

func (p *Partition) Graph() graph.Graph     { return p.g }
func (p *Partition) SetGraph(g graph.Graph) { p.g = g }
func (p *Partition) K() int                 { return p.k }
func (p *Partition) N() int                 { return len(p.blocks) }

func (p *Partition) Block(u int) int { return p.blocks[u] }

// Blocks exposes the underlying block array. Callers must not resize it.
func (p *Partition) Blocks() []int { return p.blocks }

func (p *Partition) BlockWeight(b int) int64 {
	return atomic.LoadInt64(&p.blockWeights[b])
}

// SetBlock moves u to block b and adjusts both block weights atomically.
func (p *Partition) SetBlock(u, b int) {
	from := p.blocks[u]
	if from == b {
		return
	}
	w := p.g.NodeWeight(u)
	p.blocks[u] = b
	atomic.AddInt64(&p.blockWeights[from], -w)
	atomic.AddInt64(&p.blockWeights[b], w)
}

// SetBlockRaw moves u without touching block weights. Callers batch the
// weight updates themselves (JET's delta accumulation).
func (p *Partition) SetBlockRaw(u, b int) { p.blocks[u] = b }

// AddBlockWeight adds delta to block b's weight atomically.
func (p *Partition) AddBlockWeight(b int, delta int64) {
	atomic.AddInt64(&p.blockWeights[b], delta)
}

// RecomputeBlockWeights rebuilds block weights from the block array.
func (p *Partition) RecomputeBlockWeights() {
	for b := range p.blockWeights {
		p.blockWeights[b] = 0
	}
	for u, b := range p.blocks {
		p.blockWeights[b] += p.g.NodeWeight(u)
	}
}

// Copy clones the partition (sharing the graph reference).
func (p *Partition) Copy() *Partition {
	return &Partition{
		g:            p.g,
		k:            p.k,
		blocks:       append([]int(nil), p.blocks...),
		blockWeights: append([]int64(nil), p.blockWeights...),
	}
}

// CopyFrom overwrites this partition's assignment with other's.
func (p *Partition) CopyFrom(other *Partition) {
	copy(p.blocks, other.blocks)
	copy(p.blockWeights, other.blockWeights)
}

// Validate checks partition totality and block weight accounting.
func (p *Partition) Validate() error {
	if len(p.blocks) != p.g.N() {
		return fmt.Errorf("partition covers %d nodes but the graph has %d", len(p.blocks), p.g.N())
	}
	weights := make([]int64, p.k)
	for u, b := range p.blocks {
		if b < 0 || b >= p.k {
			return fmt.Errorf("node %d assigned to invalid block %d", u, b)
		}
		weights[b] += p.g.NodeWeight(u)
	}
	for b, w := range weights {
		if w != p.BlockWeight(b) {
			return fmt.Errorf("block %d weight drifted: recorded %d, actual %d", b, p.BlockWeight(b), w)
		}
	}
	return nil
}
