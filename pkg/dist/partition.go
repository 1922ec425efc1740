package dist

import (
	"fmt"

	"github.com/gilchrisn/graph-partition-service/pkg/partition"
)

// Partition is a distributed block assignment: labels for owned nodes and
// ghosts, plus the replicated global block weight vector.
type Partition struct {
	g            *Graph
	k            int
	blocks       []int // owned + ghost
	blockWeights []int64
}

// NewPartition wraps per-owned-node labels into a distributed partition,
// synchronizing ghost labels and reducing global block weights.
func NewPartition(c *Comm, g *Graph, k int, ownedBlocks []int) *Partition {
	p := &Partition{
		g:      g,
		k:      k,
		blocks: make([]int, g.TotalN()),
	}
	copy(p.blocks, ownedBlocks)

	local := make([]int64, k)
	for u := 0; u < g.NLocal(); u++ {
		local[p.blocks[u]] += g.NodeWeight(u)
	}
	p.blockWeights = c.AllreduceSumInt64(local)

	p.SyncAllGhostLabels(c)
	return p
}

func (p *Partition) Graph() *Graph { return p.g }
func (p *Partition) K() int        { return p.k }

func (p *Partition) Block(local int) int       { return p.blocks[local] }
func (p *Partition) SetBlockRaw(local, b int)  { p.blocks[local] = b }
func (p *Partition) BlockWeight(b int) int64   { return p.blockWeights[b] }
func (p *Partition) AddBlockWeight(b int, d int64) { p.blockWeights[b] += d }

// OwnedBlocks returns the labels of the owned nodes.
func (p *Partition) OwnedBlocks() []int { return p.blocks[:p.g.NLocal()] }

type labelMessage struct {
	Node  int64
	Block int32
}

// SyncGhostLabels sends the labels of owned nodes accepted by include to
// every rank holding them as a ghost, and applies the incoming labels.
func (p *Partition) SyncGhostLabels(c *Comm, include func(u int) bool) {
	g := p.g
	out := make([][]labelMessage, c.Size())
	seen := make([]int, c.Size())
	for r := range seen {
		seen[r] = -1
	}

	for u := 0; u < g.NLocal(); u++ {
		if !include(u) {
			continue
		}
		for r := range seen {
			seen[r] = -1
		}
		g.Neighbors(u, func(e, v int) bool {
			if !g.IsOwned(v) {
				owner := g.GhostOwner(v)
				if seen[owner] != u {
					seen[owner] = u
					out[owner] = append(out[owner], labelMessage{
						Node:  g.GlobalID(u),
						Block: int32(p.blocks[u]),
					})
				}
			}
			return true
		})
	}

	in := SparseAllToAll(c, out)
	for _, msgs := range in {
		for _, msg := range msgs {
			if local, ok := g.LocalID(msg.Node); ok {
				p.blocks[local] = int(msg.Block)
			}
		}
	}
}

// SyncAllGhostLabels refreshes every ghost label.
func (p *Partition) SyncAllGhostLabels(c *Comm) {
	p.SyncGhostLabels(c, func(int) bool { return true })
}

// EdgeCut reduces the global edge cut. Each cross-block edge is counted once
// per incident rank side, so the reduced sum halves to the cut.
func (p *Partition) EdgeCut(c *Comm) int64 {
	g := p.g
	var local int64
	for u := 0; u < g.NLocal(); u++ {
		bu := p.blocks[u]
		g.Neighbors(u, func(e, v int) bool {
			if p.blocks[v] != bu {
				local += g.EdgeWeight(e)
			}
			return true
		})
	}
	return c.AllreduceSumInt64([]int64{local})[0] / 2
}

// Validate checks label totality and the replicated block weights.
func (p *Partition) Validate(c *Comm) error {
	for u := 0; u < p.g.TotalN(); u++ {
		if p.blocks[u] < 0 || p.blocks[u] >= p.k {
			return fmt.Errorf("node %d assigned to invalid block %d", u, p.blocks[u])
		}
	}

	local := make([]int64, p.k)
	for u := 0; u < p.g.NLocal(); u++ {
		local[p.blocks[u]] += p.g.NodeWeight(u)
	}
	global := c.AllreduceSumInt64(local)
	for b := 0; b < p.k; b++ {
		if global[b] != p.blockWeights[b] {
			return fmt.Errorf("block %d weight drifted: recorded %d, actual %d", b, p.blockWeights[b], global[b])
		}
	}
	return nil
}

// IsFeasible reports whether every block satisfies its cap.
func (p *Partition) IsFeasible(ctx *partition.Context) bool {
	for b := 0; b < p.k; b++ {
		if p.blockWeights[b] > ctx.MaxBlockWeight(b) {
			return false
		}
	}
	return true
}

// TotalOverload sums the weight above each block's cap.
func (p *Partition) TotalOverload(ctx *partition.Context) int64 {
	var overload int64
	for b := 0; b < p.k; b++ {
		if w := p.blockWeights[b]; w > ctx.MaxBlockWeight(b) {
			overload += w - ctx.MaxBlockWeight(b)
		}
	}
	return overload
}

// Copy clones the assignment and weights.
func (p *Partition) Copy() *Partition {
	return &Partition{
		g:            p.g,
		k:            p.k,
		blocks:       append([]int(nil), p.blocks...),
		blockWeights: append([]int64(nil), p.blockWeights...),
	}
}

// CopyFrom restores a snapshot taken with Copy.
func (p *Partition) CopyFrom(other *Partition) {
	copy(p.blocks, other.blocks)
	copy(p.blockWeights, other.blockWeights)
}
