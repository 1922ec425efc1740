package refinement

import (
	"fmt"

	"github.com/gilchrisn/graph-partition-service/pkg/ds"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
)

// MoveSets holds the balancer's atomic migration units: connected subsets of
// an overloaded block, stored back to back in Nodes with Indices delimiting
// set s as Nodes[Indices[s]:Indices[s+1]].
type MoveSets struct {
	NodeToSet []int // inverse mapping; -1 when unassigned
	Nodes     []int
	Indices   []int
	Sources   []int // block each set migrates out of
	Targets   []int // best target block per set
}

// NumSets returns the number of move sets.
func (m *MoveSets) NumSets() int { return len(m.Indices) - 1 }

// Set returns the nodes of set s.
func (m *MoveSets) Set(s int) []int { return m.Nodes[m.Indices[s]:m.Indices[s+1]] }

// Size returns the node count of set s.
func (m *MoveSets) Size(s int) int { return m.Indices[s+1] - m.Indices[s] }

// Weight sums the node weights of set s.
func (m *MoveSets) Weight(p *partition.Partition, s int) int64 {
	var w int64
	for _, u := range m.Set(s) {
		w += p.Graph().NodeWeight(u)
	}
	return w
}

// Validate checks the structural invariants: indices start at zero, sets are
// disjoint with a consistent inverse mapping, members share the source
// block, and no target equals its source.
func (m *MoveSets) Validate(p *partition.Partition) error {
	if len(m.Indices) == 0 || m.Indices[0] != 0 {
		return fmt.Errorf("move set indices must start at 0")
	}
	for s := 0; s < m.NumSets(); s++ {
		if m.Targets[s] == m.Sources[s] {
			return fmt.Errorf("set %d targets its own source block %d", s, m.Sources[s])
		}
		for _, u := range m.Set(s) {
			if m.NodeToSet[u] != s {
				return fmt.Errorf("node %d listed in set %d but mapped to %d", u, s, m.NodeToSet[u])
			}
			if p.Block(u) != m.Sources[s] {
				return fmt.Errorf("node %d of set %d is in block %d, want %d", u, s, p.Block(u), m.Sources[s])
			}
		}
	}
	return nil
}

// moveSetBuilder grows move sets from seeds in overloaded blocks. The
// frontier is a max-heap keyed by each candidate's connection into the
// growing set; cur_conns tracks the set's connection to every other block.
type moveSetBuilder struct {
	p   *partition.Partition
	ctx *partition.Context

	nodeToSet []int
	nodes     []int
	indices   []int
	sources   []int
	targets   []int

	frontier *ds.AddressableMaxHeap
	curConns *ds.AddressableMaxHeap

	curSet    int
	curPos    int
	curBlock  int
	curWeight int64

	bestPrefixPos   int
	bestPrefixBlock int
	bestPrefixConn  int64
}

// BuildMoveSets grows a move set from every not-yet-assigned node of an
// overloaded block, capping each set at maxSetWeight.
func BuildMoveSets(p *partition.Partition, ctx *partition.Context, maxSetWeight int64) *MoveSets {
	n := p.Graph().N()
	b := &moveSetBuilder{
		p:         p,
		ctx:       ctx,
		nodeToSet: make([]int, n),
		nodes:     make([]int, 0, n),
		indices:   []int{0},
		frontier:  ds.NewAddressableMaxHeap(n),
		curConns:  ds.NewAddressableMaxHeap(p.K()),
		curBlock:  -1,
	}
	for u := range b.nodeToSet {
		b.nodeToSet[u] = -1
	}

	for u := 0; u < n; u++ {
		bu := p.Block(u)
		if partition.BlockOverload(p, ctx, bu) > 0 && b.nodeToSet[u] == -1 {
			b.growMoveSet(u, maxSetWeight)
		}
	}

	return &MoveSets{
		NodeToSet: b.nodeToSet,
		Nodes:     b.nodes,
		Indices:   b.indices,
		Sources:   b.sources,
		Targets:   b.targets,
	}
}

func (b *moveSetBuilder) growMoveSet(seed int, maxWeight int64) {
	b.curBlock = b.p.Block(seed)
	b.curWeight = 0
	b.bestPrefixPos = b.curPos
	b.bestPrefixBlock = -1
	b.bestPrefixConn = 0
	b.resetCurConns()

	b.frontier.Push(seed, 0)
	for !b.frontier.Empty() && b.curWeight < maxWeight {
		u := b.frontier.Pop()
		b.addToMoveSet(u)

		b.p.Graph().Neighbors(u, func(e, v int) bool {
			if b.p.Block(v) == b.curBlock && b.nodeToSet[v] == -1 {
				w := b.p.Graph().EdgeWeight(e)
				if b.frontier.Contains(v) {
					b.frontier.IncreaseBy(v, w)
				} else {
					b.frontier.Push(v, w)
				}
			}
			return true
		})
	}
	b.frontier.Clear()
	b.finishMoveSet()
}

func (b *moveSetBuilder) addToMoveSet(u int) {
	g := b.p.Graph()
	b.curWeight += g.NodeWeight(u)
	b.nodeToSet[u] = b.curSet
	b.nodes = append(b.nodes, u)
	b.curPos++

	g.Neighbors(u, func(e, v int) bool {
		w := g.EdgeWeight(e)
		if b.nodeToSet[v] == b.curSet {
			return true // intra-set edge, no external connection
		}
		bv := b.p.Block(v)
		if bv != b.curBlock {
			b.curConns.IncreaseBy(bv, w)
		}
		return true
	})

	if target, conn, ok := b.peekBestTarget(); ok && conn >= b.bestPrefixConn {
		b.bestPrefixBlock = target
		b.bestPrefixConn = conn
		b.bestPrefixPos = b.curPos
	}
}

// peekBestTarget returns the strongest-connected foreign block; the source
// block sits in the heap with a permanently zero key and is skipped.
func (b *moveSetBuilder) peekBestTarget() (int, int64, bool) {
	if b.curConns.PeekID() != b.curBlock {
		return b.curConns.PeekID(), b.curConns.PeekKey(), true
	}
	src := b.curConns.Pop()
	if b.curConns.Empty() {
		b.curConns.Push(src, 0)
		return 0, 0, false
	}
	id, key := b.curConns.PeekID(), b.curConns.PeekKey()
	b.curConns.Push(src, 0)
	return id, key, true
}

// finishMoveSet trims the grown set back to its best prefix and records the
// target block. A set whose best prefix never materialized is dropped
// entirely.
func (b *moveSetBuilder) finishMoveSet() {
	start := b.indices[b.curSet]

	if b.bestPrefixBlock < 0 || b.bestPrefixPos == start {
		for pos := start; pos < b.curPos; pos++ {
			b.nodeToSet[b.nodes[pos]] = -1
		}
		b.nodes = b.nodes[:start]
		b.curPos = start
		return
	}

	for pos := b.bestPrefixPos; pos < b.curPos; pos++ {
		b.nodeToSet[b.nodes[pos]] = -1
	}
	b.nodes = b.nodes[:b.bestPrefixPos]
	b.curPos = b.bestPrefixPos

	b.indices = append(b.indices, b.bestPrefixPos)
	b.sources = append(b.sources, b.curBlock)
	b.targets = append(b.targets, b.bestPrefixBlock)
	b.curSet++
}

func (b *moveSetBuilder) resetCurConns() {
	b.curConns.Clear()
	for block := 0; block < b.p.K(); block++ {
		b.curConns.Push(block, 0)
	}
}
