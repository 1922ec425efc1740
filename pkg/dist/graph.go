package dist

import (
	"fmt"
	"sort"

	"github.com/gilchrisn/graph-partition-service/pkg/graph"
)

// Graph is one rank's share of a distributed graph: the owned contiguous
// global range materialized with adjacency, plus ghost copies of every
// remote endpoint it references. Local ids place owned nodes at
// [0, NLocal()) and ghosts at [NLocal(), NLocal()+NGhost()).
type Graph struct {
	rank int
	size int

	nodeDistribution []int64 // length size+1
	edgeDistribution []int64 // length size+1

	offsets     []int
	edges       []int // local ids
	edgeWeights []int64
	nodeWeights []int64 // owned nodes, then ghosts

	ghostToGlobal []int64
	globalToGhost map[int64]int
	ghostOwner    []int
}

func (g *Graph) Rank() int     { return g.rank }
func (g *Graph) NLocal() int   { return len(g.offsets) - 1 }
func (g *Graph) NGhost() int   { return len(g.ghostToGlobal) }
func (g *Graph) TotalN() int   { return g.NLocal() + g.NGhost() }
func (g *Graph) GlobalN() int  { return int(g.nodeDistribution[g.size]) }
func (g *Graph) MLocal() int   { return len(g.edges) }

// GlobalM sums local edge counts; each undirected edge is counted once per
// incident rank side.
func (g *Graph) GlobalM() int64 { return g.edgeDistribution[g.size] }

func (g *Graph) NodeDistribution() []int64 { return g.nodeDistribution }

func (g *Graph) IsOwned(local int) bool { return local < g.NLocal() }

// GlobalID translates a local id (owned or ghost) to its global id.
func (g *Graph) GlobalID(local int) int64 {
	if g.IsOwned(local) {
		return g.nodeDistribution[g.rank] + int64(local)
	}
	return g.ghostToGlobal[local-g.NLocal()]
}

// LocalID translates a global id to a local id, which may be a ghost.
func (g *Graph) LocalID(global int64) (int, bool) {
	if global >= g.nodeDistribution[g.rank] && global < g.nodeDistribution[g.rank+1] {
		return int(global - g.nodeDistribution[g.rank]), true
	}
	ghost, ok := g.globalToGhost[global]
	return ghost, ok
}

// OwnerOf returns the rank owning a global node id.
func (g *Graph) OwnerOf(global int64) int {
	return sort.Search(g.size, func(r int) bool { return g.nodeDistribution[r+1] > global })
}

// GhostOwner returns the owner of a ghost local id.
func (g *Graph) GhostOwner(local int) int { return g.ghostOwner[local-g.NLocal()] }

func (g *Graph) Degree(u int) int { return g.offsets[u+1] - g.offsets[u] }

// Neighbors iterates the adjacency of an owned node; v may be a ghost.
func (g *Graph) Neighbors(u int, fn func(e, v int) bool) {
	for e := g.offsets[u]; e < g.offsets[u+1]; e++ {
		if !fn(e, g.edges[e]) {
			return
		}
	}
}

func (g *Graph) NodeWeight(local int) int64 { return g.nodeWeights[local] }
func (g *Graph) EdgeWeight(e int) int64     { return g.edgeWeights[e] }

// TotalNodeWeight sums the owned node weights of this rank.
func (g *Graph) TotalNodeWeight() int64 {
	var total int64
	for u := 0; u < g.NLocal(); u++ {
		total += g.nodeWeights[u]
	}
	return total
}

// Distribute splits a global CSR into per-rank shares with contiguous
// ownership ranges. Every rank calls this with the same input.
func Distribute(global *graph.CSR, c *Comm) *Graph {
	size := c.Size()
	rank := c.Rank()
	n := global.N()

	nodeDistribution := make([]int64, size+1)
	for r := 0; r <= size; r++ {
		nodeDistribution[r] = int64(r * n / size)
	}

	begin := int(nodeDistribution[rank])
	end := int(nodeDistribution[rank+1])
	nLocal := end - begin

	g := &Graph{
		rank:             rank,
		size:             size,
		nodeDistribution: nodeDistribution,
		offsets:          make([]int, nLocal+1),
		globalToGhost:    make(map[int64]int),
	}

	for u := 0; u < nLocal; u++ {
		global.Neighbors(begin+u, func(e, v int) bool {
			g.edges = append(g.edges, g.localizeNeighbor(int64(v)))
			g.edgeWeights = append(g.edgeWeights, global.EdgeWeight(e))
			return true
		})
		g.offsets[u+1] = len(g.edges)
	}

	g.nodeWeights = make([]int64, nLocal+len(g.ghostToGlobal))
	for u := 0; u < nLocal; u++ {
		g.nodeWeights[u] = global.NodeWeight(begin + u)
	}
	for i, gid := range g.ghostToGlobal {
		g.nodeWeights[nLocal+i] = global.NodeWeight(int(gid))
	}

	localM := AllGather(c, int64(len(g.edges)))
	g.edgeDistribution = make([]int64, size+1)
	for r := 0; r < size; r++ {
		g.edgeDistribution[r+1] = g.edgeDistribution[r] + localM[r]
	}
	return g
}

// localizeNeighbor maps a global neighbor id to a local id, registering a
// ghost for remote endpoints. Only valid while the edge arrays are built, as
// the ghost id space depends on nLocal being final.
func (g *Graph) localizeNeighbor(global int64) int {
	if global >= g.nodeDistribution[g.rank] && global < g.nodeDistribution[g.rank+1] {
		return int(global - g.nodeDistribution[g.rank])
	}
	if ghost, ok := g.globalToGhost[global]; ok {
		return ghost
	}
	nLocal := int(g.nodeDistribution[g.rank+1] - g.nodeDistribution[g.rank])
	ghost := nLocal + len(g.ghostToGlobal)
	g.globalToGhost[global] = ghost
	g.ghostToGlobal = append(g.ghostToGlobal, global)
	g.ghostOwner = append(g.ghostOwner, g.OwnerOf(global))
	return ghost
}

// Validate checks the distribution invariants: owned ranges cover the global
// id space exactly once, and every ghost resolves to a remote owner.
func (g *Graph) Validate(c *Comm) error {
	counts := AllGather(c, int64(g.NLocal()))
	var total int64
	for _, cnt := range counts {
		total += cnt
	}
	if total != int64(g.GlobalN()) {
		return fmt.Errorf("owned ranges cover %d nodes, want %d", total, g.GlobalN())
	}

	for i, gid := range g.ghostToGlobal {
		owner := g.ghostOwner[i]
		if owner == g.rank {
			return fmt.Errorf("ghost %d is owned by this rank", gid)
		}
		if gid < g.nodeDistribution[owner] || gid >= g.nodeDistribution[owner+1] {
			return fmt.Errorf("ghost %d assigned to owner %d outside its range", gid, owner)
		}
	}
	return nil
}
