// Package initial bipartitions the coarsest graph with several seeded
// heuristics and assembles k-way partitions by recursive bisection.
package initial

import (
	"math/rand"

	"github.com/gilchrisn/graph-partition-service/pkg/ds"
	"github.com/gilchrisn/graph-partition-service/pkg/graph"
)

// bisectionContext carries the weight caps of the two sides of a bisection.
type bisectionContext struct {
	maxWeight [2]int64
	perfect   [2]int64
}

func newBisectionContext(total int64, k1, k2 int, eps float64) bisectionContext {
	k := int64(k1 + k2)
	perfect := func(part int64) int64 { return (total*part + k - 1) / k }
	p0 := perfect(int64(k1))
	p1 := perfect(int64(k2))
	cap0 := int64(float64(p0) * (1 + eps))
	cap1 := int64(float64(p1) * (1 + eps))
	if cap0 < p0 {
		cap0 = p0
	}
	if cap1 < p1 {
		cap1 = p1
	}
	return bisectionContext{maxWeight: [2]int64{cap0, cap1}, perfect: [2]int64{p0, p1}}
}

// Bipartitioner grows a 2-way partition of a graph.
type Bipartitioner interface {
	Name() string
	Bipartition(g graph.Graph, ctx bisectionContext, rng *rand.Rand) []int
}

// randomBipartitioner assigns shuffled nodes to the lighter feasible side.
type randomBipartitioner struct{}

func (randomBipartitioner) Name() string { return "random" }

func (randomBipartitioner) Bipartition(g graph.Graph, ctx bisectionContext, rng *rand.Rand) []int {
	n := g.N()
	blocks := make([]int, n)
	order := rng.Perm(n)

	var weights [2]int64
	for _, u := range order {
		w := g.NodeWeight(u)
		side := 0
		if weights[1]+w <= ctx.maxWeight[1] &&
			(weights[0]+w > ctx.maxWeight[0] || weights[1]*ctx.perfect[0] < weights[0]*ctx.perfect[1]) {
			side = 1
		}
		blocks[u] = side
		weights[side] += w
	}
	return blocks
}

// bfsBipartitioner grows side 0 breadth-first from a random seed.
type bfsBipartitioner struct{}

func (bfsBipartitioner) Name() string { return "bfs" }

func (bfsBipartitioner) Bipartition(g graph.Graph, ctx bisectionContext, rng *rand.Rand) []int {
	n := g.N()
	blocks := make([]int, n)
	for u := range blocks {
		blocks[u] = 1
	}

	visited := ds.NewMarker(n)
	var queue []int
	var weight int64

	enqueue := func(u int) {
		if visited.Mark(u) {
			queue = append(queue, u)
		}
	}

	enqueue(rng.Intn(n))
	for weight < ctx.perfect[0] {
		if len(queue) == 0 {
			// Disconnected graph: restart from an unvisited node.
			restart := -1
			for u := 0; u < n; u++ {
				if !visited.Marked(u) {
					restart = u
					break
				}
			}
			if restart < 0 {
				break
			}
			enqueue(restart)
		}
		u := queue[0]
		queue = queue[1:]
		if weight+g.NodeWeight(u) > ctx.maxWeight[0] {
			continue
		}
		blocks[u] = 0
		weight += g.NodeWeight(u)
		g.Neighbors(u, func(e, v int) bool {
			enqueue(v)
			return true
		})
	}
	return blocks
}

// greedyGrowingBipartitioner moves the node with the smallest negative gain
// into side 0 first, the classic greedy graph growing scheme.
type greedyGrowingBipartitioner struct{}

func (greedyGrowingBipartitioner) Name() string { return "greedy-growing" }

func (greedyGrowingBipartitioner) Bipartition(g graph.Graph, ctx bisectionContext, rng *rand.Rand) []int {
	n := g.N()
	blocks := make([]int, n)
	for u := range blocks {
		blocks[u] = 1
	}

	queue := ds.NewAddressableMinHeap(n)
	marker := ds.NewMarker(n)
	var weight int64

	seed := rng.Intn(n)
	queue.Push(seed, negativeGain(g, blocks, seed))
	marker.Mark(seed)

	for weight < ctx.perfect[0] {
		if queue.Empty() {
			restart := -1
			for u := 0; u < n; u++ {
				if !marker.Marked(u) {
					restart = u
					break
				}
			}
			if restart < 0 {
				break
			}
			queue.Push(restart, negativeGain(g, blocks, restart))
			marker.Mark(restart)
		}

		u := queue.Pop()
		if weight+g.NodeWeight(u) > ctx.maxWeight[0] {
			continue
		}
		blocks[u] = 0
		weight += g.NodeWeight(u)

		g.Neighbors(u, func(e, v int) bool {
			if blocks[v] == 1 {
				if marker.Mark(v) {
					queue.Push(v, negativeGain(g, blocks, v))
				} else if queue.Contains(v) {
					queue.Update(v, negativeGain(g, blocks, v))
				}
			}
			return true
		})
	}
	return blocks
}

// negativeGain is the cut increase of moving u into side 0: edges toward
// side 1 minus edges toward side 0.
func negativeGain(g graph.Graph, blocks []int, u int) int64 {
	var gain int64
	g.Neighbors(u, func(e, v int) bool {
		if blocks[v] == 0 {
			gain -= g.EdgeWeight(e)
		} else {
			gain += g.EdgeWeight(e)
		}
		return true
	})
	return gain
}

func allBipartitioners() []Bipartitioner {
	return []Bipartitioner{greedyGrowingBipartitioner{}, bfsBipartitioner{}, randomBipartitioner{}}
}

// bipartitionBest runs every heuristic repetitions times and keeps the best
// result, ranked by feasibility first, then cut.
func bipartitionBest(g graph.Graph, ctx bisectionContext, repetitions int, rng *rand.Rand) []int {
	if g.N() == 0 {
		return nil
	}
	var bestBlocks []int
	var bestCut int64
	bestFeasible := false

	for _, bp := range allBipartitioners() {
		for rep := 0; rep < repetitions; rep++ {
			blocks := bp.Bipartition(g, ctx, rng)
			refineBisection(g, ctx, blocks)

			cut := bisectionCut(g, blocks)
			feasible := bisectionFeasible(g, ctx, blocks)
			if bestBlocks == nil ||
				(feasible && !bestFeasible) ||
				(feasible == bestFeasible && cut < bestCut) {
				bestBlocks = blocks
				bestCut = cut
				bestFeasible = feasible
			}
		}
	}
	return bestBlocks
}

func bisectionCut(g graph.Graph, blocks []int) int64 {
	var cut int64
	for u := 0; u < g.N(); u++ {
		g.Neighbors(u, func(e, v int) bool {
			if blocks[u] != blocks[v] {
				cut += g.EdgeWeight(e)
			}
			return true
		})
	}
	return cut / 2
}

func bisectionFeasible(g graph.Graph, ctx bisectionContext, blocks []int) bool {
	var weights [2]int64
	for u, b := range blocks {
		weights[b] += g.NodeWeight(u)
	}
	return weights[0] <= ctx.maxWeight[0] && weights[1] <= ctx.maxWeight[1]
}

// refineBisection runs boundary label propagation passes on the two-block
// partition until no node moves.
func refineBisection(g graph.Graph, ctx bisectionContext, blocks []int) {
	var weights [2]int64
	for u, b := range blocks {
		weights[b] += g.NodeWeight(u)
	}

	for pass := 0; pass < 5; pass++ {
		moves := 0
		for u := 0; u < g.N(); u++ {
			from := blocks[u]
			to := 1 - from
			var connFrom, connTo int64
			g.Neighbors(u, func(e, v int) bool {
				if blocks[v] == from {
					connFrom += g.EdgeWeight(e)
				} else {
					connTo += g.EdgeWeight(e)
				}
				return true
			})

			w := g.NodeWeight(u)
			gain := connTo - connFrom
			overloadedFrom := weights[from] > ctx.maxWeight[from]
			fits := weights[to]+w <= ctx.maxWeight[to]
			if fits && (gain > 0 || (gain == 0 && overloadedFrom)) {
				blocks[u] = to
				weights[from] -= w
				weights[to] += w
				moves++
			}
		}
		if moves == 0 {
			break
		}
	}
}
