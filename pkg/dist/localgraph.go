package dist

// localGraph adapts one rank's owned induced subgraph to the shared graph
// contract so the shared-memory clusterer can run on it. It reports a
// single degree bucket; the distributed engine never iterates buckets.
type localGraph struct {
	offsets     []int
	edges       []int
	nodeWeights []int64
	edgeWeights []int64
}

func (g *localGraph) N() int { return len(g.offsets) - 1 }
func (g *localGraph) M() int { return len(g.edges) }

func (g *localGraph) Degree(u int) int { return g.offsets[u+1] - g.offsets[u] }

func (g *localGraph) MaxDegree() int {
	max := 0
	for u := 0; u < g.N(); u++ {
		if d := g.Degree(u); d > max {
			max = d
		}
	}
	return max
}

func (g *localGraph) NodeWeight(u int) int64 { return g.nodeWeights[u] }
func (g *localGraph) EdgeWeight(e int) int64 { return g.edgeWeights[e] }

func (g *localGraph) TotalNodeWeight() int64 {
	var total int64
	for _, w := range g.nodeWeights {
		total += w
	}
	return total
}

func (g *localGraph) TotalEdgeWeight() int64 {
	var total int64
	for _, w := range g.edgeWeights {
		total += w
	}
	return total
}

func (g *localGraph) MaxNodeWeight() int64 {
	var max int64
	for _, w := range g.nodeWeights {
		if w > max {
			max = w
		}
	}
	return max
}

func (g *localGraph) Neighbors(u int, fn func(e, v int) bool) {
	for e := g.offsets[u]; e < g.offsets[u+1]; e++ {
		if !fn(e, g.edges[e]) {
			return
		}
	}
}

func (g *localGraph) Sorted() bool                { return false }
func (g *localGraph) NumBuckets() int             { return 1 }
func (g *localGraph) BucketSize(bucket int) int   { return g.N() }
func (g *localGraph) FirstNodeInBucket(int) int   { return 0 }
