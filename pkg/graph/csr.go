package graph

import (
	"fmt"
	"sort"

	"github.com/gilchrisn/graph-partition-service/pkg/parallel"
)

// CSR is the uncompressed graph representation: node offsets into a flat
// adjacency array, with optional node and edge weights (nil means all 1).
// Immutable once built, except for the reversible isolated-node trim.
type CSR struct {
	offsets     []int
	edges       []int
	nodeWeights []int64
	edgeWeights []int64

	n               int // visible node count; < fullN while isolated nodes are removed
	fullN           int
	totalNodeWeight int64
	totalEdgeWeight int64
	maxNodeWeight   int64
	maxDegree       int

	sorted       bool
	bucketStarts [MaxDegreeBuckets + 2]int
	numBuckets   int
}

// NewCSR wraps prebuilt arrays into a CSR. offsets must have length n+1 with
// offsets[0] == 0; nodeWeights and edgeWeights may be nil for unit weights.
func NewCSR(offsets, edges []int, nodeWeights, edgeWeights []int64, sorted bool) (*CSR, error) {
	if len(offsets) == 0 || offsets[0] != 0 {
		return nil, fmt.Errorf("offsets must start at 0")
	}
	n := len(offsets) - 1
	if offsets[n] != len(edges) {
		return nil, fmt.Errorf("offsets end at %d but there are %d half-edges", offsets[n], len(edges))
	}
	for u := 0; u < n; u++ {
		if offsets[u] > offsets[u+1] {
			return nil, fmt.Errorf("offsets not monotone at node %d", u)
		}
	}
	if nodeWeights != nil && len(nodeWeights) != n {
		return nil, fmt.Errorf("node weight array has length %d, want %d", len(nodeWeights), n)
	}
	if edgeWeights != nil && len(edgeWeights) != len(edges) {
		return nil, fmt.Errorf("edge weight array has length %d, want %d", len(edgeWeights), len(edges))
	}

	g := &CSR{
		offsets:     offsets,
		edges:       edges,
		nodeWeights: nodeWeights,
		edgeWeights: edgeWeights,
		n:           n,
		fullN:       n,
		sorted:      sorted,
	}
	g.recomputeWeights()
	for u := 0; u < n; u++ {
		if d := g.Degree(u); d > g.maxDegree {
			g.maxDegree = d
		}
	}
	g.initDegreeBuckets()
	return g, nil
}

func (g *CSR) recomputeWeights() {
	if g.nodeWeights == nil {
		g.totalNodeWeight = int64(g.n)
		g.maxNodeWeight = 1
	} else {
		g.totalNodeWeight = 0
		g.maxNodeWeight = 0
		for _, w := range g.nodeWeights[:g.n] {
			g.totalNodeWeight += w
			if w > g.maxNodeWeight {
				g.maxNodeWeight = w
			}
		}
	}
	if g.edgeWeights == nil {
		g.totalEdgeWeight = int64(g.M())
	} else {
		g.totalEdgeWeight = 0
		for _, w := range g.edgeWeights[:g.M()] {
			g.totalEdgeWeight += w
		}
	}
}

func (g *CSR) initDegreeBuckets() {
	counts := bucketHistogram(g, parallel.Workers(0))
	if !g.sorted {
		for i := range counts {
			counts[i] = 0
		}
		counts[1] = g.n
	}

	g.numBuckets = 0
	for b, c := range counts {
		if c > 0 {
			g.numBuckets = b + 1
		}
	}

	// Arrangement order: buckets 1.. ascending, isolated (bucket 0) last.
	pos := 0
	for key := 1; key <= MaxDegreeBuckets; key++ {
		g.bucketStarts[key] = pos
		pos += counts[key]
	}
	g.bucketStarts[0] = pos // isolated region
	g.bucketStarts[MaxDegreeBuckets+1] = pos + counts[0]
}

// bucketHistogram counts nodes per degree bucket with worker-local arrays.
func bucketHistogram(g Graph, workers int) []int {
	chunks := parallel.NumChunks(g.N(), workers)
	if chunks == 0 {
		return make([]int, MaxDegreeBuckets+1)
	}
	local := make([][]int, chunks)
	parallel.ForWorker(g.N(), workers, func(worker, start, end int) {
		counts := make([]int, MaxDegreeBuckets+1)
		for u := start; u < end; u++ {
			counts[DegreeBucket(g.Degree(u))]++
		}
		local[worker] = counts
	})

	counts := make([]int, MaxDegreeBuckets+1)
	for _, l := range local {
		for b, c := range l {
			counts[b] += c
		}
	}
	return counts
}

func (g *CSR) N() int { return g.n }
func (g *CSR) M() int { return g.offsets[g.n] }

func (g *CSR) Degree(u int) int { return g.offsets[u+1] - g.offsets[u] }
func (g *CSR) MaxDegree() int   { return g.maxDegree }

func (g *CSR) NodeWeight(u int) int64 {
	if g.nodeWeights == nil {
		return 1
	}
	return g.nodeWeights[u]
}

func (g *CSR) EdgeWeight(e int) int64 {
	if g.edgeWeights == nil {
		return 1
	}
	return g.edgeWeights[e]
}

func (g *CSR) TotalNodeWeight() int64 { return g.totalNodeWeight }
func (g *CSR) TotalEdgeWeight() int64 { return g.totalEdgeWeight }
func (g *CSR) MaxNodeWeight() int64   { return g.maxNodeWeight }

func (g *CSR) Neighbors(u int, fn func(e, v int) bool) {
	for e := g.offsets[u]; e < g.offsets[u+1]; e++ {
		if !fn(e, g.edges[e]) {
			return
		}
	}
}

func (g *CSR) Sorted() bool    { return g.sorted }
func (g *CSR) NumBuckets() int { return g.numBuckets }

// FirstNodeInBucket returns the position of the first node of the bucket in
// the degree-sorted arrangement; isolated nodes (bucket 0) sit at the end.
func (g *CSR) FirstNodeInBucket(bucket int) int {
	if bucket == 0 {
		return g.bucketStarts[0]
	}
	return g.bucketStarts[bucket]
}

func (g *CSR) BucketSize(bucket int) int {
	if bucket == 0 {
		end := g.bucketStarts[MaxDegreeBuckets+1]
		if end > g.n {
			end = g.n
		}
		size := end - g.bucketStarts[0]
		if size < 0 {
			return 0
		}
		return size
	}
	return g.bucketStarts[bucket+1] - g.bucketStarts[bucket]
}

// RemoveIsolatedNodes hides the last count nodes, which must all be
// isolated. The trim is reversible via IntegrateIsolatedNodes.
func (g *CSR) RemoveIsolatedNodes(count int) error {
	if !g.sorted {
		return fmt.Errorf("isolated nodes can only be removed from a degree-sorted graph")
	}
	if count < 0 || count > g.BucketSize(0) {
		return fmt.Errorf("cannot remove %d isolated nodes, only %d available", count, g.BucketSize(0))
	}
	g.n -= count
	g.recomputeWeights()
	return nil
}

// IntegrateIsolatedNodes reverses all prior RemoveIsolatedNodes calls.
func (g *CSR) IntegrateIsolatedNodes() {
	g.n = g.fullN
	g.recomputeWeights()
}

// Validate checks structural invariants: monotone offsets, neighbor ids in
// range, symmetric adjacency with matching weights, and positive weights.
func (g *CSR) Validate() error {
	degreeSum := 0
	for u := 0; u < g.n; u++ {
		degreeSum += g.Degree(u)
	}
	if degreeSum != g.M() {
		return fmt.Errorf("degree sum %d does not match half-edge count %d", degreeSum, g.M())
	}

	for u := 0; u < g.n; u++ {
		for e := g.offsets[u]; e < g.offsets[u+1]; e++ {
			v := g.edges[e]
			if v < 0 || v >= g.n {
				return fmt.Errorf("node %d has out-of-range neighbor %d", u, v)
			}
			if g.EdgeWeight(e) <= 0 {
				return fmt.Errorf("non-positive weight on half-edge %d", e)
			}
			if !g.hasReverse(u, v, g.EdgeWeight(e)) {
				return fmt.Errorf("missing reverse of edge %d-%d", u, v)
			}
		}
	}

	if g.nodeWeights != nil {
		for u := 0; u < g.n; u++ {
			if g.nodeWeights[u] <= 0 {
				return fmt.Errorf("non-positive weight on node %d", u)
			}
		}
	}
	return nil
}

func (g *CSR) hasReverse(u, v int, weight int64) bool {
	for e := g.offsets[v]; e < g.offsets[v+1]; e++ {
		if g.edges[e] == u && g.EdgeWeight(e) == weight {
			return true
		}
	}
	return false
}

// Builder accumulates undirected edges and produces a CSR with each
// adjacency list sorted by neighbor id.
type Builder struct {
	n           int
	adjacency   [][]int
	weights     [][]int64
	nodeWeights []int64
	hasNodeW    bool
	hasEdgeW    bool
}

// NewBuilder creates a builder for a graph with n nodes.
func NewBuilder(n int) *Builder {
	return &Builder{
		n:         n,
		adjacency: make([][]int, n),
		weights:   make([][]int64, n),
	}
}

// SetNodeWeight assigns a weight to node u (default 1).
func (b *Builder) SetNodeWeight(u int, weight int64) {
	if b.nodeWeights == nil {
		b.nodeWeights = make([]int64, b.n)
		for i := range b.nodeWeights {
			b.nodeWeights[i] = 1
		}
	}
	b.hasNodeW = true
	b.nodeWeights[u] = weight
}

// AddEdge adds the undirected edge {u, v} with the given weight.
func (b *Builder) AddEdge(u, v int, weight int64) error {
	if u < 0 || u >= b.n || v < 0 || v >= b.n {
		return fmt.Errorf("edge endpoint out of range: u=%d, v=%d, n=%d", u, v, b.n)
	}
	if u == v {
		return fmt.Errorf("self-loop on node %d", u)
	}
	if weight <= 0 {
		return fmt.Errorf("edge weight must be positive: %d", weight)
	}
	if weight != 1 {
		b.hasEdgeW = true
	}
	b.adjacency[u] = append(b.adjacency[u], v)
	b.weights[u] = append(b.weights[u], weight)
	b.adjacency[v] = append(b.adjacency[v], u)
	b.weights[v] = append(b.weights[v], weight)
	return nil
}

// Build assembles the CSR.
func (b *Builder) Build() (*CSR, error) {
	offsets := make([]int, b.n+1)
	for u := 0; u < b.n; u++ {
		offsets[u+1] = offsets[u] + len(b.adjacency[u])
	}

	edges := make([]int, offsets[b.n])
	var edgeWeights []int64
	if b.hasEdgeW {
		edgeWeights = make([]int64, offsets[b.n])
	}

	for u := 0; u < b.n; u++ {
		idx := make([]int, len(b.adjacency[u]))
		for i := range idx {
			idx[i] = i
		}
		adj, ws := b.adjacency[u], b.weights[u]
		sort.Slice(idx, func(i, j int) bool { return adj[idx[i]] < adj[idx[j]] })
		for i, j := range idx {
			edges[offsets[u]+i] = adj[j]
			if edgeWeights != nil {
				edgeWeights[offsets[u]+i] = ws[j]
			}
		}
	}

	var nodeWeights []int64
	if b.hasNodeW {
		nodeWeights = b.nodeWeights
	}
	return NewCSR(offsets, edges, nodeWeights, edgeWeights, false)
}
