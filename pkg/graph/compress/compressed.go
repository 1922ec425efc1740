// Package compress provides the byte-compressed graph representation: node
// adjacency stored as variable-length gap codes with optional interval and
// high-degree encodings. It satisfies the same access contract as the CSR.
package compress

import (
	"encoding/binary"
	"fmt"

	"github.com/gilchrisn/graph-partition-service/pkg/graph"
)

// Encoding parameters. Neighbor lists at least HighDegreeThreshold long are
// split into independently decodable parts of HighDegreePartLength; runs of
// consecutive ids at least IntervalLengthThreshold long become intervals.
const (
	HighDegreeThreshold     = 10000
	HighDegreePartLength    = 1000
	IntervalLengthThreshold = 3
)

const (
	flagHighDegree = 1 << 0
	flagIntervals  = 1 << 1
)

// Stats summarizes which encodings were used; it is part of the header and
// must match a re-decode of the byte blob.
type Stats struct {
	HighDegreeNodes int
	HighDegreeParts int
	IntervalNodes   int
	Intervals       int
}

// Compressed is the compressed graph. It implements graph.Graph.
type Compressed struct {
	byteOffsets []int // n+1, into blob
	firstEdge   []int // n+1, prefix degree sums
	blob        []byte
	nodeWeights []int64
	edgeWeights []int64 // indexed in decode order; nil for unit weights

	n               int
	fullN           int
	totalNodeWeight int64
	totalEdgeWeight int64
	maxNodeWeight   int64
	maxDegree       int

	sorted       bool
	bucketCounts []int
	stats        Stats
}

func (g *Compressed) N() int { return g.n }
func (g *Compressed) M() int { return g.firstEdge[g.n] }

func (g *Compressed) Degree(u int) int { return g.firstEdge[u+1] - g.firstEdge[u] }
func (g *Compressed) MaxDegree() int   { return g.maxDegree }

func (g *Compressed) NodeWeight(u int) int64 {
	if g.nodeWeights == nil {
		return 1
	}
	return g.nodeWeights[u]
}

func (g *Compressed) EdgeWeight(e int) int64 {
	if g.edgeWeights == nil {
		return 1
	}
	return g.edgeWeights[e]
}

func (g *Compressed) TotalNodeWeight() int64 { return g.totalNodeWeight }
func (g *Compressed) TotalEdgeWeight() int64 { return g.totalEdgeWeight }
func (g *Compressed) MaxNodeWeight() int64   { return g.maxNodeWeight }

func (g *Compressed) Sorted() bool { return g.sorted }

func (g *Compressed) NumBuckets() int {
	num := 0
	for b, c := range g.bucketCounts {
		if c > 0 {
			num = b + 1
		}
	}
	return num
}

func (g *Compressed) BucketSize(bucket int) int {
	if bucket == 0 {
		removed := g.fullN - g.n
		return g.bucketCounts[0] - removed
	}
	return g.bucketCounts[bucket]
}

func (g *Compressed) FirstNodeInBucket(bucket int) int {
	if bucket == 0 {
		return g.n - g.BucketSize(0)
	}
	pos := 0
	for b := 1; b < bucket; b++ {
		pos += g.bucketCounts[b]
	}
	return pos
}

// CompressionStats returns the header's encoding statistics.
func (g *Compressed) CompressionStats() Stats { return g.stats }

// CompressedBytes returns the size of the adjacency blob.
func (g *Compressed) CompressedBytes() int { return len(g.blob) }

// Neighbors decodes the adjacency of u, yielding (edge id, neighbor) pairs.
// Interval-coded neighbors come first, then the residual gap codes; edge
// weights are stored in the same order.
func (g *Compressed) Neighbors(u int, fn func(e, v int) bool) {
	data := g.blob[g.byteOffsets[u]:g.byteOffsets[u+1]]
	if len(data) == 0 {
		return
	}

	header, n := binary.Uvarint(data)
	data = data[n:]
	degree := int(header >> 2)
	flags := int(header & 3)

	e := g.firstEdge[u]
	emit := func(v int) bool {
		ok := fn(e, v)
		e++
		return ok
	}

	if flags&flagHighDegree != 0 {
		numParts := (degree + HighDegreePartLength - 1) / HighDegreePartLength
		partLens := make([]int, numParts)
		for i := 0; i < numParts; i++ {
			l, n := binary.Uvarint(data)
			data = data[n:]
			partLens[i] = int(l)
		}
		for i := 0; i < numParts; i++ {
			count := HighDegreePartLength
			if i == numParts-1 {
				count = degree - i*HighDegreePartLength
			}
			if !decodePart(data[:partLens[i]], u, count, flags&flagIntervals != 0, emit) {
				return
			}
			data = data[partLens[i]:]
		}
		return
	}

	decodePart(data, u, degree, flags&flagIntervals != 0, emit)
}

// decodePart decodes one independently coded neighbor part.
func decodePart(data []byte, u, count int, intervals bool, emit func(v int) bool) bool {
	remaining := count

	if intervals {
		numIntervals, n := binary.Uvarint(data)
		data = data[n:]
		prevRight := 0
		for i := uint64(0); i < numIntervals; i++ {
			var left int
			if i == 0 {
				gap, n := binary.Varint(data)
				data = data[n:]
				left = u + int(gap)
			} else {
				gap, n := binary.Uvarint(data)
				data = data[n:]
				left = prevRight + int(gap) + 2
			}
			length, n := binary.Uvarint(data)
			data = data[n:]
			runLen := int(length) + IntervalLengthThreshold
			for v := left; v < left+runLen; v++ {
				if !emit(v) {
					return false
				}
			}
			prevRight = left + runLen - 1
			remaining -= runLen
		}
	}

	if remaining == 0 {
		return true
	}

	gap, n := binary.Varint(data)
	data = data[n:]
	prev := u + int(gap)
	if !emit(prev) {
		return false
	}
	for i := 1; i < remaining; i++ {
		gap, n := binary.Uvarint(data)
		data = data[n:]
		prev += int(gap) + 1
		if !emit(prev) {
			return false
		}
	}
	return true
}

// RemoveIsolatedNodes hides the last count nodes, which must be isolated.
func (g *Compressed) RemoveIsolatedNodes(count int) error {
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
func (g *Compressed) IntegrateIsolatedNodes() {
	g.n = g.fullN
	g.recomputeWeights()
}

func (g *Compressed) recomputeWeights() {
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
}

// Validate re-decodes the blob and checks it against the header: edge count,
// max degree, bucket histogram, and per-encoding statistics must all match.
func (g *Compressed) Validate() error {
	edges := 0
	maxDegree := 0
	var stats Stats
	buckets := make([]int, graph.MaxDegreeBuckets+1)

	for u := 0; u < g.n; u++ {
		degree := 0
		inRange := true
		g.Neighbors(u, func(e, v int) bool {
			if v < 0 || v >= g.fullN {
				inRange = false
			}
			degree++
			return true
		})
		if !inRange {
			return fmt.Errorf("node %d decodes an out-of-range neighbor", u)
		}
		if degree != g.Degree(u) {
			return fmt.Errorf("node %d decodes %d neighbors but the header records %d", u, degree, g.Degree(u))
		}
		edges += degree
		if degree > maxDegree {
			maxDegree = degree
		}
		buckets[graph.DegreeBucket(degree)]++

		if degree >= HighDegreeThreshold {
			stats.HighDegreeNodes++
			stats.HighDegreeParts += (degree + HighDegreePartLength - 1) / HighDegreePartLength
		}
	}

	if edges != g.M() {
		return fmt.Errorf("decoded %d half-edges but the header records %d", edges, g.M())
	}
	if maxDegree != g.maxDegree {
		return fmt.Errorf("decoded max degree %d but the header records %d", maxDegree, g.maxDegree)
	}
	if stats.HighDegreeNodes != g.stats.HighDegreeNodes || stats.HighDegreeParts != g.stats.HighDegreeParts {
		return fmt.Errorf("high-degree statistics do not match a re-decode")
	}
	if g.sorted && g.fullN == g.n {
		for b, c := range buckets {
			if c != g.bucketCounts[b] {
				return fmt.Errorf("bucket %d has %d nodes but the header records %d", b, c, g.bucketCounts[b])
			}
		}
	}
	return nil
}
