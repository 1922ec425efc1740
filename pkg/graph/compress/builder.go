package compress

import (
	"encoding/binary"
	"fmt"

	"github.com/gilchrisn/graph-partition-service/pkg/ds"
	"github.com/gilchrisn/graph-partition-service/pkg/graph"
	"github.com/gilchrisn/graph-partition-service/pkg/parallel"
	"golang.org/x/sync/errgroup"
)

// Options selects the specialized encodings.
type Options struct {
	HighDegree bool
	Intervals  bool
}

// DefaultOptions enables every encoding.
func DefaultOptions() Options {
	return Options{HighDegree: true, Intervals: true}
}

// parallelChunkSize is the number of nodes a parallel builder worker encodes
// per claimed chunk.
const parallelChunkSize = 4096

// encodeNode appends the encoding of u's adjacency to dst. adj must be
// sorted ascending. If weights is non-nil, the weights are appended to
// outWeights in decode order. Sequential and parallel builders share this
// routine, which is what makes their outputs byte-identical.
func encodeNode(dst []byte, u int, adj []int, weights []int64, outWeights *[]int64, opts Options, stats *Stats) []byte {
	degree := len(adj)
	flags := 0
	highDegree := opts.HighDegree && degree >= HighDegreeThreshold
	intervals := opts.Intervals && degree >= IntervalLengthThreshold
	if highDegree {
		flags |= flagHighDegree
	}
	if intervals {
		flags |= flagIntervals
	}

	if degree == 0 {
		return dst
	}
	dst = binary.AppendUvarint(dst, uint64(degree)<<2|uint64(flags))

	if highDegree {
		stats.HighDegreeNodes++
		numParts := (degree + HighDegreePartLength - 1) / HighDegreePartLength
		stats.HighDegreeParts += numParts

		parts := make([][]byte, numParts)
		for i := 0; i < numParts; i++ {
			lo := i * HighDegreePartLength
			hi := lo + HighDegreePartLength
			if hi > degree {
				hi = degree
			}
			parts[i] = encodePart(nil, u, adj[lo:hi], sliceWeights(weights, lo, hi), outWeights, intervals, stats)
		}
		for _, part := range parts {
			dst = binary.AppendUvarint(dst, uint64(len(part)))
		}
		for _, part := range parts {
			dst = append(dst, part...)
		}
		return dst
	}

	return encodePart(dst, u, adj, weights, outWeights, intervals, stats)
}

func sliceWeights(weights []int64, lo, hi int) []int64 {
	if weights == nil {
		return nil
	}
	return weights[lo:hi]
}

// encodePart encodes one independently decodable neighbor run: an optional
// interval block followed by residual gap codes.
func encodePart(dst []byte, u int, adj []int, weights []int64, outWeights *[]int64, intervals bool, stats *Stats) []byte {
	var residual []int
	var residualW []int64

	if intervals {
		type interval struct{ left, length, first int }
		var runs []interval

		i := 0
		for i < len(adj) {
			j := i
			for j+1 < len(adj) && adj[j+1] == adj[j]+1 {
				j++
			}
			if runLen := j - i + 1; runLen >= IntervalLengthThreshold {
				runs = append(runs, interval{left: adj[i], length: runLen, first: i})
			} else {
				residual = append(residual, adj[i:j+1]...)
				if weights != nil {
					residualW = append(residualW, weights[i:j+1]...)
				}
			}
			i = j + 1
		}

		if len(runs) > 0 {
			stats.IntervalNodes++
			stats.Intervals += len(runs)
		}

		dst = binary.AppendUvarint(dst, uint64(len(runs)))
		prevRight := 0
		for i, run := range runs {
			if i == 0 {
				dst = binary.AppendVarint(dst, int64(run.left-u))
			} else {
				dst = binary.AppendUvarint(dst, uint64(run.left-prevRight-2))
			}
			dst = binary.AppendUvarint(dst, uint64(run.length-IntervalLengthThreshold))
			prevRight = run.left + run.length - 1

			if weights != nil {
				*outWeights = append(*outWeights, weights[run.first:run.first+run.length]...)
			}
		}
	} else {
		residual = adj
		residualW = weights
	}

	if len(residual) > 0 {
		dst = binary.AppendVarint(dst, int64(residual[0]-u))
		for i := 1; i < len(residual); i++ {
			dst = binary.AppendUvarint(dst, uint64(residual[i]-residual[i-1]-1))
		}
		if weights != nil {
			*outWeights = append(*outWeights, residualW...)
		}
	}
	return dst
}

// SequentialBuilder compresses one node at a time, in node id order.
type SequentialBuilder struct {
	opts  Options
	n     int
	cur   int
	blob  []byte
	bytes []int // n+1
	first []int // n+1
	ews   []int64
	hasEW bool
	stats Stats
	maxD  int
}

// NewSequentialBuilder creates a builder for n nodes.
func NewSequentialBuilder(n int, hasEdgeWeights bool, opts Options) *SequentialBuilder {
	return &SequentialBuilder{
		opts:  opts,
		n:     n,
		bytes: make([]int, n+1),
		first: make([]int, n+1),
		hasEW: hasEdgeWeights,
	}
}

// AddNode appends the next node's adjacency; adj must be sorted ascending
// and weights, when edge weights are in use, parallel to adj.
func (b *SequentialBuilder) AddNode(adj []int, weights []int64) error {
	if b.cur >= b.n {
		return fmt.Errorf("builder already holds %d nodes", b.n)
	}
	var outW *[]int64
	if b.hasEW {
		outW = &b.ews
	}
	b.blob = encodeNode(b.blob, b.cur, adj, weights, outW, b.opts, &b.stats)
	b.cur++
	b.bytes[b.cur] = len(b.blob)
	b.first[b.cur] = b.first[b.cur-1] + len(adj)
	if len(adj) > b.maxD {
		b.maxD = len(adj)
	}
	return nil
}

// Build finalizes the compressed graph.
func (b *SequentialBuilder) Build(nodeWeights []int64, sorted bool) (*Compressed, error) {
	if b.cur != b.n {
		return nil, fmt.Errorf("builder holds %d of %d nodes", b.cur, b.n)
	}
	return assemble(b.blob, b.bytes, b.first, nodeWeights, b.ews, sorted, b.maxD, b.stats)
}

func assemble(blob []byte, bytes, first []int, nodeWeights, edgeWeights []int64, sorted bool, maxDegree int, stats Stats) (*Compressed, error) {
	n := len(first) - 1
	g := &Compressed{
		byteOffsets: bytes,
		firstEdge:   first,
		blob:        blob,
		nodeWeights: nodeWeights,
		edgeWeights: edgeWeights,
		n:           n,
		fullN:       n,
		maxDegree:   maxDegree,
		sorted:      sorted,
		stats:       stats,
	}

	g.recomputeWeights()
	if g.edgeWeights == nil {
		g.totalEdgeWeight = int64(g.M())
	} else {
		for _, w := range g.edgeWeights {
			g.totalEdgeWeight += w
		}
	}

	g.bucketCounts = make([]int, graph.MaxDegreeBuckets+1)
	if sorted {
		for u := 0; u < n; u++ {
			g.bucketCounts[graph.DegreeBucket(g.Degree(u))]++
		}
	} else {
		g.bucketCounts[1] = n
	}
	return g, nil
}

// FromCSR compresses a CSR sequentially.
func FromCSR(src *graph.CSR, opts Options) (*Compressed, error) {
	b := NewSequentialBuilder(src.N(), hasEdgeWeights(src), opts)
	adj := make([]int, 0, src.MaxDegree())
	ws := make([]int64, 0, src.MaxDegree())
	for u := 0; u < src.N(); u++ {
		adj, ws = gatherNeighbors(src, u, adj[:0], ws[:0])
		var weights []int64
		if b.hasEW {
			weights = ws
		}
		if err := b.AddNode(adj, weights); err != nil {
			return nil, err
		}
	}
	return b.Build(nodeWeightSlice(src), src.Sorted())
}

// FromCSRParallel compresses a CSR with a bounded worker pool. Per-chunk
// buffers are concatenated in chunk order and the byte offsets are fixed via
// a circular prefix-sum handoff, so the result is byte-identical to FromCSR.
func FromCSRParallel(src *graph.CSR, workers int, opts Options) (*Compressed, error) {
	workers = parallel.Workers(workers)
	n := src.N()
	numChunks := (n + parallelChunkSize - 1) / parallelChunkSize
	if numChunks <= 1 || workers == 1 {
		return FromCSR(src, opts)
	}

	ring, err := ds.NewConcurrentCircularVector(workers)
	if err != nil {
		return nil, err
	}

	hasEW := hasEdgeWeights(src)
	buffers := make([][]byte, numChunks)
	bases := make([]uint64, numChunks)
	chunkBytes := make([][]int, numChunks) // per-node encoded sizes
	chunkWeights := make([][]int64, numChunks)
	chunkStats := make([]Stats, numChunks)
	chunkMaxD := make([]int, numChunks)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			adj := make([]int, 0, 256)
			ws := make([]int64, 0, 256)
			for {
				chunk := ring.Next()
				if chunk >= numChunks {
					return nil
				}
				lo := chunk * parallelChunkSize
				hi := lo + parallelChunkSize
				if hi > n {
					hi = n
				}

				var buf []byte
				var weights []int64
				sizes := make([]int, 0, hi-lo)
				var stats Stats
				maxD := 0
				for u := lo; u < hi; u++ {
					adj, ws = gatherNeighbors(src, u, adj[:0], ws[:0])
					var outW *[]int64
					var inW []int64
					if hasEW {
						outW = &weights
						inW = ws
					}
					before := len(buf)
					buf = encodeNode(buf, u, adj, inW, outW, opts, &stats)
					sizes = append(sizes, len(buf)-before)
					if len(adj) > maxD {
						maxD = len(adj)
					}
				}

				buffers[chunk] = buf
				chunkBytes[chunk] = sizes
				chunkWeights[chunk] = weights
				chunkStats[chunk] = stats
				chunkMaxD[chunk] = maxD
				bases[chunk] = ring.FetchAndUpdate(chunk, uint64(len(buf)))
			}
		})
	}
	g.Wait()

	total := 0
	for _, buf := range buffers {
		total += len(buf)
	}

	blob := make([]byte, 0, total)
	bytes := make([]int, n+1)
	first := make([]int, n+1)
	var edgeWeights []int64
	var stats Stats
	maxD := 0

	u := 0
	for chunk := 0; chunk < numChunks; chunk++ {
		blob = append(blob, buffers[chunk]...)
		offset := int(bases[chunk])
		for _, size := range chunkBytes[chunk] {
			offset += size
			bytes[u+1] = offset
			first[u+1] = first[u] + src.Degree(u)
			u++
		}
		edgeWeights = append(edgeWeights, chunkWeights[chunk]...)
		stats.HighDegreeNodes += chunkStats[chunk].HighDegreeNodes
		stats.HighDegreeParts += chunkStats[chunk].HighDegreeParts
		stats.IntervalNodes += chunkStats[chunk].IntervalNodes
		stats.Intervals += chunkStats[chunk].Intervals
		if chunkMaxD[chunk] > maxD {
			maxD = chunkMaxD[chunk]
		}
	}

	if !hasEW {
		edgeWeights = nil
	}
	return assemble(blob, bytes, first, nodeWeightSlice(src), edgeWeights, src.Sorted(), maxD, stats)
}

func gatherNeighbors(src *graph.CSR, u int, adj []int, ws []int64) ([]int, []int64) {
	src.Neighbors(u, func(e, v int) bool {
		adj = append(adj, v)
		ws = append(ws, src.EdgeWeight(e))
		return true
	})
	return adj, ws
}

func hasEdgeWeights(src *graph.CSR) bool {
	for e := 0; e < src.M(); e++ {
		if src.EdgeWeight(e) != 1 {
			return true
		}
	}
	return false
}

func nodeWeightSlice(src *graph.CSR) []int64 {
	uniform := true
	for u := 0; u < src.N(); u++ {
		if src.NodeWeight(u) != 1 {
			uniform = false
			break
		}
	}
	if uniform {
		return nil
	}
	weights := make([]int64, src.N())
	for u := 0; u < src.N(); u++ {
		weights[u] = src.NodeWeight(u)
	}
	return weights
}
